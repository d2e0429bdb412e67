// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/attachment"
	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/cache"
	"github.com/JakeFAU/onbid-case-resolver/internal/config"
	collyfetcher "github.com/JakeFAU/onbid-case-resolver/internal/fetcher/colly"
	"github.com/JakeFAU/onbid-case-resolver/internal/id/uuid"
	"github.com/JakeFAU/onbid-case-resolver/internal/knowncases"
	"github.com/JakeFAU/onbid-case-resolver/internal/metrics"
	"github.com/JakeFAU/onbid-case-resolver/internal/pipeline"
	"github.com/JakeFAU/onbid-case-resolver/internal/policy/ratelimit"
	"github.com/JakeFAU/onbid-case-resolver/internal/policy/retry"
	"github.com/JakeFAU/onbid-case-resolver/internal/resolver"
	"github.com/JakeFAU/onbid-case-resolver/internal/storage/gcs"
	"github.com/JakeFAU/onbid-case-resolver/internal/storage/local"
	"github.com/JakeFAU/onbid-case-resolver/internal/storage/postgres"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and closed by the command that built it.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	service *pipeline.Service
	cache   *cache.Store
	ids     auction.IDGenerator
	clock   auction.Clock
	closers []func()
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Service returns the resolution pipeline.
func (a *App) Service() *pipeline.Service {
	return a.service
}

// Cache returns the cache store.
func (a *App) Cache() *cache.Store {
	return a.cache
}

// IDs returns the request id generator.
func (a *App) IDs() auction.IDGenerator {
	return a.ids
}

// Clock returns the wall clock.
func (a *App) Clock() auction.Clock {
	return a.clock
}

// New creates and initializes the services described by cfg. It fails fast
// if any configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services", zap.Bool("strict", cfg.Scraper.Strict))
	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  auction.SystemClock{},
	}

	s := cfg.Scraper
	limiter := ratelimit.New(ratelimit.Config{
		MinInterval: config.Millis(s.MinIntervalMs),
		JitterMin:   config.Millis(s.JitterMinMs),
		JitterMax:   config.Millis(s.JitterMaxMs),
	})
	policy := retry.New(retry.Config{
		MaxRetries: s.MaxRetries,
		MinBackoff: config.Millis(s.BackoffMinMs),
		MaxBackoff: config.Millis(s.BackoffMaxMs),
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      s.UserAgent,
		Referer:        s.Referer,
		Strict:         s.Strict,
		StrictTimeout:  config.Millis(s.StrictTimeoutMs),
		RelaxedTimeout: config.Millis(s.RelaxedTimeoutMs),
	}, limiter, policy, logger)

	res := resolver.New(fetcher, s.Templates,
		resolver.WithMinContentChars(s.MinContentChars),
		resolver.WithLogger(logger),
	)

	store, err := cache.New(cache.Config{
		RawDir:      cfg.Cache.RawDir,
		ResponseDir: cfg.Cache.ResponseDir,
		TTL:         cfg.Cache.TTL,
		BlockTTL:    cfg.Cache.BlockTTL,
	}, a.clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.cache = store

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	handler := attachment.NewHandler(attachment.Config{
		BaseURL:     s.Templates.BaseURL,
		FetchRemote: cfg.Attachments.FetchRemote,
	}, blobs, fetcher, a.clock, logger)

	deps := pipeline.Deps{
		Resolver:    res,
		Cache:       store,
		Attachments: handler,
		Fallback:    pipeline.FallbackFunc(knowncases.Synthesize),
		IDs:         a.ids,
		Clock:       a.clock,
		Logger:      logger,
	}
	if cfg.DB.DSN != "" {
		logger.Info("connecting to postgres result log", zap.String("table", cfg.DB.Table))
		recorder, err := postgres.NewResultStore(ctx, postgres.ResultStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize result log: %w", err)
		}
		a.closers = append(a.closers, recorder.Close)
		deps.Recorder = recorder
	}

	svc, err := pipeline.New(s.Strict, deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	a.service = svc

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) openBlobStore(ctx context.Context) (auction.BlobStore, error) {
	att := a.cfg.Attachments
	switch att.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS attachment store", zap.String("bucket", att.GCSBucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: att.GCSBucket, Prefix: att.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs attachments: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("error closing gcs client", zap.Error(err))
			}
		})
		return store, nil
	case config.BackendLocal, "":
		a.logger.Info("using local attachment store", zap.String("dir", att.Dir))
		store, err := local.New(local.Config{BaseDir: att.Dir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local attachments: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown attachments backend: %s", att.Backend)
	}
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	// Sync errors on stderr/stdout are expected on some platforms.
	_ = a.logger.Sync()
}
