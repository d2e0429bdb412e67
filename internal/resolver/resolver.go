// Package resolver locates the upstream detail page for a case key, using
// search pages to discover the internal id when only a case number is known.
package resolver

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/validator"
)

// DefaultMinContentChars is the minimum size of an accepted detail page.
const DefaultMinContentChars = 1000

// Resolution is the outcome of Resolve.
type Resolution struct {
	Outcome auction.FetchOutcome
	// LastURL is the last URL tried, successful or not.
	LastURL      string
	DiscoveredID string
}

// Resolver runs the discovery and detail stages.
type Resolver struct {
	fetcher         auction.Fetcher
	templates       Templates
	minContentChars int
	logger          *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithMinContentChars overrides DefaultMinContentChars.
func WithMinContentChars(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.minContentChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a Resolver.
func New(fetcher auction.Fetcher, templates Templates, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:         fetcher,
		templates:       templates,
		minContentChars: DefaultMinContentChars,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("resolver")
	return r
}

// Resolve fetches the detail document for key. Invalid keys fail with
// INVALID_INPUT; the allow-list fallback is the caller's decision.
func (r *Resolver) Resolve(ctx context.Context, key auction.CaseKey, kind auction.SourceKind) Resolution {
	switch {
	case kind == auction.SourceURL && key.Namespace() == auction.NamespaceOnbid:
		target := r.templates.expand(r.templates.URLDetail, idPlaceholder, key.ID())
		out := r.fetcher.Fetch(ctx, target)
		return Resolution{Outcome: out, LastURL: target, DiscoveredID: key.ID()}
	case kind == auction.SourceCase && key.Namespace() == auction.NamespaceCase:
		return r.resolveCase(ctx, key)
	default:
		return Resolution{Outcome: auction.FetchOutcome{Err: auction.ErrInvalidInput}}
	}
}

func (r *Resolver) resolveCase(ctx context.Context, key auction.CaseKey) Resolution {
	caseNo := key.ID()
	logger := r.logger.With(zap.String("case_key", key.String()))

	var res Resolution
	for _, target := range r.templates.expandAll(r.templates.Search, casePlaceholder, caseNo) {
		if ctx.Err() != nil {
			break
		}
		res.LastURL = target
		out := r.fetcher.Fetch(ctx, target)
		if !out.OK() {
			logger.Debug("search candidate failed", zap.String("url", target), zap.String("error_code", string(out.Err)))
			res.Outcome = out
			continue
		}
		if id := DiscoverID(out.Body); id != "" {
			res.DiscoveredID = id
			logger.Info("discovered internal id", zap.String("url", target), zap.String("internal_id", id))
			break
		}
	}

	candidates := r.templates.expandAll(r.templates.Legacy, casePlaceholder, caseNo)
	if res.DiscoveredID != "" {
		candidates = r.templates.expandAll(r.templates.DetailByID, idPlaceholder, res.DiscoveredID)
	}

	var (
		last     auction.FetchOutcome
		blocking auction.ErrorCode
	)
	for _, target := range candidates {
		if ctx.Err() != nil {
			break
		}
		res.LastURL = target
		out := r.fetcher.Fetch(ctx, target)
		last = out
		if !out.OK() {
			if out.Err.IsBlocking() {
				blocking = out.Err
			}
			logger.Debug("detail candidate failed", zap.String("url", target), zap.String("error_code", string(out.Err)))
			continue
		}
		if utf8.RuneCountInString(out.Body) <= r.minContentChars {
			logger.Debug("detail candidate too small", zap.String("url", target), zap.Int("bytes", len(out.Body)))
			continue
		}
		if !validator.IsDetailPage(out.Body, res.DiscoveredID) {
			logger.Debug("detail candidate is not a detail page", zap.String("url", target))
			continue
		}
		res.Outcome = out
		return res
	}

	code := auction.ErrRemoteHTTP
	if blocking != "" {
		code = blocking
	}
	logger.Warn("detail candidates exhausted", zap.String("error_code", string(code)))
	res.Outcome = auction.FetchOutcome{URL: res.LastURL, Status: last.Status, Err: code}
	return res
}
