package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/cache"
	"github.com/JakeFAU/onbid-case-resolver/internal/config"
	"github.com/JakeFAU/onbid-case-resolver/internal/metrics"
)

const (
	maxBodyBytes   = 64 << 10
	parseBodyHint  = "expected field 'case' (e.g. '2024-01774-006' or 'onbid:1234567')"
	healthStatusOK = "ok"
)

// Parser resolves one request into a complete result.
type Parser interface {
	Parse(ctx context.Context, req auction.Request) auction.Result
	Strict() bool
}

// CacheStats reports cache contents for the debug endpoint.
type CacheStats interface {
	Stats() (cache.Stats, error)
}

// Server wires HTTP handlers to the resolution pipeline.
type Server struct {
	router  chi.Router
	parser  Parser
	cache   CacheStats
	clock   auction.Clock
	cfg     config.Config
	logger  *zap.Logger
	started time.Time
	version string
}

// NewServer constructs a Server with middleware and routes. cacheStats may
// be nil.
func NewServer(
	parser Parser,
	cacheStats CacheStats,
	ids auction.IDGenerator,
	clock auction.Clock,
	cfg config.Config,
	logger *zap.Logger,
	version string,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = auction.SystemClock{}
	}
	s := &Server{
		parser:  parser,
		cache:   cacheStats,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("api"),
		started: clock.Now(),
		version: version,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(ids))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.healthz)

		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKeys))
			}
			r.Get("/debug/status", s.debugStatus)
			r.Get("/debug/cache", s.debugCache)
			r.With(newClientLimiter(cfg.Server.RateLimitPerMinute, s.logger).middleware).
				Post("/onbid/parse", s.parse)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type parseRequest struct {
	Case   *string `json:"case"`
	CaseNo *string `json:"case_no"`
	URL    *string `json:"url"`
	Force  bool    `json:"force"`
}

// identifier picks the first supplied field; url is a legacy alias.
func (p parseRequest) identifier() (string, bool) {
	for _, v := range []*string{p.Case, p.CaseNo, p.URL} {
		if v != nil {
			return *v, true
		}
	}
	return "", false
}

func (s *Server) parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeInvalidInput(w, "invalid JSON")
		return
	}
	raw, ok := req.identifier()
	if !ok {
		writeInvalidInput(w, "missing case")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout())
	defer cancel()

	res := s.parser.Parse(ctx, auction.Request{
		Raw:   raw,
		Force: req.Force,
		ReqID: requestIDFrom(r.Context()),
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   healthStatusOK,
		"version":  s.version,
		"uptime_s": s.uptime().Seconds(),
	})
}

func (s *Server) debugStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      healthStatusOK,
		"timestamp":   s.clock.Now(),
		"app_version": s.version,
		"strict_mode": map[string]any{
			"enabled":     s.parser.Strict(),
			"description": "strict mode never substitutes verified listings or relaxed cache entries",
		},
		"uptime_seconds": int64(s.uptime().Seconds()),
		"rate_limits": map[string]int{
			"per_minute": s.cfg.Server.RateLimitPerMinute,
		},
	})
}

func (s *Server) debugCache(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache is not configured")
		return
	}
	st, err := s.cache.Stats()
	if err != nil {
		s.logger.Error("cache stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": healthStatusOK,
		"cache_info": map[string]int{
			"total_entries":        st.RawTotal,
			"strict_mode_entries":  st.RawStrict,
			"contaminated_entries": st.RawContaminated,
		},
		"responses": map[string]int{
			"total":    st.ResponseTotal,
			"expired":  st.ResponseExpired,
			"unusable": st.ResponseUnusable,
		},
		"strict_mode": s.parser.Strict(),
	})
}

func (s *Server) uptime() time.Duration {
	return s.clock.Now().Sub(s.started)
}

func writeInvalidInput(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error_code": string(auction.ErrInvalidInput),
		"error_hint": parseBodyHint,
		"detail":     detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
