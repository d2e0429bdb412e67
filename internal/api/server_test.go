package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/cache"
	"github.com/JakeFAU/onbid-case-resolver/internal/config"
)

type fakeParser struct {
	mu     sync.Mutex
	strict bool
	reqs   []auction.Request
}

func (p *fakeParser) Parse(_ context.Context, req auction.Request) auction.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return auction.Result{
		ReqID:         req.ReqID,
		Status:        auction.StatusPending,
		RequestedCase: req.Raw,
		ErrorCode:     auction.ErrRemoteHTTP404,
		ErrorHint:     auction.Ptr(auction.Hint(auction.ErrRemoteHTTP404)),
	}
}

func (p *fakeParser) Strict() bool { return p.strict }

func (p *fakeParser) requests() []auction.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]auction.Request(nil), p.reqs...)
}

type fakeStats struct {
	st  cache.Stats
	err error
}

func (f fakeStats) Stats() (cache.Stats, error) { return f.st, f.err }

type fakeIDGen struct{ id string }

func (g fakeIDGen) NewID() (string, error) { return g.id, nil }

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

const generatedID = "0190a8e4-1b2c-7d3e-8f40-123456789abc"

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 180, RateLimitPerMinute: 60},
	}
}

func newTestServer(t *testing.T, cfg config.Config, parser *fakeParser, stats CacheStats) *Server {
	t.Helper()
	return NewServer(parser, stats, fakeIDGen{id: generatedID}, fakeClock{now: time.Unix(1700000000, 0)}, cfg, nil, "test")
}

func postParse(t *testing.T, s *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/onbid/parse", bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestParseAlwaysAnswers200(t *testing.T) {
	t.Parallel()

	parser := &fakeParser{}
	s := newTestServer(t, testConfig(), parser, nil)

	rec := postParse(t, s, `{"case":"2024-05180-001","force":true}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "REMOTE_HTTP_404", got["error_code"])
	assert.Equal(t, "pending", got["status"])
	assert.Equal(t, generatedID, got["req_id"])
	assert.Equal(t, generatedID, rec.Header().Get(requestIDHeader))

	reqs := parser.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "2024-05180-001", reqs[0].Raw)
	assert.True(t, reqs[0].Force)
}

func TestParseAcceptsAliases(t *testing.T) {
	t.Parallel()

	parser := &fakeParser{}
	s := newTestServer(t, testConfig(), parser, nil)

	require.Equal(t, http.StatusOK, postParse(t, s, `{"case_no":"2024-01774-006"}`, nil).Code)
	require.Equal(t, http.StatusOK, postParse(t, s, `{"url":"https://www.onbid.co.kr/x?cltrNo=1"}`, nil).Code)

	reqs := parser.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "2024-01774-006", reqs[0].Raw)
	assert.Equal(t, "https://www.onbid.co.kr/x?cltrNo=1", reqs[1].Raw)
}

func TestParseMalformedBody(t *testing.T) {
	t.Parallel()

	parser := &fakeParser{}
	s := newTestServer(t, testConfig(), parser, nil)

	for _, body := range []string{"{invalid", `{"force":true}`} {
		rec := postParse(t, s, body, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
	}
	assert.Empty(t, parser.requests())
}

func TestInboundRequestIDIsKept(t *testing.T) {
	t.Parallel()

	parser := &fakeParser{}
	s := newTestServer(t, testConfig(), parser, nil)
	inbound := "0190a8e4-0000-7000-8000-000000000001"

	rec := postParse(t, s, `{"case":"x"}`, map[string]string{requestIDHeader: inbound})
	assert.Equal(t, inbound, rec.Header().Get(requestIDHeader))
	assert.Equal(t, inbound, parser.requests()[0].ReqID)

	rec = postParse(t, s, `{"case":"x"}`, map[string]string{requestIDHeader: "not-a-uuid"})
	assert.Equal(t, generatedID, rec.Header().Get(requestIDHeader))
}

func TestAPIKeyRequired(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k1", "k2"}}
	s := newTestServer(t, cfg, &fakeParser{}, nil)

	assert.Equal(t, http.StatusUnauthorized, postParse(t, s, `{"case":"x"}`, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, postParse(t, s, `{"case":"x"}`, map[string]string{apiKeyHeader: "k3"}).Code)
	assert.Equal(t, http.StatusOK, postParse(t, s, `{"case":"x"}`, map[string]string{apiKeyHeader: "k2"}).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/debug/status", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseRateLimitedPerClient(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.RateLimitPerMinute = 2
	s := newTestServer(t, cfg, &fakeParser{}, nil)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, postParse(t, s, `{"case":"x"}`, nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, postParse(t, s, `{"case":"x"}`, nil).Code)
	assert.Equal(t, http.StatusOK, postParse(t, s, `{"case":"x"}`, map[string]string{apiKeyHeader: "other"}).Code)
}

func TestClientLimiterForgetsIdleClients(t *testing.T) {
	t.Parallel()

	l := newClientLimiter(1, nil)
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	now = now.Add(limiterIdle + time.Second)
	assert.True(t, l.allow("b"))
	assert.Len(t, l.clients, 1)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig(), &fakeParser{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestDebugStatusReportsMode(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig(), &fakeParser{strict: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/debug/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		StrictMode struct {
			Enabled bool `json:"enabled"`
		} `json:"strict_mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.StrictMode.Enabled)
}

func TestDebugCache(t *testing.T) {
	t.Parallel()

	stats := fakeStats{st: cache.Stats{RawTotal: 3, RawStrict: 2, RawContaminated: 1, ResponseTotal: 4}}
	s := newTestServer(t, testConfig(), &fakeParser{}, stats)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/debug/cache", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		CacheInfo map[string]int `json:"cache_info"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.CacheInfo["total_entries"])
	assert.Equal(t, 2, got.CacheInfo["strict_mode_entries"])
	assert.Equal(t, 1, got.CacheInfo["contaminated_entries"])

	failing := newTestServer(t, testConfig(), &fakeParser{}, fakeStats{err: errors.New("disk")})
	rec = httptest.NewRecorder()
	failing.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/debug/cache", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	unconfigured := newTestServer(t, testConfig(), &fakeParser{}, nil)
	rec = httptest.NewRecorder()
	unconfigured.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/debug/cache", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig(), &fakeParser{}, nil)
	postParse(t, s, `{"case":"x"}`, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
