package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/onbid-case-resolver/internal/attachment"
	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/cache"
	"github.com/JakeFAU/onbid-case-resolver/internal/knowncases"
	"github.com/JakeFAU/onbid-case-resolver/internal/resolver"
	"github.com/JakeFAU/onbid-case-resolver/internal/storage/memory"
)

type stubResolver struct {
	mu    sync.Mutex
	res   resolver.Resolution
	panic bool
	calls int
}

func (r *stubResolver) Resolve(context.Context, auction.CaseKey, auction.SourceKind) resolver.Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.panic {
		panic("boom")
	}
	return r.res
}

func (r *stubResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type spyFallback struct {
	mu    sync.Mutex
	calls int
}

func (f *spyFallback) Synthesize(key auction.CaseKey) (string, bool) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return knowncases.Synthesize(key)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("req-%d", g.n), nil
}

type recorderSpy struct {
	mu      sync.Mutex
	results []auction.Result
	err     error
}

func (r *recorderSpy) RecordResult(_ context.Context, res auction.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func failed(code auction.ErrorCode) resolver.Resolution {
	return resolver.Resolution{
		Outcome: auction.FetchOutcome{Err: code, Status: 404},
		LastURL: "https://auction.test/last",
	}
}

// listingDoc is a genuine relaxed-mode detail document.
func listingDoc(caseNo, id string, withAttachments bool) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>압류재산 매각 공고</h1><table>")
	rows := [][2]string{
		{"사건번호", caseNo},
		{"자산구분", "압류재산"},
		{"용도", "아파트"},
		{"소재지", "서울특별시 강남구 역삼동 123-4"},
		{"감정가격", "3억 5,000만원"},
		{"최저입찰가격", "280,000,000원"},
		{"입찰차수", "2회차"},
		{"건물면적", "84.97㎡"},
		{"토지면적", "30.12㎡"},
		{"대지권", "있음"},
		{"대금납부기한", "2024-07-31"},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>", r[0], r[1])
	}
	b.WriteString("</table>")
	fmt.Fprintf(&b, `<a href="/detail.do?cltrNo=%s">상세</a>`, id)
	if withAttachments {
		b.WriteString(`<table><tr><th>첨부파일</th></tr><tr><td>감정평가서.pdf</td><td><a href="/files/appraisal.pdf">감정평가서.pdf</a></td></tr></table>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newService(t *testing.T, strict bool, deps Deps) *Service {
	t.Helper()
	if deps.IDs == nil {
		deps.IDs = &seqIDs{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	}
	svc, err := New(strict, deps)
	require.NoError(t, err)
	return svc
}

func newCache(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := cache.New(cache.Config{
		RawDir:      filepath.Join(dir, "raw"),
		ResponseDir: filepath.Join(dir, "resp"),
	}, nil, nil)
	require.NoError(t, err)
	return store
}

func TestNewRequiresResolver(t *testing.T) {
	t.Parallel()
	_, err := New(true, Deps{})
	require.Error(t, err)
}

func TestStrictModeNeverConsultsFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		res   resolver.Resolution
		want  auction.ErrorCode
	}{
		{name: "exhausted verified case", input: "2024-05180-001", res: failed(auction.ErrRemoteHTTP), want: auction.ErrRemoteHTTP},
		{name: "invalid input", input: "not a case", want: auction.ErrInvalidInput},
		{name: "blocked", input: "onbid:1234567", res: failed(auction.ErrRemoteHTTP403), want: auction.ErrRemoteHTTP403},
		{name: "rejected document", input: "2024-01774-006",
			res: resolver.Resolution{Outcome: auction.FetchOutcome{Status: 200, Body: "<html>검색결과가 없습니다</html>"}},
			want: auction.ErrParseEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			spy := &spyFallback{}
			svc := newService(t, true, Deps{Resolver: &stubResolver{res: tc.res}, Fallback: spy})

			res := svc.Parse(context.Background(), auction.Request{Raw: tc.input, Force: true})

			assert.Equal(t, tc.want, res.ErrorCode)
			assert.Equal(t, auction.StatusPending, res.Status)
			assert.Zero(t, spy.calls)
			assert.False(t, res.Debug.Synthesized)
		})
	}
}

func TestRelaxedModeUsesVerifiedListing(t *testing.T) {
	t.Parallel()

	spy := &spyFallback{}
	svc := newService(t, false, Deps{Resolver: &stubResolver{res: failed(auction.ErrRemoteHTTP)}, Fallback: spy})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})

	assert.Equal(t, 1, spy.calls)
	assert.True(t, res.Debug.Synthesized)
	assert.Equal(t, auction.StatusOK, res.Status)
	assert.False(t, res.Mismatch)
	require.NotNil(t, res.UseType)
	assert.Equal(t, "오피스텔", *res.UseType)
	assert.Equal(t, auction.ErrAttachmentNone, res.ErrorCode)
	require.NotNil(t, res.Notes)
	assert.Contains(t, *res.Notes, "입찰준비중")
}

func TestRelaxedModeUnknownCaseStillFails(t *testing.T) {
	t.Parallel()

	spy := &spyFallback{}
	svc := newService(t, false, Deps{Resolver: &stubResolver{res: failed(auction.ErrRemoteHTTP)}, Fallback: spy})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-99999-999"})

	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, auction.ErrRemoteHTTP, res.ErrorCode)
	assert.Equal(t, auction.StatusPending, res.Status)
	assert.Nil(t, res.AppraisalPrice)
}

func TestParseExtractsListingWithAttachments(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	handler := attachment.NewHandler(attachment.Config{BaseURL: "https://auction.test"}, blobs, nil, nil, nil)
	rec := &recorderSpy{}
	doc := listingDoc("2024-05180-001", "1234567", true)
	svc := newService(t, false, Deps{
		Resolver:    &stubResolver{res: resolver.Resolution{Outcome: auction.FetchOutcome{Status: 200, Body: doc}, LastURL: "https://auction.test/d", DiscoveredID: "1234567"}},
		Attachments: handler,
		Recorder:    rec,
	})

	res := svc.Parse(context.Background(), auction.Request{Raw: " 2024-05180-001 "})

	assert.Equal(t, "req-1", res.ReqID)
	assert.Equal(t, auction.StatusOK, res.Status)
	assert.Equal(t, 10, res.ExtractedKeys)
	assert.Empty(t, res.ErrorCode)
	assert.Nil(t, res.ErrorHint)
	assert.False(t, res.Mismatch)
	assert.Equal(t, auction.AttachmentReady, res.AttachmentState)
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "감정평가서.pdf", res.Attachments[0].Name)
	assert.Equal(t, auction.SourceCase, res.Debug.Source)
	require.NotNil(t, res.Debug.HTTPStatus)
	assert.Equal(t, 200, *res.Debug.HTTPStatus)
	assert.Equal(t, "1234567", res.Debug.DiscoveredID)
	require.NotNil(t, res.MinBidPrice)
	assert.InDelta(t, 280000000, *res.MinBidPrice, 0.5)
	require.Len(t, rec.results, 1)
	assert.Equal(t, "req-1", rec.results[0].ReqID)
}

func TestParseFlagsMismatch(t *testing.T) {
	t.Parallel()

	doc := listingDoc("2023-11111-222", "7654321", false)
	svc := newService(t, false, Deps{
		Resolver: &stubResolver{res: resolver.Resolution{Outcome: auction.FetchOutcome{Status: 200, Body: doc}}},
	})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})

	assert.True(t, res.Mismatch)
	require.NotNil(t, res.ErrorHint)
	assert.Equal(t, mismatchHint, *res.ErrorHint)
	assert.Equal(t, auction.ErrAttachmentNone, res.ErrorCode)
}

func TestParseURLInputMatchesByInternalID(t *testing.T) {
	t.Parallel()

	doc := listingDoc("2024-05180-001", "1234567", false)
	svc := newService(t, true, Deps{
		Resolver: &stubResolver{res: resolver.Resolution{Outcome: auction.FetchOutcome{Status: 200, Body: doc + strings.Repeat("<p>감정가 매각</p>", 1000)}}},
	})

	res := svc.Parse(context.Background(), auction.Request{Raw: "https://www.onbid.co.kr/op/cta/cltrdtl/collateralRealEstateDetail.do?cltrNo=1234567"})

	assert.Equal(t, auction.SourceURL, res.SourceHint)
	assert.Equal(t, "onbid:1234567", res.CaseKey.String())
	assert.False(t, res.Mismatch)
	require.NotNil(t, res.CaseNo)
	assert.Equal(t, "2024-05180-001", *res.CaseNo)
}

func TestParseUsesResponseCache(t *testing.T) {
	t.Parallel()

	store := newCache(t)
	stub := &stubResolver{res: resolver.Resolution{Outcome: auction.FetchOutcome{Status: 200, Body: listingDoc("2024-05180-001", "1", false)}}}
	svc := newService(t, false, Deps{Resolver: stub, Cache: store})

	first := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})
	require.Equal(t, auction.ErrAttachmentNone, first.ErrorCode)
	assert.False(t, first.Debug.Cached)

	second := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})
	assert.True(t, second.Debug.Cached)
	assert.Equal(t, "req-2", second.ReqID)
	assert.Equal(t, first.ExtractedKeys, second.ExtractedKeys)
	assert.Equal(t, 1, stub.Calls())

	forced := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001", Force: true})
	assert.False(t, forced.Debug.Cached)
	assert.Equal(t, 2, stub.Calls())
}

func TestParseReusesRawArchive(t *testing.T) {
	t.Parallel()

	store := newCache(t)
	key, _ := auction.CaseNumberKey("2024-05180-001")
	require.NoError(t, store.SaveRaw(key, "https://auction.test/archived", listingDoc("2024-05180-001", "1", false), false))

	stub := &stubResolver{res: failed(auction.ErrTimeout)}
	svc := newService(t, false, Deps{Resolver: stub, Cache: store})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})
	assert.Zero(t, stub.Calls())
	assert.Equal(t, "https://auction.test/archived", res.Debug.LastURL)
	assert.GreaterOrEqual(t, res.ExtractedKeys, auction.OKThreshold)
}

func TestStrictReaderIgnoresRelaxedArchive(t *testing.T) {
	t.Parallel()

	store := newCache(t)
	key, _ := auction.CaseNumberKey("2024-05180-001")
	require.NoError(t, store.SaveRaw(key, "u", listingDoc("2024-05180-001", "1", false), false))

	stub := &stubResolver{res: failed(auction.ErrTimeout)}
	svc := newService(t, true, Deps{Resolver: stub, Cache: store})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})
	assert.Equal(t, 1, stub.Calls())
	assert.Equal(t, auction.ErrTimeout, res.ErrorCode)
}

func TestParseArchivesFreshDocument(t *testing.T) {
	t.Parallel()

	store := newCache(t)
	doc := listingDoc("2024-05180-001", "1", false)
	svc := newService(t, false, Deps{
		Resolver: &stubResolver{res: resolver.Resolution{Outcome: auction.FetchOutcome{Status: 200, Body: doc}, LastURL: "https://auction.test/d"}},
		Cache:    store,
	})

	svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001", Force: true})

	key, _ := auction.CaseNumberKey("2024-05180-001")
	entry, ok := store.LoadRaw(key, false)
	require.True(t, ok)
	assert.Equal(t, doc, entry.Content)
	_, ok = store.LoadRaw(key, true)
	assert.False(t, ok)
}

func TestParseRecoversFromPanic(t *testing.T) {
	t.Parallel()

	rec := &recorderSpy{}
	svc := newService(t, true, Deps{Resolver: &stubResolver{panic: true}, Recorder: rec})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})

	assert.Equal(t, auction.ErrUnknown, res.ErrorCode)
	assert.Equal(t, auction.StatusPending, res.Status)
	require.NotNil(t, res.ErrorHint)
	assert.Len(t, rec.results, 1)
}

func TestRecorderErrorsDoNotChangeResult(t *testing.T) {
	t.Parallel()

	rec := &recorderSpy{err: errors.New("db down")}
	svc := newService(t, true, Deps{Resolver: &stubResolver{res: failed(auction.ErrRemoteHTTP404)}, Recorder: rec})

	res := svc.Parse(context.Background(), auction.Request{Raw: "onbid:42"})
	assert.Equal(t, auction.ErrRemoteHTTP404, res.ErrorCode)
}

func TestAttachmentsWithoutHandlerFail(t *testing.T) {
	t.Parallel()

	svc := newService(t, false, Deps{
		Resolver: &stubResolver{res: resolver.Resolution{Outcome: auction.FetchOutcome{Status: 200, Body: listingDoc("2024-05180-001", "1", true)}}},
	})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-05180-001"})
	assert.Equal(t, auction.AttachmentDownloadFail, res.AttachmentState)
	assert.Equal(t, auction.ErrAttachmentDownloadFail, res.ErrorCode)
	assert.Empty(t, res.Attachments)
}

func TestFinalizeLowKeyCount(t *testing.T) {
	t.Parallel()

	svc := newService(t, false, Deps{Resolver: &stubResolver{}})
	res := auction.Result{AttachmentState: auction.AttachmentReady}
	res.Address = auction.Ptr("서울특별시 중구")
	svc.finalize(&res)

	assert.Equal(t, 1, res.ExtractedKeys)
	assert.Equal(t, auction.StatusPending, res.Status)
	assert.Equal(t, auction.ErrParseEmpty, res.ErrorCode)
	require.NotNil(t, res.ErrorHint)
	assert.Equal(t, auction.Hint(auction.ErrParseEmpty), *res.ErrorHint)
}

func TestParseKeepsCallerRequestID(t *testing.T) {
	t.Parallel()

	rec := &recorderSpy{}
	svc := newService(t, true, Deps{Resolver: &stubResolver{res: failed(auction.ErrRemoteHTTP404)}, Recorder: rec})

	res := svc.Parse(context.Background(), auction.Request{Raw: "2024-99999-999", ReqID: "caller-7"})

	assert.Equal(t, "caller-7", res.ReqID)
	require.Len(t, rec.results, 1)
	assert.Equal(t, "caller-7", rec.results[0].ReqID)
}
