// Package pipeline orchestrates one resolution: normalize, reuse or fetch,
// validate, extract, attachments and finalize. Parse always returns a
// complete result.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/attachment"
	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/cache"
	"github.com/JakeFAU/onbid-case-resolver/internal/casekey"
	"github.com/JakeFAU/onbid-case-resolver/internal/extract"
	"github.com/JakeFAU/onbid-case-resolver/internal/metrics"
	"github.com/JakeFAU/onbid-case-resolver/internal/resolver"
	"github.com/JakeFAU/onbid-case-resolver/internal/validator"
)

const (
	mismatchHint       = "입력 사건과 응답 사건이 다릅니다"
	attachmentNoneNote = "입찰준비중: 첨부 미게시(정상 케이스일 수 있음)"
)

// Resolver locates the detail document for a key.
type Resolver interface {
	Resolve(ctx context.Context, key auction.CaseKey, kind auction.SourceKind) resolver.Resolution
}

// Cache is the two-tier cache used between requests.
type Cache interface {
	LoadRaw(key auction.CaseKey, strict bool) (cache.RawEntry, bool)
	SaveRaw(key auction.CaseKey, url, content string, strict bool) error
	LoadResponse(key auction.CaseKey, strict bool) (auction.Result, bool)
	SaveResponse(key auction.CaseKey, result auction.Result, strict bool) error
}

// Attachments persists detected attachment candidates.
type Attachments interface {
	Download(ctx context.Context, key auction.CaseKey, candidates []auction.AttachmentCandidate) (auction.AttachmentState, []auction.SavedAttachment)
}

// Fallback supplies substitute documents in relaxed mode.
type Fallback interface {
	Synthesize(key auction.CaseKey) (string, bool)
}

// FallbackFunc adapts a function to Fallback.
type FallbackFunc func(key auction.CaseKey) (string, bool)

// Synthesize calls f.
func (f FallbackFunc) Synthesize(key auction.CaseKey) (string, bool) {
	return f(key)
}

// Deps are the collaborators of a Service. Only Resolver is required.
type Deps struct {
	Resolver    Resolver
	Cache       Cache
	Attachments Attachments
	// Fallback is never consulted in strict mode.
	Fallback  Fallback
	Recorder  auction.ResultRecorder
	IDs       auction.IDGenerator
	Clock     auction.Clock
	Extractor *extract.Extractor
	Logger    *zap.Logger
}

// Service runs the resolution pipeline.
type Service struct {
	strict    bool
	deps      Deps
	validator *validator.Validator
	logger    *zap.Logger
}

// New builds a Service for the given execution mode.
func New(strict bool, deps Deps) (*Service, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("pipeline: resolver is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = auction.SystemClock{}
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(deps.Logger)
	}
	return &Service{
		strict:    strict,
		deps:      deps,
		validator: validator.New(strict, deps.Logger),
		logger:    deps.Logger.Named("pipeline"),
	}, nil
}

// Strict reports the execution mode.
func (s *Service) Strict() bool {
	return s.strict
}

// document is the input of the extract stage.
type document struct {
	body        string
	url         string
	status      int
	discovered  string
	synthesized bool
	// fresh documents were fetched by this request and are archived.
	fresh bool
}

// Parse resolves one request. Unexpected faults become UNKNOWN.
func (s *Service) Parse(ctx context.Context, req auction.Request) (result auction.Result) {
	reqID := req.ReqID
	if reqID == "" {
		reqID = s.newRequestID()
	}
	norm := casekey.Normalize(req.Raw)
	logger := s.logger.With(
		zap.String("req_id", reqID),
		zap.String("case_key", norm.Key.String()),
		zap.String("source", string(norm.Kind)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
			result = s.failure(reqID, norm, auction.ErrUnknown, document{})
			s.report(ctx, result)
		}
	}()

	result = s.run(ctx, reqID, norm, req.Force, logger)
	return result
}

func (s *Service) run(ctx context.Context, reqID string, norm casekey.Normalized, force bool, logger *zap.Logger) auction.Result {
	if norm.Kind == auction.SourceInvalid {
		doc, ok := s.fallback(norm.Key)
		if !ok {
			res := s.failure(reqID, norm, auction.ErrInvalidInput, document{})
			s.report(ctx, res)
			return res
		}
		return s.complete(ctx, reqID, norm, doc, logger)
	}

	if !force && s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.LoadResponse(norm.Key, s.strict); ok {
			logger.Info("response cache hit")
			cached.ReqID = reqID
			cached.Debug.Cached = true
			metrics.ObserveResolution(string(cached.Status), string(cached.ErrorCode))
			return cached
		}
	}

	doc, code := s.acquire(ctx, norm, force, logger)
	if code != "" {
		res := s.failure(reqID, norm, code, doc)
		s.cacheResult(norm.Key, res, logger)
		s.report(ctx, res)
		return res
	}

	if !doc.synthesized {
		if reason := s.validator.RejectReason(doc.body); reason != "" {
			logger.Warn("document rejected", zap.String("reason", reason), zap.String("url", doc.url))
			substitute, ok := s.fallback(norm.Key)
			if !ok {
				res := s.failure(reqID, norm, auction.ErrParseEmpty, doc)
				s.report(ctx, res)
				return res
			}
			substitute.status = doc.status
			doc = substitute
		}
	}

	if doc.fresh && s.deps.Cache != nil {
		if err := s.deps.Cache.SaveRaw(norm.Key, doc.url, doc.body, s.strict); err != nil {
			logger.Warn("raw archive write failed", zap.Error(err))
		}
	}
	return s.complete(ctx, reqID, norm, doc, logger)
}

// acquire returns the detail document from the raw archive or the
// upstream. A non-empty code reports why none could be obtained.
func (s *Service) acquire(ctx context.Context, norm casekey.Normalized, force bool, logger *zap.Logger) (document, auction.ErrorCode) {
	if !force && s.deps.Cache != nil {
		if entry, ok := s.deps.Cache.LoadRaw(norm.Key, s.strict); ok {
			logger.Info("raw archive hit", zap.String("url", entry.URL))
			return document{body: entry.Content, url: entry.URL}, ""
		}
	}

	res := s.deps.Resolver.Resolve(ctx, norm.Key, norm.Kind)
	doc := document{
		body:       res.Outcome.Body,
		url:        res.LastURL,
		status:     res.Outcome.Status,
		discovered: res.DiscoveredID,
		fresh:      true,
	}
	if res.Outcome.OK() {
		return doc, ""
	}
	logger.Warn("resolution failed", zap.String("error_code", string(res.Outcome.Err)), zap.String("url", res.LastURL))
	if substitute, ok := s.fallback(norm.Key); ok {
		substitute.status = doc.status
		substitute.discovered = doc.discovered
		return substitute, ""
	}
	doc.body = ""
	return doc, res.Outcome.Err
}

// fallback consults the allow-list. Strict mode never does.
func (s *Service) fallback(key auction.CaseKey) (document, bool) {
	if s.strict || s.deps.Fallback == nil {
		return document{}, false
	}
	body, ok := s.deps.Fallback.Synthesize(key)
	if !ok {
		return document{}, false
	}
	s.logger.Info("using verified listing", zap.String("case_key", key.String()))
	return document{body: body, synthesized: true}, true
}

func (s *Service) complete(ctx context.Context, reqID string, norm casekey.Normalized, doc document, logger *zap.Logger) auction.Result {
	ext := s.deps.Extractor.Extract(doc.body)
	res := s.base(reqID, norm, doc)
	res.Record = ext.Record
	res.Flags = ext.Flags
	if res.CaseNo == nil && ext.CaseNo != "" {
		res.CaseNo = auction.Ptr(ext.CaseNo)
	}

	state, candidates := attachment.Detect(doc.body)
	res.AttachmentState = state
	if state == auction.AttachmentReady {
		res.AttachmentState, res.Attachments = s.download(ctx, norm.Key, candidates)
	}

	res.Mismatch = casekey.DetectMismatch(mismatchSubject(norm), ext.CaseNo, ext.InternalID, norm.Key)
	s.finalize(&res)
	logger.Info("resolution complete",
		zap.String("status", string(res.Status)),
		zap.String("error_code", string(res.ErrorCode)),
		zap.Int("extracted_keys", res.ExtractedKeys),
		zap.Bool("mismatch", res.Mismatch),
		zap.Bool("synthesized", doc.synthesized),
	)
	s.cacheResult(norm.Key, res, logger)
	s.report(ctx, res)
	return res
}

func (s *Service) download(ctx context.Context, key auction.CaseKey, candidates []auction.AttachmentCandidate) (auction.AttachmentState, []auction.SavedAttachment) {
	if s.deps.Attachments == nil {
		s.logger.Warn("attachments detected but no handler configured", zap.String("case_key", key.String()))
		return auction.AttachmentDownloadFail, nil
	}
	return s.deps.Attachments.Download(ctx, key, candidates)
}

// finalize derives status, error code and hint from the filled result.
func (s *Service) finalize(res *auction.Result) {
	res.ExtractedKeys = res.KeyCount()
	res.Status = auction.StatusPending
	if res.ExtractedKeys >= auction.OKThreshold {
		res.Status = auction.StatusOK
	}

	switch {
	case res.AttachmentState == auction.AttachmentNone:
		res.ErrorCode = auction.ErrAttachmentNone
		res.Notes = auction.Ptr(attachmentNoneNote)
	case res.AttachmentState == auction.AttachmentDownloadFail:
		res.ErrorCode = auction.ErrAttachmentDownloadFail
	case res.ExtractedKeys < auction.OKThreshold:
		res.ErrorCode = auction.ErrParseEmpty
	}

	switch {
	case res.Mismatch:
		res.ErrorHint = auction.Ptr(mismatchHint)
	case res.ErrorCode != "":
		res.ErrorHint = auction.Ptr(auction.Hint(res.ErrorCode))
	}
	res.CompletedAt = s.deps.Clock.Now()
}

func (s *Service) base(reqID string, norm casekey.Normalized, doc document) auction.Result {
	res := auction.Result{
		ReqID:           reqID,
		Status:          auction.StatusPending,
		RequestedCase:   norm.Requested,
		CaseKey:         norm.Key,
		CaseNo:          norm.CaseNo,
		SourceHint:      norm.Kind,
		AttachmentState: auction.AttachmentNone,
		Attachments:     []auction.SavedAttachment{},
		Debug: auction.Debug{
			Source:       norm.Kind,
			LastURL:      doc.url,
			DiscoveredID: doc.discovered,
			Synthesized:  doc.synthesized,
		},
	}
	if doc.status != 0 {
		res.Debug.HTTPStatus = auction.Ptr(doc.status)
	}
	return res
}

// failure builds the terminal result for code with every field null.
func (s *Service) failure(reqID string, norm casekey.Normalized, code auction.ErrorCode, doc document) auction.Result {
	res := s.base(reqID, norm, doc)
	res.ErrorCode = code
	res.ErrorHint = auction.Ptr(auction.Hint(code))
	res.CompletedAt = s.deps.Clock.Now()
	return res
}

// cacheResult stores successful, minor-error and blocking outcomes.
func (s *Service) cacheResult(key auction.CaseKey, res auction.Result, logger *zap.Logger) {
	if s.deps.Cache == nil || key.IsZero() {
		return
	}
	if res.ErrorCode != "" && res.ErrorCode != auction.ErrAttachmentNone && !res.ErrorCode.IsBlocking() {
		return
	}
	if err := s.deps.Cache.SaveResponse(key, res, s.strict); err != nil {
		logger.Warn("response cache write failed", zap.Error(err))
	}
}

func (s *Service) report(ctx context.Context, res auction.Result) {
	metrics.ObserveResolution(string(res.Status), string(res.ErrorCode))
	if s.deps.Recorder == nil {
		return
	}
	if err := s.deps.Recorder.RecordResult(ctx, res); err != nil {
		s.logger.Warn("result record failed", zap.String("req_id", res.ReqID), zap.Error(err))
	}
}

func (s *Service) newRequestID() string {
	if s.deps.IDs == nil {
		return ""
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Warn("request id generation failed", zap.Error(err))
		return ""
	}
	return id
}

// mismatchSubject is the identifier compared against the document: the
// trimmed input for case numbers, the key for links.
func mismatchSubject(norm casekey.Normalized) string {
	if norm.Kind == auction.SourceURL {
		return norm.Key.String()
	}
	return strings.TrimSpace(norm.Requested)
}
