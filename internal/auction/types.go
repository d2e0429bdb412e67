package auction

import "time"

// SourceKind describes how an identifier was recognized.
type SourceKind string

// Source kinds reported in results.
const (
	SourceURL     SourceKind = "url"
	SourceCase    SourceKind = "case"
	SourceInvalid SourceKind = "invalid"
)

// Status is the coarse result classification.
type Status string

// Result statuses.
const (
	StatusOK      Status = "ok"
	StatusPending Status = "pending"
)

// OKThreshold is the minimum extracted key count for StatusOK.
const OKThreshold = 8

// AttachmentState tracks supplementary file availability.
type AttachmentState string

// Attachment states.
const (
	AttachmentNone         AttachmentState = "NONE"
	AttachmentReady        AttachmentState = "READY"
	AttachmentDownloadFail AttachmentState = "DOWNLOAD_FAIL"
)

// Request is one inbound resolution request.
type Request struct {
	Raw   string
	Force bool
	// ReqID is used as the result id when set; otherwise one is generated.
	ReqID string
}

// FetchOutcome is the result of one logical GET. Err is empty exactly when
// Body holds a usable document.
type FetchOutcome struct {
	URL    string
	Body   string
	Status int
	Err    ErrorCode
}

// OK reports whether the outcome carries a document.
func (o FetchOutcome) OK() bool {
	return o.Err == ""
}

// Record holds the structured fields extracted from a listing document.
// Every field is independently optional.
type Record struct {
	AssetType      *string  `json:"asset_type"`
	UseType        *string  `json:"use_type"`
	Address        *string  `json:"address"`
	AppraisalPrice *float64 `json:"appraisal_price"`
	MinBidPrice    *float64 `json:"min_bid_price"`
	Round          *int     `json:"round"`
	BuildingAreaM2 *float64 `json:"building_area_m2"`
	LandAreaM2     *float64 `json:"land_area_m2"`
	LandRight      *bool    `json:"land_right"`
	DutyDeadline   *string  `json:"duty_deadline"`
	RawTextSnippet *string  `json:"raw_text_snippet"`
}

// KeyCount counts the non-null data fields. The raw text snippet is
// diagnostic and not counted.
func (r Record) KeyCount() int {
	count := 0
	for _, set := range []bool{
		r.AssetType != nil,
		r.UseType != nil,
		r.Address != nil,
		r.AppraisalPrice != nil,
		r.MinBidPrice != nil,
		r.Round != nil,
		r.BuildingAreaM2 != nil,
		r.LandAreaM2 != nil,
		r.LandRight != nil,
		r.DutyDeadline != nil,
	} {
		if set {
			count++
		}
	}
	return count
}

// FlagSet holds the risk flags detected in a listing.
type FlagSet struct {
	ShareOnly     bool `json:"share_only"`
	NoLandRight   bool `json:"no_land_right"`
	BuildingOnly  bool `json:"building_only"`
	VATApplicable bool `json:"vat_applicable"`
	SpecialTerms  bool `json:"special_terms"`
}

// AttachmentCandidate is a supplementary file referenced by a document.
type AttachmentCandidate struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// SavedAttachment is a persisted attachment.
type SavedAttachment struct {
	Name  string `json:"name"`
	Saved string `json:"saved"`
}

// Debug carries diagnostics about how a result was produced.
type Debug struct {
	Source       SourceKind `json:"source"`
	HTTPStatus   *int       `json:"http_status"`
	LastURL      string     `json:"last_url"`
	DiscoveredID string     `json:"discovered_id,omitempty"`
	Cached       bool       `json:"cached,omitempty"`
	Synthesized  bool       `json:"synthesized,omitempty"`
}

// Result is the complete structured outcome of one resolution.
type Result struct {
	ReqID         string     `json:"req_id"`
	Status        Status     `json:"status"`
	RequestedCase string     `json:"requested_case"`
	CaseKey       CaseKey    `json:"case_key"`
	CaseNo        *string    `json:"case_no"`
	SourceHint    SourceKind `json:"source_hint"`
	Mismatch      bool       `json:"mismatch"`
	Record
	Flags           FlagSet           `json:"flags"`
	Attachments     []SavedAttachment `json:"attachments"`
	AttachmentState AttachmentState   `json:"attachment_state"`
	Notes           *string           `json:"notes"`
	ExtractedKeys   int               `json:"extracted_keys"`
	ErrorCode       ErrorCode         `json:"error_code"`
	ErrorHint       *string           `json:"error_hint"`
	Debug           Debug             `json:"debug"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
