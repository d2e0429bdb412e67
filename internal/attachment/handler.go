package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
)

var unsafeExt = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// scriptExts are server page suffixes, not file types.
var scriptExts = map[string]bool{"do": true, "jsp": true, "php": true, "asp": true, "aspx": true, "htm": true, "html": true}

// Downloader retrieves remote attachment payloads.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Config tunes the handler.
type Config struct {
	// BaseURL resolves relative attachment links.
	BaseURL string
	// FetchRemote downloads linked files; otherwise a JSON descriptor of
	// each candidate is stored.
	FetchRemote bool
}

// Handler persists attachment candidates under a per-case directory.
type Handler struct {
	cfg        Config
	store      auction.BlobStore
	downloader Downloader
	clock      auction.Clock
	logger     *zap.Logger
}

// NewHandler builds a Handler. downloader may be nil when FetchRemote is off.
func NewHandler(cfg Config, store auction.BlobStore, downloader Downloader, clock auction.Clock, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = auction.SystemClock{}
	}
	return &Handler{
		cfg:        cfg,
		store:      store,
		downloader: downloader,
		clock:      clock,
		logger:     logger.Named("attachment"),
	}
}

type descriptor struct {
	CaseKey    string    `json:"case_key"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Download stores every candidate. Any failure yields DOWNLOAD_FAIL with an
// empty list; partial results are never reported.
func (h *Handler) Download(
	ctx context.Context,
	key auction.CaseKey,
	candidates []auction.AttachmentCandidate,
) (auction.AttachmentState, []auction.SavedAttachment) {
	if len(candidates) == 0 {
		return auction.AttachmentNone, nil
	}
	if h.store == nil {
		h.logger.Warn("no attachment store configured", zap.String("case_key", key.String()))
		return auction.AttachmentDownloadFail, nil
	}

	dir := key.PathSegment()
	saved := make([]auction.SavedAttachment, 0, len(candidates))
	for i, c := range candidates {
		data, contentType, ext, err := h.payload(ctx, key, c)
		if err != nil {
			h.logger.Warn("attachment download failed",
				zap.String("case_key", key.String()),
				zap.String("name", c.Name),
				zap.Error(err),
			)
			return auction.AttachmentDownloadFail, nil
		}
		objectPath := fmt.Sprintf("%s/attachment_%d%s", dir, i+1, ext)
		location, err := h.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
		if err != nil {
			h.logger.Warn("attachment store failed",
				zap.String("case_key", key.String()),
				zap.String("path", objectPath),
				zap.Error(err),
			)
			return auction.AttachmentDownloadFail, nil
		}
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("첨부파일_%d", i+1)
		}
		saved = append(saved, auction.SavedAttachment{Name: name, Saved: location})
	}
	h.logger.Info("attachments saved", zap.String("case_key", key.String()), zap.Int("count", len(saved)))
	return auction.AttachmentReady, saved
}

func (h *Handler) payload(
	ctx context.Context,
	key auction.CaseKey,
	c auction.AttachmentCandidate,
) ([]byte, string, string, error) {
	target := h.resolve(c.URL)
	if h.cfg.FetchRemote && target != "" {
		if h.downloader == nil {
			return nil, "", "", fmt.Errorf("no downloader configured")
		}
		data, contentType, err := h.downloader.Download(ctx, target)
		if err != nil {
			return nil, "", "", fmt.Errorf("download %s: %w", target, err)
		}
		return data, contentType, extension(c.Name, target), nil
	}

	data, err := json.Marshal(descriptor{
		CaseKey:    key.String(),
		Name:       c.Name,
		URL:        target,
		RecordedAt: h.clock.Now(),
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("encode descriptor: %w", err)
	}
	return data, "application/json", ".json", nil
}

// resolve turns href into an absolute http(s) URL, or "" when it is not
// downloadable (anchors, javascript handlers).
func (h *Handler) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		base, err := url.Parse(h.cfg.BaseURL)
		if err != nil || h.cfg.BaseURL == "" {
			return ""
		}
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func extension(name, target string) string {
	for _, candidate := range []string{path.Ext(name), urlExt(target)} {
		ext := unsafeExt.ReplaceAllString(strings.TrimPrefix(candidate, "."), "")
		ext = strings.ToLower(ext)
		if ext != "" && len(ext) <= 5 && !scriptExts[ext] {
			return "." + ext
		}
	}
	return ".bin"
}

func urlExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}
