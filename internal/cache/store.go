// Package cache persists fetched documents (raw archive) and finalized
// results (response cache) per case key, isolated by execution mode.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/metrics"
)

// Defaults for response cache expiry.
const (
	DefaultTTL      = 6 * time.Hour
	DefaultBlockTTL = 10 * time.Minute
)

const (
	tierRaw      = "raw"
	tierResponse = "response"
	entryExt     = ".json"
)

// Config locates the two cache tiers.
type Config struct {
	RawDir      string
	ResponseDir string
	// TTL is the response cache lifetime; BlockTTL applies to results that
	// report a blocking error.
	TTL      time.Duration
	BlockTTL time.Duration
}

// RawEntry is one archived upstream document.
type RawEntry struct {
	CaseKey     string    `json:"case_key"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	Digest      string    `json:"digest"`
	SavedAt     time.Time `json:"saved_at"`
	StrictMode  bool      `json:"strict_mode"`
	MockBlocked bool      `json:"mock_blocked"`
}

// strictSafe reports whether a strict reader may reuse the entry.
func (e RawEntry) strictSafe() bool {
	return e.StrictMode && e.MockBlocked
}

type responseEntry struct {
	Result     auction.Result `json:"result"`
	SavedAt    time.Time      `json:"saved_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	StrictMode bool           `json:"strict_mode"`
}

// Stats summarizes cache contents.
type Stats struct {
	RawTotal         int `json:"raw_total"`
	RawStrict        int `json:"raw_strict"`
	RawContaminated  int `json:"raw_contaminated"`
	ResponseTotal    int `json:"response_total"`
	ResponseExpired  int `json:"response_expired"`
	ResponseUnusable int `json:"response_unusable"`
}

// Store owns all persisted cache entries.
type Store struct {
	cfg    Config
	clock  auction.Clock
	locks  *keyedLocks
	logger *zap.Logger
}

// New creates the cache directories and returns a Store.
func New(cfg Config, clock auction.Clock, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.RawDir) == "" || strings.TrimSpace(cfg.ResponseDir) == "" {
		return nil, fmt.Errorf("cache: raw and response directories are required")
	}
	for _, dir := range []string{cfg.RawDir, cfg.ResponseDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("cache: create %s: %w", dir, err)
		}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BlockTTL <= 0 {
		cfg.BlockTTL = DefaultBlockTTL
	}
	if clock == nil {
		clock = auction.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cfg: cfg, clock: clock, locks: newKeyedLocks(), logger: logger.Named("cache")}, nil
}

// SaveRaw archives content for key, replacing any previous entry. Entries
// written under strict mode carry both strict markers.
func (s *Store) SaveRaw(key auction.CaseKey, url, content string, strict bool) error {
	if key.IsZero() {
		return fmt.Errorf("cache: raw archive requires a case key")
	}
	entry := RawEntry{
		CaseKey:     key.String(),
		URL:         url,
		Content:     content,
		Digest:      digest(content),
		SavedAt:     s.clock.Now(),
		StrictMode:  strict,
		MockBlocked: strict,
	}
	release := s.locks.lock(tierRaw + "|" + key.String())
	defer release()
	return writeJSON(s.rawPath(key), entry)
}

// LoadRaw returns the archived document for key. A strict reader never
// sees entries that lack the strict markers; a corrupt entry is a miss.
func (s *Store) LoadRaw(key auction.CaseKey, strict bool) (RawEntry, bool) {
	entry, ok := s.loadRaw(key, strict)
	metrics.ObserveCacheLookup(tierRaw, ok)
	return entry, ok
}

func (s *Store) loadRaw(key auction.CaseKey, strict bool) (RawEntry, bool) {
	if key.IsZero() {
		return RawEntry{}, false
	}
	release := s.locks.lock(tierRaw + "|" + key.String())
	defer release()

	var entry RawEntry
	if err := readJSON(s.rawPath(key), &entry); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("unreadable raw entry", zap.String("case_key", key.String()), zap.Error(err))
		}
		return RawEntry{}, false
	}
	if entry.CaseKey != key.String() || entry.Digest != digest(entry.Content) {
		s.logger.Warn("raw entry failed integrity check", zap.String("case_key", key.String()))
		return RawEntry{}, false
	}
	if strict && !entry.strictSafe() {
		s.logger.Info("raw entry rejected for strict reader", zap.String("case_key", key.String()))
		return RawEntry{}, false
	}
	return entry, true
}

// SaveResponse caches a finalized result. Blocking results expire after
// BlockTTL instead of TTL.
func (s *Store) SaveResponse(key auction.CaseKey, result auction.Result, strict bool) error {
	if key.IsZero() {
		return fmt.Errorf("cache: response cache requires a case key")
	}
	now := s.clock.Now()
	ttl := s.cfg.TTL
	if result.ErrorCode.IsBlocking() {
		ttl = s.cfg.BlockTTL
	}
	entry := responseEntry{Result: result, SavedAt: now, ExpiresAt: now.Add(ttl), StrictMode: strict}
	release := s.locks.lock(tierResponse + "|" + key.String())
	defer release()
	return writeJSON(s.responsePath(key), entry)
}

// LoadResponse returns a live cached result for key. Expired, unreadable
// or other-mode entries are misses.
func (s *Store) LoadResponse(key auction.CaseKey, strict bool) (auction.Result, bool) {
	res, ok := s.loadResponse(key, strict)
	metrics.ObserveCacheLookup(tierResponse, ok)
	return res, ok
}

func (s *Store) loadResponse(key auction.CaseKey, strict bool) (auction.Result, bool) {
	if key.IsZero() {
		return auction.Result{}, false
	}
	release := s.locks.lock(tierResponse + "|" + key.String())
	defer release()

	var entry responseEntry
	if err := readJSON(s.responsePath(key), &entry); err != nil {
		return auction.Result{}, false
	}
	if entry.StrictMode != strict {
		return auction.Result{}, false
	}
	if !s.clock.Now().Before(entry.ExpiresAt) {
		return auction.Result{}, false
	}
	return entry.Result, true
}

// Stats scans both tiers.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	rawFiles, err := listEntries(s.cfg.RawDir)
	if err != nil {
		return Stats{}, err
	}
	for _, file := range rawFiles {
		st.RawTotal++
		var entry RawEntry
		if readJSON(file, &entry) != nil || entry.Digest != digest(entry.Content) {
			st.RawContaminated++
			continue
		}
		if entry.strictSafe() {
			st.RawStrict++
		} else {
			st.RawContaminated++
		}
	}

	respFiles, err := listEntries(s.cfg.ResponseDir)
	if err != nil {
		return Stats{}, err
	}
	now := s.clock.Now()
	for _, file := range respFiles {
		st.ResponseTotal++
		var entry responseEntry
		if readJSON(file, &entry) != nil {
			st.ResponseUnusable++
			continue
		}
		if !now.Before(entry.ExpiresAt) {
			st.ResponseExpired++
		}
	}
	return st, nil
}

func (s *Store) rawPath(key auction.CaseKey) string {
	return filepath.Join(s.cfg.RawDir, key.PathSegment()+entryExt)
}

func (s *Store) responsePath(key auction.CaseKey) string {
	return filepath.Join(s.cfg.ResponseDir, key.PathSegment()+entryExt)
}

func digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func listEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entryExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func readJSON(path string, v any) error {
	// #nosec G304 -- paths are built from sanitized case keys.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically: a reader sees the old entry or the
// complete new one.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
