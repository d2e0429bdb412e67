package auction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Namespace discriminates the two case key shapes.
type Namespace string

// Case key namespaces.
const (
	NamespaceCase  Namespace = "case"
	NamespaceOnbid Namespace = "onbid"
)

var (
	caseNumberPattern = regexp.MustCompile(`^\d{4}-\d{5}-\d{3}$`)
	internalIDPattern = regexp.MustCompile(`^\d+$`)
	pathUnsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// CaseKey is the canonical identifier of one listing. The zero value means
// "no key"; a non-zero CaseKey is always well formed.
type CaseKey struct {
	ns Namespace
	id string
}

// IsCaseNumber reports whether s has the exact NNNN-NNNNN-NNN shape.
func IsCaseNumber(s string) bool {
	return caseNumberPattern.MatchString(s)
}

// IsInternalID reports whether s is a bare run of digits.
func IsInternalID(s string) bool {
	return internalIDPattern.MatchString(s)
}

// CaseNumberKey builds a case:<number> key. Hyphens are kept verbatim.
func CaseNumberKey(caseNo string) (CaseKey, bool) {
	if !IsCaseNumber(caseNo) {
		return CaseKey{}, false
	}
	return CaseKey{ns: NamespaceCase, id: caseNo}, true
}

// InternalIDKey builds an onbid:<id> key.
func InternalIDKey(id string) (CaseKey, bool) {
	if !IsInternalID(id) {
		return CaseKey{}, false
	}
	return CaseKey{ns: NamespaceOnbid, id: id}, true
}

// ParseCaseKey parses the string form produced by String.
func ParseCaseKey(s string) (CaseKey, error) {
	ns, id, ok := strings.Cut(s, ":")
	if !ok {
		return CaseKey{}, fmt.Errorf("case key %q has no namespace", s)
	}
	var (
		key   CaseKey
		valid bool
	)
	switch Namespace(ns) {
	case NamespaceCase:
		key, valid = CaseNumberKey(id)
	case NamespaceOnbid:
		key, valid = InternalIDKey(id)
	default:
		return CaseKey{}, fmt.Errorf("unknown case key namespace %q", ns)
	}
	if !valid {
		return CaseKey{}, fmt.Errorf("malformed case key %q", s)
	}
	return key, nil
}

// IsZero reports whether the key is absent.
func (k CaseKey) IsZero() bool {
	return k.ns == ""
}

// Namespace returns the key namespace.
func (k CaseKey) Namespace() Namespace {
	return k.ns
}

// ID returns the key without its namespace prefix.
func (k CaseKey) ID() string {
	return k.id
}

func (k CaseKey) String() string {
	if k.IsZero() {
		return ""
	}
	return string(k.ns) + ":" + k.id
}

// PathSegment returns a filesystem and object-store safe directory name.
func (k CaseKey) PathSegment() string {
	if k.IsZero() {
		return "unknown"
	}
	return pathUnsafeChars.ReplaceAllString(string(k.ns)+"_"+k.id, "_")
}

// MarshalJSON encodes the key as a string, or null when absent.
func (k CaseKey) MarshalJSON() ([]byte, error) {
	if k.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts null or the string form.
func (k *CaseKey) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode case key: %w", err)
	}
	if raw == nil || *raw == "" {
		*k = CaseKey{}
		return nil
	}
	parsed, err := ParseCaseKey(*raw)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
