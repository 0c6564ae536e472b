package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Keyer derives the exact-match fingerprint of a query.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a fingerprint from a namespace and a query value.
	Key(namespace string, input any) (string, error)
}

// DefaultKeyer generates SHA-256 based fingerprints.
type DefaultKeyer struct {
	// Normalize folds case and collapses whitespace in string inputs
	// before hashing, so trivially different prompts share a fingerprint.
	Normalize bool
}

// NewDefaultKeyer creates a keyer that hashes inputs verbatim.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// NewNormalizingKeyer creates a keyer that normalizes string inputs.
func NewNormalizingKeyer() *DefaultKeyer {
	return &DefaultKeyer{Normalize: true}
}

// Key generates a deterministic fingerprint.
// Format: cache:<namespace>:<hash>
// where hash is the first 16 characters of SHA-256(canonical JSON(input)).
func (k *DefaultKeyer) Key(namespace string, input any) (string, error) {
	if s, ok := input.(string); ok && k.Normalize {
		input = normalizeText(s)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, input); err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return "cache:" + namespace + ":" + hex.EncodeToString(hash[:8]), nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// writeCanonical writes a deterministic JSON encoding of v.
// Map keys are sorted; slice order is preserved.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil

	case map[string]any:
		keys := make([]string, 0, len(val))
		for key := range val {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[key]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		return writeJSON(buf, v)
	}
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

var _ Keyer = (*DefaultKeyer)(nil)
