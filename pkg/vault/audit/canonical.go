package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// The hash chain covers a canonical serialization: object keys sorted
// recursively, arrays kept in order, no insignificant whitespace. Any
// serialization with unstable field order would make the chain
// non-reproducible across appends and verifications.

// canonicalJSON renders a decoded JSON value canonically.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeCanonicalString(buf, val)
	case json.Number:
		buf.WriteString(val.String())
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
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
	default:
		return fmt.Errorf("cannot canonicalize value of type %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline; strip it to keep entries single-line.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// decodeValue parses JSON preserving integer literals exactly.
func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// entryValue converts an entry to its decoded-value form, the input shape
// canonicalJSON operates on.
func entryValue(e *Entry) (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("entry did not decode to an object")
	}
	return m, nil
}

// ComputeEntryHash returns the SHA-256 hex digest of the entry's canonical
// serialization with the entry_hash field omitted.
func ComputeEntryHash(e *Entry) (string, error) {
	m, err := entryValue(e)
	if err != nil {
		return "", err
	}
	delete(m, "entry_hash")
	return hashValue(m)
}

// hashValue digests an already-decoded JSON value canonically.
func hashValue(v any) (string, error) {
	canonical, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// marshalEntryLine renders the complete entry, digest included, as the
// canonical single-line form written to the ledger.
func marshalEntryLine(e *Entry) ([]byte, error) {
	m, err := entryValue(e)
	if err != nil {
		return nil, err
	}
	return canonicalJSON(m)
}
