// Package canon produces deterministic serializations and digests of
// structured payloads. Two payloads that mean the same thing hash the same
// regardless of field order, pointer sharing, or when they were produced;
// any semantic change produces a different digest.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// volatileFields are stripped at every nesting level before hashing.
// These are the fields that legitimately differ between two runs that
// computed the same thing. The list is maintained by hand: a new
// timestamp-like field on any hashed shape must be added here, nothing
// detects an omission.
var volatileFields = map[string]bool{
	"generated_at": true,
	"computed_at":  true,
	"created_at":   true,
	"updated_at":   true,
	"timestamp":    true,
	"elapsed_ms":   true,
	"request_id":   true,
}

// Canonicalize renders v as canonical JSON: object keys sorted, array order
// preserved, volatile fields removed, numeric literals untouched.
func Canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	// Round-trip through an untyped tree so struct tags, map key order and
	// pointer identity all collapse to plain values. UseNumber keeps numeric
	// literals verbatim instead of forcing them through float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonicalize decode: %w", err)
	}

	tree = stripVolatile(tree)

	// encoding/json sorts map keys, which is exactly the canonical order.
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("canonicalize encode: %w", err)
	}
	return out, nil
}

func stripVolatile(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			if volatileFields[k] {
				delete(t, k)
				continue
			}
			t[k] = stripVolatile(child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = stripVolatile(child)
		}
		return t
	default:
		return v
	}
}

// Hash digests the canonical form of v with SHA-256 and returns lowercase hex.
func Hash(v interface{}) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ShortDigest is the first 16 hex characters of Hash, for logs and filenames.
func ShortDigest(v interface{}) (string, error) {
	full, err := Hash(v)
	if err != nil {
		return "", err
	}
	return full[:16], nil
}
