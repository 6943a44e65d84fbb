// Package docs projects entity state to a human-readable file tree and
// parses it back. The sync hash computed here is the sole content
// identity used by reconciliation.
package docs

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ComputeSyncHash digests an entity's user properties: underscore-prefixed
// temporal keys are stripped, the rest is canonicalized (stable key order,
// recursive) and hashed with SHA-1. Output is lowercase hex.
func ComputeSyncHash(props map[string]any) string {
	var buf bytes.Buffer
	writeCanonical(&buf, userProps(props))
	sum := sha1.Sum(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON renders props in the same canonical form the hash uses.
// Two property maps are considered deep-equal exactly when their
// canonical forms match.
func CanonicalJSON(props map[string]any) string {
	var buf bytes.Buffer
	writeCanonical(&buf, userProps(props))
	return buf.String()
}

// PropsEqual compares two property maps by canonical form, ignoring
// underscore-prefixed keys on both sides.
func PropsEqual(a, b map[string]any) bool {
	return CanonicalJSON(a) == CanonicalJSON(b)
}

func userProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// writeCanonical serializes v deterministically: map keys sorted, list
// order preserved, scalars via encoding/json (which collapses integral
// floats and ints to the same text).
func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
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
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	case map[any]any:
		// yaml.v2-style maps; normalize keys to strings.
		m := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				m[ks] = item
			}
		}
		writeCanonical(buf, m)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, _ := json.Marshal(item)
			buf.Write(b)
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(v)
		if err != nil {
			b, _ = json.Marshal(fmt.Sprint(v))
		}
		buf.Write(b)
	}
}
