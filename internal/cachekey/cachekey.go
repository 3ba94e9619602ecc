// Package cachekey builds a deterministic fingerprint: a stable string
// key over an operation descriptor and an arbitrary parameter tree, such
// that any two structurally-equal trees (up to object key order) hash to
// the same key.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Operation identifies the tool call this key guards. OperationID is a
// pointer so a missing value canonicalizes to JSON null.
type Operation struct {
	Method      string
	Path        string
	OperationID *string
}

const prefix = "openapi-cache:v1"

// Build returns the cache key for (op, params). params may be any
// JSON-representable Go value: map[string]any, []any, string, number,
// bool, nil, time.Time, *big.Int, or a type implementing json.Marshaler.
//
// Panics are never used for ordinary malformed input; a circular
// structure, a NaN or infinite number, a failing json.Marshaler or an
// unsupported type is returned as an error.
func Build(op Operation, params interface{}) (string, error) {
	method := strings.ToUpper(op.Method)
	opID := "-"
	if op.OperationID != nil && *op.OperationID != "" {
		opID = *op.OperationID
	}

	envelope := map[string]interface{}{
		"operation": map[string]interface{}{
			"method":       method,
			"path":         op.Path,
			"operation_id": op.OperationID,
		},
		"params": params,
	}

	canon, err := canonicalize(envelope, make(map[uintptr]bool))
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(canon))
	return fmt.Sprintf("%s:%s:%s:%s:%s", prefix, method, op.Path, opID, hex.EncodeToString(sum[:])), nil
}

// canonicalize serializes v with object keys in byte-sorted order and
// arrays in original order. Cycle detection is best-effort, keyed by
// pointer identity of map/slice values observed on the current path.
func canonicalize(v interface{}, seen map[uintptr]bool) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case json.Marshaler:
		raw, err := val.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("canonicalize: %w", err)
		}
		var reparsed interface{}
		if err := json.Unmarshal(raw, &reparsed); err != nil {
			return "", fmt.Errorf("canonicalize: re-parse toJSON result: %w", err)
		}
		return canonicalize(reparsed, seen)
	case time.Time:
		return canonicalize(val.UTC().Format(time.RFC3339Nano), seen)
	case *big.Int:
		return canonicalize(val.String(), seen)
	case string:
		b, _ := json.Marshal(val)
		return string(b), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("canonicalize number: %w", err)
		}
		return string(b), nil
	case map[string]interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return "", fmt.Errorf("canonicalize: circular structure")
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		return canonicalizeObject(val, seen)
	case []interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if len(val) > 0 {
			if seen[ptr] {
				return "", fmt.Errorf("canonicalize: circular structure")
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		return canonicalizeArray(val, seen)
	default:
		// Fall back to a JSON round-trip so arbitrary structs behave like
		// plain objects/arrays under the same canonicalization rules.
		raw, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("canonicalize: unsupported type %T: %w", val, err)
		}
		var reparsed interface{}
		if err := json.Unmarshal(raw, &reparsed); err != nil {
			return "", fmt.Errorf("canonicalize: re-parse fallback: %w", err)
		}
		return canonicalize(reparsed, seen)
	}
}

func canonicalizeObject(obj map[string]interface{}, seen map[uintptr]bool) (string, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, k := range keys {
		v := obj[k]
		if isUndefinedLike(v) {
			continue // functions/undefined are dropped from objects
		}
		part, err := canonicalize(v, seen)
		if err != nil {
			return "", err
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(k)
		b.Write(keyJSON)
		b.WriteByte(':')
		b.WriteString(part)
	}
	b.WriteByte('}')
	return b.String(), nil
}

func canonicalizeArray(arr []interface{}, seen map[uintptr]bool) (string, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		if isUndefinedLike(v) {
			b.WriteString("null") // functions/undefined become null inside arrays
			continue
		}
		part, err := canonicalize(v, seen)
		if err != nil {
			return "", err
		}
		b.WriteString(part)
	}
	b.WriteByte(']')
	return b.String(), nil
}

// isUndefinedLike reports values that JSON has no direct representation
// for (functions, channels), which get dropped from objects or nulled
// inside arrays.
func isUndefinedLike(v interface{}) bool {
	switch v.(type) {
	case func(), chan struct{}:
		return true
	default:
		return false
	}
}
