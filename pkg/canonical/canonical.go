// Package canonical produces deterministic hashes of tool calls.
//
// A tool call is identified by the digest of "{tool}|{canonical_json(params)}"
// where canonical_json emits object keys in lexicographic order, preserves
// array order, and keeps numbers in their source lexical form. The digest is
// both the dedupe key and the turn_id of tool-result records.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// HashToolCall returns the hex-encoded SHA-256 digest identifying a tool call.
// Two parameter maps that are deep-equal produce the same digest regardless of
// key order.
func HashToolCall(tool string, params map[string]interface{}) (string, error) {
	canonical, err := Marshal(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize params for tool %s: %w", tool, err)
	}

	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte("|"))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashRawToolCall is HashToolCall for params still in raw JSON form.
// The raw bytes are decoded with number preservation before canonicalization,
// so `{"a":1,"b":2}` and `{"b":2,"a":1}` hash identically.
func HashRawToolCall(tool string, rawParams []byte) (string, error) {
	if len(rawParams) == 0 {
		return HashToolCall(tool, nil)
	}

	var params map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(rawParams))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return "", fmt.Errorf("parse raw params for tool %s: %w", tool, err)
	}
	return HashToolCall(tool, params)
}

// Marshal renders v as canonical JSON: lexicographically ordered object keys,
// order-preserving arrays, JSON-escaped strings, literal null/true/false.
// json.Number values are emitted verbatim so the source lexical form of
// numbers survives a decode/canonicalize round trip.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
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
		return writeString(buf, val)
	case json.Number:
		buf.WriteString(val.String())
	case json.RawMessage:
		return writeRaw(buf, val)
	case map[string]interface{}:
		return writeObject(buf, val)
	case []interface{}:
		return writeArray(buf, val)
	case float64:
		return writeFloat(buf, val)
	case float32:
		return writeFloat(buf, float64(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	default:
		// Structs and other values take the ordinary JSON round trip with
		// number preservation, then re-enter canonicalization.
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("unsupported value %T: %w", v, err)
		}
		return writeRaw(buf, encoded)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []interface{}) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v is not valid JSON", f)
	}
	// Integral floats are written without an exponent or trailing fraction so
	// decoded and in-process parameter maps hash identically.
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// writeRaw re-decodes raw JSON with number preservation and canonicalizes it.
func writeRaw(buf *bytes.Buffer, raw []byte) error {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("parse raw JSON: %w", err)
	}
	return writeValue(buf, v)
}
