package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errNotObject = errors.New("payload is not a JSON object")

// ValidPayload reports whether raw is syntactically valid JSON
func ValidPayload(raw string) bool {
	return json.Valid([]byte(raw))
}

// DecodePayload decodes a JSON object payload and coerces its values
func DecodePayload(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if fields == nil {
		return nil, errNotObject
	}

	for k, v := range fields {
		fields[k] = CoerceValue(v)
	}
	return fields, nil
}

// CoerceValue normalizes a decoded payload value. Numbers stay numeric,
// numeric-looking strings become int64 or float64, booleans and other strings
// are kept, and nested values are flattened to compact JSON text.
func CoerceValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case string:
		s := strings.TrimSpace(val)
		if !strings.Contains(s, ".") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
			return val
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return val
	case bool:
		return val
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(buf.String())
	}
}

// FieldText renders a payload field for display. It reports false when the
// field is absent.
func FieldText(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return fmt.Sprint(val), true
	}
}
