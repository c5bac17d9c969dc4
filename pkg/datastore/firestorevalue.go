package datastore

import (
	"fmt"
	"strconv"
	"time"
)

// Firestore's REST API tags every field value with its type. encodeValue and
// decodeValue map between that tagged wire form and plain Go values.
//
// Integers travel as decimal strings under "integerValue" so they survive
// JSON number precision limits; they decode to int64. Non-integer numbers
// use "doubleValue". time.Time encodes as an RFC 3339 "timestampValue" and
// decodes back to the timestamp string, matching what callers stored.
func encodeValue(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return map[string]any{"nullValue": nil}
	case string:
		return map[string]any{"stringValue": val}
	case bool:
		return map[string]any{"booleanValue": val}
	case int:
		return map[string]any{"integerValue": strconv.FormatInt(int64(val), 10)}
	case int32:
		return map[string]any{"integerValue": strconv.FormatInt(int64(val), 10)}
	case int64:
		return map[string]any{"integerValue": strconv.FormatInt(val, 10)}
	case float32:
		return encodeFloat(float64(val))
	case float64:
		return encodeFloat(val)
	case time.Time:
		return map[string]any{"timestampValue": val.UTC().Format(time.RFC3339Nano)}
	case []any:
		values := make([]any, len(val))
		for i, entry := range val {
			values[i] = encodeValue(entry)
		}
		return map[string]any{"arrayValue": map[string]any{"values": values}}
	case Document:
		return map[string]any{"mapValue": map[string]any{"fields": encodeFields(val)}}
	case map[string]any:
		return map[string]any{"mapValue": map[string]any{"fields": encodeFields(val)}}
	default:
		return map[string]any{"stringValue": fmt.Sprint(val)}
	}
}

func encodeFloat(f float64) map[string]any {
	if f == float64(int64(f)) {
		return map[string]any{"integerValue": strconv.FormatInt(int64(f), 10)}
	}
	return map[string]any{"doubleValue": f}
}

func encodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = encodeValue(v)
	}
	return out
}

func decodeValue(tagged map[string]any) any {
	if v, ok := tagged["stringValue"]; ok {
		return v
	}
	if v, ok := tagged["booleanValue"]; ok {
		return v
	}
	if v, ok := tagged["integerValue"]; ok {
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		return v
	}
	if v, ok := tagged["doubleValue"]; ok {
		return v
	}
	if _, ok := tagged["nullValue"]; ok {
		return nil
	}
	if v, ok := tagged["timestampValue"]; ok {
		return v
	}
	if v, ok := tagged["arrayValue"]; ok {
		arr, _ := v.(map[string]any)
		raw, _ := arr["values"].([]any)
		values := make([]any, 0, len(raw))
		for _, entry := range raw {
			if m, ok := entry.(map[string]any); ok {
				values = append(values, decodeValue(m))
			}
		}
		return values
	}
	if v, ok := tagged["mapValue"]; ok {
		m, _ := v.(map[string]any)
		fields, _ := m["fields"].(map[string]any)
		return decodeFields(fields)
	}
	return nil
}

func decodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if tagged, ok := v.(map[string]any); ok {
			out[k] = decodeValue(tagged)
		}
	}
	return out
}
