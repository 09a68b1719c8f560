package client

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// A single URL query parameter.
//
// Value may be a bool, string, integer or float, a [json.Number], an [encoding.TextMarshaler], or a slice of any of those (which is encoded as a repeated key). Booleans are encoded as "1" and "0". Nil values, including nil slice elements, are left out of the encoded query.
type QueryParam struct {
	Key   string
	Value any
}

// Ordered set of URL query parameters. Parameters are encoded in the order they were added, which matters for some remote endpoints (and for reproducible request paths).
type Query []QueryParam

// Returns a copy of the query with the parameter appended.
func (q Query) Add(key string, value any) Query {
	out := make(Query, len(q), len(q)+1)
	copy(out, q)
	return append(out, QueryParam{Key: key, Value: value})
}

// Encodes the query as an "application/x-www-form-urlencoded" string, without a leading '?'. Returns an empty string for an empty query.
func (q Query) Encode() (string, error) {
	if len(q) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, p := range q {
		vals, err := formatParam(p.Key, p.Value)
		if err != nil {
			return "", err
		}
		for _, v := range vals {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(p.Key))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String(), nil
}

// Converts [url.Values] to a Query. Keys are sorted, matching [url.Values.Encode].
func QueryFromValues(vals url.Values) Query {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Query, 0, len(keys))
	for _, k := range keys {
		v := vals[k]
		if len(v) == 1 {
			out = append(out, QueryParam{Key: k, Value: v[0]})
		} else {
			out = append(out, QueryParam{Key: k, Value: append([]string(nil), v...)})
		}
	}
	return out
}

// Converts a plain map to a Query. Go maps are unordered, so keys are sorted for a stable encoding; use a [Query] literal when order matters.
func QueryFromMap(raw map[string]any) Query {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Query, 0, len(keys))
	for _, k := range keys {
		out = append(out, QueryParam{Key: k, Value: raw[k]})
	}
	return out
}

func formatScalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case int, uint, int8, int16, int32, int64, uint8, uint16, uint32, uint64, uintptr:
		return fmt.Sprint(v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	return "", false
}

func formatParam(key string, v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := formatScalar(v); ok {
		return []string{s}, nil
	}
	ref := reflect.ValueOf(v)
	if ref.Kind() != reflect.Slice && ref.Kind() != reflect.Array {
		return nil, fmt.Errorf("can't marshal query param '%s' with type: %T", key, v)
	}
	out := make([]string, 0, ref.Len())
	for i := 0; i < ref.Len(); i++ {
		elem := ref.Index(i).Interface()
		if elem == nil {
			continue
		}
		s, ok := formatScalar(elem)
		if !ok {
			return nil, fmt.Errorf("can't marshal query param '%s' with type: %T", key, v)
		}
		out = append(out, s)
	}
	return out, nil
}
