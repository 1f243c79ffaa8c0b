package docstore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// FieldType tags how a document field value is serialized on the wire.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldBoolean   FieldType = "boolean"
	FieldInteger   FieldType = "integer"
	FieldDecimal   FieldType = "decimal"
	FieldJSON      FieldType = "json"
	FieldDatetime  FieldType = "datetime"
	FieldReference FieldType = "reference"
)

// fieldCodec pairs the encode/decode functions for one field type. New field
// types are added by extending the table, not by branching inline.
type fieldCodec struct {
	encode func(v any) (string, error)
	decode func(raw string) (any, error)
}

var codecs = map[FieldType]fieldCodec{
	FieldText: {
		encode: encodeString,
		decode: func(raw string) (any, error) { return raw, nil },
	},
	FieldReference: {
		encode: encodeString,
		decode: func(raw string) (any, error) { return raw, nil },
	},
	FieldBoolean: {
		encode: func(v any) (string, error) {
			if b, ok := v.(bool); ok {
				return strconv.FormatBool(b), nil
			}
			return fmt.Sprint(v), nil
		},
		decode: func(raw string) (any, error) { return strconv.ParseBool(raw) },
	},
	FieldInteger: {
		encode: func(v any) (string, error) {
			switch n := v.(type) {
			case int:
				return strconv.Itoa(n), nil
			case int64:
				return strconv.FormatInt(n, 10), nil
			case float64:
				return strconv.FormatInt(int64(n), 10), nil
			default:
				return fmt.Sprint(v), nil
			}
		},
		decode: func(raw string) (any, error) { return strconv.Atoi(raw) },
	},
	FieldDecimal: {
		encode: func(v any) (string, error) {
			switch n := v.(type) {
			case float64:
				return strconv.FormatFloat(n, 'f', -1, 64), nil
			case float32:
				return strconv.FormatFloat(float64(n), 'f', -1, 32), nil
			default:
				return fmt.Sprint(v), nil
			}
		},
		decode: func(raw string) (any, error) { return strconv.ParseFloat(raw, 64) },
	},
	FieldJSON: {
		encode: func(v any) (string, error) {
			if s, ok := v.(string); ok {
				// Already serialized by the caller
				return s, nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		decode: func(raw string) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	},
	FieldDatetime: {
		encode: func(v any) (string, error) {
			switch ts := v.(type) {
			case time.Time:
				return ts.UTC().Format(time.RFC3339), nil
			case string:
				return ts, nil
			default:
				return "", fmt.Errorf("cannot encode %T as datetime", v)
			}
		},
		decode: func(raw string) (any, error) { return time.Parse(time.RFC3339, raw) },
	},
}

func encodeString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// encodeField serializes v for the wire per the declared field type. The
// second return is false when the value must be omitted from the payload
// entirely (nil and NaN are never sent as explicit nulls).
func encodeField(ft FieldType, v any) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return "", false, nil
	}

	c, ok := codecs[ft]
	if !ok {
		// Unknown types pass through as plain strings
		s, err := encodeString(v)
		return s, err == nil, err
	}

	s, err := c.encode(v)
	if err != nil {
		return "", false, fmt.Errorf("encode %s field: %w", ft, err)
	}
	return s, true, nil
}

// decodeField coerces a raw wire value per the declared field type, falling
// back to the raw string when coercion fails or the type is unknown.
func decodeField(ft FieldType, raw string) any {
	c, ok := codecs[ft]
	if !ok {
		return raw
	}
	v, err := c.decode(raw)
	if err != nil {
		return raw
	}
	return v
}
