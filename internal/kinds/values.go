package kinds

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Normalize converts v, as read from SQLite or decoded from a JSON document,
// into the canonical representation of the field type:
//
//	Text    -> string
//	Integer -> int64
//	Decimal -> canonical decimal string
//
// nil stays nil.
func Normalize(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Type {
	case Text:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		default:
			return fmt.Sprint(x), nil
		}

	case Integer:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case string:
			if x == "" {
				return nil, nil
			}
			n, err := strconv.ParseInt(x, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("field %s: unsupported integer value %T", f.Name, v)
		}

	case Decimal:
		var d decimal.Decimal
		switch x := v.(type) {
		case string:
			if x == "" {
				return nil, nil
			}
			parsed, err := decimal.NewFromString(x)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			d = parsed
		case []byte:
			parsed, err := decimal.NewFromString(string(x))
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			d = parsed
		case float64:
			d = decimal.NewFromFloat(x)
		case int64:
			d = decimal.NewFromInt(x)
		case int:
			d = decimal.NewFromInt(int64(x))
		case decimal.Decimal:
			d = x
		default:
			return nil, fmt.Errorf("field %s: unsupported decimal value %T", f.Name, v)
		}
		return d.String(), nil
	}

	return nil, fmt.Errorf("field %s: unknown field type %d", f.Name, f.Type)
}

// NormalizeAll applies Normalize to every field of fields present in src.
// Keys absent from src are absent from the result.
func NormalizeAll(fields []Field, src map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := src[f.Name]
		if !ok {
			continue
		}
		nv, err := Normalize(f, v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = nv
	}
	return out, nil
}
