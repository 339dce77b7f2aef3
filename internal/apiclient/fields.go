package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Fields is a decoded JSON object read leniently: every accessor takes a list
// of alternative keys and returns the first usable value. Dotted keys walk
// nested objects ("product.id").
type Fields map[string]any

func (f Fields) lookup(key string) (any, bool) {
	var cur any = map[string]any(f)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the first non-empty value rendered as a string.
func (f Fields) String(keys ...string) string {
	for _, k := range keys {
		v, ok := f.lookup(k)
		if !ok {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			s = decimal.NewFromFloat(t).String()
		case bool:
			s = fmt.Sprint(t)
		default:
			continue
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// Decimal returns the first value parseable as a number. Strings are stripped
// to their digits, sign and decimal point first ("150000 ₫" reads as 150000).
func (f Fields) Decimal(keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := f.lookup(k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case json.Number:
			if d, err := decimal.NewFromString(t.String()); err == nil {
				return d, true
			}
		case float64:
			return decimal.NewFromFloat(t), true
		case string:
			if d, err := decimal.NewFromString(numericOnly(t)); err == nil {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

// Int returns the first numeric value rounded to an integer.
func (f Fields) Int(keys ...string) (int64, bool) {
	d, ok := f.Decimal(keys...)
	if !ok {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}

// Object returns the first nested object among keys.
func (f Fields) Object(keys ...string) Fields {
	for _, k := range keys {
		if v, ok := f.lookup(k); ok {
			if m, ok := v.(map[string]any); ok {
				return Fields(m)
			}
		}
	}
	return nil
}

// List returns the first array of objects among keys.
func (f Fields) List(keys ...string) []Fields {
	for _, k := range keys {
		v, ok := f.lookup(k)
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]Fields, 0, len(arr))
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Fields(m))
			}
		}
		return out
	}
	return nil
}

func numericOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
