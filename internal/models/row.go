package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one record as returned by the backing store. Column values arrive in
// whatever shape the driver produced (numeric strings, float64, int64, []byte,
// nil), so all reads go through the typed accessors below.
type Row map[string]any

const (
	ColID         = "id"
	ColGlideRowID = "glide_row_id"
	ColPDFURL     = "supabase_pdf_url"
	ColAccountRef = "rowid_accounts"
	ColProductRef = "rowid_products"
)

// String returns the first non-empty value among keys, trimmed.
func (r Row) String(keys ...string) string {
	for _, k := range keys {
		if s := toString(r[k]); s != "" {
			return s
		}
	}
	return ""
}

// Key is the id a document is locked, tracked and scanned under: the
// surrogate id, or the glide_row_id for rows that have none.
func (r Row) Key() string {
	return r.String(ColID, ColGlideRowID)
}

// Decimal returns the first parseable numeric value among keys, or zero.
func (r Row) Decimal(keys ...string) decimal.Decimal {
	d, _ := r.LookupDecimal(keys...)
	return d
}

// LookupDecimal is Decimal but reports whether any key held a numeric value.
func (r Row) LookupDecimal(keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		if d, ok := toDecimal(r[k]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string, []byte:
		b, err := strconv.ParseBool(strings.TrimSpace(toString(v)))
		return err == nil && b
	default:
		return false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time returns the first value among keys that parses as a timestamp.
func (r Row) Time(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case time.Time:
			if !v.IsZero() {
				return v, true
			}
		case *time.Time:
			if v != nil && !v.IsZero() {
				return *v, true
			}
		case string, []byte:
			s := toString(v)
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case *string:
		if t == nil {
			return ""
		}
		return strings.TrimSpace(*t)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return *t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case uint64:
		return decimal.NewFromInt(int64(t)), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string, []byte:
		s := strings.TrimSpace(toString(t))
		s = strings.NewReplacer("$", "", ",", "").Replace(s)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
