package thing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zero-day-ai/thinggraph/thingerr"
)

// dateLayouts are tried in order when a date arrives as a string.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// FromFields builds a Thing from a flat map, coercing known fields:
//   - id, type, name, description, url: strings; numbers and booleans are
//     formatted, anything else is JSON encoded
//   - date: time.Time, *time.Time, a string in a common layout, or unix
//     seconds or milliseconds
//   - keywords: []string, []any of scalars, or one comma-separated string
//
// An unparseable date fails with thingerr.CodeInvalidRecord; a missing date
// is simply nil.
func FromFields(fields map[string]any) (Thing, error) {
	t := Thing{Extra: make(map[string]any)}
	for k, v := range fields {
		if err := t.set(k, v); err != nil {
			return Thing{}, err
		}
	}
	return t, nil
}

func (t *Thing) set(field string, value any) error {
	switch field {
	case FieldID:
		t.ID = coerceString(value)
	case FieldType:
		t.Type = coerceString(value)
	case FieldName:
		t.Name = coerceString(value)
	case FieldDescription:
		t.Description = coerceString(value)
	case FieldURL:
		t.URL = coerceString(value)
	case FieldKeywords:
		t.Keywords = coerceKeywords(value)
	case FieldDate:
		d, err := ParseDate(value)
		if err != nil {
			return err
		}
		t.Date = d
	default:
		if t.Extra == nil {
			t.Extra = make(map[string]any)
		}
		t.Extra[field] = value
	}
	return nil
}

// Dates must fall within years 0000-9999, the range RFC 3339 can encode.
var (
	MinDate = time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// millisThreshold separates unix seconds from unix milliseconds. As seconds
// it lies in year 5138; as milliseconds in 1973.
const millisThreshold = 1e11

// CheckDate fails with thingerr.CodeInvalidRecord when d lies outside
// MinDate..MaxDate. A nil date is valid.
func CheckDate(d *time.Time) error {
	if d == nil {
		return nil
	}
	if d.Before(MinDate) || d.After(MaxDate) {
		return thingerr.Newf("thing", "check_date", thingerr.CodeInvalidRecord,
			"date %s is outside years 0000-9999", d.UTC().Format(time.RFC3339)).
			WithDetails(map[string]any{"year": d.UTC().Year()})
	}
	return nil
}

func checked(d time.Time) (*time.Time, error) {
	if err := CheckDate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// fromEpoch reads v as unix seconds, or as unix milliseconds when its
// magnitude reaches millisThreshold.
func fromEpoch(v float64) (*time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, thingerr.Newf("thing", "parse_date", thingerr.CodeInvalidRecord, "invalid epoch %v", v)
	}
	if math.Abs(v) >= millisThreshold {
		v /= 1000
	}
	// keeps the int64 conversion in range; CheckDate rejects these anyway
	if math.Abs(v) > float64(MaxDate.Unix())*2 {
		return nil, thingerr.Newf("thing", "parse_date", thingerr.CodeInvalidRecord,
			"epoch %v is outside years 0000-9999", v)
	}
	sec, frac := math.Modf(v)
	return checked(time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC())
}

// ParseDate coerces a date value. Nil and empty strings yield nil. Numbers
// are unix seconds, or unix milliseconds from 1e11 upward. Dates outside
// years 0000-9999 fail with thingerr.CodeInvalidRecord.
func ParseDate(value any) (*time.Time, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return checked(v)
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		return checked(*v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return checked(d)
			}
		}
		return nil, thingerr.Newf("thing", "parse_date", thingerr.CodeInvalidRecord, "unrecognized date %q", s)
	case int64:
		if v > -millisThreshold && v < millisThreshold {
			return checked(time.Unix(v, 0).UTC())
		}
		return checked(time.UnixMilli(v).UTC())
	case int:
		return ParseDate(int64(v))
	case float64:
		return fromEpoch(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return ParseDate(i)
		}
		f, err := v.Float64()
		if err != nil {
			return nil, thingerr.Newf("thing", "parse_date", thingerr.CodeInvalidRecord, "unrecognized date %q", v.String())
		}
		return ParseDate(f)
	default:
		return nil, thingerr.Newf("thing", "parse_date", thingerr.CodeInvalidRecord, "unsupported date type %T", value)
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return fmt.Sprint(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func coerceKeywords(value any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := value.(type) {
	case nil:
	case string:
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case []any:
		for _, item := range v {
			add(coerceString(item))
		}
	default:
		add(coerceString(v))
	}
	return out
}

// decodeObject decodes a JSON object, turning json.Number into int64 when
// integral and float64 otherwise.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return normalizeNumbers(raw).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any{}
		}
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
