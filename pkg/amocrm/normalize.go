package amocrm

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)

// dateLayouts are the date strings accepted from callers, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
}

// Coerce converts v to the representation the API expects for a field of
// type ft. Empty input becomes the zero value of the type; date fields fall
// back to now.
func Coerce(ft FieldType, v FieldValue, now time.Time) FieldValue {
	switch ft {
	case FieldNumeric, FieldPrice:
		return Number(toNumber(v))
	case FieldCheckbox:
		return Bool(toBool(v))
	case FieldDate, FieldDateTime, FieldBirthday:
		return Date(toTime(v, now))
	case FieldSelect, FieldRadioButton:
		return Number(toInt(v))
	case FieldMultiSelect:
		return toIntList(v)
	default:
		return String(toText(v))
	}
}

// NormalizeCustomFields rewrites every value of fields according to the
// declared type in meta. Fields without metadata are returned unchanged.
// A field with no values gets a single zero value of its type.
func NormalizeCustomFields(fields []CustomFieldValues, meta map[int64]CustomField, now time.Time) []CustomFieldValues {
	out := make([]CustomFieldValues, len(fields))
	for i, field := range fields {
		out[i] = field

		def, ok := meta[field.FieldID]
		if !ok {
			continue
		}

		if len(field.Values) == 0 {
			out[i].Values = []FieldValueItem{{Value: Coerce(def.Type, Null(), now)}}
			continue
		}

		values := make([]FieldValueItem, len(field.Values))
		for j, item := range field.Values {
			values[j] = item
			values[j].Value = Coerce(def.Type, item.Value, now)
		}
		out[i].Values = values
	}
	return out
}

func toNumber(v FieldValue) float64 {
	switch v.Kind() {
	case KindNumber:
		return v.Num()
	case KindBool:
		if v.Truth() {
			return 1
		}
		return 0
	case KindString:
		return parseLeadingNumber(v.Str())
	case KindDate:
		return float64(v.Time().Unix())
	case KindList:
		if items := v.Items(); len(items) > 0 {
			return toNumber(items[0])
		}
	}
	return 0
}

func parseLeadingNumber(s string) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return n
}

func toInt(v FieldValue) float64 {
	return math.Trunc(toNumber(v))
}

func toIntList(v FieldValue) FieldValue {
	switch v.Kind() {
	case KindNull:
		return List()
	case KindList:
		items := make([]FieldValue, 0, len(v.Items()))
		for _, item := range v.Items() {
			items = append(items, Number(toInt(item)))
		}
		return List(items...)
	case KindString:
		if strings.TrimSpace(v.Str()) == "" {
			return List()
		}
	}
	return List(Number(toInt(v)))
}

func toBool(v FieldValue) bool {
	switch v.Kind() {
	case KindBool:
		return v.Truth()
	case KindNumber:
		return v.Num() != 0
	case KindString:
		s := strings.ToLower(strings.TrimSpace(v.Str()))
		if leadingNumber.MatchString(s) {
			return parseLeadingNumber(s) != 0
		}
		switch s {
		case "true", "yes", "y", "on", "да":
			return true
		}
		return false
	case KindList:
		return len(v.Items()) > 0
	case KindDate:
		return true
	}
	return false
}

func toTime(v FieldValue, now time.Time) time.Time {
	switch v.Kind() {
	case KindDate:
		return v.Time()
	case KindNumber:
		return time.Unix(int64(v.Num()), 0)
	case KindString:
		s := strings.TrimSpace(v.Str())
		if s == "" {
			return now
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0)
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
				return t
			}
		}
	case KindList:
		if items := v.Items(); len(items) > 0 {
			return toTime(items[0], now)
		}
	}
	return now
}

func toText(v FieldValue) string {
	if v.Kind() == KindNull {
		return ""
	}
	return v.String()
}
