package amocrm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the representation of date values sent to the API.
const DateLayout = "2006-01-02T15:04:05-07:00"

type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindDate
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// FieldValue is a custom-field value of one of the kinds above. The zero
// value is null.
type FieldValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []FieldValue
	date time.Time
}

func Null() FieldValue { return FieldValue{} }
func String(s string) FieldValue { return FieldValue{kind: KindString, str: s} }
func Number(n float64) FieldValue { return FieldValue{kind: KindNumber, num: n} }
func Bool(b bool) FieldValue { return FieldValue{kind: KindBool, b: b} }
func Date(t time.Time) FieldValue { return FieldValue{kind: KindDate, date: t.Truncate(time.Second)} }
func List(vs ...FieldValue) FieldValue { return FieldValue{kind: KindList, list: append([]FieldValue{}, vs...)} }

func (v FieldValue) Kind() ValueKind { return v.kind }
func (v FieldValue) IsNull() bool { return v.kind == KindNull }

// Str, Num, Truth, Items and Time return the payload for the matching kind
// and the zero value otherwise.
func (v FieldValue) Str() string { return v.str }
func (v FieldValue) Num() float64 { return v.num }
func (v FieldValue) Truth() bool { return v.b }
func (v FieldValue) Items() []FieldValue { return v.list }
func (v FieldValue) Time() time.Time { return v.date }

// IsEmpty reports null values, blank strings and empty lists.
func (v FieldValue) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	case KindList:
		return len(v.list) == 0
	}
	return false
}

func (v FieldValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.date.Format(DateLayout)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(v.date.Format(DateLayout))
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

// UnmarshalJSON maps JSON scalars and arrays onto the matching kind. Objects
// are not valid field values. Strings are never parsed as dates.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty field value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var items []FieldValue
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = List(items...)
		return nil
	case '{':
		return fmt.Errorf("field value cannot be an object")
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = Number(n)
	return nil
}
