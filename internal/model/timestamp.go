package model

import (
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// timestampLayouts are tried in order. Layouts without an offset are read
// as UTC. Fractional seconds are accepted after the seconds field in all of
// them.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Timestamp is a datetime taken from a request payload. Besides RFC 3339 it
// accepts naive datetimes and bare dates, both interpreted as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable input is reported
// as a *json.UnmarshalTypeError so decoders can attach the field name.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &json.UnmarshalTypeError{Value: "non-string", Type: timestampType}
	}
	parsed, ok := ParseTimestamp(s)
	if !ok {
		return &json.UnmarshalTypeError{Value: "string " + s, Type: timestampType}
	}
	t.Time = parsed
	return nil
}

// Ptr returns the time as a UTC *time.Time, or nil for a nil Timestamp.
func (t *Timestamp) Ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var timestampType = reflect.TypeOf(Timestamp{})

// IsTimestampType reports whether typ is Timestamp or a pointer to it.
func IsTimestampType(typ reflect.Type) bool {
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ == timestampType
}

// ParseTimestamp parses s with the accepted layouts.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			return v.UTC(), true
		}
	}
	return time.Time{}, false
}
