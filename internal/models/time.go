package models

import "time"

// TimeLayout is the text form of timestamps in the local store.
const TimeLayout = time.RFC3339Nano

// FormatTime renders t for storage; the zero time is stored as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTime is the inverse of FormatTime. Unparseable or empty values are
// treated as the zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
