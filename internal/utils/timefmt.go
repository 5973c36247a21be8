// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTime reports a timestamp that cannot be parsed or is not
// acceptable (for example, one later than the server clock).
var ErrInvalidTime = errors.New("invalid date")

// Precision is the resolution at which change times are stored and compared.
const Precision = time.Millisecond

// wireLayout is ISO 8601 in UTC with millisecond precision.
const wireLayout = "2006-01-02T15:04:05.000Z07:00"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
}

// ParseTime parses an ISO 8601 timestamp with an explicit zone and returns
// it normalized to UTC and millisecond precision.
//
// Example:
//
//	t, _ := utils.ParseTime("2016-02-01T10:20:30.123+01:00") // 09:20:30.123Z
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// FormatTime renders t as ISO 8601 in UTC with milliseconds.
func FormatTime(t time.Time) string {
	return Normalize(t).Format(wireLayout)
}

// Normalize converts t to UTC and truncates it to Precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}
