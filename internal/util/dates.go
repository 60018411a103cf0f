package util

import (
	"strings"
	"time"
)

// ParseDA parses a DICOM DA value (YYYYMMDD). The zero time and false are
// returned for absent or malformed values.
func ParseDA(da string) (time.Time, bool) {
	da = strings.TrimSpace(da)
	if len(da) != 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", da)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseDATM parses paired DICOM DA and TM values into one timestamp. The
// time component is optional; fractional seconds are ignored.
func ParseDATM(da, tm string) (time.Time, bool) {
	date, ok := ParseDA(da)
	if !ok {
		return time.Time{}, false
	}

	tm = strings.TrimSpace(tm)
	if i := strings.IndexByte(tm, '.'); i >= 0 {
		tm = tm[:i]
	}

	var layout string
	switch len(tm) {
	case 6:
		layout = "150405"
	case 4:
		layout = "1504"
	case 2:
		layout = "15"
	default:
		return date, true
	}

	clock, err := time.Parse(layout, tm)
	if err != nil {
		return date, true
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC), true
}
