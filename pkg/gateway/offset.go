package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 form the gateway expects for expiration
// dates: milliseconds and an explicit numeric offset.
const TimestampLayout = "2006-01-02T15:04:05.000-07:00"

// ParseOffset turns an offset such as "-03:00", "+0530" or "Z" into a fixed
// zone. Only the textual rendering of an instant changes in that zone.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "Z" || strings.EqualFold(s, "UTC") {
		return time.UTC, nil
	}
	if len(s) < 3 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("invalid UTC offset %q", s)
	}

	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(s[1:], ":", "")

	var hh, mm int
	var err error
	switch len(body) {
	case 2:
		hh, err = strconv.Atoi(body)
	case 4:
		hh, err = strconv.Atoi(body[:2])
		if err == nil {
			mm, err = strconv.Atoi(body[2:])
		}
	default:
		return nil, fmt.Errorf("invalid UTC offset %q", s)
	}
	if err != nil || hh > 14 || mm > 59 {
		return nil, fmt.Errorf("invalid UTC offset %q", s)
	}

	seconds := sign * (hh*3600 + mm*60)
	name := fmt.Sprintf("UTC%c%02d:%02d", s[0], hh, mm)
	return time.FixedZone(name, seconds), nil
}

// FormatInOffset renders t in loc using TimestampLayout
func FormatInOffset(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}
