package exflow

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DurationSelector is the requester's choice of exception length
type DurationSelector string

const (
	DurationOneMonth    DurationSelector = "1"
	DurationThreeMonths DurationSelector = "3"
	DurationSixMonths   DurationSelector = "6"
	DurationOneYear     DurationSelector = "12"
	DurationCustom      DurationSelector = "custom"
)

// DefaultDurationMonths is used when the selector is missing or malformed
const DefaultDurationMonths = 12

var durationMonths = map[DurationSelector]int{
	DurationOneMonth:    1,
	DurationThreeMonths: 3,
	DurationSixMonths:   6,
	DurationOneYear:     12,
}

// ResolveExpiration turns a duration selection into a concrete expiration instant.
// A malformed selector falls back to now + 12 months instead of failing; only a
// custom selection with a missing date or one before today is rejected.
func ResolveExpiration(selector DurationSelector, customDate *time.Time, now time.Time) (time.Time, error) {
	sel := DurationSelector(strings.ToLower(strings.TrimSpace(string(selector))))

	if sel == DurationCustom {
		if customDate == nil || customDate.IsZero() || BeforeDay(*customDate, now) {
			return time.Time{}, NewValidationError("customExpirationDate", "expiration date invalid or in the past")
		}
		return *customDate, nil
	}

	months, ok := durationMonths[sel]
	if !ok {
		months = DefaultDurationMonths
	}
	return now.AddDate(0, months, 0), nil
}

// BeforeDay reports whether t falls on an earlier calendar day than now. Each
// value is read in its own location, so a date-only pick parsed as midnight
// UTC still counts as today.
func BeforeDay(t, now time.Time) bool {
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	return time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC).Before(time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC))
}

// ParseDate accepts the date representations the request forms have been seen to
// serialize: RFC 3339 timestamps, plain YYYY-MM-DD dates, JavaScript Date strings,
// dayjs objects ({"$d": ...} or {"d": ...}, or {"$y","$M","$D"} components) and epoch
// milliseconds. The boolean is false when nothing usable was found.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		return parseDateString(v)
	case float64:
		return time.UnixMilli(int64(v)).UTC(), v > 0
	case int64:
		return time.UnixMilli(v).UTC(), v > 0
	case int:
		return time.UnixMilli(int64(v)).UTC(), v > 0
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), ms > 0
		}
		return parseDateString(v.String())
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return time.Time{}, false
		}
		return ParseDate(decoded)
	case map[string]any:
		return parseDateObject(v)
	default:
		return time.Time{}, false
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-Jan-02",
	"2006-Jan-2",
	"01/02/2006",
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, ok := parseJSDateString(s); ok {
		return t, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// parseJSDateString handles "Wed Apr 23 2025 00:00:00 GMT-0600 (Mountain Daylight Time)"
func parseJSDateString(s string) (time.Time, bool) {
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	if t, err := time.Parse("Mon Jan 02 2006 15:04:05 GMT-0700", s); err == nil {
		return t, true
	}
	parts := strings.Fields(s)
	if len(parts) >= 4 {
		if t, err := time.Parse("Jan 2 2006", strings.Join(parts[1:4], " ")); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDateObject(m map[string]any) (time.Time, bool) {
	for _, key := range []string{"$d", "d"} {
		if v, ok := m[key]; ok {
			if t, ok := ParseDate(v); ok {
				return t, true
			}
		}
	}

	year, hasYear := objectInt(m, "$y", "y")
	if !hasYear {
		return time.Time{}, false
	}
	// missing components fall back to the last day of the year; $M is zero-based
	month, hasMonth := objectInt(m, "$M", "M")
	if !hasMonth {
		month = 11
	}
	day, hasDay := objectInt(m, "$D", "D")
	if !hasDay {
		day = 31
	}
	return time.Date(year, time.Month(month+1), day, 0, 0, 0, 0, time.UTC), true
}

func objectInt(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n), true
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// ExpiryState classifies an expiration date relative to now
type ExpiryState string

const (
	ExpiryActive       ExpiryState = "active"
	ExpiryExpiringSoon ExpiryState = "expiring_soon"
	ExpiryExpired      ExpiryState = "expired"
)

// ParseExpiryState resolves an expiry state name
func ParseExpiryState(s string) (ExpiryState, bool) {
	switch state := ExpiryState(strings.ToLower(strings.TrimSpace(s))); state {
	case ExpiryActive, ExpiryExpiringSoon, ExpiryExpired:
		return state, true
	default:
		return "", false
	}
}

// ExpiringSoonWindow is how close to expiration an exception is flagged
const ExpiringSoonWindow = 7 * 24 * time.Hour

// ClassifyExpiry reports whether an expiration is active, expiring soon, or past
func ClassifyExpiry(expiration, now time.Time) ExpiryState {
	switch {
	case !now.Before(expiration):
		return ExpiryExpired
	case expiration.Sub(now) <= ExpiringSoonWindow:
		return ExpiryExpiringSoon
	default:
		return ExpiryActive
	}
}
