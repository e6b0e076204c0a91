// Package timezone resolves free-text timezone names to UTC offsets and shifts
// 24-hour HH:MM wall-clock times between them.
//
// Nothing in this package returns an error. An unrecognized timezone resolves
// to offset 0 and a malformed time is passed through unchanged: scheduling at
// the wrong literal time is preferred over blocking outreach scheduling.
package timezone

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ResolveOffset returns the UTC offset in hours for name, or 0 when unknown.
func ResolveOffset(name string) float64 {
	return offsets[normalize(name)]
}

// Known reports whether name resolves to an entry of the offset table.
func Known(name string) bool {
	_, ok := offsets[normalize(name)]
	return ok
}

// deltaMinutes is the shift from one zone to another in whole minutes.
// Fractional offsets carry into minutes: a 5.5h delta is 330 minutes, not 5h.
func deltaMinutes(fromName, toName string) int {
	delta := ResolveOffset(toName) - ResolveOffset(fromName)
	return int(math.Round(delta * 60))
}

// parseClock parses "HH:MM" (00:00 through 23:59) into minutes after midnight.
func parseClock(hhmm string) (int, bool) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return 0, false
	}
	return hour*60 + minute, true
}

func formatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// shifted returns the unwrapped minute-of-day after applying the zone delta.
// Values below 0 or at/above 1440 land on the previous or next day.
func shifted(hhmm, fromName, toName string) (int, bool) {
	base, ok := parseClock(hhmm)
	if !ok {
		return 0, false
	}
	return base + deltaMinutes(fromName, toName), true
}

// Convert shifts hhmm from one timezone to another, wrapping into [00:00, 24:00).
// A malformed hhmm is returned unchanged.
func Convert(hhmm, fromName, toName string) string {
	total, ok := shifted(hhmm, fromName, toName)
	if !ok {
		return hhmm
	}
	return formatClock(total)
}

// DayShift reports which calendar day the converted time falls on relative to
// the source day: -1 (previous), 0 (same) or +1 (next). Offsets never differ
// by more than 26h, so a shift past the following day is reported as +1.
func DayShift(hhmm, fromName, toName string) int {
	total, ok := shifted(hhmm, fromName, toName)
	if !ok {
		return 0
	}
	switch {
	case total < 0:
		return -1
	case total >= minutesPerDay:
		return 1
	default:
		return 0
	}
}

// FormatOffset renders an offset in hours as "UTC+05:30" / "UTC-03:00".
func FormatOffset(hours float64) string {
	minutes := int(math.Round(hours * 60))
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, minutes/60, minutes%60)
}
