// Package timeslot provides pure helpers for "HH:MM" clock times and
// half-open time ranges on a single calendar day.
//
// Zero-padded "HH:MM" strings order lexicographically the same way the
// underlying times order, so ranges can be compared directly.
package timeslot

import (
	"fmt"
	"regexp"
)

const minutesPerDay = 24 * 60

var timeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsValid reports whether t is a zero-padded 24-hour "HH:MM" string.
func IsValid(t string) bool {
	return timeRegex.MatchString(t)
}

// ToMinutes converts "HH:MM" to minutes since midnight.
func ToMinutes(t string) (int, error) {
	if !IsValid(t) {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", t)
	}
	hours := int(t[0]-'0')*10 + int(t[1]-'0')
	mins := int(t[3]-'0')*10 + int(t[4]-'0')
	return hours*60 + mins, nil
}

// FromMinutes converts minutes since midnight to "HH:MM", wrapping into a
// single 24-hour day.
func FromMinutes(m int) string {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// AddMinutes adds minutes to an "HH:MM" time, wrapping on the 24-hour clock.
// Calendar-day rollover is not modeled; a slot that would cross midnight is
// rejected by the caller, not wrapped silently into the next day.
func AddMinutes(t string, minutes int) (string, error) {
	m, err := ToMinutes(t)
	if err != nil {
		return "", err
	}
	return FromMinutes(m + minutes), nil
}

// CrossesMidnight reports whether a slot of durationMin starting at start
// would run to or past the end of the day. Ending exactly at midnight counts:
// no representable window ends at 24:00, and AddMinutes would wrap the end
// to "00:00", which sorts before every start time.
func CrossesMidnight(start string, durationMin int) bool {
	m, err := ToMinutes(start)
	if err != nil {
		return true
	}
	return m+durationMin >= minutesPerDay
}

// Within reports whether range A is fully contained in range B.
func Within(aStart, aEnd, bStart, bEnd string) bool {
	return aStart >= bStart && aEnd <= bEnd
}

// Overlaps reports whether two half-open ranges share more than a boundary
// instant. Back-to-back ranges (aEnd == bStart) do not overlap, so
// appointments may be scheduled with zero gap.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && aEnd > bStart
}

// OnGrid reports whether t falls on a stepMin-minute boundary.
func OnGrid(t string, stepMin int) bool {
	m, err := ToMinutes(t)
	if err != nil || stepMin <= 0 {
		return false
	}
	return m%stepMin == 0
}
