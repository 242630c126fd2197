package timeslot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinutes(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"9:30", 0, true},
		{"09:60", 0, true},
		{"", 0, true},
		{"garbage", 0, true},
	}

	for _, tc := range tests {
		got, err := ToMinutes(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestAddMinutes(t *testing.T) {
	tests := []struct {
		in      string
		minutes int
		want    string
	}{
		{"09:00", 60, "10:00"},
		{"09:00", 90, "10:30"},
		{"09:15", 0, "09:15"},
		{"23:30", 45, "00:15"}, // wraps on the 24-hour clock
		{"00:30", -60, "23:30"},
	}

	for _, tc := range tests {
		got, err := AddMinutes(tc.in, tc.minutes)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s + %d", tc.in, tc.minutes)
	}

	_, err := AddMinutes("25:00", 10)
	assert.Error(t, err)
}

func TestCrossesMidnight(t *testing.T) {
	assert.False(t, CrossesMidnight("23:00", 59))
	assert.True(t, CrossesMidnight("23:15", 60))
	assert.True(t, CrossesMidnight("not-a-time", 15))

	// Ending exactly at midnight counts as crossing: the end would wrap to
	// "00:00" and sort before every window start.
	assert.True(t, CrossesMidnight("23:00", 60))
	assert.True(t, CrossesMidnight("23:45", 15))
}

func TestWithin(t *testing.T) {
	assert.True(t, Within("09:00", "10:00", "09:00", "17:00"))
	assert.True(t, Within("16:00", "17:00", "09:00", "17:00"))
	assert.False(t, Within("16:30", "17:30", "09:00", "17:00"))
	assert.False(t, Within("08:30", "09:30", "09:00", "17:00"))
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     string
		want                           bool
	}{
		{"identical", "09:00", "10:00", "09:00", "10:00", true},
		{"partial", "09:00", "10:00", "09:30", "10:30", true},
		{"contained", "09:00", "12:00", "10:00", "11:00", true},
		{"disjoint", "09:00", "10:00", "11:00", "12:00", false},
		{"back to back", "09:00", "10:00", "10:00", "11:00", false},
		{"back to back reversed", "10:00", "11:00", "09:00", "10:00", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd)
			assert.Equal(t, tc.want, got)

			// Overlap is symmetric.
			assert.Equal(t, got, Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd))
		})
	}
}

func TestOnGrid(t *testing.T) {
	assert.True(t, OnGrid("09:15", 15))
	assert.True(t, OnGrid("09:00", 30))
	assert.False(t, OnGrid("09:10", 15))
	assert.False(t, OnGrid("09:15", 0))
}
