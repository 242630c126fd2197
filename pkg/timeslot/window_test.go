package timeslot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []Window
		want []Window
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "disjoint stay separate",
			in:   []Window{{"13:00", "17:00"}, {"09:00", "12:00"}},
			want: []Window{{"09:00", "12:00"}, {"13:00", "17:00"}},
		},
		{
			name: "overlapping coalesce",
			in:   []Window{{"09:00", "13:00"}, {"12:00", "17:00"}},
			want: []Window{{"09:00", "17:00"}},
		},
		{
			name: "touching coalesce",
			in:   []Window{{"09:00", "12:00"}, {"12:00", "17:00"}},
			want: []Window{{"09:00", "17:00"}},
		},
		{
			name: "empty windows dropped",
			in:   []Window{{"09:00", "09:00"}, {"10:00", "11:00"}},
			want: []Window{{"10:00", "11:00"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Merge(tc.in))
		})
	}
}

func TestSubtract(t *testing.T) {
	open := []Window{{"09:00", "17:00"}}

	tests := []struct {
		name string
		cut  Window
		want []Window
	}{
		{
			name: "cut in the middle splits",
			cut:  Window{"12:00", "13:00"},
			want: []Window{{"09:00", "12:00"}, {"13:00", "17:00"}},
		},
		{
			name: "cut at the start trims",
			cut:  Window{"09:00", "10:00"},
			want: []Window{{"10:00", "17:00"}},
		},
		{
			name: "cut covering everything removes",
			cut:  Window{"08:00", "18:00"},
			want: nil,
		},
		{
			name: "disjoint cut leaves window intact",
			cut:  Window{"18:00", "19:00"},
			want: open,
		},
		{
			name: "empty cut is a no-op",
			cut:  Window{"12:00", "12:00"},
			want: open,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Subtract(open, tc.cut))
		})
	}
}
