package timeslot

import "sort"

// Window is a half-open open-hours range within one day.
type Window struct {
	Start string
	End   string
}

// Empty reports whether the window contains no time at all.
func (w Window) Empty() bool {
	return w.End <= w.Start
}

// Merge unions a set of windows, coalescing any that overlap or touch.
// Slot generation over merged windows never proposes the same start twice.
func Merge(windows []Window) []Window {
	in := make([]Window, 0, len(windows))
	for _, w := range windows {
		if !w.Empty() {
			in = append(in, w)
		}
	}
	if len(in) == 0 {
		return nil
	}

	sort.Slice(in, func(i, j int) bool {
		if in[i].Start != in[j].Start {
			return in[i].Start < in[j].Start
		}
		return in[i].End < in[j].End
	})

	merged := []Window{in[0]}
	for _, w := range in[1:] {
		last := &merged[len(merged)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// Subtract removes cut from each window, splitting windows the cut lands
// inside. Used to carve unavailable overrides out of recurring open hours.
func Subtract(windows []Window, cut Window) []Window {
	if cut.Empty() {
		return windows
	}

	var out []Window
	for _, w := range windows {
		if !Overlaps(w.Start, w.End, cut.Start, cut.End) {
			out = append(out, w)
			continue
		}
		if left := (Window{Start: w.Start, End: cut.Start}); !left.Empty() {
			out = append(out, left)
		}
		if right := (Window{Start: cut.End, End: w.End}); !right.Empty() {
			out = append(out, right)
		}
	}
	return out
}
