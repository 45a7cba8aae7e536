// Package timeline accumulates speaker intervals on the recording's
// absolute time axis and flattens them into a single ordered sequence.
package timeline

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/alnah/go-minutes/internal/format"
)

// Interval is an absolute [Start, End) span.
type Interval struct {
	Start time.Duration
	End   time.Duration
}

// Segment is one entry of the flattened timeline.
type Segment struct {
	Start   time.Duration
	End     time.Duration
	Speaker string
}

// Duration returns End - Start.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// String returns a human-readable representation for logging.
func (s Segment) String() string {
	return fmt.Sprintf("%s-%s %s", format.Clock(s.Start), format.Clock(s.End), s.Speaker)
}

// Timeline maps global speaker ids to their intervals, remembering the
// order in which ids were first added. It is not safe for concurrent use;
// a single goroutine builds it.
type Timeline struct {
	order     []string
	intervals map[string][]Interval
}

// New returns an empty Timeline.
func New() *Timeline {
	return &Timeline{intervals: make(map[string][]Interval)}
}

// Append adds intervals for id. The first call for an id fixes its
// position in Speakers, even when ivs is empty.
func (t *Timeline) Append(id string, ivs ...Interval) {
	if _, ok := t.intervals[id]; !ok {
		t.order = append(t.order, id)
		t.intervals[id] = nil
	}
	t.intervals[id] = append(t.intervals[id], ivs...)
}

// Speakers returns ids in insertion order.
func (t *Timeline) Speakers() []string {
	return slices.Clone(t.order)
}

// Intervals returns a copy of id's intervals.
func (t *Timeline) Intervals(id string) []Interval {
	return slices.Clone(t.intervals[id])
}

// Len returns the total number of intervals.
func (t *Timeline) Len() int {
	n := 0
	for _, ivs := range t.intervals {
		n += len(ivs)
	}
	return n
}

// Finalize sorts every speaker's intervals by start. Call it once all
// chunks have been resolved.
func (t *Timeline) Finalize() {
	for _, ivs := range t.intervals {
		slices.SortStableFunc(ivs, func(a, b Interval) int {
			return cmp.Compare(a.Start, b.Start)
		})
	}
}

// Flatten returns every interval as a Segment sorted by start, with runs of
// consecutive entries from the same speaker merged. A merged segment keeps
// the first entry's Start and the last entry's End. Entries with equal
// starts keep speaker insertion order. Overlaps between different speakers
// are preserved as-is.
func Flatten(t *Timeline) []Segment {
	flat := make([]Segment, 0, t.Len())
	for _, id := range t.order {
		for _, iv := range t.intervals[id] {
			flat = append(flat, Segment{Start: iv.Start, End: iv.End, Speaker: id})
		}
	}
	slices.SortStableFunc(flat, func(a, b Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})

	merged := make([]Segment, 0, len(flat))
	for _, s := range flat {
		if n := len(merged); n > 0 && merged[n-1].Speaker == s.Speaker {
			merged[n-1].End = s.End
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
