package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeWindow is returned when a window closes before it opens.
var ErrInvalidTimeWindow = errors.New("invalid time window")

// TimeWindow is a closed interval [Earliest, Latest]. The zero value is an
// unset window; constructed windows always satisfy Earliest <= Latest.
type TimeWindow struct {
	earliest time.Time
	latest   time.Time
}

// NewTimeWindow validates and builds a window.
func NewTimeWindow(earliest, latest time.Time) (TimeWindow, error) {
	if latest.Before(earliest) {
		return TimeWindow{}, fmt.Errorf("%w: latest %s before earliest %s", ErrInvalidTimeWindow,
			latest.Format(time.RFC3339), earliest.Format(time.RFC3339))
	}
	return TimeWindow{earliest: earliest, latest: latest}, nil
}

// MustTimeWindow is NewTimeWindow for literals known to be valid.
func MustTimeWindow(earliest, latest time.Time) TimeWindow {
	tw, err := NewTimeWindow(earliest, latest)
	if err != nil {
		panic(err)
	}
	return tw
}

func (w TimeWindow) Earliest() time.Time { return w.earliest }
func (w TimeWindow) Latest() time.Time   { return w.latest }

// IsZero reports whether the window was never set.
func (w TimeWindow) IsZero() bool { return w.earliest.IsZero() && w.latest.IsZero() }

func (w TimeWindow) Duration() time.Duration { return w.latest.Sub(w.earliest) }

func (w TimeWindow) Hours() float64 { return w.Duration().Hours() }

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.earliest) && !t.After(w.latest)
}

// Overlaps reports whether the two windows share at least one instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return !w.latest.Before(o.earliest) && !o.latest.Before(w.earliest)
}

// Intersection returns the shared interval; ok is false iff the windows do not overlap.
func (w TimeWindow) Intersection(o TimeWindow) (TimeWindow, bool) {
	if !w.Overlaps(o) {
		return TimeWindow{}, false
	}
	start := w.earliest
	if o.earliest.After(start) {
		start = o.earliest
	}
	end := w.latest
	if o.latest.Before(end) {
		end = o.latest
	}
	return TimeWindow{earliest: start, latest: end}, true
}

// OverlapDuration is the length of the intersection, zero when disjoint.
func (w TimeWindow) OverlapDuration(o TimeWindow) time.Duration {
	in, ok := w.Intersection(o)
	if !ok {
		return 0
	}
	return in.Duration()
}

func (w TimeWindow) String() string {
	return w.earliest.Format(time.RFC3339) + "/" + w.latest.Format(time.RFC3339)
}

type timeWindowJSON struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

func (w TimeWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeWindowJSON{Earliest: w.earliest, Latest: w.latest})
}

func (w *TimeWindow) UnmarshalJSON(b []byte) error {
	var raw timeWindowJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	tw, err := NewTimeWindow(raw.Earliest, raw.Latest)
	if err != nil {
		return err
	}
	*w = tw
	return nil
}

func (w TimeWindow) MarshalYAML() (any, error) {
	return timeWindowJSON{Earliest: w.earliest, Latest: w.latest}, nil
}

// UnmarshalYAML accepts {earliest, latest} mappings in RFC3339.
func (w *TimeWindow) UnmarshalYAML(unmarshal func(any) error) error {
	var raw struct {
		Earliest time.Time `yaml:"earliest"`
		Latest   time.Time `yaml:"latest"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	tw, err := NewTimeWindow(raw.Earliest, raw.Latest)
	if err != nil {
		return err
	}
	*w = tw
	return nil
}
