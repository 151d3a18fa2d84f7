package tci

import "sort"

// DoseEvent is one scheduled dosing action: an instantaneous bolus and/or a
// change of the continuous infusion rate, both taking effect at TimeMinutes.
// Immutable once committed to a timeline.
type DoseEvent struct {
	TimeMinutes float64 `yaml:"time_minutes"`
	BolusMg     float64 `yaml:"bolus_mg"`
	RateMgKgHr  float64 `yaml:"rate_mg_kg_hr"`
}

// DoseTimeline holds dose events ordered ascending by time with unique times.
// Pure data plus lookup; event application belongs to the solvers.
type DoseTimeline struct {
	events []DoseEvent
}

// NewDoseTimeline validates, sorts and seals a set of dose events.
func NewDoseTimeline(events []DoseEvent) (*DoseTimeline, error) {
	sorted := make([]DoseEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimeMinutes < sorted[j].TimeMinutes })

	for i, ev := range sorted {
		if ev.TimeMinutes < 0 {
			return nil, validationf("dose event time must be non-negative, got %g", ev.TimeMinutes)
		}
		if ev.BolusMg < 0 {
			return nil, validationf("bolus must be non-negative, got %g mg at t=%g", ev.BolusMg, ev.TimeMinutes)
		}
		if ev.RateMgKgHr < 0 {
			return nil, validationf("infusion rate must be non-negative, got %g at t=%g", ev.RateMgKgHr, ev.TimeMinutes)
		}
		if i > 0 && ev.TimeMinutes == sorted[i-1].TimeMinutes {
			return nil, validationf("duplicate dose event at t=%g min", ev.TimeMinutes)
		}
	}
	return &DoseTimeline{events: sorted}, nil
}

// Events returns the ordered event list. Callers must not mutate it.
func (tl *DoseTimeline) Events() []DoseEvent { return tl.events }

// Len returns the number of events.
func (tl *DoseTimeline) Len() int { return len(tl.events) }

// RateAt returns the continuous infusion rate (mg/kg/hr) active at time t:
// the rate of the last event at or before t, or zero before the first event.
func (tl *DoseTimeline) RateAt(t float64) float64 {
	rate := 0.0
	for _, ev := range tl.events {
		if ev.TimeMinutes > t {
			break
		}
		rate = ev.RateMgKgHr
	}
	return rate
}

// NextEventAfter returns the first event with time strictly greater than t,
// or nil when none remains.
func (tl *DoseTimeline) NextEventAfter(t float64) *DoseEvent {
	idx := sort.Search(len(tl.events), func(i int) bool { return tl.events[i].TimeMinutes > t })
	if idx == len(tl.events) {
		return nil
	}
	return &tl.events[idx]
}

// EventsBetween returns the events with time in (t0, t1], in order.
func (tl *DoseTimeline) EventsBetween(t0, t1 float64) []DoseEvent {
	lo := sort.Search(len(tl.events), func(i int) bool { return tl.events[i].TimeMinutes > t0 })
	hi := sort.Search(len(tl.events), func(i int) bool { return tl.events[i].TimeMinutes > t1 })
	return tl.events[lo:hi]
}

// LastEventTime returns the time of the final event, or zero for an empty
// timeline.
func (tl *DoseTimeline) LastEventTime() float64 {
	if len(tl.events) == 0 {
		return 0
	}
	return tl.events[len(tl.events)-1].TimeMinutes
}

// rateMgPerMin converts an infusion rate from mg/kg/hr to mg/min for a given
// patient weight.
func rateMgPerMin(rateMgKgHr, weightKg float64) float64 {
	return rateMgKgHr * weightKg / 60.0
}
