package gesture

import "time"

// WheelAccumulator converts a stream of wheel deltas into discrete page
// turns: one turn per threshold crossing, then a cooldown so a single scroll
// burst cannot skip several pages.
type WheelAccumulator struct {
	threshold int
	cooldown  time.Duration

	acc      int
	lastTurn time.Time
}

// NewWheelAccumulator builds an accumulator; threshold is in wheel ticks.
func NewWheelAccumulator(threshold int, cooldown time.Duration) *WheelAccumulator {
	if threshold < 1 {
		threshold = 1
	}
	return &WheelAccumulator{threshold: threshold, cooldown: cooldown}
}

// Add feeds one wheel event (positive = forward) and returns the page delta
// it triggers: +1, -1, or 0. Direction changes reset the accumulator.
func (w *WheelAccumulator) Add(delta int, now time.Time) int {
	if delta == 0 {
		return 0
	}
	if !w.lastTurn.IsZero() && now.Sub(w.lastTurn) < w.cooldown {
		return 0 // burst suppression
	}
	if (delta > 0) != (w.acc > 0) && w.acc != 0 {
		w.acc = 0
	}
	w.acc += delta
	if w.acc >= w.threshold {
		w.acc = 0
		w.lastTurn = now
		return 1
	}
	if w.acc <= -w.threshold {
		w.acc = 0
		w.lastTurn = now
		return -1
	}
	return 0
}
