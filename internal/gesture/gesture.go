// Package gesture classifies raw pointer sequences into exactly one of
// {navigate, lookup, toggle-chrome, no-op}. One Session exists per
// press-to-release interaction; wheel input bypasses the session machinery
// entirely (see wheel.go), and keyboard input maps directly to navigation in
// the UI layer.
package gesture

import (
	"math"
	"time"

	"github.com/tatami-reader/tatami/pkg/models"
)

// State of a gesture session. Tracking becomes Drag the moment the pointer
// strays past the drag threshold and never goes back; a session that ends
// while still Tracking is a Tap.
type State int

const (
	StateIdle State = iota
	StateTracking
	StateDrag
	StateTap
)

// Point is a viewport coordinate in cells.
type Point struct {
	X, Y int
}

func distance(a, b Point) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return math.Hypot(dx, dy)
}

// Session tracks one pointer interaction from press to release/cancel.
// It is created on press and must not be reused afterwards.
type Session struct {
	start     Point
	current   Point
	startedAt time.Time
	threshold float64
	state     State
}

// NewSession starts tracking at the press coordinate.
func NewSession(start Point, dragThreshold float64, now time.Time) *Session {
	return &Session{
		start:     start,
		current:   start,
		startedAt: now,
		threshold: dragThreshold,
		state:     StateTracking,
	}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Move updates the session with a motion event. Crossing the drag threshold
// is a one-way transition: the session classifies as Drag for the rest of
// its life regardless of where the pointer ends up.
func (s *Session) Move(p Point) State {
	s.current = p
	if s.state == StateTracking && distance(s.start, p) > s.threshold {
		s.state = StateDrag
	}
	return s.state
}

// EndSummary describes the completed session for terminal classification.
type EndSummary struct {
	Start    Point
	End      Point
	Duration time.Duration
	Distance float64
	// Velocity is cells per second over the whole session.
	Velocity float64
	WasDrag  bool
}

// End consumes the session. The summary feeds swipe detection first, then
// the tap/drag outcome.
func (s *Session) End(p Point, now time.Time) EndSummary {
	s.Move(p)
	if s.state == StateTracking {
		s.state = StateTap
	}
	dur := now.Sub(s.startedAt)
	dist := distance(s.start, p)
	vel := 0.0
	if dur > 0 {
		vel = dist / dur.Seconds()
	}
	return EndSummary{
		Start:    s.start,
		End:      p,
		Duration: dur,
		Distance: dist,
		Velocity: vel,
		WasDrag:  s.state == StateDrag,
	}
}

// SwipeConfig gates swipe navigation. The thresholds are independent of the
// drag threshold: swipe detection runs before tap/drag classification so a
// fast flick navigates even though it also crossed into Drag.
type SwipeConfig struct {
	MinDistance float64
	MinVelocity float64
	Direction   models.ReadingDirection
}

// DetectSwipe returns the page delta a horizontal swipe requests: +1 for
// next, -1 for previous, 0 when the session is not a swipe.
func DetectSwipe(sum EndSummary, cfg SwipeConfig) int {
	dx := sum.End.X - sum.Start.X
	dy := sum.End.Y - sum.Start.Y
	if abs(dx) <= abs(dy) {
		return 0 // vertical or diagonal: not a page-turn swipe
	}
	if math.Abs(float64(dx)) < cfg.MinDistance || sum.Velocity < cfg.MinVelocity {
		return 0
	}
	// Motion direction is reading direction: rightward goes forward in
	// LTR. Right-to-left flows reverse the geometric mapping.
	delta := 1
	if dx < 0 {
		delta = -1
	}
	if cfg.Direction.RTL() {
		delta = -delta
	}
	return delta
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// HitTester resolves a viewport coordinate to a character within a text run.
type HitTester interface {
	// HitText returns the containing block and the UTF-8 byte offset of
	// the character under (x, y); ok is false over whitespace, synthetic
	// content, or empty space.
	HitText(x, y int) (block, byteOff int, ok bool)
}

// Config calibrates the disambiguator from settings.
type Config struct {
	DragThreshold float64
	Swipe         SwipeConfig
}

// Callbacks receive the terminal classification. Nil callbacks are skipped.
type Callbacks struct {
	Navigate     func(delta int)
	Lookup       func(block, byteOff int)
	ToggleChrome func()
	// IsInteractive reports whether the coordinate is owned by an
	// interactive element (link, overlay control); taps there are left to
	// the element and never become lookups.
	IsInteractive func(x, y int) bool
}

// Disambiguator owns the per-pointer session and dispatches classifications.
type Disambiguator struct {
	cfg Config
	hit HitTester
	cb  Callbacks
	now func() time.Time

	session *Session
}

// NewDisambiguator wires classification to its consumers. clock may be nil.
func NewDisambiguator(cfg Config, hit HitTester, cb Callbacks, clock func() time.Time) *Disambiguator {
	if clock == nil {
		clock = time.Now
	}
	return &Disambiguator{cfg: cfg, hit: hit, cb: cb, now: clock}
}

// PointerDown opens a session. A press while one is already open cancels the
// stale session first; terminals can drop release events.
func (d *Disambiguator) PointerDown(x, y int) {
	d.session = NewSession(Point{x, y}, d.cfg.DragThreshold, d.now())
}

// PointerMove feeds motion into the open session, if any.
func (d *Disambiguator) PointerMove(x, y int) {
	if d.session != nil {
		d.session.Move(Point{x, y})
	}
}

// Cancel destroys the session without dispatching anything.
func (d *Disambiguator) Cancel() {
	d.session = nil
}

// PointerUp closes the session and dispatches exactly one outcome:
// swipe navigation, then (for taps only) lookup, then chrome toggle.
func (d *Disambiguator) PointerUp(x, y int) {
	if d.session == nil {
		return
	}
	sum := d.session.End(Point{x, y}, d.now())
	d.session = nil

	// Swipe wins over everything, including the drag suppression below:
	// its thresholds are evaluated on the end displacement and velocity,
	// not on the drag state.
	if delta := DetectSwipe(sum, d.cfg.Swipe); delta != 0 {
		if d.cb.Navigate != nil {
			d.cb.Navigate(delta)
		}
		return
	}

	// Drags that were not swipes suppress both navigation and lookup.
	if sum.WasDrag {
		return
	}

	if d.cb.IsInteractive != nil && d.cb.IsInteractive(x, y) {
		return
	}
	if d.hit != nil {
		if block, off, ok := d.hit.HitText(x, y); ok {
			if d.cb.Lookup != nil {
				d.cb.Lookup(block, off)
			}
			return
		}
	}
	if d.cb.ToggleChrome != nil {
		d.cb.ToggleChrome()
	}
}
