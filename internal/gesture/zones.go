package gesture

import "github.com/tatami-reader/tatami/pkg/models"

// Zone classifies a tap coordinate for zone-based navigation, used only in
// non-paginated (continuous) flows where swipes scroll instead of turning.
type Zone int

const (
	ZoneNeutral Zone = iota
	ZonePrevious
	ZoneNext
)

// ZoneFor splits the viewport into thirds along the cross axis. The outer
// thirds navigate; the middle third is neutral (lookup or chrome toggle).
// Right-to-left flows reverse the outer mapping.
func ZoneFor(x, width int, dir models.ReadingDirection) Zone {
	if width <= 0 {
		return ZoneNeutral
	}
	third := width / 3
	var z Zone
	switch {
	case x < third:
		z = ZonePrevious
	case x >= width-third:
		z = ZoneNext
	default:
		return ZoneNeutral
	}
	if dir.RTL() {
		if z == ZonePrevious {
			return ZoneNext
		}
		return ZonePrevious
	}
	return z
}
