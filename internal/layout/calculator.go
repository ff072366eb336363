package layout

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	applog "github.com/tatami-reader/tatami/internal/log"
	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/pkg/models"
)

// Epsilon absorbs sub-pixel rounding when deciding whether a chapter fits on
// a single page. Content one unit past a page boundary still gets its extra
// page; content within epsilon of fitting does not.
const Epsilon = 2.0

// frameDelay approximates one rendering frame: measurement after a content
// swap must not observe layout the host has not committed yet.
const frameDelay = 16 * time.Millisecond

// DefaultSettleTimeout bounds the wait for embedded images to resolve their
// intrinsic size before measurement proceeds best-effort.
const DefaultSettleTimeout = 80 * time.Millisecond

// Measurer realizes the chapter layout and reports its flow-axis extent.
// settled is false when image geometry had not resolved at measure time.
type Measurer interface {
	MeasureFlowExtent(ctx context.Context, blocks []document.Block, layout models.LayoutParameters) (extent float64, settled bool, err error)
}

// Generation tags one recompute request. A result whose generation is no
// longer current was superseded while in flight and must be discarded.
type Generation uint64

// Calculator computes page metrics. It is safe for use from the single UI
// goroutine plus any number of in-flight measurement commands.
type Calculator struct {
	measurer      Measurer
	settleTimeout time.Duration
	frameDelay    time.Duration
	log           *slog.Logger

	gen atomic.Uint64
}

// NewCalculator wraps a measurer with default settle behavior.
func NewCalculator(m Measurer) *Calculator {
	return &Calculator{
		measurer:      m,
		settleTimeout: DefaultSettleTimeout,
		frameDelay:    frameDelay,
		log:           applog.WithComponent("layout"),
	}
}

// SetSettleTimeout overrides the image-settle bound; zero disables waiting.
func (c *Calculator) SetSettleTimeout(d time.Duration) { c.settleTimeout = d }

// SetFrameDelay overrides the post-swap delay; zero disables it.
func (c *Calculator) SetFrameDelay(d time.Duration) { c.frameDelay = d }

// Supersede invalidates every in-flight recompute and returns the generation
// a new request should carry. Last request wins.
func (c *Calculator) Supersede() Generation {
	return Generation(c.gen.Add(1))
}

// IsCurrent reports whether a result produced under g may still be trusted.
func (c *Calculator) IsCurrent(g Generation) bool {
	return Generation(c.gen.Load()) == g
}

// Compute measures the chapter and derives its page metrics. Measurement is
// retried within the settle timeout while image geometry is unresolved, then
// proceeds best-effort; a timeout is never an error.
func (c *Calculator) Compute(ctx context.Context, blocks []document.Block, layout models.LayoutParameters) (models.PageMetrics, error) {
	if c.frameDelay > 0 {
		select {
		case <-time.After(c.frameDelay):
		case <-ctx.Done():
			return models.PageMetrics{}, ctx.Err()
		}
	}

	deadline := time.Now().Add(c.settleTimeout)
	var extent float64
	var settled bool
	for {
		var err error
		extent, settled, err = c.measurer.MeasureFlowExtent(ctx, blocks, layout)
		if err != nil {
			return models.PageMetrics{}, err
		}
		if settled || time.Now().After(deadline) {
			break
		}
		select {
		case <-time.After(c.frameDelay):
		case <-ctx.Done():
			return models.PageMetrics{}, ctx.Err()
		}
	}
	if !settled {
		c.log.Debug("image geometry unresolved, metrics are best-effort",
			slog.Duration("waited", c.settleTimeout))
	}

	m := MetricsFor(extent, layout)
	m.Settled = settled
	return m, nil
}

// MetricsFor derives page metrics from a realized flow extent. The column
// extent is the viewport's flow-axis size minus padding on both ends; the
// stride adds the inter-column gap. The flow carries no gap rows, so page
// windows advance by the column extent: dividing a dense extent by the
// stride would leave gap-many lines of real content unreachable at every
// page boundary.
func MetricsFor(flowExtent float64, layout models.LayoutParameters) models.PageMetrics {
	columnExtent := float64(layout.ViewportHeight - 2*layout.Padding)
	if columnExtent < 1 {
		columnExtent = 1
	}
	return models.PageMetrics{
		TotalPages: PageCount(flowExtent, columnExtent, columnExtent),
		PageExtent: columnExtent,
		PageStride: columnExtent + float64(layout.ColumnGap),
		FlowExtent: flowExtent,
		Settled:    true,
	}
}

// PageCount applies the single-page epsilon rule, then the ceiling division.
// The result is never below 1.
func PageCount(flowExtent, viewportFlowExtent, pageStride float64) int {
	if flowExtent <= viewportFlowExtent+Epsilon {
		return 1
	}
	if pageStride <= 0 {
		return 1
	}
	n := int(math.Ceil(flowExtent / pageStride))
	if n < 1 {
		n = 1
	}
	return n
}

// PageStart returns the flow offset (line index in the terminal host) where
// the given page begins.
func PageStart(page int, m models.PageMetrics) int {
	if page < 0 {
		page = 0
	}
	return int(float64(page) * pageExtent(m))
}

// PageForOffset returns the page containing the given flow offset.
func PageForOffset(offset float64, m models.PageMetrics) int {
	ext := pageExtent(m)
	if ext <= 0 || offset <= 0 {
		return 0
	}
	p := int(offset / ext)
	if p > m.TotalPages-1 {
		p = m.TotalPages - 1
	}
	return p
}

// pageExtent falls back to the stride for metrics built before PageExtent
// existed (hand-built values in tests).
func pageExtent(m models.PageMetrics) float64 {
	if m.PageExtent > 0 {
		return m.PageExtent
	}
	return m.PageStride
}
