package layout

import (
	"context"

	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/pkg/models"
)

// CellMeasurer measures by actually laying content out as a flow of terminal
// rows. The realized extent equals what the renderer will draw, so the page
// count can never disagree with the screen.
type CellMeasurer struct{}

// MeasureFlowExtent implements Measurer. settled is false while any image
// block still lacks intrinsic geometry; the placeholder row estimate is then
// best-effort.
func (CellMeasurer) MeasureFlowExtent(ctx context.Context, blocks []document.Block, layout models.LayoutParameters) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	settled := true
	for _, b := range blocks {
		if !b.Resolved() {
			settled = false
			break
		}
	}
	return BuildFlow(blocks, layout).Extent(), settled, nil
}
