package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

const (
	rateFont      = gocv.FontHersheySimplex
	rateScale     = 0.7
	rateThickness = 2
	ratePadding   = 5
)

var (
	rateBackground = color.RGBA{0, 0, 0, 0}
	rateColor      = color.RGBA{0, 255, 0, 0}
)

// DefaultAnchor is where the rate label baseline starts.
var DefaultAnchor = image.Pt(10, 30)

func FormatRate(rate float64) string {
	return fmt.Sprintf("FPS: %.1f", rate)
}

// DrawRate draws the rate label on a filled box whose top-left corner sits
// ratePadding above and left of the text extent at anchor. The frame is
// modified in place.
func DrawRate(frame *gocv.Mat, rate float64, anchor image.Point) error {
	if frame == nil || frame.Empty() {
		return xerrors.New("cannot draw rate on an empty frame")
	}

	text := FormatRate(rate)
	size, baseline := gocv.GetTextSizeWithBaseline(text, rateFont, rateScale, rateThickness)

	box := image.Rect(
		anchor.X-ratePadding,
		anchor.Y-size.Y-ratePadding,
		anchor.X+size.X+ratePadding,
		anchor.Y+baseline+ratePadding,
	)
	if err := gocv.Rectangle(frame, box, rateBackground, -1); err != nil {
		return xerrors.Errorf("drawing rate background: %w", err)
	}

	if err := gocv.PutTextWithParams(frame, text, anchor, rateFont, rateScale, rateColor, rateThickness, gocv.LineAA, false); err != nil {
		return xerrors.Errorf("drawing rate label: %w", err)
	}

	return nil
}
