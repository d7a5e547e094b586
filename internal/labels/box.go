package labels

import (
	"math"

	"github.com/trashdetect/perception/internal/perr"
)

// boundsTolerance absorbs float noise in annotation tools that export boxes
// ending exactly on the image edge. Boxes inside the band are snapped to the
// image edge.
const boundsTolerance = 1e-9

// Normalize converts a pixel box into YOLO-style centre/size coordinates
// relative to an imageWidth x imageHeight image.
//
// Boxes that do not lie fully inside the image are rejected with ErrData.
// When clamp is true the box is first intersected with the image instead.
// Degenerate boxes (zero or negative size) are always rejected.
func Normalize(b BoundingBox, imageWidth, imageHeight float64, clamp bool) (NormalizedBox, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return NormalizedBox{}, perr.Dataf("", "invalid image dimensions %gx%g", imageWidth, imageHeight)
	}
	if clamp {
		b = clampBox(b, imageWidth, imageHeight)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return NormalizedBox{}, perr.Dataf("", "degenerate box %+v", b)
	}
	if b.XMin < -boundsTolerance || b.YMin < -boundsTolerance ||
		b.XMin+b.Width > imageWidth+boundsTolerance ||
		b.YMin+b.Height > imageHeight+boundsTolerance {
		return NormalizedBox{}, perr.Dataf("", "box %+v exceeds image %gx%g", b, imageWidth, imageHeight)
	}
	b = clampBox(b, imageWidth, imageHeight)
	if b.Width <= 0 || b.Height <= 0 {
		return NormalizedBox{}, perr.Dataf("", "degenerate box %+v", b)
	}

	n := NormalizedBox{
		XCenter: (b.XMin + b.Width/2) / imageWidth,
		YCenter: (b.YMin + b.Height/2) / imageHeight,
		Width:   b.Width / imageWidth,
		Height:  b.Height / imageHeight,
	}
	if !n.Valid() {
		return NormalizedBox{}, perr.Dataf("", "box %+v does not normalise into [0,1]", b)
	}
	return n, nil
}

// Denormalize scales a normalized box back to pixel coordinates.
func Denormalize(n NormalizedBox, imageWidth, imageHeight float64) BoundingBox {
	w := n.Width * imageWidth
	h := n.Height * imageHeight
	return BoundingBox{
		XMin:   n.XCenter*imageWidth - w/2,
		YMin:   n.YCenter*imageHeight - h/2,
		Width:  w,
		Height: h,
	}
}

// Valid reports whether every component is finite and lies in [0,1].
func (n NormalizedBox) Valid() bool {
	for _, v := range n.Array() {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func clampBox(b BoundingBox, w, h float64) BoundingBox {
	x0 := clamp(b.XMin, 0, w)
	y0 := clamp(b.YMin, 0, h)
	x1 := clamp(b.XMin+b.Width, 0, w)
	y1 := clamp(b.YMin+b.Height, 0, h)
	return BoundingBox{XMin: x0, YMin: y0, Width: x1 - x0, Height: y1 - y0}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
