package burn

// Geometry is a placeholder's position expressed as percentages of the page
// dimensions, origin top-left, the way fields are authored in the editor.
type Geometry struct {
	XPercent      float64
	YPercent      float64
	WidthPercent  float64
	HeightPercent float64
}

// Rect is an absolute placement in PDF points, origin bottom-left. X/Y is
// the bottom-left corner of the drawn image.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// MapToPage converts editor geometry into the page's native coordinates.
// The PDF origin is the bottom-left corner and images anchor at their lower
// edge, so Y flips and the image height is subtracted.
func (g Geometry) MapToPage(pageW, pageH float64) Rect {
	w := g.WidthPercent / 100 * pageW
	h := g.HeightPercent / 100 * pageH
	return Rect{
		X: g.XPercent / 100 * pageW,
		Y: pageH - g.YPercent/100*pageH - h,
		W: w,
		H: h,
	}
}
