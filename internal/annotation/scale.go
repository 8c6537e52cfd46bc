package annotation

import "fmt"

// Scale converts between on-screen display coordinates and base-image pixel
// coordinates. Every pointer-driven mutation goes through one Scale value so
// that no event handler can forget the per-axis conversion.
type Scale struct {
	X float64
	Y float64
}

// NewScale derives the display-to-image conversion from the base image's
// natural size and the size it is displayed at. Each axis scales
// independently.
func NewScale(naturalW, naturalH, displayW, displayH float64) (Scale, error) {
	if naturalW <= 0 || naturalH <= 0 {
		return Scale{}, fmt.Errorf("natural size must be positive, got %gx%g", naturalW, naturalH)
	}
	if displayW <= 0 || displayH <= 0 {
		return Scale{}, fmt.Errorf("display size must be positive, got %gx%g", displayW, displayH)
	}
	return Scale{X: naturalW / displayW, Y: naturalH / displayH}, nil
}

// Identity is the no-op conversion for surfaces displayed at natural size.
func Identity() Scale {
	return Scale{X: 1, Y: 1}
}

// ToImage maps a display coordinate to base-image pixels.
func (s Scale) ToImage(px, py float64) (x, y float64) {
	return px * s.X, py * s.Y
}

// ToDisplay maps a base-image coordinate back to display pixels.
func (s Scale) ToDisplay(x, y float64) (px, py float64) {
	return x / s.X, y / s.Y
}
