// Package annotation defines the annotation vocabulary shared by the live
// preview and the server-side compositor: shape kinds, the color palette,
// coordinate conventions and the per-shape drawing geometry.
//
// All positions and sizes are expressed in base-image pixel space. Pointer
// coordinates captured against a scaled-down display surface must be
// converted through Scale before they are stored on a Sticker.
package annotation

import (
	"fmt"
	"image/color"
	"math"
)

// Kind identifies one of the supported sticker shapes.
type Kind string

const (
	KindArrow        Kind = "arrow"
	KindArrow3D      Kind = "arrow-3d"
	KindCircle       Kind = "circle"
	KindCircleFilled Kind = "circle-filled"
	KindCrosshair    Kind = "crosshair"
)

// Kinds lists every supported shape kind.
func Kinds() []Kind {
	return []Kind{KindArrow, KindArrow3D, KindCircle, KindCircleFilled, KindCrosshair}
}

// Valid reports whether k is a known shape kind.
func (k Kind) Valid() bool {
	switch k {
	case KindArrow, KindArrow3D, KindCircle, KindCircleFilled, KindCrosshair:
		return true
	}
	return false
}

// Color is one of the closed sticker palette entries.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorCyan   Color = "cyan"
	ColorGray   Color = "gray"
	ColorBlack  Color = "black"
)

var palette = map[Color]color.RGBA{
	ColorRed:    {R: 255, G: 50, B: 50, A: 255},
	ColorYellow: {R: 255, G: 200, B: 0, A: 255},
	ColorGreen:  {R: 0, G: 255, B: 100, A: 255},
	ColorBlue:   {R: 33, G: 150, B: 243, A: 255},
	ColorCyan:   {R: 0, G: 255, B: 255, A: 255},
	ColorGray:   {R: 128, G: 128, B: 128, A: 255},
	ColorBlack:  {R: 0, G: 0, B: 0, A: 255},
}

// Valid reports whether c is part of the palette. The empty color is not
// valid on its own; it stands for "use the shape default".
func (c Color) Valid() bool {
	_, ok := palette[c]
	return ok
}

// RGBA returns the palette value for c at full opacity.
func (c Color) RGBA() color.RGBA {
	if rgba, ok := palette[c]; ok {
		return rgba
	}
	return palette[ColorRed]
}

// DefaultColor is the color a sticker of kind k renders with when no palette
// entry was chosen.
func (k Kind) DefaultColor() Color {
	switch k {
	case KindArrow, KindArrow3D:
		return ColorYellow
	case KindCircle, KindCircleFilled:
		return ColorRed
	case KindCrosshair:
		return ColorGreen
	}
	return ColorRed
}

// Sticker is a user-placed vector shape overlaid on a photo. Position and
// size are in base-image pixels; Rotation is in degrees about the sticker's
// own center and is kept normalized to [0, 360).
type Sticker struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	Color    Color   `json:"color,omitempty"`
}

// Validate checks the sticker against the data-model invariants: known kind,
// finite coordinates, strictly positive size and a known (or empty) color.
func (s *Sticker) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown sticker kind %q", s.Kind)
	}
	for name, v := range map[string]float64{
		"x": s.X, "y": s.Y, "width": s.Width, "height": s.Height, "rotation": s.Rotation,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("sticker %s is not finite", name)
		}
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("sticker size must be positive, got %gx%g", s.Width, s.Height)
	}
	if s.Color != "" && !s.Color.Valid() {
		return fmt.Errorf("unknown sticker color %q", s.Color)
	}
	return nil
}

// Center returns the rotation pivot of the sticker.
func (s Sticker) Center() (cx, cy float64) {
	return s.X + s.Width/2, s.Y + s.Height/2
}

// Contains reports whether the base-image point (px, py) falls inside the
// sticker's unrotated bounding box. Rotation is visual-only and is
// intentionally ignored during hit-testing.
func (s Sticker) Contains(px, py float64) bool {
	return px >= s.X && px <= s.X+s.Width && py >= s.Y && py <= s.Y+s.Height
}

// EffectiveColor resolves the sticker's palette entry, falling back to the
// shape default when no color was chosen.
func (s Sticker) EffectiveColor() color.RGBA {
	if s.Color.Valid() {
		return s.Color.RGBA()
	}
	return s.Kind.DefaultColor().RGBA()
}

// NormalizeRotation wraps an angle in degrees into [0, 360).
func NormalizeRotation(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
