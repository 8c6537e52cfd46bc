package annotation

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// The geometry in this file is the single source of truth for how stickers
// and badges look. Both the live preview and the server-side compositor draw
// through these functions, so what the user sees while editing is what gets
// persisted.

// BandPosition places the comment band at the top or bottom edge.
type BandPosition string

const (
	BandTop    BandPosition = "top"
	BandBottom BandPosition = "bottom"
)

// Valid reports whether p is a known band position.
func (p BandPosition) Valid() bool {
	return p == BandTop || p == BandBottom
}

// TimestampLayout is the wall-clock format rendered into the timestamp badge.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatCoordinates renders a latitude/longitude pair the way the location
// badge shows it.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

// CommentFontSize returns the comment band font size for an image of the
// given pixel height.
func CommentFontSize(imageH float64) float64 {
	return math.Max(24, imageH/30)
}

// BadgeFontSize returns the timestamp/location badge font size for an image
// of the given pixel height.
func BadgeFontSize(imageH float64) float64 {
	return math.Max(18, imageH/45)
}

// CommentBandHeight is the total height of the comment band, font size plus
// padding above and below.
func CommentBandHeight(imageH float64) float64 {
	fs := CommentFontSize(imageH)
	return fs + fs // fontSize + 2 * (0.5 * fontSize)
}

var (
	bandFill  = color.NRGBA{A: 178}             // black at 70%
	badgeFill = color.NRGBA{A: 229}             // black at 90%
	white     = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	pinGreen  = color.NRGBA{R: 16, G: 185, B: 129, A: 255} // emerald
)

// DrawCommentBar draws a full-width comment band at the top or bottom edge
// of a w-by-h surface. Empty text draws nothing.
func DrawCommentBar(dc *gg.Context, face font.Face, text string, pos BandPosition, w, h float64) {
	if text == "" {
		return
	}
	fs := CommentFontSize(h)
	padding := fs * 0.5
	bandH := fs + 2*padding

	bandY := 0.0
	if pos == BandBottom {
		bandY = h - bandH
	}

	dc.SetColor(bandFill)
	dc.DrawRectangle(0, bandY, w, bandH)
	dc.Fill()

	dc.SetFontFace(face)
	dc.SetColor(white)
	dc.DrawString(text, padding, bandY+bandH-padding*0.75-faceDescent(face))
}

// DrawTimestampBadge draws the capture time bottom-right on a w-by-h
// surface. The badge is always rendered; t comes from the moment of capture,
// never from render time.
func DrawTimestampBadge(dc *gg.Context, face font.Face, t time.Time, w, h float64) {
	text := t.Format(TimestampLayout)
	fs := BadgeFontSize(h)
	padding := fs * 0.6

	dc.SetFontFace(face)
	textW, _ := dc.MeasureString(text)

	baseY := h - padding*1.2
	textX := w - textW - padding*2

	dc.SetColor(badgeFill)
	dc.DrawRectangle(textX-padding, baseY-fs-padding/2, textW+padding*2, fs+padding*1.2)
	dc.Fill()

	dc.SetColor(white)
	dc.DrawString(text, textX, baseY-padding/2)
}

// DrawLocationBadge draws the coordinates bottom-left with a small map-pin
// glyph, mirroring the timestamp badge metrics.
func DrawLocationBadge(dc *gg.Context, face font.Face, lat, lon, w, h float64) {
	text := FormatCoordinates(lat, lon)
	fs := BadgeFontSize(h)
	padding := fs * 0.6
	iconSize := fs * 1.2

	dc.SetFontFace(face)
	textW, _ := dc.MeasureString(text)

	baseY := h - padding*1.2

	dc.SetColor(badgeFill)
	dc.DrawRectangle(padding, baseY-fs-padding/2, textW+iconSize+padding*3, fs+padding*1.2)
	dc.Fill()

	// Pin glyph: a dot above a downward triangle.
	pinX := padding + iconSize/2 + padding
	pinY := baseY - fs/2
	dc.SetColor(pinGreen)
	dc.DrawCircle(pinX, pinY-iconSize*0.15, iconSize*0.25)
	dc.Fill()
	dc.MoveTo(pinX, pinY+iconSize*0.15)
	dc.LineTo(pinX-iconSize*0.15, pinY-iconSize*0.05)
	dc.LineTo(pinX+iconSize*0.15, pinY-iconSize*0.05)
	dc.ClosePath()
	dc.Fill()

	dc.SetColor(white)
	dc.DrawString(text, padding*2+iconSize+padding, baseY-padding/2)
}

// DrawSticker draws one sticker onto dc, rotated about its own center.
// The kind dispatch is exhaustive; an unknown kind is an error, never a
// silently skipped shape.
func DrawSticker(dc *gg.Context, s Sticker) error {
	cx, cy := s.Center()

	dc.Push()
	dc.RotateAbout(gg.Radians(s.Rotation), cx, cy)
	defer dc.Pop()

	switch s.Kind {
	case KindArrow:
		drawArrow(dc, s)
	case KindArrow3D:
		drawArrow3D(dc, s)
	case KindCircle:
		drawCircle(dc, s, false)
	case KindCircleFilled:
		drawCircle(dc, s, true)
	case KindCrosshair:
		drawCrosshair(dc, s)
	default:
		return fmt.Errorf("unknown sticker kind %q", s.Kind)
	}
	return nil
}

func drawArrow(dc *gg.Context, s Sticker) {
	col := s.EffectiveColor()
	midY := s.Y + s.Height/2

	dc.SetColor(col)
	dc.SetLineWidth(math.Max(4, s.Width/20))
	dc.DrawLine(s.X, midY, s.X+s.Width*0.7, midY)
	dc.Stroke()

	dc.MoveTo(s.X+s.Width, midY)
	dc.LineTo(s.X+s.Width*0.7, s.Y+s.Height*0.2)
	dc.LineTo(s.X+s.Width*0.7, s.Y+s.Height*0.8)
	dc.ClosePath()
	dc.Fill()
}

func drawArrow3D(dc *gg.Context, s Sticker) {
	base := s.EffectiveColor()
	grad := gg.NewLinearGradient(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
	grad.AddColorStop(0, base)
	grad.AddColorStop(0.5, shade(base, 0.8))
	grad.AddColorStop(1, shade(base, 0.55))

	midY := s.Y + s.Height/2

	dc.SetStrokeStyle(grad)
	dc.SetLineWidth(math.Max(5, s.Width/18))
	dc.DrawLine(s.X, midY, s.X+s.Width*0.65, midY)
	dc.Stroke()

	dc.SetFillStyle(grad)
	dc.MoveTo(s.X+s.Width, midY)
	dc.LineTo(s.X+s.Width*0.65, s.Y+s.Height*0.15)
	dc.LineTo(s.X+s.Width*0.65, s.Y+s.Height*0.85)
	dc.ClosePath()
	dc.Fill()
}

func drawCircle(dc *gg.Context, s Sticker, filled bool) {
	col := s.EffectiveColor()
	cx, cy := s.Center()

	if filled {
		fill := col
		fill.A = 102 // 40% alpha
		dc.SetColor(fill)
		dc.DrawEllipse(cx, cy, s.Width/2, s.Height/2)
		dc.Fill()
		dc.SetColor(col)
		dc.SetLineWidth(3)
	} else {
		dc.SetColor(col)
		dc.SetLineWidth(math.Max(4, s.Width/15))
	}
	dc.DrawEllipse(cx, cy, s.Width/2, s.Height/2)
	dc.Stroke()
}

func drawCrosshair(dc *gg.Context, s Sticker) {
	col := s.EffectiveColor()
	cx, cy := s.Center()

	dc.SetColor(col)
	dc.SetLineWidth(math.Max(3, s.Width/25))

	dc.DrawCircle(cx, cy, s.Width/2)
	dc.Stroke()

	dc.DrawLine(cx, s.Y, cx, s.Y+s.Height)
	dc.Stroke()
	dc.DrawLine(s.X, cy, s.X+s.Width, cy)
	dc.Stroke()

	dc.DrawCircle(cx, cy, s.Width/8)
	dc.Stroke()
}

// shade darkens a palette color by the given factor.
func shade(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func faceDescent(face font.Face) float64 {
	return float64(face.Metrics().Descent.Round())
}
