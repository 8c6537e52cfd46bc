package annotation

import (
	"image"
	"testing"
	"time"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
)

func newCanvas(t *testing.T) *gg.Context {
	t.Helper()
	return gg.NewContext(400, 300)
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestDrawSticker_UnknownKindErrors(t *testing.T) {
	dc := newCanvas(t)
	err := DrawSticker(dc, Sticker{Kind: "star", Width: 10, Height: 10})
	assert.Error(t, err)
}

func TestDrawSticker_CircleStrokesEdgeOnly(t *testing.T) {
	dc := newCanvas(t)
	s := Sticker{Kind: KindCircle, X: 100, Y: 100, Width: 80, Height: 80}
	assert.NoError(t, DrawSticker(dc, s))

	img := dc.Image()
	// Stroke passes through the horizontal edge midpoint at (180, 140).
	assert.NotZero(t, alphaAt(img, 180, 140))
	assert.NotZero(t, alphaAt(img, 100, 140))
	// Interior stays empty for the stroked variant.
	assert.Zero(t, alphaAt(img, 140, 140))

	r, g, b, _ := img.At(180, 140).RGBA()
	// Default circle color is red.
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(100))
	assert.Less(t, b>>8, uint32(100))
}

func TestDrawSticker_CircleFilledHasTranslucentInterior(t *testing.T) {
	dc := newCanvas(t)
	s := Sticker{Kind: KindCircleFilled, X: 100, Y: 100, Width: 80, Height: 80}
	assert.NoError(t, DrawSticker(dc, s))

	img := dc.Image()
	a := alphaAt(img, 140, 140)
	assert.NotZero(t, a)
	// The interior fill is 40% alpha, well below opaque.
	assert.Less(t, a, uint32(0x9000))
}

func TestDrawSticker_CrosshairCrossesCenter(t *testing.T) {
	dc := newCanvas(t)
	s := Sticker{Kind: KindCrosshair, X: 100, Y: 100, Width: 100, Height: 100}
	assert.NoError(t, DrawSticker(dc, s))

	img := dc.Image()
	// Vertical and horizontal lines run through the center.
	assert.NotZero(t, alphaAt(img, 150, 110))
	assert.NotZero(t, alphaAt(img, 110, 150))
	assert.NotZero(t, alphaAt(img, 150, 150))
}

func TestDrawSticker_FullRotationMatchesNoRotation(t *testing.T) {
	base := Sticker{Kind: KindArrow, X: 100, Y: 100, Width: 120, Height: 80}

	dc1 := newCanvas(t)
	assert.NoError(t, DrawSticker(dc1, base))

	rotated := base
	rotated.Rotation = NormalizeRotation(8 * 45) // eight steps back to start
	dc2 := newCanvas(t)
	assert.NoError(t, DrawSticker(dc2, rotated))

	assert.Equal(t, 0.0, rotated.Rotation)
	img1, img2 := dc1.Image(), dc2.Image()
	for _, p := range []image.Point{{100, 140}, {184, 140}, {219, 140}, {200, 200}} {
		assert.Equal(t, img1.At(p.X, p.Y), img2.At(p.X, p.Y), "pixel %v", p)
	}
}

func TestDrawCommentBar_EmptyTextDrawsNothing(t *testing.T) {
	fonts, err := LoadFontSource()
	assert.NoError(t, err)

	dc := newCanvas(t)
	DrawCommentBar(dc, fonts.Face(CommentFontSize(300)), "", BandTop, 400, 300)

	img := dc.Image()
	for _, p := range []image.Point{{0, 0}, {200, 10}, {399, 299}} {
		assert.Zero(t, alphaAt(img, p.X, p.Y), "pixel %v", p)
	}
}

func TestDrawCommentBar_TopAndBottom(t *testing.T) {
	fonts, err := LoadFontSource()
	assert.NoError(t, err)
	face := fonts.Face(CommentFontSize(300))

	top := newCanvas(t)
	DrawCommentBar(top, face, "inspection note", BandTop, 400, 300)
	assert.NotZero(t, alphaAt(top.Image(), 200, 5))
	assert.Zero(t, alphaAt(top.Image(), 200, 295))

	bottom := newCanvas(t)
	DrawCommentBar(bottom, face, "inspection note", BandBottom, 400, 300)
	assert.Zero(t, alphaAt(bottom.Image(), 200, 5))
	assert.NotZero(t, alphaAt(bottom.Image(), 200, 295))
}

func TestDrawTimestampBadge_BottomRight(t *testing.T) {
	fonts, err := LoadFontSource()
	assert.NoError(t, err)

	dc := newCanvas(t)
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	DrawTimestampBadge(dc, fonts.Face(BadgeFontSize(300)), ts, 400, 300)

	img := dc.Image()
	// Badge background sits in the bottom-right corner region.
	assert.NotZero(t, alphaAt(img, 380, 285))
	// Top-left stays untouched.
	assert.Zero(t, alphaAt(img, 20, 20))
}

func TestDrawLocationBadge_BottomLeft(t *testing.T) {
	fonts, err := LoadFontSource()
	assert.NoError(t, err)

	dc := newCanvas(t)
	DrawLocationBadge(dc, fonts.Face(BadgeFontSize(300)), -37.813629, 144.963058, 400, 300)

	img := dc.Image()
	assert.NotZero(t, alphaAt(img, 30, 285))
	assert.Zero(t, alphaAt(img, 380, 20))
}

func TestFormatCoordinates(t *testing.T) {
	assert.Equal(t, "-37.813629, 144.963058", FormatCoordinates(-37.813629, 144.963058))
	assert.Equal(t, "0.000000, 0.000000", FormatCoordinates(0, 0))
}

func TestFontSizes_ScaleWithImageHeight(t *testing.T) {
	// Small images clamp to the floor.
	assert.Equal(t, 24.0, CommentFontSize(300))
	assert.Equal(t, 18.0, BadgeFontSize(300))

	// Large images scale up.
	assert.Equal(t, 100.0, CommentFontSize(3000))
	assert.InDelta(t, 66.67, BadgeFontSize(3000), 0.01)

	assert.Equal(t, 2*CommentFontSize(3000), CommentBandHeight(3000))
}
