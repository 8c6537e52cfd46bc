package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/annotation"
	"github.com/auditlens/backend/internal/models"
)

func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	assert.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := NewCompositor(zap.NewNop())
	assert.NoError(t, err)
	return c
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
	return img
}

func TestComposite_Deterministic(t *testing.T) {
	c := testCompositor(t)
	base := testImage(t, 400, 300)
	p := Payload{
		ProjectName: "Site A",
		Comment:     "north wall",
		CapturedAt:  time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Stickers: []annotation.Sticker{
			{ID: "s1", Kind: annotation.KindArrow, X: 50, Y: 60, Width: 100, Height: 100, Rotation: 45},
			{ID: "s2", Kind: annotation.KindCircleFilled, X: 200, Y: 100, Width: 80, Height: 80, Color: annotation.ColorCyan},
		},
	}

	first, err := c.Composite(base, p)
	assert.NoError(t, err)
	second, err := c.Composite(base, p)
	assert.NoError(t, err)

	// Same inputs, byte-identical artifact.
	assert.Equal(t, first, second)
}

func TestComposite_TimestampAlwaysRendered(t *testing.T) {
	c := testCompositor(t)
	base := testImage(t, 400, 300)

	// A bare payload: no comment, no location, no stickers.
	out, err := c.Composite(base, Payload{CapturedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	assert.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	// The badge background darkens the bottom-right corner region.
	r, g, b, _ := img.At(380, 285).RGBA()
	sum := (r + g + b) >> 8
	assert.Less(t, sum, uint32(200), "timestamp badge should darken the corner")

	// The top-left keeps the base gray.
	r, _, _, _ = img.At(20, 150).RGBA()
	assert.InDelta(t, 120, int(r>>8), 15)
}

func TestComposite_BottomBandCoversBottomEdge(t *testing.T) {
	c := testCompositor(t)
	base := testImage(t, 400, 300)
	p := Payload{
		Comment:         "under the stairs",
		CommentPosition: annotation.BandBottom,
		CapturedAt:      time.Now(),
	}

	out, err := c.Composite(base, p)
	assert.NoError(t, err)

	img := decodeJPEG(t, out)
	// Band darkens the bottom-left edge; the top edge keeps base gray.
	r, g, b, _ := img.At(5, 295).RGBA()
	assert.Less(t, (r+g+b)>>8, uint32(250))
	r, _, _, _ = img.At(200, 5).RGBA()
	assert.InDelta(t, 120, int(r>>8), 15)
}

func TestComposite_ProjectNamePrefixesComment(t *testing.T) {
	c := testCompositor(t)
	base := testImage(t, 400, 300)

	withName, err := c.Composite(base, Payload{
		ProjectName: "Site A",
		Comment:     "x",
		CapturedAt:  time.Unix(0, 0).UTC(),
	})
	assert.NoError(t, err)

	withoutName, err := c.Composite(base, Payload{
		Comment:    "x",
		CapturedAt: time.Unix(0, 0).UTC(),
	})
	assert.NoError(t, err)

	// The prefixed band renders different text, so the artifacts diverge.
	assert.NotEqual(t, withName, withoutName)
}

func TestComposite_RejectsMalformedSticker(t *testing.T) {
	c := testCompositor(t)
	base := testImage(t, 100, 100)
	p := Payload{
		CapturedAt: time.Now(),
		Stickers: []annotation.Sticker{
			{ID: "bad", Kind: "star", Width: 10, Height: 10},
		},
	}

	_, err := c.Composite(base, p)
	assert.Error(t, err)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "stickers[0]", vErr.Field)
}

func TestComposite_RejectsOutOfRangeLocation(t *testing.T) {
	c := testCompositor(t)
	base := testImage(t, 100, 100)
	p := Payload{
		CapturedAt: time.Now(),
		Location:   &models.Geolocation{Latitude: 91, Longitude: 0},
	}

	_, err := c.Composite(base, p)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "location", vErr.Field)
}

func TestComposite_RejectsUnreadableImage(t *testing.T) {
	c := testCompositor(t)

	_, err := c.Composite([]byte("not an image"), Payload{CapturedAt: time.Now()})
	assert.ErrorIs(t, err, ErrUnreadableImage)
}

func TestComposite_RejectsUnknownBandPosition(t *testing.T) {
	c := testCompositor(t)
	base := testImage(t, 100, 100)

	_, err := c.Composite(base, Payload{
		CapturedAt:      time.Now(),
		CommentPosition: "middle",
	})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "commentPosition", vErr.Field)
}

func TestPayloadValidate_EmptyPayloadOK(t *testing.T) {
	p := Payload{}
	assert.NoError(t, p.Validate())
}
