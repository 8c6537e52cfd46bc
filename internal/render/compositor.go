// Package render implements the authoritative compositor: given base image
// bytes and a frozen annotation payload it deterministically produces the
// final flattened JPEG for permanent storage.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"

	_ "image/png" // base images may be PNG

	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/annotation"
	"github.com/auditlens/backend/internal/models"
)

// JPEGQuality is the fixed encode quality of the stored artifact.
const JPEGQuality = 95

// ErrUnreadableImage marks a base image that could not be decoded. The whole
// submission is rejected; nothing is persisted for a failed composite.
var ErrUnreadableImage = errors.New("unreadable base image")

// ValidationError describes a malformed annotation payload. The submission
// is rejected wholesale rather than rendering a partial overlay, because a
// silently dropped annotation is invisible to the user after the fact.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload field %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Payload is the frozen annotation data transmitted at submit time. It
// carries only data-model entities; preview-only state (selection, armed
// tool, in-progress drag) is excluded by construction.
type Payload struct {
	ProjectName     string
	Comment         string
	CommentPosition annotation.BandPosition
	Location        *models.Geolocation
	CapturedAt      time.Time
	Stickers        []annotation.Sticker
}

// Validate rejects unknown kinds, non-finite coordinates, non-positive sizes
// and out-of-range locations before any pixel is touched.
func (p *Payload) Validate() error {
	if p.CommentPosition != "" && !p.CommentPosition.Valid() {
		return &ValidationError{Field: "commentPosition", Err: fmt.Errorf("unknown position %q", p.CommentPosition)}
	}
	if p.Location != nil {
		if err := p.Location.Validate(); err != nil {
			return &ValidationError{Field: "location", Err: err}
		}
	}
	for i := range p.Stickers {
		if err := p.Stickers[i].Validate(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("stickers[%d]", i), Err: err}
		}
	}
	return nil
}

// Compositor flattens annotation payloads onto base images. It is safe for
// concurrent use; each Composite call owns its own buffers.
type Compositor struct {
	fonts  *annotation.FontSource
	logger *zap.Logger
}

// NewCompositor creates a compositor with its font parsed up front.
func NewCompositor(logger *zap.Logger) (*Compositor, error) {
	fonts, err := annotation.LoadFontSource()
	if err != nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}
	return &Compositor{fonts: fonts, logger: logger}, nil
}

// Composite validates the payload, decodes the base image, stacks the
// overlay in the fixed back-to-front order and returns the flattened JPEG.
func (c *Compositor) Composite(baseImage []byte, p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(baseImage))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	overlay, err := c.buildOverlay(w, h, p)
	if err != nil {
		return nil, err
	}

	// Single flattening pass: base below, stacked overlay above.
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	draw.Draw(out, out.Bounds(), overlay, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}

	c.logger.Debug("Composited photo",
		zap.String("format", format),
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("stickers", len(p.Stickers)),
	)
	return buf.Bytes(), nil
}

// buildOverlay draws every overlay element onto a transparent canvas the
// size of the base image, in the same back-to-front order as the preview:
// comment band, timestamp badge, location badge, stickers in list order.
func (c *Compositor) buildOverlay(w, h int, p Payload) (image.Image, error) {
	dc := gg.NewContext(w, h)
	fw, fh := float64(w), float64(h)

	pos := p.CommentPosition
	if pos == "" {
		pos = annotation.BandTop
	}
	comment := p.Comment
	if comment != "" && p.ProjectName != "" {
		comment = p.ProjectName + " - " + comment
	}
	annotation.DrawCommentBar(dc, c.fonts.Face(annotation.CommentFontSize(fh)), comment, pos, fw, fh)

	badgeFace := c.fonts.Face(annotation.BadgeFontSize(fh))
	annotation.DrawTimestampBadge(dc, badgeFace, p.CapturedAt, fw, fh)
	if p.Location != nil {
		annotation.DrawLocationBadge(dc, badgeFace, p.Location.Latitude, p.Location.Longitude, fw, fh)
	}

	for i := range p.Stickers {
		if err := annotation.DrawSticker(dc, p.Stickers[i]); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("stickers[%d]", i), Err: err}
		}
	}
	return dc.Image(), nil
}
