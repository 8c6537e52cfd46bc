// Package editor maintains the interactive editing session for one photo:
// the mutable sticker list, the tool/selection state machine and the live
// preview raster shown while the user edits.
//
// A session is single-threaded by design. All mutations arrive on the same
// event-processing path (pointer events, button actions), so no locking is
// needed; Render is called synchronously after each mutation.
package editor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"time"

	_ "image/jpeg" // captured base images
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/annotation"
	"github.com/auditlens/backend/internal/models"
	"github.com/auditlens/backend/internal/render"
)

// Fixed interaction parameters.
const (
	placedSize   = 100.0 // new stickers start 100x100, centered on the tap
	rotationStep = 45.0
	growFactor   = 1.1
	shrinkFactor = 0.9
)

// ErrNoImage is returned by Render when the base image failed to decode.
// The session renders nothing rather than a partial frame.
var ErrNoImage = errors.New("base image not decoded")

// State is the editing-session interaction state.
type State int

const (
	StateIdle State = iota
	StatePlacing
	StateDragging
)

// Session owns the mutable annotation list and base image buffer until the
// payload is frozen for upload.
type Session struct {
	base        image.Image
	naturalW    float64
	naturalH    float64
	scale       annotation.Scale
	fonts       *annotation.FontSource
	logger      *zap.Logger
	projectName string
	capturedAt  time.Time

	stickers   []annotation.Sticker
	selected   string
	state      State
	placing    annotation.Kind
	grabX      float64
	grabY      float64
	comment    string
	commentPos annotation.BandPosition
	location   *models.Geolocation
}

// NewSession decodes the base image and starts an idle session. capturedAt
// is fixed at construction (the moment of shutter press or file selection)
// and never changes afterward.
func NewSession(baseImage []byte, projectName string, capturedAt time.Time, fonts *annotation.FontSource, logger *zap.Logger) (*Session, error) {
	img, _, err := image.Decode(bytes.NewReader(baseImage))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoImage, err)
	}

	b := img.Bounds()
	return &Session{
		base:        img,
		naturalW:    float64(b.Dx()),
		naturalH:    float64(b.Dy()),
		scale:       annotation.Identity(),
		fonts:       fonts,
		logger:      logger,
		projectName: projectName,
		capturedAt:  capturedAt,
		commentPos:  annotation.BandTop,
	}, nil
}

// SetDisplaySize records the on-screen size of the editing surface so that
// pointer coordinates can be converted to base-image pixels per axis.
func (s *Session) SetDisplaySize(displayW, displayH float64) error {
	scale, err := annotation.NewScale(s.naturalW, s.naturalH, displayW, displayH)
	if err != nil {
		return err
	}
	s.scale = scale
	return nil
}

// NaturalSize returns the base image's pixel dimensions.
func (s *Session) NaturalSize() (w, h float64) { return s.naturalW, s.naturalH }

// State returns the current interaction state.
func (s *Session) State() State { return s.state }

// Stickers returns a copy of the current annotation list in z-order.
func (s *Session) Stickers() []annotation.Sticker {
	out := make([]annotation.Sticker, len(s.stickers))
	copy(out, s.stickers)
	return out
}

// Selected returns the currently selected sticker, or nil.
func (s *Session) Selected() *annotation.Sticker {
	if i := s.indexOf(s.selected); i >= 0 {
		st := s.stickers[i]
		return &st
	}
	return nil
}

// ArmTool switches to placing mode for the given shape kind. Arming a tool
// while another is armed simply replaces it.
func (s *Session) ArmTool(kind annotation.Kind) {
	if !kind.Valid() {
		return
	}
	s.state = StatePlacing
	s.placing = kind
}

// PointerDown handles a press at display coordinates. In placing mode it
// creates the armed shape centered on the tap and selects it; otherwise it
// hit-tests the sticker list (topmost first) and begins a drag, or clears
// the selection over empty canvas.
func (s *Session) PointerDown(displayX, displayY float64) {
	x, y := s.scale.ToImage(displayX, displayY)

	if s.state == StatePlacing {
		st := annotation.Sticker{
			ID:     "sticker-" + uuid.NewString(),
			Kind:   s.placing,
			X:      x - placedSize/2,
			Y:      y - placedSize/2,
			Width:  placedSize,
			Height: placedSize,
		}
		s.stickers = append(s.stickers, st)
		s.selected = st.ID
		s.state = StateIdle
		s.placing = ""
		s.logger.Debug("Placed sticker", zap.String("id", st.ID), zap.String("kind", string(st.Kind)))
		return
	}

	// Topmost sticker wins: walk the z-order back to front.
	for i := len(s.stickers) - 1; i >= 0; i-- {
		if s.stickers[i].Contains(x, y) {
			s.selected = s.stickers[i].ID
			s.state = StateDragging
			// Grab offset keeps the sticker from snapping its origin
			// to the pointer.
			s.grabX = x - s.stickers[i].X
			s.grabY = y - s.stickers[i].Y
			return
		}
	}
	s.selected = ""
}

// PointerMove updates the dragged sticker's position.
func (s *Session) PointerMove(displayX, displayY float64) {
	if s.state != StateDragging {
		return
	}
	i := s.indexOf(s.selected)
	if i < 0 {
		return
	}
	x, y := s.scale.ToImage(displayX, displayY)
	s.stickers[i].X = x - s.grabX
	s.stickers[i].Y = y - s.grabY
}

// PointerUp ends an in-progress drag, keeping the final position.
func (s *Session) PointerUp() {
	if s.state == StateDragging {
		s.state = StateIdle
	}
}

// RotateSelected rotates the selected sticker by one step, wrapping modulo
// 360. A no-op without a selection.
func (s *Session) RotateSelected() {
	if i := s.indexOf(s.selected); i >= 0 {
		s.stickers[i].Rotation = annotation.NormalizeRotation(s.stickers[i].Rotation + rotationStep)
	}
}

// GrowSelected scales the selected sticker up by the fixed resize factor.
func (s *Session) GrowSelected() { s.resizeSelected(growFactor) }

// ShrinkSelected scales the selected sticker down by the fixed resize factor.
func (s *Session) ShrinkSelected() { s.resizeSelected(shrinkFactor) }

func (s *Session) resizeSelected(factor float64) {
	if i := s.indexOf(s.selected); i >= 0 {
		s.stickers[i].Width *= factor
		s.stickers[i].Height *= factor
	}
}

// RecolorSelected assigns a palette color to the selected sticker. Unknown
// colors and missing selections are silent no-ops.
func (s *Session) RecolorSelected(c annotation.Color) {
	if !c.Valid() {
		return
	}
	if i := s.indexOf(s.selected); i >= 0 {
		s.stickers[i].Color = c
	}
}

// DeleteSelected removes the selected sticker from the list.
func (s *Session) DeleteSelected() {
	i := s.indexOf(s.selected)
	if i < 0 {
		return
	}
	s.stickers = append(s.stickers[:i], s.stickers[i+1:]...)
	s.selected = ""
}

// SetComment updates the free-text comment shown in the comment band.
func (s *Session) SetComment(text string) { s.comment = text }

// SetCommentPosition moves the comment band. Unknown positions are ignored.
func (s *Session) SetCommentPosition(pos annotation.BandPosition) {
	if pos.Valid() {
		s.commentPos = pos
	}
}

// SetLocation replaces the capture location wholesale; passing nil clears it.
func (s *Session) SetLocation(loc *models.Geolocation) {
	if loc == nil {
		s.location = nil
		return
	}
	copied := *loc
	s.location = &copied
}

// Render repaints the full preview surface at natural resolution: base
// image, comment band, timestamp badge, location badge, then every sticker
// in z-order, with dashed selection chrome on the selected sticker. The
// chrome is preview-only decoration and never reaches the stored artifact.
func (s *Session) Render() (image.Image, error) {
	if s.base == nil {
		return nil, ErrNoImage
	}

	w, h := int(s.naturalW), int(s.naturalH)
	dc := gg.NewContext(w, h)
	dc.DrawImage(s.base, 0, 0)

	comment := s.comment
	if comment != "" && s.projectName != "" {
		comment = s.projectName + " - " + comment
	}
	annotation.DrawCommentBar(dc, s.fonts.Face(annotation.CommentFontSize(s.naturalH)), comment, s.commentPos, s.naturalW, s.naturalH)

	badgeFace := s.fonts.Face(annotation.BadgeFontSize(s.naturalH))
	annotation.DrawTimestampBadge(dc, badgeFace, s.capturedAt, s.naturalW, s.naturalH)
	if s.location != nil {
		annotation.DrawLocationBadge(dc, badgeFace, s.location.Latitude, s.location.Longitude, s.naturalW, s.naturalH)
	}

	for i := range s.stickers {
		if err := annotation.DrawSticker(dc, s.stickers[i]); err != nil {
			return nil, err
		}
		if s.stickers[i].ID == s.selected {
			s.drawSelectionChrome(dc, s.stickers[i])
		}
	}
	return dc.Image(), nil
}

// drawSelectionChrome draws the dashed bounding rectangle and resize handle
// around the selected sticker, inside its rotation transform so the chrome
// follows the shape.
func (s *Session) drawSelectionChrome(dc *gg.Context, st annotation.Sticker) {
	cx, cy := st.Center()
	dc.Push()
	dc.RotateAbout(gg.Radians(st.Rotation), cx, cy)

	dc.SetRGBA(33/255.0, 150/255.0, 243/255.0, 0.8)
	dc.SetLineWidth(2)
	dc.SetDash(5, 5)
	dc.DrawRectangle(st.X, st.Y, st.Width, st.Height)
	dc.Stroke()
	dc.SetDash()

	const handleSize = 12.0
	dc.SetRGBA(33/255.0, 150/255.0, 243/255.0, 0.9)
	dc.DrawRectangle(st.X+st.Width-handleSize/2, st.Y+st.Height-handleSize/2, handleSize, handleSize)
	dc.Fill()
	dc.Pop()
}

// Freeze produces the immutable upload payload: the data-model entities
// only, with selection and tool state excluded by construction. The caller
// discards the session after a successful upload.
func (s *Session) Freeze() render.Payload {
	return render.Payload{
		ProjectName:     s.projectName,
		Comment:         s.comment,
		CommentPosition: s.commentPos,
		Location:        s.cloneLocation(),
		CapturedAt:      s.capturedAt,
		Stickers:        s.Stickers(),
	}
}

func (s *Session) cloneLocation() *models.Geolocation {
	if s.location == nil {
		return nil
	}
	copied := *s.location
	return &copied
}

func (s *Session) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.stickers {
		if s.stickers[i].ID == id {
			return i
		}
	}
	return -1
}
