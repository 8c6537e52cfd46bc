// Package uploader transmits a frozen annotation payload plus the base
// image bytes to the storage boundary as a multipart form, surfacing
// byte-level progress and terminal success or failure to the editing
// session.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/models"
	"github.com/auditlens/backend/internal/render"
)

// ErrUploadInFlight is returned when a second submit arrives while one is
// pending. Submissions are never queued silently; duplicates would create
// two storage rows for one physical capture.
var ErrUploadInFlight = errors.New("upload already in flight")

// ProgressFunc receives byte-level transfer progress.
type ProgressFunc func(sent, total int64)

// Request is one photo submission: the project it belongs to, the base
// image bytes and the frozen payload from the editing session.
type Request struct {
	ProjectID string
	Image     []byte
	Payload   render.Payload
}

// Coordinator uploads photo submissions. One coordinator serves one editing
// session; at most one upload is in flight at a time.
type Coordinator struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
	inFlight atomic.Bool
}

// New creates a coordinator posting to the given photos endpoint.
func New(endpoint string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
		logger:   logger,
	}
}

// Upload serializes req as a multipart form and posts it. Progress callbacks
// fire as request bytes go out. On any failure the frozen payload in req is
// left untouched so the caller can retry without redoing annotation work;
// canceling ctx aborts the transfer the same way.
func (c *Coordinator) Upload(ctx context.Context, req Request, onProgress ProgressFunc) (*models.Photo, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrUploadInFlight
	}
	defer c.inFlight.Store(false)

	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, err
	}

	total := int64(body.Len())
	reader := &progressReader{r: body, total: total, onProgress: onProgress}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.ContentLength = total

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("Upload failed", zap.Error(err))
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr models.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("upload rejected (%d): %s: %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}

	var photoResp models.PhotoResponse
	if err := json.NewDecoder(resp.Body).Decode(&photoResp); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}

	c.logger.Info("Upload complete", zap.String("photo_id", photoResp.Data.ID))
	return &photoResp.Data, nil
}

// encodeForm builds the multipart body up front so the total size is known
// and progress can be reported as a fraction of it.
func encodeForm(req Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", fmt.Errorf("failed to write image: %w", err)
	}

	fields := map[string]string{
		"projectId":       req.ProjectID,
		"commentPosition": string(req.Payload.CommentPosition),
		"capturedAt":      req.Payload.CapturedAt.UTC().Format(time.RFC3339),
	}
	if req.Payload.Comment != "" {
		fields["comment"] = req.Payload.Comment
	}
	// Coordinates are sent together or not at all.
	if loc := req.Payload.Location; loc != nil {
		fields["latitude"] = strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
		fields["longitude"] = strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
	}

	stickers, err := json.Marshal(req.Payload.Stickers)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode stickers: %w", err)
	}
	fields["stickers"] = string(stickers)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// progressReader counts bytes as the transport drains the request body.
type progressReader struct {
	r          io.Reader
	sent       int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.sent, p.total)
		}
	}
	return n, err
}
