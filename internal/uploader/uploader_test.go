package uploader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/annotation"
	"github.com/auditlens/backend/internal/models"
	"github.com/auditlens/backend/internal/render"
)

func testRequest() Request {
	lat, lon := -37.8, 144.9
	return Request{
		ProjectID: "project-1",
		Image:     []byte("jpeg-bytes"),
		Payload: render.Payload{
			ProjectName:     "Site A",
			Comment:         "north wall",
			CommentPosition: annotation.BandTop,
			Location:        &models.Geolocation{Latitude: lat, Longitude: lon},
			CapturedAt:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
			Stickers: []annotation.Sticker{
				{ID: "s1", Kind: annotation.KindArrow, X: 10, Y: 20, Width: 100, Height: 100, Rotation: 45},
			},
		},
	}
}

func TestUpload_SendsMultipartForm(t *testing.T) {
	var gotForm map[string]string
	var gotImage []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(32<<20))

		gotForm = map[string]string{}
		for key := range r.MultipartForm.Value {
			gotForm[key] = r.FormValue(key)
		}

		file, _, err := r.FormFile("photo")
		assert.NoError(t, err)
		defer file.Close()
		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		gotImage = buf[:n]

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.PhotoResponse{
			Data: models.Photo{ID: "photo-1", ProjectID: "project-1"},
		})
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	photo, err := c.Upload(context.Background(), testRequest(), nil)
	assert.NoError(t, err)
	assert.Equal(t, "photo-1", photo.ID)

	assert.Equal(t, []byte("jpeg-bytes"), gotImage)
	assert.Equal(t, "project-1", gotForm["projectId"])
	assert.Equal(t, "north wall", gotForm["comment"])
	assert.Equal(t, "top", gotForm["commentPosition"])
	assert.Equal(t, "-37.8", gotForm["latitude"])
	assert.Equal(t, "144.9", gotForm["longitude"])
	assert.Equal(t, "2024-03-15T10:30:00Z", gotForm["capturedAt"])

	var stickers []annotation.Sticker
	assert.NoError(t, json.Unmarshal([]byte(gotForm["stickers"]), &stickers))
	assert.Len(t, stickers, 1)
	assert.Equal(t, annotation.KindArrow, stickers[0].Kind)
}

func TestUpload_OmitsEmptyOptionalFields(t *testing.T) {
	var hasComment, hasLatitude bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(32<<20))
		_, hasComment = r.MultipartForm.Value["comment"]
		_, hasLatitude = r.MultipartForm.Value["latitude"]

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.PhotoResponse{Data: models.Photo{ID: "photo-1"}})
	}))
	defer server.Close()

	req := testRequest()
	req.Payload.Comment = ""
	req.Payload.Location = nil

	c := New(server.URL, zap.NewNop())
	_, err := c.Upload(context.Background(), req, nil)
	assert.NoError(t, err)
	assert.False(t, hasComment)
	assert.False(t, hasLatitude)
}

func TestUpload_ReportsProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.PhotoResponse{Data: models.Photo{ID: "photo-1"}})
	}))
	defer server.Close()

	var mu sync.Mutex
	var lastSent, total int64
	calls := 0

	c := New(server.URL, zap.NewNop())
	_, err := c.Upload(context.Background(), testRequest(), func(sent, size int64) {
		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, sent, lastSent)
		lastSent, total = sent, size
		calls++
	})
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, calls, 0)
	assert.Equal(t, total, lastSent, "progress should reach the full body size")
}

func TestUpload_RejectedWithErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{
			Error:   "invalid_annotations",
			Message: "unknown sticker kind",
		})
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	_, err := c.Upload(context.Background(), testRequest(), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_annotations")
}

func TestUpload_RetryAfterFailureSucceeds(t *testing.T) {
	attempt := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.PhotoResponse{Data: models.Photo{ID: "photo-1"}})
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())
	req := testRequest()

	_, err := c.Upload(context.Background(), req, nil)
	assert.Error(t, err)

	// The request is untouched by the failure; a plain retry succeeds.
	photo, err := c.Upload(context.Background(), req, nil)
	assert.NoError(t, err)
	assert.Equal(t, "photo-1", photo.ID)
	assert.Equal(t, 2, attempt)
}

func TestUpload_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.PhotoResponse{Data: models.Photo{ID: "photo-1"}})
	}))
	defer server.Close()

	c := New(server.URL, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := c.Upload(context.Background(), testRequest(), nil)
		done <- err
	}()

	// Wait until the first upload is blocked inside the server handler.
	assert.Eventually(t, func() bool {
		_, err := c.Upload(context.Background(), testRequest(), nil)
		return err == ErrUploadInFlight
	}, time.Second, 5*time.Millisecond)

	close(release)
	assert.NoError(t, <-done)

	// After completion a new upload is accepted again.
	_, err := c.Upload(context.Background(), testRequest(), nil)
	assert.NoError(t, err)
}

func TestUpload_ContextCancelAborts(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := New(server.URL, zap.NewNop())
	_, err := c.Upload(ctx, testRequest(), nil)
	assert.Error(t, err)
}
