// Package handler provides the HTTP handlers for project and photo
// operations, including the photo submission endpoint that runs the
// authoritative compositing pass.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/annotation"
	"github.com/auditlens/backend/internal/cache"
	"github.com/auditlens/backend/internal/config"
	"github.com/auditlens/backend/internal/database"
	"github.com/auditlens/backend/internal/geocode"
	"github.com/auditlens/backend/internal/models"
	"github.com/auditlens/backend/internal/render"
	"github.com/auditlens/backend/internal/storage"
)

// Geocoder resolves free-text location queries.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]geocode.Result, error)
}

// Handler provides HTTP handlers for project and photo operations.
type Handler struct {
	repo           database.Repository
	cache          cache.Cache
	store          *storage.Store
	compositor     *render.Compositor
	geocoder       Geocoder
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(repo database.Repository, cache cache.Cache, store *storage.Store, compositor *render.Compositor, geocoder Geocoder, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		repo:           repo,
		cache:          cache,
		store:          store,
		compositor:     compositor,
		geocoder:       geocoder,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/projects", h.CreateProject)
	rg.GET("/projects", h.ListProjects)
	rg.GET("/projects/:id", h.GetProject)
	rg.PUT("/projects/:id", h.UpdateProject)
	rg.PATCH("/projects/:id", h.UpdateProject)
	rg.DELETE("/projects/:id", h.DeleteProject)
	rg.GET("/projects/:id/photos", h.ListProjectPhotos)

	rg.POST("/photos", h.CreatePhoto)
	rg.GET("/photos/:id", h.GetPhoto)
	rg.GET("/photos/:id/file", h.GetPhotoFile)
	rg.GET("/photos/:id/thumbnail", h.GetPhotoThumbnail)
	rg.DELETE("/photos/:id", h.DeletePhoto)

	rg.GET("/geocode/search", h.SearchLocations)
}

// CreateProject handles the creation of a new project.
func (h *Handler) CreateProject(c *gin.Context) {
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid create project request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	project, err := h.repo.CreateProject(ctx, &req)
	if err != nil {
		h.logger.Error("Failed to create project", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to create project",
		})
		return
	}

	_ = h.cache.InvalidateProjects(ctx)

	c.JSON(http.StatusCreated, models.ProjectResponse{Data: *project})
}

// ListProjects handles retrieving all projects.
func (h *Handler) ListProjects(c *gin.Context) {
	ctx := c.Request.Context()

	// Try cache first
	projects, found, err := h.cache.GetProjects(ctx)
	if err == nil && found {
		h.logger.Debug("Returning cached projects")
		c.JSON(http.StatusOK, models.ProjectsResponse{Data: projects})
		return
	}

	projects, err = h.repo.ListProjects(ctx)
	if err != nil {
		h.logger.Error("Failed to list projects", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to retrieve projects",
		})
		return
	}

	_ = h.cache.SetProjects(ctx, projects)

	c.JSON(http.StatusOK, models.ProjectsResponse{Data: projects})
}

// GetProject handles retrieving a single project by ID.
func (h *Handler) GetProject(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	project, err := h.repo.GetProject(ctx, id)
	if err != nil {
		h.logger.Error("Failed to get project", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to retrieve project",
		})
		return
	}

	if project == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "project not found",
		})
		return
	}

	c.JSON(http.StatusOK, models.ProjectResponse{Data: *project})
}

// UpdateProject handles updating an existing project.
func (h *Handler) UpdateProject(c *gin.Context) {
	id := c.Param("id")

	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid update project request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	project, err := h.repo.UpdateProject(ctx, id, &req)
	if err != nil {
		h.logger.Error("Failed to update project", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to update project",
		})
		return
	}

	if project == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "project not found",
		})
		return
	}

	_ = h.cache.InvalidateProjects(ctx)

	c.JSON(http.StatusOK, models.ProjectResponse{Data: *project})
}

// DeleteProject handles deleting a project. Its photo rows go with it via
// cascade; the stored files are removed best-effort.
func (h *Handler) DeleteProject(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	// Collect filenames before the cascade wipes the rows.
	photos, err := h.repo.ListProjectPhotos(ctx, id)
	if err != nil {
		h.logger.Error("Failed to list photos for deletion", zap.String("project_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to delete project",
		})
		return
	}

	if err := h.repo.DeleteProject(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "project not found",
			})
			return
		}
		h.logger.Error("Failed to delete project", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to delete project",
		})
		return
	}

	for i := range photos {
		_ = h.store.Remove(photos[i].Filename)
	}

	_ = h.cache.InvalidateProjects(ctx)
	_ = h.cache.InvalidateProjectPhotos(ctx, id)

	c.Status(http.StatusNoContent)
}

// ListProjectPhotos handles retrieving a project's photos.
func (h *Handler) ListProjectPhotos(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	project, err := h.repo.GetProject(ctx, id)
	if err != nil {
		h.logger.Error("Failed to get project", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to retrieve photos",
		})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "project not found",
		})
		return
	}

	// Try cache first
	photos, found, err := h.cache.GetProjectPhotos(ctx, id)
	if err == nil && found {
		h.logger.Debug("Returning cached photos", zap.String("project_id", id))
		c.JSON(http.StatusOK, models.PhotosResponse{Data: photos})
		return
	}

	photos, err = h.repo.ListProjectPhotos(ctx, id)
	if err != nil {
		h.logger.Error("Failed to list photos", zap.String("project_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to retrieve photos",
		})
		return
	}

	_ = h.cache.SetProjectPhotos(ctx, id, photos)

	c.JSON(http.StatusOK, models.PhotosResponse{Data: photos})
}

// CreatePhoto handles a photo submission: it parses the multipart form,
// runs the authoritative compositing pass and persists the flattened
// artifact plus its annotation record. Nothing is persisted for a rejected
// submission.
func (h *Handler) CreatePhoto(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	sub, ok := h.parseSubmission(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	project, err := h.repo.GetProject(ctx, sub.projectID)
	if err != nil {
		h.logger.Error("Failed to get project", zap.String("id", sub.projectID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to process photo",
		})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "project not found",
		})
		return
	}

	payload := render.Payload{
		ProjectName:     project.Name,
		Comment:         sub.comment,
		CommentPosition: sub.commentPos,
		Location:        sub.location,
		CapturedAt:      sub.capturedAt,
		Stickers:        sub.stickers,
	}

	artifact, err := h.compositor.Composite(sub.image, payload)
	if err != nil {
		var vErr *render.ValidationError
		switch {
		case errors.As(err, &vErr):
			h.logger.Warn("Rejected malformed submission", zap.Error(err))
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_annotations",
				Message: err.Error(),
			})
		case errors.Is(err, render.ErrUnreadableImage):
			h.logger.Warn("Rejected unreadable image", zap.Error(err))
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "unreadable_image",
				Message: "photo could not be decoded",
			})
		default:
			h.logger.Error("Failed to composite photo", zap.Error(err))
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "internal_error",
				Message: "failed to process photo",
			})
		}
		return
	}

	photo := &models.Photo{
		ProjectID:       sub.projectID,
		Filename:        h.store.NewFilename(),
		Comment:         sub.comment,
		CommentPosition: sub.commentPos,
		Stickers:        sub.stickers,
		CapturedAt:      sub.capturedAt,
	}
	if sub.location != nil {
		photo.Latitude = &sub.location.Latitude
		photo.Longitude = &sub.location.Longitude
	}

	if err := h.store.Save(photo.Filename, artifact); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to store photo",
		})
		return
	}

	if err := h.repo.CreatePhoto(ctx, photo); err != nil {
		// Keep file and row in lockstep.
		_ = h.store.Remove(photo.Filename)
		h.logger.Error("Failed to create photo record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to store photo",
		})
		return
	}

	_ = h.cache.InvalidateProjectPhotos(ctx, sub.projectID)

	c.JSON(http.StatusCreated, models.PhotoResponse{Data: *photo})
}

// lookupPhoto fetches the photo record for the :id route parameter. It
// writes the error response itself and returns ok=false when the request is
// already answered.
func (h *Handler) lookupPhoto(c *gin.Context) (*models.Photo, bool) {
	id := c.Param("id")

	photo, err := h.repo.GetPhoto(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get photo", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to retrieve photo",
		})
		return nil, false
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "photo not found",
		})
		return nil, false
	}
	return photo, true
}

// GetPhoto handles retrieving a photo record by ID.
func (h *Handler) GetPhoto(c *gin.Context) {
	photo, ok := h.lookupPhoto(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.PhotoResponse{Data: *photo})
}

// GetPhotoFile serves the stored composited artifact.
func (h *Handler) GetPhotoFile(c *gin.Context) {
	photo, ok := h.lookupPhoto(c)
	if !ok {
		return
	}

	path, err := h.store.Path(photo.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "photo file not found",
			})
			return
		}
		h.logger.Error("Failed to resolve photo file", zap.String("id", photo.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to serve photo",
		})
		return
	}

	c.Header("Content-Type", "image/jpeg")
	c.File(path)
}

// GetPhotoThumbnail serves a scaled-down rendition for gallery views.
func (h *Handler) GetPhotoThumbnail(c *gin.Context) {
	photo, ok := h.lookupPhoto(c)
	if !ok {
		return
	}

	thumb, err := h.store.Thumbnail(photo.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "photo file not found",
			})
			return
		}
		h.logger.Error("Failed to build thumbnail", zap.String("id", photo.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to serve thumbnail",
		})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", thumb)
}

// DeletePhoto handles deleting a photo record and its stored file.
func (h *Handler) DeletePhoto(c *gin.Context) {
	photo, ok := h.lookupPhoto(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.DeletePhoto(ctx, photo.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "photo not found",
			})
			return
		}
		h.logger.Error("Failed to delete photo", zap.String("id", photo.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to delete photo",
		})
		return
	}

	_ = h.store.Remove(photo.Filename)
	_ = h.cache.InvalidateProjectPhotos(ctx, photo.ProjectID)

	c.Status(http.StatusNoContent)
}

// SearchLocations handles forward geocoding for the location picker.
func (h *Handler) SearchLocations(c *gin.Context) {
	query := c.Query("q")

	results, err := h.geocoder.Search(c.Request.Context(), query)
	if err != nil {
		if errors.Is(err, geocode.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "query parameter q is required",
			})
			return
		}
		h.logger.Error("Geocode search failed", zap.String("query", query), zap.Error(err))
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "geocode_unavailable",
			Message: "location search is unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": results})
}

// submission is the parsed multipart photo form.
type submission struct {
	projectID  string
	image      []byte
	comment    string
	commentPos annotation.BandPosition
	location   *models.Geolocation
	capturedAt time.Time
	stickers   []annotation.Sticker
}

// parseSubmission reads and validates the multipart form fields. It writes
// the error response itself and returns ok=false on rejection.
func (h *Handler) parseSubmission(c *gin.Context) (*submission, bool) {
	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		if tooLarge(c, err) {
			return nil, false
		}
		h.logger.Warn("Missing photo file in submission", zap.Error(err))
		h.badRequest(c, "photo file is required")
		return nil, false
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		if tooLarge(c, err) {
			return nil, false
		}
		h.logger.Warn("Failed to read photo file", zap.Error(err))
		h.badRequest(c, "failed to read photo file")
		return nil, false
	}

	sub := &submission{
		projectID:  c.PostForm("projectId"),
		image:      image,
		comment:    c.PostForm("comment"),
		commentPos: annotation.BandTop,
		capturedAt: time.Now().UTC(),
	}
	if sub.projectID == "" {
		h.badRequest(c, "projectId is required")
		return nil, false
	}

	if pos := c.PostForm("commentPosition"); pos != "" {
		bp := annotation.BandPosition(pos)
		if !bp.Valid() {
			h.badRequest(c, "commentPosition must be top or bottom")
			return nil, false
		}
		sub.commentPos = bp
	}

	if ts := c.PostForm("capturedAt"); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			h.badRequest(c, "capturedAt must be RFC 3339")
			return nil, false
		}
		sub.capturedAt = parsed.UTC()
	}

	// Coordinates arrive together or not at all.
	latStr, lonStr := c.PostForm("latitude"), c.PostForm("longitude")
	if (latStr == "") != (lonStr == "") {
		h.badRequest(c, "latitude and longitude must be provided together")
		return nil, false
	}
	if latStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			h.badRequest(c, "latitude and longitude must be numbers")
			return nil, false
		}
		sub.location = &models.Geolocation{Latitude: lat, Longitude: lon}
	}

	sub.stickers = []annotation.Sticker{}
	if raw := c.PostForm("stickers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub.stickers); err != nil {
			h.logger.Warn("Malformed stickers field", zap.Error(err))
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_annotations",
				Message: "stickers must be a JSON array",
			})
			return nil, false
		}
	}

	return sub, true
}

// tooLarge reports and answers an oversized request body.
func tooLarge(c *gin.Context, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
		Error:   "too_large",
		Message: "photo exceeds the maximum upload size",
	})
	return true
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: msg,
	})
}
