// Package models contains the data models for the application.
package models

import (
	"fmt"
	"time"

	"github.com/auditlens/backend/internal/annotation"
)

// Project represents one documented object or job; photos belong to exactly
// one project.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Photo is the persisted record of one composited artifact. The stored file
// referenced by Filename is the flattened raster; the original unannotated
// capture is not retained.
type Photo struct {
	ID              string                  `json:"id"`
	ProjectID       string                  `json:"projectId"`
	Filename        string                  `json:"filename"`
	Comment         string                  `json:"comment,omitempty"`
	CommentPosition annotation.BandPosition `json:"commentPosition"`
	Latitude        *float64                `json:"latitude,omitempty"`
	Longitude       *float64                `json:"longitude,omitempty"`
	Stickers        []annotation.Sticker    `json:"stickers"`
	CapturedAt      time.Time               `json:"capturedAt"`
	CreatedAt       time.Time               `json:"createdAt"`
}

// Geolocation is a capture-time device position or a user override from the
// location picker. Replacing it is wholesale; it is never merged.
type Geolocation struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// Validate checks the coordinate ranges.
func (g *Geolocation) Validate() error {
	if g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf("latitude %g out of range [-90, 90]", g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf("longitude %g out of range [-180, 180]", g.Longitude)
	}
	return nil
}

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=256"`
	Description string `json:"description" binding:"max=1024"`
}

// UpdateProjectRequest represents the request body for updating a project.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty" binding:"omitempty,max=256"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=1024"`
}

// ProjectResponse wraps a single project in the API response.
type ProjectResponse struct {
	Data Project `json:"data"`
}

// ProjectsResponse wraps multiple projects in the API response.
type ProjectsResponse struct {
	Data []Project `json:"data"`
}

// PhotoResponse wraps a single photo in the API response.
type PhotoResponse struct {
	Data Photo `json:"data"`
}

// PhotosResponse wraps multiple photos in the API response.
type PhotosResponse struct {
	Data []Photo `json:"data"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
