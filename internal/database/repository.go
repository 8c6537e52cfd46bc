// Package database provides PostgreSQL persistence for projects and photos.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/annotation"
	"github.com/auditlens/backend/internal/config"
	"github.com/auditlens/backend/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for project and photo persistence.
type Repository interface {
	// CreateProject creates a new project and returns it with its ID.
	CreateProject(ctx context.Context, req *models.CreateProjectRequest) (*models.Project, error)

	// GetProject retrieves a project by its ID, nil if absent.
	GetProject(ctx context.Context, id string) (*models.Project, error)

	// ListProjects retrieves all projects, newest first.
	ListProjects(ctx context.Context) ([]models.Project, error)

	// UpdateProject applies a partial update, nil if the project is absent.
	UpdateProject(ctx context.Context, id string, req *models.UpdateProjectRequest) (*models.Project, error)

	// DeleteProject removes a project and, via cascade, its photo rows.
	DeleteProject(ctx context.Context, id string) error

	// CreatePhoto inserts the record of a composited artifact.
	CreatePhoto(ctx context.Context, photo *models.Photo) error

	// GetPhoto retrieves a photo by its ID, nil if absent.
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)

	// ListProjectPhotos retrieves a project's photos, newest first.
	ListProjectPhotos(ctx context.Context, projectID string) ([]models.Photo, error)

	// DeletePhoto removes a photo row.
	DeletePhoto(ctx context.Context, id string) error

	// Close closes the database connection.
	Close()
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(cfg *config.Config, logger *zap.Logger) (Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return repo, nil
}

// migrate creates the necessary database tables if they don't exist.
func (r *PostgresRepository) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS projects (
			id UUID PRIMARY KEY,
			name VARCHAR(256) NOT NULL,
			description TEXT DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS photos (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			comment TEXT DEFAULT '',
			comment_position VARCHAR(8) NOT NULL DEFAULT 'top',
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			stickers JSONB NOT NULL DEFAULT '[]',
			captured_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_photos_project_id ON photos(project_id);
		CREATE INDEX IF NOT EXISTS idx_photos_created_at ON photos(created_at);
	`

	_, err := r.pool.Exec(ctx, query)
	return err
}

// CreateProject creates a new project.
func (r *PostgresRepository) CreateProject(ctx context.Context, req *models.CreateProjectRequest) (*models.Project, error) {
	project := &models.Project{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO projects (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.CreatedAt,
		project.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create project", zap.Error(err))
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	r.logger.Info("Created project", zap.String("id", project.ID))
	return project, nil
}

// GetProject retrieves a project by its ID.
func (r *PostgresRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var project models.Project
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&project.CreatedAt,
		&project.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get project", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// ListProjects retrieves all projects.
func (r *PostgresRepository) ListProjects(ctx context.Context) ([]models.Project, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var project models.Project
		err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Description,
			&project.CreatedAt,
			&project.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan project row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	if projects == nil {
		projects = []models.Project{}
	}

	return projects, nil
}

// UpdateProject updates an existing project.
func (r *PostgresRepository) UpdateProject(ctx context.Context, id string, req *models.UpdateProjectRequest) (*models.Project, error) {
	existing, err := r.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	existing.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE projects
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
	`

	_, err = r.pool.Exec(ctx, query,
		existing.ID,
		existing.Name,
		existing.Description,
		existing.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to update project", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	r.logger.Info("Updated project", zap.String("id", id))
	return existing, nil
}

// DeleteProject removes a project by its ID.
func (r *PostgresRepository) DeleteProject(ctx context.Context, id string) error {
	query := `DELETE FROM projects WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete project", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("Deleted project", zap.String("id", id))
	return nil
}

// CreatePhoto inserts a composited photo record. The caller supplies ID,
// filename and capture time; CreatedAt is set here.
func (r *PostgresRepository) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	if photo.ID == "" {
		photo.ID = uuid.New().String()
	}
	photo.CreatedAt = time.Now().UTC()
	if photo.Stickers == nil {
		photo.Stickers = []annotation.Sticker{}
	}

	stickers, err := json.Marshal(photo.Stickers)
	if err != nil {
		return fmt.Errorf("failed to encode stickers: %w", err)
	}

	query := `
		INSERT INTO photos (id, project_id, filename, comment, comment_position,
			latitude, longitude, stickers, captured_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		photo.ID,
		photo.ProjectID,
		photo.Filename,
		photo.Comment,
		string(photo.CommentPosition),
		photo.Latitude,
		photo.Longitude,
		stickers,
		photo.CapturedAt,
		photo.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create photo", zap.Error(err))
		return fmt.Errorf("failed to create photo: %w", err)
	}

	r.logger.Info("Created photo", zap.String("id", photo.ID), zap.String("project_id", photo.ProjectID))
	return nil
}

// GetPhoto retrieves a photo by its ID.
func (r *PostgresRepository) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	query := `
		SELECT id, project_id, filename, comment, comment_position,
			latitude, longitude, stickers, captured_at, created_at
		FROM photos
		WHERE id = $1
	`

	photo, err := scanPhoto(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get photo", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// ListProjectPhotos retrieves all photos belonging to a project.
func (r *PostgresRepository) ListProjectPhotos(ctx context.Context, projectID string) ([]models.Photo, error) {
	query := `
		SELECT id, project_id, filename, comment, comment_position,
			latitude, longitude, stickers, captured_at, created_at
		FROM photos
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list photos", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			r.logger.Error("Failed to scan photo row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, *photo)
	}

	if photos == nil {
		photos = []models.Photo{}
	}

	return photos, nil
}

// DeletePhoto removes a photo row by its ID.
func (r *PostgresRepository) DeletePhoto(ctx context.Context, id string) error {
	query := `DELETE FROM photos WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete photo", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete photo: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("Deleted photo", zap.String("id", id))
	return nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
	r.logger.Info("Closed database connection")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*models.Photo, error) {
	var (
		photo    models.Photo
		position string
		stickers []byte
	)
	err := row.Scan(
		&photo.ID,
		&photo.ProjectID,
		&photo.Filename,
		&photo.Comment,
		&position,
		&photo.Latitude,
		&photo.Longitude,
		&stickers,
		&photo.CapturedAt,
		&photo.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	photo.CommentPosition = annotation.BandPosition(position)
	if err := json.Unmarshal(stickers, &photo.Stickers); err != nil {
		return nil, fmt.Errorf("failed to decode stickers: %w", err)
	}
	return &photo, nil
}
