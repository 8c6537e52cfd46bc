// Package geocode provides forward geocoding for the location picker,
// backed by a Nominatim-compatible search endpoint with Redis caching.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/cache"
	"github.com/auditlens/backend/internal/config"
)

// ErrEmptyQuery is returned for a blank search string.
var ErrEmptyQuery = errors.New("empty search query")

const (
	maxResults     = 5
	requestTimeout = 10 * time.Second
	userAgent      = "auditlens-backend/1.0"
)

// Result is one candidate location for a search query.
type Result struct {
	DisplayName string  `json:"displayName"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Client performs forward geocoding searches. Responses are cached so that
// repeated picker queries do not hammer the upstream service.
type Client struct {
	endpoint   string
	cache      cache.Cache
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a geocoding client.
func NewClient(cfg *config.Config, c cache.Cache, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   cfg.GeocodeURL,
		cache:      c,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Search resolves a free-text query to candidate locations.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	key := strings.ToLower(query)
	if cached, found, _ := c.cache.GetSearch(ctx, key); found {
		var results []Result
		if err := json.Unmarshal(cached, &results); err == nil {
			return results, nil
		}
	}

	results, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if body, err := json.Marshal(results); err == nil {
		_ = c.cache.SetSearch(ctx, key, body)
	}
	return results, nil
}

// nominatimPlace mirrors the upstream response shape; coordinates arrive as
// strings.
type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (c *Client) fetch(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid geocode endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Geocode request failed", zap.Error(err))
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode response: %w", err)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}

	results := make([]Result, 0, len(places))
	for _, p := range places {
		lat, latErr := strconv.ParseFloat(p.Lat, 64)
		lon, lonErr := strconv.ParseFloat(p.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		results = append(results, Result{
			DisplayName: p.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
		})
	}

	c.logger.Debug("Geocode search complete", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}
