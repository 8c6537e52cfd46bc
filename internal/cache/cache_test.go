package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/models"
)

func testCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCacheFromClient(client, zap.NewNop()), mr
}

func TestProjectsRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	_, found, err := c.GetProjects(ctx)
	assert.NoError(t, err)
	assert.False(t, found)

	projects := []models.Project{
		{ID: "p1", Name: "Site A", CreatedAt: time.Now().UTC().Truncate(time.Second)},
		{ID: "p2", Name: "Site B", CreatedAt: time.Now().UTC().Truncate(time.Second)},
	}
	assert.NoError(t, c.SetProjects(ctx, projects))

	got, found, err := c.GetProjects(ctx)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, got, 2)
	assert.Equal(t, "Site A", got[0].Name)

	assert.NoError(t, c.InvalidateProjects(ctx))
	_, found, _ = c.GetProjects(ctx)
	assert.False(t, found)
}

func TestProjectPhotosRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	photos := []models.Photo{
		{ID: "ph1", ProjectID: "p1", Filename: "photo-1.jpg"},
	}
	assert.NoError(t, c.SetProjectPhotos(ctx, "p1", photos))

	got, found, err := c.GetProjectPhotos(ctx, "p1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "photo-1.jpg", got[0].Filename)

	// Other projects stay independent.
	_, found, _ = c.GetProjectPhotos(ctx, "p2")
	assert.False(t, found)

	assert.NoError(t, c.InvalidateProjectPhotos(ctx, "p1"))
	_, found, _ = c.GetProjectPhotos(ctx, "p1")
	assert.False(t, found)
}

func TestSearchRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	_, found, err := c.GetSearch(ctx, "melbourne")
	assert.NoError(t, err)
	assert.False(t, found)

	body := []byte(`[{"displayName":"Melbourne","latitude":-37.8,"longitude":144.9}]`)
	assert.NoError(t, c.SetSearch(ctx, "melbourne", body))

	got, found, err := c.GetSearch(ctx, "melbourne")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, body, got)
}

func TestEntriesExpire(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()

	assert.NoError(t, c.SetProjects(ctx, []models.Project{{ID: "p1"}}))

	mr.FastForward(defaultTTL + time.Second)

	_, found, _ := c.GetProjects(ctx)
	assert.False(t, found)
}

func TestCorruptEntryDegradesToMiss(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()

	assert.NoError(t, mr.Set(projectsKey, "not json"))

	_, found, err := c.GetProjects(ctx)
	assert.NoError(t, err)
	assert.False(t, found)
}
