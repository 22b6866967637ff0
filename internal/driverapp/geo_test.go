package driverapp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLocator struct {
	calls    int
	deadline time.Duration
}

func (c *countingLocator) Locate(ctx context.Context, _ GeoOptions) (Fix, error) {
	c.calls++
	if dl, ok := ctx.Deadline(); ok {
		c.deadline = time.Until(dl)
	}
	return Fix{Lat: 1, Lng: 2}, nil
}

func TestCachedLocatorHonoursMaxAge(t *testing.T) {
	src := &countingLocator{}
	loc := NewCachedLocator(src)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	loc.now = func() time.Time { return now }

	_, err := loc.Locate(context.Background(), DefaultGeoOptions)
	require.NoError(t, err)
	assert.Greater(t, src.deadline, time.Duration(0))
	assert.LessOrEqual(t, src.deadline, DefaultGeoOptions.Timeout)

	now = now.Add(30 * time.Second)
	_, err = loc.Locate(context.Background(), DefaultGeoOptions)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	now = now.Add(31 * time.Second)
	_, err = loc.Locate(context.Background(), DefaultGeoOptions)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
