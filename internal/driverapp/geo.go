// README: Geolocation source abstraction with the read options the driver app uses.
package driverapp

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPermissionDenied    = errors.New("geolocation permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
)

type GeoOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaxAge is how old a cached fix may be and still be returned.
	MaxAge time.Duration
}

var DefaultGeoOptions = GeoOptions{HighAccuracy: true, Timeout: 10 * time.Second, MaxAge: time.Minute}

// Locator reads the device position.
type Locator interface {
	Locate(ctx context.Context, opts GeoOptions) (Fix, error)
}

// CachedLocator serves a recent fix instead of asking the device again and
// bounds each device read by opts.Timeout.
type CachedLocator struct {
	source Locator
	now    func() time.Time

	mu   sync.Mutex
	last *Fix
}

func NewCachedLocator(source Locator) *CachedLocator {
	return &CachedLocator{source: source, now: time.Now}
}

func (c *CachedLocator) Locate(ctx context.Context, opts GeoOptions) (Fix, error) {
	c.mu.Lock()
	if c.last != nil && opts.MaxAge > 0 && c.now().Sub(c.last.At) <= opts.MaxAge {
		fix := *c.last
		c.mu.Unlock()
		return fix, nil
	}
	c.mu.Unlock()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	fix, err := c.source.Locate(ctx, opts)
	if err != nil {
		return Fix{}, err
	}
	if fix.At.IsZero() {
		fix.At = c.now()
	}
	c.mu.Lock()
	c.last = &fix
	c.mu.Unlock()
	return fix, nil
}
