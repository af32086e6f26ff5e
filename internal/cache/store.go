package cache

import (
	"context"
	"time"
)

// Store coordinates shared rate-limit counters across application instances.
type Store interface {
	// IncrementWithTTL atomically increments the counter for key, starting a
	// new window of the supplied duration when none is active. It returns the
	// updated count and the time remaining in the current window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// PeekWithTTL reads the counter without modifying it. A zero count means
	// no window is active for the key.
	PeekWithTTL(ctx context.Context, key string) (count int64, ttl time.Duration, err error)
}
