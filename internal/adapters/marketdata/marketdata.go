// Package marketdata holds one client per external data source. Each
// method wraps a single HTTP call, maps the provider's JSON to typed
// models and fails with a descriptive error on non-2xx responses or a
// missing API key. Clients never retry; fallback across sources is the
// resolver's job.
package marketdata

import (
	"context"
	"time"
)

// Cache is an optional short-TTL response cache. A nil Cache disables
// caching entirely.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}
