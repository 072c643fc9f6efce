package track

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier delivers terminal notifications to whatever presentation layer is
// in use. Fire-and-forget; implementations must not block.
type Notifier interface {
	NotifySuccess(surfaceID, message string)
	NotifyError(surfaceID, message string)
}

// NopNotifier discards all notifications
type NopNotifier struct{}

func (NopNotifier) NotifySuccess(string, string) {}
func (NopNotifier) NotifyError(string, string)   {}

const (
	dedupeTTL     = 24 * time.Hour
	dedupeTimeout = 5 * time.Second
)

// Deduper guarantees exactly one terminal notification per job, keyed by
// whichever correlation identity the terminal event carried. Duplicate
// terminal deliveries over the push channel (retries, overlapping
// subscriptions) must not produce repeated toasts.
type Deduper struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	redis *redis.Client
}

// NewDeduper creates a deduplicator. The redis client is optional; when
// present the notified set survives gateway restarts.
func NewDeduper(redisClient *redis.Client) *Deduper {
	return &Deduper{
		seen:  make(map[string]struct{}),
		redis: redisClient,
	}
}

// FirstNotification check-and-sets the key, returning true only on the
// first call for a given correlation identity.
func (d *Deduper) FirstNotification(ctx context.Context, key string) bool {
	d.mu.Lock()
	_, dup := d.seen[key]
	d.seen[key] = struct{}{}
	d.mu.Unlock()

	if dup {
		return false
	}

	if d.redis != nil {
		ok, err := d.redis.SetNX(ctx, "notified:"+key, 1, dedupeTTL).Result()
		if err == nil && !ok {
			// Another gateway instance (or a previous run) already notified.
			return false
		}
	}
	return true
}
