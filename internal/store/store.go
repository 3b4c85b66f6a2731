package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is the state store every component coordinates through: claim locks,
// delivery dedup records and short-lived caches. Nothing talks to the backing
// store directly. SetIfAbsent is the atomic claim primitive; a zero ttl means
// no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// ClaimKey is the lock key for a recurring config due item.
func ClaimKey(configID int64) string {
	return fmt.Sprintf("lock:config:%d", configID)
}

// DeliveryKey is the dedup record key for one reminder on one channel.
func DeliveryKey(reminderID int64, channel string) string {
	return fmt.Sprintf("delivery:%d:%s", reminderID, channel)
}
