package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Store defines the cache operations the aggregation layer relies on.
// Values are JSON encoded; Get decodes into dest.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Close() error
}

// GetTyped is a generic convenience over Store.Get.
func GetTyped[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	err := s.Get(ctx, key, &out)
	return out, err
}
