package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	pendingMarker        = "pending"

	// maxPendingTTL caps how long a claim survives a request that never
	// reaches Complete or Release.
	maxPendingTTL = 30 * time.Second
)

// ErrInProgress means another request holding the same key has not finished.
var ErrInProgress = errors.New("a request with this idempotency key is still in progress")

// IdempotencyStore remembers the outcome of requests by client-supplied key.
type IdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewIdempotencyStore(client redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func (s *IdempotencyStore) pendingTTL() time.Duration {
	return min(s.ttl, maxPendingTTL)
}

// Begin claims key. It returns claimed=true when the caller should do the
// work; otherwise it returns the stored result of the earlier request, or
// ErrInProgress if that request is still running.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (result string, claimed bool, err error) {
	k := idempotencyKeyPrefix + key
	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.pendingTTL()).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, ErrInProgress
		}
		return "", false, err
	}
	if val == pendingMarker {
		return "", false, ErrInProgress
	}
	return val, false, nil
}

// Complete stores the result for key for the full ttl.
func (s *IdempotencyStore) Complete(ctx context.Context, key, result string) error {
	return s.client.Set(ctx, idempotencyKeyPrefix+key, result, s.ttl).Err()
}

// Release forgets key so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
