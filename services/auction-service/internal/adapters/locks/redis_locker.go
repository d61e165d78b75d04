package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
)

var _ bids.Locker = (*RedisLocker)(nil)

const keyPrefix = "lotmarket:item-lock:"

// releaseScript deletes the key only if it still carries our token,
// so a holder whose lease expired cannot release a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errHeld = errors.New("lock held by another owner")

// RedisLocker is a lease-based lock shared by every API replica
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder blocks an item;
// wait bounds how long Lock polls before giving up.
func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

// Lock polls SET NX with exponential backoff until the lease is ours
func (l *RedisLocker) Lock(ctx context.Context, itemID uuid.UUID) (func(), error) {
	key := keyPrefix + itemID.String()
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = l.wait

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to acquire item lock: %w", err))
		}
		if !ok {
			return errHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if errors.Is(err, errHeld) {
		return nil, fmt.Errorf("%w: %s", bids.ErrLockNotAcquired, itemID)
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// Released on a fresh context: the request context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release item lock", "item_id", itemID, "error", err)
		}
	}, nil
}
