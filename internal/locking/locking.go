// FilePath: internal/locking/locking.go

// Package locking provides the distributed locks that serialize
// scheduler work across process instances. The delivery loop is
// invoked by an external scheduler and may overlap with itself or with
// a manual sync; an in-process mutex cannot help when several
// instances run concurrently, so the locks live in redis.
package locking

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

// Locker hands out best-effort exclusive locks. Acquire returns
// acquired=false without blocking when someone else holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// releaseScript deletes the lock only if the caller still owns it, so
// an expired lock taken over by another instance is never released by
// the original holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "aquahub:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := nuts.NID("lck", 16)
	full := l.prefix + key

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		if err := releaseScript.Run(context.Background(), l.client, []string{full}, token).Err(); err != nil && err != redis.Nil {
			nuts.L.Warnf("[Locking] Failed to release lock %s: %v", full, err)
		}
	}
	return release, true, nil
}

// SessionKey names the per-session delivery lock.
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}

// SyncKey names the per-user reconciliation lock.
func SyncKey(userID string) string {
	return "sync:" + userID
}
