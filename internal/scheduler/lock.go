package scheduler

import (
    "context"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token, so
// a run that outlived its TTL never frees a lock taken by another
// replica.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lock is a best-effort mutual exclusion across replicas built on
// SET NX PX.  A nil client grants every acquisition, which is correct
// for a single instance.
type Lock struct {
    rdb *redis.Client
    key string
    ttl time.Duration
}

func NewLock(rdb *redis.Client, key string, ttl time.Duration) *Lock {
    return &Lock{rdb: rdb, key: key, ttl: ttl}
}

// Acquire tries to take the lock once.  When ok is true the returned
// release function must be called.
func (l *Lock) Acquire(ctx context.Context) (release func(), ok bool, err error) {
    if l.rdb == nil {
        return func() {}, true, nil
    }
    token := uuid.NewString()
    ok, err = l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
    if err != nil || !ok {
        return nil, false, err
    }
    return func() {
        _ = releaseScript.Run(context.Background(), l.rdb, []string{l.key}, token).Err()
    }, true, nil
}
