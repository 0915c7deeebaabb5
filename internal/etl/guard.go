package etl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/BartekS5/breweries/pkg/logger"
)

// ErrRunInProgress is returned when another run of the same pipeline holds
// the guard.
var ErrRunInProgress = errors.New("a run of this pipeline is already in progress")

// RunGuard makes sure only one run of a pipeline writes at a time.
type RunGuard interface {
	// TryAcquire returns ok=false without blocking if key is held.
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// LocalGuard serializes runs within one process.
type LocalGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{running: make(map[string]struct{})}
}

func (g *LocalGuard) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[key]; ok {
		return nil, false, nil
	}
	g.running[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisGuard serializes runs across hosts sharing one Redis. The lock
// expires after TTL so a crashed holder cannot block runs forever.
type RedisGuard struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{Client: client, TTL: ttl, Prefix: "breweries:lock:"}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	lockKey := g.Prefix + key
	token := uuid.NewString()

	ok, err := g.Client.SetNX(ctx, lockKey, token, g.TTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, g.Client, []string{lockKey}, token).Err(); err != nil {
				logger.Warnf("Failed to release run lock %s: %v", lockKey, err)
			}
		})
	}, true, nil
}
