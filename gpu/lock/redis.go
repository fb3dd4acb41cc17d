package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/celer-network/gnark-gpu/logger"
)

const (
	defaultRedisTTL   = 30 * time.Second
	defaultRedisRetry = 50 * time.Millisecond
	redisOpTimeout    = 5 * time.Second
)

// compare-and-delete, so a holder whose key expired never frees a lock that
// has since been granted to someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig configures a RedisExclusivity.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every lock name.
	Prefix string
	// TTL bounds how long a crashed holder keeps a lock. Held locks are
	// refreshed every TTL/3.
	TTL time.Duration
	// RetryInterval is the polling interval of AcquireExclusive.
	RetryInterval time.Duration
}

// RedisExclusivity implements Exclusivity on a Redis server, for processes
// that share an accelerator pool but not a filesystem.
type RedisExclusivity struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    zerolog.Logger
}

// NewRedisExclusivity connects to the server and checks it answers.
func NewRedisExclusivity(cfg RedisConfig) (*RedisExclusivity, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ErrLock, cfg.Addr, err)
	}

	e := &RedisExclusivity{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		retry:  cfg.RetryInterval,
		log:    logger.Logger().With().Str("component", "lock").Str("redis", cfg.Addr).Logger(),
	}
	if e.ttl <= 0 {
		e.ttl = defaultRedisTTL
	}
	if e.retry <= 0 {
		e.retry = defaultRedisRetry
	}
	return e, nil
}

func (e *RedisExclusivity) Close() error {
	return e.client.Close()
}

func (e *RedisExclusivity) AcquireExclusive(name string) (Guard, error) {
	for {
		g, ok, err := e.TryAcquireExclusive(name)
		if err != nil {
			return nil, err
		}
		if ok {
			return g, nil
		}
		time.Sleep(e.retry)
	}
}

func (e *RedisExclusivity) TryAcquireExclusive(name string) (Guard, bool, error) {
	key := e.prefix + name
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	ok, err := e.client.SetNX(ctx, key, token, e.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: redis set %s: %w", ErrLock, key, err)
	}
	if !ok {
		return nil, false, nil
	}

	g := &redisGuard{
		e:     e,
		key:   key,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go g.refresh()
	return g, true, nil
}

type redisGuard struct {
	e     *RedisExclusivity
	key   string
	token string

	stop chan struct{}
	done chan struct{}
	once sync.Once
	err  error
}

func (g *redisGuard) refresh() {
	defer close(g.done)
	ticker := time.NewTicker(g.e.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
			n, err := refreshScript.Run(ctx, g.e.client, []string{g.key}, g.token, g.e.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				g.e.log.Error().Err(err).Str("lock", g.key).Msg("refreshing lock")
				continue
			}
			if n == 0 {
				g.e.log.Error().Str("lock", g.key).Msg("lock expired while held")
				return
			}
		}
	}
}

func (g *redisGuard) Release() error {
	g.once.Do(func() {
		close(g.stop)
		<-g.done
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		if err := releaseScript.Run(ctx, g.e.client, []string{g.key}, g.token).Err(); err != nil {
			g.err = fmt.Errorf("%w: redis release %s: %w", ErrLock, g.key, err)
		}
	})
	return g.err
}
