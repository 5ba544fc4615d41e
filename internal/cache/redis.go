package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/pbaille/winewize/pkg/metrics"
)

const redisKeyPrefix = "winewize:"

// Redis is a Cache shared between service instances. Redis failures are
// logged and surface as misses.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
	ttls       map[string]time.Duration
	log        *zap.Logger
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DefaultTTL  time.Duration
	TTLs        map[string]time.Duration
	Logger      *zap.Logger
	DialTimeout time.Duration
}

// NewRedis connects to Redis and pings it so misconfiguration fails at startup.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis: address is required")
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttls := make(map[string]time.Duration, len(opts.TTLs))
	for ns, ttl := range opts.TTLs {
		if ttl > 0 {
			ttls[ns] = ttl
		}
	}

	return &Redis{
		client:     rdb,
		defaultTTL: opts.DefaultTTL,
		ttls:       ttls,
		log:        opts.Logger,
	}, nil
}

func (r *Redis) key(namespace, key string) string {
	return redisKeyPrefix + namespace + ":" + key
}

func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.key(namespace, key)).Bytes()
	if err == redis.Nil {
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
		return nil, false
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues(namespace, "error").Inc()
		r.log.Warn("redis get failed", zap.String("namespace", namespace), zap.Error(err))
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues(namespace, "hit").Inc()
	return val, true
}

func (r *Redis) Set(ctx context.Context, namespace, key string, value []byte) {
	r.SetWithTTL(ctx, namespace, key, value, r.TTL(namespace))
}

func (r *Redis) SetWithTTL(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.TTL(namespace)
	}
	if err := r.client.Set(ctx, r.key(namespace, key), value, ttl).Err(); err != nil {
		r.log.Warn("redis set failed", zap.String("namespace", namespace), zap.Error(err))
	}
}

func (r *Redis) Delete(ctx context.Context, namespace, key string) {
	if err := r.client.Del(ctx, r.key(namespace, key)).Err(); err != nil {
		r.log.Warn("redis delete failed", zap.String("namespace", namespace), zap.Error(err))
	}
}

// Clear deletes every key in namespace using SCAN so large namespaces do not block Redis.
func (r *Redis) Clear(ctx context.Context, namespace string) {
	iter := r.client.Scan(ctx, 0, r.key(namespace, "*"), 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			r.client.Del(ctx, batch...)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		r.client.Del(ctx, batch...)
	}
	if err := iter.Err(); err != nil {
		r.log.Warn("redis clear failed", zap.String("namespace", namespace), zap.Error(err))
	}
}

// TTL returns the TTL Set would use for namespace.
func (r *Redis) TTL(namespace string) time.Duration {
	if ttl, ok := r.ttls[namespace]; ok {
		return ttl
	}
	return r.defaultTTL
}

func (r *Redis) Close() error {
	return r.client.Close()
}
