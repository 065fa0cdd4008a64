// Package redisstore implements cluster.Store on top of Redis/Valkey,
// using github.com/redis/go-redis/v9. Compare-and-swap and lease
// acquisition are done with small Lua scripts evaluated atomically on the
// server, the same approach original_source/src/store/valkey.rs takes with
// its rate-limit and leader-election scripts, translated to go-redis's
// *redis.Script helper.
package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/northbound/edgeproxy/cluster"
)

// Config mirrors the teacher-adjacent shape of a Redis/Valkey connection:
// a single endpoint (Addr; no sentinel or cluster-aware client is built
// here), optional auth, optional TLS,
// and a key prefix so several logical clusters can share one Redis
// instance without colliding.
type Config struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	TLS       *tls.Config
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "edgeproxy"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

// casScript performs a compare-and-swap: ARGV[1] == "1" means the caller
// expects the key to be absent; otherwise ARGV[2] must equal the current
// value. ARGV[3] is the new value, ARGV[4] the TTL in milliseconds ("0"
// for none).
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local expectAbsent = ARGV[1] == '1'
local matches
if expectAbsent then
  matches = (cur == false)
else
  matches = (cur ~= false and cur == ARGV[2])
end
if matches then
  local ttl = tonumber(ARGV[4])
  if ttl > 0 then
    redis.call('SET', KEYS[1], ARGV[3], 'PX', ttl)
  else
    redis.call('SET', KEYS[1], ARGV[3])
  end
  return 1
else
  return 0
end
`)

// leaseAcquireScript grants the lease to holder if it is unheld or already
// held by holder (so the same call doubles as acquire and renew).
var leaseAcquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
else
  return 0
end
`)

// leaseReleaseScript deletes the lease only if still held by holder.
var leaseReleaseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// Store is a cluster.Store backed by a single Redis/Valkey client.
type Store struct {
	client *redis.Client
	prefix string
}

var _ cluster.Store = (*Store)(nil)

// New dials Redis and verifies connectivity with a PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		TLSConfig:    cfg.TLS,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: connect: %w", err)
	}

	log.WithField("addr", cfg.Addr).Info("cluster: connected to redis store")
	return &Store{client: client, prefix: cfg.KeyPrefix}, nil
}

func (s *Store) key(k string) string { return s.prefix + ":" + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cluster.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *Store) CAS(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) (bool, error) {
	expectAbsent := "0"
	if oldValue == nil {
		expectAbsent = "1"
	}
	res, err := casScript.Run(ctx, s.client, []string{s.key(key)},
		expectAbsent, oldValue, newValue, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, s.key(channel), payload).Err()
}

func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	pubsub := s.client.Subscribe(ctx, s.key(channel))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redisstore: subscribe %q: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close, nil
}

func (s *Store) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	res, err := leaseAcquireScript.Run(ctx, s.client, []string{s.key("lease:" + name)}, holder, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *Store) RenewLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	return s.AcquireLease(ctx, name, holder, ttl)
}

func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := leaseReleaseScript.Run(ctx, s.client, []string{s.key("lease:" + name)}, holder).Result()
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
