package rtstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/metrics"
)

const (
	defaultLeaseTTL = 15 * time.Second
	sessionsKey     = "rt:sessions"
)

// RedisStore is a session against the shared tree kept in Redis. Values
// live under rt:v:<path> keys with a child index per interior node, and
// every mutation is published on the channel of each ancestor path so
// subscribers can re-read their subtree.
//
// Session liveness is a lease key with a TTL, refreshed by a heartbeat.
// Deferred fallback writes are stored server-side and applied by the
// sweeper once the lease has expired, so they fire even when the
// registering client is already gone.
type RedisStore struct {
	client    *redis.Client
	sessionID string
	leaseTTL  time.Duration
	stop      chan struct{}
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects a new session and starts its heartbeat.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	s := &RedisStore{
		client:    client,
		sessionID: ulid.Make().String(),
		leaseTTL:  defaultLeaseTTL,
		stop:      make(chan struct{}),
	}

	if err := client.SAdd(ctx, sessionsKey, s.sessionID).Err(); err != nil {
		return nil, err
	}
	if err := client.Set(ctx, leaseKey(s.sessionID), "1", s.leaseTTL).Err(); err != nil {
		return nil, err
	}
	go s.heartbeat()

	return s, nil
}

// SessionID returns the session's lease identity.
func (s *RedisStore) SessionID() string {
	return s.sessionID
}

// Client exposes the underlying Redis client for infrastructure that
// shares the connection, such as rate limiting.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close ends the session gracefully: the lease and any still-registered
// fallback writes are removed without firing.
func (s *RedisStore) Close() error {
	close(s.stop)
	ctx := context.Background()
	s.client.Del(ctx, discKey(s.sessionID), leaseKey(s.sessionID))
	s.client.SRem(ctx, sessionsKey, s.sessionID)
	return s.client.Close()
}

func valueKey(path string) string { return fmt.Sprintf("rt:v:%s", path) }
func childKey(path string) string { return fmt.Sprintf("rt:c:%s", path) }
func chanKey(path string) string  { return fmt.Sprintf("rt:ch:%s", path) }
func leaseKey(sid string) string  { return fmt.Sprintf("rt:lease:%s", sid) }
func discKey(sid string) string   { return fmt.Sprintf("rt:disc:%s", sid) }

func (s *RedisStore) heartbeat() {
	ticker := time.NewTicker(s.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.leaseTTL)
			s.client.Expire(ctx, leaseKey(s.sessionID), s.leaseTTL)
			cancel()
		}
	}
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	start := time.Now()
	defer func() { metrics.StoreWriteLatency.Observe(time.Since(start).Seconds()) }()

	norm, err := normalize(value)
	if err != nil {
		return err
	}
	norm = resolveTimestamps(norm, time.Now().UnixMilli())
	return s.write(ctx, path, norm)
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	start := time.Now()
	defer func() { metrics.StoreWriteLatency.Observe(time.Since(start).Seconds()) }()

	now := time.Now().UnixMilli()
	cur, holder, rel, err := s.read(ctx, path)
	if err != nil {
		return err
	}

	obj, _ := cur.(map[string]any)
	if obj == nil {
		obj = make(map[string]any)
	}
	for k, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		obj[k] = resolveTimestamps(nv, now)
	}

	// Write back at the node that actually holds the value so sibling
	// fields outside the update survive.
	if holder != "" && holder != path {
		root, _, _, err := s.read(ctx, holder)
		if err != nil {
			return err
		}
		rm, ok := root.(map[string]any)
		if !ok {
			rm = make(map[string]any)
		}
		setAt(rm, rel, obj)
		return s.writeValue(ctx, holder, rm, path)
	}
	return s.writeValue(ctx, path, obj, path)
}

// Push implements Store.
func (s *RedisStore) Push(path string) string {
	return ulid.Make().String()
}

// Once implements Store.
func (s *RedisStore) Once(ctx context.Context, path string) (Snapshot, error) {
	val, _, _, err := s.read(ctx, path)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(val), nil
}

// Subscribe implements Store.
func (s *RedisStore) Subscribe(path string, fn func(Snapshot)) (func(), error) {
	chans := make([]string, 0, 4)
	for _, p := range ancestors(path) {
		chans = append(chans, chanKey(p))
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(ctx, chans...)

	initial, err := s.Once(ctx, path)
	if err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}
	fn(initial)

	go func() {
		for range pubsub.Channel() {
			snap, err := s.Once(ctx, path)
			if err != nil {
				continue
			}
			fn(snap)
		}
	}()

	return func() {
		cancel()
		_ = pubsub.Close()
	}, nil
}

// OnDisconnect implements Store.
func (s *RedisStore) OnDisconnect(path string) DeferredWrite {
	return &redisDeferred{store: s, path: path}
}

type redisDeferred struct {
	store *RedisStore
	path  string
}

func (d *redisDeferred) Set(ctx context.Context, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return d.store.client.HSet(ctx, discKey(d.store.sessionID), d.path, string(data)).Err()
}

func (d *redisDeferred) Cancel(ctx context.Context) error {
	return d.store.client.HDel(ctx, discKey(d.store.sessionID), d.path).Err()
}

// RunSweeper applies the deferred fallback writes of dead sessions. One
// instance runs inside the daemon; clients never run it. A session is
// dead when its lease key has expired, i.e. no heartbeat arrived within
// the lease TTL.
func (s *RedisStore) RunSweeper(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweep(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("presence sweep failed")
			}
		}
	}
}

func (s *RedisStore) sweep(ctx context.Context, logger zerolog.Logger) error {
	sessions, err := s.client.SMembers(ctx, sessionsKey).Result()
	if err != nil {
		return err
	}

	for _, sid := range sessions {
		alive, err := s.client.Exists(ctx, leaseKey(sid)).Result()
		if err != nil {
			return err
		}
		if alive > 0 {
			continue
		}

		entries, err := s.client.HGetAll(ctx, discKey(sid)).Result()
		if err != nil {
			return err
		}
		now := time.Now().UnixMilli()
		for path, raw := range entries {
			var val any
			if err := json.Unmarshal([]byte(raw), &val); err != nil {
				continue
			}
			val = resolveTimestamps(val, now)
			if err := s.write(ctx, path, val); err != nil {
				logger.Error().Err(err).Str("path", path).Msg("deferred write failed")
				continue
			}
			metrics.DeferredWritesFired.Inc()
		}

		s.client.Del(ctx, discKey(sid))
		s.client.SRem(ctx, sessionsKey, sid)
		logger.Info().Str("session", sid).Int("writes", len(entries)).Msg("swept dead session")
	}
	return nil
}

// read returns the decoded value at path, plus the path of the node that
// physically holds it ("" when composed from children) and the segments
// from that holder down to path.
func (s *RedisStore) read(ctx context.Context, path string) (any, string, []string, error) {
	// Nearest value key at path or above, deepest first.
	chain := ancestors(path)
	for i := len(chain) - 1; i >= 0; i-- {
		raw, err := s.client.Get(ctx, valueKey(chain[i])).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, "", nil, err
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			return nil, "", nil, err
		}
		rel := splitPath(path)[len(splitPath(chain[i])):]
		if m, ok := val.(map[string]any); ok && len(rel) > 0 {
			val = getAt(m, rel)
		} else if len(rel) > 0 {
			val = nil
		}
		return val, chain[i], rel, nil
	}

	// No value key: compose from the child index.
	val, err := s.compose(ctx, path, 0)
	if err != nil {
		return nil, "", nil, err
	}
	return val, "", nil, nil
}

const maxComposeDepth = 32

func (s *RedisStore) compose(ctx context.Context, path string, depth int) (any, error) {
	if depth > maxComposeDepth {
		return nil, fmt.Errorf("rtstore: path too deep: %s", path)
	}
	children, err := s.client.SMembers(ctx, childKey(path)).Result()
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(children))
	for _, c := range children {
		childPath := path + "/" + c
		raw, err := s.client.Get(ctx, valueKey(childPath)).Result()
		if err == nil {
			var val any
			if err := json.Unmarshal([]byte(raw), &val); err == nil {
				out[c] = val
			}
			continue
		}
		if err != redis.Nil {
			return nil, err
		}
		sub, err := s.compose(ctx, childPath, depth+1)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			out[c] = sub
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// write places a normalized value at path, folding it into an ancestor's
// stored object when one exists.
func (s *RedisStore) write(ctx context.Context, path string, val any) error {
	chain := ancestors(path)
	for i := len(chain) - 2; i >= 0; i-- {
		raw, err := s.client.Get(ctx, valueKey(chain[i])).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		var root any
		if err := json.Unmarshal([]byte(raw), &root); err != nil {
			return err
		}
		rm, ok := root.(map[string]any)
		if !ok {
			rm = make(map[string]any)
		}
		rel := splitPath(path)[len(splitPath(chain[i])):]
		setAt(rm, rel, val)
		return s.writeValue(ctx, chain[i], rm, path)
	}
	return s.writeValue(ctx, path, val, path)
}

// writeValue stores a value at holder and publishes an event for the
// logically changed path.
func (s *RedisStore) writeValue(ctx context.Context, holder string, val any, changed string) error {
	if val == nil {
		if err := s.clearBelow(ctx, holder, 0); err != nil {
			return err
		}
		if err := s.client.Del(ctx, valueKey(holder)).Err(); err != nil {
			return err
		}
		return s.publish(ctx, changed)
	}

	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	// A stored object at holder supersedes any value keys beneath it.
	if err := s.clearBelow(ctx, holder, 0); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, valueKey(holder), string(data), 0)
	segs := splitPath(holder)
	for i := 1; i < len(segs); i++ {
		parent := joinSegs(segs[:i])
		pipe.SAdd(ctx, childKey(parent), segs[i])
	}
	if len(segs) > 0 {
		pipe.SAdd(ctx, childKey(""), segs[0])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, changed)
}

func (s *RedisStore) clearBelow(ctx context.Context, path string, depth int) error {
	if depth > maxComposeDepth {
		return fmt.Errorf("rtstore: path too deep: %s", path)
	}
	children, err := s.client.SMembers(ctx, childKey(path)).Result()
	if err != nil {
		return err
	}
	for _, c := range children {
		childPath := path + "/" + c
		if err := s.clearBelow(ctx, childPath, depth+1); err != nil {
			return err
		}
		s.client.Del(ctx, valueKey(childPath))
	}
	return s.client.Del(ctx, childKey(path)).Err()
}

func (s *RedisStore) publish(ctx context.Context, changed string) error {
	pipe := s.client.Pipeline()
	for _, p := range ancestors(changed) {
		pipe.Publish(ctx, chanKey(p), changed)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func joinSegs(segs []string) string {
	return strings.Join(segs, "/")
}
