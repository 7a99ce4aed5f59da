package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace-bidding/internal/config"
	"marketplace-bidding/internal/metrics"
	"marketplace-bidding/utils"
)

// RedisStore implements Store on Redis. Each document is a JSON string under
// "{prefix}:doc:{coll}/{id}", each collection keeps a set of its ids and the
// root keeps a set of collection names. Transactions use WATCH/MULTI/EXEC.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// Timeouts used when the config leaves them unset
const (
	DefaultDialTimeout = 5 * time.Second
	DefaultIOTimeout   = 3 * time.Second
)

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	dialTimeout := orDefault(cfg.DialTimeout, DefaultDialTimeout)
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  orDefault(cfg.ReadTimeout, DefaultIOTimeout),
		WriteTimeout: orDefault(cfg.WriteTimeout, DefaultIOTimeout),
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "market"
	}
	retries := cfg.MaxTxnRetries
	if retries <= 0 {
		retries = 25
	}

	utils.Info("redis store initialized", map[string]any{
		"addr":   cfg.Addr,
		"db":     cfg.DB,
		"prefix": prefix,
	})

	return &RedisStore{client: client, prefix: prefix, maxRetries: retries}, nil
}

func (r *RedisStore) docKey(key string) string   { return r.prefix + ":doc:" + key }
func (r *RedisStore) collKey(coll string) string { return r.prefix + ":idx:" + coll }
func (r *RedisStore) rootKey() string            { return r.prefix + ":root" }
func (r *RedisStore) changesChannel() string     { return r.prefix + ":changes" }

func (r *RedisStore) upstream(op string, err error) error {
	return fmt.Errorf("redis %s: %w", op, err)
}

// reader is the read subset shared by *redis.Client and *redis.Tx
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

type redisLoader struct {
	s   *RedisStore
	cmd reader
	tx  *redis.Tx // set inside transactions; every key read is watched first
}

func (l redisLoader) watch(ctx context.Context, key string) error {
	if l.tx == nil {
		return nil
	}
	if err := l.tx.Watch(ctx, key).Err(); err != nil {
		return l.s.upstream("watch", err)
	}
	return nil
}

func (l redisLoader) loadDoc(ctx context.Context, key string) (any, error) {
	k := l.s.docKey(key)
	if err := l.watch(ctx, k); err != nil {
		return nil, err
	}
	b, err := l.cmd.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, l.s.upstream("get", err)
	}
	return decode(b)
}

func (l redisLoader) members(ctx context.Context, key string) ([]string, error) {
	if err := l.watch(ctx, key); err != nil {
		return nil, err
	}
	ids, err := l.cmd.SMembers(ctx, key).Result()
	if err != nil {
		return nil, l.s.upstream("smembers", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l redisLoader) loadCollection(ctx context.Context, coll string) ([]string, error) {
	return l.members(ctx, l.s.collKey(coll))
}

func (l redisLoader) loadCollections(ctx context.Context) ([]string, error) {
	return l.members(ctx, l.s.rootKey())
}

func (r *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	return newDocTxn(ctx, redisLoader{s: r, cmd: r.client}).Get(path)
}

func (r *RedisStore) Set(ctx context.Context, path string, value any) error {
	return r.RunTransaction(ctx, func(tx Txn) error {
		return tx.Set(path, value)
	})
}

func (r *RedisStore) Update(ctx context.Context, path string, values map[string]any) error {
	return r.RunTransaction(ctx, func(tx Txn) error {
		return tx.Update(path, values)
	})
}

func (r *RedisStore) Push(ctx context.Context, path string, value any) (string, error) {
	key := r.NewKey()
	if err := r.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (r *RedisStore) NewKey() string {
	return NewPushKey()
}

// RunTransaction retries fn on optimistic-lock conflicts up to the configured
// limit. Errors returned by fn abort the transaction without retry.
func (r *RedisStore) RunTransaction(ctx context.Context, fn func(tx Txn) error) error {
	backoff := time.Millisecond
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			t := newDocTxn(ctx, redisLoader{s: r, cmd: tx, tx: tx})
			if err := fn(t); err != nil {
				return err
			}
			return r.commit(ctx, tx, t)
		})
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		metrics.StoreTxnRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}

	utils.Warn("redis transaction retries exhausted", map[string]any{"retries": r.maxRetries})
	return ErrTxnConflict
}

func (r *RedisStore) commit(ctx context.Context, tx *redis.Tx, t *docTxn) error {
	keys := t.dirtyKeys()
	if len(keys) == 0 {
		return nil
	}

	encoded := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v := t.docs[k].value; v != nil {
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("%w: encode %q: %v", ErrInvalidValue, k, err)
			}
			encoded[k] = b
		}
	}

	cmds, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			coll, id := splitDocKey(k)
			if b, ok := encoded[k]; ok {
				pipe.Set(ctx, r.docKey(k), b, 0)
				pipe.SAdd(ctx, r.collKey(coll), id)
				pipe.SAdd(ctx, r.rootKey(), coll)
			} else {
				pipe.Del(ctx, r.docKey(k))
				pipe.SRem(ctx, r.collKey(coll), id)
			}
		}
		for _, k := range keys {
			pipe.Publish(ctx, r.changesChannel(), k)
		}
		return nil
	})
	if err == nil || errors.Is(err, redis.TxFailedErr) {
		return err
	}

	succeeded := 0
	for _, c := range cmds {
		if c.Err() == nil {
			succeeded++
		}
	}
	if succeeded > 0 {
		utils.Error("redis transaction partially committed", map[string]any{
			"documents": strings.Join(keys, ","),
			"error":     err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrPartialCommit, err)
	}
	return r.upstream("exec", err)
}

func (r *RedisStore) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	ps := r.client.Subscribe(ctx, r.changesChannel())
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, r.upstream("subscribe", err)
	}

	out := make(chan Event, 1)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if !overlaps(segs, strings.Split(msg.Payload, "/")) {
					continue
				}
				select {
				case out <- Event{Path: msg.Payload}:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
