package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"svcmarket/internal/ledger"
)

const (
	redisMetaKey     = "market:meta"
	redisServicesKey = "market:services"
	redisTokensKey   = "market:tokens"
	redisListingsKey = "market:listings"
)

// RedisStore keeps ledger state in four hashes. Changesets are written in a
// MULTI/EXEC block under WATCH on the meta hash, so a concurrent writer
// aborts the transaction instead of interleaving.
type RedisStore struct {
	redisClient *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{redisClient: rdb}
}

var _ ledger.Store = (*RedisStore)(nil)

func (s *RedisStore) Load(ctx context.Context) (*ledger.Snapshot, error) {
	meta, err := s.redisClient.HGetAll(ctx, redisMetaKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}

	var cfg ledger.Config
	if err := json.Unmarshal([]byte(meta["config"]), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", ErrCorruptData)
	}
	snap := ledger.NewSnapshot(cfg)
	if snap.Seq, err = strconv.ParseUint(meta["seq"], 10, 64); err != nil {
		return nil, fmt.Errorf("decode seq: %w", ErrCorruptData)
	}
	if snap.Listed, err = parseRedisInt(meta["listed"]); err != nil {
		return nil, err
	}

	if err := s.loadInts(ctx, redisServicesKey, snap.Services); err != nil {
		return nil, err
	}
	if err := s.loadInts(ctx, redisTokensKey, snap.Tokens); err != nil {
		return nil, err
	}

	listings, err := s.redisClient.HGetAll(ctx, redisListingsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	for id, raw := range listings {
		var lst ledger.Listing
		if err := json.Unmarshal([]byte(raw), &lst); err != nil {
			return nil, fmt.Errorf("decode listing %s: %w", id, ErrCorruptData)
		}
		snap.Listings[ledger.AccountID(id)] = lst
	}
	return snap, nil
}

func (s *RedisStore) loadInts(ctx context.Context, key string, into map[ledger.AccountID]int64) error {
	values, err := s.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	for id, raw := range values {
		v, err := parseRedisInt(raw)
		if err != nil {
			return err
		}
		into[ledger.AccountID(id)] = v
	}
	return nil
}

func (s *RedisStore) Apply(ctx context.Context, cs *ledger.Changeset) error {
	fields, err := redisFields(cs)
	if err != nil {
		return err
	}

	err = s.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, redisMetaKey, "seq").Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read seq: %w", err)
		}
		if cur != cs.Seq-1 {
			return fmt.Errorf("apply seq %d over %d: %w", cs.Seq, cur, ErrSeqConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, kv := range fields.set {
				pipe.HSet(ctx, key, kv)
			}
			for key, ids := range fields.del {
				pipe.HDel(ctx, key, ids...)
			}
			return nil
		})
		return err
	}, redisMetaKey)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("apply seq %d: %w", cs.Seq, ErrSeqConflict)
	}
	return err
}

type redisWrites struct {
	set map[string]map[string]any
	del map[string][]string
}

// redisFields translates a changeset into per-hash field writes. Zero
// balances and empty listings become deletions.
func redisFields(cs *ledger.Changeset) (*redisWrites, error) {
	w := &redisWrites{set: make(map[string]map[string]any), del: make(map[string][]string)}
	put := func(key, field string, v any) {
		if w.set[key] == nil {
			w.set[key] = make(map[string]any)
		}
		w.set[key][field] = v
	}

	put(redisMetaKey, "seq", strconv.FormatUint(cs.Seq, 10))
	if cs.Listed != nil {
		put(redisMetaKey, "listed", strconv.FormatInt(*cs.Listed, 10))
	}
	if cs.Config != nil {
		raw, err := json.Marshal(cs.Config)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		put(redisMetaKey, "config", string(raw))
	}

	ints := func(key string, values map[ledger.AccountID]int64) {
		for id, v := range values {
			if v == 0 {
				w.del[key] = append(w.del[key], string(id))
				continue
			}
			put(key, string(id), strconv.FormatInt(v, 10))
		}
	}
	ints(redisServicesKey, cs.Services)
	ints(redisTokensKey, cs.Tokens)

	for id, lst := range cs.Listings {
		if lst.Empty() {
			w.del[redisListingsKey] = append(w.del[redisListingsKey], string(id))
			continue
		}
		raw, err := json.Marshal(lst)
		if err != nil {
			return nil, fmt.Errorf("encode listing: %w", err)
		}
		put(redisListingsKey, string(id), string(raw))
	}
	return w, nil
}

func parseRedisInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %q: %w", raw, ErrCorruptData)
	}
	return v, nil
}
