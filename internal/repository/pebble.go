package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"svcmarket/internal/ledger"
)

var (
	pebbleSeqKey      = []byte("meta/seq")
	pebbleListedKey   = []byte("meta/listed")
	pebbleConfigKey   = []byte("meta/config")
	pebbleServicesPfx = []byte("svc/")
	pebbleTokensPfx   = []byte("tok/")
	pebbleListingsPfx = []byte("lst/")
)

// PebbleStore keeps ledger state in an embedded Pebble database. Every
// changeset is a single batch committed with pebble.Sync.
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

var _ ledger.Store = (*PebbleStore)(nil)

func (s *PebbleStore) Load(ctx context.Context) (*ledger.Snapshot, error) {
	rawCfg, err := s.get(pebbleConfigKey)
	if err != nil {
		return nil, err
	}
	if rawCfg == nil {
		return nil, nil
	}
	var cfg ledger.Config
	if err := json.Unmarshal(rawCfg, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", ErrCorruptData)
	}
	snap := ledger.NewSnapshot(cfg)

	seq, err := s.getInt(pebbleSeqKey)
	if err != nil {
		return nil, err
	}
	snap.Seq = uint64(seq)
	if snap.Listed, err = s.getInt(pebbleListedKey); err != nil {
		return nil, err
	}

	err = s.scan(pebbleServicesPfx, func(id ledger.AccountID, val []byte) error {
		v, err := decodeInt(val)
		snap.Services[id] = v
		return err
	})
	if err != nil {
		return nil, err
	}
	err = s.scan(pebbleTokensPfx, func(id ledger.AccountID, val []byte) error {
		v, err := decodeInt(val)
		snap.Tokens[id] = v
		return err
	})
	if err != nil {
		return nil, err
	}
	err = s.scan(pebbleListingsPfx, func(id ledger.AccountID, val []byte) error {
		lst, err := decodeListing(val)
		snap.Listings[id] = lst
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PebbleStore) Apply(ctx context.Context, cs *ledger.Changeset) error {
	cur, err := s.getInt(pebbleSeqKey)
	if err != nil {
		return err
	}
	if uint64(cur) != cs.Seq-1 {
		return fmt.Errorf("apply seq %d over %d: %w", cs.Seq, cur, ErrSeqConflict)
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()

	if err := b.Set(pebbleSeqKey, encodeInt(int64(cs.Seq)), nil); err != nil {
		return err
	}
	if cs.Listed != nil {
		if err := b.Set(pebbleListedKey, encodeInt(*cs.Listed), nil); err != nil {
			return err
		}
	}
	if cs.Config != nil {
		raw, err := json.Marshal(cs.Config)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		if err := b.Set(pebbleConfigKey, raw, nil); err != nil {
			return err
		}
	}
	for id, v := range cs.Services {
		if err := setOrDelete(b, accountKey(pebbleServicesPfx, id), encodeInt(v), v == 0); err != nil {
			return err
		}
	}
	for id, v := range cs.Tokens {
		if err := setOrDelete(b, accountKey(pebbleTokensPfx, id), encodeInt(v), v == 0); err != nil {
			return err
		}
	}
	for id, lst := range cs.Listings {
		if err := setOrDelete(b, accountKey(pebbleListingsPfx, id), encodeListing(lst), lst.Empty()); err != nil {
			return err
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit seq %d: %w", cs.Seq, err)
	}
	return nil
}

func setOrDelete(b *pebble.Batch, key, val []byte, del bool) error {
	if del {
		return b.Delete(key, nil)
	}
	return b.Set(key, val, nil)
}

// get returns nil when key is absent.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (s *PebbleStore) getInt(key []byte) (int64, error) {
	val, err := s.get(key)
	if err != nil || val == nil {
		return 0, err
	}
	return decodeInt(val)
}

func (s *PebbleStore) scan(prefix []byte, fn func(id ledger.AccountID, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id := ledger.AccountID(iter.Key()[len(prefix):])
		if err := fn(id, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func accountKey(prefix []byte, id ledger.AccountID) []byte {
	key := make([]byte, 0, len(prefix)+len(id))
	key = append(key, prefix...)
	return append(key, id...)
}

// prefixEnd returns the smallest key greater than every key with prefix.
// Prefixes here end in '/', which is never 0xff.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

func encodeInt(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("int of %d bytes: %w", len(b), ErrCorruptData)
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func encodeListing(l ledger.Listing) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(l.Quantity))
	binary.BigEndian.PutUint64(b[8:16], uint64(l.Cost))
	return b
}

func decodeListing(b []byte) (ledger.Listing, error) {
	if len(b) != 16 {
		return ledger.Listing{}, fmt.Errorf("listing of %d bytes: %w", len(b), ErrCorruptData)
	}
	return ledger.Listing{
		Quantity: int64(binary.BigEndian.Uint64(b[0:8])),
		Cost:     int64(binary.BigEndian.Uint64(b[8:16])),
	}, nil
}
