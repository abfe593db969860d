package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/darkpool-labs/ciphermatch/pkg/engine"
)

// PebbleStore persists orders, fills, partial-fill aggregates and
// expiration records. Values are JSON: every secret field is already an
// opaque handle, so the at-rest representation discloses nothing the
// runtime has not granted.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens a Pebble database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) set(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *PebbleStore) get(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *PebbleStore) SaveOrder(o *engine.Order) error {
	return s.set(orderKey(o.ID), o)
}

func (s *PebbleStore) GetOrder(id string) (*engine.Order, bool, error) {
	var o engine.Order
	ok, err := s.get(orderKey(id), &o)
	if !ok || err != nil {
		return nil, false, err
	}
	return &o, true, nil
}

func (s *PebbleStore) DeleteOrder(id string) error {
	if err := s.db.Delete(orderKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

// OpenOrders returns every order whose operational Open flag is set.
func (s *PebbleStore) OpenOrders() ([]*engine.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*engine.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o engine.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue // skip invalid entries
		}
		if o.Open {
			cp := o
			orders = append(orders, &cp)
		}
	}
	return orders, nil
}

// ApplyFill commits the mutated order, the updated aggregates, and the
// appended fill (when present) in one atomic batch.
func (s *PebbleStore) ApplyFill(o *engine.Order, st *engine.PartialFillState, fill *engine.Fill) error {
	b := s.db.NewBatch()
	defer b.Close()

	orderData, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if err := b.Set(orderKey(o.ID), orderData, nil); err != nil {
		return err
	}

	stData, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal partial fill state: %w", err)
	}
	if err := b.Set(partialFillKey(st.OrderID), stData, nil); err != nil {
		return err
	}

	if fill != nil {
		fillData, err := json.Marshal(fill)
		if err != nil {
			return fmt.Errorf("marshal fill: %w", err)
		}
		if err := b.Set(fillKey(fill.OrderID, fill.Seq), fillData, nil); err != nil {
			return err
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit fill batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) Fills(orderID string) ([]*engine.Fill, error) {
	prefix := fillPrefix(orderID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var fills []*engine.Fill
	for iter.First(); iter.Valid(); iter.Next() {
		var f engine.Fill
		if err := json.Unmarshal(iter.Value(), &f); err != nil {
			continue
		}
		fills = append(fills, &f)
	}
	return fills, nil
}

func (s *PebbleStore) CountFills(orderID string) (int, error) {
	prefix := fillPrefix(orderID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}

func (s *PebbleStore) DeleteFills(orderID string) error {
	prefix := fillPrefix(orderID)
	if err := s.db.DeleteRange(prefix, keyUpperBound(prefix), pebble.Sync); err != nil {
		return fmt.Errorf("delete fills %s: %w", orderID, err)
	}
	return nil
}

func (s *PebbleStore) SavePartialFill(st *engine.PartialFillState) error {
	return s.set(partialFillKey(st.OrderID), st)
}

func (s *PebbleStore) GetPartialFill(orderID string) (*engine.PartialFillState, bool, error) {
	var st engine.PartialFillState
	ok, err := s.get(partialFillKey(orderID), &st)
	if !ok || err != nil {
		return nil, false, err
	}
	return &st, true, nil
}

func (s *PebbleStore) DeletePartialFill(orderID string) error {
	if err := s.db.Delete(partialFillKey(orderID), pebble.Sync); err != nil {
		return fmt.Errorf("delete partial fill %s: %w", orderID, err)
	}
	return nil
}

func (s *PebbleStore) SaveExpiration(rec *engine.ExpirationRecord) error {
	return s.set(expirationKey(engine.HourBucket(rec.ExpirationTime), rec.OrderID), rec)
}

func (s *PebbleStore) DeleteExpiration(hour int64, orderID string) error {
	if err := s.db.Delete(expirationKey(hour, orderID), pebble.Sync); err != nil {
		return fmt.Errorf("delete expiration %s: %w", orderID, err)
	}
	return nil
}

func (s *PebbleStore) ExpirationBucket(hour int64) ([]*engine.ExpirationRecord, error) {
	prefix := expirationBucketPrefix(hour)
	return s.scanExpirations(prefix)
}

func (s *PebbleStore) AllExpirations() ([]*engine.ExpirationRecord, error) {
	return s.scanExpirations([]byte(prefixExpiration))
}

func (s *PebbleStore) scanExpirations(prefix []byte) ([]*engine.ExpirationRecord, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var recs []*engine.ExpirationRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec engine.ExpirationRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

var _ engine.Store = (*PebbleStore)(nil)
