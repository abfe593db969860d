package storage

import (
	"sort"
	"sync"

	"github.com/darkpool-labs/ciphermatch/pkg/engine"
)

// MemStore is an in-memory engine.Store for tests and single-run tools.
type MemStore struct {
	mu          sync.Mutex
	orders      map[string]engine.Order
	fills       map[string][]engine.Fill
	partial     map[string]engine.PartialFillState
	expirations map[int64]map[string]engine.ExpirationRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders:      make(map[string]engine.Order),
		fills:       make(map[string][]engine.Fill),
		partial:     make(map[string]engine.PartialFillState),
		expirations: make(map[int64]map[string]engine.ExpirationRecord),
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) SaveOrder(o *engine.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *MemStore) GetOrder(id string) (*engine.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false, nil
	}
	cp := o
	return &cp, true, nil
}

func (s *MemStore) DeleteOrder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	return nil
}

func (s *MemStore) OpenOrders() ([]*engine.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*engine.Order
	for _, o := range s.orders {
		if o.Open {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) ApplyFill(o *engine.Order, st *engine.PartialFillState, fill *engine.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	s.partial[st.OrderID] = *st
	if fill != nil {
		s.fills[fill.OrderID] = append(s.fills[fill.OrderID], *fill)
	}
	return nil
}

func (s *MemStore) Fills(orderID string) ([]*engine.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fills := s.fills[orderID]
	out := make([]*engine.Fill, len(fills))
	for i := range fills {
		cp := fills[i]
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemStore) CountFills(orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fills[orderID]), nil
}

func (s *MemStore) DeleteFills(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fills, orderID)
	return nil
}

func (s *MemStore) SavePartialFill(st *engine.PartialFillState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial[st.OrderID] = *st
	return nil
}

func (s *MemStore) GetPartialFill(orderID string) (*engine.PartialFillState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.partial[orderID]
	if !ok {
		return nil, false, nil
	}
	cp := st
	return &cp, true, nil
}

func (s *MemStore) DeletePartialFill(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partial, orderID)
	return nil
}

func (s *MemStore) SaveExpiration(rec *engine.ExpirationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hour := engine.HourBucket(rec.ExpirationTime)
	if s.expirations[hour] == nil {
		s.expirations[hour] = make(map[string]engine.ExpirationRecord)
	}
	s.expirations[hour][rec.OrderID] = *rec
	return nil
}

func (s *MemStore) DeleteExpiration(hour int64, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.expirations[hour]; ok {
		delete(bucket, orderID)
		if len(bucket) == 0 {
			delete(s.expirations, hour)
		}
	}
	return nil
}

func (s *MemStore) ExpirationBucket(hour int64) ([]*engine.ExpirationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*engine.ExpirationRecord
	for _, rec := range s.expirations[hour] {
		cp := rec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) AllExpirations() ([]*engine.ExpirationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*engine.ExpirationRecord
	for _, bucket := range s.expirations {
		for _, rec := range bucket {
			cp := rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ engine.Store = (*MemStore)(nil)
