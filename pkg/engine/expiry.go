package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

// ExpirationManager buckets orders by floor(expiration/3600) so a sweep
// touches one bucket instead of every order. Auto-renewal is decided at
// sweep time: an expired order with the encrypted auto-renew flag set gets
// a fresh expiration of now+period instead of finalizing. The flag check
// crosses the decision boundary like every other secret read.
type ExpirationManager struct {
	rt    fhe.Runtime
	store Store
	de    *DecisionEvaluator
	log   *zap.Logger

	mu      sync.RWMutex
	buckets map[int64]map[string]*ExpirationRecord
	index   map[string]int64 // orderID -> hour bucket
}

func NewExpirationManager(rt fhe.Runtime, store Store, de *DecisionEvaluator, log *zap.Logger) *ExpirationManager {
	return &ExpirationManager{
		rt:      rt,
		store:   store,
		de:      de,
		log:     log,
		buckets: make(map[int64]map[string]*ExpirationRecord),
		index:   make(map[string]int64),
	}
}

// Rehydrate rebuilds the in-memory bucket index from the store.
func (em *ExpirationManager) Rehydrate() error {
	recs, err := em.store.AllExpirations()
	if err != nil {
		return fmt.Errorf("load expirations: %w", err)
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	for _, rec := range recs {
		em.insertLocked(rec)
	}
	return nil
}

func (em *ExpirationManager) insertLocked(rec *ExpirationRecord) {
	hour := HourBucket(rec.ExpirationTime)
	if em.buckets[hour] == nil {
		em.buckets[hour] = make(map[string]*ExpirationRecord)
	}
	em.buckets[hour][rec.OrderID] = rec
	em.index[rec.OrderID] = hour
}

func (em *ExpirationManager) removeLocked(orderID string) (*ExpirationRecord, int64, bool) {
	hour, ok := em.index[orderID]
	if !ok {
		return nil, 0, false
	}
	rec := em.buckets[hour][orderID]
	delete(em.buckets[hour], orderID)
	if len(em.buckets[hour]) == 0 {
		delete(em.buckets, hour)
	}
	delete(em.index, orderID)
	return rec, hour, true
}

// SetOrderExpiration inserts an order into its hour bucket and persists
// the record.
func (em *ExpirationManager) SetOrderExpiration(orderID string, expiration, creation int64, autoRenew fhe.EncBool, renewalPeriod int64) error {
	rec := &ExpirationRecord{
		OrderID:        orderID,
		ExpirationTime: expiration,
		CreationTime:   creation,
		AutoRenewal:    autoRenew,
		RenewalPeriod:  renewalPeriod,
	}
	if err := em.store.SaveExpiration(rec); err != nil {
		return fmt.Errorf("save expiration: %w", err)
	}
	em.mu.Lock()
	em.insertLocked(rec)
	em.mu.Unlock()
	return nil
}

// ExtendOrderExpiration moves an order to a new expiration, relocating it
// across buckets when the hour changes.
func (em *ExpirationManager) ExtendOrderExpiration(orderID string, newExpiration int64) error {
	em.mu.Lock()
	rec, oldHour, ok := em.removeLocked(orderID)
	if !ok {
		em.mu.Unlock()
		return ErrNotFound
	}
	rec.ExpirationTime = newExpiration
	em.insertLocked(rec)
	em.mu.Unlock()

	if oldHour != HourBucket(newExpiration) {
		if err := em.store.DeleteExpiration(oldHour, orderID); err != nil {
			return fmt.Errorf("delete old expiration bucket entry: %w", err)
		}
	}
	if err := em.store.SaveExpiration(rec); err != nil {
		return fmt.Errorf("save extended expiration: %w", err)
	}
	return nil
}

// Remove deletes an order's expiration record (cancel/completion cleanup).
// Idempotent: removing an untracked order is a no-op.
func (em *ExpirationManager) Remove(orderID string) error {
	em.mu.Lock()
	_, hour, ok := em.removeLocked(orderID)
	em.mu.Unlock()
	if !ok {
		return nil
	}
	return em.store.DeleteExpiration(hour, orderID)
}

// Expiration returns the plaintext expiration time for an order.
func (em *ExpirationManager) Expiration(orderID string) (int64, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()
	hour, ok := em.index[orderID]
	if !ok {
		return 0, false
	}
	return em.buckets[hour][orderID].ExpirationTime, true
}

// DueBuckets returns the non-empty bucket hours at or before nowHour, in
// ascending order, so a tick can catch up on hours no tick observed.
func (em *ExpirationManager) DueBuckets(nowHour int64) []int64 {
	em.mu.RLock()
	defer em.mu.RUnlock()
	var due []int64
	for hour := range em.buckets {
		if hour <= nowHour {
			due = append(due, hour)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}

// ProcessExpirationHour sweeps one bucket. Orders past their expiration
// either renew (auto-renew flag set: expiration becomes now+period) or
// are reported expired and dropped from the index. A fault on one record
// never aborts the rest of the sweep.
func (em *ExpirationManager) ProcessExpirationHour(ctx context.Context, hour int64, now int64) (expired []string, renewed []string) {
	em.mu.RLock()
	bucket := make([]*ExpirationRecord, 0, len(em.buckets[hour]))
	for _, rec := range em.buckets[hour] {
		bucket = append(bucket, rec)
	}
	em.mu.RUnlock()

	for _, rec := range bucket {
		if rec.ExpirationTime > now {
			continue
		}

		if em.de.Evaluate(ctx, rec.AutoRenewal, false) && rec.RenewalPeriod > 0 {
			if err := em.ExtendOrderExpiration(rec.OrderID, now+rec.RenewalPeriod); err != nil {
				em.log.Error("auto-renewal failed",
					zap.String("order_id", rec.OrderID), zap.Error(err))
				continue
			}
			renewed = append(renewed, rec.OrderID)
			continue
		}

		em.mu.Lock()
		_, bucketHour, ok := em.removeLocked(rec.OrderID)
		em.mu.Unlock()
		if ok {
			if err := em.store.DeleteExpiration(bucketHour, rec.OrderID); err != nil {
				em.log.Error("expiration cleanup failed",
					zap.String("order_id", rec.OrderID), zap.Error(err))
			}
		}
		expired = append(expired, rec.OrderID)
	}
	return expired, renewed
}
