package storage

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/darkpool-labs/ciphermatch/pkg/engine"
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

func openTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPebbleStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func handle(b byte) fhe.Handle {
	var h fhe.Handle
	h[0] = b
	return h
}

func sampleOrder(id string, open bool) *engine.Order {
	return &engine.Order{
		ID:           id,
		Owner:        common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		TriggerPrice: fhe.EncUint64{Handle: handle(1)},
		Size:         fhe.EncUint64{Handle: handle(2)},
		Direction:    fhe.EncBool{Handle: handle(3)},
		FilledAmount: fhe.EncUint64{Handle: handle(4)},
		Expiration:   fhe.EncUint64{Handle: handle(5)},
		MinFillSize:  fhe.EncUint64{Handle: handle(6)},
		IsActive:     fhe.EncBool{Handle: handle(7)},
		CreatedAt:    1_800_000_000,
		Open:         open,
	}
}

func TestPebbleStore_OrderRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if _, ok, err := store.GetOrder("missing"); err != nil || ok {
		t.Fatalf("GetOrder(missing) = %v, %v, want false, nil", ok, err)
	}

	o := sampleOrder("ord-1", true)
	if err := store.SaveOrder(o); err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}

	got, ok, err := store.GetOrder("ord-1")
	if err != nil || !ok {
		t.Fatalf("GetOrder() = %v, %v", ok, err)
	}
	if got.Owner != o.Owner || got.TriggerPrice.Handle != o.TriggerPrice.Handle || got.CreatedAt != o.CreatedAt {
		t.Errorf("round trip mismatch: got %+v", got)
	}

	if err := store.DeleteOrder("ord-1"); err != nil {
		t.Fatalf("DeleteOrder() error = %v", err)
	}
	if _, ok, _ := store.GetOrder("ord-1"); ok {
		t.Error("order survived delete")
	}
}

func TestPebbleStore_OpenOrdersFiltersClosed(t *testing.T) {
	store := openTestStore(t)

	for i, open := range []bool{true, false, true} {
		if err := store.SaveOrder(sampleOrder(fmt.Sprintf("ord-%d", i), open)); err != nil {
			t.Fatalf("SaveOrder() error = %v", err)
		}
	}

	open, err := store.OpenOrders()
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("OpenOrders() returned %d orders, want 2", len(open))
	}
	for _, o := range open {
		if !o.Open {
			t.Errorf("closed order %s in open scan", o.ID)
		}
	}
}

func TestPebbleStore_ApplyFillAtomicAndOrdered(t *testing.T) {
	store := openTestStore(t)

	o := sampleOrder("ord-1", true)
	if err := store.SaveOrder(o); err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}
	st := &engine.PartialFillState{
		OrderID:          "ord-1",
		TotalFilled:      fhe.EncUint64{Handle: handle(10)},
		AverageFillPrice: fhe.EncUint64{Handle: handle(11)},
		FillCount:        fhe.EncUint64{Handle: handle(12)},
		LastFillTime:     fhe.EncUint64{Handle: handle(13)},
	}

	for seq := 0; seq < 3; seq++ {
		fill := &engine.Fill{
			OrderID:   "ord-1",
			Seq:       seq,
			Amount:    fhe.EncUint64{Handle: handle(byte(20 + seq))},
			Price:     fhe.EncUint64{Handle: handle(byte(30 + seq))},
			Timestamp: fhe.EncUint64{Handle: handle(byte(40 + seq))},
		}
		if err := store.ApplyFill(o, st, fill); err != nil {
			t.Fatalf("ApplyFill(%d) error = %v", seq, err)
		}
	}
	// A nil fill record still persists order and aggregates (history cap).
	if err := store.ApplyFill(o, st, nil); err != nil {
		t.Fatalf("ApplyFill(nil) error = %v", err)
	}

	fills, err := store.Fills("ord-1")
	if err != nil {
		t.Fatalf("Fills() error = %v", err)
	}
	if len(fills) != 3 {
		t.Fatalf("Fills() returned %d, want 3", len(fills))
	}
	for i, f := range fills {
		if f.Seq != i {
			t.Errorf("fills out of order: index %d has seq %d", i, f.Seq)
		}
	}

	n, err := store.CountFills("ord-1")
	if err != nil || n != 3 {
		t.Errorf("CountFills() = %d, %v, want 3", n, err)
	}

	gotSt, ok, err := store.GetPartialFill("ord-1")
	if err != nil || !ok {
		t.Fatalf("GetPartialFill() = %v, %v", ok, err)
	}
	if gotSt.TotalFilled.Handle != st.TotalFilled.Handle {
		t.Error("aggregate not persisted by ApplyFill")
	}

	if err := store.DeleteFills("ord-1"); err != nil {
		t.Fatalf("DeleteFills() error = %v", err)
	}
	if n, _ := store.CountFills("ord-1"); n != 0 {
		t.Errorf("%d fills survived DeleteFills", n)
	}
}

func TestPebbleStore_ExpirationBuckets(t *testing.T) {
	store := openTestStore(t)

	recs := []*engine.ExpirationRecord{
		{OrderID: "a", ExpirationTime: 7200, CreationTime: 0, AutoRenewal: fhe.EncBool{Handle: handle(1)}},
		{OrderID: "b", ExpirationTime: 7300, CreationTime: 0, AutoRenewal: fhe.EncBool{Handle: handle(2)}},
		{OrderID: "c", ExpirationTime: 10800, CreationTime: 0, AutoRenewal: fhe.EncBool{Handle: handle(3)}},
	}
	for _, rec := range recs {
		if err := store.SaveExpiration(rec); err != nil {
			t.Fatalf("SaveExpiration(%s) error = %v", rec.OrderID, err)
		}
	}

	bucket, err := store.ExpirationBucket(2) // hour 2 holds a and b
	if err != nil {
		t.Fatalf("ExpirationBucket() error = %v", err)
	}
	if len(bucket) != 2 {
		t.Fatalf("bucket 2 holds %d records, want 2", len(bucket))
	}

	all, err := store.AllExpirations()
	if err != nil || len(all) != 3 {
		t.Fatalf("AllExpirations() = %d records, %v, want 3", len(all), err)
	}

	if err := store.DeleteExpiration(2, "a"); err != nil {
		t.Fatalf("DeleteExpiration() error = %v", err)
	}
	bucket, _ = store.ExpirationBucket(2)
	if len(bucket) != 1 || bucket[0].OrderID != "b" {
		t.Errorf("bucket after delete = %+v, want only b", bucket)
	}
}

func TestPebbleStore_PartialFillLifecycle(t *testing.T) {
	store := openTestStore(t)

	st := &engine.PartialFillState{
		OrderID:     "ord-1",
		TotalFilled: fhe.EncUint64{Handle: handle(10)},
	}
	if err := store.SavePartialFill(st); err != nil {
		t.Fatalf("SavePartialFill() error = %v", err)
	}
	if _, ok, err := store.GetPartialFill("ord-1"); err != nil || !ok {
		t.Fatalf("GetPartialFill() = %v, %v", ok, err)
	}
	if err := store.DeletePartialFill("ord-1"); err != nil {
		t.Fatalf("DeletePartialFill() error = %v", err)
	}
	if _, ok, _ := store.GetPartialFill("ord-1"); ok {
		t.Error("partial fill state survived delete")
	}
}
