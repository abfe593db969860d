package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

// fillEfficiencyPenaltyBps is the score deduction per fill event:
// efficiency rewards completing an order in few fills close to target.
const fillEfficiencyPenaltyBps = 50

// PartialFillTracker owns the per-order fill state machine
// (Unfilled -> PartiallyFilled -> FullyFilled) and its aggregates: running
// total, volume-weighted average price, fill count, last fill time, and
// the append-only fill history. Aggregates stay encrypted end to end; only
// the history length and sequence numbers are plaintext (the records
// themselves are observable as writes regardless).
type PartialFillTracker struct {
	rt    fhe.Runtime
	store Store
	log   *zap.Logger

	// historyCap bounds the per-order fill history. Fills past the cap
	// still update aggregates but are not appended.
	historyCap int

	mu  sync.Mutex
	seq map[string]int // orderID -> next fill sequence
}

func NewPartialFillTracker(rt fhe.Runtime, store Store, historyCap int, log *zap.Logger) *PartialFillTracker {
	return &PartialFillTracker{
		rt:         rt,
		store:      store,
		log:        log,
		historyCap: historyCap,
		seq:        make(map[string]int),
	}
}

// InitState creates the zeroed aggregate for a new order so every handle
// exists (and is grantable) from the moment of creation.
func (t *PartialFillTracker) InitState(orderID string) (*PartialFillState, error) {
	st := &PartialFillState{
		OrderID:          orderID,
		TotalFilled:      t.rt.EncryptUint64(0),
		AverageFillPrice: t.rt.EncryptUint64(0),
		FillCount:        t.rt.EncryptUint64(0),
		LastFillTime:     t.rt.EncryptUint64(0),
	}
	if err := t.store.SavePartialFill(st); err != nil {
		return nil, fmt.Errorf("init partial fill state: %w", err)
	}
	return st, nil
}

func (t *PartialFillTracker) state(orderID string) (*PartialFillState, error) {
	st, ok, err := t.store.GetPartialFill(orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return t.InitState(orderID)
	}
	return st, nil
}

func (t *PartialFillTracker) nextSeq(orderID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.seq[orderID]
	if !ok {
		count, err := t.store.CountFills(orderID)
		if err != nil {
			return 0, err
		}
		n = count
	}
	t.seq[orderID] = n + 1
	return n, nil
}

// ExecutePartialFill applies one fill to an order and persists the order,
// the aggregates and the fill record atomically. It mutates
// order.FilledAmount and returns the encrypted fully-filled flag
// (newTotal >= orderSize).
//
// The VWAP update selects between both branches in the encrypted domain:
// newAverage = select(fillCount == 0, fillPrice,
// (totalFilled*avg + fillAmount*price) / newTotal). Division by newTotal
// is safe once any non-zero fill has occurred; a zero fill is a legal
// no-op that leaves the average unchanged.
func (t *PartialFillTracker) ExecutePartialFill(order *Order, fillAmount, fillPrice fhe.EncUint64, now int64) (fhe.EncBool, error) {
	st, err := t.state(order.ID)
	if err != nil {
		return fhe.EncBool{}, fmt.Errorf("load partial fill state: %w", err)
	}

	zero := t.rt.EncryptUint64(0)
	one := t.rt.EncryptUint64(1)

	newTotal := t.rt.Add(st.TotalFilled, fillAmount)
	weighted := t.rt.Div(
		t.rt.Add(t.rt.Mul(st.TotalFilled, st.AverageFillPrice), t.rt.Mul(fillAmount, fillPrice)),
		newTotal,
	)
	isFirst := t.rt.Eq(st.FillCount, zero)
	newAverage := t.rt.Select(isFirst, fillPrice, weighted)

	st.TotalFilled = newTotal
	st.AverageFillPrice = newAverage
	st.FillCount = t.rt.Add(st.FillCount, one)
	st.LastFillTime = t.rt.EncryptUint64(uint64(now))

	order.FilledAmount = newTotal
	fullyFilled := t.rt.Ge(newTotal, order.Size)

	seq, err := t.nextSeq(order.ID)
	if err != nil {
		return fhe.EncBool{}, fmt.Errorf("fill sequence: %w", err)
	}
	var fill *Fill
	if seq < t.historyCap {
		fill = &Fill{
			OrderID:   order.ID,
			Seq:       seq,
			Amount:    fillAmount,
			Price:     fillPrice,
			Timestamp: t.rt.EncryptUint64(uint64(now)),
		}
	} else {
		t.log.Warn("fill history cap reached, aggregates only",
			zap.String("order_id", order.ID), zap.Int("cap", t.historyCap))
	}

	if err := t.store.ApplyFill(order, st, fill); err != nil {
		return fhe.EncBool{}, fmt.Errorf("apply fill: %w", err)
	}
	return fullyFilled, nil
}

// MeetsMinimumFillRequirement is the encrypted acceptance predicate:
// proposedFill >= minFillSize OR proposedFill >= remaining. The second leg
// always permits a final small fill that completes the order.
func (t *PartialFillTracker) MeetsMinimumFillRequirement(proposed, minFill, remaining fhe.EncUint64) fhe.EncBool {
	return t.rt.Or(t.rt.Ge(proposed, minFill), t.rt.Ge(proposed, remaining))
}

// CalculateFillEfficiency scores execution quality against a target
// price: max(0, 10000 - priceDeviationBps - fillCount*50). Saturating
// subtraction clamps the floor at zero.
func (t *PartialFillTracker) CalculateFillEfficiency(orderID string, targetPrice fhe.EncUint64) (fhe.EncUint64, error) {
	st, ok, err := t.store.GetPartialFill(orderID)
	if err != nil {
		return fhe.EncUint64{}, err
	}
	if !ok {
		return fhe.EncUint64{}, ErrNotFound
	}

	deviation := t.rt.Select(
		t.rt.Ge(st.AverageFillPrice, targetPrice),
		t.rt.Sub(st.AverageFillPrice, targetPrice),
		t.rt.Sub(targetPrice, st.AverageFillPrice),
	)
	deviationBps := t.rt.Div(t.rt.Mul(deviation, t.rt.EncryptUint64(bpsDenominator)), targetPrice)
	penalty := t.rt.Mul(st.FillCount, t.rt.EncryptUint64(fillEfficiencyPenaltyBps))

	score := t.rt.Sub(t.rt.EncryptUint64(bpsDenominator), deviationBps)
	return t.rt.Sub(score, penalty), nil
}

// FillHistory returns the order's append-only fill records.
func (t *PartialFillTracker) FillHistory(orderID string) ([]*Fill, error) {
	return t.store.Fills(orderID)
}

// Reset clears the aggregate and history for an order (cancel/expire
// cleanup). The order returns to the unfilled-equivalent state by
// deletion.
func (t *PartialFillTracker) Reset(orderID string) error {
	if err := t.store.DeletePartialFill(orderID); err != nil {
		return fmt.Errorf("delete partial fill state: %w", err)
	}
	if err := t.store.DeleteFills(orderID); err != nil {
		return fmt.Errorf("delete fills: %w", err)
	}
	t.mu.Lock()
	delete(t.seq, orderID)
	t.mu.Unlock()
	return nil
}
