package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
	"github.com/darkpool-labs/ciphermatch/pkg/metrics"
	"github.com/darkpool-labs/ciphermatch/pkg/util"
)

// Config carries the engine's operational parameters.
type Config struct {
	// MaxSlippageBps bounds the trigger/tick deviation enforced by the
	// pre-settlement pass.
	MaxSlippageBps uint64
	// FillHistoryCap bounds per-order fill history.
	FillHistoryCap int
	// Settlement is the venue counterpart granted visibility of revealed
	// fill data.
	Settlement common.Address
}

// Engine is the confidential order-matching core. It is invoked
// synchronously, once per external tick; per-order mutation is atomic
// within a tick and faults are isolated per order.
type Engine struct {
	rt    fhe.Runtime
	store Store
	self  common.Address
	cfg   Config
	clock util.Clock
	log   *zap.Logger

	decisions *DecisionEvaluator
	validator *Validator
	triggers  *TriggerEvaluator
	fills     *FillCalculator
	tracker   *PartialFillTracker
	expiry    *ExpirationManager
	scorer    *PriorityScorer
	acl       *AccessControlManager

	mu   sync.Mutex
	open map[string]*Order // operational index of open orders
}

// New assembles an engine over a runtime and a store, rehydrating the open
// order set and expiration buckets from persisted state.
func New(rt fhe.Runtime, store Store, self common.Address, cfg Config, clock util.Clock, log *zap.Logger) (*Engine, error) {
	de := NewDecisionEvaluator(rt, self, log)
	e := &Engine{
		rt:        rt,
		store:     store,
		self:      self,
		cfg:       cfg,
		clock:     clock,
		log:       log,
		decisions: de,
		validator: NewValidator(rt),
		triggers:  NewTriggerEvaluator(rt),
		fills:     NewFillCalculator(rt),
		tracker:   NewPartialFillTracker(rt, store, cfg.FillHistoryCap, log),
		expiry:    NewExpirationManager(rt, store, de, log),
		scorer:    NewPriorityScorer(rt),
		acl:       NewAccessControlManager(rt, self, log),
		open:      make(map[string]*Order),
	}

	orders, err := store.OpenOrders()
	if err != nil {
		return nil, fmt.Errorf("rehydrate open orders: %w", err)
	}
	for _, o := range orders {
		e.open[o.ID] = o
	}
	if err := e.expiry.Rehydrate(); err != nil {
		return nil, err
	}
	metrics.OpenOrders.Set(float64(len(e.open)))
	return e, nil
}

// Decisions exposes the evaluator for read paths that must cross the
// boundary (status queries, schedulers).
func (e *Engine) Decisions() *DecisionEvaluator { return e.decisions }

// Tracker exposes the partial-fill tracker's read surface.
func (e *Engine) Tracker() *PartialFillTracker { return e.tracker }

// PlaceOrder validates the intent in the encrypted domain and, on
// success, stores the order with every parameter behind a handle. A
// rejected order leaves no partial state.
func (e *Engine) PlaceOrder(ctx context.Context, p PlaceOrderParams) (string, error) {
	now := e.clock.Now().Unix()

	trigger := e.rt.EncryptUint64(p.TriggerPrice)
	size := e.rt.EncryptUint64(p.Size)
	expiration := e.rt.EncryptUint64(uint64(p.Expiration))
	minFill := e.rt.EncryptUint64(p.MinFillSize)

	valid := e.validator.Validate(trigger, size, expiration, minFill, uint64(now))
	if !e.decisions.Evaluate(ctx, valid, false) {
		metrics.OrdersRejected.Inc()
		return "", ErrValidation
	}

	o := &Order{
		ID:                 uuid.NewString(),
		Owner:              p.Owner,
		TriggerPrice:       trigger,
		Size:               size,
		Direction:          e.rt.EncryptBool(p.Buy),
		FilledAmount:       e.rt.EncryptUint64(0),
		Expiration:         expiration,
		MinFillSize:        minFill,
		IsActive:           e.rt.EncryptBool(true),
		PartialFillAllowed: e.rt.EncryptBool(p.PartialFillAllowed),
		OrderType:          p.OrderType,
		CreatedAt:          now,
		Open:               true,
	}

	if err := e.acl.GrantOrderCreationPermissions(o); err != nil {
		return "", fmt.Errorf("creation grants: %w", err)
	}
	if err := e.store.SaveOrder(o); err != nil {
		return "", fmt.Errorf("save order: %w", err)
	}
	if _, err := e.tracker.InitState(o.ID); err != nil {
		return "", err
	}

	renewalPeriod := int64(0)
	if p.AutoRenew {
		renewalPeriod = p.RenewalPeriod
	}
	autoRenew := e.rt.EncryptBool(p.AutoRenew)
	if err := e.rt.Grant(autoRenew.Handle, p.Owner); err != nil {
		return "", fmt.Errorf("auto-renew grant: %w", err)
	}
	if err := e.expiry.SetOrderExpiration(o.ID, p.Expiration, now, autoRenew, renewalPeriod); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.open[o.ID] = o
	e.mu.Unlock()

	metrics.OrdersPlaced.Inc()
	metrics.OpenOrders.Inc()
	e.log.Info("order placed",
		zap.String("order_id", o.ID), zap.String("owner", p.Owner.Hex()))
	return o.ID, nil
}

// Cancel marks an order inactive. Only the owner may cancel; cancellation
// is monotonic and idempotent, so cancelling an already-inactive order is
// a no-op on fills, averages and history.
func (e *Engine) Cancel(ctx context.Context, orderID string, caller common.Address) error {
	return e.cancel(ctx, orderID, &caller, "owner")
}

// ForceCancel is the emergency override: it skips the owner check. The
// API layer restricts who can reach it.
func (e *Engine) ForceCancel(ctx context.Context, orderID string) error {
	return e.cancel(ctx, orderID, nil, "override")
}

func (e *Engine) cancel(ctx context.Context, orderID string, caller *common.Address, initiator string) error {
	o, ok, err := e.store.GetOrder(orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if caller != nil && o.Owner != *caller {
		return ErrNotOwner
	}
	if !o.Open {
		return nil
	}

	e.deactivate(o)
	if err := e.store.SaveOrder(o); err != nil {
		return fmt.Errorf("save cancelled order: %w", err)
	}
	if err := e.expiry.Remove(orderID); err != nil {
		e.log.Warn("expiration cleanup after cancel failed",
			zap.String("order_id", orderID), zap.Error(err))
	}

	metrics.OrdersCancelled.WithLabelValues(initiator).Inc()
	e.log.Info("order cancelled",
		zap.String("order_id", orderID), zap.String("initiator", initiator))
	return nil
}

// deactivate flips the encrypted active flag to false and drops the order
// from the open index. true -> false only; reactivation requires a new
// order.
func (e *Engine) deactivate(o *Order) {
	inactive := e.rt.EncryptBool(false)
	o.IsActive = e.rt.And(o.IsActive, inactive)
	o.Open = false

	e.mu.Lock()
	if _, ok := e.open[o.ID]; ok {
		delete(e.open, o.ID)
		metrics.OpenOrders.Dec()
	}
	e.mu.Unlock()
}

// OnTick is the single per-tick integration point. The venue supplies the
// current price and available liquidity as encrypted values; the engine
// sweeps due expiration buckets, ranks open orders, evaluates triggers,
// sizes and applies fills, and reports revealed results. A fault
// evaluating one order never aborts the rest.
func (e *Engine) OnTick(ctx context.Context, currentPrice, liquidity fhe.EncUint64, isPreSettlementPass bool) []TickResult {
	started := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(started).Seconds()) }()

	now := e.clock.Now().Unix()
	e.sweepExpirations(ctx, now)

	e.mu.Lock()
	open := make([]*Order, 0, len(e.open))
	for _, o := range e.open {
		open = append(open, o)
	}
	e.mu.Unlock()

	ranked := e.scorer.Rank(ctx, e.decisions, open)

	var results []TickResult
	remainingLiquidity := liquidity
	for _, o := range ranked {
		res, consumed, err := e.processOrder(ctx, o, currentPrice, remainingLiquidity, now, isPreSettlementPass)
		if err != nil {
			e.log.Error("tick evaluation failed for order",
				zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if res == nil {
			continue
		}
		results = append(results, *res)
		// Later orders see the venue depth net of what this fill consumed.
		remainingLiquidity = e.rt.Sub(remainingLiquidity, consumed)
	}
	return results
}

// processOrder evaluates a single order against the tick. It returns nil
// when the order does not fire or fires with a zero fill.
func (e *Engine) processOrder(ctx context.Context, o *Order, price, liquidity fhe.EncUint64, now int64, preSettlement bool) (*TickResult, fhe.EncUint64, error) {
	should := e.triggers.ShouldExecute(o.TriggerPrice, price, o.Direction, o.IsActive, o.Expiration, uint64(now))
	if err := e.acl.GrantPriceComparisonPermissions(o.Owner, should); err != nil {
		return nil, fhe.EncUint64{}, err
	}
	if !e.decisions.Evaluate(ctx, should, false) {
		return nil, fhe.EncUint64{}, nil
	}

	fill := e.fills.CalculateOptimalFill(o.Size, o.FilledAmount, o.MinFillSize, liquidity, o.PartialFillAllowed)
	if preSettlement {
		fill = e.fills.ApplySlippageProtection(fill, price, o.TriggerPrice, e.cfg.MaxSlippageBps)
	}

	amount := e.decisions.RevealAmount(ctx, fill, 0)
	if amount == 0 {
		return nil, fhe.EncUint64{}, nil
	}

	fullyFilled, err := e.tracker.ExecutePartialFill(o, fill, price, now)
	if err != nil {
		return nil, fhe.EncUint64{}, err
	}

	remaining := e.rt.Sub(o.Size, o.FilledAmount)
	if err := e.acl.GrantPartialFillPermissions(e.cfg.Settlement, fill, price, remaining); err != nil {
		return nil, fhe.EncUint64{}, err
	}
	if err := e.acl.GrantOrderExecutionPermissions(e.cfg.Settlement, fill, price); err != nil {
		return nil, fhe.EncUint64{}, err
	}

	stillActive := true
	if e.decisions.Evaluate(ctx, fullyFilled, false) {
		e.deactivate(o)
		if err := e.store.SaveOrder(o); err != nil {
			return nil, fhe.EncUint64{}, fmt.Errorf("save completed order: %w", err)
		}
		if err := e.expiry.Remove(o.ID); err != nil {
			e.log.Warn("expiration cleanup after completion failed",
				zap.String("order_id", o.ID), zap.Error(err))
		}
		stillActive = false
	}

	metrics.FillsExecuted.Inc()
	execPrice := e.decisions.RevealAmount(ctx, price, 0)
	e.log.Info("fill executed",
		zap.String("order_id", o.ID),
		zap.Uint64("amount", amount),
		zap.Bool("still_active", stillActive))

	return &TickResult{
		OrderID:        o.ID,
		FillAmount:     amount,
		ExecutionPrice: execPrice,
		StillActive:    stillActive,
	}, fill, nil
}

// sweepExpirations processes every due hour bucket, deactivating expired
// orders and resetting their fill state.
func (e *Engine) sweepExpirations(ctx context.Context, now int64) {
	started := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(started).Seconds()) }()

	for _, hour := range e.expiry.DueBuckets(now / 3600) {
		expired, renewed := e.expiry.ProcessExpirationHour(ctx, hour, now)
		metrics.OrdersRenewed.Add(float64(len(renewed)))
		for _, id := range renewed {
			if err := e.refreshExpirationHandle(id); err != nil {
				e.log.Error("renewed order handle refresh failed",
					zap.String("order_id", id), zap.Error(err))
			}
		}
		for _, id := range expired {
			o, ok, err := e.store.GetOrder(id)
			if err != nil || !ok {
				e.log.Warn("expired order not loadable", zap.String("order_id", id), zap.Error(err))
				continue
			}
			if !o.Open {
				continue
			}
			e.deactivate(o)
			if err := e.store.SaveOrder(o); err != nil {
				e.log.Error("save expired order failed", zap.String("order_id", id), zap.Error(err))
				continue
			}
			if err := e.tracker.Reset(id); err != nil {
				e.log.Warn("fill state cleanup after expiry failed",
					zap.String("order_id", id), zap.Error(err))
			}
			metrics.OrdersExpired.Inc()
			e.log.Info("order expired", zap.String("order_id", id))
		}
	}
}

// refreshExpirationHandle re-encrypts a renewed order's expiration so the
// trigger check sees the extended deadline. The live open-index object is
// mutated so in-flight ticks and the store stay consistent.
func (e *Engine) refreshExpirationHandle(orderID string) error {
	newExp, ok := e.expiry.Expiration(orderID)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	o, ok := e.open[orderID]
	e.mu.Unlock()
	if !ok {
		loaded, found, err := e.store.GetOrder(orderID)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		o = loaded
	}

	o.Expiration = e.rt.EncryptUint64(uint64(newExp))
	if err := e.rt.Grant(o.Expiration.Handle, o.Owner); err != nil {
		return fmt.Errorf("expiration grant: %w", err)
	}
	return e.store.SaveOrder(o)
}

// GetOrder returns the stored order (handles, not plaintext).
func (e *Engine) GetOrder(orderID string) (*Order, error) {
	o, ok, err := e.store.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// GetFillHistory returns the order's append-only fill records.
func (e *Engine) GetFillHistory(orderID string) ([]*Fill, error) {
	if _, ok, err := e.store.GetOrder(orderID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}
	return e.tracker.FillHistory(orderID)
}

// GetRemainingAmount returns the encrypted unfilled quantity, granted to
// the order's owner.
func (e *Engine) GetRemainingAmount(orderID string) (fhe.EncUint64, error) {
	o, ok, err := e.store.GetOrder(orderID)
	if err != nil {
		return fhe.EncUint64{}, err
	}
	if !ok {
		return fhe.EncUint64{}, ErrNotFound
	}
	remaining := e.rt.Sub(o.Size, o.FilledAmount)
	if err := e.rt.Grant(remaining.Handle, o.Owner); err != nil {
		return fhe.EncUint64{}, fmt.Errorf("remaining grant: %w", err)
	}
	return remaining, nil
}

// IsActive reveals whether an order is still live.
func (e *Engine) IsActive(ctx context.Context, orderID string) (bool, error) {
	o, ok, err := e.store.GetOrder(orderID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return e.decisions.IsActive(ctx, o), nil
}

// GetExpiration returns the plaintext expiration time tracked by the
// expiration manager.
func (e *Engine) GetExpiration(orderID string) (int64, error) {
	exp, ok := e.expiry.Expiration(orderID)
	if !ok {
		return 0, ErrNotFound
	}
	return exp, nil
}

// Cleanup deletes an inactive order and its fill state. Explicit delete:
// the store's lifecycle is create-on-first-write, mutate-on-fill/cancel,
// explicit-delete-on-cleanup.
func (e *Engine) Cleanup(orderID string) error {
	o, ok, err := e.store.GetOrder(orderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if o.Open {
		return fmt.Errorf("engine: cleanup of open order %s refused", orderID)
	}
	if err := e.tracker.Reset(orderID); err != nil {
		return err
	}
	if err := e.expiry.Remove(orderID); err != nil {
		return err
	}
	return e.store.DeleteOrder(orderID)
}
