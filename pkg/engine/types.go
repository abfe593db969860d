package engine

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

var (
	// ErrValidation rejects malformed order parameters at creation. No
	// partial state is left behind.
	ErrValidation = errors.New("engine: order parameters failed validation")

	// ErrNotOwner rejects a cancel from anyone but the order's owner.
	ErrNotOwner = errors.New("engine: caller does not own order")

	// ErrNotFound rejects operations on unknown order ids.
	ErrNotFound = errors.New("engine: order not found")
)

// Order is a confidential trading intent. Every parameter that would let
// an observer reconstruct the strategy (trigger, size, direction, minimum
// fill, policy flags) lives behind an encrypted handle; only the id, the
// owner address, the creation time and the operational Open flag are
// plaintext, and Open changes only on events that are plaintext-visible
// anyway (creation, revealed completion, cancellation, expiry sweep).
type Order struct {
	ID    string         `json:"id"`
	Owner common.Address `json:"owner"`

	TriggerPrice fhe.EncUint64 `json:"triggerPrice"`
	Size         fhe.EncUint64 `json:"size"`
	// Direction is true for buy (execute at or below trigger), false for
	// sell (execute at or above trigger).
	Direction          fhe.EncBool   `json:"direction"`
	FilledAmount       fhe.EncUint64 `json:"filledAmount"`
	Expiration         fhe.EncUint64 `json:"expiration"`
	MinFillSize        fhe.EncUint64 `json:"minFillSize"`
	IsActive           fhe.EncBool   `json:"isActive"`
	PartialFillAllowed fhe.EncBool   `json:"partialFillAllowed"`

	OrderType uint8 `json:"orderType"`
	CreatedAt int64 `json:"createdAt"` // unix seconds
	Open      bool  `json:"open"`
}

// Fill is one execution event against an order. Append-only per order.
type Fill struct {
	OrderID   string        `json:"orderId"`
	Seq       int           `json:"seq"`
	Amount    fhe.EncUint64 `json:"amount"`
	Price     fhe.EncUint64 `json:"price"`
	Timestamp fhe.EncUint64 `json:"timestamp"`
}

// PartialFillState carries the running aggregates for one order's fills.
// AverageFillPrice is volume-weighted: after n fills it equals
// sum(amount_i*price_i) / sum(amount_i).
type PartialFillState struct {
	OrderID          string        `json:"orderId"`
	TotalFilled      fhe.EncUint64 `json:"totalFilled"`
	AverageFillPrice fhe.EncUint64 `json:"averageFillPrice"`
	FillCount        fhe.EncUint64 `json:"fillCount"`
	LastFillTime     fhe.EncUint64 `json:"lastFillTime"`
}

// ExpirationRecord indexes an order into an hour bucket for batch
// sweeping. The bucket key is floor(expirationTime/3600). ExpirationTime
// is plaintext here: bucketed sweeping needs it, and the upstream design
// accepts that expiry timing is observable (the order's encrypted
// Expiration handle remains authoritative for trigger evaluation).
type ExpirationRecord struct {
	OrderID        string      `json:"orderId"`
	ExpirationTime int64       `json:"expirationTime"`
	CreationTime   int64       `json:"creationTime"`
	AutoRenewal    fhe.EncBool `json:"autoRenewal"`
	RenewalPeriod  int64       `json:"renewalPeriod"` // seconds
}

// HourBucket returns the sweep bucket for an expiration timestamp.
func HourBucket(expiration int64) int64 { return expiration / 3600 }

// TickResult reports one order's outcome for a tick to the settlement
// venue. FillAmount and ExecutionPrice cross the decision boundary here:
// the venue must learn both to move value.
type TickResult struct {
	OrderID        string `json:"orderId"`
	FillAmount     uint64 `json:"fillAmount"`
	ExecutionPrice uint64 `json:"executionPrice"`
	StillActive    bool   `json:"stillActive"`
}

// PlaceOrderParams are the plaintext intent parameters as submitted by the
// owner. They are encrypted at the engine boundary and never stored.
type PlaceOrderParams struct {
	Owner              common.Address
	TriggerPrice       uint64
	Size               uint64
	Buy                bool
	Expiration         int64 // unix seconds
	MinFillSize        uint64
	PartialFillAllowed bool
	AutoRenew          bool
	RenewalPeriod      int64 // seconds, used when AutoRenew is set
	OrderType          uint8
}

// Store is the persistence surface the engine requires. Implementations
// live in pkg/storage; ApplyFill must be atomic so a tick either fully
// applies a fill and its bookkeeping or not at all.
type Store interface {
	SaveOrder(o *Order) error
	GetOrder(id string) (*Order, bool, error)
	DeleteOrder(id string) error
	OpenOrders() ([]*Order, error)

	// ApplyFill persists the mutated order, the updated aggregates, and
	// (when fill is non-nil) the appended fill record in one atomic write.
	ApplyFill(o *Order, st *PartialFillState, fill *Fill) error

	Fills(orderID string) ([]*Fill, error)
	CountFills(orderID string) (int, error)
	DeleteFills(orderID string) error

	SavePartialFill(st *PartialFillState) error
	GetPartialFill(orderID string) (*PartialFillState, bool, error)
	DeletePartialFill(orderID string) error

	SaveExpiration(rec *ExpirationRecord) error
	DeleteExpiration(hour int64, orderID string) error
	ExpirationBucket(hour int64) ([]*ExpirationRecord, error)
	AllExpirations() ([]*ExpirationRecord, error)

	Close() error
}
