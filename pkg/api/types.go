package api

import "github.com/darkpool-labs/ciphermatch/pkg/engine"

// Request/response types for REST endpoints and WebSocket messages.
// Encrypted fields surface only as handle hexes; plaintext order
// parameters appear exclusively in inbound submissions, where they are
// encrypted at the boundary and never stored.

type PlaceOrderRequest struct {
	Owner              string `json:"owner"` // 0x address
	TriggerPrice       uint64 `json:"triggerPrice"`
	Size               uint64 `json:"size"`
	Side               string `json:"side"` // "buy" or "sell"
	Expiration         int64  `json:"expiration"` // unix seconds
	MinFillSize        uint64 `json:"minFillSize"`
	PartialFillAllowed bool   `json:"partialFillAllowed"`
	AutoRenew          bool   `json:"autoRenew"`
	RenewalPeriodSec   int64  `json:"renewalPeriodSec"`
	OrderType          uint8  `json:"orderType"`
}

type PlaceOrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
}

// CancelOrderRequest authorizes a cancel with a 65-byte ECDSA signature
// over the cancel digest of the order id; the owner is recovered from it.
type CancelOrderRequest struct {
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"` // 0x-prefixed hex
}

type TickRequest struct {
	Price         uint64 `json:"price"`
	Liquidity     uint64 `json:"liquidity"`
	PreSettlement bool   `json:"preSettlement"`
}

type TickResponse struct {
	Results   []engine.TickResult `json:"results"`
	Timestamp int64               `json:"timestamp"` // unix milliseconds
}

// OrderInfo is the queryable view of an order: plaintext metadata plus
// the ciphertext handles of the confidential parameters.
type OrderInfo struct {
	ID                 string `json:"id"`
	Owner              string `json:"owner"`
	CreatedAt          int64  `json:"createdAt"`
	Open               bool   `json:"open"`
	OrderType          uint8  `json:"orderType"`
	Expiration         int64  `json:"expiration,omitempty"`
	TriggerPriceHandle string `json:"triggerPriceHandle"`
	SizeHandle         string `json:"sizeHandle"`
	FilledAmountHandle string `json:"filledAmountHandle"`
}

type FillInfo struct {
	Seq             int    `json:"seq"`
	AmountHandle    string `json:"amountHandle"`
	PriceHandle     string `json:"priceHandle"`
	TimestampHandle string `json:"timestampHandle"`
}

type RemainingResponse struct {
	OrderID         string `json:"orderId"`
	RemainingHandle string `json:"remainingHandle"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest manages channel subscriptions on a socket.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// FillFeedUpdate is broadcast on the "fills" channel after every tick
// that produced results.
type FillFeedUpdate struct {
	Type      string              `json:"type"`
	Results   []engine.TickResult `json:"results"`
	Timestamp int64               `json:"timestamp"`
}
