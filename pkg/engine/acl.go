package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

// AccessControlManager issues decrypt-rights on produced ciphertexts.
// Grants are part of producing a handle, not an afterthought: every
// checklist below runs immediately after the handles it covers are
// created, so no produced handle is ever left ungranted.
type AccessControlManager struct {
	rt     fhe.Runtime
	engine common.Address
	log    *zap.Logger
}

func NewAccessControlManager(rt fhe.Runtime, engine common.Address, log *zap.Logger) *AccessControlManager {
	return &AccessControlManager{rt: rt, engine: engine, log: log}
}

func (a *AccessControlManager) grantAll(grantee common.Address, handles ...fhe.Handle) error {
	for _, h := range handles {
		if h == (fhe.Handle{}) {
			continue
		}
		if err := a.rt.Grant(h, grantee); err != nil {
			return fmt.Errorf("grant %s to %s: %w", h.Hex(), grantee.Hex(), err)
		}
	}
	return nil
}

// GrantOrderCreationPermissions gives the owner access to its own
// parameters and the engine standing access to everything it stores.
func (a *AccessControlManager) GrantOrderCreationPermissions(o *Order) error {
	handles := []fhe.Handle{
		o.TriggerPrice.Handle,
		o.Size.Handle,
		o.Direction.Handle,
		o.FilledAmount.Handle,
		o.Expiration.Handle,
		o.MinFillSize.Handle,
		o.IsActive.Handle,
		o.PartialFillAllowed.Handle,
	}
	if err := a.grantAll(o.Owner, handles...); err != nil {
		return err
	}
	if err := a.grantAll(a.engine, handles...); err != nil {
		return err
	}
	a.log.Debug("order creation grants issued",
		zap.String("order_id", o.ID), zap.String("owner", o.Owner.Hex()))
	return nil
}

// GrantOrderExecutionPermissions scopes the settlement counterpart to the
// fill amount and execution price only, never the full order.
func (a *AccessControlManager) GrantOrderExecutionPermissions(counterparty common.Address, fillAmount, executionPrice fhe.EncUint64) error {
	return a.grantAll(counterparty, fillAmount.Handle, executionPrice.Handle)
}

// GrantPartialFillPermissions additionally exposes the remaining amount so
// the counterpart can size follow-up liquidity, still never the full
// order.
func (a *AccessControlManager) GrantPartialFillPermissions(counterparty common.Address, fillAmount, executionPrice, remaining fhe.EncUint64) error {
	return a.grantAll(counterparty, fillAmount.Handle, executionPrice.Handle, remaining.Handle)
}

// GrantPriceComparisonPermissions gives the owner the comparison outcome
// only, not the inputs it was computed from.
func (a *AccessControlManager) GrantPriceComparisonPermissions(owner common.Address, outcome fhe.EncBool) error {
	return a.grantAll(owner, outcome.Handle)
}
