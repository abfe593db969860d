package engine

import (
	"context"
	"sort"

	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
)

// MaxPlacementTime is the horizon for the time component of the priority
// score (2100-01-01 UTC). Earlier placement yields a strictly larger
// score; price, size and order type only break ties between orders placed
// in the same second.
const MaxPlacementTime = 4102444800

// PriorityScorer ranks orders for execution within a tick. The score is
// fixed-point integer arithmetic under encryption:
//
//	100*(MAX_TIME - placementTime) + triggerPrice/1000 + size/10000 + orderType*100
type PriorityScorer struct {
	rt fhe.Runtime
}

func NewPriorityScorer(rt fhe.Runtime) *PriorityScorer {
	return &PriorityScorer{rt: rt}
}

// Score computes the encrypted priority score for one order. Placement
// time and order type are plaintext order metadata; their contribution is
// folded into a single encrypted base term before the secret components
// are added.
func (p *PriorityScorer) Score(placementTime int64, trigger, size fhe.EncUint64, orderType uint8) fhe.EncUint64 {
	base := uint64(0)
	if placementTime < MaxPlacementTime {
		base = 100 * uint64(MaxPlacementTime-placementTime)
	}
	base += 100 * uint64(orderType)

	score := p.rt.Add(p.rt.EncryptUint64(base), p.rt.Div(trigger, p.rt.EncryptUint64(1000)))
	return p.rt.Add(score, p.rt.Div(size, p.rt.EncryptUint64(10000)))
}

// Rank orders a slice by descending priority. Scores cross the decision
// boundary here: scheduling needs a plaintext ordering, so the evaluator
// reveals each score (zero on indeterminate, pushing unreadable orders to
// the back). Equal scores fall back to order id for a stable ranking.
func (p *PriorityScorer) Rank(ctx context.Context, de *DecisionEvaluator, orders []*Order) []*Order {
	type scored struct {
		order *Order
		score uint64
	}
	ranked := make([]scored, len(orders))
	for i, o := range orders {
		s := p.Score(o.CreatedAt, o.TriggerPrice, o.Size, o.OrderType)
		ranked[i] = scored{order: o, score: de.RevealAmount(ctx, s, 0)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order.ID < ranked[j].order.ID
	})
	out := make([]*Order, len(ranked))
	for i, s := range ranked {
		out[i] = s.order
	}
	return out
}
