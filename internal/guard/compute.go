package guard

import (
	"fmt"
	"math"

	"github.com/tak458/trading-sim-sub000/internal/economy"
)

// Compute runs fn under the guard's protection. A panic or a
// non-finite result is logged against the settlement and replaced by
// the fallback, so tick code never has to check for NaN mid-formula.
func Compute[T any](g *Guard, context, settlementID string, fn func() T, fallback T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			g.record(ErrorRecord{
				SettlementID: settlementID,
				Kind:         KindCalculation,
				Message:      fmt.Sprintf("panic in %s: %v", context, r),
				Recovery:     "used fallback value",
			})
			out = fallback
		}
	}()

	out = fn()

	switch v := any(out).(type) {
	case float64:
		if !finite(v) {
			g.recordNonFinite(context, settlementID, v)
			out = fallback
		}
	case economy.Amounts:
		for _, f := range []float64{v.Food, v.Wood, v.Ore} {
			if !finite(f) {
				g.recordNonFinite(context, settlementID, f)
				out = fallback
				break
			}
		}
	}
	return out
}

// The offending value rides in the message text; the numeric record
// fields stay finite so the log survives JSON encoding.
func (g *Guard) recordNonFinite(context, settlementID string, v float64) {
	g.record(ErrorRecord{
		SettlementID: settlementID,
		Kind:         KindCalculation,
		Message:      fmt.Sprintf("%s produced a non-finite result (%g)", context, v),
		Recovery:     "used fallback value",
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
