package account

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CyclesForPercent maps a bulk percent-of-balance choice onto a cycle cap:
// 100% and 75% run once, 50% twice, anything else three times.
func CyclesForPercent(pct int) int {
	switch pct {
	case 100, 75:
		return 1
	case 50:
		return 2
	default:
		return 3
	}
}

// PlanBulkPercent switches every account to side with pct% of its balance,
// orders them by the balance that side spends (largest first) and caps the
// cycles by CyclesForPercent.
func PlanBulkPercent(accts []Account, side Side, pct int) map[int64]Patch {
	amount := decimal.NewFromInt(int64(pct)).String()
	return planBulk(accts, side, amount, UnitPercent, CyclesForPercent(pct))
}

// PlanBulkAmount switches every account to side with a fixed amount and no
// cycle cap.
func PlanBulkAmount(accts []Account, side Side, amount decimal.Decimal) map[int64]Patch {
	return planBulk(accts, side, amount.String(), UnitValue, 0)
}

func planBulk(accts []Account, side Side, amount string, unit Unit, cycles int) map[int64]Patch {
	sorted := append([]Account(nil), accts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return spendBalance(sorted[i], side).GreaterThan(spendBalance(sorted[j], side))
	})

	out := make(map[int64]Patch, len(sorted))
	for i, a := range sorted {
		out[a.ID] = Patch{
			Type:      ptr(side),
			AmountIn:  ptr(amount),
			Unit:      ptr(unit),
			IsActive:  ptr(true),
			SortOrder: ptr(i),
			Cycle:     ptr(cycles),
		}
	}
	return out
}

// PlanReset puts every account back to pending with no cycles used.
func PlanReset(accts []Account) map[int64]Patch {
	out := make(map[int64]Patch, len(accts))
	for _, a := range accts {
		out[a.ID] = Patch{Status: ptr(Pending), CurrentCycle: ptr(0)}
	}
	return out
}

// PlanRestart zeroes currentCycle for active accounts before a run starts.
// Starting a run is a manual reset, so accounts parked at the
// cycle=1,currentCycle=1 sentinel become eligible again.
func PlanRestart(accts []Account) map[int64]Patch {
	out := make(map[int64]Patch)
	for _, a := range accts {
		if a.IsActive {
			out[a.ID] = Patch{CurrentCycle: ptr(0)}
		}
	}
	return out
}

func spendBalance(a Account, side Side) decimal.Decimal {
	raw := a.BNBBalance
	if side == Sell {
		raw = a.TokenBalance
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SortForSchedule orders accounts by SortOrder, then ID.
func SortForSchedule(accts []Account) {
	sort.SliceStable(accts, func(i, j int) bool {
		if accts[i].SortOrder != accts[j].SortOrder {
			return accts[i].SortOrder < accts[j].SortOrder
		}
		return accts[i].ID < accts[j].ID
	})
}
