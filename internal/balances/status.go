package balances

import (
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// ComputeStatus classifies available stock against the reorder point.
func ComputeStatus(available, reorderPoint decimal.Decimal) enums.BalanceStatus {
	switch {
	case available.LessThanOrEqual(decimal.Zero):
		return enums.BalanceOutOfStock
	case available.LessThanOrEqual(reorderPoint):
		return enums.BalanceLowStock
	default:
		return enums.BalanceInStock
	}
}

// Recalculate refreshes the derived available quantity and status.
func Recalculate(b *models.StockBalance) {
	b.QuantityAvailable = b.QuantityOnHand.Sub(b.QuantityReserved)
	b.Status = ComputeStatus(b.QuantityAvailable, b.ReorderPoint)
}

// WeightedAverageCost blends incoming stock into the current average cost.
// An empty or negative position takes the incoming cost as is.
func WeightedAverageCost(onHand, currentCost, incomingQty, incomingCost decimal.Decimal) decimal.Decimal {
	if onHand.LessThanOrEqual(decimal.Zero) {
		return incomingCost
	}
	total := onHand.Add(incomingQty)
	if total.LessThanOrEqual(decimal.Zero) {
		return currentCost
	}
	value := onHand.Mul(currentCost).Add(incomingQty.Mul(incomingCost))
	return value.DivRound(total, costScale)
}

const costScale = 4
