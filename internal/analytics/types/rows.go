package types

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// StockLevelPartitionField day-partitions the history table.
const StockLevelPartitionField = "changed_at"

// StockLevelRow is one point in the stock-level history table. Quantities and
// cost are NUMERIC columns.
type StockLevelRow struct {
	EventID           string              `bigquery:"event_id"`
	BalanceID         string              `bigquery:"balance_id"`
	ProductID         string              `bigquery:"product_id"`
	WarehouseID       string              `bigquery:"warehouse_id"`
	QuantityOnHand    *big.Rat            `bigquery:"quantity_on_hand"`
	QuantityAvailable *big.Rat            `bigquery:"quantity_available"`
	QuantityReserved  *big.Rat            `bigquery:"quantity_reserved"`
	UnitCost          *big.Rat            `bigquery:"unit_cost"`
	StockValue        *big.Rat            `bigquery:"stock_value"`
	Status            string              `bigquery:"status"`
	Version           int64               `bigquery:"version"`
	ActorID           bigquery.NullString `bigquery:"actor_id"`
	OccurredAt        time.Time           `bigquery:"occurred_at"`
	ChangedAt         time.Time           `bigquery:"changed_at"`
	IngestedAt        time.Time           `bigquery:"ingested_at"`
	Payload           bigquery.NullJSON   `bigquery:"payload"`
}

// StockLevelSchema is the table schema inferred from StockLevelRow.
func StockLevelSchema() (bigquery.Schema, error) {
	return bigquery.InferSchema(StockLevelRow{})
}
