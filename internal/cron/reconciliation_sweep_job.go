package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type balanceLister interface {
	List(ctx context.Context, params balances.ListParams) (*balances.ListResult, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*movements.Reconciliation, error)
}

type ReconciliationSweepJobParams struct {
	Logger     *logger.Logger
	Balances   balanceLister
	Reconciler reconciler
	PageSize   int
}

// NewReconciliationSweepJob replays the movement history of every balance and
// reports the ones whose book quantity or movement chain disagrees.
func NewReconciliationSweepJob(params ReconciliationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance lister required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconciliationSweepJob{
		logg:       params.Logger,
		balances:   params.Balances,
		reconciler: params.Reconciler,
		pageSize:   pkgpagination.NormalizeLimit(params.PageSize),
	}, nil
}

type reconciliationSweepJob struct {
	logg       *logger.Logger
	balances   balanceLister
	reconciler reconciler
	pageSize   int
}

func (j *reconciliationSweepJob) Name() string { return "reconciliation-sweep" }

func (j *reconciliationSweepJob) Run(ctx context.Context) error {
	var checked, inconsistent int
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := j.balances.List(ctx, balances.ListParams{
			Params: pkgpagination.Params{Limit: j.pageSize, Cursor: cursor},
		})
		if err != nil {
			return fmt.Errorf("list balances: %w", err)
		}
		for _, balance := range page.Items {
			result, err := j.reconciler.Reconcile(ctx, balance.ProductID, balance.WarehouseID)
			if err != nil {
				return fmt.Errorf("reconcile %s/%s: %w", balance.ProductID, balance.WarehouseID, err)
			}
			checked++
			if result.Consistent {
				continue
			}
			inconsistent++
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"product_id":       balance.ProductID.String(),
				"warehouse_id":     balance.WarehouseID.String(),
				"book_on_hand":     result.BookOnHand.String(),
				"replayed_on_hand": result.ReplayedOnHand.String(),
				"chain_breaks":     len(result.Breaks),
			})
			j.logg.Warn(logCtx, "stock balance disagrees with movement history")
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"balances_checked":      checked,
		"balances_inconsistent": inconsistent,
	})
	j.logg.Info(logCtx, "reconciliation sweep complete")
	if inconsistent > 0 {
		return fmt.Errorf("%d of %d balances failed reconciliation", inconsistent, checked)
	}
	return nil
}
