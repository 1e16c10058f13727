package movements

import (
	"context"
	"time"

	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository appends and reads movement records. Records are immutable, so
// there is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.StockMovement) error
	List(ctx context.Context, query listQuery) ([]models.StockMovement, error)
	ListForKey(ctx context.Context, key balances.Key) ([]models.StockMovement, error)
}

type listQuery struct {
	productID     *uuid.UUID
	warehouseID   *uuid.UUID
	documentID    *uuid.UUID
	movementType  *enums.MovementType
	referenceType *enums.ReferenceType
	referenceID   string
	from          *time.Time
	to            *time.Time
	window        pagination.Window
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) List(ctx context.Context, opts listQuery) ([]models.StockMovement, error) {
	query := r.db.WithContext(ctx).Model(&models.StockMovement{})
	if opts.productID != nil {
		query = query.Where("product_id = ?", *opts.productID)
	}
	if opts.warehouseID != nil {
		query = query.Where("warehouse_id = ?", *opts.warehouseID)
	}
	if opts.documentID != nil {
		query = query.Where("document_id = ?", *opts.documentID)
	}
	if opts.movementType != nil {
		query = query.Where("movement_type = ?", *opts.movementType)
	}
	if opts.referenceType != nil {
		query = query.Where("reference_type = ?", *opts.referenceType)
	}
	if opts.referenceID != "" {
		query = query.Where("reference_id = ?", opts.referenceID)
	}
	if opts.from != nil {
		query = query.Where("created_at >= ?", *opts.from)
	}
	if opts.to != nil {
		query = query.Where("created_at < ?", *opts.to)
	}
	var rows []models.StockMovement
	if err := query.Scopes(opts.window.Scope).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListForKey returns every movement of one balance in version order.
func (r *repository) ListForKey(ctx context.Context, key balances.Key) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).
		Order("balance_version ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
