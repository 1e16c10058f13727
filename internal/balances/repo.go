package balances

import (
	"context"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists stock balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByKey(ctx context.Context, key Key) (*models.StockBalance, error)
	FindByKeyForUpdate(ctx context.Context, key Key) (*models.StockBalance, error)
	InsertIfAbsent(ctx context.Context, balance *models.StockBalance) error
	Save(ctx context.Context, balance *models.StockBalance) error
	List(ctx context.Context, query listQuery) ([]models.StockBalance, error)
}

type listQuery struct {
	warehouseID *uuid.UUID
	productID   *uuid.UUID
	status      *enums.BalanceStatus
	window      pagination.Window
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a balance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByKey(ctx context.Context, key Key) (*models.StockBalance, error) {
	var balance models.StockBalance
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).
		First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) FindByKeyForUpdate(ctx context.Context, key Key) (*models.StockBalance, error) {
	var balance models.StockBalance
	if err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).
		First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

// InsertIfAbsent creates the row unless another writer already did.
func (r *repository) InsertIfAbsent(ctx context.Context, balance *models.StockBalance) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "warehouse_id"}},
			DoNothing: true,
		}).
		Create(balance).Error
}

func (r *repository) Save(ctx context.Context, balance *models.StockBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}

func (r *repository) List(ctx context.Context, opts listQuery) ([]models.StockBalance, error) {
	query := r.db.WithContext(ctx).Model(&models.StockBalance{})
	if opts.warehouseID != nil {
		query = query.Where("warehouse_id = ?", *opts.warehouseID)
	}
	if opts.productID != nil {
		query = query.Where("product_id = ?", *opts.productID)
	}
	if opts.status != nil {
		query = query.Where("status = ?", *opts.status)
	}
	var rows []models.StockBalance
	if err := query.Scopes(opts.window.Scope).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
