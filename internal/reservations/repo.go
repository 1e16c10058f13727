package reservations

import (
	"context"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists order reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.StockReservation) error
	Save(ctx context.Context, reservation *models.StockReservation) error
	CountForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListActiveForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error)
	ListActiveForOrderForUpdate(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error)
	FindActiveForUpdate(ctx context.Context, orderID, productID, warehouseID uuid.UUID) (*models.StockReservation, error)
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

func (r *repository) Create(ctx context.Context, reservation *models.StockReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) Save(ctx context.Context, reservation *models.StockReservation) error {
	return r.db.WithContext(ctx).Save(reservation).Error
}

func (r *repository) CountForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

func (r *repository) ListActiveForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationActive).
		Find(&rows).Error
	return rows, err
}

// ListActiveForOrderForUpdate locks the active reservations of an order.
// Callers lock the affected balances first.
func (r *repository) ListActiveForOrderForUpdate(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationActive).
		Order("warehouse_id ASC").Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// FindActiveForUpdate returns nil without error when no active reservation
// exists for the order line.
func (r *repository) FindActiveForUpdate(ctx context.Context, orderID, productID, warehouseID uuid.UUID) (*models.StockReservation, error) {
	var rows []models.StockReservation
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("order_id = ? AND product_id = ? AND warehouse_id = ? AND status = ?", orderID, productID, warehouseID, enums.ReservationActive).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
