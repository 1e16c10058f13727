package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Repository persists document headers and lines. Lines are always loaded
// by document id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, doc *models.Document) error
	Save(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Document, error)
	FindByExternalRef(ctx context.Context, kind enums.DocumentKind, ref string) (*models.Document, error)
	HasOpenPosting(ctx context.Context, sourceID uuid.UUID) (bool, error)
	List(ctx context.Context, query listQuery) ([]models.Document, error)

	FindLines(ctx context.Context, documentID uuid.UUID) ([]models.DocumentLine, error)
	ReplaceLines(ctx context.Context, documentID uuid.UUID, lines []models.DocumentLine) error
	SaveLines(ctx context.Context, lines []models.DocumentLine) error
}

type listQuery struct {
	kind        *enums.DocumentKind
	status      *enums.DocumentStatus
	warehouseID *uuid.UUID
	window      pagination.Window
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

func (r *repository) Create(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *repository) Save(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByExternalRef returns (nil, nil) when no document carries ref.
func (r *repository) FindByExternalRef(ctx context.Context, kind enums.DocumentKind, ref string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).Where("kind = ? AND external_ref = ?", kind, ref).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// HasOpenPosting reports whether a posting that is not cancelled already
// derives from sourceID.
func (r *repository) HasOpenPosting(ctx context.Context, sourceID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Document{}).
		Where("kind = ? AND source_document_id = ? AND status <> ?", enums.DocumentPosting, sourceID, enums.DocumentStatusCancelled).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) List(ctx context.Context, opts listQuery) ([]models.Document, error) {
	query := r.db.WithContext(ctx).Model(&models.Document{})
	if opts.kind != nil {
		query = query.Where("kind = ?", *opts.kind)
	}
	if opts.status != nil {
		query = query.Where("status = ?", *opts.status)
	}
	if opts.warehouseID != nil {
		query = query.Where("warehouse_id = ? OR destination_warehouse_id = ?", *opts.warehouseID, *opts.warehouseID)
	}
	var rows []models.Document
	if err := query.Scopes(opts.window.Scope).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindLines(ctx context.Context, documentID uuid.UUID) ([]models.DocumentLine, error) {
	var lines []models.DocumentLine
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("line_no ASC").
		Find(&lines).Error
	return lines, err
}

// ReplaceLines swaps the full line set of a document.
func (r *repository) ReplaceLines(ctx context.Context, documentID uuid.UUID, lines []models.DocumentLine) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("document_id = ?", documentID).Delete(&models.DocumentLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].DocumentID = documentID
	}
	return conn.Create(&lines).Error
}

func (r *repository) SaveLines(ctx context.Context, lines []models.DocumentLine) error {
	conn := r.db.WithContext(ctx)
	for i := range lines {
		if err := conn.Save(&lines[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
