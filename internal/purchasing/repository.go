package purchasing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

// ListFilter narrows document listing. Limit should already include the look-ahead row.
type ListFilter struct {
	Status     *enums.PurchasingStatus
	SupplierID *uuid.UUID
	Cursor     *pagination.Cursor
	Limit      int
}

// Repository persists purchasing documents and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the document together with its lines.
func (r *Repository) Create(ctx context.Context, doc *models.Purchasing) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindByID loads the document with its lines in position order.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchasing, error) {
	var doc models.Purchasing
	err := r.db.WithContext(ctx).
		Preload("Lines", orderLines).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindForUpdate loads the document and holds its row lock until the transaction ends.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Purchasing, error) {
	var doc models.Purchasing
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	var lines []models.PurchasingLine
	if err := r.db.WithContext(ctx).Where("purchasing_id = ?", id).Order("position ASC").Find(&lines).Error; err != nil {
		return nil, err
	}
	doc.Lines = lines
	return &doc, nil
}

// CompareAndSwap applies updates only while the document is still in expected
// status, bumping version. It reports false when another writer got there first.
func (r *Repository) CompareAndSwap(ctx context.Context, id uuid.UUID, expected enums.PurchasingStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")
	values["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Purchasing{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Purchasing, error) {
	query := r.db.WithContext(ctx).Model(&models.Purchasing{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.Cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Purchasing
	err := query.Preload("Lines", orderLines).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func orderLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
