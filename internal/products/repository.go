package product

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

// Filter narrows catalog reads. Empty fields are ignored.
type Filter struct {
	Search   string
	Category string
	Service  *bool
}

// Apply adds the filter's predicates to a products query.
func (f Filter) Apply(query *gorm.DB) *gorm.DB {
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		like := "%" + term + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(COALESCE(sku, '')) LIKE ?)", like, like)
	}
	if category := strings.TrimSpace(f.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if f.Service != nil {
		query = query.Where("service = ?", *f.Service)
	}
	return query
}

// Repository wires together product persistence helpers.
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

// FindByID loads the product without taking a lock.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// LockForUpdate loads the product with SELECT ... FOR UPDATE. It must run inside a transaction.
func (r *Repository) LockForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads every product in ids that exists, keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// UpdateStock overwrites the stored stock value.
func (r *Repository) UpdateStock(ctx context.Context, id uuid.UUID, stock decimal.Decimal) error {
	return r.updateColumn(ctx, id, "stock", stock)
}

// UpdateCost overwrites the stored unit cost.
func (r *Repository) UpdateCost(ctx context.Context, id uuid.UUID, cost decimal.Decimal) error {
	return r.updateColumn(ctx, id, "cost", cost)
}

func (r *Repository) updateColumn(ctx context.Context, id uuid.UUID, column string, value decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       value,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns products newest first. A zero limit loads every match.
func (r *Repository) List(ctx context.Context, filter Filter, cursor *pagination.Cursor, limit int) ([]models.Product, error) {
	query := filter.Apply(r.db.WithContext(ctx).Model(&models.Product{}))
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.Product
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
