package repository

import (
	"context"
	"errors"

	"retailcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRepository covers the stock counters and the movement ledger.
// Counter updates must only be issued after LockForUpdate on the same row
// within the same tx.
type InventoryRepository interface {
	// LockForUpdate returns nil, nil when the product is untracked in the
	// warehouse.
	LockForUpdate(ctx context.Context, tx *gorm.DB, tenantID string, productID, warehouseID uuid.UUID) (*model.Inventory, error)
	// Reserve adds qty to quantity_reserved.
	Reserve(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error
	// Consume removes qty from both on-hand and reserved (a reserved sale).
	Consume(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error
	// Release removes qty from reserved, floored at zero.
	Release(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error
	// Adjust adds delta to on-hand.
	Adjust(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, delta int) error
	// CreateInventory starts tracking a product in a warehouse. It is a no-op
	// when the row already exists; callers lock the row again afterwards.
	CreateInventory(ctx context.Context, tx *gorm.DB, inv *model.Inventory) error
	CreateMovement(ctx context.Context, tx *gorm.DB, m *model.InventoryMovement) error
	ListMovements(ctx context.Context, tx *gorm.DB, filter MovementFilter) ([]model.InventoryMovement, error)
}

// MovementFilter narrows a movement listing; zero fields are ignored.
type MovementFilter struct {
	TenantID    string
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
	ReferenceID *uuid.UUID
	Limit       int
}

type inventoryRepo struct{}

func NewInventoryRepository() InventoryRepository { return &inventoryRepo{} }

func (r *inventoryRepo) LockForUpdate(ctx context.Context, tx *gorm.DB, tenantID string, productID, warehouseID uuid.UUID) (*model.Inventory, error) {
	var inv model.Inventory
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND product_id = ? AND warehouse_id = ?", tenantID, productID, warehouseID).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *inventoryRepo) Reserve(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error {
	return tx.WithContext(ctx).Model(&model.Inventory{}).
		Where("id = ?", inventoryID).
		Updates(map[string]interface{}{
			"quantity_reserved": gorm.Expr("quantity_reserved + ?", qty),
			"updated_at":        gorm.Expr("now()"),
		}).Error
}

func (r *inventoryRepo) Consume(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error {
	return tx.WithContext(ctx).Model(&model.Inventory{}).
		Where("id = ?", inventoryID).
		Updates(map[string]interface{}{
			"quantity_on_hand":  gorm.Expr("quantity_on_hand - ?", qty),
			"quantity_reserved": gorm.Expr("quantity_reserved - ?", qty),
			"updated_at":        gorm.Expr("now()"),
		}).Error
}

func (r *inventoryRepo) Release(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error {
	return tx.WithContext(ctx).Model(&model.Inventory{}).
		Where("id = ?", inventoryID).
		Updates(map[string]interface{}{
			"quantity_reserved": gorm.Expr("GREATEST(quantity_reserved - ?, 0)", qty),
			"updated_at":        gorm.Expr("now()"),
		}).Error
}

func (r *inventoryRepo) Adjust(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, delta int) error {
	return tx.WithContext(ctx).Model(&model.Inventory{}).
		Where("id = ?", inventoryID).
		Updates(map[string]interface{}{
			"quantity_on_hand": gorm.Expr("quantity_on_hand + ?", delta),
			"updated_at":       gorm.Expr("now()"),
		}).Error
}

func (r *inventoryRepo) CreateInventory(ctx context.Context, tx *gorm.DB, inv *model.Inventory) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}, {Name: "warehouse_id"}},
			DoNothing: true,
		}).
		Create(inv).Error
}

func (r *inventoryRepo) CreateMovement(ctx context.Context, tx *gorm.DB, m *model.InventoryMovement) error {
	return tx.WithContext(ctx).Create(m).Error
}

func (r *inventoryRepo) ListMovements(ctx context.Context, tx *gorm.DB, filter MovementFilter) ([]model.InventoryMovement, error) {
	q := tx.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		q = q.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.ReferenceID != nil {
		q = q.Where("reference_id = ?", *filter.ReferenceID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []model.InventoryMovement
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
