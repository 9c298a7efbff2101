package repository

import (
	"context"
	"errors"

	"retailcore/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogRepository reads the tenant catalog consulted at placement:
// products, warehouses and shop settings.
type CatalogRepository interface {
	// FindProduct returns nil, nil when the product does not exist for the tenant.
	FindProduct(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Product, error)
	// FindWarehouse resolves the fulfilment warehouse: the active warehouse
	// of branchID when given, otherwise any active warehouse of the tenant.
	// Returns nil, nil when the tenant has none.
	FindWarehouse(ctx context.Context, tx *gorm.DB, tenantID string, branchID *uuid.UUID) (*model.Warehouse, error)
	// FindWarehouseByID returns nil, nil when the warehouse is not the tenant's.
	FindWarehouseByID(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Warehouse, error)
	// Settings returns the tenant's delivery rules, or zero-fee defaults
	// when none are stored.
	Settings(ctx context.Context, tx *gorm.DB, tenantID string) (*model.ShopSettings, error)
}

type catalogRepo struct{}

func NewCatalogRepository() CatalogRepository { return &catalogRepo{} }

func (r *catalogRepo) FindProduct(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	err := tx.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *catalogRepo) FindWarehouse(ctx context.Context, tx *gorm.DB, tenantID string, branchID *uuid.UUID) (*model.Warehouse, error) {
	if branchID != nil {
		w, err := r.firstWarehouse(tx.WithContext(ctx).
			Where("tenant_id = ? AND branch_id = ? AND active = true", tenantID, *branchID))
		if w != nil || err != nil {
			return w, err
		}
	}
	return r.firstWarehouse(tx.WithContext(ctx).Where("tenant_id = ? AND active = true", tenantID))
}

func (r *catalogRepo) FindWarehouseByID(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Warehouse, error) {
	return r.firstWarehouse(tx.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id))
}

func (r *catalogRepo) firstWarehouse(q *gorm.DB) (*model.Warehouse, error) {
	var w model.Warehouse
	err := q.Order("created_at ASC").First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *catalogRepo) Settings(ctx context.Context, tx *gorm.DB, tenantID string) (*model.ShopSettings, error) {
	var s model.ShopSettings
	err := tx.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ShopSettings{TenantID: tenantID, DeliveryFee: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
