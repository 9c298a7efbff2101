package model

import (
	"time"

	"github.com/google/uuid"
)

// Inventory is the per-product, per-warehouse stock counter. It is only
// mutated while holding a row lock on it.
type Inventory struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID         string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_inventory_tenant_product_wh"`
	ProductID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_tenant_product_wh"`
	WarehouseID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_tenant_product_wh"`
	QuantityOnHand   int       `gorm:"not null;default:0"`
	QuantityReserved int       `gorm:"not null;default:0"`
	UpdatedAt        time.Time
}

func (Inventory) TableName() string { return "inventory" }

// Available is the stock that can still be promised to a new order.
func (i *Inventory) Available() int {
	return i.QuantityOnHand - i.QuantityReserved
}

// MovementType classifies an inventory movement.
type MovementType string

const (
	MovementReserve        MovementType = "reserve"
	MovementReleaseReserve MovementType = "release_reserve"
	MovementMobileSale     MovementType = "mobile_sale"
	MovementAdjustment     MovementType = "adjustment"
)

// InventoryMovement is an append-only audit record of one quantity change.
// Rows are never updated or deleted.
type InventoryMovement struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    string       `gorm:"type:varchar(64);not null;index"`
	ProductID   uuid.UUID    `gorm:"type:uuid;not null;index"`
	WarehouseID uuid.UUID    `gorm:"type:uuid;not null"`
	Type        MovementType `gorm:"type:varchar(30);not null"`
	Quantity    int          `gorm:"not null"` // positive = in, negative = out
	ReferenceID *uuid.UUID   `gorm:"type:uuid;index"` // order id when applicable
	Reason      string
	CreatedBy   *string
	CreatedAt   time.Time
}
