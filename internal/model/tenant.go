package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenant is the isolation boundary. ID doubles as the session-scoping value,
// so it is restricted to [A-Za-z0-9_-].
type Tenant struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	Name      string `gorm:"not null"`
	Slug      string `gorm:"uniqueIndex;not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
}

// Warehouse belongs to a tenant and optionally backs a branch.
type Warehouse struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID  string     `gorm:"type:varchar(64);not null;index"`
	BranchID  *uuid.UUID `gorm:"type:uuid;index"`
	Name      string     `gorm:"not null"`
	Active    bool       `gorm:"not null;default:true"`
	CreatedAt time.Time
}

// ShopSettings are the per-tenant delivery rules read at placement time.
// A nil threshold or minimum means the rule is disabled.
type ShopSettings struct {
	TenantID              string           `gorm:"type:varchar(64);primaryKey"`
	DeliveryFee           decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	FreeDeliveryThreshold *decimal.Decimal `gorm:"type:decimal(12,2)"`
	MinimumOrderAmount    *decimal.Decimal `gorm:"type:decimal(12,2)"`
	UpdatedAt             time.Time
}
