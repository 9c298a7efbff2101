package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. MobilePrice overrides Price for the mobile
// ordering channel when set.
type Product struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    string           `gorm:"type:varchar(64);not null;index"`
	SKU         string           `gorm:"column:sku;not null"`
	Name        string           `gorm:"not null"`
	Price       decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	MobilePrice *decimal.Decimal `gorm:"type:decimal(12,2)"`
	TaxRate     decimal.Decimal  `gorm:"type:decimal(5,2);not null;default:0"` // percent
	Active      bool             `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChannelPrice returns the price charged on the mobile channel.
func (p *Product) ChannelPrice() decimal.Decimal {
	if p.MobilePrice != nil {
		return *p.MobilePrice
	}
	return p.Price
}
