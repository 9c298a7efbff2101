package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPacked         OrderStatus = "packed"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// Payment statuses.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

// Order is one customer purchase placed through the mobile channel.
// Orders are never deleted: delivered and cancelled are terminal states.
type Order struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID           string          `gorm:"type:varchar(64);not null;index:idx_orders_customer_page,priority:1"`
	OrderNumber        string          `gorm:"type:varchar(32);not null"`
	CustomerID         string          `gorm:"type:varchar(64);not null;index:idx_orders_customer_page,priority:2"`
	BranchID           *uuid.UUID      `gorm:"type:uuid"`
	WarehouseID        *uuid.UUID      `gorm:"type:uuid"`
	Status             OrderStatus     `gorm:"type:varchar(20);not null;default:'pending'"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxTotal           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DeliveryFee        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	GrandTotal         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaymentMethod      string          `gorm:"type:varchar(20);not null"`
	PaymentStatus      string          `gorm:"type:varchar(20);not null;default:'unpaid'"`
	DeliveryAddress    string          `gorm:"not null"`
	DeliveryLat        *float64
	DeliveryLng        *float64
	DeliveryNotes      *string
	IdempotencyKey     *string `gorm:"type:varchar(128)"`
	POSSynced          bool    `gorm:"column:pos_synced;not null;default:false"`
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	CancelledBy        *string
	CancellationReason *string
	CreatedAt          time.Time `gorm:"index:idx_orders_customer_page,priority:3"`
	UpdatedAt          time.Time

	Items   []OrderItem          `gorm:"foreignKey:OrderID"`
	History []OrderStatusHistory `gorm:"foreignKey:OrderID"`
}

// OrderItem is a line snapshot taken at placement; later catalog changes
// never touch it. ReservedWarehouseID is set only for lines that reserved
// tracked stock.
type OrderItem struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID            string          `gorm:"type:varchar(64);not null"`
	OrderID             uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID           uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName         string          `gorm:"not null"`
	SKU                 string          `gorm:"column:sku;not null"`
	Quantity            int             `gorm:"not null"`
	UnitPrice           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxAmount           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Subtotal            decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ReservedWarehouseID *uuid.UUID      `gorm:"type:uuid"`
}

// OrderStatusHistory is the append-only audit trail of transitions.
// FromStatus is nil for the initial entry.
type OrderStatusHistory struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID      string       `gorm:"type:varchar(64);not null"`
	OrderID       uuid.UUID    `gorm:"type:uuid;not null;index"`
	FromStatus    *OrderStatus `gorm:"type:varchar(20)"`
	ToStatus      OrderStatus  `gorm:"type:varchar(20);not null"`
	ChangedBy     string       `gorm:"not null"`
	ChangedByType string       `gorm:"type:varchar(20);not null"`
	Note          *string
	CreatedAt     time.Time
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }
