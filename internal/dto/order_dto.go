package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"   validate:"required,min=1,max=1000"`
}

// PlaceOrderInput is the mobile checkout payload. CustomerID comes from the
// verified token, never from the body.
type PlaceOrderInput struct {
	CustomerID      string             `json:"-"`
	BranchID        *string            `json:"branch_id"        validate:"omitempty,uuid"`
	Items           []OrderLineRequest `json:"items"            validate:"required,min=1,max=100,dive"`
	DeliveryAddress string             `json:"delivery_address" validate:"required,max=500"`
	DeliveryLat     *float64           `json:"delivery_lat"     validate:"omitempty,latitude"`
	DeliveryLng     *float64           `json:"delivery_lng"     validate:"omitempty,longitude"`
	DeliveryNotes   *string            `json:"delivery_notes"   validate:"omitempty,max=500"`
	PaymentMethod   string             `json:"payment_method"   validate:"required,oneof=cash card transfer wallet"`
	IdempotencyKey  *string            `json:"idempotency_key"  validate:"omitempty,min=8,max=128"`
}

type UpdateOrderStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note"   validate:"omitempty,max=500"`
}

type CancelOrderRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// OrderListQuery is bound from the query string of the order list endpoints.
type OrderListQuery struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"  validate:"min=0,max=100"`
	Status string `form:"status"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type OrderItemResponse struct {
	ID                  string          `json:"id"`
	ProductID           string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	SKU                 string          `json:"sku"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	ReservedWarehouseID *string         `json:"reserved_warehouse_id,omitempty"`
}

type StatusHistoryResponse struct {
	FromStatus    *string   `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	ChangedBy     string    `json:"changed_by"`
	ChangedByType string    `json:"changed_by_type"`
	Note          *string   `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type OrderResponse struct {
	ID                 string                  `json:"id"`
	OrderNumber        string                  `json:"order_number"`
	CustomerID         string                  `json:"customer_id"`
	WarehouseID        *string                 `json:"warehouse_id,omitempty"`
	Status             string                  `json:"status"`
	Subtotal           decimal.Decimal         `json:"subtotal"`
	TaxTotal           decimal.Decimal         `json:"tax_total"`
	DeliveryFee        decimal.Decimal         `json:"delivery_fee"`
	GrandTotal         decimal.Decimal         `json:"grand_total"`
	PaymentMethod      string                  `json:"payment_method"`
	PaymentStatus      string                  `json:"payment_status"`
	DeliveryAddress    string                  `json:"delivery_address"`
	DeliveryLat        *float64                `json:"delivery_lat,omitempty"`
	DeliveryLng        *float64                `json:"delivery_lng,omitempty"`
	DeliveryNotes      *string                 `json:"delivery_notes,omitempty"`
	DeliveredAt        *time.Time              `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time              `json:"cancelled_at,omitempty"`
	CancellationReason *string                 `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	Items              []OrderItemResponse     `json:"items"`
	History            []StatusHistoryResponse `json:"history,omitempty"`
}

// PlaceOrderResult reports whether the order was created by this call or
// already existed under the same idempotency key.
type PlaceOrderResult struct {
	Order     *OrderResponse `json:"order"`
	Duplicate bool           `json:"duplicate"`
}

type OrderPage struct {
	Items      []OrderResponse `json:"items"`
	NextCursor *string         `json:"next_cursor"`
	HasMore    bool            `json:"has_more"`
}

// ─── Events ──────────────────────────────────────────────────────────────────

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderPOSSync       = "order.pos_sync"
)

// OrderEvent is fanned out to staff sessions (Redis pub/sub) and Kafka.
type OrderEvent struct {
	Type        string          `json:"type"`
	TenantID    string          `json:"tenant_id"`
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	FromStatus  *string         `json:"from_status,omitempty"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
