package dto

import "time"

type AdjustStockRequest struct {
	ProductID   string `json:"product_id"   validate:"required,uuid"`
	WarehouseID string `json:"warehouse_id" validate:"required,uuid"`
	Delta       int    `json:"delta"        validate:"required,ne=0"`
	Reason      string `json:"reason"       validate:"required,min=3,max=200"`
}

// MovementQuery is bound from the query string of GET /v1/inventory/movements.
type MovementQuery struct {
	ProductID   string `form:"product_id"   validate:"omitempty,uuid"`
	WarehouseID string `form:"warehouse_id" validate:"omitempty,uuid"`
	OrderID     string `form:"order_id"     validate:"omitempty,uuid"`
	Limit       int    `form:"limit"        validate:"min=0,max=500"`
}

type InventoryResponse struct {
	ProductID        string `json:"product_id"`
	WarehouseID      string `json:"warehouse_id"`
	QuantityOnHand   int    `json:"quantity_on_hand"`
	QuantityReserved int    `json:"quantity_reserved"`
	Available        int    `json:"available"`
}

type MovementResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	WarehouseID string    `json:"warehouse_id"`
	Type        string    `json:"type"`
	Quantity    int       `json:"quantity"`
	ReferenceID *string   `json:"reference_id,omitempty"`
	Reason      string    `json:"reason"`
	CreatedBy   *string   `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
