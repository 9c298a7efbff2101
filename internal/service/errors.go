package service

import (
	"errors"
	"fmt"
	"strings"

	"retailcore/internal/model"

	"github.com/shopspring/decimal"
)

// BusinessError is implemented by every validation and business-rule
// failure. These are expected outcomes: they map to 4xx responses and are
// never logged as system failures.
type BusinessError interface {
	error
	Code() string
}

// AsBusinessError finds a BusinessError in err's chain.
func AsBusinessError(err error) (BusinessError, bool) {
	var be BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

var (
	ErrOrderNotFound          = &codedError{"order_not_found", "order not found"}
	ErrNotOrderOwner          = &codedError{"not_order_owner", "order belongs to another customer"}
	ErrCancellationNotAllowed = &codedError{"cancellation_not_allowed", "only pending orders can be cancelled by the customer"}
	ErrInvalidCursor          = &codedError{"invalid_cursor", "malformed pagination cursor"}
	ErrProductUnavailable     = &codedError{"product_unavailable", "product not available"}
	ErrWarehouseNotFound      = &codedError{"warehouse_not_found", "warehouse not found"}
)

// ValidationError rejects input before any transaction opens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Code() string { return "validation_error" }

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Code() string { return "insufficient_stock" }

type MinimumOrderError struct {
	Minimum  decimal.Decimal
	Subtotal decimal.Decimal
}

func (e *MinimumOrderError) Error() string {
	return fmt.Sprintf("order subtotal %s is below the minimum order amount %s",
		e.Subtotal.StringFixed(2), e.Minimum.StringFixed(2))
}

func (e *MinimumOrderError) Code() string { return "minimum_order_not_met" }

type InvalidTransitionError struct {
	From    model.OrderStatus
	To      model.OrderStatus
	Allowed []model.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	list := strings.Join(allowed, ", ")
	if list == "" {
		list = "none, status is terminal"
	}
	return fmt.Sprintf("cannot move order from %s to %s (allowed: %s)", e.From, e.To, list)
}

func (e *InvalidTransitionError) Code() string { return "invalid_transition" }
