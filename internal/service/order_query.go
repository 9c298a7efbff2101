package service

import (
	"context"

	"retailcore/internal/dto"
	"retailcore/internal/model"
	"retailcore/internal/tenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *orderService) GetCustomerOrders(ctx context.Context, tenantID, customerID, cursor string, limit int) (*dto.OrderPage, error) {
	if customerID == "" {
		return nil, &ValidationError{Field: "customer_id", Message: "is required"}
	}
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	ctx = tenant.WithTenant(ctx, tenantID)
	var rows []model.Order
	err = runTx(ctx, s.tx, func(tx *gorm.DB) error {
		var err error
		rows, err = s.orders.ListByCustomer(ctx, tx, tenantID, customerID, after, limit+1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buildPage(rows, limit), nil
}

// ListShopOrders is the staff polling view; it stays authoritative when
// real-time notifications are missed.
func (s *orderService) ListShopOrders(ctx context.Context, tenantID, status, cursor string, limit int) (*dto.OrderPage, error) {
	var filter *model.OrderStatus
	if status != "" {
		st, err := model.ParseOrderStatus(status)
		if err != nil {
			return nil, &ValidationError{Field: "status", Message: err.Error()}
		}
		filter = &st
	}
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	ctx = tenant.WithTenant(ctx, tenantID)
	var rows []model.Order
	err = runTx(ctx, s.tx, func(tx *gorm.DB) error {
		var err error
		rows, err = s.orders.ListByTenant(ctx, tx, tenantID, filter, after, limit+1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buildPage(rows, limit), nil
}

func (s *orderService) GetOrderDetail(ctx context.Context, tenantID string, orderID uuid.UUID) (*dto.OrderResponse, error) {
	ctx = tenant.WithTenant(ctx, tenantID)
	var o *model.Order
	err := runTx(ctx, s.tx, func(tx *gorm.DB) error {
		var err error
		o, err = s.orders.FindDetail(ctx, tx, tenantID, orderID)
		return err
	})
	if err != nil || o == nil {
		return nil, err
	}
	return orderToResponse(o), nil
}

// buildPage trims the look-ahead row fetched to detect a further page.
func buildPage(rows []model.Order, limit int) *dto.OrderPage {
	page := &dto.OrderPage{Items: make([]dto.OrderResponse, 0, limit)}
	if len(rows) > limit {
		rows = rows[:limit]
		page.HasMore = true
	}
	for i := range rows {
		page.Items = append(page.Items, *orderToResponse(&rows[i]))
	}
	if page.HasMore {
		last := rows[len(rows)-1]
		next := encodeCursor(last.CreatedAt, last.ID)
		page.NextCursor = &next
	}
	return page
}
