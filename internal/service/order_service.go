package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailcore/internal/dto"
	"retailcore/internal/metrics"
	"retailcore/internal/model"
	"retailcore/internal/repository"
	"retailcore/internal/tenant"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderService is the order lifecycle engine: placement, the status state
// machine and the read side used by customers and shop staff.
type OrderService interface {
	PlaceOrder(ctx context.Context, tenantID string, in dto.PlaceOrderInput) (*dto.PlaceOrderResult, error)
	UpdateOrderStatus(ctx context.Context, tenantID string, orderID uuid.UUID, status, actor, actorType string, note *string) (*dto.OrderResponse, error)
	CancelByCustomer(ctx context.Context, tenantID string, orderID uuid.UUID, customerID string, reason *string) (*dto.OrderResponse, error)
	GetCustomerOrders(ctx context.Context, tenantID, customerID, cursor string, limit int) (*dto.OrderPage, error)
	// GetOrderDetail returns nil, nil when the order does not exist.
	GetOrderDetail(ctx context.Context, tenantID string, orderID uuid.UUID) (*dto.OrderResponse, error)
	ListShopOrders(ctx context.Context, tenantID, status, cursor string, limit int) (*dto.OrderPage, error)
}

type orderService struct {
	tx        TxRunner
	orders    repository.OrderRepository
	inventory repository.InventoryRepository
	catalog   repository.CatalogRepository
	notifier  EventNotifier
	now       func() time.Time
}

func NewOrderService(
	tx TxRunner,
	orders repository.OrderRepository,
	inventory repository.InventoryRepository,
	catalog repository.CatalogRepository,
	notifier EventNotifier,
) OrderService {
	return &orderService{
		tx:        tx,
		orders:    orders,
		inventory: inventory,
		catalog:   catalog,
		notifier:  notifier,
		now:       time.Now,
	}
}

var hundred = decimal.NewFromInt(100)

// MaxIdempotencyKeyLen matches the width of orders.idempotency_key.
const MaxIdempotencyKeyLen = 128

type placementLine struct {
	productID uuid.UUID
	quantity  int
}

// ── PlaceOrder ────────────────────────────────────────────────────────────────
//   1. idempotency lookup (own short tx) → duplicate, no side effects
//   2. BEGIN: resolve warehouse, price every line, lock + check tracked stock
//   3. delivery fee / free threshold / minimum order
//   4. insert order + items, reserve stock, reserve movements, history
//   5. COMMIT, then enqueue order.created (best effort)

func (s *orderService) PlaceOrder(ctx context.Context, tenantID string, in dto.PlaceOrderInput) (*dto.PlaceOrderResult, error) {
	lines, branchID, err := validatePlacement(in)
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
		return nil, err
	}
	ctx = tenant.WithScope(ctx, tenant.Scope{TenantID: tenantID, ActorID: in.CustomerID, ActorType: tenant.ActorCustomer})

	if in.IdempotencyKey != nil {
		existing, err := s.findByIdempotencyKey(ctx, tenantID, *in.IdempotencyKey)
		if err != nil {
			metrics.OrdersPlaced.WithLabelValues("error").Inc()
			return nil, err
		}
		if existing != nil {
			metrics.OrdersPlaced.WithLabelValues("duplicate").Inc()
			return &dto.PlaceOrderResult{Order: orderToResponse(existing), Duplicate: true}, nil
		}
	}

	var order model.Order
	txErr := runTx(ctx, s.tx, func(tx *gorm.DB) error {
		order = model.Order{}
		return s.placeTx(ctx, tx, tenantID, in, lines, branchID, &order)
	})

	if txErr != nil && in.IdempotencyKey != nil {
		// A concurrent submission with the same key may have committed
		// first. Its reservation can also make this attempt fail a stock or
		// minimum check before the unique index is ever reached.
		_, business := AsBusinessError(txErr)
		collided := errors.Is(txErr, repository.ErrDuplicateIdempotencyKey)
		if business || collided {
			existing, err := s.findByIdempotencyKey(ctx, tenantID, *in.IdempotencyKey)
			if err != nil {
				metrics.OrdersPlaced.WithLabelValues("error").Inc()
				return nil, err
			}
			if existing != nil {
				metrics.OrdersPlaced.WithLabelValues("duplicate").Inc()
				return &dto.PlaceOrderResult{Order: orderToResponse(existing), Duplicate: true}, nil
			}
			if collided {
				metrics.OrdersPlaced.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("idempotency key collision without a visible order: %w", txErr)
			}
		}
	}
	if txErr != nil {
		if _, ok := AsBusinessError(txErr); ok {
			metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
		} else {
			metrics.OrdersPlaced.WithLabelValues("error").Inc()
		}
		return nil, txErr
	}

	metrics.OrdersPlaced.WithLabelValues("created").Inc()
	log.Info().
		Str("tenant_id", tenantID).
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("grand_total", order.GrandTotal.StringFixed(2)).
		Msg("order placed")

	s.notify(ctx, dto.OrderEvent{
		Type:        dto.EventOrderCreated,
		TenantID:    tenantID,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		GrandTotal:  order.GrandTotal,
		OccurredAt:  order.CreatedAt,
	})

	return &dto.PlaceOrderResult{Order: orderToResponse(&order)}, nil
}

func (s *orderService) placeTx(
	ctx context.Context,
	tx *gorm.DB,
	tenantID string,
	in dto.PlaceOrderInput,
	lines []placementLine,
	branchID *uuid.UUID,
	order *model.Order,
) error {
	warehouse, err := s.catalog.FindWarehouse(ctx, tx, tenantID, branchID)
	if err != nil {
		return err
	}

	type tracked struct {
		inv *model.Inventory
		qty int
	}
	var reservations []tracked
	// Several lines may hit the same inventory row; the lock is held once
	// and the pending quantity accumulates.
	pending := make(map[uuid.UUID]int)

	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	items := make([]model.OrderItem, 0, len(lines))

	for _, line := range lines {
		product, err := s.catalog.FindProduct(ctx, tx, tenantID, line.productID)
		if err != nil {
			return err
		}
		if product == nil || !product.Active {
			return fmt.Errorf("%w: %s", ErrProductUnavailable, line.productID)
		}

		qty := decimal.NewFromInt(int64(line.quantity))
		unit := product.ChannelPrice()
		lineSubtotal := unit.Mul(qty)
		lineTax := unit.Mul(qty).Mul(product.TaxRate).Div(hundred)

		item := model.OrderItem{
			TenantID:       tenantID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			SKU:            product.SKU,
			Quantity:       line.quantity,
			UnitPrice:      unit,
			TaxAmount:      lineTax.Round(2),
			DiscountAmount: decimal.Zero,
			Subtotal:       lineSubtotal.Round(2),
		}

		if warehouse != nil {
			inv, err := s.inventory.LockForUpdate(ctx, tx, tenantID, product.ID, warehouse.ID)
			if err != nil {
				return err
			}
			if inv != nil {
				available := inv.Available() - pending[inv.ID]
				if available < line.quantity {
					return &InsufficientStockError{
						ProductID:   product.ID.String(),
						ProductName: product.Name,
						Available:   available,
						Requested:   line.quantity,
					}
				}
				pending[inv.ID] += line.quantity
				reservations = append(reservations, tracked{inv: inv, qty: line.quantity})
				whID := warehouse.ID
				item.ReservedWarehouseID = &whID
			}
		}

		subtotal = subtotal.Add(lineSubtotal)
		taxTotal = taxTotal.Add(lineTax)
		items = append(items, item)
	}

	settings, err := s.catalog.Settings(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	subtotal = subtotal.Round(2)
	taxTotal = taxTotal.Round(2)
	fee := deliveryFee(settings, subtotal)
	if settings.MinimumOrderAmount != nil && subtotal.LessThan(*settings.MinimumOrderAmount) {
		return &MinimumOrderError{Minimum: *settings.MinimumOrderAmount, Subtotal: subtotal}
	}

	number, err := s.orders.NextOrderNumber(ctx, tx)
	if err != nil {
		return err
	}

	*order = model.Order{
		TenantID:        tenantID,
		OrderNumber:     number,
		CustomerID:      in.CustomerID,
		BranchID:        branchID,
		Status:          model.StatusPending,
		Subtotal:        subtotal,
		TaxTotal:        taxTotal,
		DeliveryFee:     fee,
		GrandTotal:      subtotal.Add(taxTotal).Add(fee).Round(2),
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   model.PaymentUnpaid,
		DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
		DeliveryLat:     in.DeliveryLat,
		DeliveryLng:     in.DeliveryLng,
		DeliveryNotes:   in.DeliveryNotes,
		IdempotencyKey:  in.IdempotencyKey,
		Items:           items,
	}
	if warehouse != nil {
		whID := warehouse.ID
		order.WarehouseID = &whID
	}
	if err := s.orders.Create(ctx, tx, order); err != nil {
		return err
	}

	actor := in.CustomerID
	for _, r := range reservations {
		if err := s.inventory.Reserve(ctx, tx, r.inv.ID, r.qty); err != nil {
			return err
		}
		if err := s.inventory.CreateMovement(ctx, tx, &model.InventoryMovement{
			TenantID:    tenantID,
			ProductID:   r.inv.ProductID,
			WarehouseID: r.inv.WarehouseID,
			Type:        model.MovementReserve,
			Quantity:    -r.qty,
			ReferenceID: &order.ID,
			Reason:      "reserved for order " + order.OrderNumber,
			CreatedBy:   &actor,
		}); err != nil {
			return err
		}
	}

	history := &model.OrderStatusHistory{
		TenantID:      tenantID,
		OrderID:       order.ID,
		ToStatus:      model.StatusPending,
		ChangedBy:     in.CustomerID,
		ChangedByType: tenant.ActorCustomer,
	}
	if err := s.orders.CreateHistory(ctx, tx, history); err != nil {
		return err
	}
	order.History = []model.OrderStatusHistory{*history}
	return nil
}

// deliveryFee applies the flat fee unless the subtotal reaches the free
// delivery threshold.
func deliveryFee(settings *model.ShopSettings, subtotal decimal.Decimal) decimal.Decimal {
	if settings.FreeDeliveryThreshold != nil && subtotal.GreaterThanOrEqual(*settings.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return settings.DeliveryFee.Round(2)
}

func (s *orderService) findByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.Order, error) {
	var found *model.Order
	err := runTx(ctx, s.tx, func(tx *gorm.DB) error {
		o, err := s.orders.FindByIdempotencyKey(ctx, tx, tenantID, key)
		found = o
		return err
	})
	return found, err
}

// validatePlacement checks what the HTTP binding may not have: callers of
// the service are not required to come through a handler.
func validatePlacement(in dto.PlaceOrderInput) ([]placementLine, *uuid.UUID, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, nil, &ValidationError{Field: "customer_id", Message: "is required"}
	}
	if len(in.Items) == 0 {
		return nil, nil, &ValidationError{Field: "items", Message: "at least one line is required"}
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return nil, nil, &ValidationError{Field: "delivery_address", Message: "is required"}
	}
	if in.PaymentMethod == "" {
		return nil, nil, &ValidationError{Field: "payment_method", Message: "is required"}
	}
	if in.IdempotencyKey != nil {
		key := *in.IdempotencyKey
		if strings.TrimSpace(key) == "" {
			return nil, nil, &ValidationError{Field: "idempotency_key", Message: "must not be blank"}
		}
		if len(key) > MaxIdempotencyKeyLen {
			return nil, nil, &ValidationError{Field: "idempotency_key", Message: fmt.Sprintf("must be at most %d characters", MaxIdempotencyKeyLen)}
		}
	}

	lines := make([]placementLine, 0, len(in.Items))
	for i, it := range in.Items {
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			return nil, nil, &ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Message: "must be a uuid"}
		}
		if it.Quantity <= 0 {
			return nil, nil, &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be positive"}
		}
		lines = append(lines, placementLine{productID: pid, quantity: it.Quantity})
	}

	var branchID *uuid.UUID
	if in.BranchID != nil && *in.BranchID != "" {
		id, err := uuid.Parse(*in.BranchID)
		if err != nil {
			return nil, nil, &ValidationError{Field: "branch_id", Message: "must be a uuid"}
		}
		branchID = &id
	}
	return lines, branchID, nil
}

func (s *orderService) notify(ctx context.Context, ev dto.OrderEvent) {
	if s.notifier == nil {
		return
	}
	// The request ctx may be cancelled right after the response is written.
	if err := s.notifier.EnqueueOrderEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).
			Str("tenant_id", ev.TenantID).
			Str("order_id", ev.OrderID).
			Str("event", ev.Type).
			Msg("order event not enqueued")
	}
}

// ── mapping ───────────────────────────────────────────────────────────────────

func orderToResponse(o *model.Order) *dto.OrderResponse {
	resp := &dto.OrderResponse{
		ID:                 o.ID.String(),
		OrderNumber:        o.OrderNumber,
		CustomerID:         o.CustomerID,
		Status:             string(o.Status),
		Subtotal:           o.Subtotal,
		TaxTotal:           o.TaxTotal,
		DeliveryFee:        o.DeliveryFee,
		GrandTotal:         o.GrandTotal,
		PaymentMethod:      o.PaymentMethod,
		PaymentStatus:      o.PaymentStatus,
		DeliveryAddress:    o.DeliveryAddress,
		DeliveryLat:        o.DeliveryLat,
		DeliveryLng:        o.DeliveryLng,
		DeliveryNotes:      o.DeliveryNotes,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		Items:              make([]dto.OrderItemResponse, 0, len(o.Items)),
	}
	if o.WarehouseID != nil {
		wh := o.WarehouseID.String()
		resp.WarehouseID = &wh
	}
	for _, it := range o.Items {
		ir := dto.OrderItemResponse{
			ID:             it.ID.String(),
			ProductID:      it.ProductID.String(),
			ProductName:    it.ProductName,
			SKU:            it.SKU,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			TaxAmount:      it.TaxAmount,
			DiscountAmount: it.DiscountAmount,
			Subtotal:       it.Subtotal,
		}
		if it.ReservedWarehouseID != nil {
			wh := it.ReservedWarehouseID.String()
			ir.ReservedWarehouseID = &wh
		}
		resp.Items = append(resp.Items, ir)
	}
	for _, h := range o.History {
		hr := dto.StatusHistoryResponse{
			ToStatus:      string(h.ToStatus),
			ChangedBy:     h.ChangedBy,
			ChangedByType: h.ChangedByType,
			Note:          h.Note,
			CreatedAt:     h.CreatedAt,
		}
		if h.FromStatus != nil {
			from := string(*h.FromStatus)
			hr.FromStatus = &from
		}
		resp.History = append(resp.History, hr)
	}
	return resp
}
