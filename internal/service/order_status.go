package service

import (
	"context"
	"fmt"

	"retailcore/internal/dto"
	"retailcore/internal/metrics"
	"retailcore/internal/model"
	"retailcore/internal/tenant"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// transitionRequest is one call into the state machine. guard runs on the
// locked row before the transition is validated.
type transitionRequest struct {
	orderID   uuid.UUID
	to        model.OrderStatus
	actor     string
	actorType string
	note      *string
	guard     func(o *model.Order) error
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, tenantID string, orderID uuid.UUID, status, actor, actorType string, note *string) (*dto.OrderResponse, error) {
	to, err := model.ParseOrderStatus(status)
	if err != nil {
		return nil, &ValidationError{Field: "status", Message: err.Error()}
	}
	if actor == "" {
		return nil, &ValidationError{Field: "actor", Message: "is required"}
	}
	ctx = tenant.WithScope(ctx, tenant.Scope{TenantID: tenantID, ActorID: actor, ActorType: actorType})
	return s.applyTransition(ctx, tenantID, transitionRequest{
		orderID:   orderID,
		to:        to,
		actor:     actor,
		actorType: actorType,
		note:      note,
	})
}

// CancelByCustomer is the customer's restricted entry into the state
// machine: own orders only, and only while pending.
func (s *orderService) CancelByCustomer(ctx context.Context, tenantID string, orderID uuid.UUID, customerID string, reason *string) (*dto.OrderResponse, error) {
	if customerID == "" {
		return nil, &ValidationError{Field: "customer_id", Message: "is required"}
	}
	ctx = tenant.WithScope(ctx, tenant.Scope{TenantID: tenantID, ActorID: customerID, ActorType: tenant.ActorCustomer})
	return s.applyTransition(ctx, tenantID, transitionRequest{
		orderID:   orderID,
		to:        model.StatusCancelled,
		actor:     customerID,
		actorType: tenant.ActorCustomer,
		note:      reason,
		guard: func(o *model.Order) error {
			if o.CustomerID != customerID {
				return ErrNotOrderOwner
			}
			if o.Status != model.StatusPending {
				return ErrCancellationNotAllowed
			}
			return nil
		},
	})
}

func (s *orderService) applyTransition(ctx context.Context, tenantID string, req transitionRequest) (*dto.OrderResponse, error) {
	var (
		order model.Order
		from  model.OrderStatus
	)
	err := runTx(ctx, s.tx, func(tx *gorm.DB) error {
		o, err := s.orders.LockByID(ctx, tx, tenantID, req.orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOrderNotFound
		}
		if req.guard != nil {
			if err := req.guard(o); err != nil {
				return err
			}
		}
		if !o.Status.CanTransitionTo(req.to) {
			return &InvalidTransitionError{From: o.Status, To: req.to, Allowed: o.Status.AllowedTransitions()}
		}

		from = o.Status
		now := s.now()
		fields := map[string]interface{}{"status": string(req.to), "updated_at": now}
		switch req.to {
		case model.StatusDelivered:
			fields["delivered_at"] = now
			fields["payment_status"] = model.PaymentPaid
			o.DeliveredAt = &now
			o.PaymentStatus = model.PaymentPaid
		case model.StatusCancelled:
			actor := req.actor
			fields["cancelled_at"] = now
			fields["cancelled_by"] = actor
			fields["cancellation_reason"] = req.note
			o.CancelledAt = &now
			o.CancelledBy = &actor
			o.CancellationReason = req.note
		}
		if err := s.orders.UpdateFields(ctx, tx, o.ID, fields); err != nil {
			return err
		}
		o.Status = req.to
		o.UpdatedAt = now

		fromStatus := from
		if err := s.orders.CreateHistory(ctx, tx, &model.OrderStatusHistory{
			TenantID:      tenantID,
			OrderID:       o.ID,
			FromStatus:    &fromStatus,
			ToStatus:      req.to,
			ChangedBy:     req.actor,
			ChangedByType: req.actorType,
			Note:          req.note,
		}); err != nil {
			return err
		}

		if err := s.compensate(ctx, tx, tenantID, o, from, req); err != nil {
			return err
		}
		order = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(req.to)).Inc()
	log.Info().
		Str("tenant_id", tenantID).
		Str("order_id", order.ID.String()).
		Str("from", string(from)).
		Str("to", string(req.to)).
		Str("actor_type", req.actorType).
		Msg("order status changed")

	fromStr := string(from)
	s.notify(ctx, dto.OrderEvent{
		Type:        dto.EventOrderStatusChanged,
		TenantID:    tenantID,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		FromStatus:  &fromStr,
		GrandTotal:  order.GrandTotal,
		OccurredAt:  order.UpdatedAt,
	})
	return orderToResponse(&order), nil
}

// compensate applies the inventory effect of a transition to every line
// that reserved tracked stock at placement:
//
//	→ confirmed: on_hand −q, reserved −q, mobile_sale −q
//	→ cancelled: reserved −q (floored at 0), release_reserve +q, only while
//	             the reservation is still held (cancelling from pending)
//
// packed and out_for_delivery carry no inventory effect.
func (s *orderService) compensate(ctx context.Context, tx *gorm.DB, tenantID string, o *model.Order, from model.OrderStatus, req transitionRequest) error {
	var (
		mvType model.MovementType
		sign   int
		apply  func(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error
	)
	switch {
	case req.to == model.StatusConfirmed:
		mvType, sign, apply = model.MovementMobileSale, -1, s.inventory.Consume
	case req.to == model.StatusCancelled && from == model.StatusPending:
		mvType, sign, apply = model.MovementReleaseReserve, 1, s.inventory.Release
	default:
		return nil
	}

	actor := req.actor
	for _, it := range o.Items {
		if it.ReservedWarehouseID == nil {
			continue
		}
		inv, err := s.inventory.LockForUpdate(ctx, tx, tenantID, it.ProductID, *it.ReservedWarehouseID)
		if err != nil {
			return err
		}
		if inv == nil {
			// The row was reserved at placement; losing it means someone
			// deleted tracked stock out from under a live order.
			return fmt.Errorf("inventory row for product %s in warehouse %s disappeared", it.ProductID, *it.ReservedWarehouseID)
		}
		if err := apply(ctx, tx, inv.ID, it.Quantity); err != nil {
			return err
		}
		if err := s.inventory.CreateMovement(ctx, tx, &model.InventoryMovement{
			TenantID:    tenantID,
			ProductID:   it.ProductID,
			WarehouseID: inv.WarehouseID,
			Type:        mvType,
			Quantity:    sign * it.Quantity,
			ReferenceID: &o.ID,
			Reason:      fmt.Sprintf("order %s %s", o.OrderNumber, req.to),
			CreatedBy:   &actor,
		}); err != nil {
			return err
		}
	}
	return nil
}
