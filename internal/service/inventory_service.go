package service

import (
	"context"
	"fmt"

	"retailcore/internal/dto"
	"retailcore/internal/model"
	"retailcore/internal/repository"
	"retailcore/internal/tenant"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// InventoryService is the manual stock adjustment entry point used by shop
// managers. It shares the inventory rows with the order engine, so it takes
// the same row lock before every mutation.
type InventoryService interface {
	AdjustStock(ctx context.Context, tenantID, actor string, req dto.AdjustStockRequest) (*dto.InventoryResponse, error)
	ListMovements(ctx context.Context, tenantID string, q dto.MovementQuery) ([]dto.MovementResponse, error)
}

type inventoryService struct {
	tx        TxRunner
	inventory repository.InventoryRepository
	catalog   repository.CatalogRepository
}

func NewInventoryService(tx TxRunner, inventory repository.InventoryRepository, catalog repository.CatalogRepository) InventoryService {
	return &inventoryService{tx: tx, inventory: inventory, catalog: catalog}
}

// AdjustStock applies a signed correction to on-hand stock, starting to
// track the product in the warehouse when no row exists yet. On-hand may
// not drop below the quantity already reserved by live orders.
func (s *inventoryService) AdjustStock(ctx context.Context, tenantID, actor string, req dto.AdjustStockRequest) (*dto.InventoryResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, &ValidationError{Field: "product_id", Message: "must be a uuid"}
	}
	warehouseID, err := uuid.Parse(req.WarehouseID)
	if err != nil {
		return nil, &ValidationError{Field: "warehouse_id", Message: "must be a uuid"}
	}
	if req.Delta == 0 {
		return nil, &ValidationError{Field: "delta", Message: "must not be zero"}
	}
	if req.Reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "is required"}
	}

	ctx = tenant.WithScope(ctx, tenant.Scope{TenantID: tenantID, ActorID: actor, ActorType: tenant.ActorStaff})
	var inv model.Inventory
	err = runTx(ctx, s.tx, func(tx *gorm.DB) error {
		product, err := s.catalog.FindProduct(ctx, tx, tenantID, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
		}
		wh, err := s.catalog.FindWarehouseByID(ctx, tx, tenantID, warehouseID)
		if err != nil {
			return err
		}
		if wh == nil {
			return ErrWarehouseNotFound
		}

		row, err := s.inventory.LockForUpdate(ctx, tx, tenantID, productID, warehouseID)
		if err != nil {
			return err
		}
		if row == nil {
			// A concurrent first adjustment may insert the same row; the
			// insert then does nothing and the re-lock waits for it.
			if err := s.inventory.CreateInventory(ctx, tx, &model.Inventory{
				TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID,
			}); err != nil {
				return err
			}
			row, err = s.inventory.LockForUpdate(ctx, tx, tenantID, productID, warehouseID)
			if err != nil {
				return err
			}
			if row == nil {
				return fmt.Errorf("inventory row for product %s vanished after insert", productID)
			}
		}

		next := row.QuantityOnHand + req.Delta
		if next < 0 || next < row.QuantityReserved {
			return &InsufficientStockError{
				ProductID:   productID.String(),
				ProductName: product.Name,
				Available:   row.Available(),
				Requested:   -req.Delta,
			}
		}
		if err := s.inventory.Adjust(ctx, tx, row.ID, req.Delta); err != nil {
			return err
		}
		by := actor
		if err := s.inventory.CreateMovement(ctx, tx, &model.InventoryMovement{
			TenantID:    tenantID,
			ProductID:   productID,
			WarehouseID: warehouseID,
			Type:        model.MovementAdjustment,
			Quantity:    req.Delta,
			Reason:      req.Reason,
			CreatedBy:   &by,
		}); err != nil {
			return err
		}
		row.QuantityOnHand = next
		inv = *row
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant_id", tenantID).
		Str("product_id", productID.String()).
		Str("warehouse_id", warehouseID.String()).
		Int("delta", req.Delta).
		Str("actor", actor).
		Msg("stock adjusted")

	return &dto.InventoryResponse{
		ProductID:        inv.ProductID.String(),
		WarehouseID:      inv.WarehouseID.String(),
		QuantityOnHand:   inv.QuantityOnHand,
		QuantityReserved: inv.QuantityReserved,
		Available:        inv.Available(),
	}, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, tenantID string, q dto.MovementQuery) ([]dto.MovementResponse, error) {
	filter := repository.MovementFilter{TenantID: tenantID, Limit: q.Limit}
	for _, f := range []struct {
		name string
		raw  string
		dst  **uuid.UUID
	}{
		{"product_id", q.ProductID, &filter.ProductID},
		{"warehouse_id", q.WarehouseID, &filter.WarehouseID},
		{"order_id", q.OrderID, &filter.ReferenceID},
	} {
		if f.raw == "" {
			continue
		}
		id, err := uuid.Parse(f.raw)
		if err != nil {
			return nil, &ValidationError{Field: f.name, Message: "must be a uuid"}
		}
		*f.dst = &id
	}

	ctx = tenant.WithTenant(ctx, tenantID)
	var rows []model.InventoryMovement
	err := runTx(ctx, s.tx, func(tx *gorm.DB) error {
		var err error
		rows, err = s.inventory.ListMovements(ctx, tx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]dto.MovementResponse, 0, len(rows))
	for _, m := range rows {
		mr := dto.MovementResponse{
			ID:          m.ID.String(),
			ProductID:   m.ProductID.String(),
			WarehouseID: m.WarehouseID.String(),
			Type:        string(m.Type),
			Quantity:    m.Quantity,
			Reason:      m.Reason,
			CreatedBy:   m.CreatedBy,
			CreatedAt:   m.CreatedAt,
		}
		if m.ReferenceID != nil {
			ref := m.ReferenceID.String()
			mr.ReferenceID = &ref
		}
		out = append(out, mr)
	}
	return out, nil
}
