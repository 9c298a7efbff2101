package service_test

import (
	"context"
	"testing"

	"retailcore/internal/dto"
	"retailcore/internal/model"
	"retailcore/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventoryService(store *memStore) service.InventoryService {
	return service.NewInventoryService(store, store, store)
}

func TestAdjustStock_StartsTrackingMissingRow(t *testing.T) {
	f := newFixture()
	svc := newInventoryService(f.store)
	p := f.store.addProduct(shopA, "flour", "3.00", "0")

	resp, err := svc.AdjustStock(context.Background(), shopA, "mgr-1", dto.AdjustStockRequest{
		ProductID:   p.ID.String(),
		WarehouseID: f.wh.ID.String(),
		Delta:       12,
		Reason:      "initial count",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, resp.QuantityOnHand)
	assert.Equal(t, 12, resp.Available)

	adj := f.store.movementsOf(model.MovementAdjustment)
	require.Len(t, adj, 1)
	assert.Equal(t, 12, adj[0].Quantity)
	assert.Equal(t, "initial count", adj[0].Reason)
	require.NotNil(t, adj[0].CreatedBy)
	assert.Equal(t, "mgr-1", *adj[0].CreatedBy)
}

func TestAdjustStock_ConcurrentFirstAdjustmentsShareOneRow(t *testing.T) {
	f := newFixture()
	svc := newInventoryService(f.store)
	p := f.store.addProduct(shopA, "oats", "2.10", "0")

	var racer uuid.UUID
	f.store.beforeCreateInventory = func() {
		racer = f.store.addStock(shopA, p.ID, f.wh.ID, 7, 0)
	}
	resp, err := svc.AdjustStock(context.Background(), shopA, "mgr-1", dto.AdjustStockRequest{
		ProductID:   p.ID.String(),
		WarehouseID: f.wh.ID.String(),
		Delta:       5,
		Reason:      "delivery",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, resp.QuantityOnHand)
	assert.Equal(t, 12, f.store.stock(racer).QuantityOnHand)
	assert.Equal(t, 1, f.store.inventoryRows(shopA, p.ID))
}

func TestAdjustStock_CannotDropBelowReserved(t *testing.T) {
	f := newFixture()
	svc := newInventoryService(f.store)
	p := f.store.addProduct(shopA, "rice", "2.00", "0")
	invID := f.store.addStock(shopA, p.ID, f.wh.ID, 10, 6)

	_, err := svc.AdjustStock(context.Background(), shopA, "mgr-1", dto.AdjustStockRequest{
		ProductID:   p.ID.String(),
		WarehouseID: f.wh.ID.String(),
		Delta:       -5,
		Reason:      "breakage",
	})
	var ie *service.InsufficientStockError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 4, ie.Available)
	assert.Equal(t, 5, ie.Requested)
	assert.Equal(t, 10, f.store.stock(invID).QuantityOnHand)
	assert.Empty(t, f.store.movementsOf(model.MovementAdjustment))

	resp, err := svc.AdjustStock(context.Background(), shopA, "mgr-1", dto.AdjustStockRequest{
		ProductID:   p.ID.String(),
		WarehouseID: f.wh.ID.String(),
		Delta:       -4,
		Reason:      "breakage",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, resp.QuantityOnHand)
	assert.Equal(t, 0, resp.Available)
}

func TestAdjustStock_Rejections(t *testing.T) {
	f := newFixture()
	svc := newInventoryService(f.store)
	p := f.store.addProduct(shopA, "salt", "1.00", "0")
	foreign := f.store.addWarehouse(shopB, nil)

	cases := map[string]struct {
		req  dto.AdjustStockRequest
		want error
	}{
		"unknown warehouse": {
			req:  dto.AdjustStockRequest{ProductID: p.ID.String(), WarehouseID: uuid.NewString(), Delta: 1, Reason: "x"},
			want: service.ErrWarehouseNotFound,
		},
		"warehouse of another tenant": {
			req:  dto.AdjustStockRequest{ProductID: p.ID.String(), WarehouseID: foreign.ID.String(), Delta: 1, Reason: "x"},
			want: service.ErrWarehouseNotFound,
		},
		"unknown product": {
			req:  dto.AdjustStockRequest{ProductID: uuid.NewString(), WarehouseID: f.wh.ID.String(), Delta: 1, Reason: "x"},
			want: service.ErrProductUnavailable,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AdjustStock(context.Background(), shopA, "mgr-1", tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("zero delta", func(t *testing.T) {
		_, err := svc.AdjustStock(context.Background(), shopA, "mgr-1", dto.AdjustStockRequest{
			ProductID: p.ID.String(), WarehouseID: f.wh.ID.String(), Reason: "x",
		})
		var ve *service.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "delta", ve.Field)
	})
}

func TestListMovements_FilterByOrder(t *testing.T) {
	f := newFixture()
	svc := newInventoryService(f.store)
	id, _ := placeTracked(t, f, "cust-1", 10, 3)
	placeTracked(t, f, "cust-2", 10, 1)
	advance(t, f, id, model.StatusConfirmed)

	rows, err := svc.ListMovements(context.Background(), shopA, dto.MovementQuery{OrderID: id.String()})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "reserve", rows[0].Type)
	assert.Equal(t, -3, rows[0].Quantity)
	assert.Equal(t, "mobile_sale", rows[1].Type)
	for _, r := range rows {
		require.NotNil(t, r.ReferenceID)
		assert.Equal(t, id.String(), *r.ReferenceID)
	}

	_, err = svc.ListMovements(context.Background(), shopA, dto.MovementQuery{OrderID: "nope"})
	var ve *service.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "order_id", ve.Field)

	other, err := svc.ListMovements(context.Background(), shopB, dto.MovementQuery{})
	require.NoError(t, err)
	assert.Empty(t, other)
}
