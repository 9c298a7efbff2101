package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"retailcore/internal/dto"
	"retailcore/internal/model"
	"retailcore/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shopA = "shop_a"
	shopB = "shop_b"
)

type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	svc      service.OrderService
	wh       model.Warehouse
}

func newFixture() *fixture {
	store := newMemStore()
	notifier := &recordingNotifier{}
	return &fixture{
		store:    store,
		notifier: notifier,
		svc:      service.NewOrderService(store, store, store, store, notifier),
		wh:       store.addWarehouse(shopA, nil),
	}
}

func line(p model.Product, qty int) dto.OrderLineRequest {
	return dto.OrderLineRequest{ProductID: p.ID.String(), Quantity: qty}
}

func input(customer string, lines ...dto.OrderLineRequest) dto.PlaceOrderInput {
	return dto.PlaceOrderInput{
		CustomerID:      customer,
		Items:           lines,
		DeliveryAddress: "Av. Siempre Viva 742",
		PaymentMethod:   "cash",
	}
}

func strPtr(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// ── totals ────────────────────────────────────────────────────────────────────

func TestPlaceOrder_ComputesTotals(t *testing.T) {
	f := newFixture()
	water := f.store.addProduct(shopA, "water", "10.00", "21")
	chips := f.store.addProduct(shopA, "chips", "5.55", "10.5")
	chips.MobilePrice = decPtr("4.99")
	f.store.products[chips.ID] = chips
	f.store.settings[shopA] = model.ShopSettings{TenantID: shopA, DeliveryFee: dec("3.50")}

	res, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(water, 3), line(chips, 2)))
	require.NoError(t, err)
	require.False(t, res.Duplicate)

	o := res.Order
	assert.Equal(t, "pending", o.Status)
	assert.True(t, dec("39.98").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	// 30 × 0.21 + 9.98 × 0.105 = 6.30 + 1.0479
	assert.True(t, dec("7.35").Equal(o.TaxTotal), "tax %s", o.TaxTotal)
	assert.True(t, dec("3.50").Equal(o.DeliveryFee))
	assert.True(t, dec("50.83").Equal(o.GrandTotal), "grand %s", o.GrandTotal)
	assert.True(t, o.Subtotal.Add(o.TaxTotal).Add(o.DeliveryFee).Round(2).Equal(o.GrandTotal))

	require.Len(t, o.Items, 2)
	assert.True(t, dec("4.99").Equal(o.Items[1].UnitPrice), "mobile price overrides catalog price")
	assert.Equal(t, "unpaid", o.PaymentStatus)
	assert.Equal(t, []string{dto.EventOrderCreated}, f.notifier.types())
}

func TestPlaceOrder_FreeDeliveryThreshold(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "wine", "20.00", "0")
	f.store.settings[shopA] = model.ShopSettings{
		TenantID:              shopA,
		DeliveryFee:           dec("4.00"),
		FreeDeliveryThreshold: decPtr("40.00"),
	}

	res, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(p, 2)))
	require.NoError(t, err)
	assert.True(t, res.Order.DeliveryFee.IsZero())
	assert.True(t, dec("40.00").Equal(res.Order.GrandTotal))

	res, err = f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(p, 1)))
	require.NoError(t, err)
	assert.True(t, dec("4.00").Equal(res.Order.DeliveryFee))
	assert.True(t, dec("24.00").Equal(res.Order.GrandTotal))
}

func TestPlaceOrder_BelowMinimumCreatesNothing(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "bread", "10.00", "0")
	invID := f.store.addStock(shopA, p.ID, f.wh.ID, 100, 0)
	f.store.settings[shopA] = model.ShopSettings{TenantID: shopA, DeliveryFee: dec("2"), MinimumOrderAmount: decPtr("50")}

	_, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(p, 4)))

	var minErr *service.MinimumOrderError
	require.ErrorAs(t, err, &minErr)
	assert.True(t, dec("40").Equal(minErr.Subtotal))
	assert.True(t, dec("50").Equal(minErr.Minimum))
	assert.Equal(t, 0, f.store.orderCount())
	assert.Empty(t, f.store.movementsOf(model.MovementReserve))
	assert.Equal(t, 0, f.store.stock(invID).QuantityReserved)
	assert.Empty(t, f.notifier.types())
}

// ── idempotency ───────────────────────────────────────────────────────────────

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "milk", "1.50", "0")
	invID := f.store.addStock(shopA, p.ID, f.wh.ID, 10, 0)

	in := input("cust-1", line(p, 2))
	in.IdempotencyKey = strPtr("checkout-7f3a9c")

	first, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, 2, f.store.stock(invID).QuantityReserved, "replay must not reserve again")
	assert.Len(t, f.store.movementsOf(model.MovementReserve), 1)
}

func TestPlaceOrder_IdempotencyKeyScopedPerTenant(t *testing.T) {
	f := newFixture()
	a := f.store.addProduct(shopA, "milk", "1.50", "0")
	b := f.store.addProduct(shopB, "milk", "1.50", "0")

	inA := input("cust-1", line(a, 1))
	inA.IdempotencyKey = strPtr("same-key-123")
	inB := input("cust-1", line(b, 1))
	inB.IdempotencyKey = strPtr("same-key-123")

	resA, err := f.svc.PlaceOrder(context.Background(), shopA, inA)
	require.NoError(t, err)
	resB, err := f.svc.PlaceOrder(context.Background(), shopB, inB)
	require.NoError(t, err)
	assert.False(t, resB.Duplicate)
	assert.NotEqual(t, resA.Order.ID, resB.Order.ID)
}

func TestPlaceOrder_ConcurrentDuplicateResolvedByUniqueKey(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "milk", "1.50", "0")
	invID := f.store.addStock(shopA, p.ID, f.wh.ID, 10, 0)
	in := input("cust-1", line(p, 3))
	in.IdempotencyKey = strPtr("retry-key-abc")

	first, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	require.NoError(t, err)

	// The second submission passes the pre-check as if it raced the first.
	f.store.missLookups = 1
	second, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, 3, f.store.stock(invID).QuantityReserved, "losing transaction rolled back its reservation")
}

func TestPlaceOrder_RacingDuplicateWinsOverStockCheck(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "milk", "1.50", "0")
	invID := f.store.addStock(shopA, p.ID, f.wh.ID, 10, 0)
	in := input("cust-1", line(p, 6))
	in.IdempotencyKey = strPtr("retry-key-abc")

	first, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	require.NoError(t, err)

	// The retry misses the pre-check and then sees the first reservation,
	// so it fails the stock check before it could hit the unique key.
	f.store.missLookups = 1
	second, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, 6, f.store.stock(invID).QuantityReserved)
}

func TestPlaceOrder_StockFailureWithUnusedKeyIsReported(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "milk", "1.50", "0")
	f.store.addStock(shopA, p.ID, f.wh.ID, 2, 0)
	in := input("cust-1", line(p, 6))
	in.IdempotencyKey = strPtr("fresh-key-0001")

	_, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	var stockErr *service.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, f.store.orderCount())
}

func TestPlaceOrder_IdempotencyKeyTooLong(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "milk", "1.50", "0")
	in := input("cust-1", line(p, 1))
	in.IdempotencyKey = strPtr(strings.Repeat("k", service.MaxIdempotencyKeyLen+1))

	_, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	var ve *service.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "idempotency_key", ve.Field)
	assert.Equal(t, 0, f.store.orderCount())
}

// ── stock ─────────────────────────────────────────────────────────────────────

func TestPlaceOrder_ConcurrentOrdersCannotOversell(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "eggs", "3.00", "0")
	invID := f.store.addStock(shopA, p.ID, f.wh.ID, 10, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(p, 6)))
		}(i)
	}
	wg.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1, "exactly one placement must win")

	var stockErr *service.InsufficientStockError
	require.ErrorAs(t, failures[0], &stockErr)
	assert.Equal(t, 4, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, "eggs", stockErr.ProductName)

	inv := f.store.stock(invID)
	assert.Equal(t, 6, inv.QuantityReserved)
	assert.Equal(t, 10, inv.QuantityOnHand)
	assert.Equal(t, 1, f.store.orderCount())
}

func TestPlaceOrder_NoPartialReservation(t *testing.T) {
	f := newFixture()
	ok := f.store.addProduct(shopA, "rice", "2.00", "0")
	short := f.store.addProduct(shopA, "beans", "2.00", "0")
	okInv := f.store.addStock(shopA, ok.ID, f.wh.ID, 50, 0)
	f.store.addStock(shopA, short.ID, f.wh.ID, 1, 0)

	_, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(ok, 5), line(short, 2)))

	var stockErr *service.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, f.store.stock(okInv).QuantityReserved)
	assert.Empty(t, f.store.movementsOf(model.MovementReserve))
	assert.Equal(t, 0, f.store.orderCount())
}

func TestPlaceOrder_RepeatedProductLinesShareAvailability(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "soda", "1.00", "0")
	f.store.addStock(shopA, p.ID, f.wh.ID, 5, 0)

	_, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(p, 3), line(p, 3)))

	var stockErr *service.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
}

func TestPlaceOrder_UntrackedStockIsAccepted(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "flowers", "12.00", "0")

	res, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(p, 500)))
	require.NoError(t, err)
	require.Len(t, res.Order.Items, 1)
	assert.Nil(t, res.Order.Items[0].ReservedWarehouseID)
	assert.Empty(t, f.store.movementsOf(model.MovementReserve))
}

func TestPlaceOrder_TenantWithoutWarehouseIsUntracked(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopB, "cake", "8.00", "0")

	res, err := f.svc.PlaceOrder(context.Background(), shopB, input("cust-1", line(p, 2)))
	require.NoError(t, err)
	assert.Nil(t, res.Order.WarehouseID)
	assert.Nil(t, res.Order.Items[0].ReservedWarehouseID)
}

func TestPlaceOrder_PrefersBranchWarehouse(t *testing.T) {
	f := newFixture()
	branch := uuid.New()
	branchWh := f.store.addWarehouse(shopA, &branch)
	p := f.store.addProduct(shopA, "coffee", "4.00", "0")
	f.store.addStock(shopA, p.ID, f.wh.ID, 10, 0)
	branchInv := f.store.addStock(shopA, p.ID, branchWh.ID, 10, 0)

	in := input("cust-1", line(p, 2))
	in.BranchID = strPtr(branch.String())
	res, err := f.svc.PlaceOrder(context.Background(), shopA, in)
	require.NoError(t, err)

	require.NotNil(t, res.Order.WarehouseID)
	assert.Equal(t, branchWh.ID.String(), *res.Order.WarehouseID)
	assert.Equal(t, 2, f.store.stock(branchInv).QuantityReserved)
}

func TestPlaceOrder_RejectsUnavailableProducts(t *testing.T) {
	f := newFixture()
	inactive := f.store.addProduct(shopA, "old", "1.00", "0")
	inactive.Active = false
	f.store.products[inactive.ID] = inactive
	foreign := f.store.addProduct(shopB, "foreign", "1.00", "0")

	for _, p := range []model.Product{inactive, foreign} {
		_, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-1", line(p, 1)))
		assert.ErrorIs(t, err, service.ErrProductUnavailable, p.Name)
	}
	assert.Equal(t, 0, f.store.orderCount())
}

func TestPlaceOrder_ValidationHappensBeforeAnyTransaction(t *testing.T) {
	f := newFixture()
	anyLine := dto.OrderLineRequest{ProductID: uuid.NewString(), Quantity: 1}

	blankKey := input("cust-1", anyLine)
	blankKey.IdempotencyKey = strPtr("  ")
	badBranch := input("cust-1", anyLine)
	badBranch.BranchID = strPtr("x")
	noAddress := input("cust-1", anyLine)
	noAddress.DeliveryAddress = " "

	cases := map[string]dto.PlaceOrderInput{
		"no items":      input("cust-1"),
		"no customer":   input("", anyLine),
		"bad product":   input("cust-1", dto.OrderLineRequest{ProductID: "not-a-uuid", Quantity: 1}),
		"zero quantity": input("cust-1", dto.OrderLineRequest{ProductID: uuid.NewString(), Quantity: 0}),
		"blank key":     blankKey,
		"bad branch":    badBranch,
		"no address":    noAddress,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(context.Background(), shopA, in)
			var ve *service.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "validation_error", ve.Code())
		})
	}
	assert.Equal(t, 0, f.store.txCount)
}

func TestPlaceOrder_WritesInitialHistory(t *testing.T) {
	f := newFixture()
	p := f.store.addProduct(shopA, "tea", "2.00", "0")

	res, err := f.svc.PlaceOrder(context.Background(), shopA, input("cust-9", line(p, 1)))
	require.NoError(t, err)

	hist := f.store.historyOf(uuid.MustParse(res.Order.ID))
	require.Len(t, hist, 1)
	assert.Nil(t, hist[0].FromStatus)
	assert.Equal(t, model.StatusPending, hist[0].ToStatus)
	assert.Equal(t, "cust-9", hist[0].ChangedBy)
	assert.Equal(t, "customer", hist[0].ChangedByType)
}
