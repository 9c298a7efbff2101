package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"retailcore/internal/dto"
	"retailcore/internal/model"
	"retailcore/internal/repository"
	"retailcore/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── memStore ──────────────────────────────────────────────────────────────────
// In-memory implementation of every repository plus the TxRunner. Each
// transaction holds one mutex for its whole duration (standing in for row
// locks) and restores a snapshot when fn fails, so a rolled-back placement
// leaves no rows behind.

type memState struct {
	inventory map[uuid.UUID]model.Inventory
	orders    map[uuid.UUID]model.Order
	history   []model.OrderStatusHistory
	movements []model.InventoryMovement
	seq       int
	clock     time.Time
}

type memStore struct {
	mu sync.Mutex

	products   map[uuid.UUID]model.Product
	warehouses []model.Warehouse
	settings   map[string]model.ShopSettings

	state memState

	// missLookups makes the next n idempotency lookups report no match,
	// simulating a concurrent submission that passed the pre-check.
	missLookups int
	txCount     int
	// beforeCreateInventory runs inside CreateInventory, standing in for a
	// concurrent transaction that inserted the same row first.
	beforeCreateInventory func()
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]model.Product),
		settings: make(map[string]model.ShopSettings),
		state: memState{
			inventory: make(map[uuid.UUID]model.Inventory),
			orders:    make(map[uuid.UUID]model.Order),
			clock:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

var (
	_ service.TxRunner               = (*memStore)(nil)
	_ repository.OrderRepository     = (*memStore)(nil)
	_ repository.InventoryRepository = (*memStore)(nil)
	_ repository.CatalogRepository   = (*memStore)(nil)
)

func (s *memStore) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	snap := s.state.clone()
	if err := fn(nil); err != nil {
		s.state = snap
		return err
	}
	return nil
}

func (st memState) clone() memState {
	cp := memState{
		inventory: make(map[uuid.UUID]model.Inventory, len(st.inventory)),
		orders:    make(map[uuid.UUID]model.Order, len(st.orders)),
		history:   append([]model.OrderStatusHistory(nil), st.history...),
		movements: append([]model.InventoryMovement(nil), st.movements...),
		seq:       st.seq,
		clock:     st.clock,
	}
	for k, v := range st.inventory {
		cp.inventory[k] = v
	}
	for k, v := range st.orders {
		v.Items = append([]model.OrderItem(nil), v.Items...)
		cp.orders[k] = v
	}
	return cp
}

// ── fixtures ──────────────────────────────────────────────────────────────────

func (s *memStore) addProduct(tenantID, name string, price, taxRate string) model.Product {
	p := model.Product{
		ID:       uuid.New(),
		TenantID: tenantID,
		SKU:      "SKU-" + name,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		TaxRate:  decimal.RequireFromString(taxRate),
		Active:   true,
	}
	s.products[p.ID] = p
	return p
}

func (s *memStore) addWarehouse(tenantID string, branchID *uuid.UUID) model.Warehouse {
	w := model.Warehouse{ID: uuid.New(), TenantID: tenantID, BranchID: branchID, Name: "main", Active: true,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, len(s.warehouses), 0, time.UTC)}
	s.warehouses = append(s.warehouses, w)
	return w
}

func (s *memStore) addStock(tenantID string, productID, warehouseID uuid.UUID, onHand, reserved int) uuid.UUID {
	inv := model.Inventory{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ProductID:        productID,
		WarehouseID:      warehouseID,
		QuantityOnHand:   onHand,
		QuantityReserved: reserved,
	}
	s.state.inventory[inv.ID] = inv
	return inv.ID
}

func (s *memStore) stock(id uuid.UUID) model.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.inventory[id]
}

func (s *memStore) inventoryRows(tenantID string, productID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inv := range s.state.inventory {
		if inv.TenantID == tenantID && inv.ProductID == productID {
			n++
		}
	}
	return n
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *memStore) movementsOf(t model.MovementType) []model.InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryMovement
	for _, m := range s.state.movements {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) historyOf(orderID uuid.UUID) []model.OrderStatusHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OrderStatusHistory
	for _, h := range s.state.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out
}

func (s *memStore) order(id uuid.UUID) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.orders[id]
}

// ── CatalogRepository ─────────────────────────────────────────────────────────

func (s *memStore) FindProduct(_ context.Context, _ *gorm.DB, tenantID string, id uuid.UUID) (*model.Product, error) {
	p, ok := s.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) FindWarehouse(_ context.Context, _ *gorm.DB, tenantID string, branchID *uuid.UUID) (*model.Warehouse, error) {
	if branchID != nil {
		for _, w := range s.warehouses {
			if w.TenantID == tenantID && w.Active && w.BranchID != nil && *w.BranchID == *branchID {
				w := w
				return &w, nil
			}
		}
	}
	for _, w := range s.warehouses {
		if w.TenantID == tenantID && w.Active {
			w := w
			return &w, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindWarehouseByID(_ context.Context, _ *gorm.DB, tenantID string, id uuid.UUID) (*model.Warehouse, error) {
	for _, w := range s.warehouses {
		if w.TenantID == tenantID && w.ID == id {
			w := w
			return &w, nil
		}
	}
	return nil, nil
}

func (s *memStore) Settings(_ context.Context, _ *gorm.DB, tenantID string) (*model.ShopSettings, error) {
	if st, ok := s.settings[tenantID]; ok {
		return &st, nil
	}
	return &model.ShopSettings{TenantID: tenantID, DeliveryFee: decimal.Zero}, nil
}

// ── InventoryRepository ───────────────────────────────────────────────────────

func (s *memStore) LockForUpdate(_ context.Context, _ *gorm.DB, tenantID string, productID, warehouseID uuid.UUID) (*model.Inventory, error) {
	for _, inv := range s.state.inventory {
		if inv.TenantID == tenantID && inv.ProductID == productID && inv.WarehouseID == warehouseID {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (s *memStore) mutate(id uuid.UUID, fn func(inv *model.Inventory)) error {
	inv := s.state.inventory[id]
	fn(&inv)
	s.state.inventory[id] = inv
	return nil
}

func (s *memStore) Reserve(_ context.Context, _ *gorm.DB, id uuid.UUID, qty int) error {
	return s.mutate(id, func(inv *model.Inventory) { inv.QuantityReserved += qty })
}

func (s *memStore) Consume(_ context.Context, _ *gorm.DB, id uuid.UUID, qty int) error {
	return s.mutate(id, func(inv *model.Inventory) {
		inv.QuantityOnHand -= qty
		inv.QuantityReserved -= qty
	})
}

func (s *memStore) Release(_ context.Context, _ *gorm.DB, id uuid.UUID, qty int) error {
	return s.mutate(id, func(inv *model.Inventory) {
		inv.QuantityReserved -= qty
		if inv.QuantityReserved < 0 {
			inv.QuantityReserved = 0
		}
	})
}

func (s *memStore) Adjust(_ context.Context, _ *gorm.DB, id uuid.UUID, delta int) error {
	return s.mutate(id, func(inv *model.Inventory) { inv.QuantityOnHand += delta })
}

func (s *memStore) CreateInventory(ctx context.Context, tx *gorm.DB, inv *model.Inventory) error {
	if hook := s.beforeCreateInventory; hook != nil {
		s.beforeCreateInventory = nil
		hook()
	}
	if existing, _ := s.LockForUpdate(ctx, tx, inv.TenantID, inv.ProductID, inv.WarehouseID); existing != nil {
		return nil
	}
	inv.ID = uuid.New()
	s.state.inventory[inv.ID] = *inv
	return nil
}

func (s *memStore) CreateMovement(_ context.Context, _ *gorm.DB, m *model.InventoryMovement) error {
	m.ID = uuid.New()
	m.CreatedAt = s.state.clock
	s.state.movements = append(s.state.movements, *m)
	return nil
}

func (s *memStore) ListMovements(_ context.Context, _ *gorm.DB, f repository.MovementFilter) ([]model.InventoryMovement, error) {
	var out []model.InventoryMovement
	for _, m := range s.state.movements {
		if m.TenantID != f.TenantID {
			continue
		}
		if f.ProductID != nil && m.ProductID != *f.ProductID {
			continue
		}
		if f.WarehouseID != nil && m.WarehouseID != *f.WarehouseID {
			continue
		}
		if f.ReferenceID != nil && (m.ReferenceID == nil || *m.ReferenceID != *f.ReferenceID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ── OrderRepository ───────────────────────────────────────────────────────────

func (s *memStore) FindByIdempotencyKey(_ context.Context, _ *gorm.DB, tenantID, key string) (*model.Order, error) {
	if s.missLookups > 0 {
		s.missLookups--
		return nil, nil
	}
	for _, o := range s.state.orders {
		if o.TenantID == tenantID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (s *memStore) NextOrderNumber(_ context.Context, _ *gorm.DB) (string, error) {
	s.state.seq++
	return fmt.Sprintf("MO-%06d", s.state.seq), nil
}

func (s *memStore) Create(_ context.Context, _ *gorm.DB, o *model.Order) error {
	if o.IdempotencyKey != nil {
		for _, existing := range s.state.orders {
			if existing.TenantID == o.TenantID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *o.IdempotencyKey {
				return repository.ErrDuplicateIdempotencyKey
			}
		}
	}
	s.state.clock = s.state.clock.Add(time.Second)
	o.ID = uuid.New()
	o.CreatedAt = s.state.clock
	o.UpdatedAt = s.state.clock
	for i := range o.Items {
		o.Items[i].ID = uuid.New()
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = append([]model.OrderItem(nil), o.Items...)
	stored.History = nil
	s.state.orders[o.ID] = stored
	return nil
}

func (s *memStore) CreateHistory(_ context.Context, _ *gorm.DB, h *model.OrderStatusHistory) error {
	h.ID = uuid.New()
	h.CreatedAt = s.state.clock
	s.state.history = append(s.state.history, *h)
	return nil
}

func (s *memStore) LockByID(_ context.Context, _ *gorm.DB, tenantID string, id uuid.UUID) (*model.Order, error) {
	o, ok := s.state.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, nil
	}
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return &o, nil
}

func (s *memStore) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	o := s.state.orders[id]
	for k, v := range fields {
		switch k {
		case "status":
			o.Status = model.OrderStatus(v.(string))
		case "payment_status":
			o.PaymentStatus = v.(string)
		case "delivered_at":
			t := v.(time.Time)
			o.DeliveredAt = &t
		case "cancelled_at":
			t := v.(time.Time)
			o.CancelledAt = &t
		case "cancelled_by":
			by := v.(string)
			o.CancelledBy = &by
		case "cancellation_reason":
			o.CancellationReason = v.(*string)
		case "updated_at":
			o.UpdatedAt = v.(time.Time)
		}
	}
	s.state.orders[id] = o
	return nil
}

func (s *memStore) FindDetail(_ context.Context, _ *gorm.DB, tenantID string, id uuid.UUID) (*model.Order, error) {
	o, ok := s.state.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, nil
	}
	for _, h := range s.state.history {
		if h.OrderID == id {
			o.History = append(o.History, h)
		}
	}
	return &o, nil
}

func (s *memStore) ListByCustomer(_ context.Context, _ *gorm.DB, tenantID, customerID string, after *repository.Cursor, limit int) ([]model.Order, error) {
	return s.page(func(o model.Order) bool {
		return o.TenantID == tenantID && o.CustomerID == customerID
	}, after, limit), nil
}

func (s *memStore) ListByTenant(_ context.Context, _ *gorm.DB, tenantID string, status *model.OrderStatus, after *repository.Cursor, limit int) ([]model.Order, error) {
	return s.page(func(o model.Order) bool {
		return o.TenantID == tenantID && (status == nil || o.Status == *status)
	}, after, limit), nil
}

func (s *memStore) page(match func(model.Order) bool, after *repository.Cursor, limit int) []model.Order {
	var rows []model.Order
	for _, o := range s.state.orders {
		if match(o) {
			rows = append(rows, o)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return newer(rows[i].CreatedAt, rows[i].ID, rows[j].CreatedAt, rows[j].ID) })
	var out []model.Order
	for _, o := range rows {
		if after != nil && !newer(after.CreatedAt, after.ID, o.CreatedAt, o.ID) {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}

// newer reports whether (at, aid) sorts before (bt, bid) in DESC order.
func newer(at time.Time, aid uuid.UUID, bt time.Time, bid uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return aid.String() > bid.String()
}

// ── notifier ──────────────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu     sync.Mutex
	events []dto.OrderEvent
}

func (n *recordingNotifier) EnqueueOrderEvent(_ context.Context, ev dto.OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}
