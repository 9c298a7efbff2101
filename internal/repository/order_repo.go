package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailcore/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateIdempotencyKey is returned by Create when another order of the
// same tenant already holds the idempotency key.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

const uniqueViolation = "23505"

// Cursor is a keyset position in the (created_at DESC, id DESC) ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// OrderRepository is the data access contract for orders, their lines and
// their status history. Every method runs on the caller's transaction.
type OrderRepository interface {
	// FindByIdempotencyKey returns nil, nil when no order holds the key.
	FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, tenantID, key string) (*model.Order, error)
	NextOrderNumber(ctx context.Context, tx *gorm.DB) (string, error)
	// Create inserts the order together with its Items.
	Create(ctx context.Context, tx *gorm.DB, o *model.Order) error
	CreateHistory(ctx context.Context, tx *gorm.DB, h *model.OrderStatusHistory) error
	// LockByID loads the order with its items holding a row lock on the
	// order until tx ends. Returns nil, nil when absent.
	LockByID(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Order, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	// FindDetail loads items and history. Returns nil, nil when absent.
	FindDetail(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Order, error)
	// ListByCustomer and ListByTenant return up to limit orders after the
	// cursor, newest first, with their items.
	ListByCustomer(ctx context.Context, tx *gorm.DB, tenantID, customerID string, after *Cursor, limit int) ([]model.Order, error)
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, status *model.OrderStatus, after *Cursor, limit int) ([]model.Order, error)
}

type orderRepo struct{}

func NewOrderRepository() OrderRepository { return &orderRepo{} }

func (r *orderRepo) FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, tenantID, key string) (*model.Order, error) {
	var o model.Order
	err := tx.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) NextOrderNumber(ctx context.Context, tx *gorm.DB) (string, error) {
	var n int64
	if err := tx.WithContext(ctx).Raw("SELECT nextval('order_number_seq')").Scan(&n).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("MO-%06d", n), nil
}

func (r *orderRepo) Create(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	err := tx.WithContext(ctx).Create(o).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && o.IdempotencyKey != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, pgErr.ConstraintName)
	}
	return err
}

func (r *orderRepo) CreateHistory(ctx context.Context, tx *gorm.DB, h *model.OrderStatusHistory) error {
	return tx.WithContext(ctx).Create(h).Error
}

func (r *orderRepo) LockByID(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("order_id = ?", o.ID).Find(&o.Items).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	return tx.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Updates(fields).Error
}

func (r *orderRepo) FindDetail(ctx context.Context, tx *gorm.DB, tenantID string, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := tx.WithContext(ctx).
		Preload("Items").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) ListByCustomer(ctx context.Context, tx *gorm.DB, tenantID, customerID string, after *Cursor, limit int) ([]model.Order, error) {
	q := tx.WithContext(ctx).Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	return r.page(q, after, limit)
}

func (r *orderRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, status *model.OrderStatus, after *Cursor, limit int) ([]model.Order, error) {
	q := tx.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	return r.page(q, after, limit)
}

func (r *orderRepo) page(q *gorm.DB, after *Cursor, limit int) ([]model.Order, error) {
	if after != nil {
		q = q.Where("(created_at, id) < (?, ?)", after.CreatedAt, after.ID)
	}
	var orders []model.Order
	err := q.Preload("Items").
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
