package infra

import (
	"fmt"

	"gorm.io/gorm"
)

// schemaStatements create the schema idempotently: every statement uses
// IF NOT EXISTS or an existence guard, so re-running on a migrated database
// is a no-op. Money is numeric(12,2) to keep two-decimal rounding exact.
var schemaStatements = []struct{ descr, sql string }{
	{"tenants", `
CREATE TABLE IF NOT EXISTS tenants (
  id          VARCHAR(64) PRIMARY KEY,
  name        TEXT NOT NULL,
  slug        TEXT NOT NULL UNIQUE,
  active      BOOLEAN NOT NULL DEFAULT true,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"warehouses", `
CREATE TABLE IF NOT EXISTS warehouses (
  id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id   VARCHAR(64) NOT NULL REFERENCES tenants(id),
  branch_id   UUID,
  name        TEXT NOT NULL,
  active      BOOLEAN NOT NULL DEFAULT true,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"shop_settings", `
CREATE TABLE IF NOT EXISTS shop_settings (
  tenant_id               VARCHAR(64) PRIMARY KEY REFERENCES tenants(id),
  delivery_fee            NUMERIC(12,2) NOT NULL DEFAULT 0,
  free_delivery_threshold NUMERIC(12,2),
  minimum_order_amount    NUMERIC(12,2),
  updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"products", `
CREATE TABLE IF NOT EXISTS products (
  id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id     VARCHAR(64) NOT NULL REFERENCES tenants(id),
  sku           TEXT NOT NULL,
  name          TEXT NOT NULL,
  price         NUMERIC(12,2) NOT NULL,
  mobile_price  NUMERIC(12,2),
  tax_rate      NUMERIC(5,2) NOT NULL DEFAULT 0,
  active        BOOLEAN NOT NULL DEFAULT true,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (tenant_id, sku)
)`},
	{"inventory", `
CREATE TABLE IF NOT EXISTS inventory (
  id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id          VARCHAR(64) NOT NULL REFERENCES tenants(id),
  product_id         UUID NOT NULL REFERENCES products(id),
  warehouse_id       UUID NOT NULL REFERENCES warehouses(id),
  quantity_on_hand   INT NOT NULL DEFAULT 0,
  quantity_reserved  INT NOT NULL DEFAULT 0,
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT idx_inventory_tenant_product_wh UNIQUE (tenant_id, product_id, warehouse_id)
)`},
	{"inventory_movements", `
CREATE TABLE IF NOT EXISTS inventory_movements (
  id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id     VARCHAR(64) NOT NULL REFERENCES tenants(id),
  product_id    UUID NOT NULL,
  warehouse_id  UUID NOT NULL,
  type          VARCHAR(30) NOT NULL,
  quantity      INT NOT NULL,
  reference_id  UUID,
  reason        TEXT NOT NULL DEFAULT '',
  created_by    TEXT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"order number sequence", `CREATE SEQUENCE IF NOT EXISTS order_number_seq`},
	{"orders", `
CREATE TABLE IF NOT EXISTS orders (
  id                   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id            VARCHAR(64) NOT NULL REFERENCES tenants(id),
  order_number         VARCHAR(32) NOT NULL,
  customer_id          VARCHAR(64) NOT NULL,
  branch_id            UUID,
  warehouse_id         UUID,
  status               VARCHAR(20) NOT NULL DEFAULT 'pending',
  subtotal             NUMERIC(12,2) NOT NULL,
  tax_total            NUMERIC(12,2) NOT NULL,
  delivery_fee         NUMERIC(12,2) NOT NULL,
  grand_total          NUMERIC(12,2) NOT NULL,
  payment_method       VARCHAR(20) NOT NULL,
  payment_status       VARCHAR(20) NOT NULL DEFAULT 'unpaid',
  delivery_address     TEXT NOT NULL,
  delivery_lat         DOUBLE PRECISION,
  delivery_lng         DOUBLE PRECISION,
  delivery_notes       TEXT,
  idempotency_key      VARCHAR(128),
  pos_synced           BOOLEAN NOT NULL DEFAULT false,
  delivered_at         TIMESTAMPTZ,
  cancelled_at         TIMESTAMPTZ,
  cancelled_by         TEXT,
  cancellation_reason  TEXT,
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"orders idempotency index", `
CREATE UNIQUE INDEX IF NOT EXISTS uni_orders_tenant_idempotency_key
    ON orders (tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL`},
	{"orders customer page index", `
CREATE INDEX IF NOT EXISTS idx_orders_customer_page
    ON orders (tenant_id, customer_id, created_at DESC, id DESC)`},
	{"orders pos sync index", `
CREATE INDEX IF NOT EXISTS idx_orders_pos_pending
    ON orders (updated_at) WHERE status = 'delivered' AND pos_synced = false`},
	{"order_items", `
CREATE TABLE IF NOT EXISTS order_items (
  id                     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id              VARCHAR(64) NOT NULL REFERENCES tenants(id),
  order_id               UUID NOT NULL REFERENCES orders(id),
  product_id             UUID NOT NULL,
  product_name           TEXT NOT NULL,
  sku                    TEXT NOT NULL,
  quantity               INT NOT NULL CHECK (quantity > 0),
  unit_price             NUMERIC(12,2) NOT NULL,
  tax_amount             NUMERIC(12,2) NOT NULL,
  discount_amount        NUMERIC(12,2) NOT NULL DEFAULT 0,
  subtotal               NUMERIC(12,2) NOT NULL,
  reserved_warehouse_id  UUID
)`},
	{"order_status_history", `
CREATE TABLE IF NOT EXISTS order_status_history (
  id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  tenant_id        VARCHAR(64) NOT NULL REFERENCES tenants(id),
  order_id         UUID NOT NULL REFERENCES orders(id),
  from_status      VARCHAR(20),
  to_status        VARCHAR(20) NOT NULL,
  changed_by       TEXT NOT NULL,
  changed_by_type  VARCHAR(20) NOT NULL,
  note             TEXT,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
}

// rlsTables maps each tenant-owned table to its tenant column.
var rlsTables = []struct{ table, column string }{
	{"tenants", "id"},
	{"warehouses", "tenant_id"},
	{"shop_settings", "tenant_id"},
	{"products", "tenant_id"},
	{"inventory", "tenant_id"},
	{"inventory_movements", "tenant_id"},
	{"orders", "tenant_id"},
	{"order_items", "tenant_id"},
	{"order_status_history", "tenant_id"},
}

// rlsStatements enable row-level security on every tenant table. A session
// without app.current_tenant (administrative mode) sees all rows; a scoped
// session sees and writes only its own tenant's rows.
func rlsStatements() []struct{ descr, sql string } {
	var out []struct{ descr, sql string }
	for _, t := range rlsTables {
		predicate := fmt.Sprintf(
			"COALESCE(current_setting('%[1]s', true), '') = '' OR %[2]s = current_setting('%[1]s', true)",
			tenantSetting, t.column)
		out = append(out,
			struct{ descr, sql string }{"rls enable " + t.table,
				fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", t.table)},
			struct{ descr, sql string }{"rls force " + t.table,
				fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", t.table)},
			struct{ descr, sql string }{"rls policy " + t.table, fmt.Sprintf(`
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = '%[1]s' AND policyname = 'tenant_isolation') THEN
    CREATE POLICY tenant_isolation ON %[1]s USING (%[2]s) WITH CHECK (%[2]s);
  END IF;
END $$`, t.table, predicate)},
		)
	}
	return out
}

// RunMigrations applies the schema and RLS policies. It must run unscoped.
func RunMigrations(db *gorm.DB) error {
	stmts := append(append([]struct{ descr, sql string }{}, schemaStatements...), rlsStatements()...)
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("migration %q: %w", s.descr, err)
		}
	}
	return nil
}
