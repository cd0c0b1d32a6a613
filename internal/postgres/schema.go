package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is idempotent; Migrate can run on every start.
// Stock is never a column: availability is always COUNT(*) over credentials.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS packages (
	product_id TEXT NOT NULL REFERENCES products(id),
	id         TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	price      BIGINT NOT NULL CHECK (price > 0),
	archived   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (product_id, id)
);

CREATE TABLE IF NOT EXISTS credentials (
	id           BIGSERIAL PRIMARY KEY,
	product_id   TEXT NOT NULL,
	package_id   TEXT NOT NULL,
	secret       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'available'
	             CHECK (status IN ('available','reserved','delivered')),
	holder_id    TEXT,
	sold_price   BIGINT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	reserved_at  TIMESTAMPTZ,
	delivered_at TIMESTAMPTZ,
	FOREIGN KEY (product_id, package_id) REFERENCES packages(product_id, id)
);
ALTER TABLE credentials ADD COLUMN IF NOT EXISTS sold_price BIGINT;
CREATE INDEX IF NOT EXISTS credentials_pool_idx ON credentials(product_id, package_id, status, id);

CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	product_id    TEXT NOT NULL DEFAULT '',
	package_id    TEXT NOT NULL DEFAULT '',
	price         BIGINT NOT NULL DEFAULT 0,
	credential_id BIGINT REFERENCES credentials(id),
	state         TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	proof_ref     TEXT NOT NULL DEFAULT '',
	settled       BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ,
	resolved_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS orders_state_idx ON orders(state, expires_at);
CREATE INDEX IF NOT EXISTS orders_user_idx ON orders(user_id, created_at);
`

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
