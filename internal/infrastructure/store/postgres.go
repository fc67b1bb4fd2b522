package store

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres establishes a connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates the schema if it does not exist.
func Migrate(db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name          TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'customer',
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			slug        TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price       DOUBLE PRECISION NOT NULL,
			stock       INTEGER NOT NULL DEFAULT 0,
			images      JSONB NOT NULL DEFAULT '[]',
			category_id TEXT REFERENCES categories(id),
			is_active   BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL REFERENCES users(id),
			items              JSONB NOT NULL,
			shipping_address   JSONB NOT NULL,
			payment_method     TEXT NOT NULL,
			payment_result     JSONB,
			items_price        DOUBLE PRECISION NOT NULL,
			tax_price          DOUBLE PRECISION NOT NULL,
			shipping_price     DOUBLE PRECISION NOT NULL,
			total_price        DOUBLE PRECISION NOT NULL,
			is_paid            BOOLEAN NOT NULL DEFAULT FALSE,
			paid_at            TIMESTAMPTZ,
			is_delivered       BOOLEAN NOT NULL DEFAULT FALSE,
			delivered_at       TIMESTAMPTZ,
			status             TEXT NOT NULL,
			tracking_number    TEXT NOT NULL DEFAULT '',
			estimated_delivery TIMESTAMPTZ,
			notes              TEXT NOT NULL DEFAULT '',
			negotiation_notes  TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
	}

	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
