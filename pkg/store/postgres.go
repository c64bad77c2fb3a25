package store

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

// PostgresStore implements Storage on PostgreSQL through lib/pq.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects to PostgreSQL and makes sure the schema exists.
func NewPostgresStore(conn string, log *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := NewPostgresStoreFromDB(db)
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info("PostgreSQL store ready")
	return s, nil
}

// NewPostgresStoreFromDB wraps an already opened connection. The schema is
// assumed to exist.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore{db: db, rebind: bindDollar, viewIsolation: sql.LevelRepeatableRead}}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS customers (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_customers_owner ON customers(owner_id);
CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
	loan_amount BIGINT NOT NULL CHECK (loan_amount > 0),
	interest_rate NUMERIC NOT NULL CHECK (interest_rate >= 0),
	origination_date TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	loan_id UUID NOT NULL REFERENCES loans(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	occurred_on TIMESTAMPTZ NOT NULL
);
`
