package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path             TEXT PRIMARY KEY,
	parent           TEXT NOT NULL,
	collection_group TEXT NOT NULL,
	fields           JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_parent_idx ON documents (parent);
CREATE INDEX IF NOT EXISTS documents_group_idx ON documents (collection_group);
CREATE INDEX IF NOT EXISTS documents_fields_idx ON documents USING GIN (fields jsonb_path_ops);
`

// Open abre un pool a Postgres usando pgx (database/sql) envuelto en sqlx.
// Con tracing, las queries quedan instrumentadas por X-Ray.
func Open(dsn string, tracing bool) (*sqlx.DB, error) {
	var (
		raw *sql.DB
		err error
	)
	if tracing {
		raw, err = xray.SQLContext("pgx", dsn)
	} else {
		raw, err = sql.Open("pgx", dsn)
	}
	if err != nil {
		return nil, err
	}
	db := sqlx.NewDb(raw, "pgx")

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate crea la tabla de documentos si no existe.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
