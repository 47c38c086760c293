package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/eddb-ingest/internal/record"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres stores each collection in its own table with the normalized
// document as JSONB. See migrations/ for the schema.
type Postgres struct {
	db DBTX
}

// NewPostgres creates a backend over db.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) commit(ctx context.Context, col Collection, id int64, rec record.Record) error {
	columns := []string{"id", "name", "name_lower", "updated_at", "document"}
	args := []any{id, textField(rec, record.FieldName), textField(rec, record.FieldNameLower), int8Field(rec, record.FieldUpdatedAt), map[string]any(rec)}

	for _, ref := range col.RefColumns {
		columns = append(columns, ref)
		args = append(args, int8Field(rec, ref))
	}

	_, err := p.db.Exec(ctx, upsertSQL(col.Table, columns), args...)
	return err
}

func (p *Postgres) get(ctx context.Context, table string, id int64) (record.Record, bool, error) {
	var doc map[string]any
	query := fmt.Sprintf("SELECT document FROM %s WHERE id = $1", pgx.Identifier{table}.Sanitize())

	err := p.db.QueryRow(ctx, query, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return record.Record(doc), true, nil
}

func (p *Postgres) count(ctx context.Context, table string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{table}.Sanitize())
	if err := p.db.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// upsertSQL builds a full-document replace keyed by id. Every column is
// overwritten on conflict so the second write always wins.
func upsertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	var updates []string

	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}
	updates = append(updates, "ingested_at = now()")

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}

func textField(rec record.Record, field string) pgtype.Text {
	s, ok := rec[field].(string)
	return pgtype.Text{String: s, Valid: ok}
}

func int8Field(rec record.Record, field string) pgtype.Int8 {
	i, ok := rec.Int64(field)
	return pgtype.Int8{Int64: i, Valid: ok}
}
