package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/irfndi/celebrum-arb-go/internal/telemetry"
)

// TracedPool wraps a DatabasePool with one span per statement.
type TracedPool struct {
	pool DatabasePool
}

func NewTracedPool(pool DatabasePool) *TracedPool {
	return &TracedPool{pool: pool}
}

func (db *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := telemetry.StartSpan(ctx, "db.query_row", statementAttrs(sql)...)
	defer span.End()
	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := telemetry.StartSpan(ctx, "db.exec", statementAttrs(sql)...)
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	telemetry.EndSpan(span, err)
	return tag, err
}

func (db *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := telemetry.StartSpan(ctx, "db.query", statementAttrs(sql)...)
	rows, err := db.pool.Query(ctx, sql, args...)
	telemetry.EndSpan(span, err)
	return rows, err
}

func statementAttrs(sql string) []attribute.KeyValue {
	op := sql
	if i := strings.IndexByte(strings.TrimSpace(sql), ' '); i > 0 {
		op = strings.TrimSpace(sql)[:i]
	}
	return []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("db.query.text", sql),
		attribute.String("db.operation.name", strings.ToUpper(op)),
	}
}
