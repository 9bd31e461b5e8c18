// Package pgstore provides a PostgreSQL implementation of store.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/postgres"
	"github.com/linnemanlabs/cbwatch/internal/store"
)

var tracer = otel.Tracer("github.com/linnemanlabs/cbwatch/internal/store/pgstore")

//go:embed schema.sql
var schema string

// Store persists broadcasts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The Store takes ownership of pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(postgres.WithOp(ctx, "apply_schema"), schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const broadcastColumns = `id, format, message_identifier, serial, language, body, delivery_time, read,
	etws_warning_type, etws_user_alert, etws_popup, cdma_severity, cdma_urgency, cdma_certainty, cdma_priority`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Insert stores msg. Inserting an ID that already exists is a no-op.
func (s *Store) Insert(ctx context.Context, msg *broadcast.Message) error {
	ctx, span := startSpan(ctx, "pgstore.Insert", "INSERT")
	defer span.End()

	r := store.RecordFrom(msg)
	_, err := s.pool.Exec(postgres.WithOp(ctx, "insert_broadcast"),
		`INSERT INTO broadcasts (`+broadcastColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Format, r.MessageIdentifier, r.Serial, r.Language, r.Body, r.DeliveryTime, r.Read,
		r.EtwsWarningType, r.EtwsUserAlert, r.EtwsPopup,
		r.CdmaSeverity, r.CdmaUrgency, r.CdmaCertainty, r.CdmaPriority,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert broadcast: %w", err))
	}
	return nil
}

// Get retrieves a broadcast by ID.
func (s *Store) Get(ctx context.Context, id string) (*broadcast.Message, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	row := s.pool.QueryRow(postgres.WithOp(ctx, "get_broadcast"),
		`SELECT `+broadcastColumns+` FROM broadcasts WHERE id = $1`, id)
	m, err := scanBroadcast(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, err)
	}
	return m, true, nil
}

// List returns up to limit broadcasts, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*broadcast.Message, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(postgres.WithOp(ctx, "list_broadcasts"),
		`SELECT `+broadcastColumns+` FROM broadcasts ORDER BY delivery_time DESC, id DESC LIMIT $1`,
		store.ClampLimit(limit))
	if err != nil {
		return nil, fail(span, fmt.Errorf("query broadcasts: %w", err))
	}
	defer rows.Close()

	var out []*broadcast.Message
	for rows.Next() {
		m, err := scanBroadcast(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate broadcasts: %w", err))
	}
	return out, nil
}

// MarkRead flags a broadcast as read.
func (s *Store) MarkRead(ctx context.Context, id string) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.MarkRead", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(postgres.WithOp(ctx, "mark_read"), `UPDATE broadcasts SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return false, fail(span, fmt.Errorf("mark read: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a broadcast.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Delete", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(postgres.WithOp(ctx, "delete_broadcast"), `DELETE FROM broadcasts WHERE id = $1`, id)
	if err != nil {
		return false, fail(span, fmt.Errorf("delete broadcast: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

// scanBroadcast scans one row. pgx.ErrNoRows is returned unwrapped.
func scanBroadcast(row pgx.Row) (*broadcast.Message, error) {
	var r store.Record
	err := row.Scan(
		&r.ID, &r.Format, &r.MessageIdentifier, &r.Serial, &r.Language, &r.Body, &r.DeliveryTime, &r.Read,
		&r.EtwsWarningType, &r.EtwsUserAlert, &r.EtwsPopup,
		&r.CdmaSeverity, &r.CdmaUrgency, &r.CdmaCertainty, &r.CdmaPriority,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	m, err := r.Message()
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", r.ID, err)
	}
	return m, nil
}

var _ store.Store = (*Store)(nil)
