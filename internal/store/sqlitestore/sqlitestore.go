// Package sqlitestore provides an embedded SQLite implementation of store.Store
// for single node deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/store"
)

var tracer = otel.Tracer("github.com/linnemanlabs/cbwatch/internal/store/sqlitestore")

//go:embed schema.sql
var schema string

// Store persists broadcasts in a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"journal_mode(WAL)", "busy_timeout(5000)"},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; WAL keeps readers unblocked
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const broadcastColumns = `id, format, message_identifier, serial, language, body, delivery_unix_nano, read,
	etws_warning_type, etws_user_alert, etws_popup, cdma_severity, cdma_urgency, cdma_certainty, cdma_priority`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
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
	ctx, span := startSpan(ctx, "sqlitestore.Insert", "INSERT")
	defer span.End()

	r := store.RecordFrom(msg)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcasts (`+broadcastColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Format, r.MessageIdentifier, r.Serial, r.Language, r.Body, r.DeliveryTime.UnixNano(), r.Read,
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
	ctx, span := startSpan(ctx, "sqlitestore.Get", "SELECT")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`, id)
	m, err := scanBroadcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, err)
	}
	return m, true, nil
}

// List returns up to limit broadcasts, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*broadcast.Message, error) {
	ctx, span := startSpan(ctx, "sqlitestore.List", "SELECT")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+broadcastColumns+` FROM broadcasts ORDER BY delivery_unix_nano DESC, id DESC LIMIT ?`,
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
	ctx, span := startSpan(ctx, "sqlitestore.MarkRead", "UPDATE")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `UPDATE broadcasts SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fail(span, fmt.Errorf("mark read: %w", err))
	}
	return affected(res)
}

// Delete removes a broadcast.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Delete", "DELETE")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM broadcasts WHERE id = ?`, id)
	if err != nil {
		return false, fail(span, fmt.Errorf("delete broadcast: %w", err))
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanBroadcast scans one row. sql.ErrNoRows is returned unwrapped.
func scanBroadcast(row scanner) (*broadcast.Message, error) {
	var (
		r        store.Record
		unixNano int64
	)
	err := row.Scan(
		&r.ID, &r.Format, &r.MessageIdentifier, &r.Serial, &r.Language, &r.Body, &unixNano, &r.Read,
		&r.EtwsWarningType, &r.EtwsUserAlert, &r.EtwsPopup,
		&r.CdmaSeverity, &r.CdmaUrgency, &r.CdmaCertainty, &r.CdmaPriority,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	r.DeliveryTime = time.Unix(0, unixNano)

	m, err := r.Message()
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", r.ID, err)
	}
	return m, nil
}

var _ store.Store = (*Store)(nil)
