package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store implements the storage interfaces backed by PostgreSQL. Every
// mutation writes a sync_logs entry in the same transaction so the sync
// engine can replicate deletes between nodes.
type Store struct {
	db   *sql.DB
	node string
}

var _ storage.CooperativeStore = (*Store)(nil)
var _ storage.ProgramStore = (*Store)(nil)
var _ storage.ChecklistStore = (*Store)(nil)
var _ storage.CoopProgramStore = (*Store)(nil)
var _ storage.AmortizationStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.SyncLogStore = (*Store)(nil)

// New creates a Store using the provided database handle. node is written as
// the origin of every sync log entry.
func New(db *sql.DB, node string) *Store {
	if node == "" {
		node = "local"
	}
	return &Store{db: db, node: node}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}
	return tx.Commit()
}

// appendLog records a mutation. row is marshalled as the payload; deletes pass nil.
func (s *Store) appendLog(ctx context.Context, tx *sql.Tx, table, rowID string, op synclog.Operation, row interface{}, at time.Time) error {
	var payload []byte
	if row != nil {
		var err error
		payload, err = json.Marshal(row)
		if err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_logs (id, table_name, row_id, operation, payload, origin, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), table, rowID, string(op), nullJSON(payload), s.node, at)
	return err
}

// deleteRow removes one row by id and logs the delete.
func (s *Store) deleteRow(ctx context.Context, table, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM `+pq.QuoteIdentifier(table)+` WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return s.appendLog(ctx, tx, table, id, synclog.OpDelete, nil, time.Now().UTC())
	})
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return storage.ErrDuplicate
	}
	return err
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
