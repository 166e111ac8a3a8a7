package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/google/uuid"
)

// --- SyncLogStore -----------------------------------------------------------

func (s *Store) AppendSyncLog(ctx context.Context, entry synclog.Entry) (synclog.Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	if entry.Origin == "" {
		entry.Origin = s.node
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_logs (id, table_name, row_id, operation, payload, origin, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.TableName, entry.RowID, string(entry.Operation), nullJSON(entry.Payload),
		entry.Origin, entry.ExecutedAt)
	if err != nil {
		return synclog.Entry{}, err
	}
	return entry, nil
}

func (s *Store) ListSyncLogs(ctx context.Context, after time.Time, limit int) ([]synclog.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, row_id, operation, payload, origin, executed_at
		FROM sync_logs
		WHERE executed_at > $1
		ORDER BY executed_at, id
		LIMIT $2
	`, after.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []synclog.Entry
	for rows.Next() {
		var (
			e       synclog.Entry
			op      string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.RowID, &op, &payload, &e.Origin, &e.ExecutedAt); err != nil {
			return nil, err
		}
		e.Operation = synclog.Operation(op)
		e.Payload = payload
		e.ExecutedAt = e.ExecutedAt.UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) CountSyncLogsAfter(ctx context.Context, after time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sync_logs WHERE executed_at > $1`, after.UTC()).Scan(&count)
	return count, err
}

func (s *Store) GetSyncState(ctx context.Context, table string, dir synclog.Direction) (synclog.State, error) {
	state := synclog.State{TableName: table, Direction: dir}
	var hwm, updated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT high_water_mark, updated_at FROM sync_state WHERE table_name = $1 AND direction = $2
	`, table, string(dir)).Scan(&hwm, &updated)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return synclog.State{}, err
	}
	state.HighWaterMark = hwm.Time.UTC()
	state.UpdatedAt = updated.Time.UTC()
	return state, nil
}

func (s *Store) ListSyncStates(ctx context.Context) ([]synclog.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, direction, high_water_mark, updated_at FROM sync_state ORDER BY table_name, direction
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []synclog.State
	for rows.Next() {
		var (
			st  synclog.State
			dir string
		)
		if err := rows.Scan(&st.TableName, &dir, &st.HighWaterMark, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Direction = synclog.Direction(dir)
		st.HighWaterMark = st.HighWaterMark.UTC()
		st.UpdatedAt = st.UpdatedAt.UTC()
		result = append(result, st)
	}
	return result, rows.Err()
}
