package dbsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coopfund/backoffice/internal/app/domain/synclog"
)

type outcome int

const (
	skipped outcome = iota
	inserted
	updated
)

// row is one source row with its columns in a stable order.
type row struct {
	id        string
	updatedAt time.Time
	columns   []string
	values    []interface{}
}

func (e *Engine) syncTable(ctx context.Context, dir synclog.Direction, src, dst endpoint, table string) (TableStats, error) {
	stats := TableStats{Table: table, Direction: dir}
	mark, err := e.loadMark(ctx, table, dir)
	if err != nil {
		return stats, err
	}

	var (
		cursor   = mark
		lastID   string
		deferred []row
	)
	for {
		batch, err := readRows(ctx, src.db, table, cursor, lastID, e.opts.BatchSize)
		if err != nil {
			return stats, err
		}
		for _, r := range batch {
			out, err := applyRow(ctx, dst.db, table, r)
			if isForeignKeyViolation(err) {
				deferred = append(deferred, r)
				stats.Deferred++
				continue
			}
			if isUniqueViolation(err) {
				stats.Conflicts++
				e.reportConflict(ctx, dir, table, r, err)
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("row %s: %w", r.id, err)
			}
			stats.count(out)
		}
		if len(batch) > 0 {
			last := batch[len(batch)-1]
			cursor, lastID = last.updatedAt, last.id
			// A deferred row pins the mark until it has been applied.
			if len(deferred) == 0 {
				if err := e.saveMark(ctx, table, dir, cursor); err != nil {
					return stats, err
				}
			}
		}
		if len(batch) < e.opts.BatchSize {
			break
		}
	}

	if len(deferred) == 0 {
		return stats, nil
	}
	// Rows referencing rows of the same table that came later in the pass.
	for _, r := range deferred {
		out, err := applyRow(ctx, dst.db, table, r)
		if isUniqueViolation(err) {
			stats.Conflicts++
			e.reportConflict(ctx, dir, table, r, err)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("row %s: %w", r.id, err)
		}
		stats.count(out)
	}
	return stats, e.saveMark(ctx, table, dir, cursor)
}

// reportConflict records a row the destination rejected on a unique key other
// than id. The row is left out of the run; the mark still moves past it.
func (e *Engine) reportConflict(ctx context.Context, dir synclog.Direction, table string, r row, err error) {
	e.log.WithField("table", table).
		WithField("direction", string(dir)).
		WithField("row_id", r.id).
		WithError(err).
		Warn("sync row conflicts with an existing row")
	e.notifyAdmins(ctx,
		fmt.Sprintf("Database sync skipped a conflicting %s row", table),
		fmt.Sprintf("%s %s row %s: %v", dir, table, r.id, err),
		"sync-conflict:"+table+":"+r.id)
}

func (s *TableStats) count(out outcome) {
	switch out {
	case inserted:
		s.Inserted++
	case updated:
		s.Updated++
	default:
		s.Skipped++
	}
}

// readRows pages through rows changed after the mark, ordered by
// (updated_at, id). lastID continues a page boundary within one run.
func readRows(ctx context.Context, db *sqlx.DB, table string, after time.Time, lastID string, limit int) ([]row, error) {
	qt := pq.QuoteIdentifier(table)
	query := fmt.Sprintf(`SELECT * FROM %s WHERE updated_at > $1 ORDER BY updated_at, id LIMIT $2`, qt)
	args := []interface{}{after, limit}
	if lastID != "" {
		query = fmt.Sprintf(`SELECT * FROM %s WHERE (updated_at, id) > ($1, $2) ORDER BY updated_at, id LIMIT $3`, qt)
		args = []interface{}{after, lastID, limit}
	}

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []row
	for rows.Next() {
		values := make(map[string]interface{})
		if err := rows.MapScan(values); err != nil {
			return nil, err
		}
		r, err := toRow(values)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func toRow(values map[string]interface{}) (row, error) {
	var r row
	for name := range values {
		r.columns = append(r.columns, name)
	}
	sort.Strings(r.columns)
	r.values = make([]interface{}, len(r.columns))
	for i, name := range r.columns {
		v := values[name]
		// lib/pq sends []byte parameters as bytea; no synced column is bytea.
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		r.values[i] = v
	}

	switch id := values["id"].(type) {
	case string:
		r.id = id
	case []byte:
		r.id = string(id)
	default:
		return row{}, fmt.Errorf("row has no text id")
	}
	ts, ok := values["updated_at"].(time.Time)
	if !ok {
		return row{}, fmt.Errorf("row %s has no updated_at", r.id)
	}
	r.updatedAt = ts.UTC()
	return r, nil
}

// applyRow writes r to the destination: insert when missing, update when
// strictly newer, skip otherwise.
func applyRow(ctx context.Context, db *sqlx.DB, table string, r row) (outcome, error) {
	qt := pq.QuoteIdentifier(table)
	var current time.Time
	err := db.QueryRowxContext(ctx, fmt.Sprintf(`SELECT updated_at FROM %s WHERE id = $1`, qt), r.id).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return insertRow(ctx, db, qt, r)
	case err != nil:
		return skipped, err
	}
	if !r.updatedAt.After(current) {
		return skipped, nil
	}
	return updateRow(ctx, db, qt, r)
}

func insertRow(ctx context.Context, db *sqlx.DB, qt string, r row) (outcome, error) {
	cols := make([]string, len(r.columns))
	params := make([]string, len(r.columns))
	for i, c := range r.columns {
		cols[i] = pq.QuoteIdentifier(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING`,
		qt, strings.Join(cols, ", "), strings.Join(params, ", "))
	res, err := db.ExecContext(ctx, query, r.values...)
	if err != nil {
		return skipped, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return skipped, nil
	}
	return inserted, nil
}

func updateRow(ctx context.Context, db *sqlx.DB, qt string, r row) (outcome, error) {
	var (
		sets []string
		args []interface{}
	)
	for i, c := range r.columns {
		if c == "id" {
			continue
		}
		args = append(args, r.values[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c), len(args)))
	}
	args = append(args, r.id, r.updatedAt)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND updated_at < $%d`,
		qt, strings.Join(sets, ", "), len(args)-1, len(args))
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return skipped, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return skipped, nil
	}
	return updated, nil
}

// replayLog copies the source mutation log to the destination and applies
// its deletes. Entries that originated on the destination are never sent
// back.
func (e *Engine) replayLog(ctx context.Context, dir synclog.Direction, src, dst endpoint, order []string) (LogStats, error) {
	stats := LogStats{Direction: dir}
	mark, err := e.loadMark(ctx, logTable, dir)
	if err != nil {
		return stats, err
	}

	rank := make(map[string]int, len(order))
	for i, t := range order {
		rank[t] = i
	}

	var (
		cursor = mark
		lastID string
	)
	for {
		entries, err := readLog(ctx, src.db, cursor, lastID, dst.node, e.opts.BatchSize)
		if err != nil {
			return stats, err
		}

		var deletes []synclog.Entry
		for _, entry := range entries {
			if err := copyLogEntry(ctx, dst.db, entry); err != nil {
				return stats, fmt.Errorf("copy %s: %w", entry.ID, err)
			}
			stats.Copied++
			if _, synced := rank[entry.TableName]; synced && entry.Operation == synclog.OpDelete {
				deletes = append(deletes, entry)
			}
		}

		// Children before parents.
		sort.SliceStable(deletes, func(i, j int) bool {
			return rank[deletes[i].TableName] > rank[deletes[j].TableName]
		})
		for _, entry := range deletes {
			done, err := applyDelete(ctx, dst.db, entry)
			if err != nil {
				return stats, fmt.Errorf("delete %s %s: %w", entry.TableName, entry.RowID, err)
			}
			if done {
				stats.Deleted++
			} else {
				stats.Skipped++
			}
		}

		if len(entries) > 0 {
			last := entries[len(entries)-1]
			cursor, lastID = last.ExecutedAt, last.ID
			if err := e.saveMark(ctx, logTable, dir, cursor); err != nil {
				return stats, err
			}
		}
		if len(entries) < e.opts.BatchSize {
			return stats, nil
		}
	}
}

func readLog(ctx context.Context, db *sqlx.DB, after time.Time, lastID, excludeOrigin string, limit int) ([]synclog.Entry, error) {
	query := `
		SELECT id, table_name, row_id, operation, payload, origin, executed_at
		FROM sync_logs
		WHERE executed_at > $1 AND origin <> $2
		ORDER BY executed_at, id
		LIMIT $3`
	args := []interface{}{after, excludeOrigin, limit}
	if lastID != "" {
		query = `
		SELECT id, table_name, row_id, operation, payload, origin, executed_at
		FROM sync_logs
		WHERE (executed_at, id) > ($1, $2) AND origin <> $3
		ORDER BY executed_at, id
		LIMIT $4`
		args = []interface{}{after, lastID, excludeOrigin, limit}
	}

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []synclog.Entry
	for rows.Next() {
		var (
			entry   synclog.Entry
			op      string
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TableName, &entry.RowID, &op, &payload, &entry.Origin, &entry.ExecutedAt); err != nil {
			return nil, err
		}
		entry.Operation = synclog.Operation(op)
		entry.Payload = json.RawMessage(payload)
		entry.ExecutedAt = entry.ExecutedAt.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}

func copyLogEntry(ctx context.Context, db *sqlx.DB, entry synclog.Entry) error {
	var payload interface{}
	if len(entry.Payload) > 0 {
		payload = string(entry.Payload)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_logs (id, table_name, row_id, operation, payload, origin, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.TableName, entry.RowID, string(entry.Operation), payload, entry.Origin, entry.ExecutedAt)
	return err
}

// applyDelete removes the destination row when the delete happened after the
// row's last update. A row still referenced by newer children is kept.
func applyDelete(ctx context.Context, db *sqlx.DB, entry synclog.Entry) (bool, error) {
	qt := pq.QuoteIdentifier(entry.TableName)
	var current time.Time
	err := db.QueryRowxContext(ctx, fmt.Sprintf(`SELECT updated_at FROM %s WHERE id = $1`, qt), entry.RowID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !entry.ExecutedAt.After(current) {
		return false, nil
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND updated_at < $2`, qt), entry.RowID, entry.ExecutedAt)
	if isForeignKeyViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
