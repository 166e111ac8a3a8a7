// Package dbsync replicates the synced tables between the local and the
// cloud database with last-write-wins on updated_at.
package dbsync

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/metrics"
	"github.com/coopfund/backoffice/internal/app/services/notifications"
	"github.com/coopfund/backoffice/pkg/logger"
)

var (
	// ErrOffline means one of the databases could not be reached.
	ErrOffline = errors.New("dbsync: database unreachable")
	// ErrBusy means a run is already in progress.
	ErrBusy = errors.New("dbsync: run already in progress")
)

// logTable is the sync_state key of the mutation log replay.
const logTable = "sync_logs"

// Notifier fans a message out to users by role.
type Notifier interface {
	NotifyRoles(ctx context.Context, msg notifications.Message, roles ...user.Role) (int, error)
}

// Options configures an Engine.
type Options struct {
	Node           string
	CloudNode      string
	BatchSize      int
	ConnectTimeout time.Duration
	Tables         []string
}

// TableStats counts row outcomes for one table and direction.
type TableStats struct {
	Table     string            `json:"table"`
	Direction synclog.Direction `json:"direction"`
	Inserted  int               `json:"inserted"`
	Updated   int               `json:"updated"`
	Skipped   int               `json:"skipped"`
	Deferred  int               `json:"deferred"`
	Conflicts int               `json:"conflicts"`
}

// LogStats counts mutation log replay outcomes for one direction.
type LogStats struct {
	Direction synclog.Direction `json:"direction"`
	Copied    int               `json:"copied"`
	Deleted   int               `json:"deleted"`
	Skipped   int               `json:"skipped"`
}

// Result describes one run.
type Result struct {
	SchemaHash string       `json:"schema_hash,omitempty"`
	Order      []string     `json:"order,omitempty"`
	Tables     []TableStats `json:"tables,omitempty"`
	Logs       []LogStats   `json:"logs,omitempty"`
}

// Status is the externally visible engine state.
type Status struct {
	Node           string          `json:"node"`
	Running        bool            `json:"running"`
	LastStartedAt  *time.Time      `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time      `json:"last_finished_at,omitempty"`
	LastSuccessAt  *time.Time      `json:"last_success_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	LastResult     *Result         `json:"last_result,omitempty"`
	Pending        int             `json:"pending"`
	Marks          []synclog.State `json:"marks,omitempty"`
}

type endpoint struct {
	node string
	db   *sqlx.DB
}

// Engine runs sync passes. One run at a time per engine.
type Engine struct {
	local    *sqlx.DB
	cloud    *sqlx.DB
	planner  *Planner
	notifier Notifier
	opts     Options
	log      *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	status Status
}

// New creates an engine. High-water marks live in the local database.
func New(local, cloud *sqlx.DB, planner *Planner, notifier Notifier, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("dbsync")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if planner == nil {
		planner = NewPlanner(opts.Tables, nil, log)
	}
	return &Engine{
		local:    local,
		cloud:    cloud,
		planner:  planner,
		notifier: notifier,
		opts:     opts,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		status:   Status{Node: opts.Node},
	}
}

// SetNotifier replaces the failure notifier. Call before the first run.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Run performs a synchronous sync run.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	started, ok := e.begin()
	if !ok {
		return Result{}, ErrBusy
	}
	result, err := e.run(ctx)
	e.finish(ctx, started, result, err)
	return result, err
}

// Start launches a run in the background and returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	started, ok := e.begin()
	if !ok {
		return ErrBusy
	}
	go func() {
		result, err := e.run(ctx)
		e.finish(ctx, started, result, err)
	}()
	return nil
}

// Status returns the last run state plus pending log entries and marks read
// from the local database.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	e.mu.Lock()
	st := e.status
	e.mu.Unlock()

	mark, err := e.loadMark(ctx, logTable, synclog.Push)
	if err != nil {
		return st, err
	}
	if err := e.local.GetContext(ctx, &st.Pending,
		`SELECT count(*) FROM sync_logs WHERE executed_at > $1 AND origin <> $2`,
		mark, e.opts.CloudNode); err != nil {
		return st, err
	}
	metrics.SetSyncPending(st.Pending)

	rows, err := e.local.QueryxContext(ctx,
		`SELECT table_name, direction, high_water_mark, updated_at FROM sync_state ORDER BY table_name, direction`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m   synclog.State
			dir string
		)
		if err := rows.Scan(&m.TableName, &dir, &m.HighWaterMark, &m.UpdatedAt); err != nil {
			return st, err
		}
		m.Direction = synclog.Direction(dir)
		st.Marks = append(st.Marks, m)
	}
	return st, rows.Err()
}

func (e *Engine) begin() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Running {
		return time.Time{}, false
	}
	now := e.now()
	e.status.Running = true
	e.status.LastStartedAt = &now
	return now, true
}

func (e *Engine) finish(ctx context.Context, started time.Time, result Result, err error) {
	finished := e.now()
	e.mu.Lock()
	e.status.Running = false
	e.status.LastFinishedAt = &finished
	e.status.LastResult = &result
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	} else {
		e.status.LastSuccessAt = &finished
	}
	e.mu.Unlock()

	for _, t := range result.Tables {
		metrics.RecordSyncRows(string(t.Direction), t.Table, "inserted", t.Inserted)
		metrics.RecordSyncRows(string(t.Direction), t.Table, "updated", t.Updated)
		metrics.RecordSyncRows(string(t.Direction), t.Table, "skipped", t.Skipped)
	}
	for _, l := range result.Logs {
		metrics.RecordSyncRows(string(l.Direction), logTable, "deleted", l.Deleted)
	}

	entry := e.log.WithField("duration", finished.Sub(started).String())
	if err == nil {
		metrics.RecordSyncSuccess(finished)
		entry.Info("sync run finished")
		return
	}
	entry.WithError(err).Error("sync run failed")
	e.notifyFailure(ctx, finished, err)
}

func (e *Engine) notifyFailure(ctx context.Context, at time.Time, runErr error) {
	title := "Database sync failed"
	if errors.Is(runErr, ErrOffline) {
		title = "Database sync failed: cloud unreachable"
	}
	e.notifyAdmins(ctx, title, runErr.Error(), "sync:"+at.Format("2006-01-02"))
}

// notifyAdmins sends a sync_failed notice to every admin. Delivery errors are
// logged only.
func (e *Engine) notifyAdmins(ctx context.Context, title, body, reference string) {
	if e.notifier == nil {
		return
	}
	msg := notifications.Message{
		Kind:      notification.KindSyncFailed,
		Title:     title,
		Body:      body,
		Reference: reference,
	}
	// The run context may already be cancelled.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := e.notifier.NotifyRoles(nctx, msg, user.RoleAdmin); err != nil {
		e.log.WithError(err).Warn("sync failure notification failed")
	}
}

func (e *Engine) run(ctx context.Context) (Result, error) {
	var result Result
	if err := e.ping(ctx); err != nil {
		return result, err
	}

	plan, err := e.planner.Plan(ctx, e.local, e.cloud)
	if err != nil {
		return result, classify(err)
	}
	result.SchemaHash = plan.Hash
	result.Order = plan.Order

	local := endpoint{node: e.opts.Node, db: e.local}
	cloud := endpoint{node: e.opts.CloudNode, db: e.cloud}
	legs := []struct {
		dir      synclog.Direction
		src, dst endpoint
	}{
		{synclog.Push, local, cloud},
		{synclog.Pull, cloud, local},
	}
	for _, leg := range legs {
		for _, table := range plan.Order {
			stats, err := e.syncTable(ctx, leg.dir, leg.src, leg.dst, table)
			result.Tables = append(result.Tables, stats)
			if err != nil {
				return result, classify(fmt.Errorf("%s %s: %w", leg.dir, table, err))
			}
		}
		stats, err := e.replayLog(ctx, leg.dir, leg.src, leg.dst, plan.Order)
		result.Logs = append(result.Logs, stats)
		if err != nil {
			return result, classify(fmt.Errorf("%s %s: %w", leg.dir, logTable, err))
		}
	}
	return result, nil
}

func (e *Engine) ping(ctx context.Context) error {
	for _, ep := range []struct {
		name string
		db   *sqlx.DB
	}{{"local", e.local}, {"cloud", e.cloud}} {
		pctx, cancel := context.WithTimeout(ctx, e.opts.ConnectTimeout)
		err := ep.db.PingContext(pctx)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrOffline, ep.name, err)
		}
	}
	return nil
}

func (e *Engine) loadMark(ctx context.Context, table string, dir synclog.Direction) (time.Time, error) {
	var mark time.Time
	err := e.local.GetContext(ctx, &mark,
		`SELECT high_water_mark FROM sync_state WHERE table_name = $1 AND direction = $2`, table, string(dir))
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return mark.UTC(), err
}

func (e *Engine) saveMark(ctx context.Context, table string, dir synclog.Direction, mark time.Time) error {
	_, err := e.local.ExecContext(ctx, `
		INSERT INTO sync_state (table_name, direction, high_water_mark, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (table_name, direction)
		DO UPDATE SET high_water_mark = EXCLUDED.high_water_mark, updated_at = EXCLUDED.updated_at
	`, table, string(dir), mark, e.now())
	return err
}

// classify marks connectivity failures with ErrOffline.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrOffline) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	return err
}
