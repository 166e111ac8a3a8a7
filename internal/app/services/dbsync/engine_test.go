package dbsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/services/notifications"
	"github.com/coopfund/backoffice/pkg/logger"
)

type recordingNotifier struct {
	messages []notifications.Message
	roles    [][]user.Role
}

func (n *recordingNotifier) NotifyRoles(_ context.Context, msg notifications.Message, roles ...user.Role) (int, error) {
	n.messages = append(n.messages, msg)
	n.roles = append(n.roles, roles)
	return 1, nil
}

var testOptions = Options{Node: "local", CloudNode: "cloud", BatchSize: 10, ConnectTimeout: time.Second, Tables: []string{"members"}}

func expectNoMark(mock sqlmock.Sqlmock, table, dir string) {
	mock.ExpectQuery(`SELECT high_water_mark FROM sync_state`).
		WithArgs(table, dir).
		WillReturnRows(sqlmock.NewRows([]string{"high_water_mark"}))
}

func expectMemberSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`FROM information_schema.columns`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
			AddRow("members", "id", "text").
			AddRow("members", "name", "text").
			AddRow("members", "updated_at", "timestamp with time zone"))
	mock.ExpectQuery(`FROM information_schema.table_constraints`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "referenced_table"}))
}

var logColumns = []string{"id", "table_name", "row_id", "operation", "payload", "origin", "executed_at"}

func TestRunPushesNewRows(t *testing.T) {
	local, localMock := newMockDB(t, false)
	cloud, cloudMock := newMockDB(t, false)
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	expectMemberSchema(localMock)
	expectMemberSchema(cloudMock)

	// push members
	expectNoMark(localMock, "members", "push")
	localMock.ExpectQuery(`SELECT \* FROM "members" WHERE updated_at > \$1 ORDER BY updated_at, id LIMIT \$2`).
		WithArgs(time.Time{}, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "updated_at"}).AddRow("m1", "Ana", ts))
	cloudMock.ExpectQuery(`SELECT updated_at FROM "members" WHERE id = \$1`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	cloudMock.ExpectExec(`INSERT INTO "members" \("id", "name", "updated_at"\) VALUES \(\$1, \$2, \$3\) ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("m1", "Ana", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	localMock.ExpectExec(`INSERT INTO sync_state`).
		WithArgs("members", "push", ts, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// push log
	expectNoMark(localMock, "sync_logs", "push")
	localMock.ExpectQuery(`FROM sync_logs\s+WHERE executed_at > \$1 AND origin <> \$2`).
		WithArgs(time.Time{}, "cloud", 10).
		WillReturnRows(sqlmock.NewRows(logColumns))

	// pull members
	expectNoMark(localMock, "members", "pull")
	cloudMock.ExpectQuery(`SELECT \* FROM "members"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "updated_at"}))

	// pull log
	expectNoMark(localMock, "sync_logs", "pull")
	cloudMock.ExpectQuery(`FROM sync_logs`).
		WithArgs(time.Time{}, "local", 10).
		WillReturnRows(sqlmock.NewRows(logColumns))

	engine := New(local, cloud, nil, nil, testOptions, logger.Discard())
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"members"}, result.Order)
	require.Len(t, result.Tables, 2)
	assert.Equal(t, TableStats{Table: "members", Direction: synclog.Push, Inserted: 1}, result.Tables[0])
	assert.Equal(t, TableStats{Table: "members", Direction: synclog.Pull}, result.Tables[1])
	assert.Len(t, result.Logs, 2)

	require.NoError(t, localMock.ExpectationsWereMet())
	require.NoError(t, cloudMock.ExpectationsWereMet())

	assert.False(t, engine.status.Running)
	assert.NotNil(t, engine.status.LastSuccessAt)
	assert.Empty(t, engine.status.LastError)
}

func TestRunOfflineNotifiesAdmins(t *testing.T) {
	local, localMock := newMockDB(t, true)
	cloud, cloudMock := newMockDB(t, true)
	localMock.ExpectPing()
	cloudMock.ExpectPing().WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))

	notifier := &recordingNotifier{}
	engine := New(local, cloud, nil, notifier, testOptions, logger.Discard())

	_, err := engine.Run(context.Background())
	require.ErrorIs(t, err, ErrOffline)
	assert.Contains(t, err.Error(), "cloud")

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, notification.KindSyncFailed, notifier.messages[0].Kind)
	assert.Equal(t, []user.Role{user.RoleAdmin}, notifier.roles[0])

	// Status reports the failure and pending log entries.
	expectNoMark(localMock, "sync_logs", "push")
	localMock.ExpectQuery(`SELECT count\(\*\) FROM sync_logs`).
		WithArgs(time.Time{}, "cloud").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	localMock.ExpectQuery(`FROM sync_state ORDER BY table_name, direction`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "direction", "high_water_mark", "updated_at"}).
			AddRow("members", "push", time.Unix(0, 0).UTC(), time.Unix(0, 0).UTC()))

	st, err := engine.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.Pending)
	assert.Contains(t, st.LastError, "unreachable")
	assert.Nil(t, st.LastSuccessAt)
	require.Len(t, st.Marks, 1)
	assert.Equal(t, synclog.Push, st.Marks[0].Direction)
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	local, _ := newMockDB(t, false)
	cloud, _ := newMockDB(t, false)
	engine := New(local, cloud, nil, nil, testOptions, logger.Discard())
	engine.status.Running = true

	_, err := engine.Run(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, engine.Start(context.Background()), ErrBusy)
}

func TestApplyRowLastWriteWins(t *testing.T) {
	db, mock := newMockDB(t, false)
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	r := row{id: "m1", updatedAt: ts, columns: []string{"id", "name", "updated_at"}, values: []interface{}{"m1", "Ana", ts}}
	ctx := context.Background()

	// Equal timestamps are skipped.
	mock.ExpectQuery(`SELECT updated_at FROM "members"`).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(ts))
	out, err := applyRow(ctx, db, "members", r)
	require.NoError(t, err)
	assert.Equal(t, skipped, out)

	// Newer source updates every column but id.
	mock.ExpectQuery(`SELECT updated_at FROM "members"`).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(ts.Add(-time.Minute)))
	mock.ExpectExec(`UPDATE "members" SET "name" = \$1, "updated_at" = \$2 WHERE id = \$3 AND updated_at < \$4`).
		WithArgs("Ana", ts, "m1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	out, err = applyRow(ctx, db, "members", r)
	require.NoError(t, err)
	assert.Equal(t, updated, out)

	// Older source is skipped.
	mock.ExpectQuery(`SELECT updated_at FROM "members"`).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(ts.Add(time.Minute)))
	out, err = applyRow(ctx, db, "members", r)
	require.NoError(t, err)
	assert.Equal(t, skipped, out)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncTableRetriesForeignKeyViolations(t *testing.T) {
	local, localMock := newMockDB(t, false)
	cloud, cloudMock := newMockDB(t, false)
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "parent_id", "updated_at"}

	expectNoMark(localMock, "cooperatives", "push")
	localMock.ExpectQuery(`SELECT \* FROM "cooperatives"`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("child", "parent", ts).
			AddRow("parent", nil, ts.Add(time.Second)))

	cloudMock.ExpectQuery(`SELECT updated_at FROM "cooperatives"`).WithArgs("child").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	cloudMock.ExpectExec(`INSERT INTO "cooperatives"`).WithArgs("child", "parent", ts).
		WillReturnError(&pq.Error{Code: "23503"})
	cloudMock.ExpectQuery(`SELECT updated_at FROM "cooperatives"`).WithArgs("parent").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	cloudMock.ExpectExec(`INSERT INTO "cooperatives"`).WithArgs("parent", nil, ts.Add(time.Second)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// retry
	cloudMock.ExpectQuery(`SELECT updated_at FROM "cooperatives"`).WithArgs("child").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	cloudMock.ExpectExec(`INSERT INTO "cooperatives"`).WithArgs("child", "parent", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	localMock.ExpectExec(`INSERT INTO sync_state`).
		WithArgs("cooperatives", "push", ts.Add(time.Second), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	engine := New(local, cloud, nil, nil, testOptions, logger.Discard())
	stats, err := engine.syncTable(context.Background(), synclog.Push,
		endpoint{node: "local", db: local}, endpoint{node: "cloud", db: cloud}, "cooperatives")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.Deferred)

	require.NoError(t, localMock.ExpectationsWereMet())
	require.NoError(t, cloudMock.ExpectationsWereMet())
}

func TestSyncTableSkipsUniqueConflicts(t *testing.T) {
	local, localMock := newMockDB(t, false)
	cloud, cloudMock := newMockDB(t, false)
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "registration_no", "updated_at"}

	expectNoMark(localMock, "cooperatives", "push")
	localMock.ExpectQuery(`SELECT \* FROM "cooperatives"`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("dup", "REG-1", ts).
			AddRow("fresh", "REG-2", ts.Add(time.Second)))

	cloudMock.ExpectQuery(`SELECT updated_at FROM "cooperatives"`).WithArgs("dup").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	cloudMock.ExpectExec(`INSERT INTO "cooperatives"`).WithArgs("dup", "REG-1", ts).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "cooperatives_registration_no_key"})
	cloudMock.ExpectQuery(`SELECT updated_at FROM "cooperatives"`).WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	cloudMock.ExpectExec(`INSERT INTO "cooperatives"`).WithArgs("fresh", "REG-2", ts.Add(time.Second)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	localMock.ExpectExec(`INSERT INTO sync_state`).
		WithArgs("cooperatives", "push", ts.Add(time.Second), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	notifier := &recordingNotifier{}
	engine := New(local, cloud, nil, notifier, testOptions, logger.Discard())
	stats, err := engine.syncTable(context.Background(), synclog.Push,
		endpoint{node: "local", db: local}, endpoint{node: "cloud", db: cloud}, "cooperatives")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Conflicts)

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, notification.KindSyncFailed, notifier.messages[0].Kind)
	assert.Contains(t, notifier.messages[0].Body, "dup")
	assert.Equal(t, "sync-conflict:cooperatives:dup", notifier.messages[0].Reference)
	assert.Equal(t, []user.Role{user.RoleAdmin}, notifier.roles[0])

	require.NoError(t, localMock.ExpectationsWereMet())
	require.NoError(t, cloudMock.ExpectationsWereMet())
}

func TestReplayLogAppliesNewerDeletes(t *testing.T) {
	local, localMock := newMockDB(t, false)
	cloud, cloudMock := newMockDB(t, false)
	deletedAt := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	expectNoMark(localMock, "sync_logs", "push")
	localMock.ExpectQuery(`FROM sync_logs`).
		WithArgs(time.Time{}, "cloud", 10).
		WillReturnRows(sqlmock.NewRows(logColumns).
			AddRow("l1", "cooperatives", "c1", "delete", nil, "local", deletedAt).
			AddRow("l2", "members", "m1", "delete", nil, "local", deletedAt))

	cloudMock.ExpectExec(`INSERT INTO sync_logs`).WithArgs("l1", "cooperatives", "c1", "delete", nil, "local", deletedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	cloudMock.ExpectExec(`INSERT INTO sync_logs`).WithArgs("l2", "members", "m1", "delete", nil, "local", deletedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// members before cooperatives
	cloudMock.ExpectQuery(`SELECT updated_at FROM "members"`).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(deletedAt.Add(-time.Hour)))
	cloudMock.ExpectExec(`DELETE FROM "members" WHERE id = \$1 AND updated_at < \$2`).WithArgs("m1", deletedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// cooperative edited on the cloud after the local delete survives
	cloudMock.ExpectQuery(`SELECT updated_at FROM "cooperatives"`).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(deletedAt.Add(time.Hour)))

	localMock.ExpectExec(`INSERT INTO sync_state`).
		WithArgs("sync_logs", "push", deletedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	engine := New(local, cloud, nil, nil, testOptions, logger.Discard())
	stats, err := engine.replayLog(context.Background(), synclog.Push,
		endpoint{node: "local", db: local}, endpoint{node: "cloud", db: cloud},
		[]string{"cooperatives", "members"})
	require.NoError(t, err)
	assert.Equal(t, LogStats{Direction: synclog.Push, Copied: 2, Deleted: 1, Skipped: 1}, stats)

	require.NoError(t, localMock.ExpectationsWereMet())
	require.NoError(t, cloudMock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(context.DeadlineExceeded), ErrOffline)
	plain := errors.New("syntax error")
	assert.Equal(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}
