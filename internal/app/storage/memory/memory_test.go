package memory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/checklist"
	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooperativeLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()

	fed, err := store.CreateCooperative(ctx, cooperative.Cooperative{Name: "Federation", RegistrationNo: "R-1", Type: cooperative.TypeTertiary})
	require.NoError(t, err)

	_, err = store.CreateCooperative(ctx, cooperative.Cooperative{Name: "Other", RegistrationNo: "r-1", Type: cooperative.TypeTertiary})
	require.ErrorIs(t, err, storage.ErrDuplicate)

	union, err := store.CreateCooperative(ctx, cooperative.Cooperative{Name: "Union", RegistrationNo: "R-2", Type: cooperative.TypeSecondary, ParentID: fed.ID})
	require.NoError(t, err)

	children, err := store.ListCooperatives(ctx, cooperative.Filter{ParentID: fed.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, union.ID, children[0].ID)

	found, err := store.ListCooperatives(ctx, cooperative.Filter{Search: "uni"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = store.CreateMember(ctx, cooperative.Member{CooperativeID: union.ID, FullName: "Ana"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteCooperative(ctx, union.ID))
	members, err := store.ListMembers(ctx, union.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = store.GetCooperative(ctx, union.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMutationsAppendSyncLog(t *testing.T) {
	ctx := context.Background()
	store := New()

	p, err := store.CreateProgram(ctx, program.Program{Code: "LN", Name: "Loan", Active: true})
	require.NoError(t, err)
	p.Name = "Loan v2"
	_, err = store.UpdateProgram(ctx, p)
	require.NoError(t, err)
	require.NoError(t, store.DeleteProgram(ctx, p.ID))

	entries, err := store.ListSyncLogs(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, synclog.OpInsert, entries[0].Operation)
	assert.Equal(t, synclog.OpUpdate, entries[1].Operation)
	assert.Equal(t, synclog.OpDelete, entries[2].Operation)
	assert.Equal(t, "programs", entries[2].TableName)
	assert.Empty(t, entries[2].Payload)

	count, err := store.CountSyncLogsAfter(ctx, entries[0].ExecutedAt.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSaveUploadReplacesExisting(t *testing.T) {
	ctx := context.Background()
	store := New()

	first, err := store.SaveUpload(ctx, checklist.Upload{CoopProgramID: "cp", ChecklistID: "c1", FileName: "a.pdf"})
	require.NoError(t, err)
	second, err := store.SaveUpload(ctx, checklist.Upload{CoopProgramID: "cp", ChecklistID: "c1", FileName: "b.pdf"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	uploads, err := store.ListUploads(ctx, "cp")
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "b.pdf", uploads[0].FileName)
}

func TestScheduleAndUnpaid(t *testing.T) {
	ctx := context.Background()
	store := New()

	cp, err := store.CreateCoopProgram(ctx, coopprogram.CoopProgram{ReferenceNo: "CP-1", Status: coopprogram.StatusReleased})
	require.NoError(t, err)

	_, err = store.ReplaceSchedule(ctx, "missing", nil)
	require.ErrorIs(t, err, sql.ErrNoRows)

	base := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	items, err := store.ReplaceSchedule(ctx, cp.ID, []amortization.Installment{
		{Sequence: 2, DueDate: base.AddDate(0, 1, 0), Principal: 50, Status: amortization.StatusPending},
		{Sequence: 1, DueDate: base, Principal: 50, Status: amortization.StatusPending},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	listed, err := store.ListInstallments(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, listed[0].Sequence)

	listed[0].Status = amortization.StatusPaid
	_, err = store.UpdateInstallment(ctx, listed[0])
	require.NoError(t, err)

	unpaid, err := store.ListUnpaidDueBefore(ctx, base.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, 2, unpaid[0].Sequence)
}

func TestNotificationsReadState(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i := 0; i < 3; i++ {
		_, err := store.CreateNotification(ctx, notification.Notification{UserID: "u1", Kind: notification.KindSystem, Title: "hi", Reference: "r"})
		require.NoError(t, err)
	}
	exists, err := store.NotificationExists(ctx, "u1", notification.KindSystem, "r")
	require.NoError(t, err)
	assert.True(t, exists)

	limited, err := store.ListNotifications(ctx, "u1", false, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := store.MarkNotificationRead(ctx, limited[0].ID, time.Now())
	require.NoError(t, err)
	require.NotNil(t, n.ReadAt)

	count, err := store.MarkAllNotificationsRead(ctx, "u1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err := store.ListNotifications(ctx, "u1", true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
