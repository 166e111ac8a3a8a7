package notifications

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/storage/memory"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUsers(t *testing.T, store *memory.Store) (admin, staff, viewer user.User) {
	t.Helper()
	ctx := context.Background()
	var err error
	admin, err = store.CreateUser(ctx, user.User{Name: "A", Email: "a@x.org", Role: user.RoleAdmin, Active: true})
	require.NoError(t, err)
	staff, err = store.CreateUser(ctx, user.User{Name: "S", Email: "s@x.org", Role: user.RoleStaff, Active: true})
	require.NoError(t, err)
	viewer, err = store.CreateUser(ctx, user.User{Name: "V", Email: "v@x.org", Role: user.RoleViewer, Active: true})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, user.User{Name: "Gone", Email: "g@x.org", Role: user.RoleStaff})
	require.NoError(t, err)
	return admin, staff, viewer
}

func TestNotifyRolesDeduplicates(t *testing.T) {
	store := memory.New()
	admin, staff, viewer := seedUsers(t, store)
	svc := New(store, store, nil)
	ctx := context.Background()

	msg := Message{Kind: notification.KindOverdue, Title: "Overdue", Reference: "inst-1"}
	sent, err := svc.NotifyRoles(ctx, msg, user.RoleAdmin, user.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = svc.NotifyRoles(ctx, msg, user.RoleAdmin, user.RoleStaff)
	require.NoError(t, err)
	assert.Zero(t, sent)

	list, err := svc.List(ctx, viewer.ID, false, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(ctx, staff.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.MarkRead(ctx, admin.ID, list[0].ID)
	assert.Equal(t, http.StatusNotFound, svcerrors.HTTPStatus(err))

	read, err := svc.MarkRead(ctx, staff.ID, list[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, read.ReadAt)

	count, err := svc.MarkAllRead(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, svc.Delete(ctx, staff.ID, list[0].ID))

	_, err = svc.Notify(ctx, Message{Title: " "}, staff.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeValidation))
}

func TestDispatcherSendsOncePerInstallment(t *testing.T) {
	store := memory.New()
	seedUsers(t, store)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	cp, err := store.CreateCoopProgram(ctx, coopprogram.CoopProgram{ReferenceNo: "LN-1", Status: coopprogram.StatusReleased})
	require.NoError(t, err)
	_, err = store.ReplaceSchedule(ctx, cp.ID, []amortization.Installment{
		{Sequence: 1, DueDate: now.AddDate(0, 0, -3), Principal: 100, Status: amortization.StatusPending},
		{Sequence: 2, DueDate: now.AddDate(0, 0, 3), Principal: 100, Status: amortization.StatusPending},
		{Sequence: 3, DueDate: now.AddDate(0, 0, 30), Principal: 100, Status: amortization.StatusPending},
	})
	require.NoError(t, err)

	d := NewDispatcher(New(store, store, nil), store, store, 7, nil)
	result, err := d.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 2, result.Sent)

	result, err = d.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
}
