package users

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/storage/memory"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeIssuer struct{}

func (fakeIssuer) Issue(u user.User) (string, time.Time, error) {
	return "token-" + u.ID, time.Now().Add(time.Hour), nil
}

func newService() *Service {
	return New(memory.New(), fakeIssuer{}, nil).WithCost(bcrypt.MinCost)
}

func TestLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	u, err := svc.Create(ctx, "Ops", " Ops@Example.org ", "correct-horse", user.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.org", u.Email)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)

	result, err := svc.Login(ctx, "OPS@example.org", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "token-"+u.ID, result.Token)
	assert.NotNil(t, result.User.LastLoginAt)

	_, err = svc.Login(ctx, "ops@example.org", "wrong-password")
	assert.Equal(t, http.StatusUnauthorized, svcerrors.HTTPStatus(err))
	_, err = svc.Login(ctx, "nobody@example.org", "whatever1")
	assert.Equal(t, http.StatusUnauthorized, svcerrors.HTTPStatus(err))

	inactive := false
	_, err = svc.Update(ctx, u.ID, nil, nil, &inactive)
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ops@example.org", "correct-horse")
	assert.Equal(t, http.StatusForbidden, svcerrors.HTTPStatus(err))
}

func TestCreateValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "A", "not-an-email", "password1", user.RoleStaff)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeValidation))
	_, err = svc.Create(ctx, "A", "a@example.org", "short", user.RoleStaff)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeValidation))
	_, err = svc.Create(ctx, "A", "a@example.org", "password1", "root")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeValidation))

	_, err = svc.Create(ctx, "A", "a@example.org", "password1", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "B", "A@example.org", "password1", "")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))
}

func TestLastAdminProtected(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "Admin", "admin@example.org", "password1")
	require.NoError(t, err)
	require.True(t, created)
	created, err = svc.EnsureAdmin(ctx, "Admin", "admin2@example.org", "password1")
	require.NoError(t, err)
	assert.False(t, created)

	admins, err := svc.Recipients(ctx, user.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	viewer := user.RoleViewer
	_, err = svc.Update(ctx, admins[0].ID, nil, &viewer, nil)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))
	err = svc.Delete(ctx, admins[0].ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))

	require.NoError(t, svc.SetPassword(ctx, admins[0].ID, "new-password"))
	_, err = svc.Login(ctx, "admin@example.org", "new-password")
	require.NoError(t, err)
}
