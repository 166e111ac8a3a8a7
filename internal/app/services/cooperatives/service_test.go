package cooperatives

import (
	"context"
	"net/http"
	"testing"

	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/storage/memory"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHierarchy(t *testing.T) (*Service, *memory.Store, cooperative.Cooperative, cooperative.Cooperative) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	fed, err := svc.Create(ctx, cooperative.Cooperative{Name: "Federation", RegistrationNo: "T-1", Type: cooperative.TypeTertiary})
	require.NoError(t, err)
	union, err := svc.Create(ctx, cooperative.Cooperative{Name: "Union", RegistrationNo: "S-1", Type: cooperative.TypeSecondary, ParentID: fed.ID})
	require.NoError(t, err)
	return svc, store, fed, union
}

func TestCreateValidatesHierarchy(t *testing.T) {
	svc, _, fed, union := newHierarchy(t)
	ctx := context.Background()

	tests := []struct {
		name string
		coop cooperative.Cooperative
	}{
		{"primary under tertiary", cooperative.Cooperative{Name: "P", RegistrationNo: "P-1", Type: cooperative.TypePrimary, ParentID: fed.ID}},
		{"secondary under secondary", cooperative.Cooperative{Name: "S", RegistrationNo: "S-2", Type: cooperative.TypeSecondary, ParentID: union.ID}},
		{"tertiary with parent", cooperative.Cooperative{Name: "T", RegistrationNo: "T-2", Type: cooperative.TypeTertiary, ParentID: fed.ID}},
		{"missing parent", cooperative.Cooperative{Name: "P", RegistrationNo: "P-2", Type: cooperative.TypePrimary, ParentID: "nope"}},
		{"unknown type", cooperative.Cooperative{Name: "X", RegistrationNo: "X-1", Type: "quaternary"}},
		{"missing name", cooperative.Cooperative{RegistrationNo: "X-2", Type: cooperative.TypePrimary}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.coop)
			require.Error(t, err)
			assert.Equal(t, http.StatusUnprocessableEntity, svcerrors.HTTPStatus(err))
		})
	}

	primary, err := svc.Create(ctx, cooperative.Cooperative{Name: "Primary", RegistrationNo: "P-3", Type: cooperative.TypePrimary, ParentID: union.ID})
	require.NoError(t, err)
	assert.Equal(t, cooperative.StatusActive, primary.Status)
}

func TestCreateDuplicateRegistration(t *testing.T) {
	svc, _, _, _ := newHierarchy(t)
	_, err := svc.Create(context.Background(), cooperative.Cooperative{Name: "Again", RegistrationNo: "t-1", Type: cooperative.TypeTertiary})
	require.Error(t, err)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))
}

func TestUpdateRejectsTypeChangeWithChildren(t *testing.T) {
	svc, _, fed, _ := newHierarchy(t)
	fed.Type = cooperative.TypeSecondary
	_, err := svc.Update(context.Background(), fed)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, svcerrors.HTTPStatus(err))
}

func TestUpdateRejectsSelfParent(t *testing.T) {
	svc, _, _, union := newHierarchy(t)
	union.ParentID = union.ID
	_, err := svc.Update(context.Background(), union)
	require.Error(t, err)
}

func TestArchiveBlocksNewChildren(t *testing.T) {
	svc, _, _, union := newHierarchy(t)
	ctx := context.Background()

	archived, err := svc.Archive(ctx, union.ID)
	require.NoError(t, err)
	assert.Equal(t, cooperative.StatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)

	_, err = svc.Create(ctx, cooperative.Cooperative{Name: "P", RegistrationNo: "P-9", Type: cooperative.TypePrimary, ParentID: union.ID})
	require.Error(t, err)

	restored, err := svc.Restore(ctx, union.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.ArchivedAt)
}

func TestDeleteChecksDependents(t *testing.T) {
	svc, store, fed, union := newHierarchy(t)
	ctx := context.Background()

	err := svc.Delete(ctx, fed.ID)
	require.Error(t, err)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))

	_, err = store.CreateCoopProgram(ctx, coopprogram.CoopProgram{CooperativeID: union.ID, ReferenceNo: "CP-1", Status: coopprogram.StatusPending})
	require.NoError(t, err)
	err = svc.Delete(ctx, union.ID)
	require.Error(t, err)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))

	err = svc.Delete(ctx, "missing")
	assert.Equal(t, http.StatusNotFound, svcerrors.HTTPStatus(err))
}

func TestMembers(t *testing.T) {
	svc, _, fed, _ := newHierarchy(t)
	ctx := context.Background()

	_, err := svc.AddMember(ctx, cooperative.Member{CooperativeID: fed.ID, FullName: "  ", Email: "x@example.org"})
	require.Error(t, err)

	m, err := svc.AddMember(ctx, cooperative.Member{CooperativeID: fed.ID, FullName: "Ana Cruz", Position: "Chair"})
	require.NoError(t, err)

	m.Position = "Treasurer"
	m.CooperativeID = "elsewhere"
	updated, err := svc.UpdateMember(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, fed.ID, updated.CooperativeID)

	list, err := svc.ListMembers(ctx, fed.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Treasurer", list[0].Position)

	require.NoError(t, svc.RemoveMember(ctx, m.ID))
}
