package programs

import (
	"context"
	"testing"

	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/app/storage/memory"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateAndUpdate(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, program.Program{Code: " ln-01 ", Name: "Livelihood", MaxAmount: 500000, InterestRate: 600, TermMonths: 24})
	require.NoError(t, err)
	assert.Equal(t, "LN-01", p.Code)
	assert.Equal(t, program.KindLoan, p.Kind)
	assert.True(t, p.Active)

	_, err = svc.Create(ctx, program.Program{Code: "LN-01", Name: "Dup", MaxAmount: 1, TermMonths: 1})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))

	p.Name = "Livelihood II"
	updated, err := svc.Update(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Livelihood II", updated.Name)

	closed, err := svc.SetActive(ctx, p.ID, false)
	require.NoError(t, err)
	assert.False(t, closed.Active)

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestService_Validation(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	cases := map[string]program.Program{
		"no code":       {Name: "x", MaxAmount: 1, TermMonths: 1},
		"bad kind":      {Code: "A", Name: "x", Kind: "bond", MaxAmount: 1, TermMonths: 1},
		"zero max":      {Code: "A", Name: "x", TermMonths: 1},
		"rate too high": {Code: "A", Name: "x", MaxAmount: 1, TermMonths: 1, InterestRate: 20000},
		"loan no term":  {Code: "A", Name: "x", MaxAmount: 1},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), p)
			assert.True(t, svcerrors.Is(err, svcerrors.CodeValidation), "got %v", err)
		})
	}

	grant, err := svc.Create(context.Background(), program.Program{Code: "GR", Name: "Grant", Kind: program.KindGrant, MaxAmount: 10, InterestRate: 500})
	require.NoError(t, err)
	assert.Zero(t, grant.InterestRate)
}

func TestService_DeleteWithEnrollments(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, program.Program{Code: "LN", Name: "Loan", MaxAmount: 100, TermMonths: 6})
	require.NoError(t, err)
	_, err = store.CreateCoopProgram(ctx, coopprogram.CoopProgram{ProgramID: p.ID, ReferenceNo: "R1", Status: coopprogram.StatusPending})
	require.NoError(t, err)

	err = svc.Delete(ctx, p.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))

	p.Kind = program.KindGrant
	_, err = svc.Update(ctx, p)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))
}
