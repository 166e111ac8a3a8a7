package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.CreateCooperative(ctx, cooperative.Cooperative{Name: "A", RegistrationNo: "R-1", Type: cooperative.TypePrimary, Status: cooperative.StatusActive})
	require.NoError(t, err)
	_, err = store.CreateCooperative(ctx, cooperative.Cooperative{Name: "B", RegistrationNo: "R-2", Type: cooperative.TypePrimary, Status: cooperative.StatusArchived})
	require.NoError(t, err)

	loan, err := store.CreateCoopProgram(ctx, coopprogram.CoopProgram{ReferenceNo: "L-1", Amount: 300000, Status: coopprogram.StatusReleased})
	require.NoError(t, err)
	_, err = store.ReplaceSchedule(ctx, loan.ID, []amortization.Installment{
		{Sequence: 1, DueDate: now.AddDate(0, 0, -10), Principal: 100000, Interest: 1000, Status: amortization.StatusOverdue},
		{Sequence: 2, DueDate: now.AddDate(0, 0, 3), Principal: 100000, Interest: 500, AmountPaid: 500, Status: amortization.StatusPartial},
		{Sequence: 3, DueDate: now.AddDate(0, 1, 3), Principal: 100000, Status: amortization.StatusPending},
	})
	require.NoError(t, err)
	_, err = store.CreateCoopProgram(ctx, coopprogram.CoopProgram{ReferenceNo: "P-1", Amount: 50000, Status: coopprogram.StatusPending})
	require.NoError(t, err)

	summary, err := New(store, store, store, 7, nil).Summary(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Cooperatives)
	assert.Equal(t, 1, summary.ActiveCooperatives)
	assert.Equal(t, map[coopprogram.Status]int{coopprogram.StatusReleased: 1, coopprogram.StatusPending: 1}, summary.Enrollments)
	assert.Equal(t, int64(300000), summary.Disbursed)
	assert.Equal(t, int64(101000+100000+100000), summary.Outstanding)
	assert.Equal(t, 1, summary.OverdueInstallments)
	assert.Equal(t, 1, summary.DueSoon)
}
