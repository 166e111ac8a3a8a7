package amortization

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/storage/memory"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releasedProgram(t *testing.T, store *memory.Store) coopprogram.CoopProgram {
	t.Helper()
	released := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	cp, err := store.CreateCoopProgram(context.Background(), coopprogram.CoopProgram{
		ReferenceNo: "CP-1", Amount: 30000, InterestRate: 1200, TermMonths: 3,
		Status: coopprogram.StatusReleased, ReleasedAt: &released,
	})
	require.NoError(t, err)
	return cp
}

func TestRecordPaymentAppliesInOrder(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()
	cp := releasedProgram(t, store)

	items, err := svc.CreateSchedule(ctx, cp)
	require.NoError(t, err)
	require.Len(t, items, 3)
	// 10000 principal each; interest 300, 200, 100.
	assert.Equal(t, int64(10300), items[0].AmountDue())

	payment, err := svc.RecordPayment(ctx, cp.ID, 12000, time.Time{})
	require.NoError(t, err)
	require.Len(t, payment.Applied, 2)
	assert.Equal(t, domain.StatusPaid, payment.Applied[0].Status)
	assert.Equal(t, domain.StatusPartial, payment.Applied[1].Status)
	assert.Equal(t, int64(1700), payment.Applied[1].AmountPaid)
	assert.False(t, payment.Completed)

	_, err = svc.RecordPayment(ctx, cp.ID, 1_000_000, time.Time{})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeValidation))

	summary, err := svc.Summary(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30600), summary.TotalDue)
	assert.Equal(t, int64(12000), summary.TotalPaid)
	assert.Equal(t, int64(18600), summary.Outstanding)
	require.NotNil(t, summary.NextDue)
	assert.Equal(t, 2, summary.NextDue.Sequence)

	payment, err = svc.RecordPayment(ctx, cp.ID, 18600, time.Time{})
	require.NoError(t, err)
	assert.True(t, payment.Completed)

	done, err := store.GetCoopProgram(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, coopprogram.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
}

func TestRecordPaymentRequiresReleased(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	cp, err := store.CreateCoopProgram(context.Background(), coopprogram.CoopProgram{ReferenceNo: "P", Status: coopprogram.StatusPending})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), cp.ID, 100, time.Time{})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeConflict))

	_, err = svc.RecordPayment(context.Background(), cp.ID, 0, time.Time{})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeValidation))
}

func TestExportCSV(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()
	cp := releasedProgram(t, store)
	_, err := svc.CreateSchedule(ctx, cp)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, cp.ID, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "sequence,due_date,principal"))
	assert.Equal(t, "1,2024-02-15,100.00,3.00,0.00,103.00,0.00,200.00,pending,", lines[1])
}

func TestRecordPaymentConcurrentPaymentsNeverOverApply(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()
	cp := releasedProgram(t, store)
	_, err := svc.CreateSchedule(ctx, cp)
	require.NoError(t, err)

	// 30600 outstanding: six payments of 5100 settle it and the seventh must fail.
	const workers = 7
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		completed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payment, err := svc.RecordPayment(ctx, cp.ID, 5100, time.Time{})
			if err != nil {
				return
			}
			mu.Lock()
			succeeded++
			if payment.Completed {
				completed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	assert.Equal(t, 1, completed)

	items, err := svc.List(ctx, cp.ID)
	require.NoError(t, err)
	var paid int64
	for _, item := range items {
		paid += item.AmountPaid
		assert.LessOrEqual(t, item.AmountPaid, item.AmountDue())
		assert.Equal(t, domain.StatusPaid, item.Status)
	}
	assert.Equal(t, int64(30600), paid)
}
