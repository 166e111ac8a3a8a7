package amortization

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	domain "github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/storage"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Service generates amortization schedules and applies repayments.
type Service struct {
	store    storage.AmortizationStore
	enrolled storage.CoopProgramStore
	log      *logger.Logger
	now      func() time.Time
}

// New creates an amortization service.
func New(store storage.AmortizationStore, enrolled storage.CoopProgramStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("amortization")
	}
	return &Service{store: store, enrolled: enrolled, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSchedule generates and stores the schedule of a released enrollment,
// replacing any previous one.
func (s *Service) CreateSchedule(ctx context.Context, cp coopprogram.CoopProgram) ([]domain.Installment, error) {
	if cp.ReleasedAt == nil {
		return nil, svcerrors.Conflict("enrollment has not been released")
	}
	items := Generate(Terms{
		Principal:   cp.Amount,
		RateBP:      cp.InterestRate,
		TermMonths:  cp.TermMonths,
		GraceMonths: cp.GraceMonths,
		ReleasedAt:  *cp.ReleasedAt,
	})
	if len(items) == 0 {
		return nil, svcerrors.Validation("enrollment has no repayable amount or term")
	}
	stored, err := s.store.ReplaceSchedule(ctx, cp.ID, items)
	if err != nil {
		return nil, err
	}
	s.log.WithField("coop_program_id", cp.ID).
		WithField("installments", len(stored)).
		Info("amortization schedule generated")
	return stored, nil
}

// List returns the schedule of an enrollment ordered by sequence.
func (s *Service) List(ctx context.Context, coopProgramID string) ([]domain.Installment, error) {
	if _, err := s.enrolled.GetCoopProgram(ctx, coopProgramID); err != nil {
		return nil, err
	}
	return s.store.ListInstallments(ctx, coopProgramID)
}

// Summary aggregates an enrollment's schedule.
func (s *Service) Summary(ctx context.Context, coopProgramID string) (domain.Summary, error) {
	items, err := s.List(ctx, coopProgramID)
	if err != nil {
		return domain.Summary{}, err
	}
	return Summarize(coopProgramID, items, s.now()), nil
}

// Summarize totals a schedule. Installments past due and unpaid at now count
// as overdue even before the delinquency job has flagged them.
func Summarize(coopProgramID string, items []domain.Installment, now time.Time) domain.Summary {
	sum := domain.Summary{CoopProgramID: coopProgramID, Installments: len(items)}
	for i := range items {
		item := items[i]
		sum.TotalDue += item.AmountDue()
		sum.TotalPaid += item.AmountPaid
		sum.Outstanding += item.Outstanding()
		if item.Settled() {
			continue
		}
		if item.Status == domain.StatusOverdue || item.DueDate.Before(now) {
			sum.OverdueCount++
		}
		if sum.NextDue == nil {
			next := item
			sum.NextDue = &next
		}
	}
	return sum
}

// RecordPayment applies amount to the earliest unsettled installments. A
// payment larger than everything outstanding is rejected. When the schedule
// is fully paid the enrollment is completed.
func (s *Service) RecordPayment(ctx context.Context, coopProgramID string, amount int64, paidAt time.Time) (domain.Payment, error) {
	if amount <= 0 {
		return domain.Payment{}, svcerrors.FieldError("amount", "amount must be positive")
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = paidAt.UTC()

	cp, err := s.enrolled.GetCoopProgram(ctx, coopProgramID)
	if err != nil {
		return domain.Payment{}, err
	}
	if !cp.Status.Active() {
		return domain.Payment{}, svcerrors.Conflict("payments are accepted only for released enrollments")
	}
	payment := domain.Payment{CoopProgramID: coopProgramID, Amount: amount, PaidAt: paidAt}
	applied, err := s.store.ApplyPayment(ctx, coopProgramID, func(items []domain.Installment) ([]domain.Installment, error) {
		changed, settled, err := allocate(items, amount, paidAt)
		payment.Completed = settled
		return changed, err
	})
	if err != nil {
		return domain.Payment{}, err
	}
	payment.Applied = applied

	if payment.Completed {
		now := s.now()
		cp.Status = coopprogram.StatusCompleted
		cp.CompletedAt = &now
		if _, err := s.enrolled.UpdateCoopProgram(ctx, cp); err != nil {
			return domain.Payment{}, err
		}
	}

	s.log.WithField("coop_program_id", coopProgramID).
		WithField("amount", amount).
		WithField("installments", len(payment.Applied)).
		WithField("completed", payment.Completed).
		Info("payment recorded")
	return payment, nil
}

// allocate spreads amount over items in sequence order and returns the
// changed installments and whether the schedule is now fully paid. A payment
// above the outstanding total is rejected.
func allocate(items []domain.Installment, amount int64, paidAt time.Time) ([]domain.Installment, bool, error) {
	var outstanding int64
	for _, item := range items {
		outstanding += item.Outstanding()
	}
	if amount > outstanding {
		return nil, false, svcerrors.FieldError("amount", "payment exceeds outstanding balance").
			WithDetails("outstanding", outstanding)
	}

	var changed []domain.Installment
	remaining := amount
	for _, item := range items {
		if remaining == 0 {
			break
		}
		due := item.Outstanding()
		if due == 0 {
			continue
		}
		applied := due
		if remaining < due {
			applied = remaining
		}
		remaining -= applied
		item.AmountPaid += applied
		switch {
		case item.Outstanding() == 0:
			item.Status = domain.StatusPaid
			at := paidAt
			item.PaidAt = &at
		case item.Status != domain.StatusOverdue:
			item.Status = domain.StatusPartial
		}
		changed = append(changed, item)
	}
	return changed, amount == outstanding, nil
}

// ExportCSV writes the schedule as CSV with amounts in currency units.
func (s *Service) ExportCSV(ctx context.Context, coopProgramID string, w io.Writer) error {
	items, err := s.List(ctx, coopProgramID)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sequence", "due_date", "principal", "interest", "penalty",
		"amount_due", "amount_paid", "balance", "status", "paid_at"}); err != nil {
		return err
	}
	for _, item := range items {
		paidAt := ""
		if item.PaidAt != nil {
			paidAt = item.PaidAt.Format("2006-01-02")
		}
		if err := cw.Write([]string{
			strconv.Itoa(item.Sequence),
			item.DueDate.Format("2006-01-02"),
			FormatCents(item.Principal),
			FormatCents(item.Interest),
			FormatCents(item.Penalty),
			FormatCents(item.AmountDue()),
			FormatCents(item.AmountPaid),
			FormatCents(item.Balance),
			string(item.Status),
			paidAt,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCents renders cents as a decimal amount, e.g. 123456 -> "1234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
