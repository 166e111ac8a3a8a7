package coopprograms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/checklist"
	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/app/storage"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/pkg/logger"
	"github.com/google/uuid"
)

// CompletionChecker reports document progress for an enrollment.
type CompletionChecker interface {
	Completion(ctx context.Context, coopProgramID string) (checklist.Completion, error)
}

// ScheduleGenerator builds the repayment schedule of a released loan.
type ScheduleGenerator interface {
	CreateSchedule(ctx context.Context, cp coopprogram.CoopProgram) ([]amortization.Installment, error)
}

// Service drives enrollments of cooperatives in programs through their lifecycle.
type Service struct {
	coops     storage.CooperativeStore
	programs  storage.ProgramStore
	store     storage.CoopProgramStore
	checklist CompletionChecker
	schedules ScheduleGenerator
	log       *logger.Logger
	now       func() time.Time
}

// New creates an enrollment service.
func New(coops storage.CooperativeStore, programs storage.ProgramStore, store storage.CoopProgramStore,
	checklist CompletionChecker, schedules ScheduleGenerator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("coopprograms")
	}
	return &Service{
		coops:     coops,
		programs:  programs,
		store:     store,
		checklist: checklist,
		schedules: schedules,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enroll creates a pending enrollment. Zero terms default from the program.
func (s *Service) Enroll(ctx context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error) {
	coop, err := s.coops.GetCooperative(ctx, cp.CooperativeID)
	if err != nil {
		if storage.IsNotFound(err) {
			return coopprogram.CoopProgram{}, svcerrors.FieldError("cooperative_id", "cooperative not found")
		}
		return coopprogram.CoopProgram{}, err
	}
	if coop.Status != cooperative.StatusActive {
		return coopprogram.CoopProgram{}, svcerrors.FieldError("cooperative_id", "cooperative is archived")
	}
	prog, err := s.programs.GetProgram(ctx, cp.ProgramID)
	if err != nil {
		if storage.IsNotFound(err) {
			return coopprogram.CoopProgram{}, svcerrors.FieldError("program_id", "program not found")
		}
		return coopprogram.CoopProgram{}, err
	}
	if !prog.Active {
		return coopprogram.CoopProgram{}, svcerrors.FieldError("program_id", "program is not accepting enrollments")
	}

	cp.ID = ""
	cp.Status = coopprogram.StatusPending
	cp.ApprovedAt, cp.ReleasedAt, cp.CompletedAt, cp.ArchivedAt = nil, nil, nil, nil
	cp.Project = strings.TrimSpace(cp.Project)
	applyProgramDefaults(&cp, prog)
	if err := validateTerms(cp, prog); err != nil {
		return coopprogram.CoopProgram{}, err
	}
	if strings.TrimSpace(cp.ReferenceNo) == "" {
		cp.ReferenceNo = s.referenceNo(prog)
	}

	created, err := s.store.CreateCoopProgram(ctx, cp)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return coopprogram.CoopProgram{}, svcerrors.Conflict("reference number " + cp.ReferenceNo + " already exists")
		}
		return coopprogram.CoopProgram{}, err
	}
	s.log.WithField("coop_program_id", created.ID).
		WithField("cooperative_id", created.CooperativeID).
		WithField("program_id", created.ProgramID).
		Info("cooperative enrolled")
	return created, nil
}

// Update changes the terms of a pending enrollment.
func (s *Service) Update(ctx context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error) {
	existing, err := s.store.GetCoopProgram(ctx, cp.ID)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	if existing.Status != coopprogram.StatusPending {
		return coopprogram.CoopProgram{}, svcerrors.Conflict("only pending enrollments can be edited")
	}
	prog, err := s.programs.GetProgram(ctx, existing.ProgramID)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	existing.Project = strings.TrimSpace(cp.Project)
	existing.Amount = cp.Amount
	existing.InterestRate = cp.InterestRate
	existing.TermMonths = cp.TermMonths
	existing.GraceMonths = cp.GraceMonths
	applyProgramDefaults(&existing, prog)
	if err := validateTerms(existing, prog); err != nil {
		return coopprogram.CoopProgram{}, err
	}
	return s.store.UpdateCoopProgram(ctx, existing)
}

// Get fetches an enrollment.
func (s *Service) Get(ctx context.Context, id string) (coopprogram.CoopProgram, error) {
	return s.store.GetCoopProgram(ctx, id)
}

// List returns enrollments matching filter.
func (s *Service) List(ctx context.Context, filter coopprogram.Filter) ([]coopprogram.CoopProgram, error) {
	return s.store.ListCoopPrograms(ctx, filter)
}

// Approve moves a pending enrollment to approved once every required
// checklist item has a document.
func (s *Service) Approve(ctx context.Context, id string) (coopprogram.CoopProgram, error) {
	cp, err := s.load(ctx, id, coopprogram.StatusApproved)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	if s.checklist != nil {
		completion, err := s.checklist.Completion(ctx, id)
		if err != nil {
			return coopprogram.CoopProgram{}, err
		}
		if !completion.Complete() {
			missing := make([]string, 0, len(completion.Missing))
			for _, item := range completion.Missing {
				missing = append(missing, item.Name)
			}
			return coopprogram.CoopProgram{}, svcerrors.Conflict("required documents are missing").
				WithDetails("missing", missing)
		}
	}
	now := s.now()
	cp.Status = coopprogram.StatusApproved
	cp.ApprovedAt = &now
	return s.save(ctx, cp, "enrollment approved")
}

// Release disburses an approved enrollment. Loans get an amortization
// schedule; grants complete immediately.
func (s *Service) Release(ctx context.Context, id string, releasedAt time.Time) (coopprogram.CoopProgram, error) {
	cp, err := s.store.GetCoopProgram(ctx, id)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	if cp.Status != coopprogram.StatusApproved {
		return coopprogram.CoopProgram{}, transitionError(cp.Status, coopprogram.StatusReleased)
	}
	prog, err := s.programs.GetProgram(ctx, cp.ProgramID)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	if releasedAt.IsZero() {
		releasedAt = s.now()
	}
	releasedAt = releasedAt.UTC()
	cp.ReleasedAt = &releasedAt

	if prog.Kind == program.KindGrant {
		cp.Status = coopprogram.StatusCompleted
		cp.CompletedAt = &releasedAt
		return s.save(ctx, cp, "grant released")
	}

	previous := cp.Status
	cp.Status = coopprogram.StatusReleased
	released, err := s.store.UpdateCoopProgram(ctx, cp)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	if _, err := s.schedules.CreateSchedule(ctx, released); err != nil {
		released.Status = previous
		released.ReleasedAt = nil
		if _, rbErr := s.store.UpdateCoopProgram(ctx, released); rbErr != nil {
			s.log.WithField("coop_program_id", id).WithError(rbErr).Error("revert failed release")
		}
		return coopprogram.CoopProgram{}, err
	}
	s.log.WithField("coop_program_id", id).WithField("amount", released.Amount).Info("loan released")
	return released, nil
}

// Cancel stops a pending or approved enrollment.
func (s *Service) Cancel(ctx context.Context, id string) (coopprogram.CoopProgram, error) {
	cp, err := s.load(ctx, id, coopprogram.StatusCancelled)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	cp.Status = coopprogram.StatusCancelled
	return s.save(ctx, cp, "enrollment cancelled")
}

// Archive hides a completed or cancelled enrollment.
func (s *Service) Archive(ctx context.Context, id string) (coopprogram.CoopProgram, error) {
	cp, err := s.load(ctx, id, coopprogram.StatusArchived)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	now := s.now()
	cp.Status = coopprogram.StatusArchived
	cp.ArchivedAt = &now
	return s.save(ctx, cp, "enrollment archived")
}

// Transition moves an enrollment to status without side effects. Batch jobs
// use it for released <-> delinquent.
func (s *Service) Transition(ctx context.Context, id string, status coopprogram.Status) (coopprogram.CoopProgram, error) {
	cp, err := s.load(ctx, id, status)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	cp.Status = status
	return s.save(ctx, cp, "enrollment status changed")
}

// Delete removes a pending or cancelled enrollment.
func (s *Service) Delete(ctx context.Context, id string) error {
	cp, err := s.store.GetCoopProgram(ctx, id)
	if err != nil {
		return err
	}
	if cp.Status != coopprogram.StatusPending && cp.Status != coopprogram.StatusCancelled {
		return svcerrors.Conflict("only pending or cancelled enrollments can be deleted")
	}
	return s.store.DeleteCoopProgram(ctx, id)
}

func (s *Service) load(ctx context.Context, id string, to coopprogram.Status) (coopprogram.CoopProgram, error) {
	cp, err := s.store.GetCoopProgram(ctx, id)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	if !coopprogram.CanTransition(cp.Status, to) {
		return coopprogram.CoopProgram{}, transitionError(cp.Status, to)
	}
	return cp, nil
}

func (s *Service) save(ctx context.Context, cp coopprogram.CoopProgram, msg string) (coopprogram.CoopProgram, error) {
	updated, err := s.store.UpdateCoopProgram(ctx, cp)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	s.log.WithField("coop_program_id", cp.ID).WithField("status", cp.Status).Info(msg)
	return updated, nil
}

func (s *Service) referenceNo(prog program.Program) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prog.Code, s.now().Format("200601"), suffix)
}

func transitionError(from, to coopprogram.Status) error {
	return svcerrors.Conflict(fmt.Sprintf("cannot move enrollment from %s to %s", from, to)).
		WithDetails("status", string(from))
}

func applyProgramDefaults(cp *coopprogram.CoopProgram, prog program.Program) {
	if cp.InterestRate == 0 {
		cp.InterestRate = prog.InterestRate
	}
	if cp.TermMonths == 0 {
		cp.TermMonths = prog.TermMonths
	}
	if cp.GraceMonths == 0 {
		cp.GraceMonths = prog.GraceMonths
	}
	if prog.Kind == program.KindGrant {
		cp.InterestRate, cp.TermMonths, cp.GraceMonths = 0, 0, 0
	}
}

func validateTerms(cp coopprogram.CoopProgram, prog program.Program) error {
	switch {
	case cp.Amount <= 0:
		return svcerrors.FieldError("amount", "amount must be positive")
	case cp.Amount > prog.MaxAmount:
		return svcerrors.FieldError("amount", "amount exceeds the program maximum").WithDetails("max_amount", prog.MaxAmount)
	case cp.InterestRate < 0:
		return svcerrors.FieldError("interest_rate", "interest rate cannot be negative")
	case cp.GraceMonths < 0:
		return svcerrors.FieldError("grace_months", "grace months cannot be negative")
	case prog.Kind == program.KindLoan && cp.TermMonths <= 0:
		return svcerrors.FieldError("term_months", "term must be positive")
	}
	return nil
}
