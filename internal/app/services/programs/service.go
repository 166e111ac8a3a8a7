package programs

import (
	"context"
	"errors"
	"strings"

	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/app/storage"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/pkg/logger"
)

// MaxInterestRate is 100% per annum in basis points.
const MaxInterestRate = 10000

// Service manages loan and grant programs.
type Service struct {
	store    storage.ProgramStore
	enrolled storage.CoopProgramStore
	log      *logger.Logger
}

// New creates a program service.
func New(store storage.ProgramStore, enrolled storage.CoopProgramStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("programs")
	}
	return &Service{store: store, enrolled: enrolled, log: log}
}

// Create adds a program. New programs are active.
func (s *Service) Create(ctx context.Context, p program.Program) (program.Program, error) {
	p.ID = ""
	p.Active = true
	if err := validate(&p); err != nil {
		return program.Program{}, err
	}
	created, err := s.store.CreateProgram(ctx, p)
	if err != nil {
		return program.Program{}, duplicate(err, p.Code)
	}
	s.log.WithField("program_id", created.ID).WithField("code", created.Code).Info("program created")
	return created, nil
}

// Update edits a program. The kind cannot change once coop programs exist.
func (s *Service) Update(ctx context.Context, p program.Program) (program.Program, error) {
	existing, err := s.store.GetProgram(ctx, p.ID)
	if err != nil {
		return program.Program{}, err
	}
	p.Active = existing.Active
	if err := validate(&p); err != nil {
		return program.Program{}, err
	}
	if p.Kind != existing.Kind {
		n, err := s.enrollments(ctx, p.ID)
		if err != nil {
			return program.Program{}, err
		}
		if n > 0 {
			return program.Program{}, svcerrors.Conflict("program kind cannot change after enrollment")
		}
	}
	updated, err := s.store.UpdateProgram(ctx, p)
	if err != nil {
		return program.Program{}, duplicate(err, p.Code)
	}
	return updated, nil
}

// SetActive opens or closes a program for new enrollments.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (program.Program, error) {
	p, err := s.store.GetProgram(ctx, id)
	if err != nil {
		return program.Program{}, err
	}
	if p.Active == active {
		return p, nil
	}
	p.Active = active
	updated, err := s.store.UpdateProgram(ctx, p)
	if err != nil {
		return program.Program{}, err
	}
	s.log.WithField("program_id", id).WithField("active", active).Info("program availability changed")
	return updated, nil
}

// Get fetches a program.
func (s *Service) Get(ctx context.Context, id string) (program.Program, error) {
	return s.store.GetProgram(ctx, id)
}

// List returns programs ordered by code.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]program.Program, error) {
	return s.store.ListPrograms(ctx, activeOnly)
}

// Delete removes a program that has no enrollments. Its checklists go with it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetProgram(ctx, id); err != nil {
		return err
	}
	n, err := s.enrollments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return svcerrors.Conflict("program has enrollments; deactivate it instead").WithDetails("coop_programs", n)
	}
	return s.store.DeleteProgram(ctx, id)
}

func (s *Service) enrollments(ctx context.Context, programID string) (int, error) {
	if s.enrolled == nil {
		return 0, nil
	}
	list, err := s.enrolled.ListCoopPrograms(ctx, coopprogram.Filter{ProgramID: programID})
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func validate(p *program.Program) error {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Name = strings.TrimSpace(p.Name)
	if p.Kind == "" {
		p.Kind = program.KindLoan
	}
	switch {
	case p.Code == "":
		return svcerrors.FieldError("code", "code is required")
	case p.Name == "":
		return svcerrors.FieldError("name", "name is required")
	case p.Kind != program.KindLoan && p.Kind != program.KindGrant:
		return svcerrors.FieldError("kind", "kind must be loan or grant")
	case p.MaxAmount <= 0:
		return svcerrors.FieldError("max_amount", "max amount must be positive")
	case p.InterestRate < 0 || p.InterestRate > MaxInterestRate:
		return svcerrors.FieldError("interest_rate", "interest rate must be between 0 and 10000 basis points")
	case p.GraceMonths < 0:
		return svcerrors.FieldError("grace_months", "grace months cannot be negative")
	}
	if p.Kind == program.KindLoan && p.TermMonths <= 0 {
		return svcerrors.FieldError("term_months", "loan programs need a term")
	}
	if p.Kind == program.KindGrant {
		p.InterestRate = 0
		p.GraceMonths = 0
	}
	return nil
}

func duplicate(err error, code string) error {
	if errors.Is(err, storage.ErrDuplicate) {
		return svcerrors.Conflict("program code " + code + " already exists")
	}
	return err
}
