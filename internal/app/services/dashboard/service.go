package dashboard

import (
	"context"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Summary is the landing page overview. Amounts are in cents.
type Summary struct {
	Cooperatives        int                        `json:"cooperatives"`
	ActiveCooperatives  int                        `json:"active_cooperatives"`
	Enrollments         map[coopprogram.Status]int `json:"enrollments"`
	Disbursed           int64                      `json:"disbursed"`
	Outstanding         int64                      `json:"outstanding"`
	OverdueInstallments int                        `json:"overdue_installments"`
	DueSoon             int                        `json:"due_soon"`
	GeneratedAt         time.Time                  `json:"generated_at"`
}

// Service aggregates portfolio figures.
type Service struct {
	coops        storage.CooperativeStore
	enrolled     storage.CoopProgramStore
	installments storage.AmortizationStore
	dueWindow    time.Duration
	log          *logger.Logger
}

func New(coops storage.CooperativeStore, enrolled storage.CoopProgramStore, installments storage.AmortizationStore,
	dueDays int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dashboard")
	}
	if dueDays <= 0 {
		dueDays = 7
	}
	return &Service{
		coops:        coops,
		enrolled:     enrolled,
		installments: installments,
		dueWindow:    time.Duration(dueDays) * 24 * time.Hour,
		log:          log,
	}
}

// Summary computes the overview as of now.
func (s *Service) Summary(ctx context.Context, now time.Time) (Summary, error) {
	summary := Summary{Enrollments: make(map[coopprogram.Status]int), GeneratedAt: now.UTC()}

	coops, err := s.coops.ListCooperatives(ctx, cooperative.Filter{})
	if err != nil {
		return Summary{}, err
	}
	summary.Cooperatives = len(coops)
	for _, c := range coops {
		if c.Status == cooperative.StatusActive {
			summary.ActiveCooperatives++
		}
	}

	enrollments, err := s.enrolled.ListCoopPrograms(ctx, coopprogram.Filter{})
	if err != nil {
		return Summary{}, err
	}
	dueBy := now.Add(s.dueWindow)
	for _, cp := range enrollments {
		summary.Enrollments[cp.Status]++
		if !cp.Status.Active() {
			continue
		}
		summary.Disbursed += cp.Amount
		items, err := s.installments.ListInstallments(ctx, cp.ID)
		if err != nil {
			return Summary{}, err
		}
		for _, item := range items {
			if item.Settled() {
				continue
			}
			summary.Outstanding += item.Outstanding()
			switch {
			case item.Status == amortization.StatusOverdue:
				summary.OverdueInstallments++
			case !item.DueDate.Before(now) && !item.DueDate.After(dueBy):
				summary.DueSoon++
			}
		}
	}
	return summary, nil
}
