package delinquency

import (
	"context"
	"fmt"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	amort "github.com/coopfund/backoffice/internal/app/services/amortization"
	"github.com/coopfund/backoffice/internal/app/services/notifications"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Transitioner moves an enrollment between statuses.
type Transitioner interface {
	Transition(ctx context.Context, id string, status coopprogram.Status) (coopprogram.CoopProgram, error)
}

// Notifier fans a message out to users by role.
type Notifier interface {
	NotifyRoles(ctx context.Context, msg notifications.Message, roles ...user.Role) (int, error)
}

// Policy holds the delinquency rules. GraceDays is how long an installment
// may stay overdue before the enrollment turns delinquent; PenaltyBP is the
// one-time penalty on the unpaid amount, in basis points.
type Policy struct {
	GraceDays int
	PenaltyBP int
}

// Result summarises one run.
type Result struct {
	Overdue    int `json:"overdue"`
	Penalized  int `json:"penalized"`
	Delinquent int `json:"delinquent"`
	Restored   int `json:"restored"`
}

// Checker flags overdue installments and delinquent enrollments.
type Checker struct {
	installments storage.AmortizationStore
	enrolled     storage.CoopProgramStore
	transitions  Transitioner
	notifier     Notifier
	policy       Policy
	log          *logger.Logger
}

// New creates a delinquency checker. notifier may be nil.
func New(installments storage.AmortizationStore, enrolled storage.CoopProgramStore, transitions Transitioner,
	notifier Notifier, policy Policy, log *logger.Logger) *Checker {
	if log == nil {
		log = logger.NewDefault("delinquency")
	}
	if policy.GraceDays < 0 {
		policy.GraceDays = 0
	}
	return &Checker{
		installments: installments,
		enrolled:     enrolled,
		transitions:  transitions,
		notifier:     notifier,
		policy:       policy,
		log:          log,
	}
}

// Run evaluates every unpaid installment due before now. Single-item failures
// are logged and skipped; store failures on the listing abort the run.
func (c *Checker) Run(ctx context.Context, now time.Time) (Result, error) {
	now = now.UTC()
	var result Result

	unpaid, err := c.installments.ListUnpaidDueBefore(ctx, now)
	if err != nil {
		return result, err
	}

	programs := make(map[string]coopprogram.CoopProgram)
	lapsed := make(map[string]amortization.Installment)
	// overdue holds every enrollment with an unpaid installment past due,
	// inside the grace window or not. Only enrollments outside it may be
	// restored to released.
	overdue := make(map[string]bool)
	for _, item := range unpaid {
		overdue[item.CoopProgramID] = true
		cp, ok := programs[item.CoopProgramID]
		if !ok {
			cp, err = c.enrolled.GetCoopProgram(ctx, item.CoopProgramID)
			if err != nil {
				c.log.WithField("installment_id", item.ID).WithError(err).Warn("enrollment lookup failed")
				continue
			}
			programs[cp.ID] = cp
		}
		if !cp.Status.Active() {
			continue
		}

		if item.Status != amortization.StatusOverdue {
			item.Status = amortization.StatusOverdue
			if item.Penalty == 0 {
				if penalty := Penalty(item.Outstanding(), c.policy.PenaltyBP); penalty > 0 {
					item.Penalty = penalty
					result.Penalized++
				}
			}
			if _, err := c.installments.UpdateInstallment(ctx, item); err != nil {
				c.log.WithField("installment_id", item.ID).WithError(err).Warn("mark overdue failed")
				continue
			}
			result.Overdue++
			c.notify(ctx, notifications.Message{
				Kind:      notification.KindOverdue,
				Title:     fmt.Sprintf("%s installment %d is overdue", cp.ReferenceNo, item.Sequence),
				Body:      fmt.Sprintf("Due %s, outstanding %s", item.DueDate.Format("2006-01-02"), amort.FormatCents(item.Outstanding())),
				Reference: item.ID,
			})
		}

		if item.DueDate.AddDate(0, 0, c.policy.GraceDays).Before(now) {
			if _, seen := lapsed[cp.ID]; !seen {
				lapsed[cp.ID] = item
			}
		}
	}

	for id, item := range lapsed {
		cp := programs[id]
		if cp.Status != coopprogram.StatusReleased {
			continue
		}
		if _, err := c.transitions.Transition(ctx, id, coopprogram.StatusDelinquent); err != nil {
			c.log.WithField("coop_program_id", id).WithError(err).Warn("mark delinquent failed")
			continue
		}
		result.Delinquent++
		c.notify(ctx, notifications.Message{
			Kind:      notification.KindDelinquent,
			Title:     fmt.Sprintf("%s is delinquent", cp.ReferenceNo),
			Body:      fmt.Sprintf("Installment %d has been overdue since %s", item.Sequence, item.DueDate.Format("2006-01-02")),
			Reference: fmt.Sprintf("%s@%s", id, item.ID),
		})
	}

	delinquent, err := c.enrolled.ListCoopPrograms(ctx, coopprogram.Filter{Statuses: []coopprogram.Status{coopprogram.StatusDelinquent}})
	if err != nil {
		return result, err
	}
	for _, cp := range delinquent {
		if overdue[cp.ID] {
			continue
		}
		if _, err := c.transitions.Transition(ctx, cp.ID, coopprogram.StatusReleased); err != nil {
			c.log.WithField("coop_program_id", cp.ID).WithError(err).Warn("restore failed")
			continue
		}
		result.Restored++
	}

	c.log.WithFields(map[string]interface{}{
		"overdue":    result.Overdue,
		"penalized":  result.Penalized,
		"delinquent": result.Delinquent,
		"restored":   result.Restored,
	}).Info("delinquency check finished")
	return result, nil
}

func (c *Checker) notify(ctx context.Context, msg notifications.Message) {
	if c.notifier == nil {
		return
	}
	if _, err := c.notifier.NotifyRoles(ctx, msg, user.RoleAdmin, user.RoleStaff); err != nil {
		c.log.WithField("reference", msg.Reference).WithError(err).Warn("notify failed")
	}
}

// Penalty is amount * bp / 10000 rounded half up.
func Penalty(amount int64, bp int) int64 {
	if amount <= 0 || bp <= 0 {
		return 0
	}
	return (amount*int64(bp) + 5000) / 10000
}
