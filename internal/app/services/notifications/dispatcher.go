package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/services/amortization"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/coopfund/backoffice/pkg/logger"
)

// DispatchResult summarises one reminder run.
type DispatchResult struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
}

// Dispatcher sends due-date reminders for upcoming installments.
type Dispatcher struct {
	notifier     *Service
	installments storage.AmortizationStore
	enrolled     storage.CoopProgramStore
	reminderDays int
	log          *logger.Logger
}

// NewDispatcher creates a reminder dispatcher. reminderDays <= 0 defaults to 7.
func NewDispatcher(notifier *Service, installments storage.AmortizationStore, enrolled storage.CoopProgramStore, reminderDays int, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notification-dispatcher")
	}
	if reminderDays <= 0 {
		reminderDays = 7
	}
	return &Dispatcher{
		notifier:     notifier,
		installments: installments,
		enrolled:     enrolled,
		reminderDays: reminderDays,
		log:          log,
	}
}

// Run notifies staff and admins once per installment falling due between now
// and now + reminderDays. Failures on single installments are logged and skipped.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (DispatchResult, error) {
	now = now.UTC()
	horizon := now.AddDate(0, 0, d.reminderDays)
	due, err := d.installments.ListUnpaidDueBefore(ctx, horizon)
	if err != nil {
		return DispatchResult{}, err
	}

	var result DispatchResult
	for _, item := range due {
		if item.DueDate.Before(now) {
			continue
		}
		result.Checked++
		cp, err := d.enrolled.GetCoopProgram(ctx, item.CoopProgramID)
		if err != nil {
			d.log.WithField("installment_id", item.ID).WithError(err).Warn("reminder skipped")
			continue
		}
		if !cp.Status.Active() {
			continue
		}
		sent, err := d.notifier.NotifyRoles(ctx, Message{
			Kind:      notification.KindDueReminder,
			Title:     fmt.Sprintf("%s installment %d due %s", cp.ReferenceNo, item.Sequence, item.DueDate.Format("2006-01-02")),
			Body:      fmt.Sprintf("Amount due: %s", amortization.FormatCents(item.Outstanding())),
			Reference: item.ID,
		}, user.RoleAdmin, user.RoleStaff)
		if err != nil {
			d.log.WithField("installment_id", item.ID).WithError(err).Warn("reminder failed")
			continue
		}
		result.Sent += sent
	}
	d.log.WithField("checked", result.Checked).WithField("sent", result.Sent).Info("due reminders dispatched")
	return result, nil
}
