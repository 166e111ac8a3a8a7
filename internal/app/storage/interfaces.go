package storage

import (
	"context"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/checklist"
	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/coopfund/backoffice/internal/app/domain/user"
)

// Missing records are reported as errors wrapping sql.ErrNoRows by every
// implementation.

// CooperativeStore persists cooperatives and their members.
type CooperativeStore interface {
	CreateCooperative(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error)
	UpdateCooperative(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error)
	GetCooperative(ctx context.Context, id string) (cooperative.Cooperative, error)
	GetCooperativeByRegistration(ctx context.Context, registrationNo string) (cooperative.Cooperative, error)
	ListCooperatives(ctx context.Context, filter cooperative.Filter) ([]cooperative.Cooperative, error)
	DeleteCooperative(ctx context.Context, id string) error

	CreateMember(ctx context.Context, m cooperative.Member) (cooperative.Member, error)
	UpdateMember(ctx context.Context, m cooperative.Member) (cooperative.Member, error)
	GetMember(ctx context.Context, id string) (cooperative.Member, error)
	ListMembers(ctx context.Context, cooperativeID string) ([]cooperative.Member, error)
	DeleteMember(ctx context.Context, id string) error
}

// ProgramStore persists programs and their checklist templates.
type ProgramStore interface {
	CreateProgram(ctx context.Context, p program.Program) (program.Program, error)
	UpdateProgram(ctx context.Context, p program.Program) (program.Program, error)
	GetProgram(ctx context.Context, id string) (program.Program, error)
	ListPrograms(ctx context.Context, activeOnly bool) ([]program.Program, error)
	DeleteProgram(ctx context.Context, id string) error
}

// ChecklistStore persists checklist templates and uploads.
type ChecklistStore interface {
	CreateChecklist(ctx context.Context, c checklist.Checklist) (checklist.Checklist, error)
	UpdateChecklist(ctx context.Context, c checklist.Checklist) (checklist.Checklist, error)
	GetChecklist(ctx context.Context, id string) (checklist.Checklist, error)
	ListChecklists(ctx context.Context, programID string) ([]checklist.Checklist, error)
	DeleteChecklist(ctx context.Context, id string) error

	// SaveUpload inserts or replaces the upload for (coop program, checklist).
	SaveUpload(ctx context.Context, u checklist.Upload) (checklist.Upload, error)
	GetUpload(ctx context.Context, id string) (checklist.Upload, error)
	ListUploads(ctx context.Context, coopProgramID string) ([]checklist.Upload, error)
	DeleteUpload(ctx context.Context, id string) error
}

// CoopProgramStore persists enrollments.
type CoopProgramStore interface {
	CreateCoopProgram(ctx context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error)
	UpdateCoopProgram(ctx context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error)
	GetCoopProgram(ctx context.Context, id string) (coopprogram.CoopProgram, error)
	ListCoopPrograms(ctx context.Context, filter coopprogram.Filter) ([]coopprogram.CoopProgram, error)
	DeleteCoopProgram(ctx context.Context, id string) error
}

// PaymentFunc returns the installments changed by a payment.
type PaymentFunc func(items []amortization.Installment) ([]amortization.Installment, error)

// AmortizationStore persists schedule installments.
type AmortizationStore interface {
	// ReplaceSchedule removes any existing installments of the enrollment and
	// stores the given ones.
	ReplaceSchedule(ctx context.Context, coopProgramID string, items []amortization.Installment) ([]amortization.Installment, error)
	ListInstallments(ctx context.Context, coopProgramID string) ([]amortization.Installment, error)
	UpdateInstallment(ctx context.Context, item amortization.Installment) (amortization.Installment, error)
	// ApplyPayment locks the enrollment's schedule, hands it to apply in
	// sequence order and stores the installments apply returns, all or
	// nothing. Calls for the same enrollment run one at a time.
	ApplyPayment(ctx context.Context, coopProgramID string, apply PaymentFunc) ([]amortization.Installment, error)
	// ListUnpaidDueBefore returns unpaid installments across enrollments whose
	// due date is before the given time, ordered by due date.
	ListUnpaidDueBefore(ctx context.Context, before time.Time) ([]amortization.Installment, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	GetNotification(ctx context.Context, id string) (notification.Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, at time.Time) (notification.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, id string) error
	NotificationExists(ctx context.Context, userID string, kind notification.Kind, reference string) (bool, error)
}

// UserStore persists back-office users.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// SyncLogStore exposes the local mutation log and sync high-water marks.
type SyncLogStore interface {
	AppendSyncLog(ctx context.Context, entry synclog.Entry) (synclog.Entry, error)
	ListSyncLogs(ctx context.Context, after time.Time, limit int) ([]synclog.Entry, error)
	CountSyncLogsAfter(ctx context.Context, after time.Time) (int, error)
	GetSyncState(ctx context.Context, table string, dir synclog.Direction) (synclog.State, error)
	ListSyncStates(ctx context.Context) ([]synclog.State, error)
}
