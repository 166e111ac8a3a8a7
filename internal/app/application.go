package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coopfund/backoffice/internal/app/lock"
	"github.com/coopfund/backoffice/internal/app/scheduler"
	"github.com/coopfund/backoffice/internal/app/services/amortization"
	"github.com/coopfund/backoffice/internal/app/services/archiver"
	"github.com/coopfund/backoffice/internal/app/services/checklists"
	"github.com/coopfund/backoffice/internal/app/services/cooperatives"
	"github.com/coopfund/backoffice/internal/app/services/coopprograms"
	"github.com/coopfund/backoffice/internal/app/services/dashboard"
	"github.com/coopfund/backoffice/internal/app/services/dbsync"
	"github.com/coopfund/backoffice/internal/app/services/delinquency"
	"github.com/coopfund/backoffice/internal/app/services/notifications"
	"github.com/coopfund/backoffice/internal/app/services/programs"
	"github.com/coopfund/backoffice/internal/app/services/users"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/coopfund/backoffice/internal/app/storage/memory"
	"github.com/coopfund/backoffice/internal/app/system"
	"github.com/coopfund/backoffice/internal/config"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Job names accepted by RunJob.
const (
	JobArchive       = "archive"
	JobNotifications = "notifications"
	JobDelinquency   = "delinquency"
	JobSync          = "sync"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Cooperatives  storage.CooperativeStore
	Programs      storage.ProgramStore
	Checklists    storage.ChecklistStore
	CoopPrograms  storage.CoopProgramStore
	Amortization  storage.AmortizationStore
	Notifications storage.NotificationStore
	Users         storage.UserStore
	SyncLogs      storage.SyncLogStore
}

// Options carries the non-store collaborators. Blobs and Tokens are required
// for uploads and logins; Sync is nil on nodes that do not replicate. Sync
// failures are reported through the application's notification service.
type Options struct {
	Loans    config.LoansConfig
	Schedule config.ScheduleConfig
	Blobs    checklists.Blobs
	Tokens   users.TokenIssuer
	Locker   lock.Locker
	Sync     *dbsync.Engine
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Cooperatives  *cooperatives.Service
	Programs      *programs.Service
	Checklists    *checklists.Service
	CoopPrograms  *coopprograms.Service
	Amortization  *amortization.Service
	Notifications *notifications.Service
	Users         *users.Service
	Dashboard     *dashboard.Service
	Dispatcher    *notifications.Dispatcher
	Delinquency   *delinquency.Checker
	Archiver      *archiver.Archiver
	Sync          *dbsync.Engine
	Scheduler     *scheduler.Scheduler
	SyncLogs      storage.SyncLogStore
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Cooperatives == nil {
		stores.Cooperatives = mem
	}
	if stores.Programs == nil {
		stores.Programs = mem
	}
	if stores.Checklists == nil {
		stores.Checklists = mem
	}
	if stores.CoopPrograms == nil {
		stores.CoopPrograms = mem
	}
	if stores.Amortization == nil {
		stores.Amortization = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.SyncLogs == nil {
		stores.SyncLogs = mem
	}

	coopService := cooperatives.New(stores.Cooperatives, stores.CoopPrograms, log.Component("cooperatives"))
	programService := programs.New(stores.Programs, stores.CoopPrograms, log.Component("programs"))
	checklistService := checklists.New(stores.Checklists, stores.Programs, stores.CoopPrograms, opts.Blobs, log.Component("checklists"))
	amortService := amortization.New(stores.Amortization, stores.CoopPrograms, log.Component("amortization"))
	enrollService := coopprograms.New(stores.Cooperatives, stores.Programs, stores.CoopPrograms,
		checklistService, amortService, log.Component("coopprograms"))
	notifyService := notifications.New(stores.Notifications, stores.Users, log.Component("notifications"))
	userService := users.New(stores.Users, opts.Tokens, log.Component("users"))
	if opts.Sync != nil {
		opts.Sync.SetNotifier(notifyService)
	}

	dispatcher := notifications.NewDispatcher(notifyService, stores.Amortization, stores.CoopPrograms,
		opts.Loans.ReminderDays, log.Component("notifications"))
	checker := delinquency.New(stores.Amortization, stores.CoopPrograms, enrollService, notifyService,
		delinquency.Policy{GraceDays: opts.Loans.GraceDays, PenaltyBP: opts.Loans.PenaltyBP}, log.Component("delinquency"))
	archive := archiver.New(stores.CoopPrograms, enrollService, opts.Loans.ArchiveAfterDays, log.Component("archiver"))

	sched := scheduler.New(opts.Locker, log.Component("scheduler"))
	a := &Application{
		manager:       system.NewManager(),
		log:           log,
		Cooperatives:  coopService,
		Programs:      programService,
		Checklists:    checklistService,
		CoopPrograms:  enrollService,
		Amortization:  amortService,
		Notifications: notifyService,
		Users:         userService,
		Dashboard:     dashboard.New(stores.Cooperatives, stores.CoopPrograms, stores.Amortization, opts.Loans.ReminderDays, log.Component("dashboard")),
		Dispatcher:    dispatcher,
		Delinquency:   checker,
		Archiver:      archive,
		Sync:          opts.Sync,
		Scheduler:     sched,
		SyncLogs:      stores.SyncLogs,
	}

	spec := func(s string) string {
		if !opts.Schedule.Enabled {
			return ""
		}
		return s
	}
	jobs := []scheduler.Job{
		{Name: JobArchive, Spec: spec(opts.Schedule.Archive), Run: func(ctx context.Context) error {
			_, err := archive.Run(ctx, time.Now().UTC())
			return err
		}},
		{Name: JobNotifications, Spec: spec(opts.Schedule.Notifications), Run: func(ctx context.Context) error {
			_, err := dispatcher.Run(ctx, time.Now().UTC())
			return err
		}},
		{Name: JobDelinquency, Spec: spec(opts.Schedule.Delinquency), Run: func(ctx context.Context) error {
			_, err := checker.Run(ctx, time.Now().UTC())
			return err
		}},
	}
	if opts.Sync != nil {
		jobs = append(jobs, scheduler.Job{Name: JobSync, Spec: spec(opts.Schedule.Sync), Timeout: time.Hour, Run: func(ctx context.Context) error {
			_, err := opts.Sync.Run(ctx)
			return err
		}})
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}

	if opts.Schedule.Enabled {
		if err := a.manager.Register(sched); err != nil {
			return nil, fmt.Errorf("register scheduler: %w", err)
		}
	}
	return a, nil
}

// RunJob runs one scheduled job immediately under its lock.
func (a *Application) RunJob(ctx context.Context, name string) error {
	return a.Scheduler.RunNow(ctx, name)
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
