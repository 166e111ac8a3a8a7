// Package scheduler runs the periodic back-office jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coopfund/backoffice/internal/app/lock"
	"github.com/coopfund/backoffice/internal/app/metrics"
	"github.com/coopfund/backoffice/internal/app/system"
	"github.com/coopfund/backoffice/pkg/logger"
)

var (
	// ErrSkipped is returned by RunNow when the job's lock is held elsewhere.
	ErrSkipped = errors.New("scheduler: job already running")
	// ErrUnknownJob is returned by RunNow for names never added.
	ErrUnknownJob = errors.New("scheduler: unknown job")
)

// Parser accepts five-field specs, an optional seconds field and descriptors
// such as @every 10m.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one named periodic task.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobInfo reports schedule and last outcome of a job.
type JobInfo struct {
	Name      string     `json:"name"`
	Spec      string     `json:"spec"`
	Next      *time.Time `json:"next,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Skipped   int        `json:"skipped"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	lastRun *time.Time
	lastErr string
	skipped int
}

// Scheduler wraps robfig/cron. Every run holds an advisory lock named after
// the job so runs never overlap, across processes when the locker is shared.
type Scheduler struct {
	cron   *cron.Cron
	locker lock.Locker
	log    *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

var _ system.Service = (*Scheduler)(nil)

func New(locker lock.Locker, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithParser(Parser), cron.WithLocation(time.UTC)),
		locker:  locker,
		log:     log,
		entries: make(map[string]*entry),
		ctx:     context.Background(),
	}
}

// Add registers a job. An empty spec registers it for RunNow only.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	if job.Timeout <= 0 {
		job.Timeout = 30 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	e := &entry{job: job}
	if job.Spec != "" {
		id, err := s.cron.AddFunc(job.Spec, func() {
			err := s.RunNow(s.context(), job.Name)
			if errors.Is(err, ErrSkipped) {
				s.log.WithField("job", job.Name).Info("previous run still active; skipped")
			}
		})
		if err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
		e.id = id
	}
	s.entries[job.Name] = e
	return nil
}

// RunNow runs a job immediately under its lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	job := e.job

	// The lock outlives the timeout slightly so a hung run still expires.
	release, err := s.locker.Acquire(ctx, "job:"+job.Name, job.Timeout+time.Minute)
	if errors.Is(err, lock.ErrHeld) {
		s.mu.Lock()
		e.skipped++
		s.mu.Unlock()
		return ErrSkipped
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", job.Name, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithField("job", job.Name).WithError(err).Warn("release lock failed")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	runErr := job.Run(runCtx)
	duration := time.Since(start)
	metrics.RecordJob(job.Name, duration, runErr == nil)

	s.mu.Lock()
	finished := start.UTC()
	e.lastRun = &finished
	e.lastErr = ""
	if runErr != nil {
		e.lastErr = runErr.Error()
	}
	s.mu.Unlock()

	fields := s.log.WithField("job", job.Name).WithField("duration", duration.String())
	if runErr != nil {
		fields.WithError(runErr).Error("job failed")
		return runErr
	}
	fields.Info("job finished")
	return nil
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]JobInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := JobInfo{
			Name:      e.job.Name,
			Spec:      e.job.Spec,
			LastRunAt: e.lastRun,
			LastError: e.lastErr,
			Skipped:   e.skipped,
		}
		if e.id != 0 {
			if next := s.cron.Entry(e.id).Next; !next.IsZero() {
				info.Next = &next
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
	s.log.WithField("jobs", len(s.entries)).Info("scheduler started")
	return nil
}

// Stop stops triggering jobs and waits for running ones up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	if cancel != nil {
		cancel()
	}
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
