package archiver

import (
	"context"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Archiving moves one enrollment to the archived status.
type Archiving interface {
	Archive(ctx context.Context, id string) (coopprogram.CoopProgram, error)
}

// Result summarises one run.
type Result struct {
	Checked  int `json:"checked"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// Archiver archives finished enrollments that have been idle long enough.
type Archiver struct {
	enrolled storage.CoopProgramStore
	archive  Archiving
	after    time.Duration
	log      *logger.Logger
}

// New creates an archiver. afterDays <= 0 archives on the next run.
func New(enrolled storage.CoopProgramStore, archive Archiving, afterDays int, log *logger.Logger) *Archiver {
	if log == nil {
		log = logger.NewDefault("archiver")
	}
	if afterDays < 0 {
		afterDays = 0
	}
	return &Archiver{
		enrolled: enrolled,
		archive:  archive,
		after:    time.Duration(afterDays) * 24 * time.Hour,
		log:      log,
	}
}

// Run archives completed or cancelled enrollments whose last update is older
// than the configured age.
func (a *Archiver) Run(ctx context.Context, now time.Time) (Result, error) {
	var result Result
	candidates, err := a.enrolled.ListCoopPrograms(ctx, coopprogram.Filter{
		Statuses: []coopprogram.Status{coopprogram.StatusCompleted, coopprogram.StatusCancelled},
	})
	if err != nil {
		return result, err
	}

	cutoff := now.Add(-a.after)
	for _, cp := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		if cp.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := a.archive.Archive(ctx, cp.ID); err != nil {
			result.Failed++
			a.log.WithField("coop_program_id", cp.ID).WithError(err).Warn("archive failed")
			continue
		}
		result.Archived++
	}

	a.log.WithFields(map[string]interface{}{
		"checked":  result.Checked,
		"archived": result.Archived,
		"failed":   result.Failed,
	}).Info("archive run finished")
	return result, nil
}
