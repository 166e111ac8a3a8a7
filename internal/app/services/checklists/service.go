package checklists

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/coopfund/backoffice/internal/app/domain/checklist"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/files"
	"github.com/coopfund/backoffice/internal/app/storage"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Blobs persists uploaded document bodies.
type Blobs interface {
	Save(ctx context.Context, prefix, name string, r io.Reader) (files.Stored, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// Service manages program document checklists and the uploads that satisfy them.
type Service struct {
	store    storage.ChecklistStore
	programs storage.ProgramStore
	enrolled storage.CoopProgramStore
	blobs    Blobs
	log      *logger.Logger
}

// New creates a checklist service.
func New(store storage.ChecklistStore, programs storage.ProgramStore, enrolled storage.CoopProgramStore, blobs Blobs, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("checklists")
	}
	return &Service{store: store, programs: programs, enrolled: enrolled, blobs: blobs, log: log}
}

// Create adds a checklist item to a program.
func (s *Service) Create(ctx context.Context, c checklist.Checklist) (checklist.Checklist, error) {
	c.ID = ""
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return checklist.Checklist{}, svcerrors.FieldError("name", "name is required")
	}
	if _, err := s.programs.GetProgram(ctx, c.ProgramID); err != nil {
		return checklist.Checklist{}, err
	}
	if c.SortOrder <= 0 {
		existing, err := s.store.ListChecklists(ctx, c.ProgramID)
		if err != nil {
			return checklist.Checklist{}, err
		}
		next := 1
		for _, item := range existing {
			if item.SortOrder >= next {
				next = item.SortOrder + 1
			}
		}
		c.SortOrder = next
	}
	return s.store.CreateChecklist(ctx, c)
}

// Update edits a checklist item.
func (s *Service) Update(ctx context.Context, c checklist.Checklist) (checklist.Checklist, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return checklist.Checklist{}, svcerrors.FieldError("name", "name is required")
	}
	return s.store.UpdateChecklist(ctx, c)
}

// Delete removes a checklist item and its uploads.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteChecklist(ctx, id)
}

// Get fetches a checklist item.
func (s *Service) Get(ctx context.Context, id string) (checklist.Checklist, error) {
	return s.store.GetChecklist(ctx, id)
}

// List returns a program's checklist ordered by SortOrder.
func (s *Service) List(ctx context.Context, programID string) ([]checklist.Checklist, error) {
	if _, err := s.programs.GetProgram(ctx, programID); err != nil {
		return nil, err
	}
	return s.store.ListChecklists(ctx, programID)
}

// UploadRequest carries one submitted document.
type UploadRequest struct {
	CoopProgramID string
	ChecklistID   string
	FileName      string
	ContentType   string
	UploadedBy    string
	Body          io.Reader
}

// Upload stores a document for a checklist item of an enrollment, replacing
// any earlier upload for the same item.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (checklist.Upload, error) {
	name := filepath.Base(strings.TrimSpace(req.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return checklist.Upload{}, svcerrors.FieldError("file", "file name is required")
	}
	cp, err := s.enrolled.GetCoopProgram(ctx, req.CoopProgramID)
	if err != nil {
		return checklist.Upload{}, err
	}
	if cp.Status == coopprogram.StatusArchived || cp.Status == coopprogram.StatusCancelled {
		return checklist.Upload{}, svcerrors.Conflict("enrollment is " + string(cp.Status))
	}
	item, err := s.store.GetChecklist(ctx, req.ChecklistID)
	if err != nil {
		return checklist.Upload{}, err
	}
	if item.ProgramID != cp.ProgramID {
		return checklist.Upload{}, svcerrors.FieldError("checklist_id", "checklist item belongs to another program")
	}

	stored, err := s.blobs.Save(ctx, cp.ID, name, req.Body)
	switch {
	case errors.Is(err, files.ErrEmpty):
		return checklist.Upload{}, svcerrors.FieldError("file", "file is empty")
	case errors.Is(err, files.ErrTooLarge):
		return checklist.Upload{}, svcerrors.FieldError("file", "file exceeds the upload limit")
	case err != nil:
		return checklist.Upload{}, svcerrors.Internal("store upload", err)
	}

	var previous string
	if uploads, err := s.store.ListUploads(ctx, cp.ID); err == nil {
		for _, u := range uploads {
			if u.ChecklistID == item.ID {
				previous = u.StoragePath
			}
		}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	upload, err := s.store.SaveUpload(ctx, checklist.Upload{
		CoopProgramID: cp.ID,
		ChecklistID:   item.ID,
		FileName:      name,
		ContentType:   contentType,
		Size:          stored.Size,
		SHA256:        stored.SHA256,
		StoragePath:   stored.Path,
		UploadedBy:    req.UploadedBy,
	})
	if err != nil {
		_ = s.blobs.Delete(ctx, stored.Path)
		return checklist.Upload{}, err
	}
	if previous != "" && previous != stored.Path {
		if err := s.blobs.Delete(ctx, previous); err != nil {
			s.log.WithField("path", previous).WithError(err).Warn("remove replaced upload")
		}
	}
	s.log.WithField("coop_program_id", cp.ID).
		WithField("checklist_id", item.ID).
		WithField("size", stored.Size).
		Info("checklist document uploaded")
	return upload, nil
}

// ListUploads returns the documents submitted for an enrollment.
func (s *Service) ListUploads(ctx context.Context, coopProgramID string) ([]checklist.Upload, error) {
	if _, err := s.enrolled.GetCoopProgram(ctx, coopProgramID); err != nil {
		return nil, err
	}
	return s.store.ListUploads(ctx, coopProgramID)
}

// OpenUpload returns an upload and a reader for its body. The caller closes it.
func (s *Service) OpenUpload(ctx context.Context, id string) (checklist.Upload, io.ReadCloser, error) {
	u, err := s.store.GetUpload(ctx, id)
	if err != nil {
		return checklist.Upload{}, nil, err
	}
	rc, err := s.blobs.Open(ctx, u.StoragePath)
	if err != nil {
		return checklist.Upload{}, nil, svcerrors.NotFound("upload file", id)
	}
	return u, rc, nil
}

// RemoveUpload deletes an upload and its stored body.
func (s *Service) RemoveUpload(ctx context.Context, id string) error {
	u, err := s.store.GetUpload(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUpload(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, u.StoragePath); err != nil {
		s.log.WithField("upload_id", id).WithError(err).Warn("remove upload body")
	}
	return nil
}

// Completion counts required checklist items that have an upload.
func (s *Service) Completion(ctx context.Context, coopProgramID string) (checklist.Completion, error) {
	cp, err := s.enrolled.GetCoopProgram(ctx, coopProgramID)
	if err != nil {
		return checklist.Completion{}, err
	}
	items, err := s.store.ListChecklists(ctx, cp.ProgramID)
	if err != nil {
		return checklist.Completion{}, err
	}
	uploads, err := s.store.ListUploads(ctx, cp.ID)
	if err != nil {
		return checklist.Completion{}, err
	}
	have := make(map[string]bool, len(uploads))
	for _, u := range uploads {
		have[u.ChecklistID] = true
	}

	result := checklist.Completion{Missing: []checklist.Checklist{}}
	for _, item := range items {
		if !item.Required {
			continue
		}
		result.Required++
		if have[item.ID] {
			result.Completed++
		} else {
			result.Missing = append(result.Missing, item)
		}
	}
	if result.Required == 0 {
		result.Percent = 100
	} else {
		result.Percent = result.Completed * 100 / result.Required
	}
	return result, nil
}
