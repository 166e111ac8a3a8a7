package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/checklist"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/google/uuid"
)

const checklistColumns = `id, program_id, name, description, required, sort_order, created_at, updated_at`

const uploadColumns = `id, coop_program_id, checklist_id, file_name, content_type, size, sha256,
	storage_path, uploaded_by, uploaded_at, updated_at`

// --- ChecklistStore ---------------------------------------------------------

func (s *Store) CreateChecklist(ctx context.Context, c checklist.Checklist) (checklist.Checklist, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checklists (`+checklistColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, c.ID, c.ProgramID, c.Name, c.Description, c.Required, c.SortOrder, c.CreatedAt, c.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "checklists", c.ID, synclog.OpInsert, c, now)
	})
	if err != nil {
		return checklist.Checklist{}, err
	}
	return c, nil
}

func (s *Store) UpdateChecklist(ctx context.Context, c checklist.Checklist) (checklist.Checklist, error) {
	existing, err := s.GetChecklist(ctx, c.ID)
	if err != nil {
		return checklist.Checklist{}, err
	}
	c.ProgramID = existing.ProgramID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE checklists
			SET name = $2, description = $3, required = $4, sort_order = $5, updated_at = $6
			WHERE id = $1
		`, c.ID, c.Name, c.Description, c.Required, c.SortOrder, c.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return s.appendLog(ctx, tx, "checklists", c.ID, synclog.OpUpdate, c, c.UpdatedAt)
	})
	if err != nil {
		return checklist.Checklist{}, err
	}
	return c, nil
}

func (s *Store) GetChecklist(ctx context.Context, id string) (checklist.Checklist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checklistColumns+` FROM checklists WHERE id = $1`, id)
	return scanChecklist(row)
}

func (s *Store) ListChecklists(ctx context.Context, programID string) ([]checklist.Checklist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+checklistColumns+`
		FROM checklists
		WHERE program_id = $1
		ORDER BY sort_order, created_at, id
	`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []checklist.Checklist
	for rows.Next() {
		c, err := scanChecklist(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteChecklist(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "checklists", id)
}

func scanChecklist(row scanner) (checklist.Checklist, error) {
	var c checklist.Checklist
	if err := row.Scan(&c.ID, &c.ProgramID, &c.Name, &c.Description, &c.Required, &c.SortOrder,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return checklist.Checklist{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// --- Uploads ----------------------------------------------------------------

// SaveUpload inserts an upload, or replaces the existing upload for the same
// enrollment and checklist item in place (keeping its id).
func (s *Store) SaveUpload(ctx context.Context, u checklist.Upload) (checklist.Upload, error) {
	now := time.Now().UTC()
	u.UploadedAt = now
	u.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existingID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM checklist_uploads WHERE coop_program_id = $1 AND checklist_id = $2
			ORDER BY uploaded_at DESC LIMIT 1
		`, u.CoopProgramID, u.ChecklistID).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if u.ID == "" {
				u.ID = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO checklist_uploads (`+uploadColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`, u.ID, u.CoopProgramID, u.ChecklistID, u.FileName, u.ContentType, u.Size, u.SHA256,
				u.StoragePath, u.UploadedBy, u.UploadedAt, u.UpdatedAt); err != nil {
				return err
			}
			return s.appendLog(ctx, tx, "checklist_uploads", u.ID, synclog.OpInsert, u, now)
		case err != nil:
			return err
		}

		u.ID = existingID
		if _, err := tx.ExecContext(ctx, `
			UPDATE checklist_uploads
			SET file_name = $2, content_type = $3, size = $4, sha256 = $5, storage_path = $6,
				uploaded_by = $7, uploaded_at = $8, updated_at = $9
			WHERE id = $1
		`, u.ID, u.FileName, u.ContentType, u.Size, u.SHA256, u.StoragePath, u.UploadedBy,
			u.UploadedAt, u.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "checklist_uploads", u.ID, synclog.OpUpdate, u, now)
	})
	if err != nil {
		return checklist.Upload{}, err
	}
	return u, nil
}

func (s *Store) GetUpload(ctx context.Context, id string) (checklist.Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM checklist_uploads WHERE id = $1`, id)
	return scanUpload(row)
}

func (s *Store) ListUploads(ctx context.Context, coopProgramID string) ([]checklist.Upload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+uploadColumns+`
		FROM checklist_uploads
		WHERE coop_program_id = $1
		ORDER BY uploaded_at, id
	`, coopProgramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []checklist.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) DeleteUpload(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "checklist_uploads", id)
}

func scanUpload(row scanner) (checklist.Upload, error) {
	var u checklist.Upload
	if err := row.Scan(&u.ID, &u.CoopProgramID, &u.ChecklistID, &u.FileName, &u.ContentType, &u.Size,
		&u.SHA256, &u.StoragePath, &u.UploadedBy, &u.UploadedAt, &u.UpdatedAt); err != nil {
		return checklist.Upload{}, err
	}
	u.UploadedAt = u.UploadedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}
