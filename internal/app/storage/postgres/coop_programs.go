package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const coopProgramColumns = `id, cooperative_id, program_id, reference_no, project, amount, interest_rate,
	term_months, grace_months, status, approved_at, released_at, completed_at, archived_at, created_at, updated_at`

// --- CoopProgramStore -------------------------------------------------------

func (s *Store) CreateCoopProgram(ctx context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coop_programs (`+coopProgramColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`, cp.ID, cp.CooperativeID, cp.ProgramID, cp.ReferenceNo, cp.Project, cp.Amount, cp.InterestRate,
			cp.TermMonths, cp.GraceMonths, string(cp.Status), toNullTime(cp.ApprovedAt), toNullTime(cp.ReleasedAt),
			toNullTime(cp.CompletedAt), toNullTime(cp.ArchivedAt), cp.CreatedAt, cp.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "coop_programs", cp.ID, synclog.OpInsert, cp, now)
	})
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	return cp, nil
}

func (s *Store) UpdateCoopProgram(ctx context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error) {
	existing, err := s.GetCoopProgram(ctx, cp.ID)
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	cp.CooperativeID = existing.CooperativeID
	cp.ProgramID = existing.ProgramID
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE coop_programs
			SET reference_no = $2, project = $3, amount = $4, interest_rate = $5, term_months = $6,
				grace_months = $7, status = $8, approved_at = $9, released_at = $10, completed_at = $11,
				archived_at = $12, updated_at = $13
			WHERE id = $1
		`, cp.ID, cp.ReferenceNo, cp.Project, cp.Amount, cp.InterestRate, cp.TermMonths, cp.GraceMonths,
			string(cp.Status), toNullTime(cp.ApprovedAt), toNullTime(cp.ReleasedAt), toNullTime(cp.CompletedAt),
			toNullTime(cp.ArchivedAt), cp.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return s.appendLog(ctx, tx, "coop_programs", cp.ID, synclog.OpUpdate, cp, cp.UpdatedAt)
	})
	if err != nil {
		return coopprogram.CoopProgram{}, err
	}
	return cp, nil
}

func (s *Store) GetCoopProgram(ctx context.Context, id string) (coopprogram.CoopProgram, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+coopProgramColumns+` FROM coop_programs WHERE id = $1`, id)
	return scanCoopProgram(row)
}

func (s *Store) ListCoopPrograms(ctx context.Context, filter coopprogram.Filter) ([]coopprogram.CoopProgram, error) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.CooperativeID != "" {
		add("cooperative_id = ?", filter.CooperativeID)
	}
	if filter.ProgramID != "" {
		add("program_id = ?", filter.ProgramID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY(?)", pq.Array(statuses))
	}

	query := `SELECT ` + coopProgramColumns + ` FROM coop_programs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []coopprogram.CoopProgram
	for rows.Next() {
		cp, err := scanCoopProgram(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, rows.Err()
}

func (s *Store) DeleteCoopProgram(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "coop_programs", id)
}

func scanCoopProgram(row scanner) (coopprogram.CoopProgram, error) {
	var (
		cp                                            coopprogram.CoopProgram
		status                                        string
		approvedAt, releasedAt, completedAt, archived sql.NullTime
	)
	if err := row.Scan(&cp.ID, &cp.CooperativeID, &cp.ProgramID, &cp.ReferenceNo, &cp.Project, &cp.Amount,
		&cp.InterestRate, &cp.TermMonths, &cp.GraceMonths, &status, &approvedAt, &releasedAt, &completedAt,
		&archived, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return coopprogram.CoopProgram{}, err
	}
	cp.Status = coopprogram.Status(status)
	cp.ApprovedAt = fromNullTime(approvedAt)
	cp.ReleasedAt = fromNullTime(releasedAt)
	cp.CompletedAt = fromNullTime(completedAt)
	cp.ArchivedAt = fromNullTime(archived)
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return cp, nil
}
