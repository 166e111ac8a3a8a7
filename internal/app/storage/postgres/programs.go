package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/google/uuid"
)

const programColumns = `id, code, name, description, kind, max_amount, interest_rate, term_months,
	grace_months, active, created_at, updated_at`

// --- ProgramStore -----------------------------------------------------------

func (s *Store) CreateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO programs (`+programColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, p.ID, p.Code, p.Name, p.Description, string(p.Kind), p.MaxAmount, p.InterestRate, p.TermMonths,
			p.GraceMonths, p.Active, p.CreatedAt, p.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "programs", p.ID, synclog.OpInsert, p, now)
	})
	if err != nil {
		return program.Program{}, err
	}
	return p, nil
}

func (s *Store) UpdateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	existing, err := s.GetProgram(ctx, p.ID)
	if err != nil {
		return program.Program{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE programs
			SET code = $2, name = $3, description = $4, kind = $5, max_amount = $6, interest_rate = $7,
				term_months = $8, grace_months = $9, active = $10, updated_at = $11
			WHERE id = $1
		`, p.ID, p.Code, p.Name, p.Description, string(p.Kind), p.MaxAmount, p.InterestRate, p.TermMonths,
			p.GraceMonths, p.Active, p.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return s.appendLog(ctx, tx, "programs", p.ID, synclog.OpUpdate, p, p.UpdatedAt)
	})
	if err != nil {
		return program.Program{}, err
	}
	return p, nil
}

func (s *Store) GetProgram(ctx context.Context, id string) (program.Program, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE id = $1`, id)
	return scanProgram(row)
}

func (s *Store) ListPrograms(ctx context.Context, activeOnly bool) ([]program.Program, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+programColumns+`
		FROM programs
		WHERE ($1 = false OR active)
		ORDER BY code
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []program.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeleteProgram(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "programs", id)
}

func scanProgram(row scanner) (program.Program, error) {
	var (
		p    program.Program
		kind string
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &kind, &p.MaxAmount, &p.InterestRate,
		&p.TermMonths, &p.GraceMonths, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return program.Program{}, err
	}
	p.Kind = program.Kind(kind)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
