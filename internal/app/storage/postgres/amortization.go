package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/coopfund/backoffice/internal/app/storage"
	"github.com/google/uuid"
)

const installmentColumns = `id, coop_program_id, sequence, due_date, principal, interest, penalty,
	amount_paid, balance, status, paid_at, created_at, updated_at`

// --- AmortizationStore ------------------------------------------------------

// ReplaceSchedule deletes any existing installments of the enrollment and
// inserts items in one transaction.
func (s *Store) ReplaceSchedule(ctx context.Context, coopProgramID string, items []amortization.Installment) ([]amortization.Installment, error) {
	now := time.Now().UTC()
	out := make([]amortization.Installment, 0, len(items))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			DELETE FROM amortization_schedules WHERE coop_program_id = $1 RETURNING id
		`, coopProgramID)
		if err != nil {
			return err
		}
		var removed []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			removed = append(removed, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range removed {
			if err := s.appendLog(ctx, tx, "amortization_schedules", id, synclog.OpDelete, nil, now); err != nil {
				return err
			}
		}

		for _, item := range items {
			item.ID = uuid.NewString()
			item.CoopProgramID = coopProgramID
			item.CreatedAt = now
			item.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO amortization_schedules (`+installmentColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			`, item.ID, item.CoopProgramID, item.Sequence, item.DueDate, item.Principal, item.Interest,
				item.Penalty, item.AmountPaid, item.Balance, string(item.Status), toNullTime(item.PaidAt),
				item.CreatedAt, item.UpdatedAt); err != nil {
				return err
			}
			if err := s.appendLog(ctx, tx, "amortization_schedules", item.ID, synclog.OpInsert, item, now); err != nil {
				return err
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListInstallments(ctx context.Context, coopProgramID string) ([]amortization.Installment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+installmentColumns+`
		FROM amortization_schedules
		WHERE coop_program_id = $1
		ORDER BY sequence
	`, coopProgramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstallments(rows)
}

func (s *Store) UpdateInstallment(ctx context.Context, item amortization.Installment) (amortization.Installment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+installmentColumns+` FROM amortization_schedules WHERE id = $1`, item.ID)
	existing, err := scanInstallment(row)
	if err != nil {
		return amortization.Installment{}, err
	}
	item.CoopProgramID = existing.CoopProgramID
	item.Sequence = existing.Sequence
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE amortization_schedules
			SET due_date = $2, principal = $3, interest = $4, penalty = $5, amount_paid = $6, balance = $7,
				status = $8, paid_at = $9, updated_at = $10
			WHERE id = $1
		`, item.ID, item.DueDate, item.Principal, item.Interest, item.Penalty, item.AmountPaid, item.Balance,
			string(item.Status), toNullTime(item.PaidAt), item.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return s.appendLog(ctx, tx, "amortization_schedules", item.ID, synclog.OpUpdate, item, item.UpdatedAt)
	})
	if err != nil {
		return amortization.Installment{}, err
	}
	return item, nil
}

// ApplyPayment holds row locks on the schedule for the whole transaction, so
// concurrent payments on one enrollment apply one after the other.
func (s *Store) ApplyPayment(ctx context.Context, coopProgramID string, apply storage.PaymentFunc) ([]amortization.Installment, error) {
	var out []amortization.Installment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+installmentColumns+`
			FROM amortization_schedules
			WHERE coop_program_id = $1
			ORDER BY sequence
			FOR UPDATE
		`, coopProgramID)
		if err != nil {
			return err
		}
		items, err := collectInstallments(rows)
		rows.Close()
		if err != nil {
			return err
		}
		locked := make(map[string]amortization.Installment, len(items))
		for _, item := range items {
			locked[item.ID] = item
		}

		changed, err := apply(items)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		out = make([]amortization.Installment, 0, len(changed))
		for _, item := range changed {
			original, ok := locked[item.ID]
			if !ok {
				return sql.ErrNoRows
			}
			item.CoopProgramID = original.CoopProgramID
			item.Sequence = original.Sequence
			item.CreatedAt = original.CreatedAt
			item.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `
				UPDATE amortization_schedules
				SET penalty = $2, amount_paid = $3, status = $4, paid_at = $5, updated_at = $6
				WHERE id = $1
			`, item.ID, item.Penalty, item.AmountPaid, string(item.Status), toNullTime(item.PaidAt), item.UpdatedAt); err != nil {
				return err
			}
			if err := s.appendLog(ctx, tx, "amortization_schedules", item.ID, synclog.OpUpdate, item, now); err != nil {
				return err
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListUnpaidDueBefore(ctx context.Context, before time.Time) ([]amortization.Installment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+installmentColumns+`
		FROM amortization_schedules
		WHERE status <> 'paid' AND due_date < $1
		ORDER BY due_date, id
	`, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstallments(rows)
}

func collectInstallments(rows *sql.Rows) ([]amortization.Installment, error) {
	var result []amortization.Installment
	for rows.Next() {
		item, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func scanInstallment(row scanner) (amortization.Installment, error) {
	var (
		item   amortization.Installment
		status string
		paidAt sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.CoopProgramID, &item.Sequence, &item.DueDate, &item.Principal,
		&item.Interest, &item.Penalty, &item.AmountPaid, &item.Balance, &status, &paidAt,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return amortization.Installment{}, err
	}
	item.Status = amortization.Status(status)
	item.PaidAt = fromNullTime(paidAt)
	item.DueDate = item.DueDate.UTC()
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}
