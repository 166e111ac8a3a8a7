package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/google/uuid"
)

const cooperativeColumns = `id, name, registration_no, type, parent_id, region, address, contact_person,
	contact_email, contact_phone, status, archived_at, created_at, updated_at`

// --- CooperativeStore -------------------------------------------------------

func (s *Store) CreateCooperative(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	if coop.ID == "" {
		coop.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	coop.CreatedAt = now
	coop.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cooperatives (`+cooperativeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, coop.ID, coop.Name, coop.RegistrationNo, string(coop.Type), toNullString(coop.ParentID), coop.Region,
			coop.Address, coop.ContactPerson, coop.ContactEmail, coop.ContactPhone, string(coop.Status),
			toNullTime(coop.ArchivedAt), coop.CreatedAt, coop.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "cooperatives", coop.ID, synclog.OpInsert, coop, now)
	})
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	return coop, nil
}

func (s *Store) UpdateCooperative(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	existing, err := s.GetCooperative(ctx, coop.ID)
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	coop.CreatedAt = existing.CreatedAt
	coop.UpdatedAt = time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE cooperatives
			SET name = $2, registration_no = $3, type = $4, parent_id = $5, region = $6, address = $7,
				contact_person = $8, contact_email = $9, contact_phone = $10, status = $11, archived_at = $12,
				updated_at = $13
			WHERE id = $1
		`, coop.ID, coop.Name, coop.RegistrationNo, string(coop.Type), toNullString(coop.ParentID), coop.Region,
			coop.Address, coop.ContactPerson, coop.ContactEmail, coop.ContactPhone, string(coop.Status),
			toNullTime(coop.ArchivedAt), coop.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return s.appendLog(ctx, tx, "cooperatives", coop.ID, synclog.OpUpdate, coop, coop.UpdatedAt)
	})
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	return coop, nil
}

func (s *Store) GetCooperative(ctx context.Context, id string) (cooperative.Cooperative, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cooperativeColumns+` FROM cooperatives WHERE id = $1`, id)
	return scanCooperative(row)
}

func (s *Store) GetCooperativeByRegistration(ctx context.Context, registrationNo string) (cooperative.Cooperative, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cooperativeColumns+` FROM cooperatives WHERE lower(registration_no) = lower($1)
	`, registrationNo)
	return scanCooperative(row)
}

func (s *Store) ListCooperatives(ctx context.Context, filter cooperative.Filter) ([]cooperative.Cooperative, error) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.Type != "" {
		add("type = ?", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.ParentID != "" {
		add("parent_id = ?", filter.ParentID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add("(name ILIKE ? OR registration_no ILIKE ?)", "%"+search+"%")
	}

	query := `SELECT ` + cooperativeColumns + ` FROM cooperatives`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY lower(name), id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []cooperative.Cooperative
	for rows.Next() {
		coop, err := scanCooperative(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, coop)
	}
	return result, rows.Err()
}

func (s *Store) DeleteCooperative(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "cooperatives", id)
}

func scanCooperative(row scanner) (cooperative.Cooperative, error) {
	var (
		coop       cooperative.Cooperative
		coopType   string
		status     string
		parentID   sql.NullString
		archivedAt sql.NullTime
	)
	if err := row.Scan(&coop.ID, &coop.Name, &coop.RegistrationNo, &coopType, &parentID, &coop.Region,
		&coop.Address, &coop.ContactPerson, &coop.ContactEmail, &coop.ContactPhone, &status, &archivedAt,
		&coop.CreatedAt, &coop.UpdatedAt); err != nil {
		return cooperative.Cooperative{}, err
	}
	coop.Type = cooperative.Type(coopType)
	coop.Status = cooperative.Status(status)
	coop.ParentID = parentID.String
	coop.ArchivedAt = fromNullTime(archivedAt)
	coop.CreatedAt = coop.CreatedAt.UTC()
	coop.UpdatedAt = coop.UpdatedAt.UTC()
	return coop, nil
}

// --- Members ----------------------------------------------------------------

func (s *Store) CreateMember(ctx context.Context, m cooperative.Member) (cooperative.Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, cooperative_id, full_name, position, email, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, m.ID, m.CooperativeID, m.FullName, m.Position, m.Email, m.Phone, m.CreatedAt, m.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "members", m.ID, synclog.OpInsert, m, now)
	})
	if err != nil {
		return cooperative.Member{}, err
	}
	return m, nil
}

func (s *Store) UpdateMember(ctx context.Context, m cooperative.Member) (cooperative.Member, error) {
	existing, err := s.GetMember(ctx, m.ID)
	if err != nil {
		return cooperative.Member{}, err
	}
	m.CooperativeID = existing.CooperativeID
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE members
			SET full_name = $2, position = $3, email = $4, phone = $5, updated_at = $6
			WHERE id = $1
		`, m.ID, m.FullName, m.Position, m.Email, m.Phone, m.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return s.appendLog(ctx, tx, "members", m.ID, synclog.OpUpdate, m, m.UpdatedAt)
	})
	if err != nil {
		return cooperative.Member{}, err
	}
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, id string) (cooperative.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cooperative_id, full_name, position, email, phone, created_at, updated_at
		FROM members
		WHERE id = $1
	`, id)
	return scanMember(row)
}

func (s *Store) ListMembers(ctx context.Context, cooperativeID string) ([]cooperative.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cooperative_id, full_name, position, email, phone, created_at, updated_at
		FROM members
		WHERE cooperative_id = $1
		ORDER BY full_name, id
	`, cooperativeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []cooperative.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "members", id)
}

func scanMember(row scanner) (cooperative.Member, error) {
	var m cooperative.Member
	if err := row.Scan(&m.ID, &m.CooperativeID, &m.FullName, &m.Position, &m.Email, &m.Phone,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return cooperative.Member{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}
