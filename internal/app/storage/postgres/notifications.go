package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/google/uuid"
)

const notificationColumns = `id, user_id, kind, title, body, reference, read_at, created_at, updated_at`

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (`+notificationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, n.ID, n.UserID, string(n.Kind), n.Title, n.Body, n.Reference, toNullTime(n.ReadAt),
			n.CreatedAt, n.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "notifications", n.ID, synclog.OpInsert, n, now)
	})
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1 AND ($2 = false OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string, at time.Time) (notification.Notification, error) {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return notification.Notification{}, err
	}
	if n.ReadAt != nil {
		return n, nil
	}
	readAt := at.UTC()
	n.ReadAt = &readAt
	n.UpdatedAt = time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE notifications SET read_at = $2, updated_at = $3 WHERE id = $1
		`, n.ID, readAt, n.UpdatedAt); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, "notifications", n.ID, synclog.OpUpdate, n, n.UpdatedAt)
	})
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	readAt := at.UTC()
	now := time.Now().UTC()
	count := 0

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE notifications SET read_at = $2, updated_at = $3
			WHERE user_id = $1 AND read_at IS NULL
			RETURNING id
		`, userID, readAt, now)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.appendLog(ctx, tx, "notifications", id, synclog.OpUpdate, map[string]interface{}{"read_at": readAt}, now); err != nil {
				return err
			}
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "notifications", id)
}

func (s *Store) NotificationExists(ctx context.Context, userID string, kind notification.Kind, reference string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM notifications WHERE user_id = $1 AND kind = $2 AND reference = $3)
	`, userID, string(kind), reference).Scan(&exists)
	return exists, err
}

func scanNotification(row scanner) (notification.Notification, error) {
	var (
		n      notification.Notification
		kind   string
		readAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &n.Reference, &readAt,
		&n.CreatedAt, &n.UpdatedAt); err != nil {
		return notification.Notification{}, err
	}
	n.Kind = notification.Kind(kind)
	n.ReadAt = fromNullTime(readAt)
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return n, nil
}
