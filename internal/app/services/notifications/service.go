package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/storage"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Message is a notification to fan out to recipients.
type Message struct {
	Kind      notification.Kind
	Title     string
	Body      string
	Reference string
}

// Service stores in-app notifications and fans them out to users.
type Service struct {
	store storage.NotificationStore
	users storage.UserStore
	log   *logger.Logger
	now   func() time.Time
}

// New creates a notification service.
func New(store storage.NotificationStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, users: users, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// List returns a user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (notification.Notification, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return notification.Notification{}, err
	}
	return s.store.MarkNotificationRead(ctx, id, s.now())
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID, s.now())
}

// Delete removes one of the user's notifications.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteNotification(ctx, id)
}

// Notify delivers msg to each user. When msg has a Reference, users who
// already received the same kind and reference are skipped. It returns the
// number of notifications created.
func (s *Service) Notify(ctx context.Context, msg Message, userIDs ...string) (int, error) {
	msg.Title = strings.TrimSpace(msg.Title)
	if msg.Title == "" {
		return 0, svcerrors.FieldError("title", "title is required")
	}
	if msg.Kind == "" {
		msg.Kind = notification.KindSystem
	}
	sent := 0
	for _, id := range userIDs {
		if msg.Reference != "" {
			exists, err := s.store.NotificationExists(ctx, id, msg.Kind, msg.Reference)
			if err != nil {
				return sent, err
			}
			if exists {
				continue
			}
		}
		if _, err := s.store.CreateNotification(ctx, notification.Notification{
			UserID:    id,
			Kind:      msg.Kind,
			Title:     msg.Title,
			Body:      msg.Body,
			Reference: msg.Reference,
		}); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// NotifyRoles delivers msg to every active user holding one of roles.
func (s *Service) NotifyRoles(ctx context.Context, msg Message, roles ...user.Role) (int, error) {
	ids, err := s.recipients(ctx, roles...)
	if err != nil {
		return 0, err
	}
	sent, err := s.Notify(ctx, msg, ids...)
	if err != nil {
		return sent, err
	}
	if sent > 0 {
		s.log.WithField("kind", msg.Kind).
			WithField("reference", msg.Reference).
			WithField("recipients", sent).
			Debug("notifications sent")
	}
	return sent, nil
}

func (s *Service) recipients(ctx context.Context, roles ...user.Role) ([]string, error) {
	all, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, u := range all {
		if !u.Active {
			continue
		}
		for _, r := range roles {
			if u.Role == r {
				ids = append(ids, u.ID)
				break
			}
		}
	}
	return ids, nil
}

func (s *Service) owned(ctx context.Context, userID, id string) (notification.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return notification.Notification{}, err
	}
	if n.UserID != userID {
		return notification.Notification{}, svcerrors.NotFound("notification", id)
	}
	return n, nil
}
