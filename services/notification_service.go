//go:generate go run go.uber.org/mock/mockgen -source=notification_service.go -destination=../mocks/mock_notification_service.go -package=mocks
package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"client-portal/auth"
	"client-portal/cache"
	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/repositories"
)

const notificationCacheTTL = 10 * time.Minute

type INotificationService interface {
	CreateNotification(ctx context.Context, userID string, notificationType domain.NotificationType,
		title, message string) (domain.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	Broadcast(ctx context.Context, notificationType domain.NotificationType, title, message string) (int, error)
}

// NotificationService delivers user scoped notifications. The durable row
// is the only thing whose failure is reported, the publish on the
// recipient channel and the cache entries are best effort.
type NotificationService struct {
	log    *slog.Logger
	repo   repositories.INotificationRepository
	users  repositories.IUserRepository
	broker contract.Publisher
	cache  contract.Cache
}

func NewNotificationService(log *slog.Logger, repo repositories.INotificationRepository,
	users repositories.IUserRepository, broker contract.Publisher, cache contract.Cache) *NotificationService {
	return &NotificationService{log: log, repo: repo, users: users, broker: broker, cache: cache}
}

func unreadNotificationsKey(userID string) string {
	return cache.NotificationPrefix + "unread:" + userID
}

func (s *NotificationService) CreateNotification(ctx context.Context, userID string,
	notificationType domain.NotificationType, title, message string) (domain.Notification, error) {
	if err := auth.Validate(auth.NotificationRequest{UserID: userID, Type: string(notificationType), Title: title}); err != nil {
		return domain.Notification{}, err
	}
	notification, err := s.repo.StoreNotification(ctx, domain.Notification{
		UserID:   userID,
		SenderID: domain.ActorFromContext(ctx).UserID,
		Type:     notificationType,
		Title:    title,
		Message:  message,
	})
	if err != nil {
		return domain.Notification{}, err
	}

	s.deliver(domain.NotificationChannel(userID), notification)
	return notification, nil
}

// deliver publishes and caches a stored notification. Failures are logged only.
func (s *NotificationService) deliver(channel string, notification domain.Notification) {
	payload, err := json.Marshal(notification)
	if err != nil {
		s.log.Warn("Notification serialization failed", "notification_id", notification.ID, "error", err)
		return
	}
	if !s.broker.Publish(channel, string(payload)) {
		s.log.Warn("Notification not published", "channel", channel, "notification_id", notification.ID)
	}
	s.cache.Set(cache.NotificationPrefix+notification.ID, string(payload), notificationCacheTTL)
	s.cache.Delete(unreadNotificationsKey(notification.UserID))
}

// announce publishes a broadcast without recipient on the broadcast channel.
func (s *NotificationService) announce(notification domain.Notification) {
	payload, err := json.Marshal(notification)
	if err != nil {
		s.log.Warn("Broadcast serialization failed", "error", err)
		return
	}
	if !s.broker.Publish(domain.BroadcastChannel, string(payload)) {
		s.log.Warn("Broadcast not published")
	}
}

func (s *NotificationService) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.GetNotifications(ctx, userID)
}

func (s *NotificationService) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	s.cache.Delete(cache.NotificationPrefix + id)
	s.cache.Delete(unreadNotificationsKey(userID))
	return nil
}

func (s *NotificationService) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	marked, err := s.repo.MarkAllRead(ctx, userID)
	if marked > 0 || err == nil {
		s.cache.Delete(unreadNotificationsKey(userID))
	}
	return marked, err
}

// UnreadCount is served from the cache when possible.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadNotificationsKey(userID)
	if cached, ok := s.cache.Get(key); ok {
		if count, err := strconv.Atoi(cached); err == nil {
			return count, nil
		}
		s.cache.Delete(key)
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(key, strconv.Itoa(count), notificationCacheTTL)
	return count, nil
}

// Broadcast notifies every client account. It is reserved to admins and
// keeps going when one recipient fails, the first error is returned with
// the number of notifications created.
func (s *NotificationService) Broadcast(ctx context.Context, notificationType domain.NotificationType,
	title, message string) (int, error) {
	actor := domain.ActorFromContext(ctx)
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return 0, errors.ErrPermissionDenied
	}
	clients, err := s.users.ListUsers(ctx, domain.RoleClient)
	if err != nil {
		return 0, err
	}

	created := 0
	var firstErr error
	for _, client := range clients {
		notification, err := s.CreateNotification(ctx, client.ID, notificationType, title, message)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		created++
		s.log.Debug("Broadcast delivered", "notification_id", notification.ID, "user_id", client.ID)
	}
	if created > 0 {
		s.announce(domain.Notification{
			SenderID:  actor.UserID,
			Type:      notificationType,
			Title:     title,
			Message:   message,
			CreatedAt: time.Now().UTC(),
		})
	}
	s.log.Info("Broadcast sent", "sender_id", actor.UserID, "recipients", created, "clients", len(clients))
	return created, firstErr
}
