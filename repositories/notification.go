//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
)

var errNotOwned = fmt.Errorf("%w: row owned by another user", errors.ErrNotFound)

type INotificationRepository interface {
	StoreNotification(ctx context.Context, notification domain.Notification) (domain.Notification, error)
	GetNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type NotificationRepository struct {
	table *Table[domain.Notification]
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger, feed contract.Publisher) *NotificationRepository {
	return &NotificationRepository{table: NewTable[domain.Notification](db, log, domain.TableNotifications, NotificationPolicy, feed,
		WithIndex("user", func(n domain.Notification) string { return n.UserID }),
	)}
}

func (n *NotificationRepository) StoreNotification(ctx context.Context,
	notification domain.Notification) (domain.Notification, error) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return n.table.Insert(ctx, notification)
}

// GetNotifications returns the notifications of userID, newest first.
func (n *NotificationRepository) GetNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return n.table.SelectIndex(ctx, "user", userID, NewQuery().OrderByCreated(true))
}

// MarkRead is idempotent. A notification owned by someone else is reported
// as not found.
func (n *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	current, err := n.table.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.UserID != userID {
		return n.table.fail(ctx, OpUpdate, errNotOwned)
	}
	_, err = n.table.Update(ctx, id, func(row *domain.Notification) bool {
		if row.IsRead {
			return false
		}
		row.IsRead = true
		return true
	})
	return err
}

func (n *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	unread, err := n.table.SelectIndex(ctx, "user", userID, NewQuery().Eq("is_read", false))
	if err != nil {
		return 0, err
	}
	for i, notification := range unread {
		if err = n.MarkRead(ctx, userID, notification.ID); err != nil {
			return i, err
		}
	}
	return len(unread), nil
}

func (n *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	unread, err := n.table.SelectIndex(ctx, "user", userID, NewQuery().Eq("is_read", false))
	return len(unread), err
}

func sortByCreated[T domain.Row](rows []T) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].RowCreatedAt().Before(rows[j].RowCreatedAt())
	})
}
