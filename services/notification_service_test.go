package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"client-portal/cache"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/mocks"
	"client-portal/runtime"
)

type notificationFixture struct {
	repo     *mocks.MockINotificationRepository
	users    *mocks.MockIUserRepository
	registry *runtime.Registry
	cache    *cache.Memory
	service  *NotificationService
}

func newNotificationFixture(t *testing.T) notificationFixture {
	ctrl := gomock.NewController(t)
	f := notificationFixture{
		repo:     mocks.NewMockINotificationRepository(ctrl),
		users:    mocks.NewMockIUserRepository(ctrl),
		registry: runtime.NewRegistry(testLogger()),
		cache:    cache.NewMemory(testLogger()),
	}
	f.service = NewNotificationService(testLogger(), f.repo, f.users, f.registry, f.cache)
	return f
}

func storeNotification(_ context.Context, n domain.Notification) (domain.Notification, error) {
	n.ID = "notif-" + n.UserID
	return n, nil
}

func TestNotificationService_CreateNotification_Publishes_After_Write(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	ctx := as(adminUser)

	var received []domain.Notification
	f.registry.Subscribe(domain.NotificationChannel(clientUser.ID), func(message string) {
		var n domain.Notification
		req.NoError(json.Unmarshal([]byte(message), &n))
		received = append(received, n)
	})
	f.repo.EXPECT().StoreNotification(ctx, gomock.Any()).DoAndReturn(storeNotification)

	notification, err := f.service.CreateNotification(ctx, clientUser.ID, domain.NotificationProject, "Kick-off", "Monday 10am")

	req.NoError(err)
	req.Equal(adminUser.ID, notification.SenderID)
	req.Len(received, 1)
	req.Equal(notification.ID, received[0].ID)
	req.Equal("Kick-off", received[0].Title)
	cached, ok := f.cache.Get(cache.NotificationPrefix + notification.ID)
	req.True(ok)
	req.Contains(cached, "Monday 10am")
}

func TestNotificationService_CreateNotification_Durable_Failure_Is_Reported(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	published := false
	f.registry.Subscribe(domain.NotificationChannel(clientUser.ID), func(string) { published = true })
	denied := &errors.StoreError{Op: "insert", Relation: domain.TableNotifications, Kind: errors.KindPermission, Err: errors.ErrPermissionDenied}
	f.repo.EXPECT().StoreNotification(gomock.Any(), gomock.Any()).Return(domain.Notification{}, denied)

	_, err := f.service.CreateNotification(as(otherUser), clientUser.ID, domain.NotificationMessage, "hi", "there")

	req.ErrorIs(err, errors.ErrPermissionDenied)
	req.False(published)
}

func TestNotificationService_CreateNotification_Survives_Panicking_Subscriber(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	f.registry.Subscribe(domain.NotificationChannel(clientUser.ID), func(string) { panic("render failed") })
	f.repo.EXPECT().StoreNotification(gomock.Any(), gomock.Any()).DoAndReturn(storeNotification)

	_, err := f.service.CreateNotification(as(adminUser), clientUser.ID, domain.NotificationSystem, "Maintenance", "Tonight")

	req.NoError(err)
}

func TestNotificationService_CreateNotification_Validates_First(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	f.repo.EXPECT().StoreNotification(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.CreateNotification(as(adminUser), clientUser.ID, "carrier-pigeon", "title", "msg")
	req.ErrorIs(err, errors.ErrValidation)

	_, err = f.service.CreateNotification(as(adminUser), "", domain.NotificationSystem, "title", "msg")
	var validationErr *errors.ValidationError
	req.True(errors.As(err, &validationErr))
	req.Equal("user_id", validationErr.Field)
}

func TestNotificationService_UnreadCount_Is_Cached_Until_Invalidated(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	ctx := as(clientUser)

	// Only the first count reaches the store
	f.repo.EXPECT().CountUnread(ctx, clientUser.ID).Return(2, nil).Times(1)
	count, err := f.service.UnreadCount(ctx, clientUser.ID)
	req.NoError(err)
	req.Equal(2, count)
	count, err = f.service.UnreadCount(ctx, clientUser.ID)
	req.NoError(err)
	req.Equal(2, count)

	// Marking one read drops the cached count
	f.repo.EXPECT().MarkRead(ctx, clientUser.ID, "n1").Return(nil)
	f.repo.EXPECT().CountUnread(ctx, clientUser.ID).Return(1, nil).Times(1)
	req.NoError(f.service.MarkNotificationRead(ctx, clientUser.ID, "n1"))
	count, err = f.service.UnreadCount(ctx, clientUser.ID)
	req.NoError(err)
	req.Equal(1, count)
}

func TestNotificationService_Broadcast(t *testing.T) {
	t.Run("should notify every client and announce once", func(t *testing.T) {
		req := require.New(t)
		f := newNotificationFixture(t)
		ctx := as(adminUser)
		announcements := 0
		f.registry.Subscribe(domain.BroadcastChannel, func(message string) {
			var n domain.Notification
			req.NoError(json.Unmarshal([]byte(message), &n))
			req.Empty(n.UserID)
			announcements++
		})
		f.users.EXPECT().ListUsers(ctx, domain.RoleClient).Return([]domain.User{clientUser, otherUser}, nil)
		f.repo.EXPECT().StoreNotification(ctx, gomock.Any()).DoAndReturn(storeNotification).Times(2)

		created, err := f.service.Broadcast(ctx, domain.NotificationBroadcast, "Holidays", "Office closed")

		req.NoError(err)
		req.Equal(2, created)
		req.Equal(1, announcements)
	})

	t.Run("should keep going when one recipient fails", func(t *testing.T) {
		req := require.New(t)
		f := newNotificationFixture(t)
		ctx := as(adminUser)
		f.users.EXPECT().ListUsers(ctx, domain.RoleClient).Return([]domain.User{clientUser, otherUser}, nil)
		f.repo.EXPECT().StoreNotification(ctx, gomock.Any()).
			Return(domain.Notification{}, &errors.StoreError{Op: "insert", Relation: domain.TableNotifications, Kind: errors.KindUnavailable, Err: errors.ErrUnavailable})
		f.repo.EXPECT().StoreNotification(ctx, gomock.Any()).DoAndReturn(storeNotification)

		created, err := f.service.Broadcast(ctx, domain.NotificationBroadcast, "Holidays", "Office closed")

		req.ErrorIs(err, errors.ErrUnavailable)
		req.Equal(1, created)
	})

	t.Run("should be reserved to admins", func(t *testing.T) {
		req := require.New(t)
		f := newNotificationFixture(t)
		f.users.EXPECT().ListUsers(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.Broadcast(as(clientUser), domain.NotificationBroadcast, "Spam", "spam")

		req.ErrorIs(err, errors.ErrPermissionDenied)
	})
}
