package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"client-portal/cache"
	"client-portal/domain"
	"client-portal/repositories"
	"client-portal/runtime"
)

func newRealtimeFixture(t *testing.T) (*Realtime, *runtime.Registry, *repositories.Store) {
	t.Helper()
	registry := runtime.NewRegistry(testLogger())
	store := repositories.NewStore(openDB(t), testLogger(), registry, nil)
	return NewRealtime(testLogger(), registry), registry, store
}

func TestRealtime_OnProject_Receives_Committed_Changes(t *testing.T) {
	req := require.New(t)
	realtime, registry, store := newRealtimeFixture(t)
	projects := NewProjectService(testLogger(), store, nil)

	var events []domain.ChangeEvent
	sub := realtime.OnProject(func(evt domain.ChangeEvent) { events = append(events, evt) })

	// When a project is created then put on hold
	project, err := projects.CreateProject(as(adminUser), clientUser.ID, "Website redesign", "")
	req.NoError(err)
	_, err = projects.UpdateStatus(as(adminUser), project.ID, domain.ProjectOnHold)
	req.NoError(err)

	// Then both changes reach the hook
	req.Len(events, 2)
	req.Equal(domain.EventInsert, events[0].EventType)
	req.Equal(domain.EventUpdate, events[1].EventType)
	var old domain.Project
	req.NoError(json.Unmarshal(events[1].Old, &old))
	req.Equal(domain.ProjectActive, old.Status)

	// And nothing after unmounting
	sub.Unsubscribe()
	req.Zero(registry.SubscriberCount(domain.ChangeChannel(domain.TableProjects)))
	_, err = projects.UpdateStatus(as(adminUser), project.ID, domain.ProjectCompleted)
	req.NoError(err)
	req.Len(events, 2)
}

func TestRealtime_OnBroadcast_Filters_Notification_Inserts(t *testing.T) {
	req := require.New(t)
	realtime, _, store := newRealtimeFixture(t)
	ctx := as(adminUser)

	var received []string
	realtime.OnBroadcast(func(evt domain.ChangeEvent) { received = append(received, evt.ID) })

	direct, err := store.Notifications.StoreNotification(ctx, domain.Notification{
		UserID: clientUser.ID, SenderID: adminUser.ID, Type: domain.NotificationMessage, Title: "Hi"})
	req.NoError(err)
	broadcast, err := store.Notifications.StoreNotification(ctx, domain.Notification{
		UserID: clientUser.ID, SenderID: adminUser.ID, Type: domain.NotificationBroadcast, Title: "Maintenance"})
	req.NoError(err)
	// Marking it read is an update, not a new broadcast
	req.NoError(store.Notifications.MarkRead(as(clientUser), clientUser.ID, broadcast.ID))

	req.Equal([]string{broadcast.ID}, received)
	req.NotEqual(direct.ID, broadcast.ID)
}

func TestRealtime_Skips_Malformed_Payloads(t *testing.T) {
	req := require.New(t)
	realtime, registry, _ := newRealtimeFixture(t)

	var changes, messages, notifications int
	realtime.OnUser(func(domain.ChangeEvent) { changes++ })
	realtime.OnMessage(domain.NewRoomID(clientUser.ID, adminUser.ID), func(domain.Message) { messages++ })
	realtime.OnNotification(clientUser.ID, func(domain.Notification) { notifications++ })

	registry.Publish(domain.ChangeChannel(domain.TableUsers), "{not json")
	registry.Publish(domain.RoomChannel(domain.NewRoomID(adminUser.ID, clientUser.ID)), "[]")
	registry.Publish(domain.NotificationChannel(clientUser.ID), "")

	req.Zero(changes)
	req.Zero(messages)
	req.Zero(notifications)
}

func TestRealtime_Typed_Hooks_Decode_Payloads(t *testing.T) {
	req := require.New(t)
	realtime, registry, store := newRealtimeFixture(t)
	notifications := NewNotificationService(testLogger(), store.Notifications, store.Users, registry, cache.NewMemory(testLogger()))

	var got []domain.Notification
	realtime.OnNotification(clientUser.ID, func(n domain.Notification) { got = append(got, n) })
	var alerts []domain.ChangeEvent
	realtime.OnSystemAlert(func(evt domain.ChangeEvent) { alerts = append(alerts, evt) })

	_, err := notifications.CreateNotification(as(adminUser), clientUser.ID, domain.NotificationSystem, "Invoice", "Ready")
	req.NoError(err)
	_, err = NewAlertService(testLogger(), store).CreateSystemAlert(as(adminUser), domain.AlertWarning, "Slow", "Uploads are slow")
	req.NoError(err)

	req.Len(got, 1)
	req.Equal("Invoice", got[0].Title)
	req.Len(alerts, 1)
	req.Equal(domain.TableSystemAlerts, alerts[0].Table)
}
