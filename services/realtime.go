package services

import (
	"encoding/json"
	"log/slog"

	"client-portal/contract"
	"client-portal/domain"
)

// Realtime exposes the subscription hooks UI components mount and unmount.
// Every hook returns the handle that unmounts it.
type Realtime struct {
	log    *slog.Logger
	broker contract.Broker
}

func NewRealtime(log *slog.Logger, broker contract.Broker) *Realtime {
	return &Realtime{log: log, broker: broker}
}

// OnChange calls fn with every change event of table. Undecodable payloads
// are logged and skipped.
func (r *Realtime) OnChange(table string, fn func(domain.ChangeEvent)) contract.Subscription {
	return r.broker.Subscribe(domain.ChangeChannel(table), func(message string) {
		var evt domain.ChangeEvent
		if err := json.Unmarshal([]byte(message), &evt); err != nil {
			r.log.Warn("Skipping malformed change event", "relation", table, "error", err)
			return
		}
		fn(evt)
	})
}

func (r *Realtime) OnSystemAlert(fn func(domain.ChangeEvent)) contract.Subscription {
	return r.OnChange(domain.TableSystemAlerts, fn)
}

func (r *Realtime) OnSecurityAlert(fn func(domain.ChangeEvent)) contract.Subscription {
	return r.OnChange(domain.TableSecurityAlerts, fn)
}

func (r *Realtime) OnProject(fn func(domain.ChangeEvent)) contract.Subscription {
	return r.OnChange(domain.TableProjects, fn)
}

func (r *Realtime) OnUser(fn func(domain.ChangeEvent)) contract.Subscription {
	return r.OnChange(domain.TableUsers, fn)
}

func (r *Realtime) OnDeliverable(fn func(domain.ChangeEvent)) contract.Subscription {
	return r.OnChange(domain.TableDeliverables, fn)
}

// OnBroadcast only forwards the insertion of broadcast notifications.
func (r *Realtime) OnBroadcast(fn func(domain.ChangeEvent)) contract.Subscription {
	return r.OnChange(domain.TableNotifications, func(evt domain.ChangeEvent) {
		if evt.EventType != domain.EventInsert {
			return
		}
		var notification domain.Notification
		if err := json.Unmarshal(evt.New, &notification); err != nil {
			r.log.Warn("Skipping malformed notification row", "id", evt.ID, "error", err)
			return
		}
		if notification.Type == domain.NotificationBroadcast {
			fn(evt)
		}
	})
}

// OnMessage calls fn with every message published in room.
func (r *Realtime) OnMessage(room domain.RoomID, fn func(domain.Message)) contract.Subscription {
	return r.broker.Subscribe(domain.RoomChannel(room), func(payload string) {
		var message domain.Message
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			r.log.Warn("Skipping malformed message", "room_id", room, "error", err)
			return
		}
		fn(message)
	})
}

// OnNotification calls fn with every notification delivered to userID.
func (r *Realtime) OnNotification(userID string, fn func(domain.Notification)) contract.Subscription {
	return r.broker.Subscribe(domain.NotificationChannel(userID), func(payload string) {
		var notification domain.Notification
		if err := json.Unmarshal([]byte(payload), &notification); err != nil {
			r.log.Warn("Skipping malformed notification", "user_id", userID, "error", err)
			return
		}
		fn(notification)
	})
}
