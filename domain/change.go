package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Row is anything stored in a relation keyed by a UUID primary key.
type Row interface {
	RowID() string
	RowCreatedAt() time.Time
}

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is emitted on the change feed after each committed mutation.
// New is empty on delete, Old is empty on insert.
type ChangeEvent struct {
	Table     string          `json:"table"`
	EventType EventType       `json:"eventType"`
	ID        string          `json:"id"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	At        time.Time       `json:"at"`
}

// Relations of the durable store.
const (
	TableUsers          = "users"
	TableProjects       = "projects"
	TableFolders        = "folders"
	TableDeliverables   = "deliverables"
	TableMessages       = "messages"
	TableNotifications  = "notifications"
	TableSystemAlerts   = "system_alerts"
	TableSecurityAlerts = "security_alerts"
	TableSystemSettings = "system_settings"
)

// Channel names of the ephemeral layer.
const (
	BroadcastChannel = "broadcast"
	changesPrefix    = "changes:"
	notifyPrefix     = "notifications:"
	roomPrefix       = "room:"
)

func ChangeChannel(table string) string { return changesPrefix + table }

func NotificationChannel(userID string) string { return notifyPrefix + userID }

func RoomChannel(room RoomID) string { return roomPrefix + string(room) }

// CanSubscribe reports whether u may listen on channel. Admins listen
// everywhere, clients only on their own notifications, their rooms, the
// broadcast channel and the system alert feed.
func CanSubscribe(u User, channel string) bool {
	if u.IsAdmin() {
		return true
	}
	switch {
	case channel == BroadcastChannel:
		return true
	case strings.HasPrefix(channel, notifyPrefix):
		return strings.TrimPrefix(channel, notifyPrefix) == u.ID
	case strings.HasPrefix(channel, roomPrefix):
		return RoomID(strings.TrimPrefix(channel, roomPrefix)).Has(u.ID)
	case channel == ChangeChannel(TableSystemAlerts):
		return true
	}
	return false
}
