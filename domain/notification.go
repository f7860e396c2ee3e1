package domain

import "time"

type NotificationType string

const (
	NotificationMessage     NotificationType = "message"
	NotificationDeliverable NotificationType = "deliverable"
	NotificationProject     NotificationType = "project"
	NotificationBroadcast   NotificationType = "broadcast"
	NotificationSystem      NotificationType = "system"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	SenderID  string           `json:"sender_id,omitempty"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

func (n Notification) RowID() string { return n.ID }

func (n Notification) RowCreatedAt() time.Time { return n.CreatedAt }
