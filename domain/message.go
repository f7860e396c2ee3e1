// Package domain contains core concepts of the client portal.
// This file defines Message rows exchanged between a client and the company.
package domain

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
)

// Message is one row of the messages relation.
// The durable row is the source of truth, the copy published on the room
// channel is only a live-update hint.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"sender_id"`
	RecipientID string      `json:"recipient_id"`
	Content     string      `json:"content"`
	Type        MessageType `json:"type"`
	IsRead      bool        `json:"is_read"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (m Message) RowID() string { return m.ID }
func (m Message) RowCreatedAt() time.Time { return m.CreatedAt }

// Room returns the two-party room this message belongs to.
func (m Message) Room() RoomID {
	return NewRoomID(m.SenderID, m.RecipientID)
}

// Conversation summarizes the exchange between a user and one counterpart.
type Conversation struct {
	RoomID        RoomID  `json:"room_id"`
	CounterpartID string  `json:"counterpart_id"`
	LastMessage   Message `json:"last_message"`
	UnreadCount   int     `json:"unread_count"`
	TotalMessages int     `json:"total_messages"`
}
