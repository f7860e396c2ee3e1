//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"client-portal/contract"
	"client-portal/domain"
)

type IMessageRepository interface {
	StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	GetConversation(ctx context.Context, userID, otherID string) ([]domain.Message, error)
	MarkConversationRead(ctx context.Context, requesterID, otherID string) (int, error)
	GetMessagesForUser(ctx context.Context, userID string) ([]domain.Message, error)
}

type MessageRepository struct {
	table *Table[domain.Message]
	limit *int
}

// NewMessageRepository caps conversation reads to the last limitMessages
// rows when limitMessages is set.
func NewMessageRepository(db *badger.DB, log *slog.Logger, feed contract.Publisher, limitMessages *int) *MessageRepository {
	return &MessageRepository{
		table: NewTable[domain.Message](db, log, domain.TableMessages, MessagePolicy, feed,
			WithIndex("room", func(m domain.Message) string { return m.Room().String() }),
			WithIndex("sender", func(m domain.Message) string { return m.SenderID }),
			WithIndex("recipient", func(m domain.Message) string { return m.RecipientID }),
		),
		limit: limitMessages,
	}
}

func (m *MessageRepository) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Type == "" {
		message.Type = domain.MessageText
	}
	return m.table.Insert(ctx, message)
}

// GetConversation returns the messages of the room shared by both users,
// oldest first. The room index is chronological, so only the newest rows
// are kept when a limit is configured.
func (m *MessageRepository) GetConversation(ctx context.Context, userID, otherID string) ([]domain.Message, error) {
	messages, err := m.table.SelectIndex(ctx, "room", domain.NewRoomID(userID, otherID).String(),
		NewQuery().OrderByCreated(false))
	if err != nil {
		return nil, err
	}
	if m.limit != nil && len(messages) > *m.limit {
		messages = messages[len(messages)-*m.limit:]
	}
	return messages, nil
}

// MarkConversationRead flags every unread message sent by otherID to
// requesterID. Already read messages are left untouched.
func (m *MessageRepository) MarkConversationRead(ctx context.Context, requesterID, otherID string) (int, error) {
	unread, err := m.table.SelectIndex(ctx, "room", domain.NewRoomID(requesterID, otherID).String(),
		NewQuery().Eq("recipient_id", requesterID).Eq("is_read", false))
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, message := range unread {
		_, err = m.table.Update(ctx, message.ID, func(row *domain.Message) bool {
			if row.IsRead {
				return false
			}
			row.IsRead = true
			return true
		})
		if err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// GetMessagesForUser returns every message sent or received by userID, oldest first.
func (m *MessageRepository) GetMessagesForUser(ctx context.Context, userID string) ([]domain.Message, error) {
	sent, err := m.table.SelectIndex(ctx, "sender", userID, NewQuery())
	if err != nil {
		return nil, err
	}
	received, err := m.table.SelectIndex(ctx, "recipient", userID, NewQuery())
	if err != nil {
		return nil, err
	}
	all := lo.UniqBy(append(sent, received...), func(msg domain.Message) string { return msg.ID })
	sortByCreated(all)
	return all, nil
}
