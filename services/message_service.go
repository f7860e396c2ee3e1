//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"client-portal/auth"
	"client-portal/cache"
	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/repositories"
	"client-portal/storage"
)

const (
	messageCacheTTL = 10 * time.Minute
	previewLength   = 80
)

type IMessageService interface {
	SendMessage(ctx context.Context, sender domain.User, content string) (domain.Message, error)
	SendMessageTo(ctx context.Context, sender domain.User, recipientID, content string) (domain.Message, error)
	GetConversation(ctx context.Context, requesterID, otherID string) ([]domain.Message, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// ContentModerator masks forbidden words and reports the ones it found.
type ContentModerator interface {
	Censor(content string) (string, []string)
}

type MessageConfig struct {
	// AdminID is the counterpart of every client.
	AdminID          string
	MaxContentLength int
}

// MessageService delivers two-party messages. Only the durable write
// decides success, the room publish and the recipient notification are
// attempted even when one of them fails.
//
// Known race: a subscriber may receive the room publish and query the store
// before its own read sees the row. The store is the source of truth, the
// publish is a hint.
type MessageService struct {
	log           *slog.Logger
	repo          repositories.IMessageRepository
	notifications INotificationService
	broker        contract.Publisher
	cache         contract.Cache
	moderator     ContentModerator
	messages      *storage.List[domain.Message]
	conversations *storage.List[domain.Conversation]
	config        MessageConfig
}

func NewMessageService(log *slog.Logger, repo repositories.IMessageRepository, notifications INotificationService,
	broker contract.Publisher, cache contract.Cache, moderator ContentModerator, local contract.LocalStorage,
	localLimit int, config MessageConfig) *MessageService {
	return &MessageService{
		log:           log,
		repo:          repo,
		notifications: notifications,
		broker:        broker,
		cache:         cache,
		moderator:     moderator,
		messages:      storage.NewList[domain.Message](local, log, storage.MessagesKey, localLimit),
		conversations: storage.NewList[domain.Conversation](local, log, storage.ConversationsKey, localLimit),
		config:        config,
	}
}

func unreadMessagesKey(userID string) string {
	return cache.MessagePrefix + "unread:" + userID
}

// RoomID is symmetric: RoomID(a, b) == RoomID(b, a).
func RoomID(a, b string) string {
	return domain.NewRoomID(a, b).String()
}

// SendMessage sends content to the counterpart of sender. Only clients have
// an implicit counterpart, admins must use SendMessageTo.
func (s *MessageService) SendMessage(ctx context.Context, sender domain.User, content string) (domain.Message, error) {
	return s.SendMessageTo(ctx, sender, "", content)
}

// SendMessageTo ignores recipientID for clients, they always write to the admin.
func (s *MessageService) SendMessageTo(ctx context.Context, sender domain.User, recipientID,
	content string) (domain.Message, error) {
	recipient := recipientID
	if !sender.IsAdmin() {
		recipient = s.config.AdminID
	}
	if recipient == "" {
		return domain.Message{}, errors.NewValidationError("recipient_id", "is required")
	}
	if recipient == sender.ID {
		return domain.Message{}, errors.NewValidationError("recipient_id", "must differ from the sender")
	}
	content = strings.TrimSpace(content)
	if err := auth.Validate(auth.MessageRequest{RecipientID: recipient, Content: content}); err != nil {
		return domain.Message{}, err
	}
	if s.config.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.config.MaxContentLength {
		return domain.Message{}, errors.NewValidationError("content",
			fmt.Sprintf("must be at most %d characters", s.config.MaxContentLength))
	}
	if s.moderator != nil {
		var words []string
		if content, words = s.moderator.Censor(content); len(words) > 0 {
			s.log.Info("Message censored", "sender_id", sender.ID, "words", len(words))
		}
	}

	message, err := s.repo.StoreMessage(ctx, domain.Message{
		SenderID:    sender.ID,
		RecipientID: recipient,
		Content:     content,
		Type:        domain.MessageText,
	})
	if err != nil {
		return domain.Message{}, err
	}

	s.publish(message)
	s.notify(ctx, sender, message)
	s.cache.Delete(unreadMessagesKey(recipient))
	s.messages.Scoped(sender.ID).Append(message)
	return message, nil
}

func (s *MessageService) publish(message domain.Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.log.Warn("Message serialization failed", "message_id", message.ID, "error", err)
		return
	}
	room := message.Room()
	if !s.broker.Publish(domain.RoomChannel(room), string(payload)) {
		s.log.Warn("Message not published", "room_id", room, "message_id", message.ID)
	}
	s.cache.Set(cache.MessagePrefix+"last:"+room.String(), string(payload), messageCacheTTL)
}

func (s *MessageService) notify(ctx context.Context, sender domain.User, message domain.Message) {
	from := sender.Name
	if from == "" {
		from = sender.Email
	}
	_, err := s.notifications.CreateNotification(ctx, message.RecipientID, domain.NotificationMessage,
		"New message from "+from, preview(message.Content))
	if err != nil {
		s.log.Warn("Message notification failed", "message_id", message.ID, "error", err)
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	return string([]rune(content)[:previewLength]) + "…"
}

// GetConversation marks the messages addressed to requesterID as read, then
// returns the whole conversation oldest first. The returned rows already
// carry the read flag.
func (s *MessageService) GetConversation(ctx context.Context, requesterID, otherID string) ([]domain.Message, error) {
	marked, err := s.repo.MarkConversationRead(ctx, requesterID, otherID)
	if marked > 0 {
		s.cache.Delete(unreadMessagesKey(requesterID))
	}
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.GetConversation(ctx, requesterID, otherID)
	if err != nil {
		return nil, err
	}
	s.messages.Scoped(requesterID).Save(messages)
	return messages, nil
}

// ListConversations summarizes the exchanges of userID, most recent first.
func (s *MessageService) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	messages, err := s.repo.GetMessagesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	byCounterpart := lo.GroupBy(messages, func(m domain.Message) string {
		if m.SenderID == userID {
			return m.RecipientID
		}
		return m.SenderID
	})

	conversations := make([]domain.Conversation, 0, len(byCounterpart))
	for counterpart, exchanged := range byCounterpart {
		conversations = append(conversations, domain.Conversation{
			RoomID:        domain.NewRoomID(userID, counterpart),
			CounterpartID: counterpart,
			LastMessage:   lo.MaxBy(exchanged, func(a, b domain.Message) bool { return a.CreatedAt.After(b.CreatedAt) }),
			UnreadCount:   lo.CountBy(exchanged, func(m domain.Message) bool { return m.RecipientID == userID && !m.IsRead }),
			TotalMessages: len(exchanged),
		})
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessage.CreatedAt.After(conversations[j].LastMessage.CreatedAt)
	})
	s.conversations.Scoped(userID).Save(conversations)
	return conversations, nil
}

// UnreadCount is served from the cache when possible.
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadMessagesKey(userID)
	if cached, ok := s.cache.Get(key); ok {
		if count, err := strconv.Atoi(cached); err == nil {
			return count, nil
		}
		s.cache.Delete(key)
	}
	messages, err := s.repo.GetMessagesForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := lo.CountBy(messages, func(m domain.Message) bool { return m.RecipientID == userID && !m.IsRead })
	s.cache.Set(key, strconv.Itoa(count), messageCacheTTL)
	return count, nil
}
