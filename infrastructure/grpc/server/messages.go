package server

import (
	"time"

	"client-portal/domain"
)

type Empty struct{}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	SessionID string      `json:"session_id"`
	User      domain.User `json:"user"`
}

type UserResponse struct {
	User domain.User `json:"user"`
}

type RegisterClientRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
}

type SendMessageRequest struct {
	RecipientID string `json:"recipient_id,omitempty"`
	Content     string `json:"content"`
}

type MessageResponse struct {
	Message domain.Message `json:"message"`
}

type ConversationRequest struct {
	OtherID string `json:"other_id"`
}

type ConversationResponse struct {
	Messages []domain.Message `json:"messages"`
}

type ConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

type CreateNotificationRequest struct {
	UserID  string                  `json:"user_id"`
	Type    domain.NotificationType `json:"type"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
}

type NotificationResponse struct {
	Notification domain.Notification `json:"notification"`
}

type NotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

type MarkNotificationReadRequest struct {
	ID string `json:"id"`
}

type BroadcastRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ProjectsRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

type ProjectsResponse struct {
	Projects []domain.Project `json:"projects"`
}

type DeliverablesRequest struct {
	ProjectID string `json:"project_id"`
}

type DeliverablesResponse struct {
	Deliverables []domain.Deliverable `json:"deliverables"`
}

type DownloadRequest struct {
	DeliverableID string `json:"deliverable_id"`
}

type DownloadResponse struct {
	URL       string        `json:"url"`
	ExpiresIn time.Duration `json:"expires_in"`
}

type SubscribeRequest struct {
	Channel string `json:"channel"`
}

// Event is one pub/sub message relayed on a Subscribe stream.
type Event struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
}
