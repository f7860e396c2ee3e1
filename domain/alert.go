package domain

import "time"

type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type SystemAlert struct {
	ID        string     `json:"id"`
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Active    bool       `json:"active"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

func (a SystemAlert) RowID() string { return a.ID }

func (a SystemAlert) RowCreatedAt() time.Time { return a.CreatedAt }

type SecurityEvent string

const (
	SecurityFailedLogin    SecurityEvent = "failed_login"
	SecurityAccountLocked  SecurityEvent = "account_locked"
	SecuritySessionInvalid SecurityEvent = "session_invalidated"
)

// SecurityAlert is an audit row, readable by admins only.
type SecurityAlert struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id,omitempty"`
	Event     SecurityEvent `json:"event"`
	Detail    string        `json:"detail"`
	CreatedAt time.Time     `json:"created_at"`
}

func (a SecurityAlert) RowID() string { return a.ID }

func (a SecurityAlert) RowCreatedAt() time.Time { return a.CreatedAt }

type SystemSetting struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (s SystemSetting) RowID() string { return s.ID }

func (s SystemSetting) RowCreatedAt() time.Time { return s.CreatedAt }
