package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"client-portal/auth"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/repositories"
)

// AlertService manages system alerts, the security audit trail and the
// system settings.
type AlertService struct {
	log      *slog.Logger
	alerts   *repositories.Table[domain.SystemAlert]
	security *repositories.Table[domain.SecurityAlert]
	settings *repositories.Table[domain.SystemSetting]
}

func NewAlertService(log *slog.Logger, store *repositories.Store) *AlertService {
	return &AlertService{log: log, alerts: store.SystemAlerts, security: store.SecurityAlerts, settings: store.SystemSettings}
}

func (s *AlertService) CreateSystemAlert(ctx context.Context, level domain.AlertLevel, title,
	message string) (domain.SystemAlert, error) {
	if err := auth.Validate(auth.AlertRequest{Level: string(level), Title: title, Message: message}); err != nil {
		return domain.SystemAlert{}, err
	}
	return s.alerts.Insert(ctx, domain.SystemAlert{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		Active:    true,
		CreatedBy: domain.ActorFromContext(ctx).UserID,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *AlertService) DeactivateSystemAlert(ctx context.Context, id string) (domain.SystemAlert, error) {
	return s.alerts.Update(ctx, id, func(a *domain.SystemAlert) bool {
		if !a.Active {
			return false
		}
		a.Active = false
		return true
	})
}

// ActiveSystemAlerts returns the active alerts, newest first.
func (s *AlertService) ActiveSystemAlerts(ctx context.Context) ([]domain.SystemAlert, error) {
	return s.alerts.Select(ctx, repositories.NewQuery().Eq("active", true).OrderByCreated(true))
}

// SecurityAlerts returns the latest audit rows, limit 0 means all.
func (s *AlertService) SecurityAlerts(ctx context.Context, limit int) ([]domain.SecurityAlert, error) {
	return s.security.Select(ctx, repositories.NewQuery().OrderByCreated(true).Limit(limit))
}

// Setting reports false when key was never set.
func (s *AlertService) Setting(ctx context.Context, key string) (string, bool, error) {
	setting, err := s.settings.GetUnique(ctx, "key", key)
	if errors.Is(err, errors.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

func (s *AlertService) SetSetting(ctx context.Context, key, value string) (domain.SystemSetting, error) {
	if err := auth.Validate(auth.SettingRequest{Key: key}); err != nil {
		return domain.SystemSetting{}, err
	}
	actor := domain.ActorFromContext(ctx).UserID
	current, err := s.settings.GetUnique(ctx, "key", key)
	if errors.Is(err, errors.ErrNotFound) {
		return s.settings.Insert(ctx, domain.SystemSetting{
			ID:        uuid.NewString(),
			Key:       key,
			Value:     value,
			UpdatedBy: actor,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return domain.SystemSetting{}, err
	}
	return s.settings.Update(ctx, current.ID, func(setting *domain.SystemSetting) bool {
		if setting.Value == value {
			return false
		}
		setting.Value, setting.UpdatedBy = value, actor
		return true
	})
}
