package repositories

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"client-portal/contract"
	"client-portal/domain"
)

// Store groups every relation of the durable store. Mutations are
// published on feed as change events.
type Store struct {
	Users          *UserRepository
	Messages       *MessageRepository
	Notifications  *NotificationRepository
	Projects       *Table[domain.Project]
	Folders        *Table[domain.Folder]
	Deliverables   *Table[domain.Deliverable]
	SystemAlerts   *Table[domain.SystemAlert]
	SecurityAlerts *Table[domain.SecurityAlert]
	SystemSettings *Table[domain.SystemSetting]
}

func NewStore(db *badger.DB, log *slog.Logger, feed contract.Publisher, limitMessages *int) *Store {
	return &Store{
		Users:         NewUserRepository(db, log, feed),
		Messages:      NewMessageRepository(db, log, feed, limitMessages),
		Notifications: NewNotificationRepository(db, log, feed),
		Projects: NewTable[domain.Project](db, log, domain.TableProjects, ProjectPolicy, feed,
			WithIndex("client", func(p domain.Project) string { return p.ClientID })),
		Folders: NewTable[domain.Folder](db, log, domain.TableFolders, FolderPolicy, feed,
			WithIndex("project", func(f domain.Folder) string { return f.ProjectID })),
		Deliverables: NewTable[domain.Deliverable](db, log, domain.TableDeliverables, DeliverablePolicy, feed,
			WithIndex("project", func(d domain.Deliverable) string { return d.ProjectID })),
		SystemAlerts:   NewTable[domain.SystemAlert](db, log, domain.TableSystemAlerts, SystemAlertPolicy, feed),
		SecurityAlerts: NewTable[domain.SecurityAlert](db, log, domain.TableSecurityAlerts, SecurityAlertPolicy, feed),
		SystemSettings: NewTable[domain.SystemSetting](db, log, domain.TableSystemSettings, SystemSettingPolicy, feed,
			WithUnique("key", func(s domain.SystemSetting) string { return s.Key })),
	}
}
