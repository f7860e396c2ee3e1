package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"client-portal/auth"
	"client-portal/domain"
	"client-portal/repositories"
)

// ProjectService manages client projects and their requirement folders.
type ProjectService struct {
	log           *slog.Logger
	projects      *repositories.Table[domain.Project]
	folders       *repositories.Table[domain.Folder]
	notifications INotificationService
}

func NewProjectService(log *slog.Logger, store *repositories.Store, notifications INotificationService) *ProjectService {
	return &ProjectService{log: log, projects: store.Projects, folders: store.Folders, notifications: notifications}
}

func (s *ProjectService) CreateProject(ctx context.Context, clientID, name, description string) (domain.Project, error) {
	if err := auth.Validate(auth.ProjectRequest{ClientID: clientID, Name: name}); err != nil {
		return domain.Project{}, err
	}
	project, err := s.projects.Insert(ctx, domain.Project{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		Name:        name,
		Description: description,
		Status:      domain.ProjectActive,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Project{}, err
	}
	s.notify(ctx, clientID, "New project", project.Name)
	return project, nil
}

func (s *ProjectService) UpdateStatus(ctx context.Context, id string, status domain.ProjectStatus) (domain.Project, error) {
	return s.projects.Update(ctx, id, func(p *domain.Project) bool {
		if p.Status == status {
			return false
		}
		p.Status = status
		return true
	})
}

// ListProjects returns the visible projects, those of clientID only when set.
func (s *ProjectService) ListProjects(ctx context.Context, clientID string) ([]domain.Project, error) {
	q := repositories.NewQuery().OrderByCreated(true)
	if clientID == "" {
		return s.projects.Select(ctx, q)
	}
	return s.projects.SelectIndex(ctx, "client", clientID, q)
}

func (s *ProjectService) CreateFolder(ctx context.Context, projectID, name string) (domain.Folder, error) {
	if err := auth.Validate(auth.FolderRequest{ProjectID: projectID, Name: name}); err != nil {
		return domain.Folder{}, err
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Folder{}, err
	}
	return s.folders.Insert(ctx, domain.Folder{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		ClientID:  project.ClientID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
}

// SubmitInputs replaces the requirement inputs of a folder, clients use it
// to answer what the company asked for.
func (s *ProjectService) SubmitInputs(ctx context.Context, folderID string, inputs []string) (domain.Folder, error) {
	return s.folders.Update(ctx, folderID, func(f *domain.Folder) bool {
		f.Inputs = append([]string(nil), inputs...)
		return true
	})
}

func (s *ProjectService) ListFolders(ctx context.Context, projectID string) ([]domain.Folder, error) {
	return s.folders.SelectIndex(ctx, "project", projectID, repositories.NewQuery())
}

func (s *ProjectService) notify(ctx context.Context, userID, title, message string) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.CreateNotification(ctx, userID, domain.NotificationProject, title, message); err != nil {
		s.log.Warn("Project notification failed", "user_id", userID, "error", err)
	}
}
