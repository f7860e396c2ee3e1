package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"client-portal/auth"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/projection"
	"client-portal/repositories"
	"client-portal/storage"
)

const (
	DeliverableBucket = "deliverables"
	DownloadURLTTL    = time.Hour
)

// DeliverableService manages the files and links delivered to clients.
// Listings are served from a projection until a change event on the
// deliverables relation invalidates it.
type DeliverableService struct {
	log           *slog.Logger
	deliverables  *repositories.Table[domain.Deliverable]
	projects      *repositories.Table[domain.Project]
	objects       *storage.ObjectStore
	notifications INotificationService
	projection    *projection.Projection[domain.Deliverable]
}

func NewDeliverableService(log *slog.Logger, store *repositories.Store, objects *storage.ObjectStore,
	notifications INotificationService) *DeliverableService {
	return &DeliverableService{
		log:           log,
		deliverables:  store.Deliverables,
		projects:      store.Projects,
		objects:       objects,
		notifications: notifications,
		projection:    projection.New[domain.Deliverable](log, domain.TableDeliverables),
	}
}

// Projection is attached to the change feed by the caller.
func (s *DeliverableService) Projection() *projection.Projection[domain.Deliverable] {
	return s.projection
}

// AddFileDeliverable validates, uploads, then inserts the row. The object
// is removed again when the row cannot be written.
func (s *DeliverableService) AddFileDeliverable(ctx context.Context, projectID, folderID, name string,
	data []byte) (domain.Deliverable, error) {
	if err := auth.Validate(auth.FileDeliverableRequest{ProjectID: projectID, Name: name, Size: len(data)}); err != nil {
		return domain.Deliverable{}, err
	}
	id := uuid.NewString()
	objectPath := projectID + "/" + id
	if _, err := s.objects.Check(DeliverableBucket, objectPath, data); err != nil {
		return domain.Deliverable{}, err
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Deliverable{}, err
	}

	object, err := s.objects.Upload(ctx, DeliverableBucket, objectPath, data)
	if err != nil {
		return domain.Deliverable{}, err
	}
	deliverable, err := s.deliverables.Insert(ctx, domain.Deliverable{
		ID:        id,
		ProjectID: project.ID,
		FolderID:  folderID,
		ClientID:  project.ClientID,
		Name:      name,
		Kind:      domain.DeliverableFile,
		Path:      object.Path,
		MimeType:  object.MimeType,
		Size:      object.Size,
		CreatedBy: domain.ActorFromContext(ctx).UserID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if rmErr := s.objects.Remove(ctx, DeliverableBucket, []string{object.Path}); rmErr != nil {
			s.log.Error("Orphan object left after failed insert", "path", object.Path, "error", rmErr)
		}
		return domain.Deliverable{}, err
	}
	s.delivered(ctx, deliverable)
	return deliverable, nil
}

func (s *DeliverableService) AddURLDeliverable(ctx context.Context, projectID, folderID, name,
	url string) (domain.Deliverable, error) {
	if err := auth.Validate(auth.URLDeliverableRequest{ProjectID: projectID, Name: name, URL: url}); err != nil {
		return domain.Deliverable{}, err
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Deliverable{}, err
	}
	deliverable, err := s.deliverables.Insert(ctx, domain.Deliverable{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		FolderID:  folderID,
		ClientID:  project.ClientID,
		Name:      name,
		Kind:      domain.DeliverableURL,
		URL:       url,
		CreatedBy: domain.ActorFromContext(ctx).UserID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Deliverable{}, err
	}
	s.delivered(ctx, deliverable)
	return deliverable, nil
}

func (s *DeliverableService) delivered(ctx context.Context, deliverable domain.Deliverable) {
	s.projection.Apply(deliverable)
	if s.notifications == nil {
		return
	}
	_, err := s.notifications.CreateNotification(ctx, deliverable.ClientID, domain.NotificationDeliverable,
		"New deliverable", deliverable.Name)
	if err != nil {
		s.log.Warn("Deliverable notification failed", "deliverable_id", deliverable.ID, "error", err)
	}
}

// RemoveDeliverable deletes the row, then the object of a file deliverable.
func (s *DeliverableService) RemoveDeliverable(ctx context.Context, id string) error {
	deliverable, err := s.deliverables.Get(ctx, id)
	if err != nil {
		return err
	}
	if err = s.deliverables.Delete(ctx, id); err != nil {
		return err
	}
	s.projection.Remove(id)
	if deliverable.Kind == domain.DeliverableFile {
		return s.objects.Remove(ctx, DeliverableBucket, []string{deliverable.Path})
	}
	return nil
}

// DownloadURL returns the link of a URL deliverable, or a signed URL valid
// one hour for a file.
func (s *DeliverableService) DownloadURL(ctx context.Context, id string) (string, error) {
	deliverable, err := s.deliverables.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if deliverable.Kind == domain.DeliverableURL {
		return deliverable.URL, nil
	}
	return s.objects.CreateSignedURL(DeliverableBucket, deliverable.Path, DownloadURLTTL)
}

// ListDeliverables returns the deliverables of projectID the caller may
// see, newest first. The projection is shared by every caller, so it is
// loaded as the system and filtered with the relation policy.
func (s *DeliverableService) ListDeliverables(ctx context.Context, projectID string) ([]domain.Deliverable, error) {
	actor := domain.ActorFromContext(ctx)
	if actor.UserID == "" {
		return nil, errors.ErrNotAuthenticated
	}
	rows, loaded := s.projection.ListLoaded(projectID)
	if !loaded {
		gen := s.projection.Generation()
		selected, err := s.deliverables.SelectIndex(domain.WithActor(ctx, domain.SystemActor), "project", projectID,
			repositories.NewQuery())
		if err != nil {
			return nil, err
		}
		// A rejected load still answers this call from the rows just read.
		s.projection.Load(projectID, selected, gen)
		rows = selected
		projection.Sort(rows)
	}
	var visible []domain.Deliverable
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if row.ProjectID != projectID {
			continue
		}
		if actor.Role == domain.RoleSystem || repositories.DeliverablePolicy(actor, repositories.OpSelect, row) {
			visible = append(visible, row)
		}
	}
	return visible, nil
}
