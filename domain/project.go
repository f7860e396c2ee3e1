package domain

import "time"

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
)

type Project struct {
	ID          string        `json:"id"`
	ClientID    string        `json:"client_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (p Project) RowID() string { return p.ID }

func (p Project) RowCreatedAt() time.Time { return p.CreatedAt }

// Folder groups the requirement inputs a client provides for a project.
type Folder struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Inputs    []string  `json:"inputs,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (f Folder) RowID() string { return f.ID }

func (f Folder) RowCreatedAt() time.Time { return f.CreatedAt }

type DeliverableKind string

const (
	DeliverableFile DeliverableKind = "file"
	DeliverableURL  DeliverableKind = "url"
)

type Deliverable struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	FolderID  string          `json:"folder_id,omitempty"`
	ClientID  string          `json:"client_id"`
	Name      string          `json:"name"`
	Kind      DeliverableKind `json:"kind"`
	URL       string          `json:"url,omitempty"`
	Path      string          `json:"path,omitempty"`
	MimeType  string          `json:"mime_type,omitempty"`
	Size      int64           `json:"size,omitempty"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

func (d Deliverable) RowID() string { return d.ID }

func (d Deliverable) RowCreatedAt() time.Time { return d.CreatedAt }
