package models

import "time"

// ArtifactStatus is the lifecycle marker on a generated artifact.
// Current artifacts carry no marker; the empty string represents that
// absence in both backends.
type ArtifactStatus string

const (
	StatusCurrent           ArtifactStatus = ""
	StatusPending           ArtifactStatus = "pending"
	StatusArchived          ArtifactStatus = "archived"
	StatusArchiveInProgress ArtifactStatus = "archive_in_progress"
)

// Artifact is one persisted unit of extractor output. Status changes
// only through the lifecycle manager's upgrade/downgrade transitions.
type Artifact struct {
	ID        string         `json:"id"`
	Service   string         `json:"service"`
	ScopeID   string         `json:"scope_id,omitempty"`
	Kind      string         `json:"kind"` // name of the extractor that produced it
	Content   string         `json:"content"`
	Status    ArtifactStatus `json:"status,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
