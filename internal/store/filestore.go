package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raphaelgruber/memgen-go/internal/models"
)

// fileState is the on-disk shape of the file backend.
type fileState struct {
	Locks     map[string]*models.LockState      `json:"locks"`
	Artifacts []models.Artifact                 `json:"artifacts"`
	Progress  map[string]*models.ProgressRecord `json:"progress"`
}

// FileStore is the single-process gateway backend: one JSON state file
// guarded by a mutex. Every operation is a locked read-modify-write
// persisted via temp-file rename, which makes each primitive atomic
// with respect to concurrent goroutines in the same process.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
	log   *slog.Logger
}

// Compile-time check that FileStore implements Gateway.
var _ Gateway = (*FileStore)(nil)

// NewFileStore opens (or initializes) the state file at path.
func NewFileStore(path string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &FileStore{
		path: path,
		log:  log,
		state: fileState{
			Locks:    make(map[string]*models.LockState),
			Progress: make(map[string]*models.ProgressRecord),
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if s.state.Locks == nil {
		s.state.Locks = make(map[string]*models.LockState)
	}
	if s.state.Progress == nil {
		s.state.Progress = make(map[string]*models.ProgressRecord)
	}
	return s, nil
}

// persist writes the state file. Caller must hold the mutex.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// TryAcquireLock implements the acquire-or-enqueue primitive under the
// store mutex: absent, released, or stale locks are taken over; an
// active lock records the caller as the (latest) pending successor.
func (s *FileStore) TryAcquireLock(ctx context.Context, scopeKey, requestID string, staleAfter time.Duration) (Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	l := s.state.Locks[scopeKey]

	if l == nil || !l.InProgress || l.Stale(now, staleAfter) {
		if l != nil && l.Stale(now, staleAfter) {
			s.log.Warn("taking over stale lock",
				"scope_key", scopeKey,
				"previous_request_id", l.CurrentRequestID,
				"held_since", l.StartedAt)
		}
		l = &models.LockState{
			Key:              scopeKey,
			InProgress:       true,
			StartedAt:        now,
			CurrentRequestID: requestID,
			UpdatedAt:        now,
		}
		s.state.Locks[scopeKey] = l
		if err := s.persist(); err != nil {
			return Acquisition{}, err
		}
		return Acquisition{Acquired: true, State: *l}, nil
	}

	// Active non-stale lock: only the latest pending request survives.
	l.PendingRequestID = requestID
	l.UpdatedAt = now
	if err := s.persist(); err != nil {
		return Acquisition{}, err
	}
	return Acquisition{Acquired: false, State: *l}, nil
}

// ReleaseLock hands the lock to the pending successor if one arrived
// during the run, otherwise clears it. Owner-guarded: a stale caller
// cannot release a lock someone else has since re-acquired.
func (s *FileStore) ReleaseLock(ctx context.Context, scopeKey, requestID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.state.Locks[scopeKey]
	if l == nil || !l.InProgress || l.CurrentRequestID != requestID {
		return "", fmt.Errorf("release %q: %w", scopeKey, ErrLockNotHeld)
	}

	now := time.Now().UTC()
	pending := l.PendingRequestID
	if pending != "" {
		l.CurrentRequestID = pending
		l.PendingRequestID = ""
		l.StartedAt = now
	} else {
		l.InProgress = false
		l.CurrentRequestID = ""
		l.PendingRequestID = ""
	}
	l.UpdatedAt = now
	if err := s.persist(); err != nil {
		return "", err
	}
	return pending, nil
}

// ClearLock forces the not-held state. The row is kept for observability.
func (s *FileStore) ClearLock(ctx context.Context, scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.state.Locks[scopeKey]
	if l == nil {
		return nil
	}
	l.InProgress = false
	l.CurrentRequestID = ""
	l.PendingRequestID = ""
	l.UpdatedAt = time.Now().UTC()
	return s.persist()
}

// ReadLock returns a copy of the lock state, or nil if none exists.
func (s *FileStore) ReadLock(ctx context.Context, scopeKey string) (*models.LockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.state.Locks[scopeKey]
	if l == nil {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

// matchArtifact applies the service/status/scope filters.
func matchArtifact(a *models.Artifact, service string, status models.ArtifactStatus, scopes []string) bool {
	if service != "" && a.Service != service {
		return false
	}
	if a.Status != status {
		return false
	}
	if len(scopes) > 0 {
		for _, sc := range scopes {
			if a.ScopeID == sc {
				return true
			}
		}
		return false
	}
	return true
}

// ListArtifacts returns matching artifacts.
func (s *FileStore) ListArtifacts(ctx context.Context, service string, status models.ArtifactStatus, scopes []string) ([]models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Artifact
	for i := range s.state.Artifacts {
		if matchArtifact(&s.state.Artifacts[i], service, status, scopes) {
			out = append(out, s.state.Artifacts[i])
		}
	}
	return out, nil
}

// CreateArtifacts appends new artifacts.
func (s *FileStore) CreateArtifacts(ctx context.Context, artifacts []models.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Artifacts = append(s.state.Artifacts, artifacts...)
	return s.persist()
}

// UpdateArtifactStatus moves matching artifacts between statuses as one
// locked mutation.
func (s *FileStore) UpdateArtifactStatus(ctx context.Context, service string, from, to models.ArtifactStatus, scopes []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for i := range s.state.Artifacts {
		if matchArtifact(&s.state.Artifacts[i], service, from, scopes) {
			s.state.Artifacts[i].Status = to
			s.state.Artifacts[i].UpdatedAt = now
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.persist(); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteArtifactsByStatus removes matching artifacts.
func (s *FileStore) DeleteArtifactsByStatus(ctx context.Context, service string, status models.ArtifactStatus, scopes []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.state.Artifacts[:0]
	count := 0
	for i := range s.state.Artifacts {
		if matchArtifact(&s.state.Artifacts[i], service, status, scopes) {
			count++
			continue
		}
		kept = append(kept, s.state.Artifacts[i])
	}
	s.state.Artifacts = kept
	if count == 0 {
		return 0, nil
	}
	if err := s.persist(); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateProgress starts a fresh progress record for the service.
func (s *FileStore) CreateProgress(ctx context.Context, service string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Progress[service] = &models.ProgressRecord{
		Service:    service,
		TotalItems: total,
		RunStatus:  models.RunInProgress,
		StartedAt:  time.Now().UTC(),
	}
	return s.persist()
}

func (s *FileStore) progressLocked(service string) (*models.ProgressRecord, error) {
	rec := s.state.Progress[service]
	if rec == nil {
		return nil, fmt.Errorf("service %q: %w", service, ErrProgressNotFound)
	}
	return rec, nil
}

// SetProgressItem records the item currently being processed.
func (s *FileStore) SetProgressItem(ctx context.Context, service, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.progressLocked(service)
	if err != nil {
		return err
	}
	rec.CurrentItemID = itemID
	return s.persist()
}

// RecordProgressItem counts one processed item.
func (s *FileStore) RecordProgressItem(ctx context.Context, service, itemID, itemErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.progressLocked(service)
	if err != nil {
		return err
	}
	rec.ProcessedItems++
	if itemErr == "" {
		rec.Succeeded++
	} else {
		rec.Failed++
		rec.Errors = append(rec.Errors, models.ProgressError{ItemID: itemID, Message: itemErr})
	}
	return s.persist()
}

// FinalizeProgress sets the terminal status.
func (s *FileStore) FinalizeProgress(ctx context.Context, service string, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.progressLocked(service)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.RunStatus = status
	rec.CurrentItemID = ""
	rec.CompletedAt = &now
	return s.persist()
}

// RequestCancel flips the cancellation flag on an in-progress run.
func (s *FileStore) RequestCancel(ctx context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.progressLocked(service)
	if err != nil {
		return err
	}
	rec.CancellationRequested = true
	return s.persist()
}

// ReadProgress returns a copy of the progress record.
func (s *FileStore) ReadProgress(ctx context.Context, service string) (*models.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.progressLocked(service)
	if err != nil {
		return nil, err
	}
	cp := *rec
	cp.Errors = append([]models.ProgressError(nil), rec.Errors...)
	return &cp, nil
}
