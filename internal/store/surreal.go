package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/memgen-go/internal/models"
)

// lockRow is the generation_lock table shape.
type lockRow struct {
	Key              string    `json:"key"`
	InProgress       bool      `json:"in_progress"`
	StartedAt        time.Time `json:"started_at"`
	CurrentRequestID *string   `json:"current_request_id,omitempty"`
	PendingRequestID *string   `json:"pending_request_id,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (r *lockRow) toModel() models.LockState {
	l := models.LockState{
		Key:        r.Key,
		InProgress: r.InProgress,
		StartedAt:  r.StartedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.CurrentRequestID != nil {
		l.CurrentRequestID = *r.CurrentRequestID
	}
	if r.PendingRequestID != nil {
		l.PendingRequestID = *r.PendingRequestID
	}
	return l
}

// artifactRow is the artifact table shape.
type artifactRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Service   string                 `json:"service"`
	ScopeID   *string                `json:"scope_id,omitempty"`
	Kind      string                 `json:"kind"`
	Content   string                 `json:"content"`
	Status    *string                `json:"status,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (r *artifactRow) toModel() models.Artifact {
	a := models.Artifact{
		ID:        fmt.Sprintf("%v", r.ID.ID),
		Service:   r.Service,
		Kind:      r.Kind,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ScopeID != nil {
		a.ScopeID = *r.ScopeID
	}
	if r.Status != nil {
		a.Status = models.ArtifactStatus(*r.Status)
	}
	return a
}

// progressRow is the generation_progress table shape.
type progressRow struct {
	Service               string                 `json:"service"`
	TotalItems            int                    `json:"total_items"`
	ProcessedItems        int                    `json:"processed_items"`
	Succeeded             int                    `json:"succeeded"`
	Failed                int                    `json:"failed"`
	CurrentItemID         *string                `json:"current_item_id,omitempty"`
	Errors                []models.ProgressError `json:"errors"`
	RunStatus             string                 `json:"run_status"`
	CancellationRequested bool                   `json:"cancellation_requested"`
	StartedAt             time.Time              `json:"started_at"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty"`
}

func (r *progressRow) toModel() models.ProgressRecord {
	p := models.ProgressRecord{
		Service:               r.Service,
		TotalItems:            r.TotalItems,
		ProcessedItems:        r.ProcessedItems,
		Succeeded:             r.Succeeded,
		Failed:                r.Failed,
		Errors:                r.Errors,
		RunStatus:             models.RunStatus(r.RunStatus),
		CancellationRequested: r.CancellationRequested,
		StartedAt:             r.StartedAt,
		CompletedAt:           r.CompletedAt,
	}
	if r.CurrentItemID != nil {
		p.CurrentItemID = *r.CurrentItemID
	}
	return p
}

// acquireResult is the value returned by the acquire transaction.
type acquireResult struct {
	Acquired bool    `json:"acquired"`
	State    lockRow `json:"state"`
}

// TryAcquireLock runs the acquire-or-enqueue decision as one SurrealQL
// transaction, so racing callers across processes serialize on the
// database and never both observe acquired=true.
func (s *SurrealStore) TryAcquireLock(ctx context.Context, scopeKey, requestID string, staleAfter time.Duration) (Acquisition, error) {
	const sql = `
		BEGIN TRANSACTION;
		LET $id = type::thing('generation_lock', $key);
		LET $lock = (SELECT * FROM ONLY $id);
		LET $acquired = $lock == NONE
			OR !$lock.in_progress
			OR (time::now() - $lock.started_at) >= duration::from::secs($stale_secs);
		LET $state = IF $acquired THEN
			(UPSERT ONLY $id SET
				key = $key,
				in_progress = true,
				started_at = time::now(),
				current_request_id = $request_id,
				pending_request_id = NONE,
				updated_at = time::now())
		ELSE
			(UPDATE ONLY $id SET
				pending_request_id = $request_id,
				updated_at = time::now())
		END;
		RETURN { acquired: $acquired, state: $state };
		COMMIT TRANSACTION;
	`
	vars := map[string]any{
		"key":        scopeKey,
		"request_id": requestID,
		"stale_secs": int(staleAfter.Seconds()),
	}
	results, err := surrealdb.Query[acquireResult](ctx, s.db, sql, vars)
	if err != nil {
		return Acquisition{}, fmt.Errorf("try acquire lock: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return Acquisition{}, fmt.Errorf("try acquire lock: empty result")
	}
	res := (*results)[0].Result
	return Acquisition{Acquired: res.Acquired, State: res.State.toModel()}, nil
}

// releaseResult is the value returned by the release transaction.
type releaseResult struct {
	Pending *string `json:"pending,omitempty"`
}

// ReleaseLock hands the lock to the recorded pending successor, or
// clears it when none arrived. Owner-guarded via THROW inside the
// transaction, surfaced as ErrLockNotHeld.
func (s *SurrealStore) ReleaseLock(ctx context.Context, scopeKey, requestID string) (string, error) {
	const sql = `
		BEGIN TRANSACTION;
		LET $id = type::thing('generation_lock', $key);
		LET $lock = (SELECT * FROM ONLY $id);
		IF $lock == NONE OR !$lock.in_progress OR $lock.current_request_id != $request_id {
			THROW "lock not held";
		};
		LET $pending = $lock.pending_request_id;
		IF $pending != NONE {
			UPDATE $id SET
				current_request_id = $pending,
				pending_request_id = NONE,
				started_at = time::now(),
				updated_at = time::now();
		} ELSE {
			UPDATE $id SET
				in_progress = false,
				current_request_id = NONE,
				pending_request_id = NONE,
				updated_at = time::now();
		};
		RETURN { pending: $pending };
		COMMIT TRANSACTION;
	`
	vars := map[string]any{"key": scopeKey, "request_id": requestID}
	results, err := surrealdb.Query[releaseResult](ctx, s.db, sql, vars)
	if err != nil {
		return "", fmt.Errorf("release lock: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return "", fmt.Errorf("release lock: empty result")
	}
	res := (*results)[0].Result
	if res.Pending == nil {
		return "", nil
	}
	return *res.Pending, nil
}

// ClearLock forces the not-held state; the row is kept.
func (s *SurrealStore) ClearLock(ctx context.Context, scopeKey string) error {
	const sql = `
		UPSERT type::thing('generation_lock', $key) SET
			key = $key,
			in_progress = false,
			current_request_id = NONE,
			pending_request_id = NONE,
			updated_at = time::now();
	`
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"key": scopeKey}); err != nil {
		return fmt.Errorf("clear lock: %w", wrapQueryError(err))
	}
	return nil
}

// ReadLock returns the lock state, or nil if no row exists.
func (s *SurrealStore) ReadLock(ctx context.Context, scopeKey string) (*models.LockState, error) {
	results, err := surrealdb.Query[[]lockRow](ctx, s.db, `
		SELECT * FROM type::thing('generation_lock', $key)
	`, map[string]any{"key": scopeKey})
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	l := (*results)[0].Result[0].toModel()
	return &l, nil
}

// artifactFilter builds the WHERE clause for the service/status/scope
// filters. Current status is represented as status = NONE.
func artifactFilter(service string, status models.ArtifactStatus, scopes []string, vars map[string]any) string {
	clauses := make([]string, 0, 3)
	if status == models.StatusCurrent {
		clauses = append(clauses, "status = NONE")
	} else {
		clauses = append(clauses, "status = $status")
		vars["status"] = string(status)
	}
	if service != "" {
		clauses = append(clauses, "service = $service")
		vars["service"] = service
	}
	if len(scopes) > 0 {
		clauses = append(clauses, "scope_id IN $scopes")
		vars["scopes"] = scopes
	}
	return strings.Join(clauses, " AND ")
}

// ListArtifacts returns matching artifacts.
func (s *SurrealStore) ListArtifacts(ctx context.Context, service string, status models.ArtifactStatus, scopes []string) ([]models.Artifact, error) {
	vars := map[string]any{}
	sql := fmt.Sprintf("SELECT * FROM artifact WHERE %s", artifactFilter(service, status, scopes, vars))

	results, err := surrealdb.Query[[]artifactRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	rows := (*results)[0].Result
	out := make([]models.Artifact, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// CreateArtifacts bulk-inserts new artifacts.
func (s *SurrealStore) CreateArtifacts(ctx context.Context, artifacts []models.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(artifacts))
	for i := range artifacts {
		a := &artifacts[i]
		row := map[string]any{
			"service": a.Service,
			"kind":    a.Kind,
			"content": a.Content,
		}
		if a.ID != "" {
			row["id"] = a.ID
		}
		if a.ScopeID != "" {
			row["scope_id"] = a.ScopeID
		}
		if a.Status != models.StatusCurrent {
			row["status"] = string(a.Status)
		}
		rows = append(rows, row)
	}
	_, err := surrealdb.Query[any](ctx, s.db, "INSERT INTO artifact $rows", map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("create artifacts: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateArtifactStatus moves matching artifacts between statuses as a
// single UPDATE statement, returning the count moved.
func (s *SurrealStore) UpdateArtifactStatus(ctx context.Context, service string, from, to models.ArtifactStatus, scopes []string) (int, error) {
	vars := map[string]any{}
	where := artifactFilter(service, from, scopes, vars)

	toClause := "status = $to_status"
	if to == models.StatusCurrent {
		toClause = "status = NONE"
	} else {
		vars["to_status"] = string(to)
	}

	sql := fmt.Sprintf("UPDATE artifact SET %s, updated_at = time::now() WHERE %s", toClause, where)
	results, err := surrealdb.Query[[]artifactRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("update artifact status: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// DeleteArtifactsByStatus deletes matching artifacts, returning the
// count deleted.
func (s *SurrealStore) DeleteArtifactsByStatus(ctx context.Context, service string, status models.ArtifactStatus, scopes []string) (int, error) {
	vars := map[string]any{}
	sql := fmt.Sprintf("DELETE artifact WHERE %s RETURN BEFORE", artifactFilter(service, status, scopes, vars))

	results, err := surrealdb.Query[[]artifactRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("delete artifacts: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// CreateProgress replaces the service's progress record with a fresh one.
func (s *SurrealStore) CreateProgress(ctx context.Context, service string, total int) error {
	const sql = `
		UPSERT type::thing('generation_progress', $service) CONTENT {
			service: $service,
			total_items: $total,
			processed_items: 0,
			succeeded: 0,
			failed: 0,
			errors: [],
			run_status: 'in_progress',
			cancellation_requested: false,
			started_at: time::now()
		};
	`
	vars := map[string]any{"service": service, "total": total}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("create progress: %w", wrapQueryError(err))
	}
	return nil
}

// SetProgressItem records the item currently being processed.
func (s *SurrealStore) SetProgressItem(ctx context.Context, service, itemID string) error {
	const sql = `
		UPDATE type::thing('generation_progress', $service) SET current_item_id = $item;
	`
	vars := map[string]any{"service": service, "item": itemID}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("set progress item: %w", wrapQueryError(err))
	}
	return nil
}

// RecordProgressItem counts one processed item in a single atomic UPDATE.
func (s *SurrealStore) RecordProgressItem(ctx context.Context, service, itemID, itemErr string) error {
	vars := map[string]any{"service": service}
	var sql string
	if itemErr == "" {
		sql = `
			UPDATE type::thing('generation_progress', $service) SET
				processed_items += 1,
				succeeded += 1;
		`
	} else {
		sql = `
			UPDATE type::thing('generation_progress', $service) SET
				processed_items += 1,
				failed += 1,
				errors += [{ item_id: $item, message: $message }];
		`
		vars["item"] = itemID
		vars["message"] = itemErr
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("record progress item: %w", wrapQueryError(err))
	}
	return nil
}

// FinalizeProgress sets the terminal run status and completion time.
func (s *SurrealStore) FinalizeProgress(ctx context.Context, service string, status models.RunStatus) error {
	const sql = `
		UPDATE type::thing('generation_progress', $service) SET
			run_status = $status,
			current_item_id = NONE,
			completed_at = time::now();
	`
	vars := map[string]any{"service": service, "status": string(status)}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("finalize progress: %w", wrapQueryError(err))
	}
	return nil
}

// RequestCancel flips the cancellation flag on an in-progress run.
func (s *SurrealStore) RequestCancel(ctx context.Context, service string) error {
	const sql = `
		BEGIN TRANSACTION;
		LET $id = type::thing('generation_progress', $service);
		IF (SELECT * FROM ONLY $id) == NONE {
			THROW "progress not found";
		};
		UPDATE $id SET cancellation_requested = true;
		COMMIT TRANSACTION;
	`
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"service": service}); err != nil {
		return fmt.Errorf("request cancel: %w", wrapQueryError(err))
	}
	return nil
}

// ReadProgress returns the progress record for a service.
func (s *SurrealStore) ReadProgress(ctx context.Context, service string) (*models.ProgressRecord, error) {
	results, err := surrealdb.Query[[]progressRow](ctx, s.db, `
		SELECT * FROM type::thing('generation_progress', $service)
	`, map[string]any{"service": service})
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("service %q: %w", service, ErrProgressNotFound)
	}
	p := (*results)[0].Result[0].toModel()
	return &p, nil
}
