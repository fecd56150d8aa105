package store

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- GENERATION LOCK TABLE
    -- ==========================================================================
    -- One row per scope key ("service" or "service:scope"). Rows are cleared,
    -- never deleted, so staleness survives restarts.
    DEFINE TABLE IF NOT EXISTS generation_lock SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS key ON generation_lock TYPE string;
    DEFINE FIELD IF NOT EXISTS in_progress ON generation_lock TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS started_at ON generation_lock TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS current_request_id ON generation_lock TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS pending_request_id ON generation_lock TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS updated_at ON generation_lock TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- ARTIFACT TABLE
    -- ==========================================================================
    -- status NONE = current generation; pending/archived/archive_in_progress
    -- are the lifecycle markers managed by upgrade/downgrade.
    DEFINE TABLE IF NOT EXISTS artifact SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS service ON artifact TYPE string;
    DEFINE FIELD IF NOT EXISTS scope_id ON artifact TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS kind ON artifact TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON artifact TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON artifact TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON artifact TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON artifact TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS artifact_service ON artifact FIELDS service;
    DEFINE INDEX IF NOT EXISTS artifact_status ON artifact FIELDS status;
    DEFINE INDEX IF NOT EXISTS artifact_scope ON artifact FIELDS scope_id;

    -- ==========================================================================
    -- GENERATION PROGRESS TABLE
    -- ==========================================================================
    -- One row per service, replaced at the start of each batch run.
    DEFINE TABLE IF NOT EXISTS generation_progress SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS service ON generation_progress TYPE string;
    DEFINE FIELD IF NOT EXISTS total_items ON generation_progress TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS processed_items ON generation_progress TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS succeeded ON generation_progress TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS failed ON generation_progress TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS current_item_id ON generation_progress TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS errors ON generation_progress TYPE array<object> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS run_status ON generation_progress TYPE string DEFAULT 'in_progress';
    DEFINE FIELD IF NOT EXISTS cancellation_requested ON generation_progress TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS started_at ON generation_progress TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON generation_progress TYPE option<datetime>;
`
