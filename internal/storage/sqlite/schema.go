package sqlite

const schema = `
-- Documents table: one row per document version
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    number TEXT NOT NULL,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    type_code TEXT NOT NULL,
    source_code TEXT NOT NULL DEFAULT '',
    version_major INTEGER NOT NULL DEFAULT 1 CHECK(version_major >= 0),
    version_minor INTEGER NOT NULL DEFAULT 0 CHECK(version_minor >= 0),
    family_key TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    effective_date DATETIME,
    obsolescence_date DATETIME,
    next_periodic_review_date DATETIME,
    author TEXT NOT NULL,
    reviewer TEXT,
    approver TEXT,
    file_reference TEXT,
    signed_reference TEXT,
    reason_for_change TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    approved_at DATETIME,
    obsoleted_at DATETIME,
    terminated_at DATETIME,
    -- versions of a family share the number; the version pair disambiguates
    UNIQUE (type_code, number, version_major, version_minor),
    -- effective documents must carry a date and an uploaded file
    CHECK (
        status != 'effective' OR
        (effective_date IS NOT NULL AND file_reference IS NOT NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_family ON documents(family_key);
CREATE INDEX IF NOT EXISTS idx_documents_family_status ON documents(family_key, status);
CREATE INDEX IF NOT EXISTS idx_documents_effective_date ON documents(status, effective_date);
CREATE INDEX IF NOT EXISTS idx_documents_obsolescence ON documents(status, obsolescence_date);
CREATE INDEX IF NOT EXISTS idx_documents_review_due ON documents(next_periodic_review_date);

-- Document types (POL, SOP, WIN, ...)
CREATE TABLE IF NOT EXISTS document_types (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    requires_periodic_review INTEGER NOT NULL DEFAULT 0,
    review_interval_months INTEGER NOT NULL DEFAULT 24
);

-- Document sources (internal, supplier, regulatory, ...)
CREATE TABLE IF NOT EXISTS document_sources (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    requires_verification INTEGER NOT NULL DEFAULT 0
);

-- Dependencies table (typed directional edges)
-- Self-edges are forbidden at the DB level; family-level cycles are rejected
-- by graph traversal on insert.
CREATE TABLE IF NOT EXISTS dependencies (
    id TEXT PRIMARY KEY,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'reference',
    is_critical INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL,
    UNIQUE (from_id, to_id, type),
    CHECK (from_id != to_id),
    FOREIGN KEY (from_id) REFERENCES documents(id),
    FOREIGN KEY (to_id) REFERENCES documents(id)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_from ON dependencies(from_id, is_active);
CREATE INDEX IF NOT EXISTS idx_dependencies_to ON dependencies(to_id, is_active);

-- Workflow instances
CREATE TABLE IF NOT EXISTS workflows (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    workflow_type TEXT NOT NULL,
    current_state TEXT NOT NULL,
    initiated_by TEXT NOT NULL,
    current_assignee TEXT,
    initiated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    due_at DATETIME,
    is_terminated INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (document_id) REFERENCES documents(id)
);

CREATE INDEX IF NOT EXISTS idx_workflows_document ON workflows(document_id, is_terminated);
CREATE INDEX IF NOT EXISTS idx_workflows_due ON workflows(is_terminated, due_at);

-- Workflow transitions (immutable, append-only)
CREATE TABLE IF NOT EXISTS workflow_transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    workflow_id TEXT NOT NULL,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    actor TEXT NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (workflow_id) REFERENCES workflows(id)
);

CREATE INDEX IF NOT EXISTS idx_transitions_workflow ON workflow_transitions(workflow_id);

-- Audit entries (append-only, checksum-chained)
-- sequence is the chain position; the row with MAX(sequence) is the chain
-- head and serializes appends under the write lock.
-- session_id is nullable by contract: API-originated entries may carry none.
CREATE TABLE IF NOT EXISTS audit_entries (
    sequence INTEGER PRIMARY KEY,
    actor TEXT NOT NULL DEFAULT 'system',
    action TEXT NOT NULL,
    target_kind TEXT NOT NULL,
    target_id TEXT NOT NULL,
    target_display_name TEXT NOT NULL DEFAULT '',
    from_state TEXT,
    to_state TEXT,
    description TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    occurred_at DATETIME NOT NULL,
    session_id TEXT,
    previous_checksum TEXT NOT NULL DEFAULT '',
    checksum TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_entries(target_kind, target_id);
CREATE INDEX IF NOT EXISTS idx_audit_occurred ON audit_entries(occurred_at);

-- Periodic reviews
CREATE TABLE IF NOT EXISTS periodic_reviews (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    reviewer TEXT NOT NULL,
    outcome TEXT NOT NULL,
    comments TEXT NOT NULL DEFAULT '',
    next_review_months INTEGER NOT NULL DEFAULT 0,
    linked_new_version TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (document_id) REFERENCES documents(id)
);

CREATE INDEX IF NOT EXISTS idx_periodic_reviews_document ON periodic_reviews(document_id);

-- Users (reference records; user CRUD lives outside the core)
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT UNIQUE NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1,
    is_superuser INTEGER NOT NULL DEFAULT 0
);

-- Role memberships. Revocation deactivates the row; grant history survives.
CREATE TABLE IF NOT EXISTS user_roles (
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (user_id, role),
    FOREIGN KEY (user_id) REFERENCES users(id)
);

-- Role -> capability assignments
CREATE TABLE IF NOT EXISTS role_capabilities (
    role TEXT NOT NULL,
    capability TEXT NOT NULL,
    PRIMARY KEY (role, capability)
);

-- Default role model
INSERT OR IGNORE INTO role_capabilities (role, capability) VALUES
    ('viewer', 'read'),
    ('author', 'read'),
    ('author', 'write'),
    ('reviewer', 'read'),
    ('reviewer', 'review'),
    ('approver', 'read'),
    ('approver', 'approve'),
    ('quality_admin', 'read'),
    ('quality_admin', 'write'),
    ('quality_admin', 'review'),
    ('quality_admin', 'approve'),
    ('quality_admin', 'admin');

-- Number counters (per document type and year, monotonic)
CREATE TABLE IF NOT EXISTS number_counters (
    type_code TEXT NOT NULL,
    year INTEGER NOT NULL,
    last_number INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (type_code, year)
);

-- Scheduled task metadata (per task name)
CREATE TABLE IF NOT EXISTS scheduled_tasks (
    name TEXT PRIMARY KEY,
    last_run_at DATETIME,
    total_run_count INTEGER NOT NULL DEFAULT 0
);

-- Task execution results (pruned after 30 days by cleanup-task-results)
CREATE TABLE IF NOT EXISTS task_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    scheduled_time DATETIME NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    result_status TEXT NOT NULL DEFAULT '',
    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_task_results_recorded ON task_results(recorded_at);
CREATE INDEX IF NOT EXISTS idx_task_results_name ON task_results(name, recorded_at);

-- Overdue workflow notices, one per workflow per day, so timeout
-- notifications stay idempotent
CREATE TABLE IF NOT EXISTS overdue_notices (
    workflow_id TEXT NOT NULL,
    notice_date TEXT NOT NULL,
    PRIMARY KEY (workflow_id, notice_date)
);

-- Metadata table (internal state like the last verified audit sequence)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
