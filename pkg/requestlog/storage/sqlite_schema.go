package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the request log tables. Timestamps are stored as Unix
// milliseconds so range filters compare numerically.
const Schema = `
CREATE TABLE IF NOT EXISTS request_log (
    id TEXT PRIMARY KEY,
    request_id TEXT,

    -- Request
    timestamp INTEGER NOT NULL,
    client_ip TEXT NOT NULL,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    query TEXT,
    route TEXT,
    service TEXT,
    request_headers TEXT,
    request_body TEXT,

    -- Upstream
    upstream_url TEXT,
    upstream_latency_ms INTEGER,

    -- Pipeline outcome
    auth_type TEXT NOT NULL DEFAULT 'NONE',
    authentication_success BOOLEAN NOT NULL DEFAULT 0,
    authorization_success BOOLEAN NOT NULL DEFAULT 0,
    rate_limited BOOLEAN NOT NULL DEFAULT 0,
    stage TEXT,

    -- Response
    status INTEGER NOT NULL,
    response_headers TEXT,
    response_body TEXT,
    latency_ms INTEGER,

    error TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_log_timestamp ON request_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_request_log_route ON request_log(route);
CREATE INDEX IF NOT EXISTS idx_request_log_status ON request_log(status);
CREATE INDEX IF NOT EXISTS idx_request_log_client_ip ON request_log(client_ip);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
