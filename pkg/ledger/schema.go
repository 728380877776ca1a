package ledger

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the ledger tables and indexes. Timestamps are stored as
// RFC3339 UTC strings, which sort correctly and round-trip through the
// driver without locale surprises.
const Schema = `
CREATE TABLE IF NOT EXISTS usage (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    cost_usd REAL NOT NULL,
    request_id TEXT NOT NULL UNIQUE,
    flagged INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS budgets (
    project_id TEXT PRIMARY KEY,
    limit_usd REAL NOT NULL,
    spent_usd REAL NOT NULL DEFAULT 0,
    period_start TEXT NOT NULL,
    period_end TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_project ON usage(project_id);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_project_created ON usage(project_id, created_at);
`

// insertSchemaVersion stamps the schema version once.
const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// getSchemaVersion reads the highest applied schema version.
const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
