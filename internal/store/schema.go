package store

// Schema creates the tables check runs are persisted to. Every statement is
// idempotent so EnsureSchema can run on each start.
const Schema = `
CREATE TABLE IF NOT EXISTS sanity_runs (
    run_id             UUID PRIMARY KEY,
    dataset            TEXT NOT NULL,
    origin             TEXT NOT NULL,
    started_at         TIMESTAMPTZ NOT NULL,
    duration_ms        BIGINT NOT NULL,
    result_code        TEXT NOT NULL,
    verdict            TEXT NOT NULL,
    rows_total         INTEGER NOT NULL,
    records            INTEGER NOT NULL,
    warnings           INTEGER NOT NULL,
    errors             INTEGER NOT NULL,
    internal_errors    INTEGER NOT NULL,
    dropped_messages   INTEGER NOT NULL,
    flags_good         INTEGER NOT NULL,
    flags_questionable INTEGER NOT NULL,
    flags_bad          INTEGER NOT NULL,
    metadata           JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS sanity_runs_started_at_idx ON sanity_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS sanity_records (
    run_id      UUID NOT NULL REFERENCES sanity_runs (run_id) ON DELETE CASCADE,
    line        INTEGER NOT NULL,
    column_name TEXT NOT NULL,
    value       TEXT,
    flag        CHAR(1) NOT NULL,
    PRIMARY KEY (run_id, line, column_name)
);

CREATE TABLE IF NOT EXISTS sanity_messages (
    run_id   UUID NOT NULL REFERENCES sanity_runs (run_id) ON DELETE CASCADE,
    seq      INTEGER NOT NULL,
    line     INTEGER NOT NULL,
    severity TEXT NOT NULL,
    category TEXT NOT NULL,
    code     TEXT NOT NULL,
    columns  TEXT[] NOT NULL DEFAULT '{}',
    text     TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);
`

var (
	recordColumns  = []string{"run_id", "line", "column_name", "value", "flag"}
	messageColumns = []string{"run_id", "seq", "line", "severity", "category", "code", "columns", "text"}
)

const insertRunSQL = `
INSERT INTO sanity_runs (
    run_id, dataset, origin, started_at, duration_ms, result_code, verdict,
    rows_total, records, warnings, errors, internal_errors, dropped_messages,
    flags_good, flags_questionable, flags_bad, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

const selectRunSQL = `
SELECT run_id, dataset, origin, started_at, duration_ms, result_code, verdict,
       rows_total, records, warnings, errors, internal_errors, dropped_messages,
       flags_good, flags_questionable, flags_bad, metadata
FROM sanity_runs`

const selectMessagesSQL = `
SELECT line, severity, category, code, columns, text
FROM sanity_messages
WHERE run_id = $1
ORDER BY seq
LIMIT $2`
