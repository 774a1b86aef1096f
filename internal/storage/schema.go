package storage

const schemaVersion = "1"

const schemaSQL = `
-- One row per crawler invocation
CREATE TABLE IF NOT EXISTS crawl_runs (
    id TEXT PRIMARY KEY NOT NULL,
    seed_url TEXT NOT NULL,
    target_domain TEXT NOT NULL,
    user_agent TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,

    -- Filled in when the run ends
    pages_processed INTEGER,
    pages_blocked INTEGER,
    pages_failed INTEGER,
    links_enqueued INTEGER,
    pending INTEGER
);

-- Per-URL events in dequeue order, mirroring the CSV log
CREATE TABLE IF NOT EXISTS crawl_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    url TEXT NOT NULL,
    outcome TEXT NOT NULL CHECK (outcome IN ('status', 'blocked', 'error')),
    status_code INTEGER,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    link_count INTEGER NOT NULL DEFAULT 0,
    enqueued_count INTEGER NOT NULL DEFAULT 0,
    allowed INTEGER NOT NULL,
    response_size_bytes INTEGER,
    error_kind TEXT,
    error_message TEXT,
    recorded_at DATETIME NOT NULL,
    UNIQUE(run_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_events_run ON crawl_events(run_id, sequence);
CREATE INDEX IF NOT EXISTS idx_events_outcome ON crawl_events(outcome);
CREATE INDEX IF NOT EXISTS idx_events_url ON crawl_events(url);

-- View for per-run reporting
CREATE VIEW IF NOT EXISTS run_summary AS
SELECT
    r.id AS run_id,
    r.seed_url,
    r.started_at,
    r.finished_at,
    COUNT(e.id) AS events,
    SUM(CASE WHEN e.outcome = 'blocked' THEN 1 ELSE 0 END) AS blocked,
    SUM(CASE WHEN e.outcome = 'error' THEN 1 ELSE 0 END) AS errors,
    AVG(CASE WHEN e.outcome != 'blocked' THEN e.elapsed_ms END) AS avg_elapsed_ms
FROM crawl_runs r
LEFT JOIN crawl_events e ON e.run_id = r.id
GROUP BY r.id;

-- Crawl meta table stores metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
