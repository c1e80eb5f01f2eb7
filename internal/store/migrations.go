package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: extracted personal memories",
		SQL: `
CREATE TABLE memories (
    id               INTEGER PRIMARY KEY,
    user_id          TEXT NOT NULL,
    content          TEXT NOT NULL,
    source           TEXT NOT NULL CHECK (source IN ('journal', 'calendar', 'interaction')),
    source_date      TEXT NOT NULL,

    -- Reinforcement
    strength         REAL NOT NULL DEFAULT 1.0,
    activation_count INTEGER NOT NULL DEFAULT 0,
    last_activated   INTEGER,

    -- Associated contacts, JSON array of contact identifiers
    contact_ids      TEXT,

    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE INDEX idx_memories_user     ON memories(user_id);
CREATE INDEX idx_memories_strength ON memories(strength DESC);
CREATE INDEX idx_memories_source   ON memories(user_id, source_date DESC);
`,
	},
	{
		Version:     2,
		Description: "memory_connections: typed weighted edges between memories",
		SQL: `
CREATE TABLE memory_connections (
    id              INTEGER PRIMARY KEY,
    memory_a        INTEGER NOT NULL,
    memory_b        INTEGER NOT NULL,
    connection_type TEXT NOT NULL CHECK (connection_type IN (
        'causal', 'thematic', 'contradiction', 'pattern', 'temporal_sequence',
        'cross_domain', 'sensory', 'deviation', 'escalation')),
    weight          REAL NOT NULL DEFAULT 0.5,
    reason          TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,

    UNIQUE (memory_a, memory_b, connection_type),
    FOREIGN KEY (memory_a) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (memory_b) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX idx_connections_a ON memory_connections(memory_a);
CREATE INDEX idx_connections_b ON memory_connections(memory_b);
`,
	},
	{
		Version:     3,
		Description: "memory_implications: derived higher-order insights",
		SQL: `
CREATE TABLE memory_implications (
    id                INTEGER PRIMARY KEY,
    user_id           TEXT NOT NULL,
    content           TEXT NOT NULL,
    implication_type  TEXT NOT NULL CHECK (implication_type IN (
        'predictive', 'emotional', 'relational', 'identity', 'behavioral',
        'actionable', 'absence', 'trajectory', 'meta_cognitive', 'retrograde',
        'counterfactual')),
    derivation_order  INTEGER NOT NULL DEFAULT 1 CHECK (derivation_order >= 1),
    strength          REAL NOT NULL DEFAULT 1.0,

    -- JSON array of source memory ids
    source_memory_ids TEXT NOT NULL,

    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

CREATE INDEX idx_implications_user ON memory_implications(user_id);
`,
	},
	{
		Version:     4,
		Description: "memory_vectors: embedding vectors for semantic retrieval",
		SQL: `
CREATE TABLE memory_vectors (
    memory_id  INTEGER PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     5,
		Description: "nudges: accepted margin nudges, idempotent per paragraph",
		SQL: `
CREATE TABLE nudges (
    id                 INTEGER PRIMARY KEY,
    user_id            TEXT NOT NULL,
    entry_date         TEXT NOT NULL,
    paragraph_hash     TEXT NOT NULL,
    nudge_type         TEXT NOT NULL CHECK (nudge_type IN ('tension', 'callback', 'eyebrow_raise')),

    hook               TEXT NOT NULL,
    why_now            TEXT,
    action_prompt      TEXT,

    evidence_memory_id INTEGER,
    evidence_date      TEXT,
    evidence_snippet   TEXT,

    overall_utility    REAL NOT NULL DEFAULT 0,
    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL,

    UNIQUE (user_id, entry_date, paragraph_hash, nudge_type)
);

CREATE INDEX idx_nudges_user    ON nudges(user_id, created_at DESC);
CREATE INDEX idx_nudges_session ON nudges(user_id, entry_date);
`,
	},
	{
		Version:     6,
		Description: "nudge_feedback: explicit user feedback for personalization",
		SQL: `
CREATE TABLE nudge_feedback (
    id         INTEGER PRIMARY KEY,
    user_id    TEXT NOT NULL,
    nudge_id   INTEGER,
    nudge_type TEXT NOT NULL,
    feedback   TEXT NOT NULL CHECK (feedback IN ('up', 'down')),
    reason     TEXT,
    created_at INTEGER NOT NULL,

    FOREIGN KEY (nudge_id) REFERENCES nudges(id) ON DELETE SET NULL
);

CREATE INDEX idx_feedback_user ON nudge_feedback(user_id, created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
