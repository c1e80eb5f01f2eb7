package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Nudge type values.
const (
	NudgeTension      = "tension"
	NudgeCallback     = "callback"
	NudgeEyebrowRaise = "eyebrow_raise"
)

// ValidNudgeTypes defines the allowed nudge types.
var ValidNudgeTypes = map[string]bool{
	NudgeTension: true, NudgeCallback: true, NudgeEyebrowRaise: true,
}

// Nudge is a persisted margin nudge. Identity for idempotence is the
// tuple (user_id, entry_date, paragraph_hash, nudge_type).
type Nudge struct {
	ID               int64
	UserID           string
	EntryDate        string // YYYY-MM-DD
	ParagraphHash    string
	Type             string
	Hook             string
	WhyNow           string
	ActionPrompt     string
	EvidenceMemoryID *int64
	EvidenceDate     string
	EvidenceSnippet  string
	OverallUtility   float64
	CreatedAt        int64
	UpdatedAt        int64
}

// UpsertNudge persists an accepted nudge. Re-processing the same paragraph
// updates the existing row rather than creating a duplicate.
func (db *DB) UpsertNudge(n *Nudge) error {
	if !ValidNudgeTypes[n.Type] {
		return fmt.Errorf("invalid nudge type %q", n.Type)
	}

	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO nudges (user_id, entry_date, paragraph_hash, nudge_type, hook, why_now, action_prompt,
			evidence_memory_id, evidence_date, evidence_snippet, overall_utility, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, entry_date, paragraph_hash, nudge_type) DO UPDATE SET
			hook = excluded.hook,
			why_now = excluded.why_now,
			action_prompt = excluded.action_prompt,
			evidence_memory_id = excluded.evidence_memory_id,
			evidence_date = excluded.evidence_date,
			evidence_snippet = excluded.evidence_snippet,
			overall_utility = excluded.overall_utility,
			updated_at = excluded.updated_at
	`, n.UserID, n.EntryDate, n.ParagraphHash, n.Type, n.Hook, n.WhyNow, n.ActionPrompt,
		n.EvidenceMemoryID, n.EvidenceDate, n.EvidenceSnippet, n.OverallUtility, now, now)
	if err != nil {
		return fmt.Errorf("upsert nudge: %w", err)
	}

	// Re-read the id so callers can reference the row (feedback linkage).
	err = db.QueryRow(`
		SELECT id, created_at FROM nudges
		WHERE user_id = ? AND entry_date = ? AND paragraph_hash = ? AND nudge_type = ?
	`, n.UserID, n.EntryDate, n.ParagraphHash, n.Type).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("read back nudge: %w", err)
	}
	n.UpdatedAt = now
	return nil
}

// GetNudge returns a nudge by id, or nil if not found.
func (db *DB) GetNudge(id int64) (*Nudge, error) {
	row := db.QueryRow(nudgeSelect+` WHERE id = ?`, id)
	n, err := scanNudgeRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get nudge: %w", err)
	}
	return n, nil
}

// RecentNudges returns the most recent nudges for a user, newest first.
// The gate uses roughly the last 20 for stale-repeat suppression.
func (db *DB) RecentNudges(userID string, limit int) ([]Nudge, error) {
	rows, err := db.Query(nudgeSelect+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent nudges: %w", err)
	}
	defer rows.Close()
	return scanNudges(rows)
}

// TodayTypeCounts returns today's nudge count per type for a user.
// "Today" starts at local midnight, not at a UTC boundary. Recomputed
// per request; no in-process cache.
func (db *DB) TodayTypeCounts(userID string) (map[string]int, error) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UnixMilli()
	rows, err := db.Query(`
		SELECT nudge_type, COUNT(*) FROM nudges
		WHERE user_id = ? AND created_at >= ?
		GROUP BY nudge_type
	`, userID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("today type counts: %w", err)
	}
	defer rows.Close()
	return scanTypeCounts(rows)
}

// SessionTypeCounts returns the nudge count per type for one entry date,
// the current writing session's distribution.
func (db *DB) SessionTypeCounts(userID, entryDate string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT nudge_type, COUNT(*) FROM nudges
		WHERE user_id = ? AND entry_date = ?
		GROUP BY nudge_type
	`, userID, entryDate)
	if err != nil {
		return nil, fmt.Errorf("session type counts: %w", err)
	}
	defer rows.Close()
	return scanTypeCounts(rows)
}

// CountNudgesForEntry returns how many nudges exist for one entry date.
func (db *DB) CountNudgesForEntry(userID, entryDate string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM nudges WHERE user_id = ? AND entry_date = ?
	`, userID, entryDate).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entry nudges: %w", err)
	}
	return count, nil
}

const nudgeSelect = `
	SELECT id, user_id, entry_date, paragraph_hash, nudge_type, hook, why_now, action_prompt,
		evidence_memory_id, evidence_date, evidence_snippet, overall_utility, created_at, updated_at
	FROM nudges`

func scanNudgeRow(row rowScanner) (*Nudge, error) {
	var n Nudge
	var whyNow, actionPrompt, evidenceDate, evidenceSnippet sql.NullString
	var evidenceID sql.NullInt64
	err := row.Scan(&n.ID, &n.UserID, &n.EntryDate, &n.ParagraphHash, &n.Type,
		&n.Hook, &whyNow, &actionPrompt, &evidenceID, &evidenceDate, &evidenceSnippet,
		&n.OverallUtility, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.WhyNow = whyNow.String
	n.ActionPrompt = actionPrompt.String
	n.EvidenceDate = evidenceDate.String
	n.EvidenceSnippet = evidenceSnippet.String
	if evidenceID.Valid {
		n.EvidenceMemoryID = &evidenceID.Int64
	}
	return &n, nil
}

func scanNudges(rows *sql.Rows) ([]Nudge, error) {
	var nudges []Nudge
	for rows.Next() {
		n, err := scanNudgeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nudge: %w", err)
		}
		nudges = append(nudges, *n)
	}
	return nudges, rows.Err()
}

func scanTypeCounts(rows *sql.Rows) (map[string]int, error) {
	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		counts[t] = c
	}
	return counts, rows.Err()
}
