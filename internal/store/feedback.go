package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Feedback values.
const (
	FeedbackUp   = "up"
	FeedbackDown = "down"
)

// NudgeFeedback is an explicit thumbs up/down on a surfaced nudge,
// optionally with a rejection reason. Feedback drives personalization.
type NudgeFeedback struct {
	ID        int64
	UserID    string
	NudgeID   *int64
	NudgeType string
	Feedback  string // up, down
	Reason    string // rejection reason, e.g. "too_vague", "stale", "wrong_tone"
	CreatedAt int64
}

// AddFeedback records one feedback event.
func (db *DB) AddFeedback(f *NudgeFeedback) error {
	if f.Feedback != FeedbackUp && f.Feedback != FeedbackDown {
		return fmt.Errorf("invalid feedback %q", f.Feedback)
	}
	if !ValidNudgeTypes[f.NudgeType] {
		return fmt.Errorf("invalid nudge type %q", f.NudgeType)
	}

	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO nudge_feedback (user_id, nudge_id, nudge_type, feedback, reason, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)
	`, f.UserID, f.NudgeID, f.NudgeType, f.Feedback, f.Reason, now)
	if err != nil {
		return fmt.Errorf("add feedback: %w", err)
	}

	id, _ := result.LastInsertId()
	f.ID = id
	f.CreatedAt = now
	return nil
}

// RecentFeedback returns the most recent feedback events for a user,
// newest first. Personalization is rebuilt from this on every request.
func (db *DB) RecentFeedback(userID string, limit int) ([]NudgeFeedback, error) {
	rows, err := db.Query(`
		SELECT id, user_id, nudge_id, nudge_type, feedback, reason, created_at
		FROM nudge_feedback WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent feedback: %w", err)
	}
	defer rows.Close()

	var events []NudgeFeedback
	for rows.Next() {
		var f NudgeFeedback
		var nudgeID sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&f.ID, &f.UserID, &nudgeID, &f.NudgeType, &f.Feedback, &reason, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		if nudgeID.Valid {
			f.NudgeID = &nudgeID.Int64
		}
		f.Reason = reason.String
		events = append(events, f)
	}
	return events, rows.Err()
}
