package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Implication is a derived higher-order insight over one or more memories.
type Implication struct {
	ID              int64
	UserID          string
	Content         string
	Type            string
	DerivationOrder int
	Strength        float64
	SourceMemoryIDs []int64
	CreatedAt       int64
	UpdatedAt       int64
}

// ValidImplicationTypes defines the allowed implication types.
var ValidImplicationTypes = map[string]bool{
	"predictive": true, "emotional": true, "relational": true,
	"identity": true, "behavioral": true, "actionable": true,
	"absence": true, "trajectory": true, "meta_cognitive": true,
	"retrograde": true, "counterfactual": true,
}

// CreateImplication inserts a new implication.
func (db *DB) CreateImplication(imp *Implication) error {
	if !ValidImplicationTypes[imp.Type] {
		return fmt.Errorf("invalid implication type %q", imp.Type)
	}
	if imp.DerivationOrder < 1 {
		imp.DerivationOrder = 1
	}
	if len(imp.SourceMemoryIDs) == 0 {
		return fmt.Errorf("implication requires at least one source memory")
	}
	if imp.Strength <= 0 || imp.Strength > 1 {
		imp.Strength = 1.0
	}

	sources, err := json.Marshal(imp.SourceMemoryIDs)
	if err != nil {
		return fmt.Errorf("encode source ids: %w", err)
	}

	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO memory_implications (user_id, content, implication_type, derivation_order, strength, source_memory_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, imp.UserID, imp.Content, imp.Type, imp.DerivationOrder, imp.Strength, string(sources), now, now)
	if err != nil {
		return fmt.Errorf("create implication: %w", err)
	}

	id, _ := result.LastInsertId()
	imp.ID = id
	imp.CreatedAt = now
	imp.UpdatedAt = now
	return nil
}

// ListImplications returns all implications for a user, strongest first.
func (db *DB) ListImplications(userID string) ([]Implication, error) {
	rows, err := db.Query(`
		SELECT id, user_id, content, implication_type, derivation_order, strength, source_memory_ids, created_at, updated_at
		FROM memory_implications WHERE user_id = ?
		ORDER BY strength DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list implications: %w", err)
	}
	defer rows.Close()
	return scanImplications(rows)
}

// SourcedBy reports whether any of the implication's source memories
// appears in the given id set.
func (imp *Implication) SourcedBy(ids map[int64]bool) bool {
	for _, id := range imp.SourceMemoryIDs {
		if ids[id] {
			return true
		}
	}
	return false
}

func scanImplications(rows *sql.Rows) ([]Implication, error) {
	var imps []Implication
	for rows.Next() {
		var imp Implication
		var sources string
		if err := rows.Scan(&imp.ID, &imp.UserID, &imp.Content, &imp.Type,
			&imp.DerivationOrder, &imp.Strength, &sources, &imp.CreatedAt, &imp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan implication: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &imp.SourceMemoryIDs); err != nil {
			return nil, fmt.Errorf("decode source ids: %w", err)
		}
		imps = append(imps, imp)
	}
	return imps, rows.Err()
}
