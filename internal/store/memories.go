package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Memory source values.
const (
	SourceJournal     = "journal"
	SourceCalendar    = "calendar"
	SourceInteraction = "interaction"
)

// Memory is a single extracted personal memory.
// Memories are never deleted, only decayed or strengthened.
type Memory struct {
	ID              int64
	UserID          string
	Content         string
	Source          string // journal, calendar, interaction
	SourceDate      string // YYYY-MM-DD
	Strength        float64
	ActivationCount int
	LastActivated   *int64
	ContactIDs      []string
	CreatedAt       int64
	UpdatedAt       int64
}

// CreateMemory inserts a new memory with strength 1.0.
func (db *DB) CreateMemory(m *Memory) error {
	now := time.Now().UnixMilli()
	contacts, err := encodeContacts(m.ContactIDs)
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO memories (user_id, content, source, source_date, strength, activation_count, contact_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, m.UserID, m.Content, m.Source, m.SourceDate, 1.0, contacts, now, now)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}

	id, _ := result.LastInsertId()
	m.ID = id
	m.Strength = 1.0
	m.ActivationCount = 0
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// GetMemory returns a memory by id, or nil if not found.
func (db *DB) GetMemory(id int64) (*Memory, error) {
	row := db.QueryRow(memorySelect+` WHERE id = ?`, id)
	m, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// ListMemories returns all memories for a user, strongest first.
func (db *DB) ListMemories(userID string) ([]Memory, error) {
	rows, err := db.Query(memorySelect+` WHERE user_id = ? ORDER BY strength DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListRecentMemories returns the most recently created memories for a user.
func (db *DB) ListRecentMemories(userID string, limit int) ([]Memory, error) {
	rows, err := db.Query(memorySelect+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetMemoriesByIDs returns memories for the given list of ids.
func (db *DB) GetMemoriesByIDs(ids []int64) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(memorySelect+` WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get memories by ids: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ReinforceMemories applies a hebbian boost to the given memories:
// activation_count increments, strength grows toward a ceiling of 2.0.
func (db *DB) ReinforceMemories(ids []int64, boost float64) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	for _, id := range ids {
		_, err := db.Exec(`
			UPDATE memories
			SET activation_count = activation_count + 1,
			    strength = MIN(strength + ?, 2.0),
			    last_activated = ?,
			    updated_at = ?
			WHERE id = ?
		`, boost, now, now, id)
		if err != nil {
			return fmt.Errorf("reinforce memory %d: %w", id, err)
		}
	}
	return nil
}

// DecayAllMemories applies time-based decay to memory strength.
// 90-day half-life since last activation (or creation), floor of 0.1.
// Strength only decreases via decay; reinforcement is the only way up.
func (db *DB) DecayAllMemories() (int, error) {
	rows, err := db.Query(`SELECT id, strength, last_activated, created_at FROM memories`)
	if err != nil {
		return 0, fmt.Errorf("query decayable memories: %w", err)
	}
	defer rows.Close()

	type decayTarget struct {
		id            int64
		strength      float64
		lastActivated *int64
		createdAt     int64
	}

	var targets []decayTarget
	for rows.Next() {
		var t decayTarget
		var lastActivated sql.NullInt64
		if err := rows.Scan(&t.id, &t.strength, &lastActivated, &t.createdAt); err != nil {
			return 0, fmt.Errorf("scan decay target: %w", err)
		}
		if lastActivated.Valid {
			t.lastActivated = &lastActivated.Int64
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UnixMilli()
	halfLifeMs := float64(90 * 24 * 60 * 60 * 1000)
	updated := 0

	for _, t := range targets {
		refTime := t.createdAt
		if t.lastActivated != nil {
			refTime = *t.lastActivated
		}

		elapsed := float64(now - refTime)
		if elapsed <= 0 {
			continue
		}

		decayed := math.Pow(0.5, elapsed/halfLifeMs)
		if decayed < 0.1 {
			decayed = 0.1
		}
		if decayed >= t.strength {
			continue
		}

		if _, err := db.Exec(`UPDATE memories SET strength = ? WHERE id = ?`, decayed, t.id); err != nil {
			return updated, fmt.Errorf("update decay: %w", err)
		}
		updated++
	}

	return updated, nil
}

// ListUserIDs returns every distinct user with stored memories.
func (db *DB) ListUserIDs() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT user_id FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllMemoryContents returns every memory's content text across users.
// Used to build the TF-IDF fallback vocabulary.
func (db *DB) AllMemoryContents() ([]string, error) {
	rows, err := db.Query(`SELECT content FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("all memory contents: %w", err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		docs = append(docs, c)
	}
	return docs, rows.Err()
}

const memorySelect = `
	SELECT id, user_id, content, source, source_date, strength, activation_count, last_activated, contact_ids, created_at, updated_at
	FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(row rowScanner) (*Memory, error) {
	var m Memory
	var lastActivated sql.NullInt64
	var contacts sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.Content, &m.Source, &m.SourceDate,
		&m.Strength, &m.ActivationCount, &lastActivated, &contacts, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastActivated.Valid {
		m.LastActivated = &lastActivated.Int64
	}
	if contacts.Valid && contacts.String != "" {
		if err := json.Unmarshal([]byte(contacts.String), &m.ContactIDs); err != nil {
			return nil, fmt.Errorf("decode contacts: %w", err)
		}
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

func encodeContacts(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	buf, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// HasContact reports whether the memory is associated with the given contact.
func (m *Memory) HasContact(contactID string) bool {
	for _, c := range m.ContactIDs {
		if c == contactID {
			return true
		}
	}
	return false
}
