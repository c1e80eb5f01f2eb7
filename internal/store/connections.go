package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Connection is an undirected typed edge between two memories.
// Stored with memory_a < memory_b so each pair has one canonical row per type.
type Connection struct {
	ID        int64
	MemoryA   int64
	MemoryB   int64
	Type      string
	Weight    float64
	Reason    string
	CreatedAt int64
	UpdatedAt int64
}

// ValidConnectionTypes defines the allowed connection types.
var ValidConnectionTypes = map[string]bool{
	"causal": true, "thematic": true, "contradiction": true,
	"pattern": true, "temporal_sequence": true, "cross_domain": true,
	"sensory": true, "deviation": true, "escalation": true,
}

// CreateConnection inserts a connection, normalizing the pair ordering.
// An existing row for the same pair and type is left untouched.
func (db *DB) CreateConnection(c *Connection) error {
	if !ValidConnectionTypes[c.Type] {
		return fmt.Errorf("invalid connection type %q", c.Type)
	}
	if c.MemoryA == c.MemoryB {
		return fmt.Errorf("connection cannot link a memory to itself")
	}
	if c.MemoryA > c.MemoryB {
		c.MemoryA, c.MemoryB = c.MemoryB, c.MemoryA
	}
	if c.Weight <= 0 || c.Weight > 1 {
		return fmt.Errorf("connection weight %.3f out of range (0, 1]", c.Weight)
	}

	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO memory_connections (memory_a, memory_b, connection_type, weight, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(memory_a, memory_b, connection_type) DO NOTHING
	`, c.MemoryA, c.MemoryB, c.Type, c.Weight, c.Reason, now, now)
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}

	id, _ := result.LastInsertId()
	if id != 0 {
		c.ID = id
		c.CreatedAt = now
		c.UpdatedAt = now
	}
	return nil
}

// ConnectionsForMemories returns all connections touching any of the given memories.
func (db *DB) ConnectionsForMemories(ids []int64) ([]Connection, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)*2)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}

	ph := strings.Join(placeholders, ",")
	query := fmt.Sprintf(`
		SELECT id, memory_a, memory_b, connection_type, weight, reason, created_at, updated_at
		FROM memory_connections
		WHERE memory_a IN (%s) OR memory_b IN (%s)
	`, ph, ph)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("connections for memories: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// StrengthenConnections bumps the weight of traversed connections,
// capped at 1.0. The hebbian "wire together" half of reinforcement.
func (db *DB) StrengthenConnections(ids []int64, boost float64) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	for _, id := range ids {
		_, err := db.Exec(`
			UPDATE memory_connections
			SET weight = MIN(weight + ?, 1.0), updated_at = ?
			WHERE id = ?
		`, boost, now, id)
		if err != nil {
			return fmt.Errorf("strengthen connection %d: %w", id, err)
		}
	}
	return nil
}

// Other returns the memory on the far side of the connection from id.
func (c *Connection) Other(id int64) int64 {
	if c.MemoryA == id {
		return c.MemoryB
	}
	return c.MemoryA
}

func scanConnections(rows *sql.Rows) ([]Connection, error) {
	var conns []Connection
	for rows.Next() {
		var c Connection
		var reason sql.NullString
		if err := rows.Scan(&c.ID, &c.MemoryA, &c.MemoryB, &c.Type, &c.Weight, &reason, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		c.Reason = reason.String
		conns = append(conns, c)
	}
	return conns, rows.Err()
}
