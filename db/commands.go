package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CommandEntry is one accepted command as recorded by the ingress.
type CommandEntry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Source     string          `json:"source"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

func (db *DB) InsertCommand(kind string, payload []byte, source string) (*CommandEntry, error) {
	entry := &CommandEntry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    json.RawMessage(payload),
		Source:     source,
		ReceivedAt: time.Now().UTC(),
	}
	_, err := db.Exec(`
		INSERT INTO commands (id, kind, payload, source, received_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.Kind, string(payload), entry.Source, entry.ReceivedAt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecentCommands returns up to limit entries, oldest first.
func (db *DB) RecentCommands(kind string, limit int) ([]CommandEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, kind, payload, source, received_at
		FROM commands ORDER BY received_at DESC, rowid DESC LIMIT ?
	`
	args := []any{limit}
	if kind != "" {
		query = `
			SELECT id, kind, payload, source, received_at
			FROM commands WHERE kind = ?
			ORDER BY received_at DESC, rowid DESC LIMIT ?
		`
		args = []any{kind, limit}
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CommandEntry
	for rows.Next() {
		var e CommandEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.Kind, &payload, &e.Source, &e.ReceivedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// PruneCommands deletes entries received before cutoff and reports how
// many went.
func (db *DB) PruneCommands(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM commands WHERE received_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
