package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Journal appends typed tracker events to an append-only log.
type Journal struct {
	DB  *sql.DB
	Now func() time.Time
}

// Payload carries event-specific detail.
type Payload map[string]any

// Entry is one journal row as read back by Tail.
type Entry struct {
	Seq           int64   `json:"seq"`
	TS            string  `json:"ts"`
	Type          string  `json:"type"`
	ApplicationID string  `json:"application_id,omitempty"`
	ActorID       string  `json:"actor_id,omitempty"`
	Payload       Payload `json:"payload"`
}

// Append records one event.
func (j Journal) Append(ctx context.Context, entryType, applicationID, actorID string, payload Payload) error {
	if j.Now == nil {
		j.Now = time.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal journal payload: %w", err)
	}
	_, err = j.DB.ExecContext(ctx, `INSERT INTO journal(ts,type,application_id,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		j.Now().UTC().Format(time.RFC3339), entryType, nullable(applicationID), actorID, string(data))
	return err
}

// Tail returns the most recent entries, newest first.
func (j Journal) Tail(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.DB.QueryContext(ctx, `SELECT seq,ts,type,application_id,actor_id,payload_json FROM journal ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var appID sql.NullString
		var raw string
		if err := rows.Scan(&e.Seq, &e.TS, &e.Type, &appID, &e.ActorID, &raw); err != nil {
			return nil, err
		}
		e.ApplicationID = appID.String
		if err := json.Unmarshal([]byte(raw), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode journal payload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
