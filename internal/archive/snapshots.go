package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"permitline/internal/domain"
)

// Snapshots persists whole-application JSON snapshots. The in-memory store
// stays authoritative; this is the reload source after a restart.
type Snapshots struct {
	DB *sql.DB
}

// Save upserts the snapshot for one application.
func (s Snapshots) Save(ctx context.Context, app domain.Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", app.ID, err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO applications(id,user_id,status,updated_at,snapshot_json) VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, status=excluded.status, updated_at=excluded.updated_at, snapshot_json=excluded.snapshot_json`,
		app.ID, app.UserID, app.Status, app.UpdatedAt.UTC().Format(time.RFC3339), string(data))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", app.ID, err)
	}
	return nil
}

// LoadAll returns every persisted application.
func (s Snapshots) LoadAll(ctx context.Context) ([]domain.Application, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT snapshot_json FROM applications`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Application
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var app domain.Application
		if err := json.Unmarshal([]byte(raw), &app); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}
