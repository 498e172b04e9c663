// database_runs.go - Datenbank-Operationen für Läufe, Skalare und Artefakte

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound wird geliefert, wenn kein Lauf mit der ID existiert
var ErrRunNotFound = errors.New("run not found")

func (db *database) insertRun(r Run) error {
	config := r.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}

	_, err := db.conn.Exec(`
		INSERT INTO runs (id, project, name, sweep_id, config, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Project, r.Name, r.SweepID, string(config), StateRunning, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (db *database) finishRun(id string, summary map[string]float64, at time.Time) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	res, err := db.conn.Exec(`UPDATE runs SET state = ?, summary = ?, finished_at = ? WHERE id = ?`,
		StateFinished, string(b), at, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// insertScalars schreibt alle Werte eines Schritts in einer Transaktion
func (db *database) insertScalars(runID string, step int, values map[string]float64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO scalars (run_id, step, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare scalar insert: %w", err)
	}
	defer stmt.Close()

	for k, v := range values {
		if _, err := stmt.Exec(runID, step, k, v); err != nil {
			return fmt.Errorf("insert scalar %s: %w", k, err)
		}
	}

	return tx.Commit()
}

func (db *database) insertArtifact(runID string, a Artifact) error {
	b, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO artifacts (run_id, name, type, path, step, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, a.Name, a.Type, a.Path, a.Step, string(b))
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var config, summary string
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Project, &r.Name, &r.SweepID, &config, &r.State, &summary, &r.CreatedAt, &finished); err != nil {
		return Run{}, err
	}

	r.Config = json.RawMessage(config)
	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return Run{}, fmt.Errorf("unmarshal summary of run %s: %w", r.ID, err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return r, nil
}

const runColumns = `id, project, name, sweep_id, config, state, summary, created_at, finished_at`

func (db *database) getRuns() ([]Run, error) {
	rows, err := db.conn.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

func (db *database) getRun(id string) (*Run, error) {
	r, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &r, nil
}

// getScalars liefert die Skalare eines Laufs, optional gefiltert nach key
func (db *database) getScalars(runID, key string) ([]Scalar, error) {
	query := `SELECT step, key, value FROM scalars WHERE run_id = ?`
	args := []any{runID}
	if key != "" {
		query += ` AND key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY step, id`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scalars: %w", err)
	}
	defer rows.Close()

	var out []Scalar
	for rows.Next() {
		var s Scalar
		if err := rows.Scan(&s.Step, &s.Key, &s.Value); err != nil {
			return nil, fmt.Errorf("scan scalar: %w", err)
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

func (db *database) getArtifacts(runID string) ([]Artifact, error) {
	rows, err := db.conn.Query(`
		SELECT name, type, path, step, metadata, created_at
		FROM artifacts WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var metadata string
		if err := rows.Scan(&a.Name, &a.Type, &a.Path, &a.Step, &metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

func (db *database) deleteRun(id string) error {
	res, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
