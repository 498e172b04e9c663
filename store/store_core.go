// Modul: store_core.go
// Beschreibung: Store-Kernfunktionen und Datenbank-Initialisierung.
// Enthaelt ensureDB, Lese-Operationen und den Start neuer Laeufe.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cortml/cort/envconfig"
	"github.com/cortml/cort/track"
)

// Store persistiert Trainingslaeufe in SQLite
type Store struct {
	// DBPath allows overriding the default database path (mainly for testing)
	DBPath string

	// dbMu protects database initialization only
	dbMu sync.Mutex
	db   *database
}

func (s *Store) ensureDB() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = envconfig.TrackingDB()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	database, err := newDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	s.db = database
	return nil
}

// Start legt einen neuen Lauf fuer session an und liefert den Tracker dazu.
// config wird als JSON gespeichert.
func (s *Store) Start(session track.Session, config any) (*Tracker, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	b, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	created := session.Started
	if created.IsZero() {
		created = time.Now()
	}

	if err := s.db.insertRun(Run{
		ID:        session.RunID,
		Project:   session.Project,
		Name:      session.Name,
		SweepID:   session.SweepID,
		Config:    b,
		CreatedAt: created.UTC(),
	}); err != nil {
		return nil, err
	}

	return &Tracker{db: s.db, session: session}, nil
}

// Runs liefert alle Laeufe, neueste zuerst
func (s *Store) Runs() ([]Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	return s.db.getRuns()
}

// Run liefert einen Lauf oder ErrRunNotFound
func (s *Store) Run(id string) (*Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	return s.db.getRun(id)
}

// Scalars liefert die Skalare eines Laufs; ein leerer key liefert alle
func (s *Store) Scalars(id, key string) ([]Scalar, error) {
	if _, err := s.Run(id); err != nil {
		return nil, err
	}
	return s.db.getScalars(id, key)
}

// Artifacts liefert die Artefakte eines Laufs
func (s *Store) Artifacts(id string) ([]Artifact, error) {
	if _, err := s.Run(id); err != nil {
		return nil, err
	}
	return s.db.getArtifacts(id)
}

// DeleteRun loescht einen Lauf samt Skalaren und Artefakten
func (s *Store) DeleteRun(id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.deleteRun(id)
}

func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Tracker schreibt einen laufenden Trainingslauf in den Store
type Tracker struct {
	db      *database
	session track.Session
}

var _ track.Tracker = (*Tracker)(nil)

func (t *Tracker) Session() track.Session { return t.session }

func (t *Tracker) Log(ctx context.Context, step int, values map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.insertScalars(t.session.RunID, step, values)
}

func (t *Tracker) LogArtifact(ctx context.Context, a track.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.insertArtifact(t.session.RunID, Artifact{
		Name:     a.Name,
		Type:     a.Type,
		Path:     a.Path,
		Step:     a.Step,
		Metadata: a.Metadata,
	})
}

func (t *Tracker) Finish(ctx context.Context, summary map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.finishRun(t.session.RunID, summary, time.Now().UTC())
}
