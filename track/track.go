// track.go - Experiment-Tracking fuer Trainingslaeufe
//
// Dieses Modul enthaelt:
// - Session: Projekt, Name, Sweep- und Run-ID eines Laufs
// - Tracker: Schnittstelle fuer Skalare, Artefakte und Abschluss
// - Nop: Verwirft alles
// - Memory: Haelt alles im Speicher (Tests, Dry-Runs)
package track

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoSweep steht im Checkpoint-Namen, wenn der Lauf zu keinem Sweep gehoert
const NoSweep = "none"

// Session identifiziert einen Lauf
type Session struct {
	Project string
	Name    string
	SweepID string
	RunID   string
	Started time.Time
}

// NewSession erstellt eine Session mit neuer Run-ID. Ohne Namen wird einer
// aus der Run-ID abgeleitet.
func NewSession(project, name, sweepID string) (Session, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("generate run id: %w", err)
	}

	id := u.String()
	if name == "" {
		name = "run-" + id[len(id)-8:]
	}
	if sweepID == "" {
		sweepID = NoSweep
	}

	return Session{Project: project, Name: name, SweepID: sweepID, RunID: id, Started: time.Now()}, nil
}

// Artifact beschreibt eine gespeicherte Datei, z.B. einen Checkpoint
type Artifact struct {
	Name     string
	Type     string
	Path     string
	Step     int
	Metadata map[string]string
}

// Tracker nimmt Skalare und Artefakte eines Laufs entgegen
type Tracker interface {
	Session() Session

	// Log speichert values unter dem globalen Schritt step
	Log(ctx context.Context, step int, values map[string]float64) error

	LogArtifact(ctx context.Context, a Artifact) error

	// Finish schliesst den Lauf mit einer Zusammenfassung ab
	Finish(ctx context.Context, summary map[string]float64) error
}

// Nop verwirft alle Aufrufe
type Nop struct {
	S Session
}

func (n Nop) Session() Session                                 { return n.S }
func (Nop) Log(context.Context, int, map[string]float64) error { return nil }
func (Nop) LogArtifact(context.Context, Artifact) error        { return nil }
func (Nop) Finish(context.Context, map[string]float64) error   { return nil }

// Entry ist ein geloggter Schritt
type Entry struct {
	Step   int
	Values map[string]float64
}

// Memory speichert alle Aufrufe. Sicher fuer nebenlaeufige Nutzung.
type Memory struct {
	mu        sync.Mutex
	session   Session
	entries   []Entry
	artifacts []Artifact
	summary   map[string]float64
	finished  bool
}

// NewMemory erstellt einen Memory-Tracker fuer session
func NewMemory(session Session) *Memory {
	return &Memory{session: session}
}

func (m *Memory) Session() Session { return m.session }

func (m *Memory) Log(_ context.Context, step int, values map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return fmt.Errorf("track: run %s already finished", m.session.RunID)
	}
	m.entries = append(m.entries, Entry{Step: step, Values: maps.Clone(values)})
	return nil
}

func (m *Memory) LogArtifact(_ context.Context, a Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = append(m.artifacts, a)
	return nil
}

func (m *Memory) Finish(_ context.Context, summary map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = maps.Clone(summary)
	m.finished = true
	return nil
}

// Entries gibt eine Kopie aller geloggten Schritte zurueck
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Artifacts gibt alle geloggten Artefakte zurueck
func (m *Memory) Artifacts() []Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Artifact(nil), m.artifacts...)
}

// Summary gibt die Zusammenfassung und ob Finish aufgerufen wurde zurueck
func (m *Memory) Summary() (map[string]float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary, m.finished
}

// Values sammelt alle Werte zu key in Log-Reihenfolge mit ihrem Schritt
func (m *Memory) Values(key string) (steps []int, values []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if v, ok := e.Values[key]; ok {
			steps = append(steps, e.Step)
			values = append(values, v)
		}
	}
	return steps, values
}
