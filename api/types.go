// types.go - Typen der Tracking-API
// Enthaelt: StatusError, Run, Scalar, Artifact und die Antwort-Huellen
package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the server logs for details"
	}
}

// Zustaende eines Laufs
const (
	StateRunning  = "running"
	StateFinished = "finished"
)

// Run ist ein getrackter Trainingslauf
type Run struct {
	ID         string             `json:"id"`
	Project    string             `json:"project"`
	Name       string             `json:"name"`
	SweepID    string             `json:"sweep_id"`
	Config     json.RawMessage    `json:"config"`
	State      string             `json:"state"`
	Summary    map[string]float64 `json:"summary"`
	CreatedAt  time.Time          `json:"created_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Scalar ist ein geloggter Wert
type Scalar struct {
	Step  int     `json:"step"`
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Artifact ist eine gespeicherte Datei eines Laufs
type Artifact struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Path      string            `json:"path"`
	Step      int               `json:"step"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ListRunsResponse is the response from [Client.Runs].
type ListRunsResponse struct {
	Runs []Run `json:"runs"`
}

// ScalarsResponse is the response from [Client.Scalars].
type ScalarsResponse struct {
	Scalars []Scalar `json:"scalars"`
}

// CheckpointsResponse is the response from [Client.Checkpoints].
type CheckpointsResponse struct {
	Checkpoints []Artifact `json:"checkpoints"`
}
