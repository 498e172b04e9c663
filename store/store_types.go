package store

import "github.com/cortml/cort/api"

// Die gespeicherten Typen sind die der Tracking-API
type (
	Run      = api.Run
	Scalar   = api.Scalar
	Artifact = api.Artifact
)

// Zustände eines Laufs
const (
	StateRunning  = api.StateRunning
	StateFinished = api.StateFinished
)
