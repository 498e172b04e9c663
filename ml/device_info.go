// device_info.go
// Dieses Modul enthaelt die DeviceInfo-Strukturen fuer die Geraete-Erkennung.
// Jedes sichtbare Geraet wird vom Trainer als eine Replika verwendet.

package ml

import (
	"fmt"
	"strings"
)

// DeviceID identifies a device within a library.
type DeviceID struct {
	// ID is an identifier for the device for matching with system
	// management libraries.
	ID string `json:"id"`

	// Library identifies which library is used for the device (e.g. CPU)
	Library string `json:"backend,omitempty"`
}

type DeviceInfo struct {
	DeviceID

	// Name is the name of the device as labeled by the backend.
	Name string `json:"name"`

	// Description is the longer user-friendly identification of the device
	Description string `json:"description"`

	// Threads is the number of hardware threads the device contributes
	Threads int `json:"threads,omitempty"`

	// Features lists the vector extensions the device supports
	Features []string `json:"features,omitempty"`
}

func (d DeviceInfo) String() string {
	s := fmt.Sprintf("%s:%s %s", d.Library, d.ID, d.Name)
	if len(d.Features) > 0 {
		s += " [" + strings.Join(d.Features, " ") + "]"
	}

	return s
}

// Has reports whether the device advertises feature f.
func (d DeviceInfo) Has(f string) bool {
	for _, feature := range d.Features {
		if strings.EqualFold(feature, f) {
			return true
		}
	}

	return false
}
