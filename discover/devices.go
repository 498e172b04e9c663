// Modul: devices.go
// Beschreibung: Erkennung der Compute-Geraete fuer das Training.
// Enthaelt Devices (gecachte Erkennung), Select (gpu-Option) und Require.

package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/cortml/cort/envconfig"
	"github.com/cortml/cort/logutil"
	"github.com/cortml/cort/ml"
)

// ErrNoDevices is returned when no compute device is visible.
var ErrNoDevices = errors.New("no available compute devices")

var (
	deviceMu     sync.Mutex
	devices      []ml.DeviceInfo
	bootstrapped bool
)

// Devices returns the visible compute devices. The result of the first call
// is cached for the lifetime of the process.
func Devices(ctx context.Context) []ml.DeviceInfo {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if bootstrapped {
		return slices.Clone(devices)
	}

	start := time.Now()
	defer func() {
		slog.Debug("device discovery took", "duration", time.Since(start))
	}()

	slog.Info("discovering available compute devices...")
	overrideWarnings()

	devices = filterVisible(probe(), envconfig.VisibleDevices())
	bootstrapped = true
	for _, d := range devices {
		slog.Info("compute device", "id", d.ID, "library", d.Library, "name", d.Name, "threads", d.Threads)
	}

	return slices.Clone(devices)
}

// probe splits the host CPU into the configured number of devices.
func probe() []ml.DeviceInfo {
	threads := cpuid.CPU.LogicalCores
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	n := int(envconfig.NumDevices())

	var features []string
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"SSE4.2", cpuid.SSE42},
		{"AVX", cpuid.AVX},
		{"AVX2", cpuid.AVX2},
		{"FMA3", cpuid.FMA3},
		{"AVX512F", cpuid.AVX512F},
		{"ASIMD", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			features = append(features, f.name)
		}
	}

	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOARCH
	}

	out := make([]ml.DeviceInfo, 0, n)
	for i := range n {
		out = append(out, ml.DeviceInfo{
			DeviceID:    ml.DeviceID{ID: strconv.Itoa(i), Library: "CPU"},
			Name:        name,
			Description: fmt.Sprintf("%s (%s)", name, cpuid.CPU.VendorString),
			Threads:     max(threads/n, 1),
			Features:    features,
		})
	}

	logutil.Trace("probed devices", "count", n, "threads", threads, "features", features)
	return out
}

// filterVisible keeps devices whose id appears in the comma separated list.
// An empty list keeps everything.
func filterVisible(in []ml.DeviceInfo, visible string) []ml.DeviceInfo {
	if strings.TrimSpace(visible) == "" {
		return in
	}

	ids := strings.Split(visible, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}

	var out []ml.DeviceInfo
	for _, d := range in {
		if slices.Contains(ids, d.ID) {
			out = append(out, d)
		}
	}

	return out
}

// Require returns ErrNoDevices when devices is empty.
func Require(devices []ml.DeviceInfo) error {
	if len(devices) == 0 {
		return ErrNoDevices
	}

	return nil
}

// Select applies the gpu option: "all" keeps every device, an integer keeps
// only the device at that position.
func Select(devices []ml.DeviceInfo, gpu string) ([]ml.DeviceInfo, error) {
	if err := Require(devices); err != nil {
		return nil, err
	}

	if gpu == "" || gpu == "all" {
		return devices, nil
	}

	i, err := strconv.Atoi(gpu)
	if err != nil {
		return nil, fmt.Errorf("invalid gpu %q: must be \"all\" or a device index", gpu)
	}

	if i < 0 || i >= len(devices) {
		return nil, fmt.Errorf("invalid gpu %d: expected a device index in [0, %d)", i, len(devices))
	}

	slog.Info(fmt.Sprintf("Restricting device as /device:%s:%s", devices[i].Library, devices[i].ID))
	return devices[i : i+1], nil
}

func overrideWarnings() {
	m := envconfig.AsMap()
	for _, k := range []string{"CORT_NUM_DEVICES", "CORT_VISIBLE_DEVICES"} {
		if e, found := m[k]; found && envconfig.Var(e.Name) != "" {
			slog.Warn("user overrode visible devices", k, e.Value)
		}
	}
}
