package discover

import (
	"errors"
	"testing"

	"github.com/cortml/cort/ml"
)

func TestProbe(t *testing.T) {
	t.Setenv("CORT_NUM_DEVICES", "3")

	got := probe()
	if len(got) != 3 {
		t.Fatalf("probe() lieferte %d Geraete, erwartet 3", len(got))
	}

	for i, d := range got {
		if d.Library != "CPU" {
			t.Errorf("device %d library = %q", i, d.Library)
		}
		if d.Threads < 1 {
			t.Errorf("device %d threads = %d", i, d.Threads)
		}
	}
}

func TestProbeNoDevices(t *testing.T) {
	t.Setenv("CORT_NUM_DEVICES", "0")

	if err := Require(probe()); !errors.Is(err, ErrNoDevices) {
		t.Errorf("Require() = %v, erwartet ErrNoDevices", err)
	}
}

func TestFilterVisible(t *testing.T) {
	in := []ml.DeviceInfo{
		{DeviceID: ml.DeviceID{ID: "0"}},
		{DeviceID: ml.DeviceID{ID: "1"}},
		{DeviceID: ml.DeviceID{ID: "2"}},
	}

	if got := filterVisible(in, ""); len(got) != 3 {
		t.Errorf("leerer Filter: %d Geraete", len(got))
	}

	got := filterVisible(in, " 2,0 ")
	if len(got) != 2 || got[0].ID != "0" || got[1].ID != "2" {
		t.Errorf("filterVisible() = %v", got)
	}
}

func TestSelect(t *testing.T) {
	devices := []ml.DeviceInfo{
		{DeviceID: ml.DeviceID{ID: "0", Library: "CPU"}},
		{DeviceID: ml.DeviceID{ID: "1", Library: "CPU"}},
	}

	cases := []struct {
		gpu     string
		want    int
		wantErr bool
	}{
		{"all", 2, false},
		{"", 2, false},
		{"1", 1, false},
		{"2", 0, true},
		{"-1", 0, true},
		{"first", 0, true},
	}

	for _, tt := range cases {
		t.Run(tt.gpu, func(t *testing.T) {
			got, err := Select(devices, tt.gpu)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select(%q) error = %v, wantErr %v", tt.gpu, err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("Select(%q) = %d Geraete, erwartet %d", tt.gpu, len(got), tt.want)
			}
		})
	}

	if _, err := Select(nil, "all"); !errors.Is(err, ErrNoDevices) {
		t.Errorf("Select(nil) = %v, erwartet ErrNoDevices", err)
	}
}
