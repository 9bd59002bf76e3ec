package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

func TestParse_Valid(t *testing.T) {
	data := []byte(`{
		"port": 9000,
		"monitored_pins": [
			{"pin": 17, "pull": "up", "debounce_low": 3, "debounce_high": 3},
			{"pin": 27, "pull": "none"}
		]
	}`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if len(cfg.Pins) != 2 {
		t.Fatalf("Pins len = %d, want 2", len(cfg.Pins))
	}
	if cfg.Pins[0].Pull != pin.PullUp || cfg.Pins[0].DebounceLow != 3 {
		t.Errorf("Pins[0] = %+v, want pull up with debounce_low 3", cfg.Pins[0])
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.Pins == nil || len(cfg.Pins) != 0 {
		t.Errorf("Pins = %v, want empty non-nil slice", cfg.Pins)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"port": `},
		{"port out of range", `{"port": 70000}`},
		{"negative port", `{"port": -1}`},
		{"duplicate pin", `{"monitored_pins": [{"pin": 4}, {"pin": 4}]}`},
		{"pin out of range", `{"monitored_pins": [{"pin": 64}]}`},
		{"bad pull", `{"monitored_pins": [{"pin": 4, "pull": "strong"}]}`},
		{"debounce out of range", `{"monitored_pins": [{"pin": 4, "debounce_low": 11}]}`},
		{"mqtt without broker", `{"mqtt": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Errorf("Parse(%s) error = nil, want error", tt.data)
			}
		})
	}
}

func TestLoad_MissingFileYieldsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load() error = %v, want default config for missing file", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
}

func TestService_SetPinKeepsOrder(t *testing.T) {
	cfg := Default()
	cfg.SetPin(pin.Config{Pin: 17})
	cfg.SetPin(pin.Config{Pin: 4})
	cfg.SetPin(pin.Config{Pin: 27})

	want := []int{4, 17, 27}
	for i, pc := range cfg.Pins {
		if pc.Pin != want[i] {
			t.Errorf("Pins[%d].Pin = %d, want %d", i, pc.Pin, want[i])
		}
	}

	// replacing must not duplicate
	cfg.SetPin(pin.Config{Pin: 17, Pull: pin.PullDown})
	if len(cfg.Pins) != 3 {
		t.Fatalf("Pins len = %d after replace, want 3", len(cfg.Pins))
	}
	if got, _ := cfg.FindPin(17); got.Pull != pin.PullDown {
		t.Errorf("FindPin(17).Pull = %v, want %v", got.Pull, pin.PullDown)
	}
}

func TestService_RemovePin(t *testing.T) {
	cfg := Default()
	cfg.SetPin(pin.Config{Pin: 17})

	if !cfg.RemovePin(17) {
		t.Error("RemovePin(17) = false, want true")
	}
	if cfg.RemovePin(17) {
		t.Error("RemovePin(17) second call = true, want false")
	}
}

func TestFile_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	f := NewFile(path)

	in := &Service{
		Port: 9090,
		Pins: []pin.Config{{Pin: 17, Pull: pin.PullUp, DebounceLow: 2, DebounceHigh: 5}},
	}
	if err := f.Save(in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := f.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.Port != 9090 {
		t.Errorf("Port = %d, want 9090", out.Port)
	}
	if len(out.Pins) != 1 || !out.Pins[0].Equal(in.Pins[0]) {
		t.Errorf("Pins = %+v, want %+v", out.Pins, in.Pins)
	}

	// the written file must match the documented schema field names
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	for _, key := range []string{"port", "monitored_pins"} {
		if _, ok := shape[key]; !ok {
			t.Errorf("written file missing %q key", key)
		}
	}
}

func TestFile_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(filepath.Join(dir, "config.json"))
	if err := f.Save(Default()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only config.json", names)
	}
}

func TestFile_MutateWritesThrough(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "config.json"))

	err := f.Mutate(func(cfg *Service) error {
		cfg.SetPin(pin.Config{Pin: 17, Pull: pin.PullUp})
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	cfg, err := f.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := cfg.FindPin(17); !ok {
		t.Error("pin 17 not persisted by Mutate")
	}
}

func TestFile_MutateRejectsInvalidResult(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "config.json"))
	if err := f.Save(Default()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err := f.Mutate(func(cfg *Service) error {
		cfg.Port = -5
		return nil
	})
	if err == nil {
		t.Fatal("Mutate() error = nil, want validation error")
	}

	cfg, err := f.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d after rejected mutation, want untouched %d", cfg.Port, DefaultPort)
	}
}

func TestFile_FingerprintChangesOnWrite(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "config.json"))

	before, err := f.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}

	if err := f.Save(Default()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	after, err := f.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if before == after {
		t.Error("Fingerprint unchanged after write")
	}

	again, _ := f.Fingerprint()
	if after != again {
		t.Error("Fingerprint unstable between reads of the same contents")
	}
}
