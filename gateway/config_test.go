package gateway

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Gateway.TickMS != 10 || cfg.Bus.Interface != "can0" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canbox.toml")
	doc := `
[gateway]
profile_path = "profiles/juke.json"

[port]
device = "/dev/ttyUSB0"
variant = "legacy"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.TickMS != 10 {
		t.Fatalf("tick_ms default = %d", cfg.Gateway.TickMS)
	}
	if cfg.Calibration.TankCapacityL != 45 || cfg.Calibration.IndicatorTimeoutMS != 500 {
		t.Fatalf("calibration defaults = %+v", cfg.Calibration)
	}
	if cfg.Intervals.SteeringMS != 100 || cfg.Intervals.TripMS != 5000 {
		t.Fatalf("interval defaults = %+v", cfg.Intervals)
	}
	if cfg.Port.HeadUnitVariant() != 1 {
		t.Fatal("legacy variant not mapped")
	}
	if cfg.Gateway.ProfilePath != "profiles/juke.json" {
		t.Fatalf("profile_path = %q", cfg.Gateway.ProfilePath)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.Gateway.TickMS = 0 }},
		{"bad variant", func(c *Config) { c.Port.Variant = "v3" }},
		{"steer offset range", func(c *Config) { c.Calibration.SteerOffset = 900 }},
		{"zero steer scale", func(c *Config) { c.Calibration.SteerScalePct = 0 }},
		{"indicator timeout range", func(c *Config) { c.Calibration.IndicatorTimeoutMS = 50 }},
		{"zero interval", func(c *Config) { c.Intervals.DoorsMS = 0 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canbox.toml")
	cfg := DefaultConfig()
	cfg.Calibration.SteerOffset = -42
	cfg.Calibration.SteerInvert = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Calibration.SteerOffset != -42 || !loaded.Calibration.SteerInvert {
		t.Fatalf("calibration not persisted: %+v", loaded.Calibration)
	}
}
