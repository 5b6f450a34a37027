package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.PixelsPerMeter = 8.5
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config with calibration should validate: %v", err)
	}
}

func TestValidateCalibrationMissing(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error without calibration")
	}
	if !errors.Is(err, ErrCalibrationMissing) {
		t.Errorf("expected ErrCalibrationMissing, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative speed limit", func(c *Config) { c.SpeedLimitKmh = -1 }},
		{"zero multiplier", func(c *Config) { c.SpeedMultiplier = 0 }},
		{"confidence above one", func(c *Config) { c.MinDetectionConfidence = 1.5 }},
		{"negative iou threshold", func(c *Config) { c.IoUMatchThreshold = -0.1 }},
		{"negative grace", func(c *Config) { c.LostGraceFrames = -1 }},
		{"unknown algorithm", func(c *Config) { c.MatchAlgorithm = "simulated-annealing" }},
		{"zero stride", func(c *Config) { c.PlateSampleStride = 0 }},
		{"inverted zone", func(c *Config) { c.ZoneTop = 0.8 }},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.PixelsPerMeter = 10
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"pixels_per_meter": 12.5,
		"speed_limit_kmh": 60,
		"vehicle_classes": ["car", "truck"],
		"match_algorithm": "greedy"
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PixelsPerMeter != 12.5 {
		t.Errorf("incorrect pixels per meter: %v, expected: 12.5", cfg.PixelsPerMeter)
	}
	if cfg.SpeedLimitKmh != 60 {
		t.Errorf("incorrect speed limit: %v, expected: 60", cfg.SpeedLimitKmh)
	}
	// Untouched fields keep their defaults
	if cfg.SpeedMultiplier != 1.2 {
		t.Errorf("incorrect multiplier: %v, expected: 1.2", cfg.SpeedMultiplier)
	}
	if cfg.LostGraceFrames != 10 {
		t.Errorf("incorrect grace frames: %d, expected: 10", cfg.LostGraceFrames)
	}
	if len(cfg.VehicleClasses) != 2 {
		t.Errorf("incorrect vehicle classes: %v", cfg.VehicleClasses)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}
