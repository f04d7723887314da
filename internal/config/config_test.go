package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"WAL_BACKEND", "WAL_PATH", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"BELIEF_HALF_LIFE", "SALIENCE_HALF_LIFE", "EVIDENCE_WINDOW", "LOG_LEVEL"} {
		os.Unsetenv(key)
	}

	if got := WALBackend(); got != "file" {
		t.Errorf("WALBackend = %s, want file", got)
	}
	if got := WALPath(); got != "blackboard.wal" {
		t.Errorf("WALPath = %s", got)
	}
	if got := RateLimitRPS(); got != 50 {
		t.Errorf("RateLimitRPS = %v, want 50", got)
	}
	if got := RateLimitBurst(); got != 10 {
		t.Errorf("RateLimitBurst = %v, want 10", got)
	}
	if got := BeliefHalfLife(); got != 5*time.Minute {
		t.Errorf("BeliefHalfLife = %v, want 5m", got)
	}
	if got := SalienceHalfLife(); got != 2*time.Hour {
		t.Errorf("SalienceHalfLife = %v, want 2h", got)
	}
	if got := EvidenceWindow(); got != 20 {
		t.Errorf("EvidenceWindow = %v, want 20", got)
	}
	if got := LogLevel(); got != "info" {
		t.Errorf("LogLevel = %s, want info", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WAL_BACKEND", "sqlite")
	t.Setenv("BELIEF_HALF_LIFE", "90s")
	t.Setenv("RATE_LIMIT_RPS", "5")

	if got := WALBackend(); got != "sqlite" {
		t.Errorf("WALBackend = %s, want sqlite", got)
	}
	if got := BeliefHalfLife(); got != 90*time.Second {
		t.Errorf("BeliefHalfLife = %v, want 90s", got)
	}
	if got := RateLimitRPS(); got != 5 {
		t.Errorf("RateLimitRPS = %v, want 5", got)
	}

	// garbage falls back to defaults
	t.Setenv("BELIEF_HALF_LIFE", "soon")
	if got := BeliefHalfLife(); got != 5*time.Minute {
		t.Errorf("BeliefHalfLife with bad value = %v, want 5m", got)
	}
}

func TestLoadTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	data := []byte(`numeric_tolerance: 0.05
min_conflict_confidence: 0.2
belief_half_life: 10m
evidence_window: 40
weights:
  cautious:
    confidence: 0.3
    recency: 0.2
    trust: 0.5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tuning.NumericTolerance != 0.05 {
		t.Errorf("NumericTolerance = %v", tuning.NumericTolerance)
	}
	if tuning.MinConflictConfidence != 0.2 {
		t.Errorf("MinConflictConfidence = %v", tuning.MinConflictConfidence)
	}
	if tuning.BeliefHalfLife != "10m" {
		t.Errorf("BeliefHalfLife = %v", tuning.BeliefHalfLife)
	}
	if tuning.EvidenceWindow != 40 {
		t.Errorf("EvidenceWindow = %v", tuning.EvidenceWindow)
	}
	w, ok := tuning.Weights["cautious"]
	if !ok || w.Trust != 0.5 {
		t.Errorf("weights = %+v", tuning.Weights)
	}
}

func TestLoadTuningMissingFile(t *testing.T) {
	tuning, err := LoadTuning(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if tuning.NumericTolerance != 0 {
		t.Errorf("zero value expected, got %+v", tuning)
	}
}

func TestLoadTuningMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatal("malformed tuning file should error")
	}
}
