package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the .env file specified by BLACKBOARD_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("BLACKBOARD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

// WALBackend selects the durability backend.
// Defaults to "file" if not set.
// Valid values: file, sqlite, postgres, none
func WALBackend() string {
	b := os.Getenv("WAL_BACKEND")
	if b == "" {
		return "file"
	}
	return b
}

// WALPath is the log location for the file and sqlite backends.
func WALPath() string {
	p := os.Getenv("WAL_PATH")
	if p == "" {
		return "blackboard.wal"
	}
	return p
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// RateLimitRPS returns the per-agent write rate limit.
// Defaults to 50 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 50
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 10 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 10
	}
	return burst
}

// BeliefHalfLife returns the confidence decay half-life for beliefs.
// Defaults to 5m if not set.
func BeliefHalfLife() time.Duration {
	d, err := time.ParseDuration(os.Getenv("BELIEF_HALF_LIFE"))
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// SalienceHalfLife returns the recency half-life used in claim ranking.
// Defaults to 2h if not set.
func SalienceHalfLife() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SALIENCE_HALF_LIFE"))
	if err != nil || d <= 0 {
		return 2 * time.Hour
	}
	return d
}

// EvidenceWindow returns how many evidence entries a belief retains.
// Defaults to 20 if not set.
func EvidenceWindow() int {
	n, err := strconv.Atoi(os.Getenv("EVIDENCE_WINDOW"))
	if err != nil || n <= 0 {
		return 20
	}
	return n
}

// Tuning holds the optional YAML-tunable resolution parameters. Zero values
// mean "use the built-in default".
type Tuning struct {
	NumericTolerance      float64 `yaml:"numeric_tolerance"`
	MinConflictConfidence float64 `yaml:"min_conflict_confidence"`
	BeliefHalfLife        string  `yaml:"belief_half_life"`
	SalienceHalfLife      string  `yaml:"salience_half_life"`
	EvidenceWindow        int     `yaml:"evidence_window"`

	Weights map[string]WeightPreset `yaml:"weights"`
}

// WeightPreset is one named salience weight triple.
type WeightPreset struct {
	Confidence float64 `yaml:"confidence"`
	Recency    float64 `yaml:"recency"`
	Trust      float64 `yaml:"trust"`
}

// LoadTuning parses a YAML tuning file. A missing file is not an error; a
// malformed one is.
func LoadTuning(path string) (Tuning, error) {
	var t Tuning
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return t, nil
}
