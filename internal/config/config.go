package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hsk98/rota/internal/engine"
)

// Config is the full configuration surface of the rota service.
type Config struct {
	Database     DatabaseConfig      `yaml:"database"`
	Engine       EngineTuning        `yaml:"engine"`
	Scoring      engine.ScoreWeights `yaml:"scoring"`
	Availability AvailabilityConfig  `yaml:"availability"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EngineTuning is the engine's knob block.
type EngineTuning struct {
	MaxActiveLoad int     `yaml:"max_active_load"`
	CooldownHours float64 `yaml:"cooldown_hours"`
	CommitRetries int     `yaml:"commit_retries"`
}

// AvailabilityConfig points at the optional schedule file. When empty, every
// resource is considered always available.
type AvailabilityConfig struct {
	SchedulePath string `yaml:"schedule_path"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "rota.db"},
		Engine: EngineTuning{
			MaxActiveLoad: engine.DefaultMaxActiveLoad,
			CooldownHours: engine.DefaultCooldownWindow.Hours(),
			CommitRetries: engine.DefaultCommitRetries,
		},
		Scoring: engine.DefaultScoreWeights(),
	}
}

// Load reads a YAML config file, validates it against the embedded CUE
// schema, and fills unset fields with defaults. Unknown YAML fields are
// rejected to catch typos.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory bytes.
func Parse(data []byte) (Config, error) {
	// Schema check runs against the raw document so range violations are
	// reported with the user's field names, not Go struct internals.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config YAML: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// EngineConfig maps the tuning block onto the engine's config type.
//
// The config default for cooldown_hours is 24, so an explicit zero here is an
// operator disabling the rule, not an unset field.
func (c Config) EngineConfig() engine.Config {
	cooldown := time.Duration(c.Engine.CooldownHours * float64(time.Hour))
	if c.Engine.CooldownHours == 0 {
		cooldown = engine.CooldownDisabled
	}
	return engine.Config{
		MaxActiveLoad:  c.Engine.MaxActiveLoad,
		CooldownWindow: cooldown,
		CommitRetries:  c.Engine.CommitRetries,
		Weights:        c.Scoring,
	}
}
