package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	World     WorldConfig     `json:"world"`
	Cognition CognitionConfig `json:"cognition"`
	Database  DatabaseConfig  `json:"database"`
	Agents    []AgentConfig   `json:"agents"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type WorldConfig struct {
	TickInterval  Duration `json:"tick_interval"`
	Speed         float64  `json:"speed"`
	Workers       int      `json:"workers"`
	SweepInterval Duration `json:"sweep_interval"` // world time between memory sweeps
	RelationDecay float64  `json:"relation_decay"` // per tick, toward neutral
}

// CognitionConfig holds the per-agent tuning knobs exposed to operators.
// Unset fields fall back to each package's defaults.
type CognitionConfig struct {
	WorkingMemorySize   int      `json:"working_memory_size"`
	ForgettingRate      float64  `json:"forgetting_rate"`
	EvictionThreshold   float64  `json:"eviction_threshold"`
	AttentionThreshold  float64  `json:"attention_threshold"`
	AttentionHeads      int      `json:"attention_heads"`
	BehaviorHistorySize int      `json:"behavior_history_size"`
	ActiveBehaviorTTL   Duration `json:"active_behavior_ttl"`
	AwarenessDecay      float64  `json:"awareness_decay"`
	MaxGoals            int      `json:"max_goals"`
	RecallLimit         int      `json:"recall_limit"`
	Seed                uint64   `json:"seed"`
}

func (c CognitionConfig) Memory() memory.Config {
	return memory.Config{
		WorkingMemorySize: c.WorkingMemorySize,
		ForgettingRate:    c.ForgettingRate,
		EvictionThreshold: c.EvictionThreshold,
	}
}

func (c CognitionConfig) Attention() attention.Config {
	return attention.Config{Threshold: c.AttentionThreshold, Heads: c.AttentionHeads}
}

func (c CognitionConfig) Emergence() emergence.Config {
	return emergence.Config{
		HistorySize: c.BehaviorHistorySize,
		ActiveTTL:   c.ActiveBehaviorTTL.Duration,
		Seed:        c.Seed,
	}
}

func (c CognitionConfig) Controller() consciousness.Config {
	return consciousness.Config{
		AwarenessDecay: c.AwarenessDecay,
		MaxGoals:       c.MaxGoals,
		RecallLimit:    c.RecallLimit,
	}
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn"`
	Migrations string `json:"migrations"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// AgentConfig seeds an agent at startup when the database does not
// already know it.
type AgentConfig struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Personality persona.Personality `json:"personality"`
}

// Duration reads "1.5s" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse resolves environment references in data, decodes it and fills
// defaults.
func Parse(data []byte) (*Config, error) {
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.World.TickInterval.Duration == 0 {
		c.World.TickInterval.Duration = time.Second
	}
	if c.World.Speed == 0 {
		c.World.Speed = 1
	}
	if c.World.Workers == 0 {
		c.World.Workers = 8
	}
	if c.World.SweepInterval.Duration == 0 {
		c.World.SweepInterval.Duration = 5 * time.Minute
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "migrations"
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.World.Speed < 0 {
		errs = append(errs, fmt.Errorf("world.speed %v is negative", c.World.Speed))
	}
	if c.World.Workers < 0 {
		errs = append(errs, fmt.Errorf("world.workers %d is negative", c.World.Workers))
	}
	if c.World.RelationDecay < 0 || c.World.RelationDecay >= 1 {
		errs = append(errs, fmt.Errorf("world.relation_decay %v outside [0,1)", c.World.RelationDecay))
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		switch {
		case a.ID == "":
			errs = append(errs, fmt.Errorf("agents[%d]: id is required", i))
		case seen[a.ID]:
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
	}
	return errors.Join(errs...)
}
