package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
)

type Config struct {
	WorldID    string `yaml:"world_id"`
	TickRateHz int    `yaml:"tick_rate_hz"`
	LogLevel   string `yaml:"log_level"`

	// Enabled part types; empty enables every built-in.
	PartTypes []string `yaml:"part_types"`

	// Payloads larger than this are refused before they reach the wire.
	MaxPayload int `yaml:"max_payload"`

	Observer Observer `yaml:"observer"`
	Replica  Replica  `yaml:"replica"`
	Journal  Journal  `yaml:"journal"`
	Index    Index    `yaml:"index"`
	Mirror   Mirror   `yaml:"mirror"`
}

type Observer struct {
	DefaultChunkRadius int `yaml:"default_chunk_radius"`
	MaxChunkRadius     int `yaml:"max_chunk_radius"`
	QueueSize          int `yaml:"queue_size"`
	MaxObservers       int `yaml:"max_observers"`
	WriteTimeoutMs     int `yaml:"write_timeout_ms"`
	ReadTimeoutMs      int `yaml:"read_timeout_ms"`
}

type Replica struct {
	QueueSize int `yaml:"queue_size"`
}

type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type Index struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Mirror uploads closed journal files to an S3-compatible bucket.
// Credentials come from MP_S3_ACCESS_KEY_ID and MP_S3_SECRET_ACCESS_KEY.
type Mirror struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Workers  int    `yaml:"workers"`
}

func Defaults() Config {
	return Config{
		WorldID:    "world_1",
		TickRateHz: 20,
		LogLevel:   "info",
		MaxPayload: 1 << 20,
		Observer: Observer{
			DefaultChunkRadius: 4,
			MaxChunkRadius:     16,
			QueueSize:          4096,
			MaxObservers:       256,
			WriteTimeoutMs:     5000,
			ReadTimeoutMs:      60000,
		},
		Replica: Replica{QueueSize: 4096},
		Journal: Journal{Enabled: true, Dir: "./data/journal"},
		Index:   Index{Enabled: true, Path: "./data/index.sqlite"},
		Mirror:  Mirror{Region: "auto", Workers: 1},
	}
}

// Load reads a YAML file on top of Defaults.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.WorldID) == "" {
		return fmt.Errorf("world_id is required")
	}
	if c.TickRateHz <= 0 || c.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", c.TickRateHz)
	}
	if c.MaxPayload <= 0 || c.MaxPayload > change.MaxPayloadLen {
		return fmt.Errorf("max_payload must be in 1..%d, got %d", change.MaxPayloadLen, c.MaxPayload)
	}
	o := c.Observer
	if o.DefaultChunkRadius < 0 || o.MaxChunkRadius < o.DefaultChunkRadius {
		return fmt.Errorf("observer chunk radius: default=%d max=%d", o.DefaultChunkRadius, o.MaxChunkRadius)
	}
	if o.QueueSize <= 0 || o.MaxObservers <= 0 {
		return fmt.Errorf("observer queue_size and max_observers must be positive")
	}
	if c.Replica.QueueSize <= 0 {
		return fmt.Errorf("replica queue_size must be positive")
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Dir) == "" {
		return fmt.Errorf("journal.dir is required when the journal is enabled")
	}
	if c.Index.Enabled && strings.TrimSpace(c.Index.Path) == "" {
		return fmt.Errorf("index.path is required when the index is enabled")
	}
	if c.Mirror.Enabled {
		if !c.Journal.Enabled {
			return fmt.Errorf("mirror needs the journal enabled")
		}
		if strings.TrimSpace(c.Mirror.Endpoint) == "" || strings.TrimSpace(c.Mirror.Bucket) == "" {
			return fmt.Errorf("mirror.endpoint and mirror.bucket are required when the mirror is enabled")
		}
	}
	return nil
}
