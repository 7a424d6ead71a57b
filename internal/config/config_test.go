package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "server.yaml")
	raw := `
world_id: overworld
tick_rate_hz: 10
part_types: [torch, sign]
observer:
  max_chunk_radius: 8
journal:
  enabled: false
`
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.WorldID != "overworld" || c.TickRateHz != 10 {
		t.Fatalf("unexpected world config: %+v", c)
	}
	if strings.Join(c.PartTypes, ",") != "torch,sign" {
		t.Fatalf("part_types=%v", c.PartTypes)
	}
	if c.Observer.MaxChunkRadius != 8 || c.Observer.DefaultChunkRadius != 4 {
		t.Fatalf("observer=%+v", c.Observer)
	}
	if c.Journal.Enabled {
		t.Fatalf("journal should be disabled")
	}
	if !c.Index.Enabled || c.Index.Path == "" {
		t.Fatalf("index defaults lost: %+v", c.Index)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := []string{
		"tick_rate_hz: 0\n",
		"max_payload: 16777216\n",
		"observer:\n  default_chunk_radius: 9\n  max_chunk_radius: 2\n",
		"world_id: \"  \"\n",
		"tick_rate_hz: [\n",
		"mirror:\n  enabled: true\n  bucket: journals\n",
		"journal:\n  enabled: false\nmirror:\n  enabled: true\n  endpoint: r2.example.com\n  bucket: journals\n",
	}
	for i, raw := range cases {
		p := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("case %d: expected error for %q", i, raw)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file: expected not-exist error, got %v", err)
	}
}
