package main

import (
	"errors"
	"testing"

	"github.com/bdew/MCMultiPart/internal/sim/world"
)

type countingLogger struct {
	n   int
	err error
}

func (c *countingLogger) WriteChange(world.ChangeLogEntry) error {
	c.n++
	return c.err
}

func TestMultiChangeLogger_WritesEverySink(t *testing.T) {
	boom := errors.New("disk full")
	a := &countingLogger{err: boom}
	b := &countingLogger{}
	m := multiChangeLogger{a, b}

	if err := m.WriteChange(world.ChangeLogEntry{Seq: 1}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("writes a=%d b=%d, want 1 each", a.n, b.n)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("MP_TEST_FLAG", "yes")
	if !envBool("MP_TEST_FLAG", false) {
		t.Fatalf("yes should be true")
	}
	t.Setenv("MP_TEST_FLAG", "off")
	if envBool("MP_TEST_FLAG", true) {
		t.Fatalf("off should be false")
	}
	t.Setenv("MP_TEST_FLAG", "maybe")
	if !envBool("MP_TEST_FLAG", true) {
		t.Fatalf("unknown value should fall back to default")
	}
}
