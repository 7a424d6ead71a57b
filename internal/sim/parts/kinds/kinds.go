// Package kinds holds the built-in part variants.
package kinds

import (
	"fmt"
	"sort"

	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

const (
	TypeTorch  = "torch"
	TypeSlab   = "slab"
	TypeSign   = "sign"
	TypeMarker = "marker"
)

var builtins = map[string]func() parts.Part{
	TypeTorch:  func() parts.Part { return &Torch{Facing: FaceUp} },
	TypeSlab:   func() parts.Part { return &Slab{Material: "stone"} },
	TypeSign:   func() parts.Part { return &Sign{} },
	TypeMarker: func() parts.Part { return &Marker{} },
}

// Builtins lists the built-in type tags.
func Builtins() []string {
	out := make([]string, 0, len(builtins))
	for t := range builtins {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RegisterDefaults registers the enabled built-in types (all of them when
// enabled is empty).
func RegisterDefaults(reg *parts.Registry, enabled []string) error {
	if len(enabled) == 0 {
		enabled = Builtins()
	}
	for _, typ := range enabled {
		ctor, ok := builtins[typ]
		if !ok {
			return fmt.Errorf("unknown built-in part type %q", typ)
		}
		if err := reg.Register(typ, ctor); err != nil {
			return err
		}
	}
	return nil
}
