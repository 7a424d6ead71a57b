package parts

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bdew/MCMultiPart/internal/sim/encoding"
)

var (
	ErrUnknownType   = errors.New("unknown part type")
	ErrBadPayload    = errors.New("part rejected payload")
	ErrDuplicatePart = errors.New("part id already used at position")
	ErrIllegalState  = errors.New("illegal part state")
)

// Part is a decoration attached to a block position. Its update payload is
// opaque to everything except the part itself. Implementations are pointer
// types: containers compare parts by identity.
type Part interface {
	Type() string
	// WriteUpdate must fail rather than write a payload ReadUpdate would reject.
	WriteUpdate(w *encoding.Writer) error
	ReadUpdate(r *encoding.Reader) error
	// HasModel reports whether the part contributes render geometry.
	HasModel() bool
}

// PartFactory builds a part of the named type from an update payload.
type PartFactory interface {
	CreatePart(typ string, payload []byte) (Part, error)
}

// Registry maps type tags to constructors. It is filled at startup and only
// read afterwards.
type Registry struct {
	ctors map[string]func() Part
}

func NewRegistry() *Registry {
	return &Registry{ctors: map[string]func() Part{}}
}

func (r *Registry) Register(typ string, ctor func() Part) error {
	if strings.TrimSpace(typ) == "" {
		return fmt.Errorf("register part: empty type")
	}
	// The tag travels as a uint16-prefixed UTF-8 string in every record.
	if len(typ) > math.MaxUint16 {
		return fmt.Errorf("register part: type tag is %d bytes, limit %d", len(typ), math.MaxUint16)
	}
	if !utf8.ValidString(typ) {
		return fmt.Errorf("register part %q: type tag is not valid UTF-8", typ)
	}
	if ctor == nil {
		return fmt.Errorf("register part %q: nil constructor", typ)
	}
	if _, ok := r.ctors[typ]; ok {
		return fmt.Errorf("register part %q: already registered", typ)
	}
	if got := ctor().Type(); got != typ {
		return fmt.Errorf("register part %q: constructor builds %q", typ, got)
	}
	r.ctors[typ] = ctor
	return nil
}

func (r *Registry) Known(typ string) bool {
	_, ok := r.ctors[typ]
	return ok
}

func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.ctors))
	for t := range r.ctors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New returns a blank part of the given type.
func (r *Registry) New(typ string) (Part, error) {
	ctor, ok := r.ctors[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return ctor(), nil
}

// CreatePart constructs a part and feeds it the payload through its update path.
func (r *Registry) CreatePart(typ string, payload []byte) (Part, error) {
	p, err := r.New(typ)
	if err != nil {
		return nil, err
	}
	if err := p.ReadUpdate(encoding.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, typ, err)
	}
	return p, nil
}

// UpdatePayload serializes a part's current state.
func UpdatePayload(p Part) ([]byte, error) {
	w := encoding.NewWriter(32)
	if err := p.WriteUpdate(w); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, p.Type(), err)
	}
	return w.Bytes(), nil
}
