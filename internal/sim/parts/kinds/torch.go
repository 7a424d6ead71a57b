package kinds

import (
	"fmt"

	"github.com/bdew/MCMultiPart/internal/sim/encoding"
)

type Face uint8

const (
	FaceDown Face = iota
	FaceUp
	FaceNorth
	FaceSouth
	FaceWest
	FaceEast
)

// Torch is a small light source mounted on one face of the block.
type Torch struct {
	Facing Face
	Lit    bool
}

func (t *Torch) Type() string   { return TypeTorch }
func (t *Torch) HasModel() bool { return true }

func (t *Torch) WriteUpdate(w *encoding.Writer) error {
	if t.Facing > FaceEast {
		return fmt.Errorf("torch facing %d out of range", t.Facing)
	}
	w.WriteUint8(uint8(t.Facing))
	w.WriteBool(t.Lit)
	return nil
}

func (t *Torch) ReadUpdate(r *encoding.Reader) error {
	f, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if Face(f) > FaceEast {
		return fmt.Errorf("torch facing %d out of range", f)
	}
	lit, err := r.ReadBool()
	if err != nil {
		return err
	}
	t.Facing, t.Lit = Face(f), lit
	return nil
}

// Slab occupies the top or bottom half of the block.
type Slab struct {
	Top      bool
	Material string
}

func (s *Slab) Type() string   { return TypeSlab }
func (s *Slab) HasModel() bool { return true }

func (s *Slab) WriteUpdate(w *encoding.Writer) error {
	w.WriteBool(s.Top)
	if err := w.WriteString(s.Material); err != nil {
		return fmt.Errorf("slab material: %w", err)
	}
	return nil
}

func (s *Slab) ReadUpdate(r *encoding.Reader) error {
	top, err := r.ReadBool()
	if err != nil {
		return err
	}
	mat, err := r.ReadString()
	if err != nil {
		return err
	}
	s.Top, s.Material = top, mat
	return nil
}
