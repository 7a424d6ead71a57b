package kinds

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bdew/MCMultiPart/internal/sim/encoding"
)

const (
	SignLines   = 4
	SignLineMax = 90
)

type Sign struct {
	Lines [SignLines]string
}

func (s *Sign) Type() string   { return TypeSign }
func (s *Sign) HasModel() bool { return true }

func (s *Sign) SetText(text string) {
	s.Lines = [SignLines]string{}
	for i, line := range strings.SplitN(text, "\n", SignLines) {
		s.Lines[i] = clip(strings.ToValidUTF8(line, ""), SignLineMax)
	}
}

func clip(s string, n int) string {
	end := 0
	for i, r := range s {
		size := utf8.RuneLen(r)
		if i+size > n {
			break
		}
		end = i + size
	}
	return s[:end]
}

func (s *Sign) WriteUpdate(w *encoding.Writer) error {
	for i, line := range s.Lines {
		if len(line) > SignLineMax {
			return fmt.Errorf("sign line %d too long: %d", i, len(line))
		}
		if err := w.WriteString(line); err != nil {
			return fmt.Errorf("sign line %d: %w", i, err)
		}
	}
	return nil
}

func (s *Sign) ReadUpdate(r *encoding.Reader) error {
	var lines [SignLines]string
	for i := range lines {
		line, err := r.ReadString()
		if err != nil {
			return err
		}
		if len(line) > SignLineMax {
			return fmt.Errorf("sign line %d too long: %d", i, len(line))
		}
		lines[i] = line
	}
	s.Lines = lines
	return nil
}

// Marker is an invisible logic part: it carries data but no geometry.
type Marker struct {
	Label    string
	Strength int32
}

func (m *Marker) Type() string   { return TypeMarker }
func (m *Marker) HasModel() bool { return false }

func (m *Marker) WriteUpdate(w *encoding.Writer) error {
	if err := w.WriteString(m.Label); err != nil {
		return fmt.Errorf("marker label: %w", err)
	}
	w.WriteInt32(m.Strength)
	return nil
}

func (m *Marker) ReadUpdate(r *encoding.Reader) error {
	label, err := r.ReadString()
	if err != nil {
		return err
	}
	strength, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Label, m.Strength = label, strength
	return nil
}
