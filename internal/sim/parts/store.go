package parts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
)

// Containers is the view of position storage the engine works through.
// Implementations are not safe for concurrent use; callers serialize access
// on the owning mutation loop.
type Containers interface {
	FindContainer(pos change.BlockPos) (*Container, bool)
	FindPart(pos change.BlockPos, id uuid.UUID) (Part, bool)
	AddPart(pos change.BlockPos, p Part, id uuid.UUID) error
	RemovePart(pos change.BlockPos, p Part) bool
	IDOf(c *Container, p Part) (uuid.UUID, bool)
}

// Store keeps containers in memory. A container is created by the first add at
// a position and dropped when its last part is removed.
type Store struct {
	containers map[change.BlockPos]*Container
	// A part instance lives under exactly one id at one position.
	attached map[Part]change.BlockPos
	newID    func() uuid.UUID
	parts    int
}

func NewStore() *Store {
	return &Store{
		containers: map[change.BlockPos]*Container{},
		attached:   map[Part]change.BlockPos{},
		newID:      uuid.New,
	}
}

// SetIDSource replaces the identity generator (tests).
func (s *Store) SetIDSource(fn func() uuid.UUID) { s.newID = fn }

func (s *Store) FindContainer(pos change.BlockPos) (*Container, bool) {
	c, ok := s.containers[pos]
	return c, ok
}

func (s *Store) FindPart(pos change.BlockPos, id uuid.UUID) (Part, bool) {
	c, ok := s.containers[pos]
	if !ok {
		return nil, false
	}
	return c.Part(id)
}

func (s *Store) AddPart(pos change.BlockPos, p Part, id uuid.UUID) error {
	if p == nil {
		return fmt.Errorf("add part at %s: nil part", pos)
	}
	if at, ok := s.attached[p]; ok {
		return fmt.Errorf("%w: %s part instance already attached at %s", ErrIllegalState, p.Type(), at)
	}
	c, ok := s.containers[pos]
	if !ok {
		c = newContainer(pos)
	}
	if err := c.add(id, p); err != nil {
		return err
	}
	s.containers[pos] = c
	s.attached[p] = pos
	s.parts++
	return nil
}

func (s *Store) RemovePart(pos change.BlockPos, p Part) bool {
	c, ok := s.containers[pos]
	if !ok {
		return false
	}
	if _, ok := c.remove(p); !ok {
		return false
	}
	delete(s.attached, p)
	s.parts--
	if c.Len() == 0 {
		delete(s.containers, pos)
	}
	return true
}

func (s *Store) IDOf(c *Container, p Part) (uuid.UUID, bool) {
	if c == nil {
		return uuid.Nil, false
	}
	return c.IDOf(p)
}

// Attach adds p under a freshly issued identity.
func (s *Store) Attach(pos change.BlockPos, p Part) (uuid.UUID, error) {
	for attempt := 0; attempt < 3; attempt++ {
		id := s.newID()
		if id == uuid.Nil {
			continue
		}
		err := s.AddPart(pos, p, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrDuplicatePart) {
			return uuid.Nil, err
		}
	}
	return uuid.Nil, fmt.Errorf("%w: could not issue a fresh id at %s", ErrIllegalState, pos)
}

func (s *Store) Len() int            { return s.parts }
func (s *Store) ContainerCount() int { return len(s.containers) }

// Positions returns occupied positions in ascending order.
func (s *Store) Positions() []change.BlockPos {
	out := make([]change.BlockPos, 0, len(s.containers))
	for p := range s.containers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Digest hashes every part's position, id, type and payload in a stable order,
// so two stores holding the same state produce the same value.
func (s *Store) Digest() uint64 {
	h := xxhash.New()
	var tmp [12]byte
	for _, pos := range s.Positions() {
		entries := s.containers[pos].Entries()
		sort.Slice(entries, func(i, j int) bool {
			return string(entries[i].ID[:]) < string(entries[j].ID[:])
		})
		binary.BigEndian.PutUint32(tmp[0:], uint32(pos.X))
		binary.BigEndian.PutUint32(tmp[4:], uint32(pos.Y))
		binary.BigEndian.PutUint32(tmp[8:], uint32(pos.Z))
		_, _ = h.Write(tmp[:])
		for _, e := range entries {
			_, _ = h.Write(e.ID[:])
			_, _ = h.Write([]byte(e.Part.Type()))
			_, _ = h.Write([]byte{0})
			// A part that no longer encodes hashes as an empty payload.
			payload, _ := UpdatePayload(e.Part)
			binary.BigEndian.PutUint32(tmp[0:], uint32(len(payload)))
			_, _ = h.Write(tmp[:4])
			_, _ = h.Write(payload)
		}
	}
	return h.Sum64()
}
