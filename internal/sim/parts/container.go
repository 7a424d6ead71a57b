package parts

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
)

// Container is the set of parts at one position. At most one part per id;
// an id that was removed is never accepted again while the container lives.
type Container struct {
	pos     change.BlockPos
	order   []uuid.UUID
	parts   map[uuid.UUID]Part
	retired map[uuid.UUID]struct{}
}

type Entry struct {
	ID   uuid.UUID
	Part Part
}

func newContainer(pos change.BlockPos) *Container {
	return &Container{
		pos:     pos,
		parts:   map[uuid.UUID]Part{},
		retired: map[uuid.UUID]struct{}{},
	}
}

func (c *Container) Pos() change.BlockPos { return c.pos }
func (c *Container) Len() int             { return len(c.order) }

func (c *Container) Part(id uuid.UUID) (Part, bool) {
	p, ok := c.parts[id]
	return p, ok
}

// IDOf finds the id a live part was attached under.
func (c *Container) IDOf(p Part) (uuid.UUID, bool) {
	for _, id := range c.order {
		if c.parts[id] == p {
			return id, true
		}
	}
	return uuid.Nil, false
}

// Entries lists parts in attach order.
func (c *Container) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, Entry{ID: id, Part: c.parts[id]})
	}
	return out
}

func (c *Container) add(id uuid.UUID, p Part) error {
	if _, ok := c.parts[id]; ok {
		return fmt.Errorf("%w: %s at %s", ErrDuplicatePart, id, c.pos)
	}
	if _, ok := c.retired[id]; ok {
		return fmt.Errorf("%w: %s was removed from %s", ErrDuplicatePart, id, c.pos)
	}
	c.parts[id] = p
	c.order = append(c.order, id)
	return nil
}

func (c *Container) remove(p Part) (uuid.UUID, bool) {
	for i, id := range c.order {
		if c.parts[id] != p {
			continue
		}
		delete(c.parts, id)
		c.order = append(c.order[:i], c.order[i+1:]...)
		c.retired[id] = struct{}{}
		return id, true
	}
	return uuid.Nil, false
}
