package kiroku

import (
	"reflect"
	"unsafe"
)

// typeMask is the set of world-local component IDs an archetype holds. One bit
// per ID, 256 IDs in total.
type typeMask [4]uint64

func (m *typeMask) set(bit uint8) {
	m[bit>>6] |= uint64(1) << (bit & 63)
}

func (m *typeMask) unset(bit uint8) {
	m[bit>>6] &^= uint64(1) << (bit & 63)
}

func (m typeMask) has(bit uint8) bool {
	return m[bit>>6]&(uint64(1)<<(bit&63)) != 0
}

// ComponentInfo is the per-column layout metadata an archetype declares.
type ComponentInfo struct {
	Type ComponentTypeID
	Size uintptr
}

// Archetype groups all entities that have exactly the same component set.
// Entities live in fixed-size chunks; every chunk holds one column per
// component type of the archetype.
type Archetype struct {
	chunks    []*Chunk
	compOrder []uint8 // world-local IDs in declared order
	infos     []ComponentInfo
	compTypes [MaxComponentTypes]reflect.Type
	compSizes [MaxComponentTypes]uintptr
	mask      typeMask
	index     int // position in World.archetypes
	size      int // live entities across all chunks
}

// Index is the archetype's position in World.Archetypes.
func (a *Archetype) Index() int { return a.index }

// Len returns the number of live entities in the archetype.
func (a *Archetype) Len() int { return a.size }

// Components returns the archetype's component types in declared order. The
// order is fixed when the archetype is created and is not sorted.
func (a *Archetype) Components() []ComponentInfo { return a.infos }

// Chunks returns the archetype's chunks in storage order. Only the first
// Len() slots of each chunk are occupied.
func (a *Archetype) Chunks() []*Chunk { return a.chunks }

// Chunk is a fixed-capacity block of ChunkSize entity slots.
type Chunk struct {
	arch      *Archetype
	columns   [MaxComponentTypes]unsafe.Pointer
	entityIDs [ChunkSize]Entity
	size      int
}

// Len returns the number of occupied slots.
func (c *Chunk) Len() int { return c.size }

// Entity returns the entity stored at slot. slot must be below Len().
func (c *Chunk) Entity(slot int) Entity {
	if slot < 0 || slot >= c.size {
		panic("ecs: chunk slot out of range")
	}
	return c.entityIDs[slot]
}

// Column returns the column holding components of type t. The boolean is false
// when the chunk has no such column.
func (c *Chunk) Column(t ComponentTypeID) (Column, bool) {
	a := c.arch
	for _, cid := range a.compOrder {
		if a.compTypes[cid] != t.typ {
			continue
		}
		base := c.columns[cid]
		if base == nil {
			return Column{}, false
		}
		return Column{typ: t.typ, base: base, size: a.compSizes[cid], len: c.size}, true
	}
	return Column{}, false
}

func (c *Chunk) slot(cid uint8, idx int, size uintptr) unsafe.Pointer {
	return unsafe.Add(c.columns[cid], uintptr(idx)*size)
}

// Column is a type-erased view of one densely packed component column inside
// a chunk. It does not copy component data.
type Column struct {
	typ  reflect.Type
	base unsafe.Pointer
	size uintptr
	len  int
}

// Type returns the component type stored in the column.
func (c Column) Type() ComponentTypeID { return ComponentTypeID{typ: c.typ} }

// Len returns the number of occupied elements.
func (c Column) Len() int { return c.len }

// ColumnAt returns a pointer to the element at index, typed as T. It fails
// when the column does not hold T or index is not occupied.
func ColumnAt[T any](c Column, index int) (*T, error) {
	if want := reflect.TypeFor[T](); c.typ != want {
		return nil, errColumnType(c.typ, want)
	}
	if index < 0 || index >= c.len {
		return nil, errSlotOutOfRange(index, c.len)
	}
	return (*T)(unsafe.Add(c.base, uintptr(index)*c.size)), nil
}
