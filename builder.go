package kiroku

import (
	"reflect"
)

// Builder creates entities whose archetype is exactly {T}. The archetype is
// resolved once when the builder is created.
type Builder[T any] struct {
	world  *World
	arch   *Archetype
	compID uint8
}

// NewBuilder returns a Builder for entities with a single component T. T is
// registered with the World if it is new.
//
// Parameters:
//   - w: The World the builder creates entities in.
//
// Returns:
//   - A Builder bound to the archetype {T}.
func NewBuilder[T any](w *World) *Builder[T] {
	id := w.typeID(reflect.TypeFor[T]())
	var mask typeMask
	mask.set(id)
	arch := w.archetypeFor(mask, []compLayout{w.layout(id)})
	return &Builder[T]{world: w, arch: arch, compID: id}
}

// NewEntity creates an entity with a zero T.
func (b *Builder[T]) NewEntity() Entity {
	return b.world.createEntity(b.arch)
}

// NewEntityWith creates an entity and sets its T to comp.
func (b *Builder[T]) NewEntityWith(comp T) Entity {
	e, c, slot := b.world.place(b.arch, b.world.popID())
	*(*T)(c.slot(b.compID, slot, b.arch.compSizes[b.compID])) = comp
	b.world.mutationVersion++
	return e
}

// NewEntities creates count entities with zero components.
func (b *Builder[T]) NewEntities(count int) []Entity {
	if count <= 0 {
		return nil
	}
	return b.world.createEntities(b.arch, count)
}

// NewEntitiesWith creates count entities that all start with comp.
func (b *Builder[T]) NewEntitiesWith(count int, comp T) []Entity {
	if count <= 0 {
		return nil
	}
	ents := make([]Entity, count)
	for i := range ents {
		e, c, slot := b.world.place(b.arch, b.world.popID())
		*(*T)(c.slot(b.compID, slot, b.arch.compSizes[b.compID])) = comp
		ents[i] = e
	}
	b.world.mutationVersion++
	return ents
}

// Get returns e's T, or nil when e is invalid or lacks it.
func (b *Builder[T]) Get(e Entity) *T {
	return GetComponent[T](b.world, e)
}

// Builder2 creates entities whose archetype is exactly {T1, T2}, declared in
// that order unless the archetype already exists.
type Builder2[T1 any, T2 any] struct {
	world *World
	arch  *Archetype
	id1   uint8
	id2   uint8
}

// NewBuilder2 returns a Builder2 for entities with components T1 and T2.
//
// Parameters:
//   - w: The World the builder creates entities in.
//
// Returns:
//   - A Builder2 bound to the archetype {T1, T2}. When the archetype is new,
//     serialization writes T1 before T2.
//
// It panics when T1 and T2 are the same type.
func NewBuilder2[T1 any, T2 any](w *World) *Builder2[T1, T2] {
	id1 := w.typeID(reflect.TypeFor[T1]())
	id2 := w.typeID(reflect.TypeFor[T2]())
	if id1 == id2 {
		panic("ecs: duplicate component types in Builder2")
	}
	var mask typeMask
	mask.set(id1)
	mask.set(id2)
	arch := w.archetypeFor(mask, []compLayout{w.layout(id1), w.layout(id2)})
	return &Builder2[T1, T2]{world: w, arch: arch, id1: id1, id2: id2}
}

// NewEntity creates an entity with zero components.
func (b *Builder2[T1, T2]) NewEntity() Entity {
	return b.world.createEntity(b.arch)
}

// NewEntityWith creates an entity with the given component values.
func (b *Builder2[T1, T2]) NewEntityWith(c1 T1, c2 T2) Entity {
	e, c, slot := b.world.place(b.arch, b.world.popID())
	*(*T1)(c.slot(b.id1, slot, b.arch.compSizes[b.id1])) = c1
	*(*T2)(c.slot(b.id2, slot, b.arch.compSizes[b.id2])) = c2
	b.world.mutationVersion++
	return e
}

// NewEntities creates count entities with zero components.
func (b *Builder2[T1, T2]) NewEntities(count int) []Entity {
	if count <= 0 {
		return nil
	}
	return b.world.createEntities(b.arch, count)
}

// Get returns e's components, or nils when e is invalid or lacks them.
func (b *Builder2[T1, T2]) Get(e Entity) (*T1, *T2) {
	return GetComponent[T1](b.world, e), GetComponent[T2](b.world, e)
}
