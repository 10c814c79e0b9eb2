package kiroku

import (
	"reflect"
)

// ComponentTypeID identifies a component's runtime type. It is comparable and
// stable for the life of the process, so it can key maps. The zero value
// identifies no type.
type ComponentTypeID struct {
	typ reflect.Type
}

// TypeIDOf returns the ComponentTypeID of T.
func TypeIDOf[T any]() ComponentTypeID {
	return ComponentTypeID{typ: reflect.TypeFor[T]()}
}

// Type returns the underlying reflect.Type, or nil for the zero value.
func (id ComponentTypeID) Type() reflect.Type { return id.typ }

// IsZero reports whether id identifies no type.
func (id ComponentTypeID) IsZero() bool { return id.typ == nil }

func (id ComponentTypeID) String() string {
	if id.typ == nil {
		return "<nil>"
	}
	return id.typ.String()
}

// GetComponent returns a pointer to e's component of type T, or nil when e is
// invalid or does not have one. The pointer is valid until the next structural
// change of the World.
func GetComponent[T any](w *World, e Entity) *T {
	if !w.IsValid(e) {
		return nil
	}
	id, ok := w.components.typeToID[reflect.TypeFor[T]()]
	if !ok {
		return nil
	}
	meta := w.entities.metas[e.ID]
	a := w.archetypes.archetypes[meta.archetypeIndex]
	if !a.mask.has(id) {
		return nil
	}
	return (*T)(a.chunks[meta.chunkIndex].slot(id, meta.index, a.compSizes[id]))
}

// HasComponent reports whether e has a component of type T.
func HasComponent[T any](w *World, e Entity) bool {
	return GetComponent[T](w, e) != nil
}

// SetComponent sets e's component of type T, adding it when missing. Adding a
// component moves the entity to another archetype. Invalid entities are
// ignored.
func SetComponent[T any](w *World, e Entity, val T) {
	if !w.IsValid(e) {
		return
	}
	id := w.typeID(reflect.TypeFor[T]())
	meta := &w.entities.metas[e.ID]
	a := w.archetypes.archetypes[meta.archetypeIndex]
	if a.mask.has(id) {
		*(*T)(a.chunks[meta.chunkIndex].slot(id, meta.index, a.compSizes[id])) = val
		return
	}
	target := w.archetypeWith(a, id)
	c, slot := w.move(e, meta, target)
	*(*T)(c.slot(id, slot, target.compSizes[id])) = val
}

// RemoveComponent removes e's component of type T. It is a no-op when e is
// invalid or has no such component.
func RemoveComponent[T any](w *World, e Entity) {
	if !w.IsValid(e) {
		return
	}
	id, ok := w.components.typeToID[reflect.TypeFor[T]()]
	if !ok {
		return
	}
	meta := &w.entities.metas[e.ID]
	a := w.archetypes.archetypes[meta.archetypeIndex]
	if !a.mask.has(id) {
		return
	}
	w.move(e, meta, w.archetypeWithout(a, id))
}
