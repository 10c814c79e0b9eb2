package kiroku

import (
	"reflect"
	"unsafe"
)

// MaxComponentTypes is the number of distinct component types a single World
// can hold. Component IDs are stored as uint8 and archetype masks are 256 bits.
const MaxComponentTypes = 256

// ChunkSize is the number of entity slots in one chunk.
const ChunkSize = 1024

// Entity identifies one object in a World. ID is recycled after removal;
// Version is bumped on every allocation so stale handles can be detected.
type Entity struct {
	ID      uint32
	Version uint32
}

// entityMeta locates a live entity inside archetype storage.
type entityMeta struct {
	archetypeIndex int // index in World.archetypes
	chunkIndex     int // index in archetype.chunks
	index          int // slot inside the chunk
	version        uint32
}

// compLayout bundles a component type with its world-local ID and element size.
type compLayout struct {
	typ  reflect.Type
	size uintptr
	id   uint8
}

// componentTable assigns world-local IDs to component types.
type componentTable struct {
	idToType [MaxComponentTypes]reflect.Type
	idToSize [MaxComponentTypes]uintptr
	typeToID map[reflect.Type]uint8
	next     uint16
}

type entityRegistry struct {
	freeIDs         []uint32     // stack of recycled IDs
	metas           []entityMeta // indexed by entity ID
	capacity        int
	nextVersion     uint32
	live            int
	initialCapacity int
}

type archetypeRegistry struct {
	byMask     map[typeMask]int
	archetypes []*Archetype
}

// World owns every entity and every component column. It is not safe for
// concurrent mutation.
type World struct {
	archetypes      archetypeRegistry
	entities        entityRegistry
	components      componentTable
	mutationVersion uint32
}

// NewWorld creates and initializes a World. The entity table and the free ID
// stack are allocated for initialCapacity entities and double when they run
// out. The empty archetype is created up front, at index 0, so that entities
// without components have a home.
//
// Parameters:
//   - initialCapacity: The number of entities to pre-allocate memory for.
//     Zero is valid; the table grows on the first creation.
//
// Returns:
//   - The newly created World.
func NewWorld(initialCapacity int) *World {
	w := &World{
		components: componentTable{
			typeToID: make(map[reflect.Type]uint8, 16),
		},
		entities: entityRegistry{
			capacity:        initialCapacity,
			initialCapacity: initialCapacity,
			freeIDs:         make([]uint32, initialCapacity),
			metas:           make([]entityMeta, initialCapacity),
			nextVersion:     1,
		},
		archetypes: archetypeRegistry{
			byMask:     make(map[typeMask]int),
			archetypes: make([]*Archetype, 0, 16),
		},
	}
	// IDs are popped from the end, so the lowest ID goes out first.
	for i := range w.entities.freeIDs {
		w.entities.freeIDs[i] = uint32(initialCapacity - 1 - i)
	}
	for i := range w.entities.metas {
		w.entities.metas[i] = deadMeta()
	}
	w.archetypeFor(typeMask{}, nil)
	return w
}

func deadMeta() entityMeta {
	return entityMeta{archetypeIndex: -1, chunkIndex: -1, index: -1}
}

// IsValid reports whether e refers to a live entity of this World.
func (w *World) IsValid(e Entity) bool {
	if int(e.ID) >= len(w.entities.metas) {
		return false
	}
	meta := w.entities.metas[e.ID]
	return meta.version != 0 && meta.version == e.Version
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.entities.live
}

// Archetypes returns every archetype in creation order, including empty ones.
// The slice is owned by the World and must not be modified.
func (w *World) Archetypes() []*Archetype {
	return w.archetypes.archetypes
}

// MutationVersion changes whenever entities are created, moved or removed.
func (w *World) MutationVersion() uint32 {
	return w.mutationVersion
}

// CreateEntity creates an entity with no components.
func (w *World) CreateEntity() Entity {
	return w.createEntity(w.archetypes.archetypes[0])
}

// CreateEntities creates count entities with no components.
func (w *World) CreateEntities(count int) []Entity {
	if count <= 0 {
		return nil
	}
	return w.createEntities(w.archetypes.archetypes[0], count)
}

// RemoveEntity removes e and recycles its ID. The last entity of e's chunk is
// swapped into the vacated slot, so storage order changes. Removing an invalid
// entity is a no-op.
func (w *World) RemoveEntity(e Entity) {
	if !w.IsValid(e) {
		return
	}
	meta := &w.entities.metas[e.ID]
	w.removeFromArchetype(w.archetypes.archetypes[meta.archetypeIndex], meta)
	*meta = deadMeta()
	w.entities.freeIDs = append(w.entities.freeIDs, e.ID)
	w.entities.live--
	w.mutationVersion++
}

// RemoveEntities removes every entity in ents.
func (w *World) RemoveEntities(ents []Entity) {
	for _, e := range ents {
		w.RemoveEntity(e)
	}
}

// ClearEntities removes all entities while keeping archetypes and the entity
// table allocated.
func (w *World) ClearEntities() {
	for i := range w.entities.metas {
		w.entities.metas[i] = deadMeta()
	}
	w.entities.freeIDs = w.entities.freeIDs[:0]
	for i := w.entities.capacity - 1; i >= 0; i-- {
		w.entities.freeIDs = append(w.entities.freeIDs, uint32(i))
	}
	for _, a := range w.archetypes.archetypes {
		a.chunks = a.chunks[:0]
		a.size = 0
	}
	w.entities.live = 0
	w.mutationVersion++
}

// typeID registers or fetches the world-local ID of t.
func (w *World) typeID(t reflect.Type) uint8 {
	if id, ok := w.components.typeToID[t]; ok {
		return id
	}
	if w.components.next >= MaxComponentTypes {
		panic("ecs: too many component types")
	}
	id := uint8(w.components.next)
	w.components.typeToID[t] = id
	w.components.idToType[id] = t
	w.components.idToSize[id] = t.Size()
	w.components.next++
	return id
}

func (w *World) layout(id uint8) compLayout {
	return compLayout{id: id, typ: w.components.idToType[id], size: w.components.idToSize[id]}
}

// archetypeFor returns the archetype for mask, creating it with the given
// component order if it does not exist yet.
func (w *World) archetypeFor(mask typeMask, layouts []compLayout) *Archetype {
	if idx, ok := w.archetypes.byMask[mask]; ok {
		return w.archetypes.archetypes[idx]
	}
	a := &Archetype{
		index:     len(w.archetypes.archetypes),
		mask:      mask,
		chunks:    make([]*Chunk, 0, 4),
		compOrder: make([]uint8, len(layouts)),
		infos:     make([]ComponentInfo, len(layouts)),
	}
	for i, l := range layouts {
		a.compOrder[i] = l.id
		a.compTypes[l.id] = l.typ
		a.compSizes[l.id] = l.size
		a.infos[i] = ComponentInfo{Type: ComponentTypeID{typ: l.typ}, Size: l.size}
	}
	w.archetypes.archetypes = append(w.archetypes.archetypes, a)
	w.archetypes.byMask[mask] = a.index
	return a
}

// archetypeWith returns the archetype of a plus the component id, appending
// id to the end of a's component order when a new archetype is needed.
func (w *World) archetypeWith(a *Archetype, id uint8) *Archetype {
	mask := a.mask
	mask.set(id)
	if idx, ok := w.archetypes.byMask[mask]; ok {
		return w.archetypes.archetypes[idx]
	}
	layouts := make([]compLayout, 0, len(a.compOrder)+1)
	for _, cid := range a.compOrder {
		layouts = append(layouts, w.layout(cid))
	}
	layouts = append(layouts, w.layout(id))
	return w.archetypeFor(mask, layouts)
}

// archetypeWithout returns the archetype of a minus the component id.
func (w *World) archetypeWithout(a *Archetype, id uint8) *Archetype {
	mask := a.mask
	mask.unset(id)
	if idx, ok := w.archetypes.byMask[mask]; ok {
		return w.archetypes.archetypes[idx]
	}
	layouts := make([]compLayout, 0, len(a.compOrder))
	for _, cid := range a.compOrder {
		if cid != id {
			layouts = append(layouts, w.layout(cid))
		}
	}
	return w.archetypeFor(mask, layouts)
}

func (w *World) newChunk(a *Archetype) *Chunk {
	c := &Chunk{arch: a}
	for _, cid := range a.compOrder {
		col := reflect.MakeSlice(reflect.SliceOf(a.compTypes[cid]), ChunkSize, ChunkSize)
		c.columns[cid] = col.UnsafePointer()
	}
	return c
}

// tailChunk returns the last chunk of a, appending a fresh one when the
// current tail is full.
func (w *World) tailChunk(a *Archetype) (*Chunk, int) {
	if len(a.chunks) == 0 || a.chunks[len(a.chunks)-1].size == ChunkSize {
		a.chunks = append(a.chunks, w.newChunk(a))
	}
	return a.chunks[len(a.chunks)-1], len(a.chunks) - 1
}

// expand grows the entity table by at least additional slots.
func (w *World) expand(additional int) {
	oldCap := w.entities.capacity
	newCap := max(oldCap*2, 1)
	if newCap < oldCap+additional {
		newCap = oldCap + additional
	}
	delta := newCap - oldCap
	for range delta {
		w.entities.metas = append(w.entities.metas, deadMeta())
	}
	// Keep the free stack ordered so the lowest new ID is handed out first.
	grown := make([]uint32, delta)
	for i := range delta {
		grown[i] = uint32(newCap - 1 - i)
	}
	w.entities.freeIDs = append(grown, w.entities.freeIDs...)
	w.entities.capacity = newCap
}

func (w *World) popID() uint32 {
	if len(w.entities.freeIDs) == 0 {
		w.expand(1)
	}
	last := len(w.entities.freeIDs) - 1
	id := w.entities.freeIDs[last]
	w.entities.freeIDs = w.entities.freeIDs[:last]
	return id
}

// place puts an entity id into the next free slot of a and returns the new
// handle together with its chunk and slot.
func (w *World) place(a *Archetype, id uint32) (Entity, *Chunk, int) {
	c, ci := w.tailChunk(a)
	slot := c.size
	meta := &w.entities.metas[id]
	meta.archetypeIndex = a.index
	meta.chunkIndex = ci
	meta.index = slot
	meta.version = w.entities.nextVersion
	w.entities.nextVersion++
	e := Entity{ID: id, Version: meta.version}
	c.entityIDs[slot] = e
	c.size++
	a.size++
	w.entities.live++
	return e, c, slot
}

func (w *World) createEntity(a *Archetype) Entity {
	e, _, _ := w.place(a, w.popID())
	w.mutationVersion++
	return e
}

func (w *World) createEntities(a *Archetype, count int) []Entity {
	ents := make([]Entity, count)
	for i := range ents {
		ents[i], _, _ = w.place(a, w.popID())
	}
	w.mutationVersion++
	return ents
}

// move relocates a live entity from its archetype to target, copying every
// component the two archetypes share. It returns the destination chunk and
// slot so the caller can write a newly added component.
func (w *World) move(e Entity, meta *entityMeta, target *Archetype) (*Chunk, int) {
	src := w.archetypes.archetypes[meta.archetypeIndex]
	oldChunk := src.chunks[meta.chunkIndex]
	oldSlot := meta.index

	dst, ci := w.tailChunk(target)
	slot := dst.size
	dst.entityIDs[slot] = e
	dst.size++
	target.size++

	for _, cid := range src.compOrder {
		if !target.mask.has(cid) {
			continue
		}
		size := src.compSizes[cid]
		copyComponent(src.compTypes[cid], dst.slot(cid, slot, size), oldChunk.slot(cid, oldSlot, size))
	}
	w.removeFromArchetype(src, meta)
	meta.archetypeIndex = target.index
	meta.chunkIndex = ci
	meta.index = slot
	w.mutationVersion++
	return dst, slot
}

// removeFromArchetype vacates the entity's slot by swapping the chunk's last
// entity into it. An emptied chunk is replaced by the archetype's last chunk.
func (w *World) removeFromArchetype(a *Archetype, meta *entityMeta) {
	chunkIdx := meta.chunkIndex
	c := a.chunks[chunkIdx]
	idx := meta.index
	lastIdx := c.size - 1
	if idx < lastIdx {
		lastEnt := c.entityIDs[lastIdx]
		c.entityIDs[idx] = lastEnt
		for _, cid := range a.compOrder {
			size := a.compSizes[cid]
			copyComponent(a.compTypes[cid], c.slot(cid, idx, size), c.slot(cid, lastIdx, size))
		}
		w.entities.metas[lastEnt.ID].index = idx
	}
	for _, cid := range a.compOrder {
		clearComponent(a.compTypes[cid], c.slot(cid, lastIdx, a.compSizes[cid]))
	}
	c.size--
	a.size--
	if c.size == 0 {
		lastChunkIdx := len(a.chunks) - 1
		if chunkIdx < lastChunkIdx {
			a.chunks[chunkIdx] = a.chunks[lastChunkIdx]
			moved := a.chunks[chunkIdx]
			for j := 0; j < moved.size; j++ {
				w.entities.metas[moved.entityIDs[j].ID].chunkIndex = chunkIdx
			}
		}
		a.chunks[lastChunkIdx] = nil
		a.chunks = a.chunks[:lastChunkIdx]
	}
}

// copyComponent copies one element of type t. It goes through reflect so
// components holding pointers are copied with write barriers.
func copyComponent(t reflect.Type, dst, src unsafe.Pointer) {
	if t.Size() == 0 {
		return
	}
	reflect.NewAt(t, dst).Elem().Set(reflect.NewAt(t, src).Elem())
}

// clearComponent zeroes a vacated slot so it does not keep garbage alive.
func clearComponent(t reflect.Type, p unsafe.Pointer) {
	if t.Size() == 0 {
		return
	}
	reflect.NewAt(t, p).Elem().SetZero()
}
