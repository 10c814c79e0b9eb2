package kiroku

// Scene owns a World and is what gets serialized.
type Scene struct {
	world *World
}

// NewScene returns a Scene around a fresh World.
func NewScene(initialCapacity int) *Scene {
	return &Scene{world: NewWorld(initialCapacity)}
}

// SceneOf wraps an existing World. The Scene takes ownership of w.
func SceneOf(w *World) *Scene {
	return &Scene{world: w}
}

// World returns the scene's World.
func (s *Scene) World() *World { return s.world }

// Archetypes returns the world's archetypes in storage order.
func (s *Scene) Archetypes() []*Archetype { return s.world.Archetypes() }

// EntityCount returns the number of live entities.
func (s *Scene) EntityCount() int { return s.world.Len() }
