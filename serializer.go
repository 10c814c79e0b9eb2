package kiroku

import (
	"bytes"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edwinsyarief/kiroku/encoding/jsonenc"
)

// SerializableScene borrows a Scene and a Registry for one serialization. It
// owns neither.
type SerializableScene struct {
	scene    *Scene
	registry *Registry
	logger   zerolog.Logger
}

// Option configures a SerializableScene.
type Option func(*SerializableScene)

// WithLogger sets the logger a pass reports to.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *SerializableScene) {
		s.logger = logger
	}
}

// NewSerializableScene returns a view of scene that serializes components
// through registry.
//
// Parameters:
//   - scene: The scene to write. It must not change while a pass runs.
//   - registry: Registrations for every component type of an occupied
//     archetype.
//   - opts: Optional settings such as WithLogger.
//
// Returns:
//   - A SerializableScene. It is a small value and can be copied freely.
func NewSerializableScene(scene *Scene, registry *Registry, opts ...Option) SerializableScene {
	s := SerializableScene{scene: scene, registry: registry, logger: log.Logger}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Serialize writes scene through enc. See SerializableScene.Serialize.
func Serialize(scene *Scene, registry *Registry, enc Encoder) error {
	return NewSerializableScene(scene, registry).Serialize(enc)
}

// Serialize writes every live entity as
//
//	[ { "id": <entity ID>, "components": [ <component>, ... ] }, ... ]
//
// Archetypes, chunks and slots are visited in storage order, and components in
// the order their archetype declares them. The scene must not be mutated
// during the call.
//
// Before anything is written the scene is checked against the registry: an
// unregistered component type (ErrUnregisteredComponent) or a chunk without a
// declared column (ErrMissingColumn) fails the pass with no output. Errors
// returned by enc are passed back unchanged.
func (s SerializableScene) Serialize(enc Encoder) error {
	plan, total, err := s.plan()
	if err != nil {
		s.logger.Error().Err(err).Msg("scene cannot be serialized")
		return err
	}
	s.logger.Debug().
		Int("entities", total).
		Int("archetypes", len(plan)).
		Msg("serializing scene")

	if err := enc.BeginSeq(total); err != nil {
		return err
	}
	for _, ap := range plan {
		for _, cp := range ap.chunks {
			for slot := 0; slot < cp.chunk.Len(); slot++ {
				if err := writeEntity(enc, cp.chunk.Entity(slot), ap.regs, cp.cols, slot); err != nil {
					return err
				}
			}
		}
	}
	if err := enc.EndSeq(); err != nil {
		return err
	}
	if f, ok := enc.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	s.logger.Debug().Int("entities", total).Msg("serialized scene")
	return nil
}

// MarshalJSON serializes the scene as JSON.
func (s SerializableScene) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Serialize(jsonenc.New(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// archetypePlan holds the resolved registrations of one occupied archetype in
// declared component order.
type archetypePlan struct {
	regs   []*ComponentRegistration
	chunks []chunkPlan
}

// chunkPlan holds one occupied chunk and its columns, parallel to
// archetypePlan.regs.
type chunkPlan struct {
	chunk *Chunk
	cols  []Column
}

// plan resolves every registration and column the pass will touch. Empty
// archetypes and chunks are skipped, so their component types need no
// registration.
func (s SerializableScene) plan() ([]archetypePlan, int, error) {
	var (
		plans []archetypePlan
		total int
	)
	for _, a := range s.scene.Archetypes() {
		if a.Len() == 0 {
			continue
		}
		infos := a.Components()
		ap := archetypePlan{regs: make([]*ComponentRegistration, len(infos))}
		for i, info := range infos {
			reg, ok := s.registry.Get(info.Type)
			if !ok {
				return nil, 0, eris.Wrapf(ErrUnregisteredComponent,
					"component %s in archetype %d", info.Type, a.Index())
			}
			ap.regs[i] = reg
		}
		for ci, c := range a.Chunks() {
			if c.Len() == 0 {
				continue
			}
			cp := chunkPlan{chunk: c, cols: make([]Column, len(infos))}
			for i, info := range infos {
				col, ok := c.Column(info.Type)
				if !ok {
					return nil, 0, eris.Wrapf(ErrMissingColumn,
						"component %s in archetype %d chunk %d", info.Type, a.Index(), ci)
				}
				cp.cols[i] = col
			}
			ap.chunks = append(ap.chunks, cp)
			total += c.Len()
		}
		plans = append(plans, ap)
	}
	return plans, total, nil
}

func writeEntity(enc Encoder, e Entity, regs []*ComponentRegistration, cols []Column, slot int) error {
	if err := enc.BeginStruct("Entity", 2); err != nil {
		return err
	}
	if err := enc.Field("id"); err != nil {
		return err
	}
	if err := enc.Encode(e.ID); err != nil {
		return err
	}
	if err := enc.Field("components"); err != nil {
		return err
	}
	if err := enc.BeginSeq(len(regs)); err != nil {
		return err
	}
	for i, reg := range regs {
		cs := componentSlot{enc: enc}
		if err := reg.Serialize(cols[i], slot, &cs); err != nil {
			return err
		}
		if err := cs.done(); err != nil {
			return err
		}
	}
	if err := enc.EndSeq(); err != nil {
		return err
	}
	return enc.EndStruct()
}
