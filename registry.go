package kiroku

import (
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SerializeFunc writes the component at index of col to enc. It must write
// exactly one value.
type SerializeFunc func(col Column, index int, enc Encoder) error

// ComponentRegistration is everything the serializer needs to write one
// component type without knowing it at compile time.
type ComponentRegistration struct {
	Type      ComponentTypeID
	Name      string
	serialize SerializeFunc

	schemaOnce sync.Once
	schema     []byte
	schemaErr  error
}

// Serialize writes the component at index of col through enc.
func (r *ComponentRegistration) Serialize(col Column, index int, enc Encoder) error {
	return r.serialize(col, index, enc)
}

// Schema returns the JSON schema of the component type. It is computed on the
// first call.
func (r *ComponentRegistration) Schema() ([]byte, error) {
	r.schemaOnce.Do(func() {
		r.schema, r.schemaErr = jsonschema.ReflectFromType(r.Type.typ).MarshalJSON()
		if r.schemaErr != nil {
			r.schemaErr = eris.Wrapf(r.schemaErr, "component %s has no json schema", r.Name)
		}
	})
	return r.schema, r.schemaErr
}

// Registry maps component types to their registrations. Register every type
// that can appear in a serialized scene before the first serialization; after
// that the Registry is read-only and can be shared by concurrent passes over
// different scenes.
type Registry struct {
	registrations map[ComponentTypeID]*ComponentRegistration
	logger        zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger registration events are written to.
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		registrations: make(map[ComponentTypeID]*ComponentRegistration),
		logger:        log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register registers T so that it is serialized by passing *T to
// Encoder.Encode. Registering T again replaces the previous registration.
func Register[T any](r *Registry) {
	RegisterFunc(r, func(v *T, enc Encoder) error {
		return enc.Encode(v)
	})
}

// RegisterFunc registers T with a custom encoding. fn receives a pointer into
// the column and must write exactly one value. Registering T again replaces
// the previous registration.
func RegisterFunc[T any](r *Registry, fn func(v *T, enc Encoder) error) {
	id := TypeIDOf[T]()
	reg := &ComponentRegistration{
		Type: id,
		Name: id.String(),
		serialize: func(col Column, index int, enc Encoder) error {
			v, err := ColumnAt[T](col, index)
			if err != nil {
				return err
			}
			return fn(v, enc)
		},
	}
	_, replaced := r.registrations[id]
	r.registrations[id] = reg
	r.logger.Debug().
		Str("component", reg.Name).
		Bool("replaced", replaced).
		Msg("registered component")
}

// Get returns the registration for id.
func (r *Registry) Get(id ComponentTypeID) (*ComponentRegistration, bool) {
	reg, ok := r.registrations[id]
	return reg, ok
}

// Len returns the number of registered component types.
func (r *Registry) Len() int {
	return len(r.registrations)
}

// Registrations returns all registrations sorted by name.
func (r *Registry) Registrations() []*ComponentRegistration {
	regs := make([]*ComponentRegistration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].Name < regs[j].Name
	})
	return regs
}

// Schema returns the JSON schema of a registered component type.
func (r *Registry) Schema(id ComponentTypeID) ([]byte, error) {
	reg, ok := r.Get(id)
	if !ok {
		return nil, eris.Wrapf(ErrUnregisteredComponent, "component %s", id)
	}
	return reg.Schema()
}
