package kiroku_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/edwinsyarief/kiroku"
	"github.com/edwinsyarief/kiroku/encoding/jsonenc"
)

// recorder is an Encoder that logs every call and can fail on demand.
type recorder struct {
	events []string
	failOn string
	err    error
}

func (r *recorder) rec(ev string) error {
	r.events = append(r.events, ev)
	if r.failOn != "" && strings.HasPrefix(ev, r.failOn) {
		return r.err
	}
	return nil
}

func (r *recorder) BeginSeq(n int) error { return r.rec(fmt.Sprintf("seq(%d)", n)) }
func (r *recorder) EndSeq() error        { return r.rec("/seq") }
func (r *recorder) BeginStruct(name string, fields int) error {
	return r.rec(fmt.Sprintf("struct(%s,%d)", name, fields))
}
func (r *recorder) Field(name string) error { return r.rec("field(" + name + ")") }
func (r *recorder) EndStruct() error        { return r.rec("/struct") }
func (r *recorder) Encode(v any) error      { return r.rec(fmt.Sprintf("value(%+v)", v)) }

type record struct {
	ID         uint32 `json:"id"`
	Components []any  `json:"components"`
}

func newTestRegistry() *kiroku.Registry {
	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
	kiroku.Register[Position](reg)
	kiroku.Register[Velocity](reg)
	kiroku.Register[Health](reg)
	kiroku.Register[Label](reg)
	kiroku.Register[Tag](reg)
	return reg
}

func serializeJSON(t *testing.T, scene *kiroku.Scene, reg *kiroku.Registry) []byte {
	t.Helper()
	var buf bytes.Buffer
	s := kiroku.NewSerializableScene(scene, reg, kiroku.WithLogger(zerolog.Nop()))
	require.NoError(t, s.Serialize(jsonenc.New(&buf)))
	return buf.Bytes()
}

func decode(t *testing.T, bz []byte) []record {
	t.Helper()
	var out []record
	require.NoError(t, json.Unmarshal(bz, &out))
	return out
}

// exampleScene has archetype {Position} with two entities and
// {Position, Velocity} with one.
func exampleScene() *kiroku.Scene {
	scene := kiroku.NewScene(8)
	w := scene.World()
	single := kiroku.NewBuilder[Position](w)
	pair := kiroku.NewBuilder2[Position, Velocity](w)
	single.NewEntityWith(Position{X: 1, Y: 2})
	single.NewEntityWith(Position{X: 3, Y: 4})
	pair.NewEntityWith(Position{X: 5, Y: 6}, Velocity{DX: 7, DY: 8})
	return scene
}

func TestSerializeExampleScene(t *testing.T) {
	out := serializeJSON(t, exampleScene(), newTestRegistry())

	assert.JSONEq(t, `[
		{"id":0,"components":[{"X":1,"Y":2}]},
		{"id":1,"components":[{"X":3,"Y":4}]},
		{"id":2,"components":[{"X":5,"Y":6},{"DX":7,"DY":8}]}
	]`, string(out))
	assert.Equal(t,
		`[{"id":0,"components":[{"X":1,"Y":2}]},{"id":1,"components":[{"X":3,"Y":4}]},`+
			`{"id":2,"components":[{"X":5,"Y":6},{"DX":7,"DY":8}]}]`,
		string(out), "field order must be id then components")
}

func TestSerializeCallSequence(t *testing.T) {
	scene := kiroku.NewScene(4)
	kiroku.NewBuilder2[Position, Velocity](scene.World()).NewEntityWith(Position{X: 1}, Velocity{DY: 2})

	var rec recorder
	require.NoError(t, kiroku.NewSerializableScene(scene, newTestRegistry(), kiroku.WithLogger(zerolog.Nop())).Serialize(&rec))

	assert.Equal(t, []string{
		"seq(1)",
		"struct(Entity,2)",
		"field(id)",
		"value(0)",
		"field(components)",
		"seq(2)",
		"value(&{X:1 Y:0})",
		"value(&{DX:0 DY:2})",
		"/seq",
		"/struct",
		"/seq",
	}, rec.events)
}

func TestSerializeCompleteness(t *testing.T) {
	scene := kiroku.NewScene(16)
	w := scene.World()
	kiroku.NewBuilder[Position](w).NewEntitiesWith(kiroku.ChunkSize+100, Position{X: 1})
	kiroku.NewBuilder2[Position, Health](w).NewEntities(300)
	w.CreateEntities(7)
	tagged := kiroku.NewBuilder[Health](w).NewEntities(20)
	for _, e := range tagged[:5] {
		kiroku.SetComponent(w, e, Tag{})
	}
	n := w.Len()

	records := decode(t, serializeJSON(t, scene, newTestRegistry()))
	require.Len(t, records, n)

	seen := make(map[uint32]bool, n)
	for _, r := range records {
		require.False(t, seen[r.ID], "entity %d emitted twice", r.ID)
		seen[r.ID] = true
	}

	// Every record matches its entity's archetype width.
	want := make(map[uint32]int, n)
	for _, a := range scene.Archetypes() {
		for _, c := range a.Chunks() {
			for slot := range c.Len() {
				want[c.Entity(slot).ID] = len(a.Components())
			}
		}
	}
	for _, r := range records {
		assert.Len(t, r.Components, want[r.ID], "entity %d", r.ID)
	}
}

func TestSerializeFollowsStorageOrder(t *testing.T) {
	scene := kiroku.NewScene(8)
	w := scene.World()
	ents := kiroku.NewBuilder[Position](w).NewEntities(5)
	w.RemoveEntity(ents[1])

	records := decode(t, serializeJSON(t, scene, newTestRegistry()))
	ids := make([]uint32, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	assert.Equal(t, []uint32{0, 4, 2, 3}, ids)
}

func TestSerializeIdentityIgnoresVersion(t *testing.T) {
	scene := kiroku.NewScene(4)
	w := scene.World()
	b := kiroku.NewBuilder[Position](w)
	old := b.NewEntity()
	w.RemoveEntity(old)
	fresh := b.NewEntityWith(Position{X: 9})
	require.NotEqual(t, old.Version, fresh.Version)

	records := decode(t, serializeJSON(t, scene, newTestRegistry()))
	require.Len(t, records, 1)
	assert.Equal(t, fresh.ID, records[0].ID)
}

func TestSerializeDeterministic(t *testing.T) {
	scene := exampleScene()
	kiroku.NewBuilder[Health](scene.World()).NewEntitiesWith(50, Health{Current: 3, Max: 9})
	reg := newTestRegistry()

	first := serializeJSON(t, scene, reg)
	second := serializeJSON(t, scene, reg)
	assert.Equal(t, first, second)
}

func TestSerializeUnregisteredComponentFailsWithoutOutput(t *testing.T) {
	scene := exampleScene()
	kiroku.NewBuilder[Health](scene.World()).NewEntity()

	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
	kiroku.Register[Position](reg)
	kiroku.Register[Velocity](reg)

	var rec recorder
	err := kiroku.NewSerializableScene(scene, reg, kiroku.WithLogger(zerolog.Nop())).Serialize(&rec)
	require.ErrorIs(t, err, kiroku.ErrUnregisteredComponent)
	assert.Contains(t, err.Error(), "Health")
	assert.Empty(t, rec.events)
}

func TestSerializeIgnoresEmptyArchetypes(t *testing.T) {
	scene := exampleScene()
	w := scene.World()
	e := kiroku.NewBuilder[Health](w).NewEntity()
	w.RemoveEntity(e)

	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
	kiroku.Register[Position](reg)
	kiroku.Register[Velocity](reg)

	records := decode(t, serializeJSON(t, scene, reg))
	assert.Len(t, records, 3)
}

func TestSerializeEntityWithoutComponents(t *testing.T) {
	scene := kiroku.NewScene(4)
	scene.World().CreateEntity()

	out := serializeJSON(t, scene, kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop())))
	assert.Equal(t, `[{"id":0,"components":[]}]`, string(out))
}

func TestSerializeEmptyScene(t *testing.T) {
	out := serializeJSON(t, kiroku.NewScene(0), newTestRegistry())
	assert.Equal(t, `[]`, string(out))
}

func TestSerializeSinkErrorIsReturnedUnchanged(t *testing.T) {
	errBoom := errors.New("disk full")
	for _, failOn := range []string{"seq(3)", "struct", "field(components)", "value(&{X:3", "/seq"} {
		t.Run(failOn, func(t *testing.T) {
			rec := &recorder{failOn: failOn, err: errBoom}
			err := kiroku.NewSerializableScene(exampleScene(), newTestRegistry(), kiroku.WithLogger(zerolog.Nop())).Serialize(rec)
			assert.Same(t, errBoom, err)
		})
	}
}

func TestRegisterOverwrites(t *testing.T) {
	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
	kiroku.RegisterFunc(reg, func(p *Position, enc kiroku.Encoder) error {
		return enc.Encode("first")
	})
	kiroku.RegisterFunc(reg, func(p *Position, enc kiroku.Encoder) error {
		return enc.Encode(p.X + p.Y)
	})
	require.Equal(t, 1, reg.Len())

	scene := kiroku.NewScene(2)
	kiroku.NewBuilder[Position](scene.World()).NewEntityWith(Position{X: 1, Y: 2})
	assert.Equal(t, `[{"id":0,"components":[3]}]`, string(serializeJSON(t, scene, reg)))
}

func TestRegisterFuncStruct(t *testing.T) {
	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
	kiroku.RegisterFunc(reg, func(h *Health, enc kiroku.Encoder) error {
		if err := enc.BeginStruct("Health", 1); err != nil {
			return err
		}
		if err := enc.Field("ratio"); err != nil {
			return err
		}
		if err := enc.Encode(float64(h.Current) / float64(h.Max)); err != nil {
			return err
		}
		return enc.EndStruct()
	})

	scene := kiroku.NewScene(2)
	kiroku.NewBuilder[Health](scene.World()).NewEntityWith(Health{Current: 1, Max: 4})
	assert.Equal(t, `[{"id":0,"components":[{"ratio":0.25}]}]`, string(serializeJSON(t, scene, reg)))
}

func TestRegisterFuncMustWriteOneValue(t *testing.T) {
	cases := map[string]func(*Position, kiroku.Encoder) error{
		"none": func(*Position, kiroku.Encoder) error { return nil },
		"two": func(p *Position, enc kiroku.Encoder) error {
			if err := enc.Encode(p.X); err != nil {
				return err
			}
			return enc.Encode(p.Y)
		},
		"open": func(_ *Position, enc kiroku.Encoder) error {
			return enc.BeginSeq(0)
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
			kiroku.RegisterFunc(reg, fn)
			scene := kiroku.NewScene(2)
			kiroku.NewBuilder[Position](scene.World()).NewEntity()

			var rec recorder
			err := kiroku.NewSerializableScene(scene, reg, kiroku.WithLogger(zerolog.Nop())).Serialize(&rec)
			assert.ErrorIs(t, err, kiroku.ErrComponentWrite)
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	scene := exampleScene()
	reg := newTestRegistry()
	s := kiroku.NewSerializableScene(scene, reg, kiroku.WithLogger(zerolog.Nop()))

	bz, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, serializeJSON(t, scene, reg), bz)
}

func TestSerializeLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	s := kiroku.NewSerializableScene(exampleScene(), newTestRegistry(), kiroku.WithLogger(logger))
	require.NoError(t, s.Serialize(jsonenc.New(&bytes.Buffer{})))

	assert.Contains(t, buf.String(), `"message":"serialized scene"`)
	assert.Contains(t, buf.String(), `"entities":3`)
}

func TestConcurrentPassesShareRegistry(t *testing.T) {
	reg := newTestRegistry()
	scenes := make([]*kiroku.Scene, 8)
	want := make([][]byte, len(scenes))
	for i := range scenes {
		scenes[i] = kiroku.NewScene(64)
		kiroku.NewBuilder[Position](scenes[i].World()).NewEntitiesWith(10*(i+1), Position{X: float32(i)})
		want[i] = serializeJSON(t, scenes[i], reg)
	}

	got := make([][]byte, len(scenes))
	g, _ := errgroup.WithContext(context.Background())
	for i := range scenes {
		g.Go(func() error {
			var buf bytes.Buffer
			err := kiroku.NewSerializableScene(scenes[i], reg, kiroku.WithLogger(zerolog.Nop())).Serialize(jsonenc.New(&buf))
			got[i] = buf.Bytes()
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, want, got)
}
