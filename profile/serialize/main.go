// Profiling:
// go build ./profile/serialize
// ./serialize
// go tool pprof -http=":8000" -nodefraction=0.001 ./serialize mem.pprof

package main

import (
	"io"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"

	"github.com/edwinsyarief/kiroku"
	"github.com/edwinsyarief/kiroku/encoding/jsonenc"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

func main() {
	rounds := 20
	passes := 100
	entities := 10000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(rounds, passes, entities)
	p.Stop()
}

func run(rounds, passes, numEntities int) {
	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
	kiroku.Register[comp1](reg)
	kiroku.Register[comp2](reg)
	for range rounds {
		scene := kiroku.NewScene(numEntities)
		single := kiroku.NewBuilder[comp1](scene.World())
		pair := kiroku.NewBuilder2[comp1, comp2](scene.World())
		single.NewEntitiesWith(numEntities/2, comp1{V: 1, W: 2})
		for i := range numEntities / 2 {
			pair.NewEntityWith(comp1{V: int64(i)}, comp2{W: int64(i)})
		}
		s := kiroku.NewSerializableScene(scene, reg, kiroku.WithLogger(zerolog.Nop()))
		for range passes {
			if err := s.Serialize(jsonenc.New(io.Discard)); err != nil {
				panic(err)
			}
		}
	}
}
