package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edwinsyarief/kiroku"
)

type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

type Velocity struct {
	DX float32 `json:"dx"`
	DY float32 `json:"dy"`
}

type Health struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

type Name struct {
	Value string `json:"value"`
}

// newRegistry registers every component the demo scene uses.
func newRegistry(logger zerolog.Logger) *kiroku.Registry {
	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(logger))
	kiroku.Register[Position](reg)
	kiroku.Register[Velocity](reg)
	kiroku.Register[Health](reg)
	kiroku.RegisterFunc(reg, func(n *Name, enc kiroku.Encoder) error {
		return enc.Encode(n.Value)
	})
	return reg
}

// buildScene fills a scene with n entities spread over four archetypes:
// static props, movers, actors and named actors.
func buildScene(n int) *kiroku.Scene {
	scene := kiroku.NewScene(max(n, 1))
	w := scene.World()
	props := kiroku.NewBuilder[Position](w)
	movers := kiroku.NewBuilder2[Position, Velocity](w)
	actors := kiroku.NewBuilder2[Position, Health](w)
	for i := range n {
		f := float32(i)
		switch i % 4 {
		case 0:
			props.NewEntityWith(Position{X: f, Y: -f})
		case 1:
			movers.NewEntityWith(Position{X: f, Y: f}, Velocity{DX: 1, DY: 0.5})
		case 2:
			actors.NewEntityWith(Position{X: -f, Y: f}, Health{Current: 100 - i%100, Max: 100})
		default:
			e := actors.NewEntityWith(Position{X: f, Y: 0}, Health{Current: 50, Max: 100})
			kiroku.SetComponent(w, e, Name{Value: fmt.Sprintf("actor-%d", i)})
		}
	}
	return scene
}
