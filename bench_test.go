package kiroku_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/edwinsyarief/kiroku"
	"github.com/edwinsyarief/kiroku/encoding/jsonenc"
)

var benchSizes = []int{1000, 10000, 100000}

func sizeName(size int) string {
	if size >= 1000000 {
		return fmt.Sprintf("%dM", size/1000000)
	}
	return fmt.Sprintf("%dK", size/1000)
}

// go test -run ^$ -bench ^BenchmarkCreateWorld$ . -count 1
func BenchmarkCreateWorld(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				_ = kiroku.NewWorld(size)
			}
			b.ReportAllocs()
		})
	}
}

// go test -run ^$ -bench ^BenchmarkBuilderNewEntitiesWith$ . -count 1
func BenchmarkBuilderNewEntitiesWith(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				b.StopTimer()
				w := kiroku.NewWorld(size)
				builder := kiroku.NewBuilder[Position](w)
				b.StartTimer()
				builder.NewEntitiesWith(size, Position{X: 1, Y: 2})
			}
			b.ReportAllocs()
		})
	}
}

// go test -run ^$ -bench ^BenchmarkSetComponentMove$ . -count 1
func BenchmarkSetComponentMove(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				b.StopTimer()
				w := kiroku.NewWorld(size)
				ents := kiroku.NewBuilder[Position](w).NewEntities(size)
				b.StartTimer()
				for _, e := range ents {
					kiroku.SetComponent(w, e, Velocity{DX: 1})
				}
			}
			b.ReportAllocs()
		})
	}
}

// go test -run ^$ -bench ^BenchmarkSerializeJSON$ . -count 1
func BenchmarkSerializeJSON(b *testing.B) {
	reg := kiroku.NewRegistry(kiroku.WithRegistryLogger(zerolog.Nop()))
	kiroku.Register[Position](reg)
	kiroku.Register[Velocity](reg)
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			scene := kiroku.NewScene(size)
			pair := kiroku.NewBuilder2[Position, Velocity](scene.World())
			for i := range size {
				pair.NewEntityWith(Position{X: float32(i)}, Velocity{DY: float32(i)})
			}
			s := kiroku.NewSerializableScene(scene, reg, kiroku.WithLogger(zerolog.Nop()))
			for b.Loop() {
				if err := s.Serialize(jsonenc.New(io.Discard)); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportAllocs()
		})
	}
}
