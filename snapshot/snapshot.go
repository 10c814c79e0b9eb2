// Package snapshot captures serialized scenes in memory, compares them and
// persists them.
package snapshot

import (
	"bytes"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/wI2L/jsondiff"

	"github.com/edwinsyarief/kiroku"
	"github.com/edwinsyarief/kiroku/encoding"
)

var (
	// ErrChecksumMismatch is returned when Data no longer hashes to Checksum.
	ErrChecksumMismatch = eris.New("snapshot checksum mismatch")
	// ErrFormat is returned by operations that only work on some formats.
	ErrFormat = eris.New("snapshot format not supported for this operation")
	// ErrNotFound is returned by a Store that has no snapshot with the
	// requested ID.
	ErrNotFound = eris.New("snapshot not found")
)

// Snapshot is one serialized scene.
type Snapshot struct {
	ID        uuid.UUID
	Format    encoding.Format
	Entities  int
	Checksum  uint64
	CreatedAt time.Time
	Data      []byte
}

// Capture serializes scene in the given format and stamps the result with a
// fresh ID, the creation time and an xxhash64 checksum of the bytes.
//
// Parameters:
//   - scene, registry: Passed to kiroku.NewSerializableScene.
//   - format: One of encoding.Formats.
//   - opts: Options for the serialization pass.
//
// Returns:
//   - The snapshot, or the serialization error. Nothing is returned on error.
func Capture(scene *kiroku.Scene, registry *kiroku.Registry, format encoding.Format, opts ...kiroku.Option) (*Snapshot, error) {
	var buf bytes.Buffer
	enc, err := encoding.New(format, &buf)
	if err != nil {
		return nil, err
	}
	if err := kiroku.NewSerializableScene(scene, registry, opts...).Serialize(enc); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	return &Snapshot{
		ID:        uuid.New(),
		Format:    format,
		Entities:  scene.EntityCount(),
		Checksum:  xxhash.Sum64(data),
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Verify recomputes the checksum of Data.
func (s *Snapshot) Verify() error {
	if got := xxhash.Sum64(s.Data); got != s.Checksum {
		return eris.Wrapf(ErrChecksumMismatch, "snapshot %s: stored %x, computed %x", s.ID, s.Checksum, got)
	}
	return nil
}

// Equal reports whether two snapshots hold identical bytes in the same format.
func Equal(a, b *Snapshot) bool {
	return a.Format == b.Format && a.Checksum == b.Checksum && bytes.Equal(a.Data, b.Data)
}

// Diff returns the JSON patch that turns a into b. Both snapshots must be
// JSON.
func Diff(a, b *Snapshot) (jsondiff.Patch, error) {
	if a.Format != encoding.JSON || b.Format != encoding.JSON {
		return nil, eris.Wrapf(ErrFormat, "diff needs json, got %s and %s", a.Format, b.Format)
	}
	patch, err := jsondiff.CompareJSON(a.Data, b.Data)
	if err != nil {
		return nil, eris.Wrap(err, "failed to compare snapshots")
	}
	return patch, nil
}
