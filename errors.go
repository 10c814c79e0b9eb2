package kiroku

import (
	"reflect"

	"github.com/rotisserie/eris"
)

var (
	// ErrUnregisteredComponent is returned when a scene holds a component type
	// that has no registration.
	ErrUnregisteredComponent = eris.New("component type is not registered")
	// ErrMissingColumn is returned when an archetype declares a component type
	// but one of its chunks has no column for it.
	ErrMissingColumn = eris.New("archetype column not found")
	// ErrColumnType is returned when a column is read as the wrong type.
	ErrColumnType = eris.New("column holds a different component type")
	// ErrSlotOutOfRange is returned when a column index is not occupied.
	ErrSlotOutOfRange = eris.New("column slot out of range")
	// ErrComponentWrite is returned when a serialize function does not write
	// exactly one value.
	ErrComponentWrite = eris.New("component must be written as exactly one value")
)

func errColumnType(got, want reflect.Type) error {
	return eris.Wrapf(ErrColumnType, "column type %v, requested %v", got, want)
}

func errSlotOutOfRange(index, n int) error {
	return eris.Wrapf(ErrSlotOutOfRange, "index %d, occupied %d", index, n)
}
