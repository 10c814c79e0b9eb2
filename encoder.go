package kiroku

import (
	"github.com/rotisserie/eris"
)

// Encoder is a structured output sink. Implementations map the calls onto a
// concrete wire format.
//
// Every value is either a scalar or nested value written with Encode, a
// sequence opened with BeginSeq, or a struct opened with BeginStruct. Inside a
// struct each value is preceded by exactly one Field call.
type Encoder interface {
	// BeginSeq opens a sequence of n elements; n < 0 means unknown length.
	BeginSeq(n int) error
	EndSeq() error
	// BeginStruct opens a record with the given type name and field count.
	BeginStruct(name string, fields int) error
	Field(name string) error
	EndStruct() error
	// Encode writes v as a single value.
	Encode(v any) error
}

// Flusher is implemented by encoders that buffer output until the top-level
// value is complete.
type Flusher interface {
	Flush() error
}

// componentSlot hands an Encoder to one serialize function and makes sure it
// writes exactly one top-level value.
type componentSlot struct {
	enc    Encoder
	depth  int
	writes int
}

var _ Encoder = (*componentSlot)(nil)

func (s *componentSlot) open() error {
	if s.depth == 0 {
		s.writes++
		if s.writes > 1 {
			return eris.Wrap(ErrComponentWrite, "second value written")
		}
	}
	s.depth++
	return nil
}

func (s *componentSlot) close() error {
	if s.depth == 0 {
		return eris.Wrap(ErrComponentWrite, "close without open")
	}
	s.depth--
	return nil
}

func (s *componentSlot) BeginSeq(n int) error {
	if err := s.open(); err != nil {
		return err
	}
	return s.enc.BeginSeq(n)
}

func (s *componentSlot) EndSeq() error {
	if err := s.close(); err != nil {
		return err
	}
	return s.enc.EndSeq()
}

func (s *componentSlot) BeginStruct(name string, fields int) error {
	if err := s.open(); err != nil {
		return err
	}
	return s.enc.BeginStruct(name, fields)
}

func (s *componentSlot) Field(name string) error {
	return s.enc.Field(name)
}

func (s *componentSlot) EndStruct() error {
	if err := s.close(); err != nil {
		return err
	}
	return s.enc.EndStruct()
}

func (s *componentSlot) Encode(v any) error {
	if s.depth == 0 {
		s.writes++
		if s.writes > 1 {
			return eris.Wrap(ErrComponentWrite, "second value written")
		}
	}
	return s.enc.Encode(v)
}

// done checks the slot after the serialize function returned successfully.
func (s *componentSlot) done() error {
	switch {
	case s.writes == 0:
		return eris.Wrap(ErrComponentWrite, "no value written")
	case s.depth != 0:
		return eris.Wrap(ErrComponentWrite, "value left open")
	}
	return nil
}
