// Package jsonenc writes structured output as compact JSON. Scalar and nested
// values are marshaled with goccy/go-json; sequence and record framing is
// streamed directly to the writer.
package jsonenc

import (
	"bufio"
	"io"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// ErrState is returned when calls arrive in an order that cannot form valid
// JSON.
var ErrState = eris.New("jsonenc: invalid call sequence")

type frameKind uint8

const (
	seqFrame frameKind = iota
	structFrame
)

type frame struct {
	kind  frameKind
	n     int  // elements or fields written so far
	keyed bool // a field name is waiting for its value
}

// Encoder streams JSON to an io.Writer through a 4 KiB buffer. Large documents
// reach the writer while they are being written, so a failed pass can leave
// partial output behind. Only a successful Flush means the document is
// complete.
type Encoder struct {
	w     *bufio.Writer
	stack []frame
	done  bool
}

// New returns an Encoder writing to w.
func New(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w), stack: make([]frame, 0, 8)}
}

func (e *Encoder) top() *frame {
	if len(e.stack) == 0 {
		return nil
	}
	return &e.stack[len(e.stack)-1]
}

// beforeValue writes the separator a new value needs in its container.
func (e *Encoder) beforeValue() error {
	top := e.top()
	if top == nil {
		if e.done {
			return eris.Wrap(ErrState, "top-level value already written")
		}
		return nil
	}
	switch top.kind {
	case seqFrame:
		if top.n > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		top.n++
	case structFrame:
		if !top.keyed {
			return eris.Wrap(ErrState, "struct value without field name")
		}
		top.keyed = false
	}
	return nil
}

func (e *Encoder) afterValue() {
	if len(e.stack) == 0 {
		e.done = true
	}
}

func (e *Encoder) open(kind frameKind, delim byte) error {
	if err := e.beforeValue(); err != nil {
		return err
	}
	if err := e.w.WriteByte(delim); err != nil {
		return err
	}
	e.stack = append(e.stack, frame{kind: kind})
	return nil
}

func (e *Encoder) close(kind frameKind, delim byte) error {
	top := e.top()
	if top == nil || top.kind != kind || top.keyed {
		return eris.Wrapf(ErrState, "unexpected %q", delim)
	}
	if err := e.w.WriteByte(delim); err != nil {
		return err
	}
	e.stack = e.stack[:len(e.stack)-1]
	e.afterValue()
	return nil
}

// BeginSeq opens a JSON array. The length hint is not needed for JSON.
func (e *Encoder) BeginSeq(int) error { return e.open(seqFrame, '[') }

// EndSeq closes the current array.
func (e *Encoder) EndSeq() error { return e.close(seqFrame, ']') }

// BeginStruct opens a JSON object. The type name is not written.
func (e *Encoder) BeginStruct(string, int) error { return e.open(structFrame, '{') }

// EndStruct closes the current object.
func (e *Encoder) EndStruct() error { return e.close(structFrame, '}') }

// Field writes an object key. The next call must write its value.
func (e *Encoder) Field(name string) error {
	top := e.top()
	if top == nil || top.kind != structFrame || top.keyed {
		return eris.Wrapf(ErrState, "unexpected field %q", name)
	}
	if top.n > 0 {
		if err := e.w.WriteByte(','); err != nil {
			return err
		}
	}
	key, err := json.Marshal(name)
	if err != nil {
		return eris.Wrapf(err, "jsonenc: field %q", name)
	}
	if _, err := e.w.Write(key); err != nil {
		return err
	}
	if err := e.w.WriteByte(':'); err != nil {
		return err
	}
	top.n++
	top.keyed = true
	return nil
}

// Encode marshals v and writes it as one value.
func (e *Encoder) Encode(v any) error {
	if err := e.beforeValue(); err != nil {
		return err
	}
	bz, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "jsonenc: marshal value")
	}
	if _, err := e.w.Write(bz); err != nil {
		return err
	}
	e.afterValue()
	return nil
}

// Flush writes buffered output. It fails if a sequence or object is still
// open.
func (e *Encoder) Flush() error {
	if len(e.stack) != 0 {
		return eris.Wrapf(ErrState, "%d containers left open", len(e.stack))
	}
	return e.w.Flush()
}
