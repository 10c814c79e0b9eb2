// Package protoenc builds structured output as a google.protobuf.Value tree
// and writes its deterministic binary encoding on Flush.
package protoenc

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrState is returned when calls arrive in an order that cannot form a
// single Value.
var ErrState = eris.New("protoenc: invalid call sequence")

type frame struct {
	list  *structpb.ListValue
	obj   *structpb.Struct
	key   string
	keyed bool
}

// Encoder accumulates a structpb.Value. Struct fields end up in a map, so
// field order is not preserved; Flush sorts keys for stable output.
type Encoder struct {
	w     io.Writer
	root  *structpb.Value
	stack []*frame
}

// New returns an Encoder writing to w.
func New(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) attach(v *structpb.Value) error {
	if len(e.stack) == 0 {
		if e.root != nil {
			return eris.Wrap(ErrState, "top-level value already written")
		}
		e.root = v
		return nil
	}
	top := e.stack[len(e.stack)-1]
	if top.obj != nil {
		if !top.keyed {
			return eris.Wrap(ErrState, "struct value without field name")
		}
		top.obj.Fields[top.key] = v
		top.keyed = false
		return nil
	}
	top.list.Values = append(top.list.Values, v)
	return nil
}

// BeginSeq opens a ListValue.
func (e *Encoder) BeginSeq(n int) error {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, max(n, 0))}
	if err := e.attach(structpb.NewListValue(list)); err != nil {
		return err
	}
	e.stack = append(e.stack, &frame{list: list})
	return nil
}

// EndSeq closes the current ListValue.
func (e *Encoder) EndSeq() error {
	if len(e.stack) == 0 || e.stack[len(e.stack)-1].list == nil {
		return eris.Wrap(ErrState, "unexpected end of sequence")
	}
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

// BeginStruct opens a Struct.
func (e *Encoder) BeginStruct(_ string, fields int) error {
	obj := &structpb.Struct{Fields: make(map[string]*structpb.Value, fields)}
	if err := e.attach(structpb.NewStructValue(obj)); err != nil {
		return err
	}
	e.stack = append(e.stack, &frame{obj: obj})
	return nil
}

// EndStruct closes the current Struct.
func (e *Encoder) EndStruct() error {
	if len(e.stack) == 0 {
		return eris.Wrap(ErrState, "unexpected end of struct")
	}
	top := e.stack[len(e.stack)-1]
	if top.obj == nil || top.keyed {
		return eris.Wrap(ErrState, "unexpected end of struct")
	}
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

// Field sets the key for the next value.
func (e *Encoder) Field(name string) error {
	if len(e.stack) == 0 {
		return eris.Wrapf(ErrState, "field %q outside struct", name)
	}
	top := e.stack[len(e.stack)-1]
	if top.obj == nil || top.keyed {
		return eris.Wrapf(ErrState, "unexpected field %q", name)
	}
	top.key = name
	top.keyed = true
	return nil
}

// Encode converts v to a Value through its JSON form, so json struct tags
// decide field names.
func (e *Encoder) Encode(v any) error {
	val, err := toValue(v)
	if err != nil {
		return err
	}
	return e.attach(val)
}

func toValue(v any) (*structpb.Value, error) {
	bz, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "protoenc: marshal value")
	}
	var generic any
	if err := json.Unmarshal(bz, &generic); err != nil {
		return nil, eris.Wrap(err, "protoenc: normalise value")
	}
	val, err := structpb.NewValue(generic)
	if err != nil {
		return nil, eris.Wrap(err, "protoenc: convert value")
	}
	return val, nil
}

// Value returns the root Value built so far.
func (e *Encoder) Value() *structpb.Value { return e.root }

// Flush writes the binary encoding of the root Value.
func (e *Encoder) Flush() error {
	if e.root == nil || len(e.stack) != 0 {
		return eris.Wrap(ErrState, "value incomplete")
	}
	bz, err := proto.MarshalOptions{Deterministic: true}.Marshal(e.root)
	if err != nil {
		return eris.Wrap(err, "protoenc: marshal")
	}
	_, err = e.w.Write(bz)
	return err
}
