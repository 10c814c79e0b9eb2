// Package yamlenc builds structured output as a yaml.v3 node tree and writes
// it as a YAML document on Flush. Values are converted through their JSON form,
// so json struct tags decide key names as they do for the other encoders.
package yamlenc

import (
	"bytes"
	"io"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrState is returned when calls arrive in an order that cannot form a YAML
// document.
var ErrState = eris.New("yamlenc: invalid call sequence")

type frame struct {
	node  *yaml.Node
	keyed bool
}

// Encoder accumulates a node tree. Nothing is written until Flush.
type Encoder struct {
	w      io.Writer
	indent int
	root   *yaml.Node
	stack  []*frame
}

// New returns an Encoder writing to w with a two-space indent.
func New(w io.Writer) *Encoder {
	return &Encoder{w: w, indent: 2}
}

// attach adds n to the current container, or makes it the root.
func (e *Encoder) attach(n *yaml.Node) error {
	if len(e.stack) == 0 {
		if e.root != nil {
			return eris.Wrap(ErrState, "top-level value already written")
		}
		e.root = n
		return nil
	}
	top := e.stack[len(e.stack)-1]
	if top.node.Kind == yaml.MappingNode {
		if !top.keyed {
			return eris.Wrap(ErrState, "mapping value without field name")
		}
		top.keyed = false
	}
	top.node.Content = append(top.node.Content, n)
	return nil
}

func (e *Encoder) open(kind yaml.Kind, tag string) error {
	n := &yaml.Node{Kind: kind, Tag: tag}
	if err := e.attach(n); err != nil {
		return err
	}
	e.stack = append(e.stack, &frame{node: n})
	return nil
}

func (e *Encoder) close(kind yaml.Kind) error {
	if len(e.stack) == 0 {
		return eris.Wrap(ErrState, "nothing to close")
	}
	top := e.stack[len(e.stack)-1]
	if top.node.Kind != kind || top.keyed {
		return eris.Wrap(ErrState, "mismatched close")
	}
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

// BeginSeq opens a sequence node.
func (e *Encoder) BeginSeq(int) error { return e.open(yaml.SequenceNode, "!!seq") }

// EndSeq closes the current sequence node.
func (e *Encoder) EndSeq() error { return e.close(yaml.SequenceNode) }

// BeginStruct opens a mapping node.
func (e *Encoder) BeginStruct(string, int) error { return e.open(yaml.MappingNode, "!!map") }

// EndStruct closes the current mapping node.
func (e *Encoder) EndStruct() error { return e.close(yaml.MappingNode) }

// Field adds a mapping key.
func (e *Encoder) Field(name string) error {
	if len(e.stack) == 0 {
		return eris.Wrapf(ErrState, "field %q outside mapping", name)
	}
	top := e.stack[len(e.stack)-1]
	if top.node.Kind != yaml.MappingNode || top.keyed {
		return eris.Wrapf(ErrState, "unexpected field %q", name)
	}
	top.node.Content = append(top.node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name})
	top.keyed = true
	return nil
}

// Encode converts v into a node and adds it.
func (e *Encoder) Encode(v any) error {
	n, err := toNode(v)
	if err != nil {
		return err
	}
	return e.attach(n)
}

// toNode marshals v with go-json and parses the result as YAML, which keeps
// json key names and field order.
func toNode(v any) (*yaml.Node, error) {
	bz, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "yamlenc: marshal value")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(bz, &doc); err != nil {
		return nil, eris.Wrap(err, "yamlenc: parse value")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, eris.Wrapf(ErrState, "value %T produced no node", v)
	}
	n := doc.Content[0]
	blockStyle(n)
	return n, nil
}

// blockStyle drops the flow and quoting styles the JSON text was parsed with.
// Scalar tags are kept, so strings that look like numbers stay quoted.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// Node returns the root node built so far.
func (e *Encoder) Node() *yaml.Node { return e.root }

// Flush renders the document and writes it to the underlying writer in one
// call. Errors from that writer are returned unchanged.
func (e *Encoder) Flush() error {
	if e.root == nil || len(e.stack) != 0 {
		return eris.Wrap(ErrState, "document incomplete")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(e.indent)
	if err := enc.Encode(e.root); err != nil {
		return eris.Wrap(err, "yamlenc: render document")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "yamlenc: render document")
	}
	_, err := e.w.Write(buf.Bytes())
	return err
}
