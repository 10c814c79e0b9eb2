// Package encoding selects a concrete kiroku.Encoder by format name.
package encoding

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/edwinsyarief/kiroku"
	"github.com/edwinsyarief/kiroku/encoding/jsonenc"
	"github.com/edwinsyarief/kiroku/encoding/protoenc"
	"github.com/edwinsyarief/kiroku/encoding/yamlenc"
)

// Format names a wire format.
type Format string

const (
	// JSON is compact JSON streamed by jsonenc.
	JSON Format = "json"
	// YAML is a block-style YAML document built by yamlenc.
	YAML Format = "yaml"
	// Proto is a google.protobuf.Value in deterministic binary form, built by
	// protoenc.
	Proto Format = "proto"
)

// ErrUnknownFormat is returned for format names that have no encoder.
var ErrUnknownFormat = eris.New("unknown encoding format")

// Formats lists every supported format.
func Formats() []Format {
	return []Format{JSON, YAML, Proto}
}

// ParseFormat parses a case-insensitive format name. "yml" and "pb" are
// accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "proto", "pb", "protobuf":
		return Proto, nil
	}
	return "", eris.Wrapf(ErrUnknownFormat, "%q", s)
}

// Extension returns the file extension conventionally used for f.
func (f Format) Extension() string {
	switch f {
	case YAML:
		return ".yaml"
	case Proto:
		return ".pb"
	}
	return ".json"
}

// New returns an Encoder for f writing to w.
func New(f Format, w io.Writer) (kiroku.Encoder, error) {
	switch f {
	case JSON:
		return jsonenc.New(w), nil
	case YAML:
		return yamlenc.New(w), nil
	case Proto:
		return protoenc.New(w), nil
	}
	return nil, eris.Wrapf(ErrUnknownFormat, "%q", string(f))
}
