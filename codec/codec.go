// Package codec encodes task and result batches for transports.
package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the serialization contract for batches crossing a transport.
type Codec interface {
	// Name returns the codec identifier used for negotiation.
	Name() string

	// ContentType returns the MIME type of encoded payloads.
	ContentType() string

	// Marshal converts a Go value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into target.
	Unmarshal(data []byte, target any) error
}

// Codec names for negotiation.
const (
	NameJSON    = "json"
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
)

// ByName returns the codec registered under name. Unknown and empty names
// fall back to JSON.
func ByName(name string) Codec {
	switch name {
	case NameCBOR:
		return cborCodec
	case NameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// IsText reports whether c produces UTF-8 text suitable for text frames.
func IsText(c Codec) bool {
	return c.Name() == NameJSON
}

// =============================================================================
// JSON
// =============================================================================

// JSONCodec uses encoding/json.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return NameJSON }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal failed: %w", err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("data is empty")
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}
	return nil
}

// =============================================================================
// CBOR
// =============================================================================

// CBORCodec encodes deterministically (canonical options) and decodes
// untyped maps as map[string]any so decoded args bind like JSON ones.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var cborCodec = mustCBOR()

func mustCBOR() *CBORCodec {
	c, err := NewCBOR()
	if err != nil {
		panic(err)
	}
	return c
}

// NewCBOR builds a CBORCodec.
func NewCBOR() (*CBORCodec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{enc: em, dec: dm}, nil
}

func (c *CBORCodec) Name() string        { return NameCBOR }
func (c *CBORCodec) ContentType() string { return "application/cbor" }

func (c *CBORCodec) Marshal(v any) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal failed: %w", err)
	}
	return data, nil
}

func (c *CBORCodec) Unmarshal(data []byte, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("data is empty")
	}
	if err := c.dec.Unmarshal(data, target); err != nil {
		return fmt.Errorf("cbor unmarshal failed: %w", err)
	}
	return nil
}

// =============================================================================
// MessagePack
// =============================================================================

// MsgpackCodec uses github.com/vmihailenco/msgpack/v5.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string        { return NameMsgpack }
func (MsgpackCodec) ContentType() string { return "application/msgpack" }

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal failed: %w", err)
	}
	return data, nil
}

func (MsgpackCodec) Unmarshal(data []byte, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("data is empty")
	}
	if err := msgpack.Unmarshal(data, target); err != nil {
		return fmt.Errorf("msgpack unmarshal failed: %w", err)
	}
	return nil
}
