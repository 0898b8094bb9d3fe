package memory

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/soyeahso/wayfarer/internal/domain"
)

// Codec serializes a message list for the fast tier.
type Codec interface {
	Name() string
	Encode(msgs []domain.Message) ([]byte, error)
	Decode(blob []byte) ([]domain.Message, error)
}

// JSONCodec stores history as a JSON array.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(msgs []domain.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return json.Marshal(msgs)
}

func (JSONCodec) Decode(blob []byte) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := json.Unmarshal(blob, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CBORCodec stores history as compact CBOR with integer field keys.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a CBOR codec that keeps nanosecond timestamps.
func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Name() string { return "cbor" }

func (c *CBORCodec) Encode(msgs []domain.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.enc.Marshal(msgs)
}

func (c *CBORCodec) Decode(blob []byte) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.dec.Unmarshal(blob, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CodecByName returns the codec for "json" or "cbor".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown fast tier codec %q", name)
	}
}
