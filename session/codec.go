package session

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec is the abstract wire-serialization capability the core consumes per
// SPEC_FULL §1 ("it does not define how user code is serialized over the
// wire; it consumes a codec interface"). EncodeValue/DecodeValue handle the
// binary buffer payloads (apply_request's callable/args/kwargs/result);
// header/parent_header/metadata/content continue to use encoding/json
// directly, matching the wire format's own "_json" frame naming in §6.
type Codec interface {
	EncodeValue(v any) ([]byte, error)
	DecodeValue(data []byte, out any) error
}

// JSONCodec is a Codec backed by encoding/json, useful for inspecting
// payloads as readable text. cmd/engine passes it to NewWSStream; WSStream's
// own framing does not call its codec.
type JSONCodec struct{}

func (JSONCodec) EncodeValue(v any) ([]byte, error) { return json.Marshal(v) }
func (JSONCodec) DecodeValue(data []byte, out any) error { return json.Unmarshal(data, out) }

// MsgpackCodec is a Codec backed by vmihailenco/msgpack, used for the
// binary buffer payloads described in SPEC_FULL §11 ("Wire codec for binary
// payloads"): compact, self-describing binary framing well suited to
// arbitrary argument/result values that are not naturally JSON (raw byte
// blobs, large numeric arrays).
type MsgpackCodec struct{}

func (MsgpackCodec) EncodeValue(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("session: msgpack encode: %w", err)
	}
	return data, nil
}

func (MsgpackCodec) DecodeValue(data []byte, out any) error {
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("session: msgpack decode: %w", err)
	}
	return nil
}

// EncodeEnvelope marshals header/parent_header/metadata/content to JSON in
// the wire order documented in SPEC_FULL §6.
func EncodeEnvelope(m *Message) (header, parentHeader, metadata, content []byte, err error) {
	header, err = json.Marshal(m.Header)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("session: encode header: %w", err)
	}
	if m.ParentHeader != nil {
		parentHeader, err = json.Marshal(m.ParentHeader)
	} else {
		parentHeader, err = json.Marshal(struct{}{})
	}
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("session: encode parent_header: %w", err)
	}
	metadata, err = json.Marshal(m.Metadata)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("session: encode metadata: %w", err)
	}
	content, err = json.Marshal(m.Content)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("session: encode content: %w", err)
	}
	return header, parentHeader, metadata, content, nil
}

// DecodeEnvelope is the inverse of EncodeEnvelope, used by a Stream
// implementation's frame decoder.
func DecodeEnvelope(header, parentHeader, metadata, content []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(header, &m.Header); err != nil {
		return nil, fmt.Errorf("session: decode header: %w", err)
	}
	var parent Header
	if err := json.Unmarshal(parentHeader, &parent); err == nil && parent.MsgID != "" {
		m.ParentHeader = &parent
	}
	if err := json.Unmarshal(metadata, &m.Metadata); err != nil && len(metadata) > 0 {
		return nil, fmt.Errorf("session: decode metadata: %w", err)
	}
	if err := json.Unmarshal(content, &m.Content); err != nil {
		return nil, fmt.Errorf("session: decode content: %w", err)
	}
	return m, nil
}
