package kernel

import "github.com/vmihailenco/msgpack/v5"

// MsgpackApplyCodec (de)serializes apply_request payloads and results.
// msgpack is already the codec session.MsgpackCodec uses for binary buffer
// payloads (SPEC_FULL §11), so apply_request buffers, which carry binary
// payloads rather than JSON-friendly text, use the same library rather than
// introducing a second serialization format.
type MsgpackApplyCodec struct{}

func (MsgpackApplyCodec) Decode(data []byte, out any) error {
	return msgpack.Unmarshal(data, out)
}

func (MsgpackApplyCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}
