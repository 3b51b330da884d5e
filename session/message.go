// Package session frames and unframes multipart messages with identity
// prefixing, and encapsulates parent/child message linking, per SPEC_FULL
// §3 ("Message") and §6 ("Message envelope").
package session

import (
	"time"

	"github.com/google/uuid"
)

// Header carries message identity and routing metadata common to every
// request and reply.
type Header struct {
	MsgID    string    `json:"msg_id"`
	MsgType  string    `json:"msg_type"`
	Date     time.Time `json:"date"`
	Username string    `json:"username,omitempty"`
	Session  string    `json:"session,omitempty"`
}

// NewHeader mints a fresh header for msgType, stamping a fresh msg_id and
// the current time.
func NewHeader(msgType, session string) Header {
	return Header{
		MsgID:   uuid.NewString(),
		MsgType: msgType,
		Date:    time.Now().UTC(),
		Session: session,
	}
}

// Message is the decoded request/reply envelope described in SPEC_FULL §3.
type Message struct {
	Header       Header         `json:"header"`
	ParentHeader *Header        `json:"parent_header,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Content      map[string]any `json:"content"`
	Buffers      [][]byte       `json:"-"`
	Identities   [][]byte       `json:"-"`
}

// ReplyTypeFor derives a reply's msg_type from its request's msg_type:
// strip the segment after the last underscore and append "_reply", per
// SPEC_FULL §4.2.1 ("reply_type derived from msg_type: prefix before `_` +
// `_reply`"). execute_request -> execute_reply, complete_request ->
// complete_reply, and so on.
func ReplyTypeFor(requestMsgType string) string {
	for i := len(requestMsgType) - 1; i >= 0; i-- {
		if requestMsgType[i] == '_' {
			return requestMsgType[:i] + "_reply"
		}
	}
	return requestMsgType + "_reply"
}

// NewReply builds a reply Message to request: parent_header equals the
// request's header, identities equal the request's identities, and msg_id
// is freshly minted, per the invariants in SPEC_FULL §3 and §8 (3, 4).
func NewReply(request *Message, msgType string, content map[string]any) *Message {
	parent := request.Header
	return &Message{
		Header:       NewHeader(msgType, request.Header.Session),
		ParentHeader: &parent,
		Content:      content,
		Identities:   request.Identities,
	}
}
