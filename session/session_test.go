package session

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestMessageSessionReplyStampsSessionID(t *testing.T) {
	s := NewMessageSession("sess-1")
	request := &Message{Header: NewHeader("execute_request", "sess-1"), Identities: [][]byte{[]byte("c1")}}

	reply := s.Reply(request, "execute_reply", map[string]any{"status": "ok"})
	assert.Equal(t, reply.Header.Session, "sess-1")
	assert.DeepEqual(t, reply.Identities, request.Identities)
}

func TestMessageSessionBroadcastHasNoIdentitiesAndNilParent(t *testing.T) {
	s := NewMessageSession("sess-1")
	msg := s.Broadcast("pyin", map[string]any{"code": "x=1"}, nil)

	assert.Assert(t, msg.ParentHeader == nil)
	assert.Assert(t, msg.Identities == nil)
	assert.Equal(t, msg.Header.Session, "sess-1")
}

func TestMessageSessionBroadcastCarriesParentHeader(t *testing.T) {
	s := NewMessageSession("sess-1")
	request := &Message{Header: NewHeader("execute_request", "sess-1")}

	msg := s.Broadcast("pyin", map[string]any{"code": "x=1"}, request)

	assert.Assert(t, msg.ParentHeader != nil)
	assert.Equal(t, msg.ParentHeader.MsgID, request.Header.MsgID)
}
