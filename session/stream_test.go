package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gotest.tools/v3/assert"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	msg := &Message{
		Header:  NewHeader("execute_request", "sess-1"),
		Content: map[string]any{"code": "x=1"},
	}
	identities := [][]byte{[]byte("client-1"), []byte("client-2")}
	buffers := [][]byte{[]byte("buf-a"), []byte("buf-b")}

	data, err := encodeFrame(identities, msg, buffers)
	assert.NilError(t, err)

	gotIdentities, gotMsg, err := decodeFrame(data)
	assert.NilError(t, err)
	assert.DeepEqual(t, gotIdentities, identities)
	assert.Equal(t, gotMsg.Header.MsgID, msg.Header.MsgID)
	assert.Equal(t, gotMsg.Content["code"], "x=1")
	assert.DeepEqual(t, gotMsg.Buffers, buffers)
}

func TestDecodeFrameRejectsMissingDelimiter(t *testing.T) {
	_, _, err := decodeFrame([]byte{0, 0, 0, 0})
	assert.ErrorContains(t, err, "delimiter")
}

func TestWSStreamSendAndReceiveOverARealSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan *Message, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverStream := NewWSStream(conn, JSONCodec{}, nil)
		serverStream.OnRecv(func(_ [][]byte, msg *Message) {
			received <- msg
		})
	}))
	defer server.Close()

	addr := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	assert.NilError(t, err)
	clientStream := NewWSStream(conn, JSONCodec{}, nil)
	defer clientStream.Close()

	msg := &Message{Header: NewHeader("execute_request", "sess-1"), Content: map[string]any{"code": "x=1"}}
	assert.NilError(t, clientStream.Send([][]byte{[]byte("c1")}, msg, nil))

	select {
	case got := <-received:
		assert.Equal(t, got.Content["code"], "x=1")
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}
