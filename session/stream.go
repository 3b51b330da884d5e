package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// frameDelimiter separates the identity prefix frames from the framed body
// in the wire sequence described in SPEC_FULL §6:
// […identities…, delimiter, header_json, parent_header_json, metadata_json,
// content_json, …buffers…].
var frameDelimiter = []byte("<CLUSTERKIT|MSG>")

// RecvHandler is invoked with each decoded message the Stream receives.
type RecvHandler func(identities [][]byte, msg *Message)

// ErrHandler is invoked when the Stream's underlying transport reports an
// error (e.g. connection reset).
type ErrHandler func(err error)

// Stream is the message-frame receive/send abstraction over a non-blocking
// transport described in SPEC_FULL §2 ("Stream"), with on_recv, on_err, and
// flush operations. WSStream is the concrete implementation backing every
// shell/control/iopub stream in this runtime. Every inbound frame is
// delivered by calling the handler registered with OnRecv; there is no
// separate pull path, since a real websocket connection only ever pushes.
type Stream interface {
	// OnRecv registers the handler invoked for every decoded inbound frame.
	OnRecv(handler RecvHandler)
	// OnErr registers the handler invoked on transport errors.
	OnErr(handler ErrHandler)
	// Send frames and writes msg with the given identity prefixes.
	Send(identities [][]byte, msg *Message, buffers [][]byte) error
	// Flush blocks until queued outbound writes have been handed to the
	// transport. gorilla/websocket's per-connection writes are synchronous,
	// so Flush on WSStream is a no-op; it exists so callers written against
	// the abstract Stream contract do not need a transport-specific special
	// case. The kernel's handlers, apply_request included, do not call it.
	Flush() error
	// Close closes the underlying transport.
	Close() error
}

// WSStream implements Stream over a single *websocket.Conn.
type WSStream struct {
	conn   *websocket.Conn
	logger *slog.Logger
	codec  Codec

	mu        sync.Mutex
	onRecv    RecvHandler
	onErr     ErrHandler
	inbox     chan inboxFrame
	writeMu   sync.Mutex
	closeOnce sync.Once
}

type inboxFrame struct {
	identities [][]byte
	msg        *Message
}

// NewWSStream wraps conn in a Stream, starting a background read pump that
// decodes inbound frames and either invokes the registered RecvHandler
// (if OnRecv was already called) or buffers them on an internal channel
// until OnRecv registers one, so a frame that arrives in the short window
// between NewWSStream and the caller's OnRecv call is not lost.
func NewWSStream(conn *websocket.Conn, codec Codec, logger *slog.Logger) *WSStream {
	s := &WSStream{
		conn:   conn,
		logger: logger,
		codec:  codec,
		inbox:  make(chan inboxFrame, 256),
	}
	go s.readPump()
	return s
}

func (s *WSStream) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			handler := s.onErr
			s.mu.Unlock()
			if handler != nil {
				handler(err)
			}
			return
		}
		identities, msg, err := decodeFrame(data)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("session: failed to decode inbound frame", "error", err)
			}
			continue
		}

		s.mu.Lock()
		handler := s.onRecv
		s.mu.Unlock()
		if handler != nil {
			handler(identities, msg)
			continue
		}
		select {
		case s.inbox <- inboxFrame{identities: identities, msg: msg}:
		default:
			if s.logger != nil {
				s.logger.Warn("session: inbox full, dropping frame")
			}
		}
	}
}

// OnRecv registers handler. Frames already buffered from before
// registration are drained to it in arrival order.
func (s *WSStream) OnRecv(handler RecvHandler) {
	s.mu.Lock()
	s.onRecv = handler
	s.mu.Unlock()

	for {
		select {
		case f := <-s.inbox:
			handler(f.identities, f.msg)
		default:
			return
		}
	}
}

// OnErr registers handler.
func (s *WSStream) OnErr(handler ErrHandler) {
	s.mu.Lock()
	s.onErr = handler
	s.mu.Unlock()
}

// Send encodes msg per SPEC_FULL §6's frame sequence and writes it as one
// websocket binary message.
func (s *WSStream) Send(identities [][]byte, msg *Message, buffers [][]byte) error {
	data, err := encodeFrame(identities, msg, buffers)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Flush is a no-op: gorilla/websocket's WriteMessage is synchronous per
// connection, so there is no outbound queue to drain.
func (s *WSStream) Flush() error { return nil }

// Close closes the underlying connection exactly once.
func (s *WSStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// encodeFrame serializes identities, msg's envelope parts, and buffers into
// one length-prefixed binary blob: each part is a uint32 length followed by
// its bytes, in the order […identities…, delimiter, header, parent_header,
// metadata, content, …buffers…] from SPEC_FULL §6.
func encodeFrame(identities [][]byte, msg *Message, buffers [][]byte) ([]byte, error) {
	header, parentHeader, metadata, content, err := EncodeEnvelope(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writePart := func(p []byte) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		buf.Write(lenBuf[:])
		buf.Write(p)
	}

	writePart(uint32ToBytes(len(identities)))
	for _, id := range identities {
		writePart(id)
	}
	writePart(frameDelimiter)
	writePart(header)
	writePart(parentHeader)
	writePart(metadata)
	writePart(content)
	writePart(uint32ToBytes(len(buffers)))
	for _, b := range buffers {
		writePart(b)
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (identities [][]byte, msg *Message, err error) {
	r := bytes.NewReader(data)
	readPart := func() ([]byte, error) {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		p := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(r, p); err != nil {
				return nil, err
			}
		}
		return p, nil
	}

	countBytes, err := readPart()
	if err != nil {
		return nil, nil, fmt.Errorf("session: decode identity count: %w", err)
	}
	count := bytesToUint32(countBytes)
	identities = make([][]byte, count)
	for i := range identities {
		identities[i], err = readPart()
		if err != nil {
			return nil, nil, fmt.Errorf("session: decode identity %d: %w", i, err)
		}
	}

	delim, err := readPart()
	if err != nil || !bytes.Equal(delim, frameDelimiter) {
		return nil, nil, fmt.Errorf("session: missing frame delimiter")
	}

	header, err := readPart()
	if err != nil {
		return nil, nil, err
	}
	parentHeader, err := readPart()
	if err != nil {
		return nil, nil, err
	}
	metadata, err := readPart()
	if err != nil {
		return nil, nil, err
	}
	content, err := readPart()
	if err != nil {
		return nil, nil, err
	}

	msg, err = DecodeEnvelope(header, parentHeader, metadata, content)
	if err != nil {
		return nil, nil, err
	}
	msg.Identities = identities

	bufCountBytes, err := readPart()
	if err == nil {
		bufCount := bytesToUint32(bufCountBytes)
		msg.Buffers = make([][]byte, bufCount)
		for i := range msg.Buffers {
			msg.Buffers[i], err = readPart()
			if err != nil {
				return nil, nil, err
			}
		}
	}

	return identities, msg, nil
}

func uint32ToBytes(n int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return b[:]
}

func bytesToUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
