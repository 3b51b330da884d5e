package kernel

import (
	"sync"

	"github.com/corvus-labs/clusterkit/session"
)

// fakeStream is an in-memory session.Stream used to drive the kernel's
// dispatch loop in tests without a real websocket connection, following the
// "fake over mock" texture called for in SPEC_FULL §10. Like WSStream it
// only ever pushes received frames to the registered OnRecv handler; it has
// no separate pull path to match.
type fakeStream struct {
	mu     sync.Mutex
	onRecv session.RecvHandler
	onErr  session.ErrHandler
	sent   []fakeFrame
	closed bool
}

type fakeFrame struct {
	identities [][]byte
	msg        *session.Message
	buffers    [][]byte
}

func newFakeStream() *fakeStream {
	return &fakeStream{}
}

func (f *fakeStream) OnRecv(handler session.RecvHandler) {
	f.mu.Lock()
	f.onRecv = handler
	f.mu.Unlock()
}

func (f *fakeStream) OnErr(handler session.ErrHandler) {
	f.mu.Lock()
	f.onErr = handler
	f.mu.Unlock()
}

func (f *fakeStream) Send(identities [][]byte, msg *session.Message, buffers [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fakeFrame{identities: identities, msg: msg, buffers: buffers})
	return nil
}

func (f *fakeStream) Flush() error { return nil }

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

// deliver feeds msg directly through the registered OnRecv handler, as if it
// had just arrived on the wire. Once Wire has run, that handler only
// enqueues onto the kernel's dispatch channels, so deliver returns well
// before the loop goroutine actually dispatches the frame; callers that
// need the reply must wait for it (see waitForSentCount).
func (f *fakeStream) deliver(identities [][]byte, msg *session.Message) {
	f.mu.Lock()
	handler := f.onRecv
	f.mu.Unlock()
	handler(identities, msg)
}

func (f *fakeStream) lastSent() *fakeFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return &f.sent[len(f.sent)-1]
}

func (f *fakeStream) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
