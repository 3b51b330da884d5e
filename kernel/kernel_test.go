package kernel

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gotest.tools/v3/assert"

	"github.com/corvus-labs/clusterkit/launcher"
	"github.com/corvus-labs/clusterkit/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKernel(t *testing.T) (*Kernel, *fakeStream, *fakeStream) {
	t.Helper()
	shell := newFakeStream()
	control := newFakeStream()
	iopub := newFakeStream()

	k := New(Config{
		Ident:         "engine-0",
		IntID:         0,
		SessionID:     "sess-1",
		ShellStreams:  []session.Stream{shell},
		ControlStream: control,
		IopubStream:   iopub,
		Loop:          launcher.NewLoop(),
		Logger:        testLogger(),
	})
	k.Wire()
	return k, shell, iopub
}

func requestMsg(msgType string, content map[string]any) *session.Message {
	return &session.Message{
		Header:  session.NewHeader(msgType, "sess-1"),
		Content: content,
	}
}

// waitForSentCount polls stream until it has sent at least n frames, since
// Wire's loop goroutine now dispatches asynchronously relative to deliver.
func waitForSentCount(t *testing.T, stream *fakeStream, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stream.sentCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent frames, got %d", n, stream.sentCount())
}

func TestExecuteRequestOk(t *testing.T) {
	k, shell, iopub := newTestKernel(t)

	msg := requestMsg("execute_request", map[string]any{"code": "x=2+3"})
	shell.deliver([][]byte{[]byte("client-1")}, msg)
	waitForSentCount(t, shell, 1)

	pyin := iopub.lastSent()
	assert.Assert(t, pyin != nil)
	assert.Equal(t, pyin.msg.Header.MsgType, "pyin")
	assert.Equal(t, pyin.msg.Content["code"], "x=2+3")
	assert.Assert(t, pyin.msg.ParentHeader != nil)
	assert.Equal(t, pyin.msg.ParentHeader.MsgID, msg.Header.MsgID)

	reply := shell.lastSent()
	assert.Assert(t, reply != nil)
	assert.Equal(t, reply.msg.Header.MsgType, "execute_reply")
	assert.Equal(t, reply.msg.Content["status"], "ok")
	assert.DeepEqual(t, reply.identities, [][]byte{[]byte("client-1")})
	assert.Equal(t, reply.msg.ParentHeader.MsgID, msg.Header.MsgID)

	v, ok := k.UserNS.Get("x")
	assert.Assert(t, ok)
	assert.Equal(t, v, 5)
}

func TestExecuteRequestError(t *testing.T) {
	k, shell, iopub := newTestKernel(t)

	msg := requestMsg("execute_request", map[string]any{"code": "x =="})
	shell.deliver([][]byte{[]byte("client-1")}, msg)
	waitForSentCount(t, shell, 1)

	reply := shell.lastSent()
	assert.Assert(t, reply != nil)
	assert.Equal(t, reply.msg.Content["status"], "error")

	sentCount := 0
	for _, f := range iopub.sent {
		if f.msg.Header.MsgType == "pyerr" {
			sentCount++
		}
	}
	assert.Assert(t, sentCount >= 1)
	_ = k
}

func TestAbortByID(t *testing.T) {
	k, shell, _ := newTestKernel(t)

	msgA := requestMsg("execute_request", map[string]any{"code": "x=1"})
	msgB := requestMsg("execute_request", map[string]any{"code": "y=2"})

	k.Aborted.Add(msgA.Header.MsgID)

	shell.deliver([][]byte{[]byte("c1")}, msgA)
	waitForSentCount(t, shell, 1)
	replyA := shell.lastSent()
	assert.Equal(t, replyA.msg.Content["status"], "aborted")

	shell.deliver([][]byte{[]byte("c2")}, msgB)
	waitForSentCount(t, shell, 2)
	replyB := shell.lastSent()
	assert.Equal(t, replyB.msg.Content["status"], "ok")

	_, ok := k.UserNS.Get("y")
	assert.Assert(t, ok)
	_, ok = k.UserNS.Get("x")
	assert.Assert(t, !ok)
}

func TestClearRequestReplaysExecLines(t *testing.T) {
	shell := newFakeStream()
	control := newFakeStream()
	iopub := newFakeStream()
	k := New(Config{
		Ident:         "engine-0",
		SessionID:     "sess-1",
		ShellStreams:  []session.Stream{shell},
		ControlStream: control,
		IopubStream:   iopub,
		Loop:          launcher.NewLoop(),
		Logger:        testLogger(),
		ExecLines:     []string{"z=9"},
	})
	k.Wire()

	shell.deliver([][]byte{[]byte("c1")}, requestMsg("execute_request", map[string]any{"code": "x=1"}))
	// Wait for the execute_reply before sending clear_request: control is
	// always dispatched ahead of any shell frame still queued when it
	// arrives, so clear_request must not race past the execute it is meant
	// to follow.
	waitForSentCount(t, shell, 1)

	control.deliver([][]byte{[]byte("c1")}, requestMsg("clear_request", map[string]any{}))
	waitForSentCount(t, control, 1)
	reply := control.lastSent()
	assert.Equal(t, reply.msg.Content["status"], "ok")

	_, ok := k.UserNS.Get("x")
	assert.Assert(t, !ok)
	v, ok := k.UserNS.Get("z")
	assert.Assert(t, ok)
	assert.Equal(t, v, 9)
}

func TestApplyRequestCleansUpSyntheticNames(t *testing.T) {
	k, shell, _ := newTestKernel(t)
	// n arrives as whatever concrete numeric kind the wire codec chose for
	// the decoded value, so accept it as any rather than pin a kind.
	k.Callables.Register("double", func(n any) any {
		v := reflect.ValueOf(n)
		return v.Int() * 2
	})

	payload := ApplyPayload{FuncName: "double", Args: []any{int64(21)}}
	encoded, err := msgpack.Marshal(payload)
	assert.NilError(t, err)

	msg := requestMsg("apply_request", map[string]any{})
	msg.Buffers = [][]byte{encoded}
	shell.deliver([][]byte{[]byte("c1")}, msg)
	waitForSentCount(t, shell, 1)

	reply := shell.lastSent()
	assert.Equal(t, reply.msg.Content["status"], "ok")
	assert.Assert(t, len(reply.buffers) == 1)

	var result int64
	assert.NilError(t, msgpack.Unmarshal(reply.buffers[0], &result))
	assert.Equal(t, result, int64(42))

	prefix := "_" + strings.ReplaceAll(msg.Header.MsgID, "-", "") + "_"
	for _, suffix := range []string{"f", "args", "kwargs", "result"} {
		_, ok := k.UserNS.Get(prefix + suffix)
		assert.Assert(t, !ok)
	}
}

func TestShutdownRequestSchedulesOnShutdown(t *testing.T) {
	control := newFakeStream()
	shell := newFakeStream()
	iopub := newFakeStream()
	called := make(chan struct{})
	k := New(Config{
		Ident:         "engine-0",
		SessionID:     "sess-1",
		ShellStreams:  []session.Stream{shell},
		ControlStream: control,
		IopubStream:   iopub,
		Loop:          launcher.NewLoop(),
		Logger:        testLogger(),
		OnShutdown:    func() { close(called) },
	})
	k.Wire()

	control.deliver([][]byte{[]byte("c1")}, requestMsg("shutdown_request", map[string]any{}))
	waitForSentCount(t, control, 1)
	reply := control.lastSent()
	assert.Equal(t, reply.msg.Content["status"], "ok")

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("OnShutdown was not invoked within the grace period")
	}
}

// TestAbortQueuesDrainsThePendingShellChannel exercises abort_queues against
// the real queue every stream's OnRecv callback feeds (k.shellChan), rather
// than a test-only pull path a WSStream could never produce: frames are
// queued exactly the way Wire's OnRecv closure queues them, and the kernel
// is never started (no Wire/run), so abortQueues is the only consumer and
// the drain is deterministic.
func TestAbortQueuesDrainsThePendingShellChannel(t *testing.T) {
	shell := newFakeStream()
	control := newFakeStream()
	iopub := newFakeStream()
	k := New(Config{
		Ident:         "engine-0",
		SessionID:     "sess-1",
		ShellStreams:  []session.Stream{shell},
		ControlStream: control,
		IopubStream:   iopub,
		Loop:          launcher.NewLoop(),
		Logger:        testLogger(),
	})

	msgA := requestMsg("execute_request", map[string]any{"code": "x=1"})
	msgB := requestMsg("execute_request", map[string]any{"code": "y=2"})
	k.enqueueShell(dispatchFrame{stream: shell, identities: [][]byte{[]byte("c1")}, msg: msgA})
	k.enqueueShell(dispatchFrame{stream: shell, identities: [][]byte{[]byte("c2")}, msg: msgB})

	k.abortQueues()

	assert.Equal(t, shell.sentCount(), 2)
	for _, f := range shell.sent {
		assert.Equal(t, f.msg.Content["status"], "aborted")
	}

	_, _, ok := func() ([][]byte, *session.Message, bool) {
		select {
		case f := <-k.shellChan:
			return f.identities, f.msg, true
		default:
			return nil, nil, false
		}
	}()
	assert.Assert(t, !ok)
}

// TestDispatchQueueFlushesControlAheadOfShell exercises flushControl's
// priority directly: with a control frame already queued when dispatchQueue
// runs, the control handler's reply must be sent before the shell reply,
// matching invariant 6 (control dispatched no later than shell).
func TestDispatchQueueFlushesControlAheadOfShell(t *testing.T) {
	shell := newFakeStream()
	control := newFakeStream()
	iopub := newFakeStream()
	k := New(Config{
		Ident:         "engine-0",
		SessionID:     "sess-1",
		ShellStreams:  []session.Stream{shell},
		ControlStream: control,
		IopubStream:   iopub,
		Loop:          launcher.NewLoop(),
		Logger:        testLogger(),
	})

	k.controlChan <- dispatchFrame{
		stream:     control,
		identities: [][]byte{[]byte("c1")},
		msg:        requestMsg("complete_request", map[string]any{"line": "", "text": ""}),
	}

	k.dispatchQueue(shell, [][]byte{[]byte("c2")}, requestMsg("execute_request", map[string]any{"code": "x=1"}))

	assert.Equal(t, control.sentCount(), 1)
	assert.Equal(t, shell.sentCount(), 1)
}
