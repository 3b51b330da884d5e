package kernel

import (
	"time"

	"github.com/corvus-labs/clusterkit/session"
)

// abortBatchSleep is the inter-batch pause abort_queues takes between
// drained batches, per SPEC_FULL §4.2.8 ("sleep briefly (~50ms) between
// drained batches to allow in-flight messages to arrive on the socket").
const abortBatchSleep = 50 * time.Millisecond

// dispatchQueueCapacity bounds controlChan and shellChan, matching the
// buffer WSStream's own inbox uses so a burst the dispatch loop falls
// behind on has the same headroom whether it backs up in the stream or in
// the kernel's own queue.
const dispatchQueueCapacity = 256

// dispatchFrame pairs a decoded frame with the Stream it arrived on, so a
// handler's reply (or an abort reply) goes back out on the right socket
// even once the frame has left the stream's own goroutine.
type dispatchFrame struct {
	stream     session.Stream
	identities [][]byte
	msg        *session.Message
}

// Wire hooks every stream's OnRecv callback to push onto the kernel's own
// control/shell queues rather than dispatching inline, then starts the
// single goroutine (run) that is the only code in this package ever calling
// dispatchControl or dispatchQueue. This is what makes the kernel the
// single-threaded, message-driven core described in SPEC_FULL §5: every
// WSStream still has its own readPump goroutine feeding these queues, but
// only run's goroutine ever drains them. Call Wire once after New, before
// the owning process starts its event loop.
func (k *Kernel) Wire() {
	k.ControlStream.OnRecv(func(identities [][]byte, msg *session.Message) {
		k.enqueueControl(dispatchFrame{stream: k.ControlStream, identities: identities, msg: msg})
	})
	for _, stream := range k.ShellStreams {
		stream := stream
		stream.OnRecv(func(identities [][]byte, msg *session.Message) {
			k.enqueueShell(dispatchFrame{stream: stream, identities: identities, msg: msg})
		})
	}
	go k.run()
}

func (k *Kernel) enqueueControl(f dispatchFrame) {
	select {
	case k.controlChan <- f:
	default:
		k.Logger.Warn("dispatch: control queue full, dropping frame")
	}
}

func (k *Kernel) enqueueShell(f dispatchFrame) {
	select {
	case k.shellChan <- f:
	default:
		k.Logger.Warn("dispatch: shell queue full, dropping frame")
	}
}

// run is the kernel's one dispatch-loop goroutine. It always prefers a
// pending control frame over a pending shell frame, enforcing invariant 6
// (control dispatched no later than shell) the way SPEC_FULL §4.2.1's
// dispatch_queue flushing control first used to only pretend to.
func (k *Kernel) run() {
	for {
		select {
		case f := <-k.controlChan:
			k.dispatchControl(f.identities, f.msg)
			continue
		default:
		}

		select {
		case f := <-k.controlChan:
			k.dispatchControl(f.identities, f.msg)
		case f := <-k.shellChan:
			k.dispatchQueue(f.stream, f.identities, f.msg)
		}
	}
}

// dispatchQueue implements SPEC_FULL §4.2.1's dispatch_queue: control always
// drains first, then the abort set is consulted, then the handler table.
func (k *Kernel) dispatchQueue(stream session.Stream, identities [][]byte, msg *session.Message) {
	k.Admission.Wait()

	k.flushControl()

	if msg == nil {
		k.Logger.Error("dispatch: nil message")
		return
	}

	if k.Aborted.TakeIfPresent(msg.Header.MsgID) {
		k.replyAborted(stream, identities, msg)
		return
	}

	k.invoke(k.ShellHandlers, stream, identities, msg)
}

// dispatchControl implements dispatch_control: identical to dispatch_queue
// except it never consults the abort set (control messages bypass it).
func (k *Kernel) dispatchControl(identities [][]byte, msg *session.Message) {
	if msg == nil {
		k.Logger.Error("dispatch: nil control message")
		return
	}
	k.invoke(k.ControlHandlers, k.ControlStream, identities, msg)
}

// flushControl drains any control frames already queued ahead of the next
// shell dispatch, giving control priority over shell traffic as required by
// SPEC_FULL §4.2.1 step 1. It runs on the same loop goroutine as run, so
// draining k.controlChan here is safe without further synchronization.
func (k *Kernel) flushControl() {
	for {
		select {
		case f := <-k.controlChan:
			k.dispatchControl(f.identities, f.msg)
		default:
			return
		}
	}
}

func (k *Kernel) invoke(table map[string]HandlerFunc, stream session.Stream, identities [][]byte, msg *session.Message) {
	handler, ok := table[msg.Header.MsgType]
	if !ok {
		k.Logger.Error("dispatch: unknown message type", "msg_type", msg.Header.MsgType)
		return
	}
	content, buffers, err := handler(k, identities, msg)
	if err != nil {
		k.replyError(stream, identities, msg, err)
		return
	}
	reply := k.Session.Reply(msg, replyTypeFor(msg.Header.MsgType), content)
	if sendErr := stream.Send(identities, reply, buffers); sendErr != nil {
		k.Logger.Error("dispatch: send reply failed", "error", sendErr)
	}
}

func (k *Kernel) replyAborted(stream session.Stream, identities [][]byte, msg *session.Message) {
	reply := k.Session.Reply(msg, replyTypeFor(msg.Header.MsgType), map[string]any{"status": "aborted"})
	if err := stream.Send(identities, reply, nil); err != nil {
		k.Logger.Error("dispatch: send aborted reply failed", "error", err)
	}
}

func (k *Kernel) replyError(stream session.Stream, identities [][]byte, msg *session.Message, err error) {
	var content map[string]any
	if execErr, ok := err.(*ExecutionError); ok {
		content = execErr.ToContent()
	} else {
		content = map[string]any{"status": "error", "ename": "InternalError", "evalue": err.Error()}
	}
	reply := k.Session.Reply(msg, replyTypeFor(msg.Header.MsgType), content)
	if sendErr := stream.Send(identities, reply, nil); sendErr != nil {
		k.Logger.Error("dispatch: send error reply failed", "error", sendErr)
	}
}

func replyTypeFor(msgType string) string {
	return session.ReplyTypeFor(msgType)
}

// abortQueues drains every frame already queued on the shell channel,
// replying "aborted" to each, pausing briefly between batches so frames
// that were mid-flight on the wire have a chance to land, per SPEC_FULL
// §4.2.8. It runs on the dispatch loop goroutine (called from a control
// handler), and drains k.shellChan directly rather than polling each
// stream, since the channel is the actual queue every WSStream's readPump
// feeds via OnRecv. It does not interrupt handlers already running (Open
// Question, resolved in SPEC_FULL §9: do not interrupt in-flight handlers).
func (k *Kernel) abortQueues() {
	for k.drainShellBatch() {
		sleep(abortBatchSleep)
	}
}

// drainShellBatch drains whatever is queued on k.shellChan right now,
// replying "aborted" to each frame, and reports whether it drained anything.
func (k *Kernel) drainShellBatch() bool {
	drainedAny := false
	for {
		select {
		case f := <-k.shellChan:
			drainedAny = true
			if f.msg != nil {
				k.replyAborted(f.stream, f.identities, f.msg)
			}
		default:
			return drainedAny
		}
	}
}
