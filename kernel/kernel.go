package kernel

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/corvus-labs/clusterkit/launcher"
	"github.com/corvus-labs/clusterkit/session"
)

// shutdownGrace is the delay between sending shutdown_reply and actually
// exiting, per SPEC_FULL §4.2.6 ("schedule process exit on the loop with a
// 1-second delay, allowing the reply to flush").
const shutdownGrace = 1 * time.Second

// HandlerFunc processes one decoded request message and returns the reply
// content (status, any payload fields) to be wrapped into a reply Message by
// the dispatch loop. A non-nil error short-circuits the normal reply content
// and is rendered as an error reply instead.
type HandlerFunc func(k *Kernel, identities [][]byte, msg *session.Message) (content map[string]any, buffers [][]byte, err error)

// Kernel is the single-threaded, message-driven execution core described in
// SPEC_FULL §2 and §4.2 ("EngineKernel"). One Kernel owns exactly one
// Namespace. Each stream's OnRecv callback (installed by Wire) only ever
// pushes the decoded frame onto controlChan or shellChan; the single
// goroutine spawned by Wire (run, in dispatch.go) is the only code that ever
// reads those channels and calls dispatchControl/dispatchQueue, so every
// field below is read and written only from that one goroutine once
// construction finishes and none of them need locking at this layer
// (SPEC_FULL §5).
type Kernel struct {
	Session   *session.MessageSession
	UserNS    *Namespace
	Completer Completer

	ShellStreams  []session.Stream
	ControlStream session.Stream
	IopubStream   session.Stream

	Ident string
	IntID int

	ShellHandlers   map[string]HandlerFunc
	ControlHandlers map[string]HandlerFunc

	Aborted *AbortSet

	Admission *AdmissionLimiter

	Callables       *CallableRegistry
	DependencyStore DependencyStore

	ExecLines []string
	Prefix    string

	Loop       *launcher.Loop
	OnShutdown func()

	Logger *slog.Logger

	// controlChan and shellChan are the queues every stream's OnRecv
	// callback feeds (see Wire): the single real queue dispatch_queue's
	// control-priority flush and abort_queues' drain both operate against,
	// replacing a non-blocking TryRecv path no production transport ever
	// actually fills.
	controlChan chan dispatchFrame
	shellChan   chan dispatchFrame
}

// Config bundles the dependencies a Kernel is constructed with. ShellStreams,
// ControlStream and IopubStream correspond to the three socket roles the
// original engine bound (SPEC_FULL §6); Ident is the engine's own identity
// frame, IntID its small integer id assigned by the controller (-1 until
// registration completes, SPEC_FULL §3).
type Config struct {
	Ident         string
	IntID         int
	SessionID     string
	ShellStreams  []session.Stream
	ControlStream session.Stream
	IopubStream   session.Stream
	ExecLines     []string
	Loop          *launcher.Loop
	OnShutdown    func()
	Logger        *slog.Logger

	// Admission is the inbound shell-frame rate limiter described in
	// SPEC_FULL §5. A nil value (the zero value of Config) builds a Kernel
	// with NewDefaultAdmissionLimiter(); pass a limiter built with a rate of
	// 0 only if you actually want every admission to block forever, which
	// no caller in this repo does.
	Admission *AdmissionLimiter
}

// New constructs a Kernel and populates its shell and control handler
// tables. Design Notes §9 calls for "an explicit registration table
// populated at kernel construction" in place of dynamic method lookup by
// message type string; this is that table.
func New(cfg Config) *Kernel {
	ns := NewNamespace()
	admission := cfg.Admission
	if admission == nil {
		admission = NewDefaultAdmissionLimiter()
	}
	k := &Kernel{
		Session:       session.NewMessageSession(cfg.SessionID),
		UserNS:        ns,
		Completer:     NewNamespaceCompleter(ns),
		ShellStreams:  cfg.ShellStreams,
		ControlStream: cfg.ControlStream,
		IopubStream:   cfg.IopubStream,
		Ident:         cfg.Ident,
		IntID:         cfg.IntID,
		Aborted:       NewAbortSet(),
		Admission:     admission,
		Callables:     NewCallableRegistry(),
		ExecLines:     cfg.ExecLines,
		Loop:          cfg.Loop,
		OnShutdown:    cfg.OnShutdown,
		Logger:        cfg.Logger,
		controlChan:   make(chan dispatchFrame, dispatchQueueCapacity),
		shellChan:     make(chan dispatchFrame, dispatchQueueCapacity),
	}
	k.Prefix = k.enginePrefix()

	k.ShellHandlers = map[string]HandlerFunc{
		"execute_request":  handleExecuteRequest,
		"complete_request": handleCompleteRequest,
		"apply_request":    handleApplyRequest,
		"clear_request":    handleClearRequest,
	}

	// The control table carries every shell handler plus the two
	// control-only message types, per SPEC_FULL §4.2.1: "the control
	// handler table is the shell table plus shutdown_request and
	// abort_request".
	k.ControlHandlers = make(map[string]HandlerFunc, len(k.ShellHandlers)+2)
	for msgType, fn := range k.ShellHandlers {
		k.ControlHandlers[msgType] = fn
	}
	k.ControlHandlers["shutdown_request"] = handleShutdownRequest
	k.ControlHandlers["abort_request"] = handleAbortRequest

	return k
}

func (k *Kernel) enginePrefix() string {
	if k.IntID < 0 {
		return fmt.Sprintf("engine.%s", k.Ident)
	}
	return fmt.Sprintf("engine.%d", k.IntID)
}

// SetIntID records the integer id assigned during registration and
// recomputes the engine prefix used in iopub broadcasts.
func (k *Kernel) SetIntID(id int) {
	k.IntID = id
	k.Prefix = k.enginePrefix()
}

// sleep exists so dispatch.go's inter-batch pause in abort_queues has a single
// indirection point; it is a thin wrapper over time.Sleep rather than a
// configurable clock because no test in this package needs to fake time
// faster than real time allows (the pause is 50ms, SPEC_FULL §4.2.8).
func sleep(d time.Duration) {
	time.Sleep(d)
}
