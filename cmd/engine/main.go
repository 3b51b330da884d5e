// Command engine is the process-level home of the EngineKernel: it dials
// the shell, control and iopub websocket endpoints configured for it, wires
// a Kernel to those streams, and runs until a shutdown_request (or an OS
// signal) tells it to stop.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/corvus-labs/clusterkit/config"
	"github.com/corvus-labs/clusterkit/kernel"
	"github.com/corvus-labs/clusterkit/launcher"
	"github.com/corvus-labs/clusterkit/session"
)

func main() {
	cfg := config.LoadEngineConfig()
	logger := config.NewLogger(cfg.LogFormat)

	logger.Info("clusterkit engine starting",
		"shell_addr", cfg.ShellAddr,
		"control_addr", cfg.ControlAddr,
		"iopub_addr", cfg.IopubAddr,
		"int_id", cfg.IntID,
	)

	shellConn, err := dial(cfg.ShellAddr)
	if err != nil {
		log.Fatalf("failed to dial shell stream: %v", err)
	}
	controlConn, err := dial(cfg.ControlAddr)
	if err != nil {
		log.Fatalf("failed to dial control stream: %v", err)
	}
	iopubConn, err := dial(cfg.IopubAddr)
	if err != nil {
		log.Fatalf("failed to dial iopub stream: %v", err)
	}

	codec := session.JSONCodec{}
	shellStream := session.NewWSStream(shellConn, codec, logger)
	controlStream := session.NewWSStream(controlConn, codec, logger)
	iopubStream := session.NewWSStream(iopubConn, codec, logger)
	defer shellStream.Close()
	defer controlStream.Close()
	defer iopubStream.Close()

	loop := launcher.NewLoop()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	shutdownRequested := make(chan struct{})

	k := kernel.New(kernel.Config{
		Ident:         engineIdent(cfg),
		IntID:         cfg.IntID,
		SessionID:     engineIdent(cfg),
		ShellStreams:  []session.Stream{shellStream},
		ControlStream: controlStream,
		IopubStream:   iopubStream,
		Loop:          loop,
		OnShutdown: func() {
			close(shutdownRequested)
		},
		Logger: logger,
	})
	k.Wire()

	logger.Info("engine ready")

	select {
	case sig := <-signalChannel:
		logger.Info("shutdown signal received", "signal", sig)
	case <-shutdownRequested:
		logger.Info("shutdown_request processed, exiting")
	}
}

func dial(addr string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	return conn, err
}

func engineIdent(cfg *config.EngineConfig) string {
	if cfg.IntID >= 0 {
		return "engine-" + strconv.Itoa(cfg.IntID)
	}
	return "engine-standalone"
}
