// Command driver is the launcher-side process: it brings up a configured
// number of engine processes through the Launcher Framework, records their
// lifecycle in the LaunchRegistry, and exposes the read-only StatusServer
// for operators. It never speaks the kernel's wire protocol itself — that
// is the engine binary's job.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corvus-labs/clusterkit/config"
	"github.com/corvus-labs/clusterkit/launcher"
	"github.com/corvus-labs/clusterkit/registry"
	"github.com/corvus-labs/clusterkit/statusapi"
)

func main() {
	cfg := config.LoadLauncherConfig()
	logger := config.NewLogger(cfg.LogFormat)

	logger.Info("clusterkit driver starting",
		"status_addr", cfg.StatusAddr,
		"registry_db_path", cfg.RegistryDBPath,
		"engine_count", cfg.EngineCount,
	)

	reg, err := registry.Open(cfg.RegistryDBPath, logger)
	if err != nil {
		log.Fatalf("failed to open launch registry: %v", err)
	}
	defer reg.Close()

	tracker := statusapi.NewTracker()
	loop := launcher.NewLoop()

	launchers := startEngines(cfg, loop, reg, tracker, logger)
	defer stopAll(launchers, logger)

	router := statusapi.NewRouter(statusapi.Dependencies{
		Logger:   logger,
		Tracker:  tracker,
		Registry: reg,
	})

	server := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownChannel := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", server.Addr)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			shutdownChannel <- err
		}
		close(shutdownChannel)
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("driver ready")

	select {
	case sig := <-signalChannel:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-shutdownChannel:
		if err != nil {
			log.Fatalf("status server failed: %v", err)
		}
	}

	shutdownContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownContext); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("status server shut down cleanly")
	}
}

// startEngines brings up cfg.EngineCount local engine processes through
// LocalProcessLauncher, wiring each one into the LaunchRegistry and the
// Tracker so the status server can see it immediately.
func startEngines(cfg *config.LauncherConfig, loop *launcher.Loop, reg *registry.Registry, tracker *statusapi.Tracker, logger *slog.Logger) []launcher.Launcher {
	launchers := make([]launcher.Launcher, 0, cfg.EngineCount)

	for i := 0; i < cfg.EngineCount; i++ {
		id := fmt.Sprintf("engine-%d", i)

		lc := launcher.NewLocalProcessLauncher(id, cfg.ProfileDir, cfg.EngineProgram, nil, loop, logger)
		lc.ExtraEnv = []string{
			"PROFILE_DIR=" + cfg.ProfileDir,
			"ENGINE_INT_ID=" + fmt.Sprintf("%d", i),
			"REGISTRY_DB_PATH=" + cfg.RegistryDBPath,
		}

		startData, err := lc.Start()
		if err != nil {
			logger.Error("failed to start engine", "id", id, "error", err)
			continue
		}

		reg.Observe(id, "local", lc, startData, logger)
		tracker.Set(statusapi.LauncherStatus{ID: id, Kind: "local", State: lc.CurrentState().String()})
		lc.OnStop(func(launcher.StopData) {
			tracker.Remove(id)
		})

		launchers = append(launchers, lc)
	}

	return launchers
}

func stopAll(launchers []launcher.Launcher, logger *slog.Logger) {
	for _, lc := range launchers {
		if err := lc.Stop(); err != nil {
			logger.Error("failed to stop launcher", "error", err)
		}
	}
}
