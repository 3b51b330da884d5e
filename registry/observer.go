package registry

import (
	"log/slog"

	"github.com/corvus-labs/clusterkit/launcher"
)

// Observe wires lc as an optional start/stop observer for the registry:
// it records a row immediately (start data is already known, since Observe
// is called right after Start returns) and registers an OnStop callback to
// record the matching stop row. Per SPEC_FULL §4.4, the core Launcher state
// machine has no dependency on this — Observe is called by whatever wires
// the engine or driver together, never by launcher.Launcher itself.
func (r *Registry) Observe(launcherID, kind string, lc launcher.Launcher, startData launcher.StartData, logger *slog.Logger) {
	if err := r.RecordStart(launcherID, kind, startData); err != nil {
		logger.Warn("launch registry: failed to record start", "launcher_id", launcherID, "error", err)
	}

	lc.OnStop(func(stopData launcher.StopData) {
		if err := r.RecordStop(launcherID, kind, stopData); err != nil {
			logger.Warn("launch registry: failed to record stop", "launcher_id", launcherID, "error", err)
		}
	})
}
