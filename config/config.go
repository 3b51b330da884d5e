/*
Package config handles loading and validating process configuration
from environment variables. All values have sensible defaults so both
the engine process and the launcher/driver process can start with zero
environment setup during local development.
*/
package config

import (
	"log/slog"      // slog = structured log. used for json logging in this app
	"os"            // used .Getenv calls and write logs to stdout.
	"path/filepath" // used to extract file base name form absolute path in logging.
	"strconv"       // used to parse numeric environment variables.
)

// EngineConfig holds the configuration an engine process reads at startup:
// where it listens for controller streams, what profile directory it was
// launched with, and how it should log.
// Values are read once at startup and passed through via dependency injection.
// No global config variable is used. Callers receive a *EngineConfig explicitly,
// making dependencies visible and the code easier to test.
type EngineConfig struct {
	// ShellAddr is the websocket URL the engine dials to reach its shell stream(s).
	ShellAddr string

	// ControlAddr is the websocket URL for the control stream.
	ControlAddr string

	// IopubAddr is the websocket URL the engine broadcasts iopub frames on.
	IopubAddr string

	// ProfileDir is the per-invocation configuration/state directory this
	// engine process was started with (see GLOSSARY: Profile directory).
	ProfileDir string

	// RegistryDBPath is the SQLite file backing the LaunchRegistry, shared
	// between the driver and any engine that wants to self-report. Empty
	// disables the registry.
	RegistryDBPath string

	// IntID is the small integer id the driver assigned this engine, or -1
	// if the engine was started standalone (not via the driver).
	IntID int

	// LogFormat controls the output format of slog.
	// accepted values: "text" (default) | "json"
	LogFormat string
}

// LauncherConfig holds the configuration the driver/launcher process reads
// at startup: where to persist launch history, where to expose the operator
// status surface, and how to log.
type LauncherConfig struct {
	// StatusAddr is the listen address for the read-only operator HTTP surface.
	StatusAddr string

	// RegistryDBPath is the SQLite file backing the LaunchRegistry.
	RegistryDBPath string

	// ProfileDir is the per-invocation directory passed to every spawned child.
	ProfileDir string

	// EngineProgram is the executable the driver spawns via
	// LocalProcessLauncher for each engine it brings up.
	EngineProgram string

	// EngineCount is how many engine processes to launch at startup.
	EngineCount int

	// LogFormat controls the output format of slog.
	LogFormat string
}

// NewLogger constructs a *slog.Logger based on a LogFormat value.
// "text" produces human-readable output for local development; any other
// value (including "json") produces structured JSON output for production
// log shipping.
func NewLogger(logFormat string) *slog.Logger {
	var handler slog.Handler // declaration of slog.Handler interface variable to hold the chosen log handler

	// Syntax confusion - `slog.` is the package name, `HandlerOptions` is a struct type defined in slog package.
	// &slog.HandlerOptions{} creates a new instance of HandlerOptions struct and returns its pointer rather than value
	options := &slog.HandlerOptions{
		// AddSource adds the file name and line number to each log record
		// useful during development to trace log origins.
		AddSource: true, // this returns the absolute file path which is too long and eyesore
		Level:     slog.LevelDebug,

		ReplaceAttr: func(groups []string, attribute slog.Attr) slog.Attr {
			// Check if the current attribute is the "source" (file path/line info)
			if attribute.Key == slog.SourceKey {
				source := attribute.Value.Any().(*slog.Source)
				// This takes the file's absolute path and just returns the filename
				source.File = filepath.Base(source.File)
			}
			return attribute
		},
	}

	if logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, options) // text for local dev
	} else {
		handler = slog.NewJSONHandler(os.Stdout, options) // json for prod
	}

	return slog.New(handler)
}

// LoadEngineConfig reads engine configuration from environment variables.
// missing environment variables fall back to safe local development defaults
// so the process can run without any setup during early development.
func LoadEngineConfig() *EngineConfig {
	return &EngineConfig{
		ShellAddr:      getEnv("ENGINE_SHELL_ADDR", "ws://127.0.0.1:9001/shell"),
		ControlAddr:    getEnv("ENGINE_CONTROL_ADDR", "ws://127.0.0.1:9002/control"),
		IopubAddr:      getEnv("ENGINE_IOPUB_ADDR", "ws://127.0.0.1:9003/iopub"),
		ProfileDir:     getEnv("PROFILE_DIR", "./profile_default"),
		RegistryDBPath: getEnv("REGISTRY_DB_PATH", "./clusterkit-registry.db"),
		IntID:          getEnvInt("ENGINE_INT_ID", -1),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}
}

// LoadLauncherConfig reads driver/launcher configuration from environment variables.
func LoadLauncherConfig() *LauncherConfig {
	return &LauncherConfig{
		StatusAddr:     getEnv("STATUS_ADDR", ":8080"),
		RegistryDBPath: getEnv("REGISTRY_DB_PATH", "./clusterkit-registry.db"),
		ProfileDir:     getEnv("PROFILE_DIR", "./profile_default"),
		EngineProgram:  getEnv("ENGINE_PROGRAM", "./clusterkit-engine"),
		EngineCount:    getEnvInt("ENGINE_COUNT", 1),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}
}

// getEnv retrieves the value of an environment variable by key.
// if the variable is not set or is empty, the provided fallback value is returned.
// this avoids scattered os.Getenv calls with inline fallback logic throughout the codebase.
func getEnv(key, fallbackValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallbackValue
}

// getEnvInt is getEnv's numeric counterpart; a malformed value falls back
// just like a missing one rather than crashing startup.
func getEnvInt(key string, fallbackValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallbackValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallbackValue
	}
	return parsed
}
