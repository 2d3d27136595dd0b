// config.go - process configuration read from the environment
//
// Accessors in this file:
// - Models: base directory for exported bundles (HF2ONNX_MODELS)
// - Python: interpreter for the export helpers (HF2ONNX_PYTHON)
// - ExportTimeout: upper bound for one helper run (HF2ONNX_EXPORT_TIMEOUT)
// - History: path of the run journal (HF2ONNX_HISTORY)
// - LogLevel: log verbosity (HF2ONNX_DEBUG)
//
// Flags and counters live in config_features.go, getters and AsMap in config_utils.go.
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Models returns the base directory bundles are written to.
// Default: ./models relative to the working directory.
func Models() string {
	if s := Var("HF2ONNX_MODELS"); s != "" {
		return s
	}

	return "models"
}

// Python returns the interpreter used to run the export helpers.
// An empty result means the interpreter is looked up on PATH.
func Python() string {
	return Var("HF2ONNX_PYTHON")
}

// ExportTimeout returns how long a single graph export may run.
// Accepts a Go duration ("45m") or a number of seconds.
// Default: 30 minutes. Zero or negative values fall back to the default.
func ExportTimeout() (timeout time.Duration) {
	timeout = 30 * time.Minute
	if s := Var("HF2ONNX_EXPORT_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			timeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("invalid environment variable, using default", "key", "HF2ONNX_EXPORT_TIMEOUT", "value", s, "default", timeout)
		}
	}

	if timeout <= 0 {
		return 30 * time.Minute
	}

	return timeout
}

// History returns the path of the sqlite run journal.
// Default: $HOME/.hf2onnx/history.db
func History() string {
	if s := Var("HF2ONNX_HISTORY"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hf2onnx", "history.db")
	}

	return filepath.Join(home, ".hf2onnx", "history.db")
}

// LogLevel returns the configured log level.
// Values: 0/false = INFO (default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("HF2ONNX_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var returns an environment variable stripped of surrounding quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
