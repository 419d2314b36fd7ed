// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Profile selects defaults for Configure.
type Profile int

const (
	// Runtime logs at info level to stderr through a console writer.
	Runtime Profile = iota
	// Test logs only warnings and above.
	Test
)

// Environment overrides applied by Configure.
const (
	EnvLevel   = "BITTENSOR_LOG_LEVEL"
	EnvJSON    = "BITTENSOR_LOG_JSON"
	EnvNoColor = "BITTENSOR_LOG_NOCOLOR"
)

var (
	mu   sync.RWMutex
	root = zerolog.Nop()
)

// Configure installs the root logger for app. Later calls replace it.
func Configure(app string, profile Profile) zerolog.Logger {
	return ConfigureWriter(app, profile, os.Stderr)
}

// ConfigureWriter is Configure with an explicit destination.
func ConfigureWriter(app string, profile Profile, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if profile == Test {
		level = zerolog.WarnLevel
	}
	if v := strings.TrimSpace(os.Getenv(EnvLevel)); v != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = l
		}
	}

	w := out
	if !envBool(EnvJSON) {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    envBool(EnvNoColor),
		}
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()

	mu.Lock()
	root = logger
	mu.Unlock()
	log.Logger = logger
	return logger
}

// For returns a child of the root logger tagged with component. Before
// Configure runs it returns a disabled logger.
func For(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", component).Logger()
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	return err == nil && v
}
