package debug

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (startup, bind address, failures)
	LevelLive    = 2 // Live info (requests, activations, captures)
	LevelVerbose = 3 // Verbose (state transitions, waiter counts)
	LevelTrace   = 4 // Trace (GPIO, driver callbacks)
)

var (
	mu     sync.RWMutex
	level  int
	format string
	out    io.Writer = os.Stdout
	logger           = zerolog.Nop()
)

// Init initializes the debug system with a level (0-4) and an output format.
// 0 = no output
// 1 = important info (startup, failures)
// 2 = live info (requests, captures)
// 3 = verbose (state machine details)
// 4 = trace (GPIO, very low level)
//
// format is "json" for one JSON object per line, anything else gives
// human-readable console output.
func Init(debugLevel int, logFormat string) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	format = strings.ToLower(logFormat)
	rebuild()
}

// SetOutput redirects log output (e.g. to also feed the SSE broadcaster).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	if level <= LevelOff {
		logger = zerolog.Nop()
		return
	}
	w := out
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.StampMicro, NoColor: true}
	}
	logger = zerolog.New(w).
		Level(zerologLevel(level)).
		With().
		Timestamp().
		Str("service", "camsrv").
		Logger()
}

func zerologLevel(l int) zerolog.Level {
	switch {
	case l >= LevelTrace:
		return zerolog.TraceLevel
	case l >= LevelLive:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Logger returns the underlying structured logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a logger tagged with a component name.
func With(component string) zerolog.Logger {
	l := Logger()
	return l.With().Str("component", component).Logger()
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Info().Msgf(format, args...)
	}
}

// Warn prints a level 1 warning.
func Warn(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Warn().Msgf(format, args...)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Info().Interface(name, value).Msg("config")
	}
}

// Section prints a section header (level 1).
func Section(name string) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Info().Str("section", name).Msg("━━━━ " + name + " ━━━━")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if IsEnabled(LevelLive) {
		l := Logger()
		l.Debug().Str("lvl", "live").Msgf(format, args...)
	}
}

// Request prints an inbound command (level 2).
func Request(transport, command string) {
	if IsEnabled(LevelLive) {
		l := Logger()
		l.Debug().Str("transport", transport).Str("command", command).Msg("request")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if IsEnabled(LevelVerbose) {
		l := Logger()
		l.Debug().Str("lvl", "verbose").Msgf(format, args...)
	}
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if IsEnabled(LevelVerbose) {
		l := Logger()
		l.Debug().Str("lvl", "verbose").Msgf("%s: %+v", name, v)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	if IsEnabled(LevelTrace) {
		l := Logger()
		l.Trace().Msgf(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if IsEnabled(LevelTrace) {
		l := Logger()
		l.Trace().Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// --- General functions ---

// Error prints an error (level 1+).
func Error(err error) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Error().Err(err).Msg("error")
	}
}
