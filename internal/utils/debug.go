package utils

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	current atomic.Pointer[zerolog.Logger]
	logMu   sync.Mutex
	logFile *os.File
)

func init() {
	nop := zerolog.Nop()
	current.Store(&nop)
}

// InitLogger routes debug output to the file at path. With debug off every
// logger handed out afterwards discards its output.
func InitLogger(debug bool, path string) error {
	logMu.Lock()
	defer logMu.Unlock()

	closeLogFileLocked()

	if !debug {
		nop := zerolog.Nop()
		current.Store(&nop)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	setOutput(f, zerolog.DebugLevel)
	return nil
}

// SetLogOutput sends debug output to w. Used by tests.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	closeLogFileLocked()
	setOutput(w, zerolog.DebugLevel)
}

// CloseLogger flushes and closes the debug log file, if any.
func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	closeLogFileLocked()
	nop := zerolog.Nop()
	current.Store(&nop)
}

func setOutput(w io.Writer, level zerolog.Level) {
	output := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.DateTime,
	}
	l := zerolog.New(output).Level(level).With().Timestamp().Logger()
	current.Store(&l)
}

func closeLogFileLocked() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}

// Logger returns a logger tagged with the given component name.
func Logger(component string) zerolog.Logger {
	return current.Load().With().Str("component", component).Logger()
}

// Debug writes a message to the debug log
func Debug(format string, args ...any) {
	l := current.Load()
	l.Debug().Msgf(format, args...)
}
