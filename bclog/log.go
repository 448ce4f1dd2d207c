// Package bclog is the session core's logging registry. It follows the
// teacher daemon's pattern of one replaceable per-subsystem slog.Logger,
// all initially backed by a disabled logger so packages can log before
// SetupLoggers is called without a nil-pointer panic, and all rewired in
// one pass once the CLI entry point has opened its rotating log file.
package bclog

import (
	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// replaceableLogger wraps a slog.Logger so the backing logger can be swapped
// out after SetupLoggers runs, without every caller needing a pointer to a
// pointer.
type replaceableLogger struct {
	slog.Logger
	subsystem string
}

var (
	registered []*replaceableLogger

	addLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    slog.Disabled,
			subsystem: subsystem,
		}
		registered = append(registered, l)
		return l
	}

	// SessLog is used by the session runtime package.
	SessLog = addLogger("SESS")
	// AuthLog is used by the auth client package.
	AuthLog = addLogger("AUTH")
	// CchLog is used by the token cache package.
	CchLog = addLogger("CACH")
	// EntLog is used by the entity cache package.
	EntLog = addLogger("ENTC")
	// RdcLog is used by the state reducer package.
	RdcLog = addLogger("RDCR")
	// CflLog is the conflict detector subsystem's logger; the conflict
	// package itself does not log.
	CflLog = addLogger("CNFL")
	// RfrLog is used by the background token refresher.
	RfrLog = addLogger("RFRH")
	// NetLog is used by the network diagnostics package.
	NetLog = addLogger("NETC")
)

// RotatingLogWriter wraps a rotator.Rotator so the CLI entry point can hand
// every subsystem a logger backed by the same rotating file.
type RotatingLogWriter struct {
	rotator *rotator.Rotator
	backend slog.Backend
}

// NewRotatingLogWriter constructs a RotatingLogWriter with no rotator
// attached; InitLogRotator must be called before any subsystem logs.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{backend: slog.NewBackend(disabledWriter{})}
}

type disabledWriter struct{}

func (disabledWriter) Write(p []byte) (int, error) { return len(p), nil }

// InitLogRotator opens (or creates) the rotating log file at logFile,
// rolling it once it exceeds 10MiB and keeping at most maxRollFiles rolled
// files, matching the sizes the teacher daemon uses for its own log
// rotation.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxRollFiles int) error {
	// rotator.New takes its size threshold in KiB.
	rot, err := rotator.New(logFile, 10*1024, false, maxRollFiles)
	if err != nil {
		return err
	}
	r.rotator = rot
	r.backend = slog.NewBackend(rot)
	return nil
}

// NewSubLogger returns a new slog.Logger backed by r for the named
// subsystem, at Info level by default.
func (r *RotatingLogWriter) NewSubLogger(subsystem string) slog.Logger {
	l := r.backend.Logger(subsystem)
	l.SetLevel(slog.LevelInfo)
	return l
}

// SetupLoggers rewires every subsystem logger registered via addLogger to
// be backed by r, and sets the level for all of them.
func SetupLoggers(r *RotatingLogWriter, level slog.Level) {
	for _, l := range registered {
		sub := r.NewSubLogger(l.subsystem)
		sub.SetLevel(level)
		l.Logger = sub
	}
}

// Close flushes and closes the underlying rotator, if one was opened.
func (r *RotatingLogWriter) Close() {
	if r.rotator != nil {
		r.rotator.Close()
	}
}
