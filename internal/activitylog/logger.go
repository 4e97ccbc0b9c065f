// Package activitylog provides structured, per-session activity logging
// for the orchestration core, backed by go.uber.org/zap.
package activitylog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger records structured activity events for one agent session. All
// methods are safe for concurrent use. A Logger obtained from Nop is a
// no-op, so callers never need a nil check before logging.
type Logger struct {
	zap       *zap.Logger
	actor     string
	sessionID string
}

// Config selects the logger's level, output format, and destination.
type Config struct {
	Enabled  bool
	Level    string // debug, info, warn, error
	Format   string // json, console
	FilePath string // empty or "stdout"/"stderr" use the matching stream
}

// New builds a Logger from cfg for the given actor/session. If cfg is
// disabled or the logger cannot be constructed, New returns a no-op
// logger rather than an error, so a bad logging config never prevents
// an agent from starting.
func New(cfg Config, actor, sessionID string) *Logger {
	if !cfg.Enabled {
		return Nop()
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writer, err := openSink(cfg.FilePath)
	if err != nil {
		return Nop()
	}

	core := zapcore.NewCore(encoder, writer, level)
	zl := zap.New(core).With(
		zap.String("actor", actor),
		zap.String("session_id", sessionID),
	)
	return &Logger{zap: zl, actor: actor, sessionID: sessionID}
}

// Nop returns a disabled logger. All methods are no-ops.
func Nop() *Logger {
	return &Logger{}
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(f), nil
	}
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	err := l.UnmarshalText([]byte(level))
	return l, err
}

func (l *Logger) enabled() bool { return l.zap != nil }

// StateChange records an agent controller state transition.
func (l *Logger) StateChange(from, to, reason string) {
	if !l.enabled() {
		return
	}
	l.zap.Info("state_change",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("reason", reason),
	)
}

// CommandDispatched records a command sent to the session.
func (l *Logger) CommandDispatched(command string, queued bool) {
	if !l.enabled() {
		return
	}
	l.zap.Info("command_dispatched",
		zap.String("command", command),
		zap.Bool("queued", queued),
	)
}

// HealthCheck records the outcome of a health check.
func (l *Logger) HealthCheck(checkType string, healthy bool, errMsg string) {
	if !l.enabled() {
		return
	}
	if healthy {
		l.zap.Debug("health_check", zap.String("check_type", checkType), zap.Bool("healthy", true))
		return
	}
	l.zap.Warn("health_check",
		zap.String("check_type", checkType),
		zap.Bool("healthy", false),
		zap.String("error", errMsg),
	)
}

// RestartAttempt records an auto-restart attempt.
func (l *Logger) RestartAttempt(reason string, success bool, errMsg string) {
	if !l.enabled() {
		return
	}
	fields := []zap.Field{zap.String("reason", reason), zap.Bool("success", success)}
	if errMsg != "" {
		fields = append(fields, zap.String("error", errMsg))
	}
	if success {
		l.zap.Info("restart_attempt", fields...)
	} else {
		l.zap.Error("restart_attempt", fields...)
	}
}

// ManualTakeover records a manual-takeover lease acquired or released.
func (l *Logger) ManualTakeover(acquired bool, clientCount int) {
	if !l.enabled() {
		return
	}
	l.zap.Info("manual_takeover",
		zap.Bool("acquired", acquired),
		zap.Int("client_count", clientCount),
	)
}

// TurnRecorded records a conversation turn being added.
func (l *Logger) TurnRecorded(speaker string, turnIndex int) {
	if !l.enabled() {
		return
	}
	l.zap.Info("turn_recorded", zap.String("speaker", speaker), zap.Int("turn_index", turnIndex))
}

// ConsensusOrConflict records a detected consensus/conflict event.
func (l *Logger) ConsensusOrConflict(kind, speaker, snippet string) {
	if !l.enabled() {
		return
	}
	l.zap.Info("discussion_event", zap.String("kind", kind), zap.String("speaker", speaker), zap.String("snippet", snippet))
}

// Error records an unexpected error.
func (l *Logger) Error(msg string, err error) {
	if !l.enabled() {
		return
	}
	l.zap.Error(msg, zap.Error(err))
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	if !l.enabled() {
		return nil
	}
	return l.zap.Sync()
}
