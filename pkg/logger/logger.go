package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger wraps logrus with a fixed set of context fields
type Logger struct {
	*logrus.Logger
	fields logrus.Fields
}

// NewLogger creates a logger writing to stderr and, when logFile is set, to
// a rotated file.
func NewLogger(level, logFile string) *Logger {
	return New(config.LoggingConfig{
		Level:      level,
		File:       logFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
}

// New creates a logger from the logging section of the configuration
func New(cfg config.LoggingConfig) *Logger {
	base := logrus.New()
	base.SetOutput(output(cfg))

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	l := &Logger{Logger: base, fields: logrus.Fields{}}
	l.SetFormatter(cfg.Format)
	return l
}

// output is stderr, teed into a lumberjack file when one is configured
func output(cfg config.LoggingConfig) io.Writer {
	if cfg.File == "" {
		return os.Stderr
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "log file disabled: %v\n", err)
		return os.Stderr
	}
	return io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	})
}

// NewNop returns a logger that discards everything, for tests
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: base, fields: logrus.Fields{}}
}

// with returns a child logger carrying extra on top of the parent's fields
func (l *Logger) with(extra logrus.Fields) *Logger {
	merged := make(logrus.Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return &Logger{Logger: l.Logger, fields: merged}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(logrus.Fields{key: value})
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.with(fields)
}

// WithComponent tags every entry with the subsystem that wrote it
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

func (l *Logger) Debug(msg string, args ...interface{})   { l.log(logrus.DebugLevel, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})    { l.log(logrus.InfoLevel, msg, args) }
func (l *Logger) Warning(msg string, args ...interface{}) { l.log(logrus.WarnLevel, msg, args) }
func (l *Logger) Error(msg string, args ...interface{})   { l.log(logrus.ErrorLevel, msg, args) }

// log treats an even number of args whose first element is a string as
// key/value pairs and anything else as printf arguments.
func (l *Logger) log(level logrus.Level, msg string, args []interface{}) {
	entry := l.Logger.WithFields(l.fields)
	if kv, ok := pairs(args); ok {
		entry.WithFields(kv).Log(level, msg)
		return
	}
	if len(args) == 0 {
		entry.Log(level, msg)
		return
	}
	entry.Logf(level, msg, args...)
}

func pairs(args []interface{}) (logrus.Fields, bool) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, false
	}
	if _, ok := args[0].(string); !ok {
		return nil, false
	}
	kv := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			kv[key] = args[i+1]
		}
	}
	return kv, true
}

// AuditLogger mirrors an audit log entry into the application log
func (l *Logger) AuditLogger(action, userID, resource, details string) {
	l.with(logrus.Fields{
		"event_type": "audit",
		"action":     action,
		"user_id":    userID,
		"resource":   resource,
		"details":    details,
	}).Info("audit entry recorded")
}

// VotingLogger records a change to one voter's ballot
func (l *Logger) VotingLogger(event string, voterID, candidateID int64, details string) {
	l.with(logrus.Fields{
		"event_type":   "voting",
		"event":        event,
		"voter_id":     voterID,
		"candidate_id": candidateID,
		"details":      details,
	}).Info("ballot changed")
}

// PerformanceLogger records how long an atomic unit took
func (l *Logger) PerformanceLogger(operation string, duration time.Duration, success bool) {
	l.with(logrus.Fields{
		"event_type":  "performance",
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
		"success":     success,
	}).Debug("operation timed")
}

// StructuredError logs err together with the given context fields
func (l *Logger) StructuredError(err error, context map[string]interface{}) {
	fields := logrus.Fields{"error": err.Error()}
	for k, v := range context {
		fields[k] = v
	}
	l.with(fields).Error("operation failed")
}

// SetFormatter selects json or text output
func (l *Logger) SetFormatter(format string) {
	if format == "json" {
		l.Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
		return
	}
	l.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
}
