package skyhttp

import (
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger is the minimal leveled, key/value logging surface the client emits
// debug output through. Any structured logger adapts trivially.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes leveled lines to stderr via the standard log package.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger returns a console logger suitable for development.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "[skyhttp] ", log.LstdFlags|log.Lmicroseconds)}
}

func (s *SimpleLogger) Debug(msg string, kv ...interface{}) { s.print("DEBUG", msg, kv) }
func (s *SimpleLogger) Info(msg string, kv ...interface{})  { s.print("INFO", msg, kv) }
func (s *SimpleLogger) Warn(msg string, kv ...interface{})  { s.print("WARN", msg, kv) }
func (s *SimpleLogger) Error(msg string, kv ...interface{}) { s.print("ERROR", msg, kv) }

func (s *SimpleLogger) print(level, msg string, kv []interface{}) {
	if len(kv) == 0 {
		s.l.Printf("%s %s", level, msg)
		return
	}
	s.l.Printf("%s %s %v", level, msg, kv)
}

// zapLogger adapts a *zap.Logger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for use with WithLogger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

// DebugConfig gates which areas of the client emit debug logs, so enabling
// insight in one area does not flood the log with the others.
type DebugConfig struct {
	Enabled     bool
	LogRequests bool
	LogRetries  bool
	LogCache    bool
	LogPool     bool
	LogQueue    bool

	// RequestIDGen produces the correlation ID attached to each logical
	// request's log lines and errors.
	RequestIDGen func() string
}

// DefaultDebugConfig enables every area with uuid request IDs; pair it with
// WithDebug to actually turn logging on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogPool:      true,
		LogQueue:     true,
		RequestIDGen: uuid.NewString,
	}
}
