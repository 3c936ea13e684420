// Package logger is the process-wide structured logger of plugdex, built on log/slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// OutputFormat selects the slog handler.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Fields is a set of structured attributes attached to one log line.
type Fields map[string]interface{}

var (
	mu      sync.Mutex
	logger  *slog.Logger
	level   = new(slog.LevelVar)
	format  = FormatText
	testOut io.Writer
)

// SetTestOutput redirects log output, for tests.
func SetTestOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	testOut = w
}

// UnsetTestOutput restores the default output.
func UnsetTestOutput() {
	mu.Lock()
	defer mu.Unlock()
	testOut = nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// InitLogger (re)creates the global logger. Unknown levels fall back to info.
// Logs go to stderr so command output on stdout stays parseable.
func InitLogger(logLevel string, f OutputFormat) {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	level.Set(lvl)

	mu.Lock()
	defer mu.Unlock()
	format = f
	logger = slog.New(newHandler(output(), f))
}

// SetLevel changes the level of the running logger.
func SetLevel(logLevel string) error {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// SetOutputFormat switches the handler, keeping the level.
func SetOutputFormat(f OutputFormat) {
	mu.Lock()
	defer mu.Unlock()
	format = f
	logger = slog.New(newHandler(output(), f))
}

func output() io.Writer {
	if testOut != nil {
		return testOut
	}
	return os.Stderr
}

func newHandler(w io.Writer, f OutputFormat) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if f == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// GetLogger returns the global logger, initializing it at info level on first use.
func GetLogger() *slog.Logger {
	mu.Lock()
	lg := logger
	mu.Unlock()
	if lg == nil {
		InitLogger("info", format)
		mu.Lock()
		lg = logger
		mu.Unlock()
	}
	return lg
}

func Debug(msg string, fields ...Fields) { GetLogger().Debug(msg, mergeFields(fields...)...) }
func Info(msg string, fields ...Fields)  { GetLogger().Info(msg, mergeFields(fields...)...) }
func Warn(msg string, fields ...Fields)  { GetLogger().Warn(msg, mergeFields(fields...)...) }
func Error(msg string, fields ...Fields) { GetLogger().Error(msg, mergeFields(fields...)...) }

// Success logs at info level with status=success.
func Success(msg string, fields ...Fields) {
	attrs := append(mergeFields(fields...), "status", "success")
	GetLogger().Info(msg, attrs...)
}

func Debugf(format string, args ...interface{}) { GetLogger().Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...interface{})  { GetLogger().Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...interface{})  { GetLogger().Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{}) { GetLogger().Error(fmt.Sprintf(format, args...)) }

// mergeFields flattens field maps into slog key/value pairs. Later maps win;
// keys are emitted in sorted order.
func mergeFields(fields ...Fields) []interface{} {
	merged := Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		result = append(result, k, merged[k])
	}
	return result
}
