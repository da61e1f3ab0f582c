package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.New()

func init() {
	formatter := new(prefixed.TextFormatter)
	formatter.TimestampFormat = `Jan 02 15:04:05`
	formatter.FullTimestamp = true

	log.Formatter = formatter
	log.Out = os.Stderr
	log.SetLevel(levelFromEnv())
}

func levelFromEnv() logrus.Level {
	switch strings.ToLower(os.Getenv("SHEETDECK_LOGLEVEL")) {
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Get returns the shared console logger.
func Get() *logrus.Logger {
	return log
}

// SetLogger replaces the shared logger, mostly for tests.
func SetLogger(logger *logrus.Logger) {
	log = logger
}

// SetVerbose switches the shared logger to debug level. Turning it off
// restores the level from SHEETDECK_LOGLEVEL.
func SetVerbose(verbose bool) {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
		return
	}
	log.SetLevel(levelFromEnv())
}

// Logger mirrors the shared logger into a per-run log file.
type Logger struct {
	file *os.File
	hook *fileHook
	mu   sync.Mutex
}

// NewLogger creates a new Logger instance
func NewLogger() *Logger {
	return &Logger{}
}

// Init starts copying every entry of the shared logger to a file in logDir.
// Files are named sheetdeck_<date>_<run>.log.
func (l *Logger) Init(logDir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	dateStr := time.Now().Format("2006-01-02")
	pattern := filepath.Join(logDir, fmt.Sprintf("sheetdeck_%s_*.log", dateStr))
	matches, _ := filepath.Glob(pattern)
	runCount := len(matches) + 1
	filename := filepath.Join(logDir, fmt.Sprintf("sheetdeck_%s_%d.log", dateStr, runCount))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	formatter := new(prefixed.TextFormatter)
	formatter.DisableColors = true
	formatter.ForceFormatting = true
	formatter.FullTimestamp = true
	formatter.TimestampFormat = "15:04:05.000"

	l.file = f
	l.hook = &fileHook{file: f, formatter: formatter}
	log.AddHook(l.hook)
	log.WithField("prefix", "logger").Debugf("writing log to %s", filename)
	return nil
}

// Path returns the current log file, or "" when file logging is off.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Log writes a message at info level
func (l *Logger) Log(message string) {
	log.Info(message)
}

// Logf writes a formatted message at info level
func (l *Logger) Logf(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Debugf writes a formatted message at debug level
func (l *Logger) Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Warnf writes a formatted message at warning level
func (l *Logger) Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Close detaches and closes the log file
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *Logger) closeLocked() {
	if l.hook != nil {
		l.hook.disable()
		l.hook = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// fileHook copies every logged entry to a file without colours.
type fileHook struct {
	mu        sync.Mutex
	file      *os.File
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.file.Write(b)
	return err
}

// logrus has no RemoveHook, so a closed hook stays registered but inert.
func (h *fileHook) disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.file = nil
}
