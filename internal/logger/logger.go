package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// ErrUnknownLogFile is returned by CleanLogs for names other than the level files.
var ErrUnknownLogFile = errors.New("unknown log file")

// Logger provides leveled logging (info/warning/error) to stdout/stderr and,
// when a log directory is configured, to one file per level.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	infoWriter io.Writer
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

// NewLogger creates a Logger. An empty logDir disables the log files.
func NewLogger(logDir string) (*Logger, error) {
	l := &Logger{logDir: logDir}

	if logDir == "" {
		l.setupLoggers(os.Stdout, os.Stdout, os.Stderr)
		return l, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	var handles [3]*os.File
	for i, name := range []string{InfoFile, WarningFile, ErrorFile} {
		f, err := l.openLogFile(filepath.Join(logDir, name))
		if err != nil {
			l.Close()
			return nil, err
		}
		handles[i] = f
		l.files = append(l.files, f)
	}

	l.setupLoggers(
		io.MultiWriter(os.Stdout, handles[0]),
		io.MultiWriter(os.Stdout, handles[1]),
		io.MultiWriter(os.Stderr, handles[2]),
	)
	return l, nil
}

// NewDiscard returns a Logger that drops everything, for tests.
func NewDiscard() *Logger {
	l := &Logger{}
	l.setupLoggers(io.Discard, io.Discard, io.Discard)
	return l
}

// NewWriter sends every level to w without file output.
func NewWriter(w io.Writer) *Logger {
	l := &Logger{}
	l.setupLoggers(w, w, w)
	return l
}

// setupLoggers initializes the per-level loggers.
func (l *Logger) setupLoggers(info, warning, errw io.Writer) {
	l.infoWriter = info
	l.infoLog = log.New(info, "INFO    ", log.Ldate|log.Ltime|log.Lshortfile)
	l.warningLog = log.New(warning, "WARNING ", log.Ldate|log.Ltime|log.Lshortfile)
	l.errorLog = log.New(errw, "ERROR   ", log.Ldate|log.Ltime|log.Lshortfile)
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	return file, nil
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Output(2, fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Output(2, fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Output(2, fmt.Sprintf(format, v...))
}

// Writer exposes the info stream, used for the HTTP access log.
func (l *Logger) Writer() io.Writer {
	return lockedWriter{l}
}

type lockedWriter struct{ l *Logger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.infoWriter.Write(p)
}

// Directory returns the log directory, or "" when file output is off.
func (l *Logger) Directory() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return ErrUnknownLogFile
	}
	switch fileName {
	case InfoFile, WarningFile, ErrorFile:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownLogFile, fileName)
	}

	l.mu.Lock()
	err := os.Truncate(filepath.Join(l.logDir, fileName), 0)
	l.mu.Unlock()
	if err != nil {
		l.Error("Error truncating log file %s: %v", fileName, err)
		return err
	}

	l.Info("Log file %s has been cleared.", fileName)
	return nil
}

// Close closes the log files.
func (l *Logger) Close() error {
	var err error
	for _, f := range l.files {
		if cerr := f.Close(); cerr != nil {
			err = cerr
		}
	}
	l.files = nil
	return err
}
