// Package reporter gives every component an injected logging capability
// instead of letting it call the terminal renderer directly. This is a
// generalization of the teacher's scattered log.Printf calls into a
// small interface components take as a constructor argument.
package reporter

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Reporter is the logging capability injected into every component.
type Reporter interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// logReporter backs Info/Warn onto one sink and Error onto a second,
// matching APP_LOG_PATH / ERROR_LOG_PATH.
type logReporter struct {
	app *log.Logger
	err *log.Logger
}

// New builds a Reporter writing INFO/WARN lines to appW and ERROR lines
// to errW. Pass the same writer for both to collapse them into one
// stream.
func New(appW, errW io.Writer) Reporter {
	return &logReporter{
		app: log.New(appW, "", log.LstdFlags),
		err: log.New(errW, "", log.LstdFlags),
	}
}

// NewStdio is the common case: info/warn to stdout, errors to stderr.
func NewStdio() Reporter {
	return New(os.Stdout, os.Stderr)
}

// Open builds a Reporter from file paths, creating/appending as needed.
// An empty path falls back to the corresponding stdio stream.
func Open(appLogPath, errorLogPath string) (Reporter, func(), error) {
	appW, appClose, err := openOrDefault(appLogPath, os.Stdout)
	if err != nil {
		return nil, nil, fmt.Errorf("opening app log: %w", err)
	}
	errW, errClose, err := openOrDefault(errorLogPath, os.Stderr)
	if err != nil {
		appClose()
		return nil, nil, fmt.Errorf("opening error log: %w", err)
	}
	closeAll := func() {
		appClose()
		errClose()
	}
	return New(appW, errW), closeAll, nil
}

func openOrDefault(path string, fallback *os.File) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func (r *logReporter) Info(format string, args ...interface{})  { r.app.Printf(format, args...) }
func (r *logReporter) Warn(format string, args ...interface{})  { r.app.Printf("WARN: "+format, args...) }
func (r *logReporter) Error(format string, args ...interface{}) { r.err.Printf(format, args...) }
