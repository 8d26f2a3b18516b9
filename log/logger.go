// Package log provides the category logger used across mini-bidi.
//
// Every line carries a category ("bidi:send", "transport", "connection", ...)
// so protocol traffic can be filtered independently of dispatcher noise.
package log

import (
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger with per-category filtering and elapsed-time
// annotations between consecutive log calls.
type Logger struct {
	Log            *logrus.Logger
	mu             sync.Mutex
	lastLogCall    int64
	categoryFilter *regexp.Regexp
}

// NewNullLogger returns a logger that discards everything.
func NewNullLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l, nil)
}

// New creates a Logger. A nil categoryFilter lets every category through.
func New(logger *logrus.Logger, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		Log:            logger,
		categoryFilter: categoryFilter,
	}
}

// NewFromLevel builds a text logger writing to out at the given level.
func NewFromLevel(out io.Writer, level string, categoryFilter string) (*Logger, error) {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(pl)

	var re *regexp.Regexp
	if categoryFilter != "" {
		if re, err = regexp.Compile(categoryFilter); err != nil {
			return nil, fmt.Errorf("invalid log category filter %q: %w", categoryFilter, err)
		}
	}
	return New(l, re), nil
}

func (l *Logger) Tracef(category string, msg string, args ...any) {
	l.Logf(logrus.TraceLevel, category, msg, args...)
}

func (l *Logger) Debugf(category string, msg string, args ...any) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

func (l *Logger) Infof(category string, msg string, args ...any) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

func (l *Logger) Warnf(category string, msg string, args ...any) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

func (l *Logger) Errorf(category string, msg string, args ...any) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

// Logf logs msg under category at level. A nil Logger is a no-op so
// components can be built without one.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...any) {
	if l == nil {
		return
	}
	if l.Log != nil && l.Log.GetLevel() < level {
		return
	}
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UnixNano() / int64(time.Millisecond)
	elapsed := now - l.lastLogCall
	if elapsed == now {
		elapsed = 0
	}
	l.lastLogCall = now

	if l.Log == nil {
		magenta := color.New(color.FgMagenta).SprintFunc()
		fmt.Printf("%s: %s - %s ms\n", magenta(category), fmt.Sprintf(msg, args...), magenta(elapsed))
		return
	}
	l.Log.WithFields(logrus.Fields{
		"category": category,
		"elapsed":  fmt.Sprintf("%d ms", elapsed),
	}).Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string ("debug", "info", ...).
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Log.SetLevel(pl)
	return nil
}

// DebugMode reports whether debug lines are emitted.
func (l *Logger) DebugMode() bool {
	return l != nil && l.Log != nil && l.Log.GetLevel() >= logrus.DebugLevel
}
