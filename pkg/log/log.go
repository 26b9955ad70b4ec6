// Package log provides the engine's logging facility: a single Logger fed
// through a buffered channel by a background worker, writing structured JSON
// to a log file and, optionally, colored output to the console.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Fields carries structured key/value context attached to a log message.
type Fields map[string]any

// message is one queued log entry.
type message struct {
	level   Level
	content string
	fields  Fields
	ctx     context.Context
}

// Logger is a logging instance writing to a JSON log file and optionally to
// the console. All writes go through a single background goroutine so log
// calls never block manager operations on file I/O.
type Logger struct {
	fileLogger    *slog.Logger
	consoleLogger *slog.Logger
	file          *os.File
	msgChan       chan message
	done          chan struct{}
	wg            sync.WaitGroup
	minLevel      Level
}

// New creates a Logger writing to <logDir>/engine.log at the given minimum
// level. When console is true, messages are also printed to stderr through a
// colored tint handler.
func New(logDir string, level Level, console bool) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "engine.log")
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := &Logger{
		fileLogger: slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
			Level: level.toSlog(),
		})),
		file:     file,
		msgChan:  make(chan message, 100),
		done:     make(chan struct{}),
		minLevel: level,
	}
	if console {
		logger.consoleLogger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level.toSlog(),
			TimeFormat: time.Kitchen,
		}))
	}

	logger.wg.Add(1)
	go logger.process()

	return logger, nil
}

// process drains the message channel until Close is called.
func (l *Logger) process() {
	defer l.wg.Done()
	for {
		select {
		case msg := <-l.msgChan:
			l.emit(msg)
		case <-l.done:
			// Flush whatever is still queued before shutting down.
			for {
				select {
				case msg := <-l.msgChan:
					l.emit(msg)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) emit(msg message) {
	attrs := make([]any, 0, len(msg.fields)*2)
	for k, v := range msg.fields {
		attrs = append(attrs, k, v)
	}
	ctx := msg.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.fileLogger.Log(ctx, msg.level.toSlog(), msg.content, attrs...)
	if l.consoleLogger != nil {
		l.consoleLogger.Log(ctx, msg.level.toSlog(), msg.content, attrs...)
	}
}

func (l *Logger) log(ctx context.Context, level Level, content string, fields Fields) {
	if level < l.minLevel {
		return
	}
	select {
	case l.msgChan <- message{level: level, content: content, fields: fields, ctx: ctx}:
	case <-l.done:
	}
}

// Debug logs a message at debug level.
func (l *Logger) Debug(ctx context.Context, content string, fields Fields) {
	l.log(ctx, LevelDebug, content, fields)
}

// Info logs a message at info level.
func (l *Logger) Info(ctx context.Context, content string, fields Fields) {
	l.log(ctx, LevelInfo, content, fields)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(ctx context.Context, content string, fields Fields) {
	l.log(ctx, LevelWarn, content, fields)
}

// Error logs a message at error level.
func (l *Logger) Error(ctx context.Context, content string, fields Fields) {
	l.log(ctx, LevelError, content, fields)
}

// Close stops the background worker, flushes queued messages and closes the
// log file.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
