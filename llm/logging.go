package llm

import (
	"context"
	"log"
	"strings"
	"time"
)

// Completer is the prompt-in, text-out surface the pipeline consumes.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// LoggingCompleter wraps a Completer and logs prompt and response previews
// with timings. With Debug off only sizes and durations are logged, so
// prompt contents stay out of the default logs.
type LoggingCompleter struct {
	Inner  Completer
	Logger *log.Logger
	Debug  bool
}

func NewLoggingCompleter(inner Completer, logger *log.Logger, debug bool) *LoggingCompleter {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingCompleter{Inner: inner, Logger: logger, Debug: debug}
}

func (m *LoggingCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	if m.Debug {
		m.Logger.Printf("[llm] prompt (%d chars): %s", len(prompt), clip(prompt, 1024))
	} else {
		m.Logger.Printf("[llm] prompt: %d chars", len(prompt))
	}
	start := time.Now()
	text, err := m.Inner.Complete(ctx, system, prompt)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		m.Logger.Printf("[llm] error after %s: %v", elapsed, err)
		return "", err
	}
	if m.Debug {
		m.Logger.Printf("[llm] response after %s (%d chars): %s", elapsed, len(text), clip(text, 1024))
	} else {
		m.Logger.Printf("[llm] response after %s: %d chars", elapsed, len(text))
	}
	return text, nil
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
