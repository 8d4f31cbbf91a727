// Package logtest provides a recording slog.Handler so tests can assert
// the exact log lines downstream tooling matches on.
package logtest

import (
	"context"
	"log/slog"
	"sync"
)

type Record struct {
	Level   slog.Level
	Message string
}

type Handler struct {
	mu      sync.Mutex
	records []Record
}

func NewHandler() *Handler {
	return &Handler{}
}

// Logger returns a slog.Logger writing into the handler.
func (h *Handler) Logger() *slog.Logger {
	return slog.New(h)
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, Record{Level: r.Level, Message: r.Message})
	return nil
}

func (h *Handler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *Handler) WithGroup(string) slog.Handler      { return h }

// Records returns a copy of everything logged so far.
func (h *Handler) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.records...)
}

// Messages returns the messages logged at the given level, in order.
func (h *Handler) Messages(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

// Reset discards recorded entries.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}
