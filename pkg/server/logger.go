package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LogSink stores job log records.
type LogSink interface {
	InsertLog(ctx context.Context, jobID uuid.UUID, ts time.Time, level, message string, metadata json.RawMessage) error
}

// DBLogHandler is a slog.Handler that writes records to the database and,
// optionally, to a console handler as well.
type DBLogHandler struct {
	sink    LogSink
	jobID   uuid.UUID
	console slog.Handler
	attrs   []scopedAttr
	groups  []string
}

// scopedAttr is an attribute added through WithAttrs under the groups open at the time.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func NewDBLogHandler(sink LogSink, jobID uuid.UUID, console slog.Handler) *DBLogHandler {
	return &DBLogHandler{sink: sink, jobID: jobID, console: console}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true // Log everything
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, sa := range h.attrs {
		addAttr(groupMap(attrs, sa.groups), sa.attr)
	}
	target := groupMap(attrs, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Logs persist even when the request context is gone
	err = h.sink.InsertLog(context.Background(), h.jobID, r.Time, r.Level.String(), r.Message, metaJSON)

	if h.console != nil && h.console.Enabled(ctx, r.Level) {
		_ = h.console.Handle(ctx, r)
	}
	return err
}

func groupMap(root map[string]any, groups []string) map[string]any {
	m := root
	for _, g := range groups {
		next, ok := m[g].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[g] = next
		}
		m = next
	}
	return m
}

func addAttr(m map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := make(map[string]any)
		for _, ga := range v.Group() {
			addAttr(group, ga)
		}
		if a.Key == "" {
			for k, gv := range group {
				m[k] = gv
			}
			return
		}
		m[a.Key] = group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			m[a.Key] = err.Error()
			return
		}
		m[a.Key] = v.Any()
	default:
		m[a.Key] = v.Any()
	}
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]scopedAttr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	if h.console != nil {
		next.console = h.console.WithAttrs(attrs)
	}
	return &next
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	if h.console != nil {
		next.console = h.console.WithGroup(name)
	}
	return &next
}
