package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// newHourlyHandler builds a slog.Handler that writes
// "[ISO8601] [LEVEL] component: message\n  {json}" lines to an
// hourly-rotated file under dir/service/.
func newHourlyHandler(dir, service string, level slog.Level) slog.Handler {
	return &lineHandler{
		writer: newHourlyWriter(dir, service),
		level:  level,
		attrs:  nil,
	}
}

// lineHandler implements slog.Handler with the fixed on-disk line
// format §6.1 specifies, rather than slog's built-in text/JSON layouts.
type lineHandler struct {
	writer *hourlyWriter
	level  slog.Level
	attrs  []slog.Attr
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]interface{}, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	component, _ := fields["source"].(string)
	delete(fields, "source")

	line := fmt.Sprintf("[%s] [%s] %s: %s\n", r.Time.Format("2006-01-02T15:04:05Z07:00"), r.Level.String(), component, r.Message)
	if len(fields) > 0 {
		if encoded, err := json.Marshal(fields); err == nil {
			line += "  " + string(encoded) + "\n"
		}
	}

	_, err := h.writer.Write([]byte(line))
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &lineHandler{writer: h.writer, level: h.level, attrs: merged}
}

func (h *lineHandler) WithGroup(_ string) slog.Handler {
	// Flat attribute namespace; groups collapse into the same map.
	return h
}

// fanoutHandler dispatches every record to multiple handlers, so a
// logger can write both to stderr and to the hourly file sink.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: out}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: out}
}
