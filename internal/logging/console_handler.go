package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// inlineFieldLimit caps the key=value pairs appended to an info line.
const inlineFieldLimit = 6

// consoleHandler renders one line per record:
//
//	15:04:05 INFO  [convert] image hero.png: asset encoded outputs=3 elapsed=1.2s
//
// Warnings and errors move the hint and impact fields onto indented lines.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	preset    []field
	group     string
	addSource bool
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = collectFields(append([]field(nil), h.preset...), h.group, attrs)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = collectFields(fields, h.group, []slog.Attr{attr})
		return true
	})
	fields = lastWins(fields)

	var (
		component, stage, kind, asset string
		hint, impact                  string
		rest                          []field
	)
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = attrString(f.value)
		case FieldStage:
			stage = attrString(f.value)
		case FieldKind:
			kind = attrString(f.value)
		case FieldAsset:
			asset = attrString(f.value)
		case FieldErrorHint:
			hint = attrString(f.value)
		case FieldImpact:
			impact = attrString(f.value)
		case FieldRunID:
		default:
			rest = append(rest, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(formatClock(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelTag(record.Level))
	if component != "" {
		buf.WriteString(" [" + component + "]")
	}
	if subject := FormatSubject(stage, kind, asset); subject != "" {
		buf.WriteString(" " + subject + ":")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(" " + msg)

	limit := len(rest)
	if record.Level == slog.LevelInfo && limit > inlineFieldLimit {
		limit = inlineFieldLimit
	}
	for _, f := range rest[:limit] {
		buf.WriteString(" " + f.key + "=" + formatValue(f.value))
	}
	if extra := len(rest) - limit; extra > 0 {
		buf.WriteString(" (+" + strconv.Itoa(extra) + " more)")
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" @" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line))
		}
	}
	buf.WriteByte('\n')
	if record.Level >= slog.LevelWarn {
		if hint != "" {
			buf.WriteString("    hint: " + hint + "\n")
		}
		if impact != "" {
			buf.WriteString("    impact: " + impact + "\n")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// FormatSubject names what a console line is about: the asset key when one is
// attached, otherwise the stage, qualified by the asset kind.
func FormatSubject(stage, kind, asset string) string {
	stage, kind, asset = strings.TrimSpace(stage), strings.TrimSpace(kind), strings.TrimSpace(asset)
	head := asset
	if head == "" {
		head = stage
	}
	switch {
	case head != "" && kind != "":
		return kind + " " + head
	case head != "":
		return head
	default:
		return kind
	}
}

func collectFields(dst []field, prefix string, attrs []slog.Attr) []field {
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			dst = collectFields(dst, joinKey(prefix, attr.Key), value.Group())
			continue
		}
		key := joinKey(prefix, attr.Key)
		if key == "" {
			continue
		}
		dst = append(dst, field{key: key, value: value})
	}
	return dst
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// lastWins drops earlier duplicates while keeping first-seen order.
func lastWins(fields []field) []field {
	if len(fields) < 2 {
		return fields
	}
	index := make(map[string]int, len(fields))
	out := fields[:0:0]
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}
