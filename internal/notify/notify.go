// Package notify carries user-facing feedback: toast-style notifications for
// mutation outcomes and the confirmation step that guards destructive
// actions.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// Notifier delivers a message to the user.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, kind Kind, message string)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, kind Kind, message string) { f(ctx, kind, message) }

// Nop discards notifications.
var Nop Notifier = NotifierFunc(func(context.Context, Kind, string) {})

// Terminal writes one line per notification, styled when color is on.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[Kind]lipgloss.Style
}

var icons = map[Kind]string{Success: "✓", Error: "✗", Info: "•"}

// NewTerminal returns a notifier writing to w.
func NewTerminal(w io.Writer, color bool) *Terminal {
	t := &Terminal{w: w}
	if color {
		r := lipgloss.NewRenderer(w)
		t.styles = map[Kind]lipgloss.Style{
			Success: r.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
			Error:   r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
			Info:    r.NewStyle().Foreground(lipgloss.Color("69")),
		}
	}
	return t
}

// Notify writes the message.
func (t *Terminal) Notify(_ context.Context, kind Kind, message string) {
	line := fmt.Sprintf("%s %s", icons[kind], message)
	if style, ok := t.styles[kind]; ok {
		line = style.Render(line)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, line)
}

// LogNotifier records notifications in the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier backed by logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs errors at warn and everything else at info.
func (n *LogNotifier) Notify(_ context.Context, kind Kind, message string) {
	fields := []zap.Field{zap.String("kind", string(kind)), zap.String("message", message)}
	if kind == Error {
		n.logger.Warn("notification", fields...)
		return
	}
	n.logger.Info("notification", fields...)
}

// Event is one recorded notification.
type Event struct {
	Kind    Kind
	Message string
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify records the event.
func (r *Recorder) Notify(_ context.Context, kind Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Message: message})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Last returns the most recent event.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets all events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify calls every non-nil notifier in order.
func (m Multi) Notify(ctx context.Context, kind Kind, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, kind, message)
		}
	}
}
