package gate

import (
	"context"
	"log/slog"
)

// Notification is the user-visible report of a gate failure. Category is
// stable per failure class; Message carries the detail.
type Notification struct {
	Category string
	Message  string
	Kind     error
}

// Notifier delivers notifications to the UI or telemetry.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kind := ""
	if n.Kind != nil {
		kind = n.Kind.Error()
	}
	logger.WarnContext(ctx, "gate notification",
		slog.String("category", n.Category),
		slog.String("kind", kind),
		slog.String("message", n.Message),
	)
}

func fail(ctx context.Context, notifier Notifier, e *Error) *Error {
	notifier.Notify(ctx, Notification{
		Category: e.Category,
		Message:  e.Message,
		Kind:     e.Kind,
	})
	return e
}
