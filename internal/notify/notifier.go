// Package notify fans lifecycle and trade events out to operator channels
// (Discord, Telegram). Delivery is asynchronous and best-effort; the trading
// path never waits on a webhook.
package notify

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Event kinds the engine emits.
const (
	EventMarketOpened   = "market_opened"
	EventMarketResolved = "market_resolved"
	EventTradeExecuted  = "trade_executed"
	EventTransferFailed = "transfer_failed"
)

// Event is one notification: a kind for filtering, a title, and optional
// key/value details rendered under it.
type Event struct {
	Kind   string
	Title  string
	Fields map[string]string
}

// Body renders the detail fields as sorted "key: value" lines.
func (e Event) Body() string {
	if len(e.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(e.Fields[k])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, ev Event) error
	Name() string
}

// Notifier dispatches events to all senders, filtered by kind. An empty
// allowed list lets every kind through.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewNotifier builds a Notifier delivering to senders. Only kinds listed in
// events pass the filter; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		timeout: 10 * time.Second,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the event to every sender in the background. The caller's
// context only gates the filter check; dispatch runs on its own deadline so
// a slow webhook cannot stall the caller.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.allowed) > 0 && !n.allowed[ev.Kind] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("kind", ev.Kind))
		return
	}

	for _, s := range n.senders {
		go func(s Sender) {
			sendCtx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()

			if err := s.Send(sendCtx, ev); err != nil {
				n.logger.Error("sender failed",
					slog.String("sender", s.Name()),
					slog.String("kind", ev.Kind),
					slog.String("error", err.Error()))
				return
			}
			n.logger.Debug("notification sent",
				slog.String("sender", s.Name()),
				slog.String("kind", ev.Kind))
		}(s)
	}
}
