package notify

import (
	"context"
	"log/slog"

	"spendguard/internal/metrics"
	"spendguard/internal/model"
)

// Channel is one delivery target for limit alerts. Implementations report
// their own success or failure; nothing a channel returns stops the others.
type Channel interface {
	Name() string
	Send(ctx context.Context, payload model.AlertPayload) error
}

// Notifier fans an alert out to every configured channel.
type Notifier struct {
	channels []Channel
}

func New(channels ...Channel) *Notifier {
	return &Notifier{channels: channels}
}

// Dispatch sends the payload to all channels and returns a per-channel
// success map. Delivery here is best effort: the alert claim is already
// durable before Dispatch runs, so failures are logged and counted, never
// propagated.
func (n *Notifier) Dispatch(ctx context.Context, payload model.AlertPayload) map[string]bool {
	results := make(map[string]bool, len(n.channels))
	for _, ch := range n.channels {
		err := ch.Send(ctx, payload)
		results[ch.Name()] = err == nil
		if err != nil {
			metrics.NotifierFailures.WithLabelValues(ch.Name()).Inc()
			slog.Error("alert delivery failed",
				"channel", ch.Name(),
				"hour_start", payload.HourStart,
				"error", err,
			)
		}
	}
	return results
}
