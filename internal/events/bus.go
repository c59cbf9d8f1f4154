package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wsplatform/checkout-api/internal/obs"
	"github.com/wsplatform/checkout-api/internal/payment"
)

// Notifier reacts to payment status changes (broker, log, etc.).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, topic string, change payment.StatusChange) error
}

// Bus fans status changes out to every configured notifier. It satisfies
// payment.Publisher.
type Bus struct {
	Notifiers []Notifier
}

// PublishStatusChange dispatches change to all notifiers. A failing notifier
// does not stop the others; their errors are joined.
func (b *Bus) PublishStatusChange(ctx context.Context, change payment.StatusChange) error {
	if b == nil {
		return errors.New("events: bus not configured")
	}
	if change.ExternalReference == "" {
		return errors.New("events: external reference is required")
	}
	topic := TopicFor(change.Status)
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, topic, change); err != nil {
			obs.IncCounter(obs.EventsPublishedTotal, notifier.Name(), "error")
			joined = errors.Join(joined, fmt.Errorf("events: notifier %s: %w", notifier.Name(), err))
			continue
		}
		obs.IncCounter(obs.EventsPublishedTotal, notifier.Name(), "ok")
	}
	return joined
}

// LogNotifier writes each change to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Name identifies the notifier in metrics.
func (LogNotifier) Name() string { return "log" }

// Notify logs the change at info level.
func (n LogNotifier) Notify(_ context.Context, topic string, change payment.StatusChange) error {
	n.Logger.Info().
		Str("topic", topic).
		Str("payment_id", change.PaymentID).
		Str("status", string(change.Status)).
		Str("previous_status", string(change.PreviousStatus)).
		Msg("payment status changed")
	return nil
}
