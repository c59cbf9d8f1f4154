package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wsplatform/checkout-api/internal/events"
	"github.com/wsplatform/checkout-api/internal/payment"
)

type captureNotifier struct {
	topics  []string
	changes []payment.StatusChange
	err     error
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Notify(_ context.Context, topic string, change payment.StatusChange) error {
	c.topics = append(c.topics, topic)
	c.changes = append(c.changes, change)
	return c.err
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	declareErr error
	publishErr error
	published  []published
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	if !durable {
		return errors.New("exchange must be durable")
	}
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func sampleChange() payment.StatusChange {
	return payment.StatusChange{
		ExternalReference: "buyer@example.com",
		PaymentID:         "123",
		Status:            payment.StatusApproved,
		PreviousStatus:    payment.StatusPending,
		UpdatedAt:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBusFansOutToNotifiers(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{first, nil, second}}

	require.NoError(t, bus.PublishStatusChange(context.Background(), sampleChange()))
	require.Equal(t, []string{events.TopicPaymentApproved}, first.topics)
	require.Equal(t, []string{events.TopicPaymentApproved}, second.topics)
	require.Equal(t, "123", second.changes[0].PaymentID)
}

func TestBusJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("broker down")}
	ok := &captureNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{failing, ok}}

	err := bus.PublishStatusChange(context.Background(), sampleChange())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker down")
	require.Len(t, ok.changes, 1)
}

func TestBusRejectsMissingReference(t *testing.T) {
	bus := &events.Bus{Notifiers: []events.Notifier{&captureNotifier{}}}
	change := sampleChange()
	change.ExternalReference = ""
	require.Error(t, bus.PublishStatusChange(context.Background(), change))
}

func TestTopicFor(t *testing.T) {
	require.Equal(t, events.TopicPaymentRejected, events.TopicFor(payment.StatusRejected))
	require.Equal(t, events.TopicPaymentCancelled, events.TopicFor(payment.StatusCancelled))
	require.Equal(t, events.TopicPaymentPending, events.TopicFor(payment.StatusPending))
	require.Equal(t, events.TopicPaymentUnknown, events.TopicFor(payment.Status("weird")))
	require.Equal(t, "payment.approved", events.TopicFor(payment.StatusApproved))
}

func TestAMQPPublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := events.NewAMQPPublisher(ch, "")
	require.NoError(t, err)
	require.Equal(t, []string{events.DefaultExchange + ":topic"}, ch.declared)

	bus := &events.Bus{Notifiers: []events.Notifier{pub, events.LogNotifier{Logger: zerolog.Nop()}}}
	require.NoError(t, bus.PublishStatusChange(context.Background(), sampleChange()))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	require.Equal(t, events.DefaultExchange, msg.exchange)
	require.Equal(t, events.TopicPaymentApproved, msg.key)
	require.Equal(t, amqp.Persistent, msg.msg.DeliveryMode)
	require.Equal(t, "application/json", msg.msg.ContentType)
	require.NotEmpty(t, msg.msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.msg.Body, &body))
	require.Equal(t, "buyer@example.com", body["externalReference"])
	require.Equal(t, "approved", body["status"])
	require.Equal(t, "pending", body["previousStatus"])

	require.NoError(t, pub.Close())
	require.True(t, ch.closed)
	require.Error(t, pub.Notify(context.Background(), events.TopicPaymentApproved, sampleChange()))
}

func TestAMQPPublisherDeclareFailureClosesChannel(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := events.NewAMQPPublisher(ch, "payments")
	require.Error(t, err)
	require.True(t, ch.closed)
}

func TestAMQPPublisherPublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	pub, err := events.NewAMQPPublisher(ch, "payments")
	require.NoError(t, err)
	err = pub.Notify(context.Background(), events.TopicPaymentApproved, sampleChange())
	require.ErrorContains(t, err, "channel closed")
}
