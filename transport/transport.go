// Package transport moves records between processes over NATS using the
// documented JSON interchange form, with OpenTelemetry trace propagation.
package transport

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/vormlabs/vorm/orm"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publish serializes a record into its JSON interchange form and publishes
// it to the given subject. Trace context from ctx is injected into the
// message headers. Serialization failures propagate; they are never
// published partially.
func Publish[T orm.Record](ctx context.Context, nc *nats.Conn, subject string, rec T) error {
	data, err := orm.MarshalText(rec)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler for records of the factory's type. Trace
// context is extracted from message headers and passed to the handler.
// Messages that do not decode are logged and dropped; one bad producer must
// not stall the subscription.
func Subscribe[T orm.Record](nc *nats.Conn, subject string, factory func() T, handler func(context.Context, T), logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		rec := factory()
		if err := orm.UnmarshalText(rec, msg.Data); err != nil {
			logger.Warn("dropping undecodable record message", "subject", subject, "err", err)
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, rec)
	})
}
