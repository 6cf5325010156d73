package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const flushTimeout = 5 * time.Second

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n
func (l *LogNotifier) Notify(_ context.Context, n *Notification) error {
	l.logger.Info().
		Str("network_id", n.NetworkID).
		Str("status", n.Status).
		Strs("to", n.To).
		Str("subject", n.Subject).
		Msg("Station notification")
	return nil
}

// NATSNotifier publishes notifications as JSON on a NATS subject, where
// the mail collaborator consumes them.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSNotifier connects to the NATS server at url
func NewNATSNotifier(url, subject string, logger zerolog.Logger) (*NATSNotifier, error) {
	opts := []nats.Option{
		nats.Name("meteornet-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSNotifier{conn: nc, subject: subject, logger: logger}, nil
}

// Notify publishes n and waits until the server has received it.
func (p *NATSNotifier) Notify(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush notification: %w", err)
	}

	p.logger.Debug().Str("network_id", n.NetworkID).Str("subject", p.subject).Msg("Notification published")
	return nil
}

// Close drains and closes the connection
func (p *NATSNotifier) Close() error {
	return p.conn.Drain()
}
