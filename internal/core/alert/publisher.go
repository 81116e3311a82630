package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher fans alerts out to subscribers outside this process.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error
	Close() error
}

// NATSConfig is the connection setup of the alert publisher.
type NATSConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATSPublisher publishes alerts on core NATS subjects.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, data []byte, hdr map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Subject builds "<prefix>.<severity>.<category>".
func Subject(prefix string, severity Severity, category Category) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "alerts"
	}
	return fmt.Sprintf("%s.%s.%s", prefix, severity, category)
}
