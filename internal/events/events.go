package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the subject collection announcements are published on.
const DefaultSubject = "docindex.collection.published"

// ErrNotConnected is returned when publishing through a closed connection.
var ErrNotConnected = errors.New("events: not connected")

// CollectionPublished announces that a collection became current.
type CollectionPublished struct {
	RunID       string    `json:"run_id"`
	Collection  string    `json:"collection"`
	Prefix      string    `json:"prefix"`
	Points      int       `json:"points"`
	Documents   int       `json:"documents"`
	Deleted     []string  `json:"deleted"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher announces pipeline outcomes to interested readers.
type Publisher interface {
	PublishCollection(ctx context.Context, event CollectionPublished) error
	Close() error
}

// NATSPublisher publishes events as JSON on a NATS subject.
//
// The event is published to:
//
//	docindex.collection.published
//
// unless another subject is configured.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	owned   bool
	logger  *zap.Logger
}

// NewNATSPublisher connects to url and publishes on subject.
func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("docindex"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p := NewNATSPublisherFromConn(nc, subject, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisherFromConn publishes through an existing connection. The
// connection is not closed by Close.
func NewNATSPublisherFromConn(nc *nats.Conn, subject string, logger *zap.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{nc: nc, subject: subject, logger: logger}
}

// PublishCollection publishes event and flushes the connection so the
// message is on the wire before returning.
func (p *NATSPublisher) PublishCollection(ctx context.Context, event CollectionPublished) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}

	p.logger.Debug("published collection event",
		zap.String("subject", p.subject),
		zap.String("collection", event.Collection),
	)
	return nil
}

// Subject returns the subject events are published on.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Close drains and closes the connection if this publisher opened it.
func (p *NATSPublisher) Close() error {
	if p.nc == nil || !p.owned {
		return nil
	}
	return p.nc.Drain()
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishCollection does nothing.
func (NopPublisher) PublishCollection(context.Context, CollectionPublished) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
