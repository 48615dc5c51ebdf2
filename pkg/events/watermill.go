package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
)

const (
	metaType        = "event_type"
	metaAggregateID = "aggregate_id"
)

// WatermillPublisher publishes events to a Watermill backend, one topic
// per event type.
type WatermillPublisher struct {
	pub    message.Publisher
	log    *logging.ComponentLogger
	mu     sync.RWMutex
	closed bool
}

func NewWatermillPublisher(pub message.Publisher, log *logging.Logger) *WatermillPublisher {
	if log == nil {
		log = logging.NewNop()
	}
	return &WatermillPublisher{pub: pub, log: log.WithComponent("events")}
}

// Publish marshals e into a message with a fresh UUID.
func (p *WatermillPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	data, err := e.MarshalData()
	if err != nil {
		metrics.RecordEventPublish(e.Type(), err)
		return fmt.Errorf("serialize event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(metaType, e.Type())
	msg.Metadata.Set(metaAggregateID, strconv.FormatInt(e.AggregateID(), 10))
	msg.SetContext(ctx)

	err = p.pub.Publish(e.Type(), msg)
	metrics.RecordEventPublish(e.Type(), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type(), err)
	}
	p.log.Debug(ctx, "event published",
		logging.String("type", e.Type()),
		logging.String("message_id", msg.UUID),
		logging.Int64("aggregate_id", e.AggregateID()))
	return nil
}

// Close closes the underlying Watermill publisher. Safe to call repeatedly.
func (p *WatermillPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pub.Close()
}

// DecodeMessage turns a received Watermill message back into an event.
func DecodeMessage(msg *message.Message) (Event, error) {
	return Decode(msg.Metadata.Get(metaType), msg.Payload)
}

// WatermillLogger adapts the application logger for Watermill components.
func WatermillLogger(log *logging.Logger) watermill.LoggerAdapter {
	if log == nil {
		log = logging.NewNop()
	}
	return &wmLogger{log: log.WithComponent("watermill")}
}

type wmLogger struct {
	log    *logging.ComponentLogger
	fields watermill.LogFields
}

func (l *wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error(context.Background(), msg, err, l.convert(fields)...)
}

func (l *wmLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info(context.Background(), msg, l.convert(fields)...)
}

func (l *wmLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug(context.Background(), msg, l.convert(fields)...)
}

// Trace is folded into debug.
func (l *wmLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debug(context.Background(), msg, l.convert(fields)...)
}

func (l *wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &wmLogger{log: l.log, fields: l.fields.Add(fields)}
}

func (l *wmLogger) convert(fields watermill.LogFields) []logging.Field {
	all := l.fields.Add(fields)
	out := make([]logging.Field, 0, len(all))
	for k, v := range all {
		out = append(out, logging.Any(k, v))
	}
	return out
}

// NewGoChannel returns an in-process publisher and the GoChannel that
// backs it, so in-process subscribers can attach.
func NewGoChannel(log *logging.Logger) (*WatermillPublisher, *gochannel.GoChannel) {
	gc := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, WatermillLogger(log))
	return NewWatermillPublisher(gc, log), gc
}

// NATSConfig configures the NATS backend.
type NATSConfig struct {
	URL           string
	JetStream     bool
	MaxReconnects int
	ReconnectWait time.Duration
}

// NewNATS connects a publisher to NATS, optionally through JetStream.
func NewNATS(cfg NATSConfig, log *logging.Logger) (*WatermillPublisher, error) {
	wmLog := WatermillLogger(log)
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				wmLog.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			wmLog.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.JetStream,
			AutoProvision: cfg.JetStream,
			TrackMsgId:    cfg.JetStream,
		},
	}, wmLog)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return NewWatermillPublisher(pub, log), nil
}
