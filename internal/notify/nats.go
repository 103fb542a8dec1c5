// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/metrics"
)

// Envelope is the message body published for each outcome.
type Envelope struct {
	Origin  Origin  `json:"origin"`
	Outcome Outcome `json:"outcome"`
}

// BusSink publishes outcomes to a message bus topic so that other services
// (a chat bot, a leaderboard refresher) can react to them.
type BusSink struct {
	publisher message.Publisher
	topic     string
	log       zerolog.Logger
}

var _ Sink = (*BusSink)(nil)

// NewBusSink publishes to topic through publisher.
func NewBusSink(publisher message.Publisher, topic string) *BusSink {
	return &BusSink{
		publisher: publisher,
		topic:     topic,
		log:       logging.WithComponent("notify-bus"),
	}
}

// Notify implements Sink.
func (s *BusSink) Notify(ctx context.Context, origin Origin, outcome Outcome) {
	err := s.publish(origin, outcome)
	metrics.RecordNotification("nats", err)
	if err != nil {
		s.log.Warn().Err(err).Str("topic", s.topic).Str("job_id", outcome.JobID).Msg("outcome not published")
	}
}

func (s *BusSink) publish(origin Origin, outcome Outcome) error {
	data, err := json.Marshal(Envelope{Origin: origin, Outcome: outcome})
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), data)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set("status", string(outcome.Status))
	msg.Metadata.Set("rework", outcome.Rework)
	if outcome.Aggregate {
		msg.Metadata.Set("aggregate", "true")
	}

	return s.publisher.Publish(s.topic, msg)
}

// NATSPublisherConfig configures NewNATSPublisher.
type NATSPublisherConfig struct {
	URL       string
	JetStream bool
}

// NewNATSPublisher connects a watermill publisher to NATS. With JetStream
// enabled the stream must already exist.
func NewNATSPublisher(cfg NATSPublisherConfig) (message.Publisher, error) {
	logger := NewWatermillLogger(logging.WithComponent("nats"))

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.JetStream,
			AutoProvision: false,
			TrackMsgId:    cfg.JetStream,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// WatermillLogger adapts zerolog to watermill.LoggerAdapter.
type WatermillLogger struct {
	log zerolog.Logger
}

var _ watermill.LoggerAdapter = WatermillLogger{}

// NewWatermillLogger wraps log.
func NewWatermillLogger(log zerolog.Logger) WatermillLogger {
	return WatermillLogger{log: log}
}

func (l WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return WatermillLogger{log: l.log.With().Fields(map[string]interface{}(fields)).Logger()}
}
