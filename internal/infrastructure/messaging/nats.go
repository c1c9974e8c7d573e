package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hilthontt/buzzer/internal/infrastructure/contracts"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultSubjectPrefix = "buzzer.rooms"
	DefaultStreamName    = "BUZZER_ROOMS"
)

type NATSConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
	MaxDeliver    int
	AckWait       time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    DefaultStreamName,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		MaxAge:        7 * 24 * time.Hour,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
	}
}

// NATS publishes room events on a JetStream stream. Subjects are the routing
// key prefixed with SubjectPrefix.
type NATS struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
	logger logging.Logger

	consumeCtxs []jetstream.ConsumeContext
}

var _ Bus = (*NATS)(nil)

func NewNATS(cfg NATSConfig, logger logging.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("buzzer"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err == nil {
				return
			}
			logger.Error(logging.NATS, logging.ExternalService, "NATS disconnected", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(logging.NATS, logging.ExternalService, "NATS reconnected", map[logging.ExtraKey]any{
				logging.HostIp: nc.ConnectedUrl(),
			})
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error(logging.NATS, logging.ExternalService, "NATS error", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	n := &NATS{nc: nc, js: js, config: cfg, logger: logger}

	if err := n.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return n, nil
}

func (n *NATS) ensureStream(ctx context.Context) error {
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        n.config.StreamName,
		Description: "Buzzer room lifecycle events",
		Subjects:    []string{n.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      n.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("create or update stream %s: %w", n.config.StreamName, err)
	}
	return nil
}

func (n *NATS) subject(routingKey string) string {
	return n.config.SubjectPrefix + "." + routingKey
}

func (n *NATS) PublishMessage(ctx context.Context, routingKey string, msg contracts.AmqpMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if _, err := n.js.PublishMsg(ctx, &nats.Msg{
		Subject: n.subject(routingKey),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{routingKey},
			"Room-ID":    []string{msg.RoomID},
		},
	}, jetstream.WithExpectStream(n.config.StreamName)); err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}
	return nil
}

// ConsumeMessages attaches a durable consumer named after queue. Messages are
// acked on success and nacked for redelivery up to MaxDeliver times.
func (n *NATS) ConsumeMessages(ctx context.Context, queue string, handler Handler) error {
	durable := strings.NewReplacer(".", "_", " ", "_").Replace(queue)

	consumer, err := n.js.CreateOrUpdateConsumer(ctx, n.config.StreamName, jetstream.ConsumerConfig{
		Name:          durable,
		Durable:       durable,
		FilterSubject: n.config.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    n.config.MaxDeliver,
		AckWait:       n.config.AckWait,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			n.logger.Error(logging.NATS, logging.Consume, "failed to handle message", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
				logging.EventType:    msg.Subject(),
			})
			if nakErr := msg.Nak(); nakErr != nil {
				n.logger.Error(logging.NATS, logging.Consume, "failed to nak message", map[logging.ExtraKey]any{
					logging.ErrorMessage: nakErr.Error(),
				})
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			n.logger.Error(logging.NATS, logging.Consume, "failed to ack message", map[logging.ExtraKey]any{
				logging.ErrorMessage: ackErr.Error(),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer %s: %w", durable, err)
	}
	n.consumeCtxs = append(n.consumeCtxs, consumeCtx)

	go func() {
		<-ctx.Done()
		consumeCtx.Stop()
	}()

	return nil
}

func (n *NATS) Close() {
	for _, cc := range n.consumeCtxs {
		cc.Stop()
	}
	if n.nc != nil {
		n.nc.Drain()
	}
}
