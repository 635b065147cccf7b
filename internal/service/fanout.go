package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fanout relays JSON payloads between API nodes over NATS when configured,
// otherwise over Redis pub/sub. Payloads published by this node are dropped on
// receipt.
type fanout struct {
	redis   *redis.Client
	channel string
	nats    *nats.Conn
	subject string
	nodeID  string
	logger  zerolog.Logger
}

type fanoutEnvelope struct {
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// newFanout derives "<base>:<topic>" for Redis and "<base>.<topic>" for NATS.
// An empty base keeps everything on this node.
func newFanout(redisClient *redis.Client, natsConn *nats.Conn, channelBase, topic string, logger zerolog.Logger) *fanout {
	f := &fanout{
		redis:  redisClient,
		nats:   natsConn,
		nodeID: uuid.NewString(),
		logger: logger,
	}
	if channelBase != "" {
		f.channel = channelBase + ":" + topic
		f.subject = strings.ReplaceAll(channelBase, ":", ".") + "." + topic
	}
	return f
}

func (f *fanout) useNATS() bool {
	return f.nats != nil && f.subject != ""
}

func (f *fanout) useRedis() bool {
	return f.redis != nil && f.channel != ""
}

func (f *fanout) publish(ctx context.Context, payload interface{}) error {
	if !f.useNATS() && !f.useRedis() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fanoutEnvelope{Source: f.nodeID, Payload: body})
	if err != nil {
		return err
	}

	if f.useNATS() {
		return f.nats.Publish(f.subject, data)
	}
	return f.redis.Publish(ctx, f.channel, data).Err()
}

// start delivers payloads from other nodes to handle until ctx is done.
func (f *fanout) start(ctx context.Context, handle func(json.RawMessage)) {
	switch {
	case f.useNATS():
		f.consumeNATS(ctx, handle)
	case f.useRedis():
		go f.consumeRedis(ctx, handle)
	}
}

func (f *fanout) consumeNATS(ctx context.Context, handle func(json.RawMessage)) {
	sub, err := f.nats.Subscribe(f.subject, func(msg *nats.Msg) {
		f.receive(msg.Data, handle)
	})
	if err != nil {
		f.logger.Error().Err(err).Str("subject", f.subject).Msg("failed to subscribe to nats subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			f.logger.Warn().Err(err).Str("subject", f.subject).Msg("failed to drain nats subscription")
		}
	}()
}

func (f *fanout) consumeRedis(ctx context.Context, handle func(json.RawMessage)) {
	pubsub := f.redis.Subscribe(ctx, f.channel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, redis.ErrClosed) {
				f.logger.Error().Err(err).Str("channel", f.channel).Msg("redis subscription closed")
			}
			return
		}
		f.receive([]byte(msg.Payload), handle)
	}
}

func (f *fanout) receive(data []byte, handle func(json.RawMessage)) {
	var envelope fanoutEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Warn().Err(err).Msg("invalid fanout envelope")
		return
	}
	if envelope.Source == f.nodeID {
		return
	}
	handle(envelope.Payload)
}
