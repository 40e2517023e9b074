package quota

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/baketa-translate/core/pkg/mq/xkafka"
	"github.com/baketa-translate/core/pkg/observability/xlog"
)

// eventMessage is the wire shape published for a change event,
// deliberately minimal: downstream billing consumers key off Kind and
// SessionToken and re-derive the rest from their own license mirror.
type eventMessage struct {
	Kind         string `json:"kind"`
	SessionToken string `json:"session_token"`
	Plan         string `json:"plan"`
	TokensUsed   int    `json:"tokens_used"`
	TokensLimit  int    `json:"tokens_limit"`
}

// PublishEvents forwards every event on sub to topic via producer
// until ctx is canceled or sub is closed, supplementing the spec's
// in-process subscribe(kind) contract with an external billing feed.
// Gated off by default: a caller only wires this up when an external
// pipeline is configured (DESIGN.md: optional xkafka publication).
func PublishEvents(ctx context.Context, producer *xkafka.TracingProducer, topic string, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			publishOne(ctx, producer, topic, evt)
		}
	}
}

func publishOne(ctx context.Context, producer *xkafka.TracingProducer, topic string, evt Event) {
	payload, err := json.Marshal(eventMessage{
		Kind:         string(evt.Kind),
		SessionToken: evt.SessionToken,
		Plan:         evt.License.Plan,
		TokensUsed:   evt.License.Monthly.TokensUsed,
		TokensLimit:  evt.License.Monthly.TokensLimit,
	})
	if err != nil {
		slog.Error("quota: marshal event for publish", xlog.Err(err))
		return
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(evt.SessionToken),
		Value:          payload,
	}
	if err := producer.Produce(ctx, msg, nil); err != nil {
		slog.Error("quota: publish event", xlog.Err(err), slog.String("kind", string(evt.Kind)))
	}
}
