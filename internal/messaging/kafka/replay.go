package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

const (
	defaultReplayLimit       = 100
	defaultReplayIdleTimeout = 2 * time.Second
)

// errNotReplayable — сообщение DLQ не содержит события клиента.
var errNotReplayable = errors.New("dlq message is not a customer event")

// OffsetClient — часть sarama.Client, нужная для чтения границ партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionSource открывает чтение конкретной партиции.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
}

// ReplayConfig задаёт параметры переотправки DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	Execute     bool // false — только показать кандидатов
	FromNewest  bool
	IdleTimeout time.Duration
}

// ReplayStats — итог прохода по DLQ.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer читает DLQ и возвращает события клиентов в основной topic.
type Replayer struct {
	client   OffsetClient
	source   PartitionSource
	producer *Producer
	logger   *log.Entry
}

// NewReplayer создаёт Replayer. producer может быть nil для dry-run.
func NewReplayer(client OffsetClient, source PartitionSource, producer *Producer) *Replayer {
	return &Replayer{
		client:   client,
		source:   source,
		producer: producer,
		logger:   log.WithField("component", "kafka-dlq-replayer"),
	}
}

func (c ReplayConfig) withDefaults() ReplayConfig {
	if strings.TrimSpace(c.SourceTopic) == "" {
		c.SourceTopic = TopicDeadLetterQueue
	}
	if strings.TrimSpace(c.TargetTopic) == "" {
		c.TargetTopic = TopicCustomerEvents
	}
	if c.Limit <= 0 {
		c.Limit = defaultReplayLimit
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultReplayIdleTimeout
	}
	return c
}

// Replay проходит партиции по порядку, пока не обработает Limit сообщений.
func (r *Replayer) Replay(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var total ReplayStats
	if r.client == nil || r.source == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.Execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}
	cfg = cfg.withDefaults()

	partitions, err := r.client.Partitions(cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", cfg.SourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	partitions = slices.Clone(partitions)
	slices.Sort(partitions)

	for _, partition := range partitions {
		if total.Processed >= cfg.Limit {
			break
		}
		stats, err := r.replayPartition(ctx, cfg, partition, cfg.Limit-total.Processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   cfg.Execute,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, cfg ReplayConfig, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.source.ConsumePartition(cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.IdleTimeout)

			stats.Processed++
			envelope, err := DecodeDeadLetter(msg.Value)
			if err != nil {
				stats.Skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
			} else if err := r.replayOne(ctx, cfg, msg, envelope); err != nil {
				return stats, err
			} else {
				stats.Replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

func (r *Replayer) replayOne(ctx context.Context, cfg ReplayConfig, msg *sarama.ConsumerMessage, envelope OutboxEnvelope) error {
	entry := r.logger.WithFields(log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": cfg.TargetTopic,
		"event_id":     envelope.ID,
		"event_type":   envelope.EventType,
	})
	if !cfg.Execute {
		entry.Info("dlq replay candidate")
		return nil
	}

	envelope.PublishedAt = time.Now().UTC()
	if err := r.producer.PublishEvent(ctx, cfg.TargetTopic, envelope.key(), envelope, map[string]string{
		HeaderEventType:     envelope.EventType,
		HeaderAggregateType: envelope.AggregateType,
		HeaderReplayedAt:    envelope.PublishedAt.Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	entry.Debug("dlq message replayed")
	return nil
}

// DecodeDeadLetter восстанавливает исходный конверт события из сообщения DLQ.
func DecodeDeadLetter(value []byte) (OutboxEnvelope, error) {
	var outer OutboxEnvelope
	if err := json.Unmarshal(value, &outer); err != nil {
		return OutboxEnvelope{}, fmt.Errorf("%w: %v", errNotReplayable, err)
	}
	if len(outer.Payload) == 0 || string(outer.Payload) == "null" {
		return OutboxEnvelope{}, fmt.Errorf("%w: empty payload", errNotReplayable)
	}

	var dead domain.DeadLetter
	if err := json.Unmarshal(outer.Payload, &dead); err != nil {
		return OutboxEnvelope{}, fmt.Errorf("decode dlq payload: %w", err)
	}
	if len(dead.Payload) == 0 || string(dead.Payload) == "null" {
		return OutboxEnvelope{}, fmt.Errorf("%w: dlq payload does not contain the original event", errNotReplayable)
	}

	envelope := OutboxEnvelope{
		ID:            firstNonEmpty(dead.OutboxID, outer.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, outer.EventType),
		Payload:       dead.Payload,
		OccurredOn:    outer.OccurredOn,
	}
	if occurred, err := time.Parse(time.RFC3339Nano, dead.OccurredOn); err == nil {
		envelope.OccurredOn = occurred.UTC()
	}
	return envelope, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
