package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"channel_sync_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPartitions dial the brokers in turn and read k.Topic's partition ids, retrying per k
func KafkaPartitions(ctx context.Context, k KafkaConnection) ([]int, error) {
	if len(k.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	attempts := k.RetryCount
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		for _, broker := range k.Brokers {
			var ids []int
			if ids, err = readPartitions(ctx, broker, k.Topic); err == nil {
				return ids, nil
			}
			var kerr kafka.Error
			if errors.As(err, &kerr) && !kerr.Temporary() {
				return nil, err
			}
		}
		logger.Log.Warn("kafka topic not reachable, retrying...",
			zap.Int("attempt", attempt),
			zap.Strings("brokers", k.Brokers),
			zap.String("topic", k.Topic),
			zap.Error(err),
		)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(k.RetryInterval * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("kafka topic %s unreachable after %d attempts: %w", k.Topic, attempts, err)
}

func readPartitions(ctx context.Context, broker, topic string) ([]int, error) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return nil, kafka.UnknownTopicOrPartition
	}
	ids := make([]int, 0, len(partitions))
	for _, p := range partitions {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
