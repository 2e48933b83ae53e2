package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/database"
	"channel_sync_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaChangeFeed row changes from a CDC topic. Kafka cannot filter rows on the
// broker, so every subscription tails the whole topic and keeps its channel.
// Readers are group-less: a subscription only wants what happens from now
// on, so nothing is committed and no consumer group is left on the broker.
type KafkaChangeFeed struct {
	conn database.KafkaConnection
}

// NewKafkaChangeFeed create a KafkaChangeFeed
func NewKafkaChangeFeed(conn database.KafkaConnection) *KafkaChangeFeed {
	return &KafkaChangeFeed{conn: conn}
}

var _ app.ChangeFeed = (*KafkaChangeFeed)(nil)

// Subscribe returns once every partition reader sits at the topic's tail
func (f *KafkaChangeFeed) Subscribe(ctx context.Context, channelID string) (app.FeedSubscription, error) {
	partitions, err := database.KafkaPartitions(ctx, f.conn)
	if err != nil {
		return nil, classifyKafkaError(err)
	}

	readers, err := tailReaders(f.conn, partitions)
	if err != nil {
		return nil, err
	}

	s := newKafkaSubscription(channelID, readers)
	logger.Log.Info("kafka change feed reading",
		zap.String("channel_id", channelID),
		zap.String("topic", f.conn.Topic),
		zap.Int("partitions", len(readers)),
	)
	return s, nil
}

// tailReaders one group-less reader per partition, seeked to the end
func tailReaders(conn database.KafkaConnection, partitions []int) ([]*kafka.Reader, error) {
	readers := make([]*kafka.Reader, 0, len(partitions))
	for _, p := range partitions {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   conn.Brokers,
			Topic:     conn.Topic,
			Partition: p,
		})
		if err := r.SetOffset(kafka.LastOffset); err != nil {
			r.Close()
			closeReaders(readers)
			return nil, fmt.Errorf("seek partition %d: %w", p, err)
		}
		readers = append(readers, r)
	}
	return readers, nil
}

func newKafkaSubscription(channelID string, readers []*kafka.Reader) *kafkaSubscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &kafkaSubscription{
		channelID: channelID,
		readers:   readers,
		events:    make(chan domain.ChangeEvent, 64),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

type kafkaSubscription struct {
	channelID string
	readers   []*kafka.Reader
	events    chan domain.ChangeEvent
	cancel    context.CancelFunc
	done      chan struct{}

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (s *kafkaSubscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *kafkaSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *kafkaSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = closeReaders(s.readers)
	})
	return err
}

// run one loop per partition; the first failing partition ends the subscription
func (s *kafkaSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	for _, r := range s.readers {
		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			defer stop()
			s.loop(ctx, r)
		}(r)
	}
	wg.Wait()
}

func (s *kafkaSubscription) loop(ctx context.Context, r *kafka.Reader) {
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.fail(fmt.Errorf("read change topic partition %d for %s: %w", r.Config().Partition, s.channelID, err))
			}
			return
		}

		evt, ok := decodeChangeEvent(m.Value, s.channelID)
		if !ok {
			continue
		}
		select {
		case s.events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func (s *kafkaSubscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		logger.Log.Warn("kafka change feed dropped", zap.String("channel_id", s.channelID), zap.Error(err))
	}
}

func closeReaders(readers []*kafka.Reader) error {
	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func classifyKafkaError(err error) error {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch kerr {
		case kafka.TopicAuthorizationFailed, kafka.GroupAuthorizationFailed, kafka.SASLAuthenticationFailed:
			return fmt.Errorf("%w: %s", domain.ErrSubscriptionAuth, kerr.Error())
		}
	}
	return err
}
