package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/logger"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// NotifyChannel the LISTEN channel the messages trigger notifies for channelID
func NotifyChannel(channelID string) string {
	return "msg_" + channelID
}

// PostgresChangeFeed row changes over LISTEN/NOTIFY. Each subscription holds
// one pooled connection for as long as it is open.
type PostgresChangeFeed struct {
	db *pgxpool.Pool
}

// NewPostgresChangeFeed create a PostgresChangeFeed
func NewPostgresChangeFeed(db *pgxpool.Pool) *PostgresChangeFeed {
	return &PostgresChangeFeed{db: db}
}

var _ app.ChangeFeed = (*PostgresChangeFeed)(nil)

// Subscribe returns after LISTEN was accepted by the server
func (f *PostgresChangeFeed) Subscribe(ctx context.Context, channelID string) (app.FeedSubscription, error) {
	conn, err := f.db.Acquire(ctx)
	if err != nil {
		return nil, classifyPgError(err)
	}
	listen := "LISTEN " + pgx.Identifier{NotifyChannel(channelID)}.Sanitize()
	if _, err := conn.Exec(ctx, listen); err != nil {
		conn.Release()
		return nil, classifyPgError(err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &pgSubscription{
		channelID: channelID,
		conn:      conn,
		db:        f.db,
		events:    make(chan domain.ChangeEvent, 64),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.loop(subCtx)
	logger.Log.Info("postgres change feed listening", zap.String("channel_id", channelID))
	return s, nil
}

type pgSubscription struct {
	channelID string
	conn      *pgxpool.Conn
	db        *pgxpool.Pool
	events    chan domain.ChangeEvent
	cancel    context.CancelFunc
	done      chan struct{}

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (s *pgSubscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *pgSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pgSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *pgSubscription) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.release()

	for {
		n, err := s.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.err = fmt.Errorf("wait for notification on %s: %w", s.channelID, err)
				s.mu.Unlock()
				logger.Log.Warn("postgres change feed dropped", zap.String("channel_id", s.channelID), zap.Error(err))
			}
			return
		}

		evt, ok := decodeChangeEvent([]byte(n.Payload), s.channelID)
		if !ok {
			continue
		}
		if evt.Truncated {
			row, err := s.loadRow(ctx, evt)
			if errors.Is(err, domain.ErrNotFound) {
				// gone again; its own delete notification follows
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					s.mu.Lock()
					s.err = fmt.Errorf("load truncated row on %s: %w", s.channelID, err)
					s.mu.Unlock()
					logger.Log.Warn("postgres change feed dropped", zap.String("channel_id", s.channelID), zap.Error(err))
				}
				return
			}
			evt.Row, evt.Truncated = row, false
		}
		select {
		case s.events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

// loadRow read back a row whose notification was too large to carry it.
// A hard delete only needs the key.
func (s *pgSubscription) loadRow(ctx context.Context, evt domain.ChangeEvent) (domain.Message, error) {
	if evt.Operation == domain.OpDelete {
		return evt.Row, nil
	}
	row := s.db.QueryRow(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = $1", evt.Row.ID)
	return scanMessage(row)
}

// release give the connection back without the LISTEN still attached
func (s *pgSubscription) release() {
	if !s.conn.Conn().IsClosed() {
		if _, err := s.conn.Exec(context.Background(), "UNLISTEN *"); err != nil {
			logger.Log.Debug("unlisten failed", zap.String("channel_id", s.channelID), zap.Error(err))
		}
	}
	s.conn.Release()
}

// decodeChangeEvent parse one envelope; rows of other tables or channels are skipped
func decodeChangeEvent(payload []byte, channelID string) (domain.ChangeEvent, bool) {
	var evt domain.ChangeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		logger.Log.Warn("undecodable change event", zap.String("channel_id", channelID), zap.Error(err))
		return domain.ChangeEvent{}, false
	}
	if evt.Table != "" && evt.Table != domain.MessagesTable {
		return domain.ChangeEvent{}, false
	}
	filter := evt.ChannelFilter
	if filter == "" {
		filter = evt.Row.ChannelID
	}
	if filter != channelID {
		return domain.ChangeEvent{}, false
	}
	return evt, true
}

// classifyPgError permission failures are not retried
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501", "28000", "28P01":
			return fmt.Errorf("%w: %s", domain.ErrSubscriptionAuth, pgErr.Message)
		}
	}
	return err
}
