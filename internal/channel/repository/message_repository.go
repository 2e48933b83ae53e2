package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema create tables and the change notify trigger when missing
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const messageColumns = "id, channel_id, user_id, content, html, created_at, edited_at, deleted_at, reply_to_message_id, reactions, metadata"

type messageRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewMessageRepository create the Postgres backed persistence of the sync engine
func NewMessageRepository(db *pgxpool.Pool) app.Persistence {
	return &messageRepository{db: db, now: time.Now}
}

func (r *messageRepository) GetUserByID(ctx context.Context, userID string) (*domain.UserRecord, error) {
	var u domain.UserRecord
	err := r.db.QueryRow(ctx, "SELECT id, username, display_name, avatar_url FROM users WHERE id = $1", userID).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

func (r *messageRepository) InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	metadata, err := encodeJSON(msg.Metadata)
	if err != nil {
		return domain.Message{}, err
	}
	row := r.db.QueryRow(ctx,
		"INSERT INTO messages (id, channel_id, user_id, content, html, reply_to_message_id, metadata) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb) RETURNING "+messageColumns,
		uuid.NewString(), msg.ChannelID, msg.UserID, msg.Content, msg.HTML, msg.ReplyToMessageID, metadata,
	)
	out, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return out, nil
}

// EmojiReaction toggle under a row lock so concurrent toggles on one message serialise
func (r *messageRepository) EmojiReaction(ctx context.Context, messageID, key, userID string) (domain.Reactions, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	if err := tx.QueryRow(ctx, "SELECT reactions FROM messages WHERE id = $1 FOR UPDATE", messageID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	var current domain.Reactions
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &current); err != nil {
			return nil, fmt.Errorf("decode reactions of %s: %w", messageID, err)
		}
	}

	next := app.ToggleReaction(current, key, userID, r.now().UTC())
	encoded, err := encodeJSON(next)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "UPDATE messages SET reactions = $2::jsonb WHERE id = $1", messageID, encoded); err != nil {
		return nil, fmt.Errorf("store reactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

// DeleteMessage soft delete; the feed sees an update carrying deleted_at
func (r *messageRepository) DeleteMessage(ctx context.Context, messageID string) error {
	tag, err := r.db.Exec(ctx, "UPDATE messages SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL", messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *messageRepository) SetPinned(ctx context.Context, channelID, messageID string, pinned bool, actorID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE messages SET metadata = jsonb_set(coalesce(metadata, '{}'::jsonb), '{pinned}', to_jsonb($3::boolean)) "+
			"WHERE id = $1 AND channel_id = $2",
		messageID, channelID, pinned,
	)
	if err != nil {
		return fmt.Errorf("flag pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if pinned {
		_, err = tx.Exec(ctx,
			"INSERT INTO pinned_messages (channel_id, message_id, actor_id) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING",
			channelID, messageID, actorID,
		)
	} else {
		_, err = tx.Exec(ctx, "DELETE FROM pinned_messages WHERE message_id = $1", messageID)
	}
	if err != nil {
		return fmt.Errorf("store pin: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *messageRepository) ListPinned(ctx context.Context, channelID string) ([]domain.AggregateEntry, error) {
	rows, err := r.db.Query(ctx,
		"SELECT p.id, p.channel_id, p.message_id, p.actor_id, p.created_at, "+prefixed("m")+
			" FROM pinned_messages p JOIN messages m ON m.id = p.message_id"+
			" WHERE p.channel_id = $1 ORDER BY p.created_at",
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	defer rows.Close()

	var out []domain.AggregateEntry
	for rows.Next() {
		var e domain.AggregateEntry
		var msg domain.Message
		ms := newMessageScan(&msg)
		dest := append([]interface{}{&e.ID, &e.ChannelID, &e.MessageID, &e.ActorID, &e.CreatedAt}, ms.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := ms.decode(); err != nil {
			return nil, err
		}
		e.Message = &msg
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *messageRepository) AddBookmark(ctx context.Context, entry domain.AggregateEntry) (domain.AggregateEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		"INSERT INTO bookmarks (id, user_id, channel_id, message_id) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (user_id, message_id) DO UPDATE SET archived = false "+
			"RETURNING id, archived, created_at",
		entry.ID, entry.ActorID, entry.ChannelID, entry.MessageID,
	).Scan(&entry.ID, &entry.Archived, &entry.CreatedAt)
	if err != nil {
		return domain.AggregateEntry{}, fmt.Errorf("add bookmark: %w", err)
	}
	return entry, nil
}

func (r *messageRepository) RemoveBookmark(ctx context.Context, userID, messageID string) error {
	if _, err := r.db.Exec(ctx, "DELETE FROM bookmarks WHERE user_id = $1 AND message_id = $2", userID, messageID); err != nil {
		return fmt.Errorf("remove bookmark: %w", err)
	}
	return nil
}

func (r *messageRepository) GetUserBookmarks(ctx context.Context, workspaceID, userID string, archived *bool, limit, offset int) (domain.BookmarkPage, error) {
	where := " FROM bookmarks b JOIN messages m ON m.id = b.message_id JOIN channels c ON c.id = b.channel_id" +
		" WHERE c.workspace_id = $1 AND b.user_id = $2"
	params := []interface{}{workspaceID, userID}
	if archived != nil {
		where += fmt.Sprintf(" AND b.archived = $%d", len(params)+1)
		params = append(params, *archived)
	}

	var page domain.BookmarkPage
	if err := r.db.QueryRow(ctx, "SELECT count(*)"+where, params...).Scan(&page.Total); err != nil {
		return domain.BookmarkPage{}, fmt.Errorf("count bookmarks: %w", err)
	}

	query := "SELECT b.id, b.channel_id, b.message_id, b.user_id, b.created_at, b.archived, " + prefixed("m") + where +
		fmt.Sprintf(" ORDER BY b.created_at DESC LIMIT $%d OFFSET $%d", len(params)+1, len(params)+2)
	rows, err := r.db.Query(ctx, query, append(params, limit, offset)...)
	if err != nil {
		return domain.BookmarkPage{}, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.AggregateEntry
		var msg domain.Message
		ms := newMessageScan(&msg)
		dest := append([]interface{}{&e.ID, &e.ChannelID, &e.MessageID, &e.ActorID, &e.CreatedAt, &e.Archived}, ms.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return domain.BookmarkPage{}, err
		}
		if err := ms.decode(); err != nil {
			return domain.BookmarkPage{}, err
		}
		e.Message = &msg
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.BookmarkPage{}, err
	}
	page.HasMore = offset+len(page.Entries) < page.Total
	return page, nil
}

func (r *messageRepository) ListMessages(ctx context.Context, channelID string, before *time.Time, limit int) ([]domain.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE channel_id = $1"
	params := []interface{}{channelID}
	if before != nil {
		query += " AND created_at < $2"
		params = append(params, *before)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(params)+1)

	rows, err := r.db.Query(ctx, query, append(params, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// messageScan scan targets of one message row; the jsonb columns arrive as raw bytes
type messageScan struct {
	msg       *domain.Message
	reactions []byte
	metadata  []byte
}

func newMessageScan(msg *domain.Message) *messageScan {
	return &messageScan{msg: msg}
}

func (s *messageScan) dest() []interface{} {
	m := s.msg
	return []interface{}{
		&m.ID, &m.ChannelID, &m.UserID, &m.Content, &m.HTML, &m.CreatedAt,
		&m.EditedAt, &m.DeletedAt, &m.ReplyToMessageID, &s.reactions, &s.metadata,
	}
}

func (s *messageScan) decode() error {
	if len(s.reactions) > 0 {
		if err := json.Unmarshal(s.reactions, &s.msg.Reactions); err != nil {
			return fmt.Errorf("decode reactions of %s: %w", s.msg.ID, err)
		}
	}
	if len(s.metadata) > 0 {
		if err := json.Unmarshal(s.metadata, &s.msg.Metadata); err != nil {
			return fmt.Errorf("decode metadata of %s: %w", s.msg.ID, err)
		}
	}
	return nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var msg domain.Message
	s := newMessageScan(&msg)
	if err := row.Scan(s.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, domain.ErrNotFound
		}
		return domain.Message{}, err
	}
	if err := s.decode(); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func prefixed(alias string) string {
	return alias + ".id, " + alias + ".channel_id, " + alias + ".user_id, " + alias + ".content, " + alias + ".html, " +
		alias + ".created_at, " + alias + ".edited_at, " + alias + ".deleted_at, " + alias + ".reply_to_message_id, " +
		alias + ".reactions, " + alias + ".metadata"
}

// encodeJSON nil stays SQL NULL
func encodeJSON(v interface{}) (*string, error) {
	switch t := v.(type) {
	case domain.Reactions:
		if t == nil {
			return nil, nil
		}
	case map[string]interface{}:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
