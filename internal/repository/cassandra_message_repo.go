package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
)

// cassandraSchema is applied by EnsureSchema. The keyspace must exist.
var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages_by_room (
		room_id text,
		message_id text,
		author_id text,
		author_name text,
		content text,
		media_key text,
		media_url text,
		media_type text,
		created_at timestamp,
		edited_at timestamp,
		PRIMARY KEY ((room_id), message_id)
	) WITH CLUSTERING ORDER BY (message_id DESC)`,
	`CREATE TABLE IF NOT EXISTS messages_by_id (
		message_id text PRIMARY KEY,
		room_id text
	)`,
}

const messageColumns = `message_id, room_id, author_id, author_name, content, media_key, media_url, media_type, created_at, edited_at`

// CassandraMessageRepository keeps chat history partitioned by room.
// messages_by_id maps a message id back to its partition for edits.
type CassandraMessageRepository struct {
	session *gocql.Session
}

func NewCassandraMessageRepository(cfg config.CassandraConfig) (*CassandraMessageRepository, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.ConnectTimeout = cfg.Timeout
	cluster.Timeout = cfg.Timeout
	cluster.Consistency = parseConsistency(cfg.Consistency)

	// Retry policy for resilience
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return &CassandraMessageRepository{session: session}, nil
}

// EnsureSchema creates the message tables when missing.
func (r *CassandraMessageRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range cassandraSchema {
		if err := r.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply cassandra schema: %w", err)
		}
	}
	return nil
}

func (r *CassandraMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages_by_room (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.AuthorID, msg.AuthorName, msg.Content,
		msg.MediaKey, msg.MediaURL, msg.MediaType, msg.CreatedAt, msg.EditedAt)
	batch.Query(`INSERT INTO messages_by_id (message_id, room_id) VALUES (?, ?)`, msg.ID, msg.RoomID)

	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (r *CassandraMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var roomID string
	err := r.session.Query(`SELECT room_id FROM messages_by_id WHERE message_id = ?`, id).
		WithContext(ctx).Scan(&roomID)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to look up message: %w", err)
	}

	iter := r.session.Query(`SELECT `+messageColumns+` FROM messages_by_room WHERE room_id = ? AND message_id = ?`,
		roomID, id).WithContext(ctx).Iter()
	msg, ok := scanMessage(iter)
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	if !ok {
		return nil, ErrMessageNotFound
	}
	return &msg, nil
}

func (r *CassandraMessageRepository) GetMessages(
	ctx context.Context,
	roomID string,
	cursor string,
	limit int,
	direction string,
) ([]domain.Message, string, bool, error) {
	// Query limit + 1 to determine if there are more results
	queryLimit := limit + 1

	var query string
	var args []interface{}

	if direction == domain.DirectionForward {
		// ASC - from oldest to newest
		if cursor == "" {
			query = `SELECT ` + messageColumns + ` FROM messages_by_room
					 WHERE room_id = ?
					 ORDER BY message_id ASC
					 LIMIT ?`
			args = []interface{}{roomID, queryLimit}
		} else {
			query = `SELECT ` + messageColumns + ` FROM messages_by_room
					 WHERE room_id = ? AND message_id > ?
					 ORDER BY message_id ASC
					 LIMIT ?`
			args = []interface{}{roomID, cursor, queryLimit}
		}
	} else {
		// DESC - from newest to oldest
		if cursor == "" {
			query = `SELECT ` + messageColumns + ` FROM messages_by_room
					 WHERE room_id = ?
					 ORDER BY message_id DESC
					 LIMIT ?`
			args = []interface{}{roomID, queryLimit}
		} else {
			query = `SELECT ` + messageColumns + ` FROM messages_by_room
					 WHERE room_id = ? AND message_id < ?
					 ORDER BY message_id DESC
					 LIMIT ?`
			args = []interface{}{roomID, cursor, queryLimit}
		}
	}

	iter := r.session.Query(query, args...).WithContext(ctx).Iter()

	var messages []domain.Message
	for {
		msg, ok := scanMessage(iter)
		if !ok {
			break
		}
		messages = append(messages, msg)
	}

	if err := iter.Close(); err != nil {
		return nil, "", false, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// Determine if there are more results
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Get next cursor from the last message
	var nextCursor string
	if len(messages) > 0 {
		nextCursor = messages[len(messages)-1].ID
	}

	return messages, nextCursor, hasMore, nil
}

func (r *CassandraMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	err := r.session.Query(`UPDATE messages_by_room SET content = ?, edited_at = ? WHERE room_id = ? AND message_id = ?`,
		msg.Content, msg.EditedAt, msg.RoomID, msg.ID).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (r *CassandraMessageRepository) Delete(ctx context.Context, msg *domain.Message) error {
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM messages_by_room WHERE room_id = ? AND message_id = ?`, msg.RoomID, msg.ID)
	batch.Query(`DELETE FROM messages_by_id WHERE message_id = ?`, msg.ID)
	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}

func scanMessage(iter *gocql.Iter) (domain.Message, bool) {
	var msg domain.Message
	var editedAt time.Time
	ok := iter.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.AuthorID,
		&msg.AuthorName,
		&msg.Content,
		&msg.MediaKey,
		&msg.MediaURL,
		&msg.MediaType,
		&msg.CreatedAt,
		&editedAt,
	)
	if ok && !editedAt.IsZero() {
		msg.EditedAt = &editedAt
	}
	return msg, ok
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "EACH_QUORUM":
		return gocql.EachQuorum
	default:
		return gocql.LocalQuorum
	}
}

var _ MessageRepository = (*CassandraMessageRepository)(nil)
