package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/focus-room/internal/audit"
	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
	"github.com/weiawesome/focus-room/pkg/storage"
)

var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrInvalidMessage     = errors.New("content must be between 1 and 2000 characters")
	ErrNotParticipant     = errors.New("you are not in this room")
	ErrNotMessageAuthor   = errors.New("only the author can change this message")
	ErrInvalidMediaKey    = errors.New("media key does not belong to this room")
	ErrMediaTooLarge      = errors.New("media exceeds the upload limit")
	ErrPresignUnsupported = errors.New("presigned uploads are not available, use direct upload")
)

// ChatMessageType is the signaling message carrying a new chat line.
const ChatMessageType = "chat_message"

const (
	mediaPrefix      = "chat"
	tagRoom          = "room_id"
	tagDeleted       = "deleted"
	cacheSetTimeout  = 2 * time.Second
	defaultMediaSize = 20 << 20
)

type MessageService interface {
	Send(ctx context.Context, userID, authorName string, req *domain.SendMessageRequest) (*domain.Message, error)
	History(ctx context.Context, userID string, q *domain.HistoryQuery) (*domain.HistoryResponse, error)
	Edit(ctx context.Context, userID, id, content string) (*domain.Message, error)
	Delete(ctx context.Context, userID, id string) error
	PresignMedia(ctx context.Context, userID string, req *domain.PresignMediaRequest) (*domain.PresignMediaResponse, error)
	UploadMedia(ctx context.Context, userID, roomID, contentType string, size int64, r io.Reader) (*domain.UploadMediaResponse, error)
}

type messageServiceImpl struct {
	repo     repository.MessageRepository
	rooms    repository.RoomRepository
	friends  repository.FriendRepository
	presence presence.Store
	cache    cache.MessageCache
	cacheTTL time.Duration
	store    storage.Storage
	pub      pubsub.Publisher
	ids      idgen.Generator
	cfg      config.MessagesConfig
	sf       singleflight.Group
	now      func() time.Time
}

func NewMessageService(
	repo repository.MessageRepository,
	rooms repository.RoomRepository,
	friends repository.FriendRepository,
	presenceStore presence.Store,
	msgCache cache.MessageCache,
	cacheTTL time.Duration,
	store storage.Storage,
	pub pubsub.Publisher,
	cfg config.MessagesConfig,
) MessageService {
	if cfg.MaxMediaSize <= 0 {
		cfg.MaxMediaSize = defaultMediaSize
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 24 * time.Hour
	}
	return &messageServiceImpl{
		repo:     repo,
		rooms:    rooms,
		friends:  friends,
		presence: presenceStore,
		cache:    msgCache,
		cacheTTL: cacheTTL,
		store:    store,
		pub:      pub,
		ids:      idgen.NewULIDGenerator(),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *messageServiceImpl) room(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// canPost admits the owner and anyone currently in the room.
func (s *messageServiceImpl) canPost(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerID == userID {
		return room, nil
	}
	if room.Status != domain.RoomStatusActive {
		return nil, ErrRoomClosed
	}
	member, err := s.presence.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotParticipant
	}
	return room, nil
}

// canRead admits everyone to public rooms. Private history is visible to
// the owner, current members and the owner's friends.
func (s *messageServiceImpl) canRead(ctx context.Context, userID, roomID string) error {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Private || room.OwnerID == userID {
		return nil
	}
	if member, err := s.presence.IsMember(ctx, roomID, userID); err != nil {
		return err
	} else if member {
		return nil
	}
	f, err := s.friends.GetBetween(ctx, room.OwnerID, userID)
	if err != nil && !errors.Is(err, repository.ErrFriendshipNotFound) {
		return err
	}
	if f == nil || f.Status != domain.FriendshipAccepted {
		return ErrPrivateRoom
	}
	return nil
}

func mediaKeyPrefix(roomID string) string {
	return fmt.Sprintf("%s/%s/", mediaPrefix, roomID)
}

func (s *messageServiceImpl) resolveMedia(ctx context.Context, msg *domain.Message) {
	if msg.MediaKey == "" {
		return
	}
	url, err := s.store.GetURL(ctx, msg.MediaKey, s.cfg.URLExpiry)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to resolve media url")
		return
	}
	msg.MediaURL = url
}

func (s *messageServiceImpl) tag(ctx context.Context, key, tagKey, value string) {
	if key == "" {
		return
	}
	if err := s.store.TagObject(ctx, key, tagKey, value); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("key", key).Str("tag", tagKey).Msg("failed to tag media object")
	}
}

func (s *messageServiceImpl) bump(ctx context.Context, roomID string) {
	if err := s.cache.BumpVersion(ctx, roomID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to bump message cache version")
	}
}

func (s *messageServiceImpl) broadcast(ctx context.Context, msg *domain.Message) {
	l := log.Ctx(ctx)

	payload, err := json.Marshal(map[string]interface{}{"type": ChatMessageType, "message": msg})
	if err != nil {
		l.Warn().Err(err).Msg("failed to marshal chat message")
		return
	}
	event, err := pubsub.NewEvent(pubsub.EventRoomBroadcast, msg.RoomID, pubsub.RelayPayload{Message: payload})
	if err == nil {
		err = s.pub.Publish(ctx, pubsub.RoomSignalChannel(msg.RoomID), event)
	}
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to broadcast chat message")
	}
}

// Send stores a message and fans it out to the room.
func (s *messageServiceImpl) Send(ctx context.Context, userID, authorName string, req *domain.SendMessageRequest) (*domain.Message, error) {
	l := log.Ctx(ctx)

	content := strings.TrimSpace(req.Content)
	hasMedia := req.MediaKey != "" || req.MediaURL != ""
	if utf8.RuneCountInString(content) > domain.MaxMessageLength || (content == "" && !hasMedia) {
		return nil, ErrInvalidMessage
	}
	if req.MediaKey != "" && !strings.HasPrefix(req.MediaKey, mediaKeyPrefix(req.RoomID)) {
		return nil, ErrInvalidMediaKey
	}

	if _, err := s.canPost(ctx, userID, req.RoomID); err != nil {
		return nil, err
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}
	msg := &domain.Message{
		ID:         id,
		RoomID:     req.RoomID,
		AuthorID:   userID,
		AuthorName: authorName,
		Content:    content,
		MediaKey:   req.MediaKey,
		MediaType:  req.MediaType,
	}
	if req.MediaKey == "" {
		msg.MediaURL = req.MediaURL
	}
	if hasMedia && msg.MediaType == "" {
		msg.MediaType = domain.MediaTypeFile
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, req.RoomID).Msg("failed to save message")
		return nil, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	s.tag(ctx, msg.MediaKey, tagRoom, msg.RoomID)
	s.resolveMedia(ctx, msg)
	s.bump(ctx, msg.RoomID)
	s.broadcast(ctx, msg)
	return msg, nil
}

// History pages through a room's messages. The newest page is always read
// from the store; older pages are cached under the room's version.
func (s *messageServiceImpl) History(ctx context.Context, userID string, q *domain.HistoryQuery) (*domain.HistoryResponse, error) {
	if err := s.canRead(ctx, userID, q.RoomID); err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit < 1 {
		limit = domain.DefaultHistoryLimit
	}
	if limit > domain.MaxHistoryLimit {
		limit = domain.MaxHistoryLimit
	}
	direction := repository.ParseDirection(q.Direction)

	var result *cache.MessageCacheResult
	if q.Cursor == "" && direction == domain.DirectionBackward {
		messages, next, hasMore, err := s.repo.GetMessages(ctx, q.RoomID, "", limit, direction)
		if err != nil {
			return nil, fmt.Errorf("failed to get messages from repository: %w", err)
		}
		result = &cache.MessageCacheResult{Messages: messages, NextCursor: next, HasMore: hasMore}
	} else {
		version, err := s.cache.Version(ctx, q.RoomID)
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, q.RoomID).Msg("message cache version failed")
		}
		key := s.cache.BuildKey(q.RoomID, version, q.Cursor, direction, limit)

		v, err, _ := s.sf.Do(key, func() (interface{}, error) {
			return s.fetchWithCache(ctx, q.RoomID, q.Cursor, limit, direction, key)
		})
		if err != nil {
			return nil, err
		}
		cached, ok := v.(*cache.MessageCacheResult)
		if !ok {
			return nil, fmt.Errorf("unexpected result type from singleflight")
		}
		result = cached
	}

	messages := make([]domain.Message, len(result.Messages))
	copy(messages, result.Messages)
	for i := range messages {
		s.resolveMedia(ctx, &messages[i])
	}
	return &domain.HistoryResponse{
		Messages:   messages,
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	}, nil
}

func (s *messageServiceImpl) fetchWithCache(
	ctx context.Context,
	roomID, cursor string,
	limit int,
	direction, key string,
) (*cache.MessageCacheResult, error) {
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, next, hasMore, err := s.repo.GetMessages(ctx, roomID, cursor, limit, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from repository: %w", err)
	}
	result := &cache.MessageCacheResult{Messages: messages, NextCursor: next, HasMore: hasMore}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), cacheSetTimeout)
		defer cancel()
		if err := s.cache.Set(cacheCtx, key, result, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()
	return result, nil
}

func (s *messageServiceImpl) authored(ctx context.Context, userID, id string) (*domain.Message, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.AuthorID != userID {
		return nil, ErrNotMessageAuthor
	}
	return msg, nil
}

// Edit replaces the text. A message with media may have its caption
// cleared; a text-only message may not become empty.
func (s *messageServiceImpl) Edit(ctx context.Context, userID, id, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > domain.MaxMessageLength {
		return nil, ErrInvalidMessage
	}

	msg, err := s.authored(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if content == "" && msg.MediaKey == "" && msg.MediaURL == "" {
		return nil, ErrInvalidMessage
	}

	now := s.now()
	msg.Content = content
	msg.EditedAt = &now
	if err := s.repo.Update(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to edit message")
		return nil, err
	}

	s.bump(ctx, msg.RoomID)
	s.resolveMedia(ctx, msg)
	return msg, nil
}

func (s *messageServiceImpl) Delete(ctx context.Context, userID, id string) error {
	msg, err := s.authored(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to delete message")
		return err
	}
	audit.LogTarget(ctx, audit.ActionMessageDelete, userID, id, "message deleted")

	s.tag(ctx, msg.MediaKey, tagDeleted, "true")
	s.bump(ctx, msg.RoomID)
	return nil
}

func (s *messageServiceImpl) mediaKey(roomID, contentType string) (string, error) {
	id, err := s.ids.Generate()
	if err != nil {
		return "", err
	}
	ext := ""
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return mediaKeyPrefix(roomID) + strings.ToLower(id) + ext, nil
}

// PresignMedia hands out an upload URL for drivers that support it.
func (s *messageServiceImpl) PresignMedia(ctx context.Context, userID string, req *domain.PresignMediaRequest) (*domain.PresignMediaResponse, error) {
	if req.Size > s.cfg.MaxMediaSize {
		return nil, ErrMediaTooLarge
	}
	if _, err := s.canPost(ctx, userID, req.RoomID); err != nil {
		return nil, err
	}

	key, err := s.mediaKey(req.RoomID, req.ContentType)
	if err != nil {
		return nil, err
	}
	url, err := s.store.GetUploadURL(ctx, key, req.ContentType, s.cfg.PresignExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrPresignUnsupported) {
			return nil, ErrPresignUnsupported
		}
		return nil, err
	}

	return &domain.PresignMediaResponse{
		UploadURL: url,
		Key:       key,
		MediaType: domain.MediaTypeFor(req.ContentType),
		ExpiresAt: s.now().Add(s.cfg.PresignExpiry).Unix(),
	}, nil
}

// UploadMedia stores the body directly. A size of -1 means unknown; the
// reader is capped either way.
func (s *messageServiceImpl) UploadMedia(ctx context.Context, userID, roomID, contentType string, size int64, r io.Reader) (*domain.UploadMediaResponse, error) {
	if size > s.cfg.MaxMediaSize {
		return nil, ErrMediaTooLarge
	}
	if _, err := s.canPost(ctx, userID, roomID); err != nil {
		return nil, err
	}

	key, err := s.mediaKey(roomID, contentType)
	if err != nil {
		return nil, err
	}

	body := &cappedReader{r: io.LimitReader(r, s.cfg.MaxMediaSize+1), max: s.cfg.MaxMediaSize}
	err = s.store.Write(ctx, key, body, size, contentType)
	if body.exceeded {
		s.discard(ctx, key)
		return nil, ErrMediaTooLarge
	}
	if err != nil {
		return nil, err
	}

	url, err := s.store.GetURL(ctx, key, s.cfg.URLExpiry)
	if err != nil {
		return nil, err
	}
	return &domain.UploadMediaResponse{
		Key:       key,
		MediaURL:  url,
		MediaType: domain.MediaTypeFor(contentType),
	}, nil
}

// discard removes a rejected upload.
func (s *messageServiceImpl) discard(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("key", key).Msg("failed to remove rejected upload")
	}
}

// cappedReader fails once more than max bytes have been read.
type cappedReader struct {
	r        io.Reader
	max      int64
	n        int64
	exceeded bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.max {
		c.exceeded = true
		return n, ErrMediaTooLarge
	}
	return n, err
}
