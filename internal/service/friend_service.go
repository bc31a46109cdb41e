package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/weiawesome/focus-room/internal/audit"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

var (
	ErrSelfFriendRequest     = errors.New("cannot send a friend request to yourself")
	ErrFriendTargetRequired  = errors.New("user_id or username is required")
	ErrAlreadyFriends        = errors.New("already friends")
	ErrFriendRequestPending  = errors.New("friend request already pending")
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrNotRequestAddressee   = errors.New("only the recipient can respond to this request")
	ErrFriendRequestHandled  = errors.New("friend request is no longer pending")
	ErrNotFriends            = errors.New("not friends")
	ErrSearchQueryRequired   = errors.New("search query is required")
)

// FriendService manages friend requests and the friend list.
type FriendService interface {
	Request(ctx context.Context, userID string, req *domain.FriendRequestRequest) (*domain.FriendRequestResponse, error)
	Accept(ctx context.Context, userID, requestID string) (*domain.FriendResponse, error)
	Reject(ctx context.Context, userID, requestID string) error
	Remove(ctx context.Context, userID, friendID string) error
	List(ctx context.Context, userID string) ([]domain.FriendResponse, error)
	Requests(ctx context.Context, userID string) (*domain.FriendRequestsResponse, error)
	Search(ctx context.Context, userID string, req *domain.FriendSearchRequest) ([]domain.FriendSearchResult, error)
	// AreFriends reports whether a and b have an accepted friendship.
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

type friendServiceImpl struct {
	friends      repository.FriendRepository
	users        repository.UserRepository
	search       repository.UserSearch
	presence     presence.Store
	emitter      events.Emitter
	present      *Presenter
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

func NewFriendService(
	friends repository.FriendRepository,
	users repository.UserRepository,
	search repository.UserSearch,
	presenceStore presence.Store,
	emitter events.Emitter,
	present *Presenter,
	defaultLimit, maxLimit int,
) FriendService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &friendServiceImpl{
		friends:      friends,
		users:        users,
		search:       search,
		presence:     presenceStore,
		emitter:      emitter,
		present:      present,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *friendServiceImpl) notify(ctx context.Context, f *domain.Friendship) {
	s.emitter.Emit(ctx, pubsub.EventFriendChanged, f.RequesterID, "friendship", f.ID)
	s.emitter.Emit(ctx, pubsub.EventFriendChanged, f.AddresseeID, "friendship", f.ID)
}

func (s *friendServiceImpl) resolveTarget(ctx context.Context, req *domain.FriendRequestRequest) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	switch {
	case req.UserID != "":
		if domain.IsGuestID(req.UserID) {
			return nil, ErrUserNotFound
		}
		user, err = s.users.GetByID(ctx, req.UserID)
	case strings.TrimSpace(req.Username) != "":
		user, err = s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	default:
		return nil, ErrFriendTargetRequired
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Request sends a friend request. A pending request in the opposite
// direction is accepted instead, and a rejected pair is reopened.
func (s *friendServiceImpl) Request(ctx context.Context, userID string, req *domain.FriendRequestRequest) (*domain.FriendRequestResponse, error) {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}
	target, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if target.ID == userID {
		return nil, ErrSelfFriendRequest
	}

	now := s.now()
	existing, err := s.friends.GetBetween(ctx, userID, target.ID)
	switch {
	case errors.Is(err, repository.ErrFriendshipNotFound):
		f := &domain.Friendship{
			RequesterID: userID,
			AddresseeID: target.ID,
			Status:      domain.FriendshipPending,
			CreatedAt:   now,
		}
		if err := s.friends.Create(ctx, f); err != nil {
			if errors.Is(err, repository.ErrFriendshipExists) {
				return nil, ErrFriendRequestPending
			}
			l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to create friend request")
			return nil, err
		}
		existing = f
	case err != nil:
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to look up friendship")
		return nil, err
	case existing.Status == domain.FriendshipAccepted:
		return nil, ErrAlreadyFriends
	case existing.Status == domain.FriendshipPending && existing.RequesterID == userID:
		return nil, ErrFriendRequestPending
	case existing.Status == domain.FriendshipPending:
		existing.Status = domain.FriendshipAccepted
		existing.RespondedAt = &now
		if err := s.friends.Update(ctx, existing); err != nil {
			l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to accept mutual request")
			return nil, err
		}
		audit.LogTarget(ctx, audit.ActionFriendAccept, userID, target.ID, "mutual friend request accepted")
	default:
		existing.RequesterID = userID
		existing.AddresseeID = target.ID
		existing.Status = domain.FriendshipPending
		existing.CreatedAt = now
		existing.RespondedAt = nil
		if err := s.friends.Update(ctx, existing); err != nil {
			l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to reopen friend request")
			return nil, err
		}
	}

	s.notify(ctx, existing)
	if existing.Status == domain.FriendshipPending {
		audit.LogTarget(ctx, audit.ActionFriendRequest, userID, target.ID, "friend request sent")
	}

	resp := existing.ToResponse(userID, s.present.summary(ctx, target))
	return &resp, nil
}

// pendingFor loads a pending request addressed to userID.
func (s *friendServiceImpl) pendingFor(ctx context.Context, userID, requestID string) (*domain.Friendship, error) {
	f, err := s.friends.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrFriendshipNotFound) {
			return nil, ErrFriendRequestNotFound
		}
		return nil, err
	}
	if !f.Involves(userID) {
		return nil, ErrFriendRequestNotFound
	}
	if f.AddresseeID != userID {
		return nil, ErrNotRequestAddressee
	}
	if f.Status != domain.FriendshipPending {
		return nil, ErrFriendRequestHandled
	}
	return f, nil
}

func (s *friendServiceImpl) Accept(ctx context.Context, userID, requestID string) (*domain.FriendResponse, error) {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}

	f, err := s.pendingFor(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	f.Status = domain.FriendshipAccepted
	f.RespondedAt = &now
	if err := s.friends.Update(ctx, f); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to accept friend request")
		return nil, err
	}
	s.notify(ctx, f)
	audit.LogTarget(ctx, audit.ActionFriendAccept, userID, f.RequesterID, "friend request accepted")

	resp := domain.FriendResponse{User: domain.UserSummary{ID: f.RequesterID}, Since: f.RespondedAt}
	if requester, err := s.users.GetByID(ctx, f.RequesterID); err == nil {
		resp.User = s.present.summary(ctx, requester)
	}
	if online, err := s.presence.Online(ctx, []string{f.RequesterID}); err == nil {
		resp.Online = online[f.RequesterID]
	}
	return &resp, nil
}

func (s *friendServiceImpl) Reject(ctx context.Context, userID, requestID string) error {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return ErrGuestNotAllowed
	}

	f, err := s.pendingFor(ctx, userID, requestID)
	if err != nil {
		return err
	}

	now := s.now()
	f.Status = domain.FriendshipRejected
	f.RespondedAt = &now
	if err := s.friends.Update(ctx, f); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to reject friend request")
		return err
	}
	s.notify(ctx, f)
	audit.LogTarget(ctx, audit.ActionFriendReject, userID, f.RequesterID, "friend request rejected")
	return nil
}

func (s *friendServiceImpl) Remove(ctx context.Context, userID, friendID string) error {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return ErrGuestNotAllowed
	}

	f, err := s.friends.GetBetween(ctx, userID, friendID)
	if err != nil {
		if errors.Is(err, repository.ErrFriendshipNotFound) {
			return ErrNotFriends
		}
		return err
	}
	if f.Status != domain.FriendshipAccepted {
		return ErrNotFriends
	}

	if err := s.friends.Delete(ctx, f.ID); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to remove friend")
		return err
	}
	s.notify(ctx, f)
	audit.LogTarget(ctx, audit.ActionFriendRemove, userID, friendID, "friend removed")
	return nil
}

// summaries loads users by id and renders them keyed by id.
func (s *friendServiceImpl) summaries(ctx context.Context, ids []string) (map[string]domain.UserSummary, error) {
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.UserSummary, len(users))
	for i := range users {
		out[users[i].ID] = s.present.summary(ctx, &users[i])
	}
	return out, nil
}

func (s *friendServiceImpl) List(ctx context.Context, userID string) ([]domain.FriendResponse, error) {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}

	rows, err := s.friends.ListAccepted(ctx, userID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list friends")
		return nil, err
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].Other(userID)
	}

	users, err := s.summaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	online, err := s.presence.Online(ctx, ids)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to read presence")
		online = map[string]bool{}
	}

	friends := make([]domain.FriendResponse, 0, len(rows))
	for i := range rows {
		other := ids[i]
		summary, ok := users[other]
		if !ok {
			continue
		}
		friends = append(friends, domain.FriendResponse{
			User:   summary,
			Online: online[other],
			Since:  rows[i].RespondedAt,
		})
	}
	return friends, nil
}

func (s *friendServiceImpl) Requests(ctx context.Context, userID string) (*domain.FriendRequestsResponse, error) {
	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}

	rows, err := s.friends.ListPending(ctx, userID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list friend requests")
		return nil, err
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].Other(userID)
	}
	users, err := s.summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	resp := &domain.FriendRequestsResponse{
		Incoming: []domain.FriendRequestResponse{},
		Outgoing: []domain.FriendRequestResponse{},
	}
	for i := range rows {
		summary, ok := users[ids[i]]
		if !ok {
			continue
		}
		r := rows[i].ToResponse(userID, summary)
		if r.Direction == "incoming" {
			resp.Incoming = append(resp.Incoming, r)
		} else {
			resp.Outgoing = append(resp.Outgoing, r)
		}
	}
	return resp, nil
}

func (s *friendServiceImpl) Search(ctx context.Context, userID string, req *domain.FriendSearchRequest) ([]domain.FriendSearchResult, error) {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrSearchQueryRequired
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	users, err := s.search.Search(ctx, query, userID, limit)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to search users")
		return nil, err
	}

	ids := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	rows, err := s.friends.ListWith(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	relations := make(map[string]string, len(rows))
	for i := range rows {
		relations[rows[i].Other(userID)] = relationOf(&rows[i], userID)
	}

	results := make([]domain.FriendSearchResult, 0, len(users))
	for i := range users {
		relation, ok := relations[users[i].ID]
		if !ok {
			relation = domain.RelationNone
		}
		results = append(results, domain.FriendSearchResult{
			User:     s.present.summary(ctx, &users[i]),
			Relation: relation,
		})
	}
	return results, nil
}

func relationOf(f *domain.Friendship, viewerID string) string {
	switch {
	case f.Status == domain.FriendshipAccepted:
		return domain.RelationFriends
	case f.Status == domain.FriendshipPending && f.RequesterID == viewerID:
		return domain.RelationOutgoing
	case f.Status == domain.FriendshipPending:
		return domain.RelationIncoming
	default:
		return domain.RelationNone
	}
}

func (s *friendServiceImpl) AreFriends(ctx context.Context, a, b string) (bool, error) {
	f, err := s.friends.GetBetween(ctx, a, b)
	if err != nil {
		if errors.Is(err, repository.ErrFriendshipNotFound) {
			return false, nil
		}
		return false, err
	}
	return f.Status == domain.FriendshipAccepted, nil
}
