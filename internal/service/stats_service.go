package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

var (
	ErrInvalidDuration = errors.New("duration_seconds must be between 1 and 86400")
	ErrFutureSession   = errors.New("joined_at cannot be in the future")
)

const (
	chartDays = 7
	// streakWindow bounds how far back the streak is computed.
	streakWindow = 366
	// maxTZOffset is the widest real UTC offset, in minutes.
	maxTZOffset = 14 * 60
	clockSkew   = time.Minute
)

// StatsService records meeting sessions and builds the dashboard.
type StatsService interface {
	RecordSession(ctx context.Context, userID string, req *domain.RecordSessionRequest) (*domain.MeetingSession, error)
	ListSessions(ctx context.Context, userID string, req *domain.ListSessionsRequest) (*domain.ListSessionsResponse, error)
	Stats(ctx context.Context, userID string, tzOffset int) (*domain.Stats, error)
	// Dashboard aggregates for the user's day boundaries. tzOffset is
	// minutes east of UTC.
	Dashboard(ctx context.Context, userID string, tzOffset int) (*domain.Dashboard, error)
}

type statsServiceImpl struct {
	sessions   repository.SessionRepository
	todos      repository.TodoRepository
	friends    repository.FriendRepository
	dashboards cache.DashboardCache
	ttl        time.Duration
	emitter    events.Emitter
	now        func() time.Time
}

func NewStatsService(
	sessions repository.SessionRepository,
	todos repository.TodoRepository,
	friends repository.FriendRepository,
	dashboards cache.DashboardCache,
	ttl time.Duration,
	emitter events.Emitter,
) StatsService {
	return &statsServiceImpl{
		sessions:   sessions,
		todos:      todos,
		friends:    friends,
		dashboards: dashboards,
		ttl:        ttl,
		emitter:    emitter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *statsServiceImpl) RecordSession(ctx context.Context, userID string, req *domain.RecordSessionRequest) (*domain.MeetingSession, error) {
	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}
	if req.DurationSeconds < 1 || req.DurationSeconds > domain.MaxSessionSeconds {
		return nil, ErrInvalidDuration
	}
	if req.JoinedAt.After(s.now().Add(clockSkew)) {
		return nil, ErrFutureSession
	}

	session := &domain.MeetingSession{
		UserID:          userID,
		RoomID:          strings.TrimSpace(req.RoomID),
		RoomTitle:       strings.TrimSpace(req.RoomTitle),
		JoinedAt:        req.JoinedAt.UTC(),
		DurationSeconds: req.DurationSeconds,
		Private:         req.Private,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.dashboards.Invalidate(ctx, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to invalidate dashboard cache")
	}
	s.emitter.Emit(ctx, pubsub.EventSessionRecorded, userID, "session", session.ID)
	return session, nil
}

func (s *statsServiceImpl) ListSessions(ctx context.Context, userID string, req *domain.ListSessionsRequest) (*domain.ListSessionsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	sessions, total, err := s.sessions.List(ctx, userID, page, pageSize)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list sessions")
		return nil, err
	}

	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}
	return &domain.ListSessionsResponse{
		Sessions:   sessions,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *statsServiceImpl) Stats(ctx context.Context, userID string, tzOffset int) (*domain.Stats, error) {
	d, err := s.Dashboard(ctx, userID, tzOffset)
	if err != nil {
		return nil, err
	}
	return &d.Stats, nil
}

func clampOffset(tzOffset int) int {
	if tzOffset > maxTZOffset {
		return maxTZOffset
	}
	if tzOffset < -maxTZOffset {
		return -maxTZOffset
	}
	return tzOffset
}

func (s *statsServiceImpl) Dashboard(ctx context.Context, userID string, tzOffset int) (*domain.Dashboard, error) {
	l := log.Ctx(ctx)
	tzOffset = clampOffset(tzOffset)

	if cached, err := s.dashboards.Get(ctx, userID, tzOffset); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("dashboard cache get failed")
	}

	now := s.now()
	var (
		totals   domain.SessionTotals
		recent   []domain.MeetingSession
		todos    domain.TodoCounts
		friendsN int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.sessions.Totals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.sessions.ListSince(gctx, userID, now.AddDate(0, 0, -streakWindow))
		return err
	})
	g.Go(func() error {
		var err error
		todos, err = s.todos.Counts(gctx, userID, now)
		return err
	})
	g.Go(func() error {
		var err error
		friendsN, err = s.friends.CountAccepted(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to aggregate dashboard")
		return nil, err
	}

	loc := time.FixedZone("", tzOffset*60)
	perDay := secondsPerDay(recent, loc)
	today := now.In(loc)

	d := &domain.Dashboard{
		Stats: domain.Stats{
			TotalSessions:     totals.Count,
			TotalFocusMinutes: int(totals.Seconds / 60),
			CurrentStreak:     currentStreak(perDay, today),
		},
		Daily:       dailyChart(perDay, today, chartDays),
		Todos:       todos,
		FriendCount: friendsN,
		GeneratedAt: now,
	}
	if totals.Count > 0 {
		avg := float64(totals.Seconds) / 60 / float64(totals.Count)
		d.AverageSessionMinutes = math.Round(avg*10) / 10
	}

	if err := s.dashboards.Set(ctx, userID, tzOffset, d, s.ttl); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("dashboard cache set failed")
	}
	return d, nil
}

const dayLayout = "2006-01-02"

// secondsPerDay buckets session durations by the local day they started.
func secondsPerDay(sessions []domain.MeetingSession, loc *time.Location) map[string]int {
	out := make(map[string]int)
	for i := range sessions {
		day := sessions[i].JoinedAt.In(loc).Format(dayLayout)
		out[day] += sessions[i].DurationSeconds
	}
	return out
}

// currentStreak counts consecutive days with a session ending today. A day
// without a session yet does not break the streak until it is over.
func currentStreak(perDay map[string]int, today time.Time) int {
	day := today
	if _, ok := perDay[day.Format(dayLayout)]; !ok {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for {
		if _, ok := perDay[day.Format(dayLayout)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

// dailyChart returns n points, oldest first, ending today.
func dailyChart(perDay map[string]int, today time.Time, n int) []domain.DailyMinutes {
	points := make([]domain.DailyMinutes, n)
	for i := 0; i < n; i++ {
		day := today.AddDate(0, 0, i-(n-1)).Format(dayLayout)
		points[i] = domain.DailyMinutes{Date: day, Minutes: perDay[day] / 60}
	}
	return points
}
