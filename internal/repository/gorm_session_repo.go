package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/log"
)

// GormSessionRepository stores meeting history.
type GormSessionRepository struct {
	db  *gorm.DB
	ids idgen.Generator
}

func NewGormSessionRepository(db *gorm.DB, ids idgen.Generator) *GormSessionRepository {
	return &GormSessionRepository{db: db, ids: ids}
}

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.MeetingSession) error {
	id, err := r.ids.Generate()
	if err != nil {
		return err
	}
	s.ID = id

	model := domain.SessionToModel(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, s.UserID).Msg("failed to record session")
		return err
	}
	s.CreatedAt = model.CreatedAt
	return nil
}

// List returns the user's sessions newest first.
func (r *GormSessionRepository) List(ctx context.Context, userID string, page, pageSize int) ([]domain.MeetingSession, int, error) {
	query := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []domain.SessionModel
	if err := query.Order("joined_at DESC").Scopes(paginate(page, pageSize)).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	sessions := make([]domain.MeetingSession, len(models))
	for i := range models {
		sessions[i] = *models[i].ToDomain()
	}
	return sessions, int(total), nil
}

func (r *GormSessionRepository) Totals(ctx context.Context, userID string) (domain.SessionTotals, error) {
	var row struct {
		Count   int64
		Seconds int64
	}
	err := r.db.WithContext(ctx).Model(&domain.SessionModel{}).
		Select("COUNT(*) AS count, COALESCE(SUM(duration_seconds), 0) AS seconds").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return domain.SessionTotals{}, err
	}
	return domain.SessionTotals{Count: int(row.Count), Seconds: row.Seconds}, nil
}

func (r *GormSessionRepository) ListSince(ctx context.Context, userID string, since time.Time) ([]domain.MeetingSession, error) {
	var models []domain.SessionModel
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "room_id", "joined_at", "duration_seconds", "private").
		Where("user_id = ? AND joined_at >= ?", userID, since.UTC()).
		Order("joined_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.MeetingSession, len(models))
	for i := range models {
		sessions[i] = *models[i].ToDomain()
	}
	return sessions, nil
}

var _ SessionRepository = (*GormSessionRepository)(nil)
