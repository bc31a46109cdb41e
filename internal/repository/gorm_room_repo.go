package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/log"
)

type GormRoomRepository struct {
	db  *gorm.DB
	ids idgen.Generator
}

func NewGormRoomRepository(db *gorm.DB, ids idgen.Generator) *GormRoomRepository {
	return &GormRoomRepository{db: db, ids: ids}
}

func activeRooms(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", string(domain.RoomStatusActive))
}

func publicRooms(db *gorm.DB) *gorm.DB {
	return db.Where("private = ?", false)
}

func ownedBy(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("owner_id = ?", userID) }
}

func roomsToDomain(models []domain.RoomModel) []domain.Room {
	rooms := make([]domain.Room, len(models))
	for i := range models {
		rooms[i] = *models[i].ToDomain()
	}
	return rooms
}

// Create stores an active room under a fresh id. The join code is chosen
// by the caller; a taken code returns ErrRoomCodeExists so it can retry.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	id, err := r.ids.Generate()
	if err != nil {
		return err
	}
	room.ID = id
	room.Status = domain.RoomStatusActive

	model := domain.RoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return ErrRoomCodeExists
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("code", room.Code).Msg("failed to insert room")
		return err
	}
	room.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *GormRoomRepository) first(ctx context.Context, cond, arg string) (*domain.Room, error) {
	var model domain.RoomModel
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&model).Error; err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	return model.ToDomain(), nil
}

// ListPublic pages through active public rooms, newest first, and returns
// the total number of such rooms.
func (r *GormRoomRepository) ListPublic(ctx context.Context, page, pageSize int) ([]domain.Room, int, error) {
	base := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Scopes(activeRooms, publicRooms).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Room{}, 0, nil
	}

	var models []domain.RoomModel
	if err := base.Order("created_at DESC").Scopes(paginate(page, pageSize)).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return roomsToDomain(models), int(total), nil
}

// GetUserRooms returns every room the user owns, open or closed.
func (r *GormRoomRepository) GetUserRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	var models []domain.RoomModel
	err := r.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return roomsToDomain(models), nil
}

// CountActiveRoomsByUser backs the per tier open room limit.
func (r *GormRoomRepository) CountActiveRoomsByUser(ctx context.Context, userID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Scopes(ownedBy(userID), activeRooms).
		Count(&n).Error
	return int(n), err
}

// Close marks an active room closed. Closing a missing or already closed
// room returns ErrRoomNotFound.
func (r *GormRoomRepository) Close(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("id = ?", id).
		Scopes(activeRooms).
		Updates(map[string]any{
			"status":    string(domain.RoomStatusClosed),
			"closed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, id).Msg("room closed")
	return nil
}

var _ RoomRepository = (*GormRoomRepository)(nil)
