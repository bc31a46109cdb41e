package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/internal/domain"
)

// GormMessageRepository keeps chat history in the SQL database.
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create stores msg. The caller assigns the ULID.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	msg.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrMessageNotFound)
	}
	return model.ToDomain(), nil
}

func (r *GormMessageRepository) GetMessages(
	ctx context.Context,
	roomID string,
	cursor string,
	limit int,
	direction string,
) ([]domain.Message, string, bool, error) {
	// Query limit + 1 to determine if there are more results
	query := r.db.WithContext(ctx).Where("room_id = ?", roomID).Limit(limit + 1)

	if direction == domain.DirectionForward {
		if cursor != "" {
			query = query.Where("id > ?", cursor)
		}
		query = query.Order("id ASC")
	} else {
		if cursor != "" {
			query = query.Where("id < ?", cursor)
		}
		query = query.Order("id DESC")
	}

	var models []domain.MessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, "", false, fmt.Errorf("failed to query messages: %w", err)
	}

	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}

	messages := make([]domain.Message, len(models))
	for i := range models {
		messages[i] = *models[i].ToDomain()
	}

	var nextCursor string
	if len(messages) > 0 {
		nextCursor = messages[len(messages)-1].ID
	}
	return messages, nextCursor, hasMore, nil
}

func (r *GormMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{
			"content":   msg.Content,
			"edited_at": msg.EditedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *GormMessageRepository) Delete(ctx context.Context, msg *domain.Message) error {
	result := r.db.WithContext(ctx).Delete(&domain.MessageModel{}, "id = ?", msg.ID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Close is a no-op; the shared *gorm.DB is closed by main.
func (r *GormMessageRepository) Close() error { return nil }

var _ MessageRepository = (*GormMessageRepository)(nil)
