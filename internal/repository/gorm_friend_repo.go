package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/idgen"
)

// GormFriendRepository implements FriendRepository using GORM.
// A pair has at most one row; a rejected row is rewritten in place when
// either side asks again.
type GormFriendRepository struct {
	db  *gorm.DB
	ids idgen.Generator
}

// NewGormFriendRepository creates a new GORM-backed friend repository.
func NewGormFriendRepository(db *gorm.DB, ids idgen.Generator) *GormFriendRepository {
	return &GormFriendRepository{db: db, ids: ids}
}

// Create inserts a new friendship row. The reverse pair is checked inside
// the transaction because the unique index only covers one direction.
func (r *GormFriendRepository) Create(ctx context.Context, f *domain.Friendship) error {
	id, err := r.ids.Generate()
	if err != nil {
		return err
	}
	f.ID = id

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.FriendshipModel{}).
			Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)",
				f.RequesterID, f.AddresseeID, f.AddresseeID, f.RequesterID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrFriendshipExists
		}

		model := domain.FriendshipToModel(f)
		if err := tx.Create(model).Error; err != nil {
			if isDuplicate(err) {
				return ErrFriendshipExists
			}
			return err
		}
		f.CreatedAt = model.CreatedAt
		return nil
	})
}

func (r *GormFriendRepository) GetByID(ctx context.Context, id string) (*domain.Friendship, error) {
	var model domain.FriendshipModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrFriendshipNotFound)
	}
	return model.ToDomain(), nil
}

func (r *GormFriendRepository) GetBetween(ctx context.Context, userA, userB string) (*domain.Friendship, error) {
	var model domain.FriendshipModel
	err := r.db.WithContext(ctx).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)",
			userA, userB, userB, userA).
		First(&model).Error
	if err != nil {
		return nil, notFound(err, ErrFriendshipNotFound)
	}
	return model.ToDomain(), nil
}

// Update rewrites direction, status and timestamps of an existing row.
func (r *GormFriendRepository) Update(ctx context.Context, f *domain.Friendship) error {
	result := r.db.WithContext(ctx).Model(&domain.FriendshipModel{}).
		Where("id = ?", f.ID).
		Updates(map[string]interface{}{
			"requester_id": f.RequesterID,
			"addressee_id": f.AddresseeID,
			"status":       string(f.Status),
			"created_at":   f.CreatedAt,
			"responded_at": f.RespondedAt,
		})
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return ErrFriendshipExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

func (r *GormFriendRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.FriendshipModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

func (r *GormFriendRepository) ListAccepted(ctx context.Context, userID string) ([]domain.Friendship, error) {
	return r.list(ctx, r.db.WithContext(ctx).
		Where("(requester_id = ? OR addressee_id = ?) AND status = ?", userID, userID, string(domain.FriendshipAccepted)).
		Order("responded_at DESC"))
}

func (r *GormFriendRepository) ListPending(ctx context.Context, userID string) ([]domain.Friendship, error) {
	return r.list(ctx, r.db.WithContext(ctx).
		Where("(requester_id = ? OR addressee_id = ?) AND status = ?", userID, userID, string(domain.FriendshipPending)).
		Order("created_at DESC"))
}

func (r *GormFriendRepository) ListWith(ctx context.Context, userID string, others []string) ([]domain.Friendship, error) {
	if len(others) == 0 {
		return []domain.Friendship{}, nil
	}
	return r.list(ctx, r.db.WithContext(ctx).
		Where("(requester_id = ? AND addressee_id IN ?) OR (addressee_id = ? AND requester_id IN ?)",
			userID, others, userID, others))
}

func (r *GormFriendRepository) list(_ context.Context, query *gorm.DB) ([]domain.Friendship, error) {
	var models []domain.FriendshipModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Friendship, len(models))
	for i := range models {
		out[i] = *models[i].ToDomain()
	}
	return out, nil
}

func (r *GormFriendRepository) CountAccepted(ctx context.Context, userID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.FriendshipModel{}).
		Where("(requester_id = ? OR addressee_id = ?) AND status = ?", userID, userID, string(domain.FriendshipAccepted)).
		Count(&count).Error
	return int(count), err
}

// Ensure interface is satisfied at compile time.
var _ FriendRepository = (*GormFriendRepository)(nil)
