package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/log"
)

// GormUserRepository implements UserRepository using GORM. It also
// serves UserSearch with prefix LIKE queries when no search engine is
// configured.
type GormUserRepository struct {
	db  *gorm.DB
	ids idgen.Generator
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB, ids idgen.Generator) *GormUserRepository {
	return &GormUserRepository{db: db, ids: ids}
}

// Create creates a new user.
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	id, err := r.ids.Generate()
	if err != nil {
		return err
	}
	user.ID = id
	user.Email = strings.ToLower(user.Email)
	if user.Roles == nil {
		user.Roles = []string{"user"}
	}
	if user.Tier == "" {
		user.Tier = domain.TierFree
	}
	if user.Preferences.Theme == "" {
		user.Preferences.Theme = domain.ThemeSystem
	}

	model := domain.UserToModel(user)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return r.handleError(ctx, result.Error, user)
	}

	// Update the domain object with generated timestamps
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a user by ID.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByIDs retrieves the users that exist among ids, in no particular order.
func (r *GormUserRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	var models []domain.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, len(models))
	for i := range models {
		users[i] = *models[i].ToDomain()
	}
	return users, nil
}

// GetByEmail retrieves a user by email.
func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", strings.ToLower(email))
}

func (r *GormUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *GormUserRepository) GetByOIDCSubject(ctx context.Context, subject string) (*domain.User, error) {
	return r.first(ctx, "oidc_subject = ?", subject)
}

func (r *GormUserRepository) first(ctx context.Context, query string, arg string) (*domain.User, error) {
	var model domain.UserModel
	result := r.db.WithContext(ctx).First(&model, query, arg)
	if result.Error != nil {
		return nil, notFound(result.Error, ErrUserNotFound)
	}
	return model.ToDomain(), nil
}

// Update updates a user.
func (r *GormUserRepository) Update(ctx context.Context, user *domain.User) error {
	model := domain.UserToModel(user)
	result := r.db.WithContext(ctx).Model(&domain.UserModel{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"display_name":  model.DisplayName,
			"password_hash": model.PasswordHash,
			"tier":          model.Tier,
			"theme":         model.Theme,
			"oidc_subject":  model.OIDCSubject,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	// Get updated timestamp
	var updated domain.UserModel
	if err := r.db.WithContext(ctx).Select("updated_at").First(&updated, "id = ?", user.ID).Error; err == nil {
		user.UpdatedAt = updated.UpdatedAt
	}
	return nil
}

// UpdateAvatar persists the avatar keys for a user.
func (r *GormUserRepository) UpdateAvatar(ctx context.Context, userID string, objects *domain.AvatarObjects) error {
	result := r.db.WithContext(ctx).Model(&domain.UserModel{ID: userID}).
		Select("avatar_objects").
		Updates(&domain.UserModel{AvatarObjects: objects})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete soft-deletes a user and obfuscates unique fields to allow re-registration.
func (r *GormUserRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model domain.UserModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return notFound(err, ErrUserNotFound)
		}

		// Obfuscate unique fields to allow re-registration with same email/username
		suffix := "_deleted_" + id
		if err := tx.Model(&domain.UserModel{}).Where("id = ?", id).Updates(map[string]interface{}{
			"email":        model.Email + suffix,
			"username":     model.Username + suffix,
			"oidc_subject": nil,
		}).Error; err != nil {
			return err
		}

		return tx.Delete(&domain.UserModel{}, "id = ?", id).Error
	})
}

// Search matches the prefix of username, display name or email.
func (r *GormUserRepository) Search(ctx context.Context, query, excludeID string, limit int) ([]domain.User, error) {
	l := log.Ctx(ctx)

	pattern := strings.ToLower(escapeLike(strings.TrimSpace(query))) + "%"
	clause := "(LOWER(username) LIKE ? ESCAPE '" + likeEscape + "'" +
		" OR LOWER(display_name) LIKE ? ESCAPE '" + likeEscape + "'" +
		" OR LOWER(email) LIKE ? ESCAPE '" + likeEscape + "')"

	var models []domain.UserModel
	err := r.db.WithContext(ctx).
		Where(clause, pattern, pattern, pattern).
		Where("id <> ?", excludeID).
		Order("username ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l.Error().Err(err).Str("query", query).Msg("failed to search users")
		return nil, err
	}

	users := make([]domain.User, len(models))
	for i := range models {
		users[i] = *models[i].ToDomain()
	}
	return users, nil
}

// Index is a no-op; rows are searchable as soon as they are written.
func (r *GormUserRepository) Index(context.Context, *domain.User) error { return nil }

// Remove is a no-op; soft-deleted rows are excluded by gorm.
func (r *GormUserRepository) Remove(context.Context, string) error { return nil }

// handleError converts database-specific errors to domain errors.
func (r *GormUserRepository) handleError(ctx context.Context, err error, user *domain.User) error {
	if !isDuplicate(err) {
		return err
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "email"):
		return ErrEmailExists
	case strings.Contains(errStr, "username"):
		return ErrUsernameExists
	}

	// Translated errors drop the column name; look it up instead.
	if _, lookupErr := r.GetByEmail(ctx, user.Email); lookupErr == nil {
		return ErrEmailExists
	} else if !errors.Is(lookupErr, ErrUserNotFound) {
		return err
	}
	return ErrUsernameExists
}
