package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/idgen"
)

// todoOrder puts open todos first, then by due date with undated last,
// then newest first.
const todoOrder = "completed ASC, CASE WHEN due_date IS NULL THEN 1 ELSE 0 END ASC, due_date ASC, created_at DESC"

type GormTodoRepository struct {
	db  *gorm.DB
	ids idgen.Generator
}

func NewGormTodoRepository(db *gorm.DB, ids idgen.Generator) *GormTodoRepository {
	return &GormTodoRepository{db: db, ids: ids}
}

func (r *GormTodoRepository) Create(ctx context.Context, todo *domain.Todo) error {
	id, err := r.ids.Generate()
	if err != nil {
		return err
	}
	todo.ID = id

	model := domain.TodoToModel(todo)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	todo.CreatedAt = model.CreatedAt
	todo.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormTodoRepository) GetByID(ctx context.Context, userID, id string) (*domain.Todo, error) {
	var model domain.TodoModel
	if err := r.db.WithContext(ctx).First(&model, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, notFound(err, ErrTodoNotFound)
	}
	return model.ToDomain(), nil
}

func (r *GormTodoRepository) List(ctx context.Context, userID string, filter domain.TodoFilter) ([]domain.Todo, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	switch filter {
	case domain.TodoFilterActive:
		query = query.Where("completed = ?", false)
	case domain.TodoFilterCompleted:
		query = query.Where("completed = ?", true)
	}

	var models []domain.TodoModel
	if err := query.Order(todoOrder).Find(&models).Error; err != nil {
		return nil, err
	}

	todos := make([]domain.Todo, len(models))
	for i := range models {
		todos[i] = *models[i].ToDomain()
	}
	return todos, nil
}

func (r *GormTodoRepository) Update(ctx context.Context, todo *domain.Todo) error {
	result := r.db.WithContext(ctx).Model(&domain.TodoModel{}).
		Where("id = ? AND user_id = ?", todo.ID, todo.UserID).
		Updates(map[string]interface{}{
			"text":         todo.Text,
			"due_date":     todo.DueDate,
			"completed":    todo.Completed,
			"completed_at": todo.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTodoNotFound
	}

	var updated domain.TodoModel
	if err := r.db.WithContext(ctx).Select("updated_at").First(&updated, "id = ?", todo.ID).Error; err == nil {
		todo.UpdatedAt = updated.UpdatedAt
	}
	return nil
}

func (r *GormTodoRepository) Delete(ctx context.Context, userID, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.TodoModel{}, "id = ? AND user_id = ?", id, userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTodoNotFound
	}
	return nil
}

func (r *GormTodoRepository) CountOpen(ctx context.Context, userID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.TodoModel{}).
		Where("user_id = ? AND completed = ?", userID, false).
		Count(&count).Error
	return int(count), err
}

func (r *GormTodoRepository) Counts(ctx context.Context, userID string, now time.Time) (domain.TodoCounts, error) {
	var row struct {
		Total     int64
		Completed int64
		Overdue   int64
	}
	err := r.db.WithContext(ctx).Model(&domain.TodoModel{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN completed = ? THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN completed = ? AND due_date IS NOT NULL AND due_date < ? THEN 1 ELSE 0 END), 0) AS overdue`,
			true, false, now.UTC()).
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return domain.TodoCounts{}, err
	}
	return domain.TodoCounts{
		Total:     int(row.Total),
		Completed: int(row.Completed),
		Overdue:   int(row.Overdue),
	}, nil
}

var _ TodoRepository = (*GormTodoRepository)(nil)
