package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

var (
	ErrTodoNotFound    = errors.New("todo not found")
	ErrInvalidTodoText = errors.New("text must be between 1 and 500 characters")
	ErrTodoLimit       = errors.New("open todo limit reached for your tier")
)

type TodoService interface {
	List(ctx context.Context, userID string, filter domain.TodoFilter) (*domain.ListTodosResponse, error)
	Create(ctx context.Context, userID string, req *domain.CreateTodoRequest) (*domain.Todo, error)
	Update(ctx context.Context, userID, id string, req *domain.UpdateTodoRequest) (*domain.Todo, error)
	Toggle(ctx context.Context, userID, id string) (*domain.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

type todoServiceImpl struct {
	todos      repository.TodoRepository
	users      repository.UserRepository
	limits     *config.Limits
	dashboards cache.DashboardCache
	emitter    events.Emitter
	now        func() time.Time
}

func NewTodoService(
	todos repository.TodoRepository,
	users repository.UserRepository,
	limits *config.Limits,
	dashboards cache.DashboardCache,
	emitter events.Emitter,
) TodoService {
	return &todoServiceImpl{
		todos:      todos,
		users:      users,
		limits:     limits,
		dashboards: dashboards,
		emitter:    emitter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func validTodoText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > domain.MaxTodoTextLength {
		return "", ErrInvalidTodoText
	}
	return text, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *todoServiceImpl) changed(ctx context.Context, userID, todoID string) {
	if err := s.dashboards.Invalidate(ctx, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to invalidate dashboard cache")
	}
	s.emitter.Emit(ctx, pubsub.EventTodoChanged, userID, "todo", todoID)
}

func (s *todoServiceImpl) List(ctx context.Context, userID string, filter domain.TodoFilter) (*domain.ListTodosResponse, error) {
	if filter == "" {
		filter = domain.TodoFilterAll
	}

	todos, err := s.todos.List(ctx, userID, filter)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list todos")
		return nil, err
	}
	counts, err := s.todos.Counts(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	return &domain.ListTodosResponse{Todos: todos, Count: counts}, nil
}

// Create adds a todo. Tiers with a MaxTodos limit are capped on open todos.
func (s *todoServiceImpl) Create(ctx context.Context, userID string, req *domain.CreateTodoRequest) (*domain.Todo, error) {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}
	text, err := validTodoText(req.Text)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if max := s.limits.For(user.Tier).MaxTodos; max > 0 {
		open, err := s.todos.CountOpen(ctx, userID)
		if err != nil {
			return nil, err
		}
		if open >= max {
			return nil, ErrTodoLimit
		}
	}

	todo := &domain.Todo{
		UserID:  userID,
		Text:    text,
		DueDate: utcPtr(req.DueDate),
	}
	if err := s.todos.Create(ctx, todo); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to create todo")
		return nil, err
	}

	s.changed(ctx, userID, todo.ID)
	return todo, nil
}

func (s *todoServiceImpl) get(ctx context.Context, userID, id string) (*domain.Todo, error) {
	todo, err := s.todos.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrTodoNotFound) {
			return nil, ErrTodoNotFound
		}
		return nil, err
	}
	return todo, nil
}

func (s *todoServiceImpl) save(ctx context.Context, todo *domain.Todo) error {
	if err := s.todos.Update(ctx, todo); err != nil {
		if errors.Is(err, repository.ErrTodoNotFound) {
			return ErrTodoNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldTodoID, todo.ID).Msg("failed to update todo")
		return err
	}
	s.changed(ctx, todo.UserID, todo.ID)
	return nil
}

func (s *todoServiceImpl) Update(ctx context.Context, userID, id string, req *domain.UpdateTodoRequest) (*domain.Todo, error) {
	todo, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		text, err := validTodoText(*req.Text)
		if err != nil {
			return nil, err
		}
		todo.Text = text
	}
	switch {
	case req.ClearDueDate:
		todo.DueDate = nil
	case req.DueDate != nil:
		todo.DueDate = utcPtr(req.DueDate)
	}
	if req.Completed != nil && *req.Completed != todo.Completed {
		todo.SetCompleted(*req.Completed, s.now())
	}

	if err := s.save(ctx, todo); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *todoServiceImpl) Toggle(ctx context.Context, userID, id string) (*domain.Todo, error) {
	todo, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	todo.SetCompleted(!todo.Completed, s.now())
	if err := s.save(ctx, todo); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *todoServiceImpl) Delete(ctx context.Context, userID, id string) error {
	if err := s.todos.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrTodoNotFound) {
			return ErrTodoNotFound
		}
		return err
	}
	s.changed(ctx, userID, id)
	return nil
}
