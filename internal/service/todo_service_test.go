package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
)

// recordingDashboards counts invalidations.
type recordingDashboards struct {
	cache.NoopDashboard
	invalidated []string
}

func (r *recordingDashboards) Invalidate(_ context.Context, userID string) error {
	r.invalidated = append(r.invalidated, userID)
	return nil
}

func TestTodoLimitForFreeTier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dashboards := &recordingDashboards{}
	svc := NewTodoService(f.todos, f.users, f.limits, dashboards, events.Nop{})
	u := f.user(t, "ada", domain.TierFree)

	first, err := svc.Create(ctx, u.ID, &domain.CreateTodoRequest{Text: "one"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, u.ID, &domain.CreateTodoRequest{Text: "two"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, u.ID, &domain.CreateTodoRequest{Text: "three"}); !errors.Is(err, ErrTodoLimit) {
		t.Fatalf("third open todo: got %v", err)
	}

	if _, err := svc.Toggle(ctx, u.ID, first.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if _, err := svc.Create(ctx, u.ID, &domain.CreateTodoRequest{Text: "three"}); err != nil {
		t.Fatalf("completed todos should free a slot: %v", err)
	}

	if len(dashboards.invalidated) != 4 {
		t.Fatalf("dashboard invalidated %d times, want 4", len(dashboards.invalidated))
	}
}

func TestTodoPremiumUnlimitedAndGuests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewTodoService(f.todos, f.users, f.limits, cache.NoopDashboard{}, events.Nop{})
	u := f.user(t, "pro", domain.TierPremium)

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, u.ID, &domain.CreateTodoRequest{Text: "task"}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	if _, err := svc.Create(ctx, domain.GuestIDPrefix+"x", &domain.CreateTodoRequest{Text: "task"}); !errors.Is(err, ErrGuestNotAllowed) {
		t.Fatalf("guest: got %v", err)
	}
	if _, err := svc.Create(ctx, u.ID, &domain.CreateTodoRequest{Text: "   "}); !errors.Is(err, ErrInvalidTodoText) {
		t.Fatalf("blank text: got %v", err)
	}
	if _, err := svc.Create(ctx, u.ID, &domain.CreateTodoRequest{Text: strings.Repeat("x", 501)}); !errors.Is(err, ErrInvalidTodoText) {
		t.Fatalf("long text: got %v", err)
	}
}

func TestTodoUpdateAndOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewTodoService(f.todos, f.users, f.limits, cache.NoopDashboard{}, events.Nop{})
	owner := f.user(t, "ada", domain.TierFree)
	other := f.user(t, "bo", domain.TierFree)

	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.FixedZone("", 2*3600))
	todo, err := svc.Create(ctx, owner.ID, &domain.CreateTodoRequest{Text: "draft", DueDate: &due})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if todo.DueDate == nil || todo.DueDate.Location() != time.UTC || !todo.DueDate.Equal(due) {
		t.Fatalf("due date not stored as UTC: %v", todo.DueDate)
	}

	text := "final"
	done := true
	updated, err := svc.Update(ctx, owner.ID, todo.ID, &domain.UpdateTodoRequest{Text: &text, Completed: &done, ClearDueDate: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Text != "final" || !updated.Completed || updated.CompletedAt == nil || updated.DueDate != nil {
		t.Fatalf("updated = %+v", updated)
	}

	reopened, err := svc.Toggle(ctx, owner.ID, todo.ID)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if reopened.Completed || reopened.CompletedAt != nil {
		t.Fatalf("reopened = %+v", reopened)
	}

	if _, err := svc.Update(ctx, other.ID, todo.ID, &domain.UpdateTodoRequest{Text: &text}); !errors.Is(err, ErrTodoNotFound) {
		t.Fatalf("foreign update: got %v", err)
	}
	if _, err := svc.Toggle(ctx, other.ID, todo.ID); !errors.Is(err, ErrTodoNotFound) {
		t.Fatalf("foreign toggle: got %v", err)
	}
	if err := svc.Delete(ctx, other.ID, todo.ID); !errors.Is(err, ErrTodoNotFound) {
		t.Fatalf("foreign delete: got %v", err)
	}

	list, err := svc.List(ctx, owner.ID, domain.TodoFilterActive)
	if err != nil || len(list.Todos) != 1 || list.Count.Total != 1 {
		t.Fatalf("List = %+v, %v", list, err)
	}

	if err := svc.Delete(ctx, owner.ID, todo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, err = svc.List(ctx, owner.ID, "")
	if err != nil || len(list.Todos) != 0 {
		t.Fatalf("List after delete = %+v, %v", list, err)
	}
}
