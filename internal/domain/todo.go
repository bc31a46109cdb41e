package domain

import "time"

const MaxTodoTextLength = 500

// TodoFilter selects which todos List returns.
type TodoFilter string

const (
	TodoFilterAll       TodoFilter = "all"
	TodoFilterActive    TodoFilter = "active"
	TodoFilterCompleted TodoFilter = "completed"
)

type Todo struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Text        string     `json:"text"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Overdue reports whether an open todo is past its due date.
func (t *Todo) Overdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// SetCompleted flips the flag and keeps CompletedAt consistent with it.
func (t *Todo) SetCompleted(completed bool, now time.Time) {
	t.Completed = completed
	if completed {
		at := now
		t.CompletedAt = &at
	} else {
		t.CompletedAt = nil
	}
}

type ListTodosRequest struct {
	Filter string `form:"filter" binding:"omitempty,oneof=all active completed"`
}

type CreateTodoRequest struct {
	Text    string     `json:"text" binding:"required"`
	DueDate *time.Time `json:"due_date"`
}

type UpdateTodoRequest struct {
	Text         *string    `json:"text"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
	Completed    *bool      `json:"completed"`
}

type ListTodosResponse struct {
	Todos []Todo     `json:"todos"`
	Count TodoCounts `json:"count"`
}
