package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/response"
)

func (h *Handler) ListTodos(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ListTodosRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	todos, err := h.todos.List(ctx, middleware.GetUserID(c), domain.TodoFilter(req.Filter))
	if err != nil {
		respondError(c, err, "list todos")
		return
	}

	response.Success(c, todos)
}

func (h *Handler) CreateTodo(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.CreateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	todo, err := h.todos.Create(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "create todo")
		return
	}

	response.Created(c, todo)
}

// UpdateTodo applies a partial update. PUT and PATCH share it.
func (h *Handler) UpdateTodo(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.UpdateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	todo, err := h.todos.Update(ctx, middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err, "update todo")
		return
	}

	response.Success(c, todo)
}

func (h *Handler) ToggleTodo(c *gin.Context) {
	todo, err := h.todos.Toggle(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "toggle todo")
		return
	}

	response.Success(c, todo)
}

func (h *Handler) DeleteTodo(c *gin.Context) {
	if err := h.todos.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete todo")
		return
	}

	response.Success(c, gin.H{"message": "todo deleted"})
}
