package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskion/taskion/internal/dashboard"
	"github.com/taskion/taskion/internal/dates"
	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/store"
)

func (h *handler) HandleListTasks(c *gin.Context) {
	includeArchived, err := boolQuery(c, "include_archived")
	if err != nil {
		abort(c, newBadRequestError(err.Error()))
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		abort(c, newBadRequestError(err.Error()))
		return
	}

	tasks, err := h.store.ListTasks(c.Request.Context(), store.TaskFilter{
		CourseID:        c.Query("course_id"),
		Status:          c.Query("status"),
		IncludeArchived: includeArchived,
		Limit:           limit,
	})
	if err != nil {
		h.fail(c, err, "failed to list tasks")
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// HandleCreateTask accepts due dates as YYYY-MM-DD, RFC3339 or an English
// expression like "next friday".
func (h *handler) HandleCreateTask(c *gin.Context) {
	var req model.NewTask
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, newBadRequestError(errInvalidRequestBody.Error()+": "+err.Error()))
		return
	}

	due, err := dates.ParseDue(req.DueDate, h.now())
	if err != nil {
		h.fail(c, err, "failed to parse due date")
		return
	}
	req.DueDate = due

	task, err := h.store.InsertTask(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "failed to create task")
		return
	}
	h.changed(task, dashboard.ActionCreated)
	c.JSON(http.StatusCreated, task)
}

func (h *handler) HandleGetTask(c *gin.Context) {
	task, err := h.store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get task")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *handler) HandleUpdateTask(c *gin.Context) {
	var patch model.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, newBadRequestError(errInvalidRequestBody.Error()+": "+err.Error()))
		return
	}
	if patch.Empty() {
		abort(c, newBadRequestError(errEmptyPatch.Error()))
		return
	}
	if patch.DueDate != nil && *patch.DueDate != "" {
		due, err := dates.ParseDue(*patch.DueDate, h.now())
		if err != nil {
			h.fail(c, err, "failed to parse due date")
			return
		}
		patch.DueDate = &due
	}

	task, err := h.store.UpdateTask(c.Request.Context(), c.Param("id"), &patch)
	if err != nil {
		h.fail(c, err, "failed to update task")
		return
	}
	h.changed(task, dashboard.ActionUpdated)
	c.JSON(http.StatusOK, task)
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid value for %s: %q", name, raw)
	}
	return v, nil
}
