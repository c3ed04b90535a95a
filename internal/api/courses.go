package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskion/taskion/internal/dashboard"
	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/store"
)

func (h *handler) HandleHealth(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		log := requestLogger(c, h.log)
		log.Error().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) HandleListCourses(c *gin.Context) {
	includeArchived, err := boolQuery(c, "include_archived")
	if err != nil {
		abort(c, newBadRequestError(err.Error()))
		return
	}

	courses, err := h.store.ListCourses(c.Request.Context(), store.CourseFilter{IncludeArchived: includeArchived})
	if err != nil {
		h.fail(c, err, "failed to list courses")
		return
	}
	c.JSON(http.StatusOK, courses)
}

func (h *handler) HandleCreateCourse(c *gin.Context) {
	var req model.NewCourse
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, newBadRequestError(errInvalidRequestBody.Error()+": "+err.Error()))
		return
	}

	course, err := h.store.InsertCourse(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "failed to create course")
		return
	}
	h.changed(course, dashboard.ActionCreated)
	c.JSON(http.StatusCreated, course)
}

func (h *handler) HandleGetCourse(c *gin.Context) {
	course, err := h.store.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get course")
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *handler) HandleUpdateCourse(c *gin.Context) {
	var patch model.CoursePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, newBadRequestError(errInvalidRequestBody.Error()+": "+err.Error()))
		return
	}
	if patch.Empty() {
		abort(c, newBadRequestError(errEmptyPatch.Error()))
		return
	}

	course, err := h.store.UpdateCourse(c.Request.Context(), c.Param("id"), &patch)
	if err != nil {
		h.fail(c, err, "failed to update course")
		return
	}
	h.changed(course, dashboard.ActionUpdated)
	c.JSON(http.StatusOK, course)
}

// HandleSetArchived returns the archive or unarchive handler for kind.
// Both answer 204, or 404 for an unknown id.
func (h *handler) HandleSetArchived(kind model.Kind, archived bool) gin.HandlerFunc {
	set, action := h.store.Archive, dashboard.ActionArchived
	if !archived {
		set, action = h.store.Unarchive, dashboard.ActionUnarchived
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		found, err := set(ctx, kind, id)
		if err != nil {
			h.fail(c, err, "failed to set archived flag")
			return
		}
		if !found {
			abort(c, newNotFoundError(string(kind)+" "+id+": "+store.ErrNotFound.Error()))
			return
		}

		if h.notify != nil {
			if rec, err := h.store.FindByID(ctx, kind, id); err == nil {
				h.notify.RecordChanged(rec, action)
			}
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *handler) changed(rec model.Record, action string) {
	if h.notify != nil {
		h.notify.RecordChanged(rec, action)
	}
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q", name, raw)
	}
	return v, nil
}
