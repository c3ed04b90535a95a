package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleSync runs one sync pass and answers with its stats. A pass that is
// already running answers 409; an unreachable or misbehaving remote
// answers 502.
func (h *handler) HandleSync(c *gin.Context) {
	stats, err := h.syncer.RunSync(c.Request.Context())
	if err != nil {
		h.fail(c, err, "sync failed")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) HandleListSyncRuns(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		abort(c, newBadRequestError(err.Error()))
		return
	}

	runs, err := h.store.ListSyncRuns(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, "failed to list sync runs")
		return
	}
	c.JSON(http.StatusOK, runs)
}
