package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/remote"
	"github.com/taskion/taskion/internal/store"
	tsync "github.com/taskion/taskion/internal/sync"
)

var (
	errInvalidRequestBody = errors.New("invalid request body")
	errEmptyPatch         = errors.New("no fields to update")
	errUnauthorized       = errors.New("missing or invalid bearer token")
)

type apiError struct {
	Code    int    `json:"-"`
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func newAPIError(code int, message string) apiError {
	return apiError{
		Code:    code,
		Kind:    errorKind(code),
		Message: message,
	}
}

func (e apiError) Error() string {
	return e.Message
}

func errorKind(code int) string {
	switch code {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusConflict:
		return "busy"
	case http.StatusBadGateway:
		return "remote_unavailable"
	}
	return "internal"
}

func newBadRequestError(message string) apiError {
	return newAPIError(http.StatusBadRequest, message)
}

func newNotFoundError(message string) apiError {
	return newAPIError(http.StatusNotFound, message)
}

// toAPIError maps domain errors onto HTTP answers. Internal errors keep
// their detail out of the response.
func toAPIError(err error) apiError {
	var apiErr apiError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, store.ErrNotFound):
		return newNotFoundError(err.Error())
	case errors.Is(err, model.ErrInvalid):
		return newBadRequestError(err.Error())
	case remote.IsBadRequest(err):
		// The remote sent data we cannot use; the request itself was fine.
		apiErr = newAPIError(http.StatusBadGateway, err.Error())
		apiErr.Kind = "remote_invalid"
		return apiErr
	case errors.Is(err, tsync.ErrInProgress):
		return newAPIError(http.StatusConflict, err.Error())
	case remote.IsRetryable(err):
		return newAPIError(http.StatusBadGateway, err.Error())
	}
	return newAPIError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func abort(c *gin.Context, err apiError) {
	c.AbortWithStatusJSON(err.Code, err)
}

// fail logs err at a level matching its status and aborts the request.
func (h *handler) fail(c *gin.Context, err error, msg string) {
	apiErr := toAPIError(err)
	log := requestLogger(c, h.log)
	if apiErr.Code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", apiErr.Code).Msg(msg)
	} else {
		log.Debug().Err(err).Int("status", apiErr.Code).Msg(msg)
	}
	abort(c, apiErr)
}
