package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"attachget/internal/logger"
	"attachget/internal/model"
)

type httpError struct {
	StatusCode int
	StatusMsg  string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.StatusMsg)
}

type helper struct {
	c   *gin.Context
	log *slog.Logger
}

func newHelper(c *gin.Context, op string) *helper {
	return &helper{
		c:   c,
		log: logger.FromContext(c.Request.Context()).With("op", op),
	}
}

func (h *helper) Ctx() context.Context {
	return h.c.Request.Context()
}

func (h *helper) WriteError(err error) {
	httpErr := h.mapError(err)
	h.c.JSON(httpErr.StatusCode, gin.H{"error": httpErr.StatusMsg})
}

func (h *helper) mapError(err error) *httpError {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	switch {
	case errors.Is(err, model.ErrRunNotFound):
		return &httpError{http.StatusNotFound, err.Error()}
	case errors.Is(err, model.ErrStoreCancelled):
		return &httpError{http.StatusServiceUnavailable, err.Error()}
	}

	h.log.Warn("unhandled error has been detected", "error", err)
	return &httpError{500, "internal error"}
}

func (h *helper) WriteResponse(resp any, statusCode int) {
	h.c.JSON(statusCode, resp)
}

// GetID возвращает id запуска из пути. Идентификаторы запусков имеют вид UUID.
func (h *helper) GetID() (string, error) {
	s := h.c.Param("id")
	if s == "" {
		return "", &httpError{http.StatusBadRequest, "id is required"}
	}
	if err := uuid.Validate(s); err != nil {
		return "", &httpError{http.StatusBadRequest, "id must be uuid"}
	}
	return s, nil
}
