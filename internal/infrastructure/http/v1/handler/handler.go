package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/JonathonClaypool/MilMap-sub001/internal/overpass"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilecache"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilemath"
	"github.com/JonathonClaypool/MilMap-sub001/internal/usecase"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"

	// statusClientClosedRequest is logged when the caller went away mid-request.
	statusClientClosedRequest = 499
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	validate   *validator.Validate
	mapUseCase *usecase.MapUseCase
}

func NewHandler(v *validator.Validate, uc *usecase.MapUseCase) *Handler {
	return &Handler{
		validate:   v,
		mapUseCase: uc,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

// bindQuery binds the query string into req and validates it.
func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "malformed query parameters: "+err.Error(), nil)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return false
	}
	return true
}

// RespondWithError maps core errors onto HTTP statuses.
func (h *Handler) RespondWithError(c *gin.Context, err error) {
	l := requestLogger(c)
	_ = c.Error(err)

	var fe *fetcher.Error
	switch {
	case errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil:
		l.Debug("request canceled by client", "error", err)
		c.AbortWithStatus(statusClientClosedRequest)
	case errors.Is(err, context.DeadlineExceeded):
		l.Warn("request timed out", "error", err)
		h.RespondWithJSON(c, http.StatusGatewayTimeout, "upstream timed out", nil)
	case errors.Is(err, tilemath.ErrInvalidArgument), errors.Is(err, overpass.ErrEmptyQuery):
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &fe):
		l.Warn("upstream fetch failed", "url", fe.URL, "status", fe.StatusCode, "attempts", fe.Attempts)
		h.RespondWithJSON(c, http.StatusBadGateway, "upstream unavailable", gin.H{
			"upstream_status": fe.StatusCode,
			"attempts":        fe.Attempts,
		})
	case errors.Is(err, fetcher.ErrFetchFailed), errors.Is(err, tilecache.ErrNoTiles):
		h.RespondWithJSON(c, http.StatusBadGateway, err.Error(), nil)
	default:
		if errors.Is(err, tilecache.ErrCacheIO) {
			l.Error("cache storage failure", "error", err)
		} else {
			l.Error("request failed", "error", err)
		}
		h.RespondWithInternalServerError(c)
	}
}

func requestLogger(c *gin.Context) logger.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}
