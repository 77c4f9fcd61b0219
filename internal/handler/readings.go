package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pressiotrack/internal/service"
)

type readingRequest struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	Note      string `json:"note"`
}

func (r readingRequest) input() service.ReadingInput {
	return service.ReadingInput{Systolic: r.Systolic, Diastolic: r.Diastolic, Note: r.Note}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		newErrorResponse(c, http.StatusBadRequest, "invalid id")

		return 0, false
	}

	return id, true
}

// POST /pressiotrack/inserir
func (h *Handler) CreateReading(c *gin.Context) {
	const op = "handler.CreateReading"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "systolic and diastolic must be numbers")

		return
	}

	reading, err := h.serviceLayer.CreateReading(c.Request.Context(), userID, req.input())
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusCreated, reading)
}

// GET /pressiotrack/buscar
func (h *Handler) ListReadings(c *gin.Context) {
	const op = "handler.ListReadings"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	readings, err := h.serviceLayer.ListReadings(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, readings)
}

// GET /pressiotrack/buscarUnica/:id
func (h *Handler) GetReading(c *gin.Context) {
	const op = "handler.GetReading"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	readingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	reading, err := h.serviceLayer.GetReading(c.Request.Context(), userID, readingID)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, reading)
}

// GET /pressiotrack/tendencia
func (h *Handler) Trend(c *gin.Context) {
	const op = "handler.Trend"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	readings, err := h.serviceLayer.Trend(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, readings)
}

// PUT /pressiotrack/atualizar/:id
func (h *Handler) UpdateReading(c *gin.Context) {
	const op = "handler.UpdateReading"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	readingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "systolic and diastolic must be numbers")

		return
	}

	reading, err := h.serviceLayer.UpdateReading(c.Request.Context(), userID, readingID, req.input())
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, reading)
}

// DELETE /pressiotrack/deletar/:id
func (h *Handler) DeleteReading(c *gin.Context) {
	const op = "handler.DeleteReading"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	readingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.serviceLayer.DeleteReading(c.Request.Context(), userID, readingID); err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "reading deleted"})
}
