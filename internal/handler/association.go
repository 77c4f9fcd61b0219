package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// POST /pressiotrack/associacao/solicitar
//
// The invitation token goes to the caregiver by email only, so the patient
// cannot confirm on the caregiver's behalf.
func (h *Handler) RequestAssociation(c *gin.Context) {
	const op = "handler.RequestAssociation"

	log := h.log.With(slog.String("op", op))

	patientID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	var req struct {
		CaregiverEmail string `json:"caregiver_email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "a valid caregiver email is required")

		return
	}

	if _, err := h.serviceLayer.RequestAssociation(c.Request.Context(), patientID, req.CaregiverEmail); err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "invitation sent to the caregiver"})
}

// POST /pressiotrack/associacao/confirmar
func (h *Handler) ConfirmAssociation(c *gin.Context) {
	const op = "handler.ConfirmAssociation"

	log := h.log.With(slog.String("op", op))

	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid or expired token")

		return
	}

	patientID, err := h.serviceLayer.ConfirmAssociation(c.Request.Context(), req.Token)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "caregiver linked", "patient_id": patientID})
}

// GET /pressiotrack/associacao/pacientes
func (h *Handler) ListLinkedPatients(c *gin.Context) {
	const op = "handler.ListLinkedPatients"

	log := h.log.With(slog.String("op", op))

	caregiverID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	patients, err := h.serviceLayer.ListLinkedPatients(c.Request.Context(), caregiverID)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, patients)
}

// DELETE /pressiotrack/associacao/remover
func (h *Handler) RevokeAssociation(c *gin.Context) {
	const op = "handler.RevokeAssociation"

	log := h.log.With(slog.String("op", op))

	patientID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	if err := h.serviceLayer.RevokeAssociation(c.Request.Context(), patientID); err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "caregiver removed"})
}

// GET /pressiotrack/:patientId
func (h *Handler) PatientReadings(c *gin.Context) {
	const op = "handler.PatientReadings"

	log := h.log.With(slog.String("op", op))

	caregiverID, ok := currentUserID(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	patientID, ok := pathID(c, "patientId")
	if !ok {
		return
	}

	readings, err := h.serviceLayer.PatientReadings(c.Request.Context(), caregiverID, patientID)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, readings)
}
