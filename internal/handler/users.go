package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pressiotrack/internal/models"
	"pressiotrack/internal/service"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Age      int    `json:"age" binding:"gte=0"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
	Token   string      `json:"token"`
}

type updateProfileRequest struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone" binding:"required"`
	Age             int    `json:"age" binding:"gte=0"`
	NormalSystolic  *int   `json:"normal_systolic"`
	NormalDiastolic *int   `json:"normal_diastolic"`
	UnknownBaseline bool   `json:"unknown_baseline"`
}

func (h *Handler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookie, token, int(h.serviceLayer.SessionTTL().Seconds()), "/", "", h.opts.SecureCookies, true)
}

// POST /pressiotrack/register
func (h *Handler) Register(c *gin.Context) {
	const op = "handler.Register"

	log := h.log.With(slog.String("op", op))

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "all fields are required and the email must be valid")

		return
	}

	user, token, err := h.serviceLayer.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
		Phone:    req.Phone,
		Age:      req.Age,
	})
	if err != nil {
		serviceError(c, log, err)

		return
	}

	log.Info("user registered", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))

	h.setSession(c, token)
	c.JSON(http.StatusCreated, sessionResponse{Message: "registered", User: user, Token: token})
}

// POST /pressiotrack/login
func (h *Handler) Login(c *gin.Context) {
	const op = "handler.Login"

	log := h.log.With(slog.String("op", op))

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid credentials")

		return
	}

	user, token, err := h.serviceLayer.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	h.setSession(c, token)
	c.JSON(http.StatusOK, sessionResponse{Message: "logged in", User: user, Token: token})
}

// POST /pressiotrack/logout
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", h.opts.SecureCookies, true)

	c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// GET /pressiotrack/me
func (h *Handler) Me(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user": gin.H{
			"id":    claims.UserID,
			"name":  claims.Name,
			"email": claims.Email,
			"role":  claims.Role,
		},
	})
}

// POST /pressiotrack/forgot
func (h *Handler) ForgotPassword(c *gin.Context) {
	const op = "handler.ForgotPassword"

	log := h.log.With(slog.String("op", op))

	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "email is required")

		return
	}

	if err := h.serviceLayer.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "if the email is registered, a reset link was sent"})
}

// POST /pressiotrack/reset
func (h *Handler) ResetPassword(c *gin.Context) {
	const op = "handler.ResetPassword"

	log := h.log.With(slog.String("op", op))

	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "token and new password are required")

		return
	}

	if err := h.serviceLayer.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// GET /pressiotrack/perfil
func (h *Handler) GetProfile(c *gin.Context) {
	const op = "handler.GetProfile"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		log.Error("failed to get user id from context")

		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	profile, err := h.serviceLayer.GetProfile(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, profile)
}

// PUT /pressiotrack/atualizarPerfil
func (h *Handler) UpdateProfile(c *gin.Context) {
	const op = "handler.UpdateProfile"

	log := h.log.With(slog.String("op", op))

	userID, ok := currentUserID(c)
	if !ok {
		log.Error("failed to get user id from context")

		newErrorResponse(c, http.StatusUnauthorized, "authentication required")

		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "name, email and phone are required")

		return
	}

	profile, err := h.serviceLayer.UpdateProfile(c.Request.Context(), userID, service.ProfileInput{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Age:             req.Age,
		Systolic:        req.NormalSystolic,
		Diastolic:       req.NormalDiastolic,
		UnknownBaseline: req.UnknownBaseline,
	})
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, profile)
}

// GET /pressiotrack/admin/users
func (h *Handler) GetAllUsers(c *gin.Context) {
	const op = "handler.GetAllUsers"

	log := h.log.With(slog.String("op", op))

	users, err := h.serviceLayer.ListUsers(c.Request.Context())
	if err != nil {
		serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, users)
}

// POST /pressiotrack/admin/roles/assign
func (h *Handler) AssignRole(c *gin.Context) {
	const op = "handler.AssignRole"

	log := h.log.With(slog.String("op", op))

	var req struct {
		UserID int64  `json:"user_id" binding:"required"`
		Role   string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Info("failed to bind JSON in assign role", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "user_id and role are required")

		return
	}

	role, err := models.ParseRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if err != nil {
		newErrorResponse(c, http.StatusBadRequest, err.Error())

		return
	}

	if err := h.serviceLayer.AssignRole(c.Request.Context(), req.UserID, role); err != nil {
		serviceError(c, log, err)

		return
	}

	log.Info("role assigned", slog.Int64("user_id", req.UserID), slog.String("role", string(role)))

	c.JSON(http.StatusOK, messageResponse{Message: "role assigned"})
}
