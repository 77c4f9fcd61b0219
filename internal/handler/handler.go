package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pressiotrack/internal/models"
	"pressiotrack/internal/service"
)

const healthTimeout = 2 * time.Second

type Handler struct {
	serviceLayer service.Service
	log          *slog.Logger
	opts         Options
}

type Options struct {
	AllowedOrigins []string
	SecureCookies  bool
	// Gatherer backs /metrics. The endpoint is not mounted when nil.
	Gatherer prometheus.Gatherer
}

type errorResponse struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

func NewHandler(srvc service.Service, lgr *slog.Logger, opts Options) *Handler {
	return &Handler{
		serviceLayer: srvc,
		log:          lgr,
		opts:         opts,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(h.log))

	if len(h.opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.opts.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", h.Health)
	if h.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/pressiotrack")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)
		api.POST("/forgot", h.ForgotPassword)
		api.POST("/reset", h.ResetPassword)
		api.POST("/associacao/confirmar", h.ConfirmAssociation)
	}

	session := api.Group("", AuthMiddleware(h.serviceLayer))
	{
		session.GET("/me", h.Me)
		session.GET("/perfil", h.GetProfile)
		session.PUT("/atualizarPerfil", h.UpdateProfile)

		session.GET("/buscar", h.ListReadings)
		session.GET("/buscarUnica/:id", h.GetReading)
		session.GET("/tendencia", h.Trend)
		session.DELETE("/deletar/:id", h.DeleteReading)
	}

	patient := session.Group("", RequireRole(models.RolePatient))
	{
		patient.POST("/inserir", h.CreateReading)
		patient.PUT("/atualizar/:id", h.UpdateReading)
		patient.POST("/associacao/solicitar", h.RequestAssociation)
		patient.DELETE("/associacao/remover", h.RevokeAssociation)
	}

	caregiver := session.Group("", RequireRole(models.RoleCaregiver))
	{
		caregiver.GET("/associacao/pacientes", h.ListLinkedPatients)
		caregiver.GET("/:patientId", h.PatientReadings)
	}

	admin := session.Group("/admin", RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", h.GetAllUsers)
		admin.POST("/roles/assign", h.AssignRole)
	}

	return router
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.serviceLayer.Ping(ctx); err != nil {
		h.log.Error("health check failed", slog.Any("error", err))

		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
