package service

import (
	"context"
	"log/slog"
	"time"

	"pressiotrack/internal/auth"
	"pressiotrack/internal/mail"
	"pressiotrack/internal/metrics"
	"pressiotrack/internal/models"
	"pressiotrack/internal/storage"
)

const (
	trendWindow = 30 * 24 * time.Hour
	trendPoints = 7

	minPasswordLength = 6
)

type Service interface {
	Register(ctx context.Context, in RegisterInput) (models.User, string, error)
	Login(ctx context.Context, email, password string) (models.User, string, error)
	ParseSession(ctx context.Context, token string) (*auth.Claims, error)
	SessionTTL() time.Duration
	GetProfile(ctx context.Context, userID int64) (models.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (models.Profile, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ListUsers(ctx context.Context) ([]models.User, error)
	AssignRole(ctx context.Context, userID int64, role models.Role) error

	CreateReading(ctx context.Context, userID int64, in ReadingInput) (models.Reading, error)
	UpdateReading(ctx context.Context, userID, readingID int64, in ReadingInput) (models.Reading, error)
	DeleteReading(ctx context.Context, userID, readingID int64) error
	GetReading(ctx context.Context, userID, readingID int64) (models.Reading, error)
	ListReadings(ctx context.Context, userID int64) ([]models.Reading, error)
	Trend(ctx context.Context, userID int64) ([]models.Reading, error)

	RequestAssociation(ctx context.Context, patientID int64, caregiverEmail string) (string, error)
	ConfirmAssociation(ctx context.Context, token string) (int64, error)
	RevokeAssociation(ctx context.Context, patientID int64) error
	ListLinkedPatients(ctx context.Context, caregiverID int64) ([]models.PatientSummary, error)
	PatientReadings(ctx context.Context, caregiverID, patientID int64) ([]models.Reading, error)

	Ping(ctx context.Context) error
}

// Deps are the collaborators the service is built from.
type Deps struct {
	Storage  storage.Storage
	Signer   *auth.Signer
	Notifier *mail.Notifier
	Composer *mail.Composer
	Metrics  *metrics.Metrics
	Log      *slog.Logger
	ResetTTL time.Duration
}

type service struct {
	storage  storage.Storage
	signer   *auth.Signer
	notifier *mail.Notifier
	composer *mail.Composer
	metrics  *metrics.Metrics
	log      *slog.Logger
	resetTTL time.Duration
	now      func() time.Time
}

func NewService(deps Deps) *service {
	return &service{
		storage:  deps.Storage,
		signer:   deps.Signer,
		notifier: deps.Notifier,
		composer: deps.Composer,
		metrics:  deps.Metrics,
		log:      deps.Log,
		resetTTL: deps.ResetTTL,
		now:      time.Now,
	}
}

func (s *service) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}
