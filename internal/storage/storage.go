package storage

import (
	"context"
	"errors"
	"time"

	"pressiotrack/internal/models"
)

const (
	usersTable          = "users"
	baselinesTable      = "baselines"
	readingsTable       = "readings"
	consumedNoncesTable = "consumed_association_nonces"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNonceUsed means the association token was already confirmed once.
	ErrNonceUsed = errors.New("association nonce already consumed")
	// ErrLinkTaken means the patient is linked to a different caregiver.
	ErrLinkTaken = errors.New("patient already linked to another caregiver")
)

type Storage interface {

	// Пользователи и аутентификация
	CreateUser(ctx context.Context, user models.User, passwordHash string) (userID int64, err error)
	GetUserByID(ctx context.Context, userID int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetCredentialsByEmail(ctx context.Context, email string) (models.Credentials, error)
	UpdateUser(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	ListUsers(ctx context.Context) ([]models.User, error)
	AssignRole(ctx context.Context, userID int64, role models.Role) error

	// Сброс пароля
	SetPasswordReset(ctx context.Context, reset models.PasswordReset) error
	GetPasswordReset(ctx context.Context, userID int64) (models.PasswordReset, error)

	// Нормы давления
	GetBaseline(ctx context.Context, userID int64) (models.Baseline, error)
	UpsertBaseline(ctx context.Context, baseline models.Baseline) error

	// Измерения
	CreateReading(ctx context.Context, reading models.Reading) (models.Reading, error)
	GetReading(ctx context.Context, userID, readingID int64) (models.Reading, error)
	UpdateReading(ctx context.Context, reading models.Reading) (models.Reading, error)
	DeleteReading(ctx context.Context, userID, readingID int64) error
	ListReadings(ctx context.Context, userID int64) ([]models.Reading, error)
	ListReadingsSince(ctx context.Context, userID int64, since time.Time, limit int) ([]models.Reading, error)

	// Связь пациент -> опекун
	LinkCaregiver(ctx context.Context, link Link) error
	UnlinkCaregiver(ctx context.Context, patientID int64) error
	ListPatientsByCaregiver(ctx context.Context, caregiverID int64) ([]models.PatientSummary, error)

	Ping(ctx context.Context) error
	Close()
}

// Link is a confirmed invitation about to be written. Nonce and ExpiresAt
// come from the token so the nonce record can be purged once the token
// could no longer verify anyway.
type Link struct {
	PatientID   int64
	CaregiverID int64
	Nonce       string
	ExpiresAt   time.Time
}

var (
	_ Storage = (*PostgresStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)
