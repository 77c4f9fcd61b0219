package models

import (
	"fmt"
	"time"
)

// Role is the profile a user registered with. The set is closed: every
// value outside the three constants is rejected by ParseRole.
type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleCaregiver Role = "CAREGIVER"
	RoleAdmin     Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleCaregiver, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Status is the classification stored with every reading.
type Status string

const (
	StatusNormal Status = "NORMAL"
	StatusHigh   Status = "HIGH"
	StatusLow    Status = "LOW"
)

const (
	DefaultSystolic  = 120
	DefaultDiastolic = 80
)

type Credentials struct {
	UserID       int64
	PasswordHash string // bcrypt‑хэш
}

type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Age         int       `json:"age"`
	Role        Role      `json:"role"`
	CaregiverID *int64    `json:"caregiver_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Baseline holds a user's personal normal pressure values.
type Baseline struct {
	UserID    int64     `json:"user_id"`
	Systolic  int       `json:"normal_systolic"`
	Diastolic int       `json:"normal_diastolic"`
	DefinedAt time.Time `json:"defined_at"`
}

// DefaultBaseline is applied when a user never set personal norms.
func DefaultBaseline(userID int64) Baseline {
	return Baseline{
		UserID:    userID,
		Systolic:  DefaultSystolic,
		Diastolic: DefaultDiastolic,
	}
}

type Reading struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Systolic   int       `json:"systolic"`
	Diastolic  int       `json:"diastolic"`
	Note       string    `json:"note"`
	Status     Status    `json:"status"`
	MeasuredAt time.Time `json:"measured_at"`
}

// PatientSummary is what a caregiver sees of a linked patient.
type PatientSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Age   int    `json:"age"`
}

// PasswordReset is the pending reset stored against a user.
type PasswordReset struct {
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
}

type Profile struct {
	User      User            `json:"user"`
	Baseline  Baseline        `json:"baseline"`
	Caregiver *PatientSummary `json:"caregiver"`
}

func (u User) Summary() PatientSummary {
	return PatientSummary{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
		Age:   u.Age,
	}
}
