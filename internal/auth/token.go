package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"

	"pressiotrack/internal/models"
)

// ErrInvalidToken is returned for every token that cannot be trusted:
// bad signature, wrong algorithm, malformed claims or expiry. Callers must
// not be able to tell these apart.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	issuer            = "pressiotrack"
	audienceSession   = "session"
	audienceCaregiver = "caregiver-association"
)

// Claims identify the user behind a session cookie.
type Claims struct {
	UserID int64       `json:"user_id"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
	Email  string      `json:"email"`
	jwt.RegisteredClaims
}

// AssociationClaims are the payload of a caregiver invitation. The token
// itself is the pending invitation; nothing else is stored until it is
// confirmed.
type AssociationClaims struct {
	PatientID   int64 `json:"patient_id"`
	CaregiverID int64 `json:"caregiver_id"`
	jwt.RegisteredClaims
}

// Nonce is the single-use identifier of an association token.
func (c AssociationClaims) Nonce() string {
	return c.ID
}

// Signer mints and verifies HS256 tokens with a secret supplied at startup.
type Signer struct {
	key        []byte
	sessionTTL time.Duration
	inviteTTL  time.Duration
	now        func() time.Time
}

func NewSigner(secret string, sessionTTL, inviteTTL time.Duration) *Signer {
	return &Signer{
		key:        []byte(secret),
		sessionTTL: sessionTTL,
		inviteTTL:  inviteTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of the signer that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Signer) InviteTTL() time.Duration {
	return s.inviteTTL
}

func (s *Signer) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *Signer) registered(subject int64, audience string, ttl time.Duration) (jwt.RegisteredClaims, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return jwt.RegisteredClaims{}, err
	}

	now := s.now()
	return jwt.RegisteredClaims{
		ID:        id.String(),
		Issuer:    issuer,
		Subject:   strconv.FormatInt(subject, 10),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}, nil
}

func (s *Signer) GenerateJWT(user models.User) (string, error) {
	const op = "auth.GenerateJWT"

	registered, err := s.registered(user.ID, audienceSession, s.sessionTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	claims := &Claims{
		UserID:           user.ID,
		Name:             user.Name,
		Role:             user.Role,
		Email:            user.Email,
		RegisteredClaims: registered,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (s *Signer) ParseJWT(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(tokenStr, claims, audienceSession); err != nil {
		return nil, err
	}

	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Signer) IssueAssociation(patientID, caregiverID int64) (string, error) {
	const op = "auth.IssueAssociation"

	registered, err := s.registered(patientID, audienceCaregiver, s.inviteTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	claims := &AssociationClaims{
		PatientID:        patientID,
		CaregiverID:      caregiverID,
		RegisteredClaims: registered,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (s *Signer) VerifyAssociation(tokenStr string) (*AssociationClaims, error) {
	claims := &AssociationClaims{}
	if err := s.parse(tokenStr, claims, audienceCaregiver); err != nil {
		return nil, err
	}

	if claims.PatientID <= 0 || claims.CaregiverID <= 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// parse collapses every jwt failure into ErrInvalidToken.
func (s *Signer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	return nil
}
