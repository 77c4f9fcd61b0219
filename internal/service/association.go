package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pressiotrack/internal/mail"
	"pressiotrack/internal/models"
	"pressiotrack/internal/storage"
)

const (
	eventRequested = "requested"
	eventConfirmed = "confirmed"
	eventRejected  = "rejected"
	eventRevoked   = "revoked"
)

// RequestAssociation invites the caregiver registered under caregiverEmail
// to follow the patient. Nothing is persisted: the returned token is the
// pending invitation and is only delivered by email.
func (s *service) RequestAssociation(ctx context.Context, patientID int64, caregiverEmail string) (string, error) {
	const op = "service.RequestAssociation"

	caregiverEmail = strings.ToLower(strings.TrimSpace(caregiverEmail))
	if caregiverEmail == "" {
		return "", fmt.Errorf("%s: %w", op, invalid("caregiver email is required"))
	}

	patient, err := s.storage.GetUserByID(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, mapNotFound(err))
	}
	if patient.CaregiverID != nil {
		return "", fmt.Errorf("%s: %w", op, &AlreadyLinkedError{CaregiverID: *patient.CaregiverID})
	}

	caregiver, err := s.storage.GetUserByEmail(ctx, caregiverEmail)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, ErrCaregiverNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if caregiver.ID == patient.ID {
		return "", fmt.Errorf("%s: %w", op, invalid("a patient cannot be their own caregiver"))
	}
	if caregiver.Role != models.RoleCaregiver {
		return "", fmt.Errorf("%s: %w", op, ErrCaregiverNotFound)
	}

	token, err := s.signer.IssueAssociation(patient.ID, caregiver.ID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	msg, err := s.composer.Invitation(mail.Invite{
		CaregiverEmail: caregiver.Email,
		CaregiverName:  caregiver.Name,
		CaregiverID:    caregiver.ID,
		PatientName:    patient.Name,
		Token:          token,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.notifier.Dispatch(ctx, mail.KindAssociationInvite, msg)
	s.metrics.AssociationEvent(eventRequested)

	return token, nil
}

// ConfirmAssociation consumes an invitation token and links the patient to
// the caregiver it names. Each token confirms at most once. Every reason a
// token is refused surfaces as ErrInvalidToken, except a patient who got a
// different caregiver in the meantime.
func (s *service) ConfirmAssociation(ctx context.Context, token string) (int64, error) {
	const op = "service.ConfirmAssociation"

	log := s.log.With(slog.String("op", op))

	claims, err := s.signer.VerifyAssociation(token)
	if err != nil {
		s.metrics.AssociationEvent(eventRejected)
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	err = s.storage.LinkCaregiver(ctx, storage.Link{
		PatientID:   claims.PatientID,
		CaregiverID: claims.CaregiverID,
		Nonce:       claims.Nonce(),
		ExpiresAt:   claims.ExpiresAt.Time,
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrLinkTaken):
		s.metrics.AssociationEvent(eventRejected)
		return 0, fmt.Errorf("%s: %w", op, s.alreadyLinked(ctx, claims.PatientID))
	case errors.Is(err, storage.ErrNonceUsed), errors.Is(err, storage.ErrNotFound):
		log.Warn("association token refused", slog.Int64("patient_id", claims.PatientID), slog.Any("error", err))
		s.metrics.AssociationEvent(eventRejected)
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	default:
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("caregiver linked",
		slog.Int64("patient_id", claims.PatientID),
		slog.Int64("caregiver_id", claims.CaregiverID),
	)
	s.metrics.AssociationEvent(eventConfirmed)

	return claims.PatientID, nil
}

func (s *service) alreadyLinked(ctx context.Context, patientID int64) error {
	patient, err := s.storage.GetUserByID(ctx, patientID)
	if err != nil || patient.CaregiverID == nil {
		return ErrAlreadyLinked
	}
	return &AlreadyLinkedError{CaregiverID: *patient.CaregiverID}
}

// RevokeAssociation removes the patient's caregiver. The former caregiver is
// not notified.
func (s *service) RevokeAssociation(ctx context.Context, patientID int64) error {
	const op = "service.RevokeAssociation"

	if err := s.storage.UnlinkCaregiver(ctx, patientID); err != nil {
		return fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	s.metrics.AssociationEvent(eventRevoked)

	return nil
}

func (s *service) ListLinkedPatients(ctx context.Context, caregiverID int64) ([]models.PatientSummary, error) {
	const op = "service.ListLinkedPatients"

	patients, err := s.storage.ListPatientsByCaregiver(ctx, caregiverID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return patients, nil
}

// PatientReadings returns a patient's readings to their linked caregiver.
// An unknown patient is ErrNotFound; a known but unlinked one is
// ErrForbidden.
func (s *service) PatientReadings(ctx context.Context, caregiverID, patientID int64) ([]models.Reading, error) {
	const op = "service.PatientReadings"

	patient, err := s.storage.GetUserByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	if patient.CaregiverID == nil || *patient.CaregiverID != caregiverID {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	readings, err := s.storage.ListReadings(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return readings, nil
}
