package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pressiotrack/internal/classifier"
	"pressiotrack/internal/mail"
	"pressiotrack/internal/models"
	"pressiotrack/internal/storage"
)

const (
	minSystolic, maxSystolic   = 50, 300
	minDiastolic, maxDiastolic = 30, 200
	maxNoteLength              = 500
)

type ReadingInput struct {
	Systolic  int
	Diastolic int
	Note      string
}

func (in ReadingInput) validate() error {
	if in.Systolic < minSystolic || in.Systolic > maxSystolic {
		return invalid("systolic must be between %d and %d", minSystolic, maxSystolic)
	}
	if in.Diastolic < minDiastolic || in.Diastolic > maxDiastolic {
		return invalid("diastolic must be between %d and %d", minDiastolic, maxDiastolic)
	}
	if len(in.Note) > maxNoteLength {
		return invalid("note must be at most %d characters", maxNoteLength)
	}
	return nil
}

// baseline returns the stored norms or the defaults. Defaults are not
// persisted here; the profile endpoint does that.
func (s *service) baseline(ctx context.Context, userID int64) (models.Baseline, error) {
	b, err := s.storage.GetBaseline(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.DefaultBaseline(userID), nil
	}
	if err != nil {
		return models.Baseline{}, err
	}
	return b, nil
}

func (s *service) classify(ctx context.Context, userID int64, in ReadingInput) (models.Status, error) {
	b, err := s.baseline(ctx, userID)
	if err != nil {
		return "", err
	}

	status := classifier.Classify(in.Systolic, in.Diastolic, b)
	s.metrics.ReadingClassified(status)

	return status, nil
}

func (s *service) CreateReading(ctx context.Context, userID int64, in ReadingInput) (models.Reading, error) {
	const op = "service.CreateReading"

	in.Note = strings.TrimSpace(in.Note)
	if err := in.validate(); err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, err)
	}

	status, err := s.classify(ctx, userID, in)
	if err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, err)
	}

	reading, err := s.storage.CreateReading(ctx, models.Reading{
		UserID:     userID,
		Systolic:   in.Systolic,
		Diastolic:  in.Diastolic,
		Note:       in.Note,
		Status:     status,
		MeasuredAt: s.now().UTC(),
	})
	if err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, err)
	}

	s.alertIfHigh(ctx, reading)

	return reading, nil
}

func (s *service) UpdateReading(ctx context.Context, userID, readingID int64, in ReadingInput) (models.Reading, error) {
	const op = "service.UpdateReading"

	in.Note = strings.TrimSpace(in.Note)
	if err := in.validate(); err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.storage.GetReading(ctx, userID, readingID); err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	status, err := s.classify(ctx, userID, in)
	if err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, err)
	}

	reading, err := s.storage.UpdateReading(ctx, models.Reading{
		ID:        readingID,
		UserID:    userID,
		Systolic:  in.Systolic,
		Diastolic: in.Diastolic,
		Note:      in.Note,
		Status:    status,
	})
	if err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	s.alertIfHigh(ctx, reading)

	return reading, nil
}

// alertIfHigh emails the owner about a HIGH reading. The write already
// succeeded; nothing here can fail it.
func (s *service) alertIfHigh(ctx context.Context, reading models.Reading) {
	if reading.Status != models.StatusHigh {
		return
	}

	log := s.log.With(slog.String("op", "service.alertIfHigh"), slog.Int64("reading_id", reading.ID))

	user, err := s.storage.GetUserByID(ctx, reading.UserID)
	if err != nil {
		log.Error("failed to load reading owner", slog.Any("error", err))
		return
	}
	if user.Email == "" {
		return
	}

	msg, err := s.composer.HypertensionAlert(user.Email, user.Name, reading.Systolic, reading.Diastolic)
	if err != nil {
		log.Error("failed to compose alert", slog.Any("error", err))
		return
	}

	s.notifier.Dispatch(ctx, mail.KindHypertensionAlert, msg)
}

func (s *service) DeleteReading(ctx context.Context, userID, readingID int64) error {
	const op = "service.DeleteReading"

	if err := s.storage.DeleteReading(ctx, userID, readingID); err != nil {
		return fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	return nil
}

func (s *service) GetReading(ctx context.Context, userID, readingID int64) (models.Reading, error) {
	const op = "service.GetReading"

	reading, err := s.storage.GetReading(ctx, userID, readingID)
	if err != nil {
		return models.Reading{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	return reading, nil
}

func (s *service) ListReadings(ctx context.Context, userID int64) ([]models.Reading, error) {
	const op = "service.ListReadings"

	readings, err := s.storage.ListReadings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return readings, nil
}

// Trend returns up to the last seven readings of the past 30 days, oldest
// first, ready to be plotted.
func (s *service) Trend(ctx context.Context, userID int64) ([]models.Reading, error) {
	const op = "service.Trend"

	readings, err := s.storage.ListReadingsSince(ctx, userID, s.now().Add(-trendWindow), trendPoints)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}

	return readings, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
