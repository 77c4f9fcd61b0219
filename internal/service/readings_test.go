package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressiotrack/internal/models"
)

func TestHighReadingSendsOneAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "p@example.com", models.RolePatient)

	reading, err := f.svc.CreateReading(ctx, user.ID, ReadingInput{Systolic: 150, Diastolic: 95, Note: "after lunch"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusHigh, reading.Status)

	stored, err := f.svc.GetReading(ctx, user.ID, reading.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusHigh, stored.Status)

	msgs := f.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, user.Email, msgs[0].To)
	assert.Contains(t, msgs[0].HTML, "150/95")
}

func TestNormalAndLowReadingsSendNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "p@example.com", models.RolePatient)

	normal, err := f.svc.CreateReading(ctx, user.ID, ReadingInput{Systolic: 120, Diastolic: 80})
	require.NoError(t, err)
	low, err := f.svc.CreateReading(ctx, user.ID, ReadingInput{Systolic: 100, Diastolic: 50})
	require.NoError(t, err)

	assert.Equal(t, models.StatusNormal, normal.Status)
	assert.Equal(t, models.StatusLow, low.Status)
	assert.Empty(t, f.sent())
}

func TestReadingValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "p@example.com", models.RolePatient)

	inputs := []ReadingInput{
		{Systolic: 0, Diastolic: 80},
		{Systolic: 120, Diastolic: -1},
		{Systolic: 400, Diastolic: 80},
		{Systolic: 120, Diastolic: 80, Note: string(make([]byte, 501))},
	}
	for _, in := range inputs {
		_, err := f.svc.CreateReading(ctx, user.ID, in)
		assert.ErrorIs(t, err, ErrValidation)
	}

	readings, err := f.svc.ListReadings(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestBaselineChangeKeepsStoredStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "p@example.com", models.RolePatient)

	before, err := f.svc.CreateReading(ctx, user.ID, ReadingInput{Systolic: 130, Diastolic: 85})
	require.NoError(t, err)
	require.Equal(t, models.StatusNormal, before.Status)

	sys, dia := 110, 70
	_, err = f.svc.UpdateProfile(ctx, user.ID, ProfileInput{
		Name: user.Name, Email: user.Email, Phone: user.Phone, Age: user.Age,
		Systolic: &sys, Diastolic: &dia,
	})
	require.NoError(t, err)

	after, err := f.svc.CreateReading(ctx, user.ID, ReadingInput{Systolic: 130, Diastolic: 85})
	require.NoError(t, err)
	assert.Equal(t, models.StatusHigh, after.Status)

	stored, err := f.svc.GetReading(ctx, user.ID, before.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNormal, stored.Status)
}

func TestUpdateReadingReclassifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "p@example.com", models.RolePatient)

	reading, err := f.svc.CreateReading(ctx, user.ID, ReadingInput{Systolic: 120, Diastolic: 80})
	require.NoError(t, err)

	updated, err := f.svc.UpdateReading(ctx, user.ID, reading.ID, ReadingInput{Systolic: 160, Diastolic: 80, Note: "typo fixed"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusHigh, updated.Status)
	assert.Equal(t, "typo fixed", updated.Note)
	assert.Len(t, f.sent(), 1)
}

func TestReadingsAreOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.register(t, "owner@example.com", models.RolePatient)
	other := f.register(t, "other@example.com", models.RolePatient)

	reading, err := f.svc.CreateReading(ctx, owner.ID, ReadingInput{Systolic: 120, Diastolic: 80})
	require.NoError(t, err)

	_, err = f.svc.GetReading(ctx, other.ID, reading.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.UpdateReading(ctx, other.ID, reading.ID, ReadingInput{Systolic: 120, Diastolic: 80})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteReading(ctx, other.ID, reading.ID), ErrNotFound)
	require.NoError(t, f.svc.DeleteReading(ctx, owner.ID, reading.ID))

	readings, err := f.svc.ListReadings(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestTrendWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.register(t, "p@example.com", models.RolePatient)

	now := time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC)

	// Two readings outside the 30 day window, then ten inside it.
	days := []int{45, 31, 20, 18, 16, 14, 12, 10, 8, 6, 4, 2}
	for i, ago := range days {
		f.svc.now = func() time.Time { return now.AddDate(0, 0, -ago) }
		_, err := f.svc.CreateReading(ctx, user.ID, ReadingInput{Systolic: 100 + i, Diastolic: 70})
		require.NoError(t, err)
	}
	f.svc.now = func() time.Time { return now }

	trend, err := f.svc.Trend(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, trend, trendPoints)

	for i := 1; i < len(trend); i++ {
		assert.True(t, trend[i-1].MeasuredAt.Before(trend[i].MeasuredAt), "trend is oldest first")
	}
	assert.Equal(t, 105, trend[0].Systolic)
	assert.Equal(t, 111, trend[len(trend)-1].Systolic)

	all, err := f.svc.ListReadings(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, all, len(days))
	assert.Equal(t, 111, all[0].Systolic, "list is newest first")
}
