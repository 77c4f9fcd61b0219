package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pressiotrack/internal/models"
)

type memoryUser struct {
	user         models.User
	passwordHash string
	reset        *models.PasswordReset
}

// MemoryStorage keeps everything in process memory. It backs local runs
// without a database and the service and handler tests.
type MemoryStorage struct {
	mu sync.RWMutex

	nextUserID    int64
	nextReadingID int64

	users     map[int64]*memoryUser
	baselines map[int64]models.Baseline
	readings  map[int64]models.Reading
	nonces    map[string]time.Time

	now func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:     make(map[int64]*memoryUser),
		baselines: make(map[int64]models.Baseline),
		readings:  make(map[int64]models.Reading),
		nonces:    make(map[string]time.Time),
		now:       time.Now,
	}
}

func copyUser(u models.User) models.User {
	if u.CaregiverID != nil {
		id := *u.CaregiverID
		u.CaregiverID = &id
	}
	return u
}

func (m *MemoryStorage) findByEmail(email string) *memoryUser {
	for _, u := range m.users {
		if strings.EqualFold(u.user.Email, email) {
			return u
		}
	}
	return nil
}

func (m *MemoryStorage) CreateUser(_ context.Context, user models.User, passwordHash string) (int64, error) {
	const op = "storage.CreateUser"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findByEmail(user.Email) != nil {
		return 0, fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}

	m.nextUserID++
	user.ID = m.nextUserID
	user.CaregiverID = nil
	user.CreatedAt = m.now().UTC()
	m.users[user.ID] = &memoryUser{user: user, passwordHash: passwordHash}

	return user.ID, nil
}

func (m *MemoryStorage) GetUserByID(_ context.Context, userID int64) (models.User, error) {
	const op = "storage.GetUserByID"

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return copyUser(u.user), nil
}

func (m *MemoryStorage) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	m.mu.RLock()
	defer m.mu.RUnlock()

	u := m.findByEmail(email)
	if u == nil {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return copyUser(u.user), nil
}

func (m *MemoryStorage) GetCredentialsByEmail(_ context.Context, email string) (models.Credentials, error) {
	const op = "storage.GetCredentialsByEmail"

	m.mu.RLock()
	defer m.mu.RUnlock()

	u := m.findByEmail(email)
	if u == nil {
		return models.Credentials{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return models.Credentials{UserID: u.user.ID, PasswordHash: u.passwordHash}, nil
}

func (m *MemoryStorage) UpdateUser(_ context.Context, user models.User) error {
	const op = "storage.UpdateUser"

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[user.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if other := m.findByEmail(user.Email); other != nil && other.user.ID != user.ID {
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}

	u.user.Name = user.Name
	u.user.Email = user.Email
	u.user.Phone = user.Phone
	u.user.Age = user.Age

	return nil
}

func (m *MemoryStorage) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	const op = "storage.UpdatePassword"

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	u.passwordHash = passwordHash
	u.reset = nil

	return nil
}

func (m *MemoryStorage) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, copyUser(u.user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return users, nil
}

func (m *MemoryStorage) AssignRole(_ context.Context, userID int64, role models.Role) error {
	const op = "storage.AssignRole"

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	u.user.Role = role
	if role != models.RoleCaregiver {
		for _, p := range m.users {
			if p.user.CaregiverID != nil && *p.user.CaregiverID == userID {
				p.user.CaregiverID = nil
			}
		}
	}

	return nil
}

func (m *MemoryStorage) SetPasswordReset(_ context.Context, reset models.PasswordReset) error {
	const op = "storage.SetPasswordReset"

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[reset.UserID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	u.reset = &reset

	return nil
}

func (m *MemoryStorage) GetPasswordReset(_ context.Context, userID int64) (models.PasswordReset, error) {
	const op = "storage.GetPasswordReset"

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok || u.reset == nil {
		return models.PasswordReset{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return *u.reset, nil
}

func (m *MemoryStorage) GetBaseline(_ context.Context, userID int64) (models.Baseline, error) {
	const op = "storage.GetBaseline"

	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.baselines[userID]
	if !ok {
		return models.Baseline{UserID: userID}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return b, nil
}

func (m *MemoryStorage) UpsertBaseline(_ context.Context, baseline models.Baseline) error {
	const op = "storage.UpsertBaseline"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[baseline.UserID]; !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	m.baselines[baseline.UserID] = baseline

	return nil
}

func (m *MemoryStorage) CreateReading(_ context.Context, reading models.Reading) (models.Reading, error) {
	const op = "storage.CreateReading"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[reading.UserID]; !ok {
		return models.Reading{}, fmt.Errorf("%s: user: %w", op, ErrNotFound)
	}

	m.nextReadingID++
	reading.ID = m.nextReadingID
	if reading.MeasuredAt.IsZero() {
		reading.MeasuredAt = m.now().UTC()
	}
	m.readings[reading.ID] = reading

	return reading, nil
}

func (m *MemoryStorage) GetReading(_ context.Context, userID, readingID int64) (models.Reading, error) {
	const op = "storage.GetReading"

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.readings[readingID]
	if !ok || r.UserID != userID {
		return models.Reading{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return r, nil
}

func (m *MemoryStorage) UpdateReading(_ context.Context, reading models.Reading) (models.Reading, error) {
	const op = "storage.UpdateReading"

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.readings[reading.ID]
	if !ok || current.UserID != reading.UserID {
		return models.Reading{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	current.Systolic = reading.Systolic
	current.Diastolic = reading.Diastolic
	current.Note = reading.Note
	current.Status = reading.Status
	m.readings[reading.ID] = current

	return current, nil
}

func (m *MemoryStorage) DeleteReading(_ context.Context, userID, readingID int64) error {
	const op = "storage.DeleteReading"

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.readings[readingID]
	if !ok || r.UserID != userID {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	delete(m.readings, readingID)

	return nil
}

func (m *MemoryStorage) ListReadings(_ context.Context, userID int64) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.readingsOf(userID, time.Time{}, 0), nil
}

func (m *MemoryStorage) ListReadingsSince(_ context.Context, userID int64, since time.Time, limit int) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.readingsOf(userID, since, limit), nil
}

// readingsOf returns newest first, matching the SQL ordering.
func (m *MemoryStorage) readingsOf(userID int64, since time.Time, limit int) []models.Reading {
	readings := []models.Reading{}
	for _, r := range m.readings {
		if r.UserID == userID && !r.MeasuredAt.Before(since) {
			readings = append(readings, r)
		}
	}

	sort.Slice(readings, func(i, j int) bool {
		if readings[i].MeasuredAt.Equal(readings[j].MeasuredAt) {
			return readings[i].ID > readings[j].ID
		}
		return readings[i].MeasuredAt.After(readings[j].MeasuredAt)
	})

	if limit > 0 && len(readings) > limit {
		readings = readings[:limit]
	}

	return readings
}

func (m *MemoryStorage) LinkCaregiver(_ context.Context, link Link) error {
	const op = "storage.LinkCaregiver"

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for nonce, expiresAt := range m.nonces {
		if expiresAt.Before(now) {
			delete(m.nonces, nonce)
		}
	}

	if _, used := m.nonces[link.Nonce]; used {
		return fmt.Errorf("%s: %w", op, ErrNonceUsed)
	}

	patient, ok := m.users[link.PatientID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	caregiver, ok := m.users[link.CaregiverID]
	if !ok || caregiver.user.Role != models.RoleCaregiver {
		return fmt.Errorf("%s: caregiver: %w", op, ErrNotFound)
	}
	if current := patient.user.CaregiverID; current != nil && *current != link.CaregiverID {
		return fmt.Errorf("%s: %w", op, ErrLinkTaken)
	}

	m.nonces[link.Nonce] = link.ExpiresAt
	id := link.CaregiverID
	patient.user.CaregiverID = &id

	return nil
}

func (m *MemoryStorage) UnlinkCaregiver(_ context.Context, patientID int64) error {
	const op = "storage.UnlinkCaregiver"

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[patientID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	u.user.CaregiverID = nil

	return nil
}

func (m *MemoryStorage) ListPatientsByCaregiver(_ context.Context, caregiverID int64) ([]models.PatientSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	patients := []models.PatientSummary{}
	for _, u := range m.users {
		if u.user.CaregiverID != nil && *u.user.CaregiverID == caregiverID {
			patients = append(patients, u.user.Summary())
		}
	}
	sort.Slice(patients, func(i, j int) bool { return patients[i].Name < patients[j].Name })

	return patients, nil
}

func (m *MemoryStorage) Ping(context.Context) error { return nil }

func (m *MemoryStorage) Close() {}
