package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pressiotrack/internal/models"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const userColumns = "id, name, email, phone, age, user_role, caregiver_id, created_at"

const readingColumns = "id, user_id, systolic, diastolic, note, status, measured_at"

// pool is the part of *pgxpool.Pool the storage uses.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type PostgresStorage struct {
	db pool
}

func NewPostgresStorage(ctx context.Context, DbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(ctx, DbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db: conn,
	}, nil
}

// Migrate creates missing tables. It is safe to run on every start.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	const op = "storage.Migrate"

	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.Age,
		&user.Role,
		&user.CaregiverID,
		&user.CreatedAt,
	)
	return user, err
}

func scanReading(row rowScanner) (models.Reading, error) {
	var reading models.Reading
	err := row.Scan(
		&reading.ID,
		&reading.UserID,
		&reading.Systolic,
		&reading.Diastolic,
		&reading.Note,
		&reading.Status,
		&reading.MeasuredAt,
	)
	return reading, err
}

// wrapErr maps driver errors onto the package sentinels.
func wrapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func (p *PostgresStorage) CreateUser(ctx context.Context, user models.User, passwordHash string) (int64, error) {
	const op = "storage.CreateUser"

	var userID int64
	query := fmt.Sprintf(`INSERT INTO %s(name, email, phone, age, user_role, password_hash)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id;`, usersTable)

	err := p.db.QueryRow(ctx, query, user.Name, user.Email, user.Phone, user.Age, user.Role, passwordHash).Scan(&userID)
	if err != nil {
		return 0, wrapErr(op, err)
	}

	return userID, nil
}

func (p *PostgresStorage) GetUserByID(ctx context.Context, userID int64) (models.User, error) {
	const op = "storage.GetUserByID"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id=$1;", userColumns, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, userID))
	if err != nil {
		return user, wrapErr(op, err)
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE email=$1;", userColumns, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, email))
	if err != nil {
		return user, wrapErr(op, err)
	}

	return user, nil
}

func (p *PostgresStorage) GetCredentialsByEmail(ctx context.Context, email string) (models.Credentials, error) {
	const op = "storage.GetCredentialsByEmail"

	var cred models.Credentials
	query := fmt.Sprintf("SELECT id, password_hash FROM %s WHERE email=$1", usersTable)

	err := p.db.QueryRow(ctx, query, email).Scan(&cred.UserID, &cred.PasswordHash)
	if err != nil {
		return cred, wrapErr(op, err)
	}

	return cred, nil
}

func (p *PostgresStorage) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.UpdateUser"

	query := fmt.Sprintf("UPDATE %s SET name=$1, email=$2, phone=$3, age=$4 WHERE id=$5", usersTable)

	tag, err := p.db.Exec(ctx, query, user.Name, user.Email, user.Phone, user.Age, user.ID)
	if err != nil {
		return wrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	const op = "storage.UpdatePassword"

	query := fmt.Sprintf(`UPDATE %s
	SET password_hash=$1, reset_token_hash=NULL, reset_token_expiry=NULL
	WHERE id=$2`, usersTable)

	tag, err := p.db.Exec(ctx, query, passwordHash, userID)
	if err != nil {
		return wrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "storage.ListUsers"

	users := []models.User{}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id;", userColumns, usersTable)

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return users, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return users, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}

	return users, nil
}

// AssignRole changes a user's role. A user leaving the CAREGIVER role loses
// every patient linked to them in the same transaction.
func (p *PostgresStorage) AssignRole(ctx context.Context, userID int64, role models.Role) error {
	const op = "storage.AssignRole"

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := fmt.Sprintf("UPDATE %s SET user_role=$1 WHERE id=$2", usersTable)
	tag, err := tx.Exec(ctx, query, role, userID)
	if err != nil {
		return wrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	if role != models.RoleCaregiver {
		query = fmt.Sprintf("UPDATE %s SET caregiver_id=NULL WHERE caregiver_id=$1", usersTable)
		if _, err := tx.Exec(ctx, query, userID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) SetPasswordReset(ctx context.Context, reset models.PasswordReset) error {
	const op = "storage.SetPasswordReset"

	query := fmt.Sprintf("UPDATE %s SET reset_token_hash=$1, reset_token_expiry=$2 WHERE id=$3", usersTable)

	tag, err := p.db.Exec(ctx, query, reset.TokenHash, reset.ExpiresAt, reset.UserID)
	if err != nil {
		return wrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) GetPasswordReset(ctx context.Context, userID int64) (models.PasswordReset, error) {
	const op = "storage.GetPasswordReset"

	reset := models.PasswordReset{UserID: userID}
	query := fmt.Sprintf(`SELECT reset_token_hash, reset_token_expiry FROM %s
	WHERE id=$1 AND reset_token_hash IS NOT NULL`, usersTable)

	err := p.db.QueryRow(ctx, query, userID).Scan(&reset.TokenHash, &reset.ExpiresAt)
	if err != nil {
		return reset, wrapErr(op, err)
	}

	return reset, nil
}

func (p *PostgresStorage) GetBaseline(ctx context.Context, userID int64) (models.Baseline, error) {
	const op = "storage.GetBaseline"

	baseline := models.Baseline{UserID: userID}
	query := fmt.Sprintf("SELECT normal_systolic, normal_diastolic, defined_at FROM %s WHERE user_id=$1", baselinesTable)

	err := p.db.QueryRow(ctx, query, userID).Scan(&baseline.Systolic, &baseline.Diastolic, &baseline.DefinedAt)
	if err != nil {
		return baseline, wrapErr(op, err)
	}

	return baseline, nil
}

func (p *PostgresStorage) UpsertBaseline(ctx context.Context, baseline models.Baseline) error {
	const op = "storage.UpsertBaseline"

	query := fmt.Sprintf(`INSERT INTO %s(user_id, normal_systolic, normal_diastolic, defined_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id) DO UPDATE
	SET normal_systolic = EXCLUDED.normal_systolic,
	    normal_diastolic = EXCLUDED.normal_diastolic,
	    defined_at = EXCLUDED.defined_at`, baselinesTable)

	_, err := p.db.Exec(ctx, query, baseline.UserID, baseline.Systolic, baseline.Diastolic, baseline.DefinedAt)
	if err != nil {
		return wrapErr(op, err)
	}

	return nil
}

func (p *PostgresStorage) CreateReading(ctx context.Context, reading models.Reading) (models.Reading, error) {
	const op = "storage.CreateReading"

	query := fmt.Sprintf(`INSERT INTO %s(user_id, systolic, diastolic, note, status, measured_at)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING %s`, readingsTable, readingColumns)

	created, err := scanReading(p.db.QueryRow(ctx, query,
		reading.UserID, reading.Systolic, reading.Diastolic, reading.Note, reading.Status, reading.MeasuredAt))
	if err != nil {
		return models.Reading{}, wrapErr(op, err)
	}

	return created, nil
}

func (p *PostgresStorage) GetReading(ctx context.Context, userID, readingID int64) (models.Reading, error) {
	const op = "storage.GetReading"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id=$1 AND user_id=$2", readingColumns, readingsTable)

	reading, err := scanReading(p.db.QueryRow(ctx, query, readingID, userID))
	if err != nil {
		return reading, wrapErr(op, err)
	}

	return reading, nil
}

func (p *PostgresStorage) UpdateReading(ctx context.Context, reading models.Reading) (models.Reading, error) {
	const op = "storage.UpdateReading"

	query := fmt.Sprintf(`UPDATE %s SET systolic=$1, diastolic=$2, note=$3, status=$4
	WHERE id=$5 AND user_id=$6 RETURNING %s`, readingsTable, readingColumns)

	updated, err := scanReading(p.db.QueryRow(ctx, query,
		reading.Systolic, reading.Diastolic, reading.Note, reading.Status, reading.ID, reading.UserID))
	if err != nil {
		return models.Reading{}, wrapErr(op, err)
	}

	return updated, nil
}

func (p *PostgresStorage) DeleteReading(ctx context.Context, userID, readingID int64) error {
	const op = "storage.DeleteReading"

	query := fmt.Sprintf("DELETE FROM %s WHERE id=$1 AND user_id=$2", readingsTable)

	tag, err := p.db.Exec(ctx, query, readingID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) ListReadings(ctx context.Context, userID int64) ([]models.Reading, error) {
	const op = "storage.ListReadings"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id=$1 ORDER BY measured_at DESC, id DESC", readingColumns, readingsTable)

	return p.queryReadings(ctx, op, query, userID)
}

func (p *PostgresStorage) ListReadingsSince(ctx context.Context, userID int64, since time.Time, limit int) ([]models.Reading, error) {
	const op = "storage.ListReadingsSince"

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id=$1 AND measured_at >= $2
	ORDER BY measured_at DESC, id DESC LIMIT $3`, readingColumns, readingsTable)

	return p.queryReadings(ctx, op, query, userID, since, limit)
}

func (p *PostgresStorage) queryReadings(ctx context.Context, op, query string, args ...interface{}) ([]models.Reading, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}

	return readings, nil
}

// LinkCaregiver consumes the token nonce and sets the link in one
// transaction. The update only succeeds when the patient is unlinked or
// already linked to the same caregiver, and the caregiver still holds the
// CAREGIVER role.
func (p *PostgresStorage) LinkCaregiver(ctx context.Context, link Link) error {
	const op = "storage.LinkCaregiver"

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	purge := fmt.Sprintf("DELETE FROM %s WHERE expires_at < now()", consumedNoncesTable)
	if _, err := tx.Exec(ctx, purge); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	consume := fmt.Sprintf(`INSERT INTO %s(nonce, patient_id, expires_at) VALUES ($1, $2, $3)
	ON CONFLICT (nonce) DO NOTHING`, consumedNoncesTable)
	tag, err := tx.Exec(ctx, consume, link.Nonce, link.PatientID, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNonceUsed)
	}

	update := fmt.Sprintf(`UPDATE %[1]s SET caregiver_id=$1
	WHERE id=$2
	  AND (caregiver_id IS NULL OR caregiver_id=$1)
	  AND EXISTS (SELECT 1 FROM %[1]s c WHERE c.id=$1 AND c.user_role=$3)`, usersTable)
	tag, err = tx.Exec(ctx, update, link.CaregiverID, link.PatientID, models.RoleCaregiver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		var current *int64
		query := fmt.Sprintf("SELECT caregiver_id FROM %s WHERE id=$1", usersTable)
		if err := tx.QueryRow(ctx, query, link.PatientID).Scan(&current); err != nil {
			return wrapErr(op, err)
		}
		if current != nil && *current != link.CaregiverID {
			return fmt.Errorf("%s: %w", op, ErrLinkTaken)
		}
		// caregiver vanished or changed role since the invitation
		return fmt.Errorf("%s: caregiver: %w", op, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) UnlinkCaregiver(ctx context.Context, patientID int64) error {
	const op = "storage.UnlinkCaregiver"

	query := fmt.Sprintf("UPDATE %s SET caregiver_id=NULL WHERE id=$1", usersTable)

	tag, err := p.db.Exec(ctx, query, patientID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) ListPatientsByCaregiver(ctx context.Context, caregiverID int64) ([]models.PatientSummary, error) {
	const op = "storage.ListPatientsByCaregiver"

	query := fmt.Sprintf("SELECT id, name, email, phone, age FROM %s WHERE caregiver_id=$1 ORDER BY name", usersTable)

	rows, err := p.db.Query(ctx, query, caregiverID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	patients := []models.PatientSummary{}
	for rows.Next() {
		var patient models.PatientSummary
		if err := rows.Scan(&patient.ID, &patient.Name, &patient.Email, &patient.Phone, &patient.Age); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		patients = append(patients, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}

	return patients, nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}
