package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/google/uuid"
)

type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, username, email, phone, full_name, date_of_birth, address, gender,
	password_hash, failed_attempts, status, locked_at, password_changed_at, created_at, updated_at`

// scanAccountRow handles nullable fields and populates an Account from a row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account

	err := scanner.Scan(
		&account.ID, &account.Username, &account.Email, &account.Phone,
		&account.FullName, &account.DateOfBirth, &account.Address, &account.Gender,
		&account.PasswordHash, &account.FailedAttempts, &account.Status,
		&account.LockedAt, &account.PasswordChangedAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Status == "" {
		account.Status = models.AccountStatusActive
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.db.Conn(ctx).QueryRow(ctx, query,
		account.ID, account.Username, account.Email, account.Phone,
		account.FullName, account.DateOfBirth, account.Address, account.Gender,
		account.PasswordHash, account.FailedAttempts, account.Status,
		account.LockedAt, account.PasswordChangedAt,
		account.CreatedAt, account.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return created, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.Conn(ctx).QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccountRow(r.db.Conn(ctx).QueryRow(ctx, query, email))
}

// GetByIdentifier finds an account by username, email or phone. A username
// match wins over an email match, which wins over a phone match.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE lower(username) = lower($1) OR lower(email) = lower($1) OR phone = $1
		ORDER BY CASE
			WHEN lower(username) = lower($1) THEN 0
			WHEN lower(email) = lower($1) THEN 1
			ELSE 2
		END, created_at
		LIMIT 1
	`
	return scanAccountRow(r.db.Conn(ctx).QueryRow(ctx, query, identifier))
}

// FindConflict returns the name of the first identity field already taken by
// an account other than excludeID, or "" when username, email and phone are
// all free. Usernames and phones share one login namespace, so a username
// equal to another account's phone is a conflict and vice versa.
func (r *AccountRepository) FindConflict(ctx context.Context, excludeID, username, email string, phone *string) (string, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		SELECT CASE
			WHEN lower(username) = lower($1) OR phone = $1 THEN 'username'
			WHEN lower(email) = lower($2) THEN 'email'
			ELSE 'phone'
		END
		FROM accounts
		WHERE id::text <> $4
			AND (lower(username) = lower($1) OR phone = $1 OR lower(email) = lower($2)
				OR ($3::text IS NOT NULL AND (phone = $3 OR lower(username) = lower($3))))
		ORDER BY CASE
			WHEN lower(username) = lower($1) OR phone = $1 THEN 0
			WHEN lower(email) = lower($2) THEN 1
			ELSE 2
		END
		LIMIT 1
	`

	var field string
	err := r.db.Conn(ctx).QueryRow(ctx, query, username, email, phone, excludeID).Scan(&field)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return "", nil
		}
		return "", mapped
	}
	return field, nil
}

// UpdateProfile replaces the editable profile fields of account.ID
func (r *AccountRepository) UpdateProfile(ctx context.Context, account *models.Account, now time.Time) (*models.Account, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE accounts
		SET email = $2, phone = $3, full_name = $4, date_of_birth = $5, address = $6, gender = $7, updated_at = $8
		WHERE id = $1
		RETURNING ` + accountColumns

	updated, err := scanAccountRow(r.db.Conn(ctx).QueryRow(ctx, query,
		account.ID, account.Email, account.Phone, account.FullName,
		account.DateOfBirth, account.Address, account.Gender, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return updated, nil
}

// IncrementFailedAttempts atomically adds one failed attempt unless the
// account already holds maxFailed. Reaching maxFailed locks the account in the
// same statement. It returns the counter after the call and whether it moved.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string, maxFailed int, now time.Time) (int, bool, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		WITH incremented AS (
			UPDATE accounts
			SET failed_attempts = failed_attempts + 1,
				status = CASE WHEN failed_attempts + 1 >= $2 THEN 'locked' ELSE status END,
				locked_at = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_at END,
				updated_at = $3
			WHERE id = $1 AND failed_attempts < $2
			RETURNING failed_attempts
		)
		SELECT failed_attempts, TRUE FROM incremented
		UNION ALL
		SELECT failed_attempts, FALSE FROM accounts
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM incremented)
	`

	var attempts int
	var incremented bool
	err := r.db.Conn(ctx).QueryRow(ctx, query, id, maxFailed, now).Scan(&attempts, &incremented)
	if err != nil {
		return 0, false, database.MapPostgresError(err)
	}
	return attempts, incremented, nil
}

// ResetFailedAttempts clears the failed-attempt counter after a correct
// password. It matches only an active account below maxFailed, so zero rows
// means the account was locked (or removed) after it was read.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id string, maxFailed int, now time.Time) (int64, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE accounts
		SET failed_attempts = 0,
			updated_at = CASE WHEN failed_attempts > 0 THEN $3 ELSE updated_at END
		WHERE id = $1 AND status = 'active' AND failed_attempts < $2
	`
	result, err := r.db.Conn(ctx).Exec(ctx, query, id, maxFailed, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// UpdatePassword replaces the password hash and unlocks the account
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE accounts
		SET password_hash = $2,
			password_changed_at = $3,
			failed_attempts = 0,
			status = 'active',
			locked_at = NULL,
			updated_at = $3
		WHERE id = $1
	`
	result, err := r.db.Conn(ctx).Exec(ctx, query, id, passwordHash, now)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes the account; refresh tokens and codes cascade
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
