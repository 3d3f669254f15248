package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/google/uuid"
)

type OTPRepository struct {
	db *database.DB
}

func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

const otpColumns = `id, account_id, code, purpose, expires_at, used, used_at, created_at`

func scanOTPRow(scanner rowScanner) (*models.OTPCode, error) {
	var otp models.OTPCode
	err := scanner.Scan(
		&otp.ID, &otp.AccountID, &otp.Code, &otp.Purpose,
		&otp.ExpiresAt, &otp.Used, &otp.UsedAt, &otp.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &otp, nil
}

// CreateIfNoneActive inserts otp unless the account already holds an unused,
// unexpired code. The account row is locked first so concurrent requests for
// the same account serialize; the loser gets ErrTooManyRequests.
func (r *OTPRepository) CreateIfNoneActive(ctx context.Context, otp *models.OTPCode) error {
	if otp.ID == "" {
		otp.ID = uuid.New().String()
	}

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		ctx, cancel := r.db.WithTimeout(ctx)
		defer cancel()

		conn := r.db.Conn(ctx)

		var locked string
		err := conn.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, otp.AccountID).Scan(&locked)
		if err != nil {
			return database.MapPostgresError(err)
		}

		query := `
			INSERT INTO otp_codes (id, account_id, code, purpose, expires_at, used, created_at)
			SELECT $1, $2, $3, $4, $5, FALSE, $6
			WHERE NOT EXISTS (
				SELECT 1 FROM otp_codes
				WHERE account_id = $2 AND used = FALSE AND expires_at >= $6
			)
		`
		result, err := conn.Exec(ctx, query, otp.ID, otp.AccountID, otp.Code, otp.Purpose, otp.ExpiresAt, otp.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to store otp: %w", database.MapPostgresError(err))
		}
		if result.RowsAffected() == 0 {
			return models.ErrTooManyRequests
		}
		return nil
	})
}

// FindUnusedForUpdate returns the newest unused code matching account, purpose
// and value, locking the row for the surrounding transaction. Expired rows are
// returned too so the caller can tell an expired code from a wrong one.
func (r *OTPRepository) FindUnusedForUpdate(ctx context.Context, accountID, purpose, code string) (*models.OTPCode, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + otpColumns + `
		FROM otp_codes
		WHERE account_id = $1 AND purpose = $2 AND code = $3 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	return scanOTPRow(r.db.Conn(ctx).QueryRow(ctx, query, accountID, purpose, code))
}

// MarkUsed consumes the code. ErrNotFound means another caller consumed it first.
func (r *OTPRepository) MarkUsed(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE otp_codes SET used = TRUE, used_at = $2 WHERE id = $1 AND used = FALSE`, id, now)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *OTPRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM otp_codes WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

// DeleteStale removes unused codes that expired before now and used codes
// consumed before usedBefore (call periodically)
func (r *OTPRepository) DeleteStale(ctx context.Context, now, usedBefore time.Time) (int64, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		DELETE FROM otp_codes
		WHERE (used = FALSE AND expires_at < $1)
		   OR (used = TRUE AND used_at < $2)
	`
	result, err := r.db.Conn(ctx).Exec(ctx, query, now, usedBefore)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
