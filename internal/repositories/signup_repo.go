package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maxmove/waitlist-api/internal/database"
	"github.com/maxmove/waitlist-api/internal/models"
)

const signupColumns = "id, email, referral_code, referral_count, source, utm_source, referred_by, notified_at, created_at"

type SignupRepository struct {
	pool *pgxpool.Pool
}

func NewSignupRepository(db *database.DB) *SignupRepository {
	return &SignupRepository{pool: db.Pool}
}

// rowScanner interface for scanning signup rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSignupRow handles nullable fields and populates a Signup model from a database row
func scanSignupRow(scanner rowScanner) (*models.Signup, error) {
	var signup models.Signup
	var utmSource, referredBy *string
	var notifiedAt *time.Time

	err := scanner.Scan(
		&signup.ID, &signup.Email, &signup.ReferralCode, &signup.ReferralCount,
		&signup.Source, &utmSource, &referredBy, &notifiedAt, &signup.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	signup.UTMSource = utmSource
	signup.ReferredBy = referredBy
	signup.NotifiedAt = notifiedAt

	return &signup, nil
}

// scanSignupRows iterates through rows and scans each into Signup models
func scanSignupRows(rows pgx.Rows) ([]*models.Signup, error) {
	defer rows.Close()

	signups := make([]*models.Signup, 0)

	for rows.Next() {
		signup, err := scanSignupRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signup: %w", err)
		}
		signups = append(signups, signup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return signups, nil
}

// GetByEmail looks up a signup case-insensitively.
func (r *SignupRepository) GetByEmail(ctx context.Context, email string) (*models.Signup, error) {
	query := fmt.Sprintf(`SELECT %s FROM waitlist_signups WHERE lower(email) = lower($1)`, signupColumns)

	return scanSignupRow(r.pool.QueryRow(ctx, query, email))
}

// GetByCode looks up the signup owning a referral code.
func (r *SignupRepository) GetByCode(ctx context.Context, code string) (*models.Signup, error) {
	query := fmt.Sprintf(`SELECT %s FROM waitlist_signups WHERE referral_code = $1`, signupColumns)

	return scanSignupRow(r.pool.QueryRow(ctx, query, code))
}

// Create inserts a new signup. The unique indexes on lower(email) and
// referral_code are the source of truth for deduplication; a concurrent
// insert of the same email surfaces as ErrDuplicateEmail regardless of any
// earlier existence check.
func (r *SignupRepository) Create(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
	signup.ID = uuid.New().String()
	signup.Email = strings.ToLower(strings.TrimSpace(signup.Email))
	signup.CreatedAt = time.Now()

	query := fmt.Sprintf(`
		INSERT INTO waitlist_signups (id, email, referral_code, referral_count, source, utm_source, referred_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s
	`, signupColumns)

	return scanSignupRow(r.pool.QueryRow(ctx, query,
		signup.ID, signup.Email, signup.ReferralCode, signup.ReferralCount,
		signup.Source, signup.UTMSource, signup.ReferredBy, signup.CreatedAt,
	))
}

// IncrementReferralCount bumps the referrer's counter in a single atomic
// UPDATE. Lost updates under concurrent referrals are impossible because
// the increment happens inside the database, not read-modify-write here.
func (r *SignupRepository) IncrementReferralCount(ctx context.Context, code string) error {
	query := `UPDATE waitlist_signups SET referral_count = referral_count + 1 WHERE referral_code = $1`

	result, err := r.pool.Exec(ctx, query, code)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Count returns the total number of waiting-list signups.
func (r *SignupRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM waitlist_signups`).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// ListUnnotified returns signups whose confirmation email has not been sent
// yet, oldest first, skipping very recent rows so the in-request dispatch
// gets a chance to complete before the redelivery sweep picks them up.
func (r *SignupRepository) ListUnnotified(ctx context.Context, gracePeriod time.Duration, limit int) ([]*models.Signup, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM waitlist_signups
		WHERE notified_at IS NULL AND created_at < $1
		ORDER BY created_at ASC LIMIT $2
	`, signupColumns)

	rows, err := r.pool.Query(ctx, query, time.Now().Add(-gracePeriod), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unnotified signups: %w", err)
	}

	return scanSignupRows(rows)
}

// MarkNotified records the time the confirmation email was dispatched.
func (r *SignupRepository) MarkNotified(ctx context.Context, id string) error {
	query := `UPDATE waitlist_signups SET notified_at = NOW() WHERE id = $1 AND notified_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
