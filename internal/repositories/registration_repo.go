package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nbenslimane/assurid/internal/database"
	"github.com/nbenslimane/assurid/internal/models"
)

// RegistrationRepository stores email-ownership challenges and the requests
// that survive them. Review transitions are guarded in SQL so a request can
// never leave pending twice.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepository(db *database.DB) *RegistrationRepository {
	return &RegistrationRepository{pool: db.Pool}
}

// UpsertChallenge installs a challenge for the email, superseding any
// previous one. The attempt counter starts over with the new code.
func (r *RegistrationRepository) UpsertChallenge(ctx context.Context, c *models.RegistrationChallenge) error {
	query := `
		INSERT INTO registration_challenges (email, first_name, last_name, request_type, code_hash, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			request_type = EXCLUDED.request_type,
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = 0,
			created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(ctx, query,
		c.Email, c.FirstName, c.LastName, c.RequestType, c.CodeHash, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *RegistrationRepository) GetChallenge(ctx context.Context, email string) (*models.RegistrationChallenge, error) {
	query := `
		SELECT email, first_name, last_name, request_type, code_hash, expires_at, attempts, created_at
		FROM registration_challenges WHERE email = $1
	`

	var c models.RegistrationChallenge
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&c.Email, &c.FirstName, &c.LastName, &c.RequestType,
		&c.CodeHash, &c.ExpiresAt, &c.Attempts, &c.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &c, nil
}

// IncrementChallengeAttempts atomically bumps the counter and returns the
// new value, so the ceiling check sees every concurrent submission.
func (r *RegistrationRepository) IncrementChallengeAttempts(ctx context.Context, email string) (int, error) {
	query := `
		UPDATE registration_challenges
		SET attempts = attempts + 1
		WHERE email = $1
		RETURNING attempts
	`

	var attempts int
	err := r.pool.QueryRow(ctx, query, email).Scan(&attempts)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return attempts, nil
}

// DeleteChallenge consumes a challenge after successful verification.
func (r *RegistrationRepository) DeleteChallenge(ctx context.Context, email string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registration_challenges WHERE email = $1`, email)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// PurgeExpiredChallenges removes challenges past their lifetime.
func (r *RegistrationRepository) PurgeExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registration_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}

const registrationRequestColumns = `
	id, email, first_name, last_name, phone, request_type,
	insurance_number, organization_name, organization_type, license_number, document_ref,
	status, reviewed_by, reviewed_at, rejection_reason, created_at
`

func scanRegistrationRequestRow(scanner rowScanner) (*models.RegistrationRequest, error) {
	var req models.RegistrationRequest
	var phone, insuranceNumber, orgName, orgType, licenseNumber, documentRef, rejectionReason *string

	err := scanner.Scan(
		&req.ID, &req.Email, &req.FirstName, &req.LastName, &phone, &req.RequestType,
		&insuranceNumber, &orgName, &orgType, &licenseNumber, &documentRef,
		&req.Status, &req.ReviewedBy, &req.ReviewedAt, &rejectionReason, &req.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if phone != nil {
		req.Phone = *phone
	}
	if insuranceNumber != nil {
		req.InsuranceNumber = *insuranceNumber
	}
	if orgName != nil {
		req.OrganizationName = *orgName
	}
	if orgType != nil {
		req.OrganizationType = *orgType
	}
	if licenseNumber != nil {
		req.LicenseNumber = *licenseNumber
	}
	if documentRef != nil {
		req.DocumentRef = *documentRef
	}
	if rejectionReason != nil {
		req.RejectionReason = *rejectionReason
	}

	return &req, nil
}

func (r *RegistrationRepository) CreateRequest(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error) {
	req.ID = uuid.New().String()
	req.Status = models.RequestStatusPending
	req.CreatedAt = time.Now()

	query := `
		INSERT INTO registration_requests (` + registrationRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.Email, req.FirstName, req.LastName, req.Phone, req.RequestType,
		req.InsuranceNumber, req.OrganizationName, req.OrganizationType, req.LicenseNumber, req.DocumentRef,
		req.Status, req.ReviewedBy, req.ReviewedAt, req.RejectionReason, req.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return req, nil
}

func (r *RegistrationRepository) GetRequest(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	query := `SELECT ` + registrationRequestColumns + ` FROM registration_requests WHERE id = $1`

	return scanRegistrationRequestRow(r.pool.QueryRow(ctx, query, id))
}

// HasPendingRequest reports whether the email already has a request
// awaiting review.
func (r *RegistrationRepository) HasPendingRequest(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM registration_requests WHERE email = $1 AND status = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email, models.RequestStatusPending).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// HasApprovedRequest reports whether the email was already approved once.
func (r *RegistrationRepository) HasApprovedRequest(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM registration_requests WHERE email = $1 AND status = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email, models.RequestStatusApproved).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// ListRequests returns requests filtered by status ("" for all), newest first.
func (r *RegistrationRepository) ListRequests(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error) {
	query := `
		SELECT ` + registrationRequestColumns + `
		FROM registration_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration requests: %w", err)
	}

	return scanRegistrationRequestRows(rows)
}

func scanRegistrationRequestRows(rows pgx.Rows) ([]*models.RegistrationRequest, error) {
	defer rows.Close()

	requests := make([]*models.RegistrationRequest, 0)

	for rows.Next() {
		req, err := scanRegistrationRequestRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return requests, nil
}

// MarkReviewed moves a request from pending to a terminal state. The WHERE
// clause is the write-once guard: if another reviewer got there first the
// update touches zero rows and the caller gets ErrAlreadyApproved or
// ErrStateConflict depending on what the row now holds.
func (r *RegistrationRepository) MarkReviewed(ctx context.Context, id, status, reviewerID, rejectionReason string) (*models.RegistrationRequest, error) {
	query := `
		UPDATE registration_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5
		WHERE id = $1 AND status = $6
		RETURNING ` + registrationRequestColumns + `
	`

	req, err := scanRegistrationRequestRow(r.pool.QueryRow(ctx, query,
		id, status, reviewerID, time.Now(), rejectionReason, models.RequestStatusPending,
	))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	// Zero rows: either the request does not exist or it was already
	// reviewed. Distinguish so callers can report which.
	current, getErr := r.GetRequest(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == models.RequestStatusApproved {
		return nil, models.ErrAlreadyApproved
	}

	return nil, models.ErrStateConflict
}
