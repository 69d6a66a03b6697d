package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nbenslimane/assurid/internal/database"
	"github.com/nbenslimane/assurid/internal/models"
)

type AccountRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `
	a.id, a.email, a.password_hash, a.name,
	COALESCE(array_agg(ra.role) FILTER (WHERE ra.role IS NOT NULL), '{}'),
	a.created_at, a.updated_at
`

// scanAccountRow populates an Account from an aggregated row. Roles come
// back as a text[] from array_agg over role_assignments.
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.Email, &passwordHash, &account.Name,
		&account.Roles,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}

	return &account, nil
}

func scanAccountRows(rows pgx.Rows) ([]*models.Account, error) {
	defer rows.Close()

	accounts := make([]*models.Account, 0)

	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		LEFT JOIN role_assignments ra ON ra.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.id
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		LEFT JOIN role_assignments ra ON ra.account_id = a.id
		WHERE a.email = $1
		GROUP BY a.id
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		LEFT JOIN role_assignments ra ON ra.account_id = a.id
		GROUP BY a.id
		ORDER BY a.created_at DESC LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	return scanAccountRows(rows)
}

// Create inserts the account, its role assignments and a blank security
// settings row in one transaction. Provisioned accounts start with
// password_must_change set so the first login forces a rotation.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account, mustChangePassword bool) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO accounts (id, email, password_hash, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := tx.Exec(ctx, query,
			account.ID, account.Email, account.PasswordHash, account.Name,
			account.CreatedAt, account.UpdatedAt,
		); err != nil {
			return database.MapPostgresError(err)
		}

		for _, role := range account.Roles {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_assignments (account_id, role, granted_at) VALUES ($1, $2, $3)`,
				account.ID, role, now,
			); err != nil {
				return database.MapPostgresError(err)
			}
		}

		settingsQuery := `
			INSERT INTO security_settings (account_id, mfa_status, password_must_change, password_changed_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		var changedAt *time.Time
		if !mustChangePassword {
			changedAt = &now
		}
		if _, err := tx.Exec(ctx, settingsQuery,
			account.ID, models.MFADisabled, mustChangePassword, changedAt, now,
		); err != nil {
			return database.MapPostgresError(err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

func (r *AccountRepository) UpdateName(ctx context.Context, id, name string) error {
	query := `UPDATE accounts SET name = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, name, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) AddRole(ctx context.Context, id, role string) error {
	query := `
		INSERT INTO role_assignments (account_id, role, granted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, role) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, id, role, time.Now()); err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *AccountRepository) RemoveRole(ctx context.Context, id, role string) error {
	query := `DELETE FROM role_assignments WHERE account_id = $1 AND role = $2`

	tag, err := r.pool.Exec(ctx, query, id, role)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
