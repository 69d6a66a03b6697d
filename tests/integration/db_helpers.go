package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nbenslimane/assurid/internal/database"
	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/repositories"
	"github.com/nbenslimane/assurid/pkg/auth"
)

// TestDB manages the PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("assurid"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbWrapper := &database.DB{
		Pool: pool,
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         dbWrapper,
	}, nil
}

// runMigrations executes all goose migrations against the container
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a stdlib DB connection, use the pgx adapter
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"security_events",
		"registration_requests",
		"registration_challenges",
		"blocked_ips",
		"security_settings",
		"role_assignments",
		"accounts",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.AccountRepository,
	*repositories.SecuritySettingsRepository,
	*repositories.RegistrationRepository,
	*repositories.SecurityEventRepository,
	*repositories.BlockedIPRepository,
) {
	return repositories.NewAccountRepository(db),
		repositories.NewSecuritySettingsRepository(db),
		repositories.NewRegistrationRepository(db),
		repositories.NewSecurityEventRepository(db),
		repositories.NewBlockedIPRepository(db)
}

// SeedAccount inserts a test account with its role assignments and a
// blank security settings row, bypassing the repository under test.
func SeedAccount(ctx context.Context, pool *pgxpool.Pool, email, password string, roles ...string) (*models.Account, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, name, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, 'Test Account', NOW(), NOW())
		RETURNING id, email, password_hash, name, created_at, updated_at
	`

	var account models.Account
	err = pool.QueryRow(ctx, query, email, hashedPassword).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Name,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	for _, role := range roles {
		if _, err := pool.Exec(ctx,
			`INSERT INTO role_assignments (account_id, role, granted_at) VALUES ($1, $2, NOW())`,
			account.ID, role,
		); err != nil {
			return nil, fmt.Errorf("failed to assign role %s: %w", role, err)
		}
	}
	account.Roles = roles

	if _, err := pool.Exec(ctx,
		`INSERT INTO security_settings (account_id, mfa_status, password_changed_at, updated_at) VALUES ($1, $2, NOW(), NOW())`,
		account.ID, models.MFADisabled,
	); err != nil {
		return nil, fmt.Errorf("failed to insert security settings: %w", err)
	}

	return &account, nil
}

// sha256Hash computes the SHA256 hash of the input string
func sha256Hash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// SeedRegistrationChallenge installs a verified-ownership challenge for the
// email and returns the plaintext code.
func SeedRegistrationChallenge(ctx context.Context, pool *pgxpool.Pool, email, requestType string, expiresAt time.Time) (string, error) {
	code := "483921"

	query := `
		INSERT INTO registration_challenges (email, first_name, last_name, request_type, code_hash, expires_at, attempts, created_at)
		VALUES ($1, 'Amine', 'Trabelsi', $2, $3, $4, 0, NOW())
		ON CONFLICT (email) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = 0
	`

	if _, err := pool.Exec(ctx, query, email, requestType, sha256Hash(code), expiresAt); err != nil {
		return "", fmt.Errorf("failed to insert registration challenge: %w", err)
	}

	return code, nil
}

// SeedRegistrationRequest files a pending registration request for the email.
func SeedRegistrationRequest(ctx context.Context, pool *pgxpool.Pool, email, requestType string) (string, error) {
	query := `
		INSERT INTO registration_requests (id, email, first_name, last_name, request_type, insurance_number, status, created_at)
		VALUES (gen_random_uuid(), $1, 'Amine', 'Trabelsi', $2, 'ASN-2201-5544', 'pending', NOW())
		RETURNING id
	`

	var id string
	if err := pool.QueryRow(ctx, query, email, requestType).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to insert registration request: %w", err)
	}

	return id, nil
}
