package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nbenslimane/assurid/internal/database"
	"github.com/nbenslimane/assurid/internal/models"
)

// BlockedIPRepository manages the denylist consulted before credentials are
// ever examined.
type BlockedIPRepository struct {
	pool *pgxpool.Pool
}

func NewBlockedIPRepository(db *database.DB) *BlockedIPRepository {
	return &BlockedIPRepository{pool: db.Pool}
}

// IsBlocked reports whether the address has an active block: one with no
// expiry, or one whose expiry is still in the future.
func (r *BlockedIPRepository) IsBlocked(ctx context.Context, address string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blocked_ips
			WHERE address = $1 AND (expires_at IS NULL OR expires_at > $2)
		)
	`

	var blocked bool
	err := r.pool.QueryRow(ctx, query, address, time.Now()).Scan(&blocked)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return blocked, nil
}

// Block inserts or refreshes a block for the address.
func (r *BlockedIPRepository) Block(ctx context.Context, address, reason string, expiresAt *time.Time) (*models.BlockedIP, error) {
	block := &models.BlockedIP{
		ID:        uuid.New().String(),
		Address:   address,
		Reason:    reason,
		BlockedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	query := `
		INSERT INTO blocked_ips (id, address, reason, blocked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			reason = EXCLUDED.reason,
			blocked_at = EXCLUDED.blocked_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.pool.Exec(ctx, query,
		block.ID, block.Address, block.Reason, block.BlockedAt, block.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return block, nil
}

// Unblock removes a block regardless of its expiry.
func (r *BlockedIPRepository) Unblock(ctx context.Context, address string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM blocked_ips WHERE address = $1`, address)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *BlockedIPRepository) List(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error) {
	query := `
		SELECT id, address, reason, blocked_at, expires_at
		FROM blocked_ips ORDER BY blocked_at DESC LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked IPs: %w", err)
	}
	defer rows.Close()

	blocks := make([]*models.BlockedIP, 0)

	for rows.Next() {
		var b models.BlockedIP
		if err := rows.Scan(&b.ID, &b.Address, &b.Reason, &b.BlockedAt, &b.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocked IP: %w", err)
		}
		blocks = append(blocks, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return blocks, nil
}

// PurgeExpired removes blocks past their expiry. Permanent blocks
// (expires_at NULL) are never touched.
func (r *BlockedIPRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM blocked_ips WHERE expires_at IS NOT NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
