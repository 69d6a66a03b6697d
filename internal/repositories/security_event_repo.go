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

// SecurityEventRepository appends to and reads the audit trail. There is no
// update or delete: the table is append-only by contract.
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

func (r *SecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now()

	query := `
		INSERT INTO security_events (id, event_type, severity, account_id, ip_address, location, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.EventType, event.Severity, event.AccountID,
		event.IPAddress, event.Location, event.Detail, event.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// EventFilter narrows a listing. Zero values mean "no constraint".
type EventFilter struct {
	AccountID string
	EventType string
	Severity  string
	Since     *time.Time
}

func (r *SecurityEventRepository) List(ctx context.Context, filter EventFilter, limit, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, severity, account_id, ip_address, location, detail, created_at
		FROM security_events
		WHERE ($1 = '' OR account_id::text = $1)
		  AND ($2 = '' OR event_type = $2)
		  AND ($3 = '' OR severity = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		ORDER BY created_at DESC LIMIT $5 OFFSET $6
	`

	rows, err := r.pool.Query(ctx, query,
		filter.AccountID, filter.EventType, filter.Severity, filter.Since, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		var e models.SecurityEvent
		var ipAddress, location *string

		err := rows.Scan(
			&e.ID, &e.EventType, &e.Severity, &e.AccountID,
			&ipAddress, &location, &e.Detail, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}

		if ipAddress != nil {
			e.IPAddress = *ipAddress
		}
		if location != nil {
			e.Location = *location
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}
