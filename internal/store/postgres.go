// Package store implements durable campaign and delivery persistence on
// PostgreSQL. Outcome writes are upserts: retries and finalization may call
// them repeatedly for the same key without duplicating rows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ignite/mailblast/internal/domain"
)

// Postgres is the SQL-backed store.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// DB exposes the underlying handle for advisory locking.
func (s *Postgres) DB() *sql.DB { return s.db }

// Close closes the underlying handle.
func (s *Postgres) Close() error { return s.db.Close() }

// GetCampaign loads a campaign by ID. Returns domain.ErrNotFound when absent.
func (s *Postgres) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var (
		c        domain.Campaign
		replyTo  sql.NullString
		tplID    sql.NullString
		listID   sql.NullString
		varsJSON []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, subject, from_name, from_email, COALESCE(reply_to, ''),
		       COALESCE(body, ''), template_id, list_id,
		       COALESCE(variables, '{}'::jsonb), status, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Subject, &c.FromName, &c.FromEmail, &replyTo,
		&c.Body, &tplID, &listID, &varsJSON, &c.Status, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}

	c.ReplyTo = replyTo.String
	if tplID.Valid {
		c.TemplateID = &tplID.String
	}
	if listID.Valid {
		c.ListID = &listID.String
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &c.Variables); err != nil {
			return nil, fmt.Errorf("decode campaign variables: %w", err)
		}
	}
	return &c, nil
}

// GetTemplate loads a stored template by ID.
func (s *Postgres) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(engine, 'simple'), body, created_at, updated_at
		FROM templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Engine, &t.Body, &t.CreatedAt, &t.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return &t, nil
}

// ResolveRecipients expands a campaign's recipient specification into concrete
// entries. A campaign without a list reference is malformed.
func (s *Postgres) ResolveRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error) {
	if c.ListID == nil || *c.ListID == "" {
		return nil, fmt.Errorf("campaign %s has no recipient list", c.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(external_id, ''), address, COALESCE(display_name, '')
		FROM recipients
		WHERE list_id = $1 AND status = 'active'
		ORDER BY id
	`, *c.ListID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients for campaign %s: %w", c.ID, err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.ExternalID, &r.Address, &r.DisplayName); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PersistDeliveryOutcome upserts the durable per-recipient outcome. The
// (campaign_id, address) key makes repeat calls for the same recipient land
// on one row.
func (s *Postgres) PersistDeliveryOutcome(ctx context.Context, campaignID string, r domain.Recipient, status domain.DeliveryStatus, messageID, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_deliveries
			(campaign_id, address, external_id, status, message_id, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (campaign_id, address) DO UPDATE SET
			status = EXCLUDED.status,
			message_id = EXCLUDED.message_id,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
	`, campaignID, r.Address, r.ExternalID, status, messageID, lastError)

	if err != nil {
		return fmt.Errorf("persist delivery outcome: %w", err)
	}
	return nil
}

// PersistCampaignFinal records the campaign's final status and aggregate
// counters. Idempotent: re-running the same finalization is a no-op update.
func (s *Postgres) PersistCampaignFinal(ctx context.Context, campaignID string, status domain.CampaignStatus, totals domain.Totals) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET
			status = $2,
			total_recipients = $3,
			completed_count = $4,
			failed_count = $5,
			completed_at = COALESCE(completed_at, NOW()),
			updated_at = NOW()
		WHERE id = $1
	`, campaignID, status, totals.Total, totals.Completed, totals.Failed)

	if err != nil {
		return fmt.Errorf("persist campaign final: %w", err)
	}
	return nil
}
