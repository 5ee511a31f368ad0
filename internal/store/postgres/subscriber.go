package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidehook/tidehook/internal/webhook"
)

// SubscriberStore is the Postgres-backed subscriber catalog boundary.
type SubscriberStore struct {
	pool *pgxpool.Pool
}

func NewSubscriberStore(pool *pgxpool.Pool) *SubscriberStore {
	return &SubscriberStore{pool: pool}
}

func (s *SubscriberStore) Get(ctx context.Context, subscriberID, tenantID string) (*webhook.Subscriber, error) {
	var (
		sub            webhook.Subscriber
		timeoutSeconds int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, url, secret,
		       COALESCE(event_types, '{}'), COALESCE(headers, '{}'::jsonb),
		       is_active, retry_enabled, max_retries, timeout_seconds
		FROM tidehook.subscribers
		WHERE id = $1 AND tenant_id = $2`,
		subscriberID, tenantID,
	).Scan(&sub.ID, &sub.TenantID, &sub.URL, &sub.Secret,
		&sub.EventTypes, &sub.Headers,
		&sub.IsActive, &sub.RetryEnabled, &sub.MaxRetries, &timeoutSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, webhook.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.Timeout = time.Duration(timeoutSeconds) * time.Second
	return &sub, nil
}

func (s *SubscriberStore) Deactivate(ctx context.Context, subscriberID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tidehook.subscribers
		SET is_active = false, updated_at = now()
		WHERE id = $1`,
		subscriberID,
	)
	return err
}

// RecordAttemptOutcome bumps the subscriber's per-attempt counters. Success
// resets the consecutive-failure streak; the increments are atomic at the row
// level so concurrent deliveries need no extra locking here.
func (s *SubscriberStore) RecordAttemptOutcome(ctx context.Context, subscriberID string, success bool) error {
	if success {
		_, err := s.pool.Exec(ctx, `
			UPDATE tidehook.subscribers
			SET success_count = success_count + 1,
			    consecutive_failures = 0,
			    updated_at = now()
			WHERE id = $1`,
			subscriberID,
		)
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE tidehook.subscribers
		SET failure_count = failure_count + 1,
		    consecutive_failures = consecutive_failures + 1,
		    updated_at = now()
		WHERE id = $1`,
		subscriberID,
	)
	return err
}
