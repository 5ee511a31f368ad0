package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidehook/tidehook/internal/webhook"
)

// DeliveryStore persists delivery records in Postgres. The event payload is
// snapshotted alongside the record so the sweep can rebuild and re-sign the
// request without a separate event lookup.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

func (s *DeliveryStore) Create(ctx context.Context, d *webhook.Delivery) error {
	payload, err := json.Marshal(d.Event.Data)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tidehook.deliveries(
			id, subscriber_id, event_id, tenant_id, event_type, payload,
			status, attempt_number, response_code, error_message, next_retry_at,
			created_at, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.SubscriberID, d.EventID, d.TenantID, d.Event.EventType, string(payload),
		string(d.Status), d.AttemptNumber, d.ResponseCode, nullIfEmpty(d.ErrorMessage), d.NextRetryAt,
		d.CreatedAt, d.LastAttemptAt,
	)
	return err
}

func (s *DeliveryStore) Update(ctx context.Context, d *webhook.Delivery) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tidehook.deliveries
		SET status = $2, attempt_number = $3, response_code = $4,
		    error_message = $5, next_retry_at = $6, last_attempt_at = $7,
		    updated_at = now()
		WHERE id = $1`,
		d.ID, string(d.Status), d.AttemptNumber, d.ResponseCode,
		nullIfEmpty(d.ErrorMessage), d.NextRetryAt, d.LastAttemptAt,
	)
	return err
}

func (s *DeliveryStore) Get(ctx context.Context, deliveryID, tenantID string) (*webhook.Delivery, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, subscriber_id, event_id, tenant_id, event_type, payload::text,
		       status, attempt_number, response_code, error_message, next_retry_at,
		       created_at, last_attempt_at
		FROM tidehook.deliveries
		WHERE id = $1 AND tenant_id = $2`,
		deliveryID, tenantID,
	)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, webhook.ErrNotFound
	}
	return d, err
}

func (s *DeliveryStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*webhook.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subscriber_id, event_id, tenant_id, event_type, payload::text,
		       status, attempt_number, response_code, error_message, next_retry_at,
		       created_at, last_attempt_at
		FROM tidehook.deliveries
		WHERE status = 'retrying' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDelivery(row pgx.Row) (*webhook.Delivery, error) {
	var (
		d           webhook.Delivery
		payloadJSON sql.NullString
		status      string
		respCode    sql.NullInt32
		errMsg      sql.NullString
		nextRetry   sql.NullTime
		lastAttempt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.SubscriberID, &d.EventID, &d.TenantID, &d.Event.EventType, &payloadJSON,
		&status, &d.AttemptNumber, &respCode, &errMsg, &nextRetry,
		&d.CreatedAt, &lastAttempt,
	); err != nil {
		return nil, err
	}
	d.Status = webhook.Status(status)
	d.Event.EventID = d.EventID
	d.Event.TenantID = d.TenantID
	if payloadJSON.Valid && payloadJSON.String != "" {
		_ = json.Unmarshal([]byte(payloadJSON.String), &d.Event.Data)
	}
	if respCode.Valid {
		code := int(respCode.Int32)
		d.ResponseCode = &code
	}
	if errMsg.Valid {
		d.ErrorMessage = errMsg.String
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		d.NextRetryAt = &t
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		d.LastAttemptAt = &t
	}
	return &d, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
