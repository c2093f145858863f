package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS notifications (
        id          BIGSERIAL PRIMARY KEY,
        outage_id   TEXT        NOT NULL,
        title       TEXT        NOT NULL,
        priority    TEXT        NOT NULL,
        is_tomorrow BOOLEAN     NOT NULL,
        accounts    TEXT        NOT NULL,
        starts_at   TIMESTAMPTZ NOT NULL,
        ends_at     TIMESTAMPTZ NOT NULL,
        sent_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertNotificationSQL = `INSERT INTO notifications (
        outage_id,
        title,
        priority,
        is_tomorrow,
        accounts,
        starts_at,
        ends_at,
        sent_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    ) RETURNING id;`

	listRecentNotificationsSQL = `SELECT
        id, outage_id, title, priority, is_tomorrow, accounts, starts_at, ends_at, sent_at
    FROM notifications
    ORDER BY sent_at DESC
    LIMIT $1;`

	listNotificationsBetweenSQL = `SELECT
        id, outage_id, title, priority, is_tomorrow, accounts, starts_at, ends_at, sent_at
    FROM notifications
    WHERE sent_at >= $1
      AND sent_at < $2
    ORDER BY sent_at
    LIMIT $3;`

	deleteNotificationsBeforeSQL = `DELETE FROM notifications WHERE sent_at < $1;`
)

// NotificationStore defines operations on the notification archive.
type NotificationStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (int64, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
	ListNotificationsBetween(ctx context.Context, from, to time.Time, limit int) ([]NotificationRecord, error)
	DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Store provides pgx-backed access to the notification archive.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store and ensures the schema exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if _, err := pool.Exec(ctx, ensureSchemaSQL); err != nil {
		return nil, fmt.Errorf("ensure notifications schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertNotification archives one delivered notification.
func (s *Store) InsertNotification(ctx context.Context, rec NotificationRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertNotificationSQL,
		rec.OutageID,
		rec.Title,
		rec.Priority,
		rec.IsTomorrow,
		rec.Accounts,
		rec.StartsAt,
		rec.EndsAt,
		sentAt,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert notification: %w", scanErr)
	}
	return id, nil
}

// ListRecentNotifications returns the most recent archive rows, newest first.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	return collectNotifications(rows, limit)
}

// ListNotificationsBetween returns archive rows within a send-time window.
func (s *Store) ListNotificationsBetween(ctx context.Context, from, to time.Time, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNotificationsBetweenSQL, from, to, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list notifications between: %w", queryErr)
	}
	defer rows.Close()

	return collectNotifications(rows, limit)
}

// DeleteNotificationsBefore removes archive rows older than the cutoff and
// reports how many were deleted.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	cmdTag, execErr := pool.Exec(ctx, deleteNotificationsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete notifications before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

func collectNotifications(rows pgx.Rows, capacity int) ([]NotificationRecord, error) {
	if capacity < 0 {
		capacity = 0
	}

	records := make([]NotificationRecord, 0, capacity)
	for rows.Next() {
		var rec NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.OutageID,
			&rec.Title,
			&rec.Priority,
			&rec.IsTomorrow,
			&rec.Accounts,
			&rec.StartsAt,
			&rec.EndsAt,
			&rec.SentAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

var _ NotificationStore = (*Store)(nil)
