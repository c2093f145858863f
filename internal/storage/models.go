package storage

import "time"

// NotificationRecord captures one delivered push notification for auditing.
// The flat-file history remains the authority for dedup decisions; this
// archive only records what was actually sent.
type NotificationRecord struct {
	ID         int64
	OutageID   string
	Title      string
	Priority   string
	IsTomorrow bool
	Accounts   string
	StartsAt   time.Time
	EndsAt     time.Time
	SentAt     time.Time
}
