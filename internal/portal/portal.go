package portal

import (
	"context"
	"errors"
	"time"
)

// RawOutage is one scheduled interruption as reported by the portal
// calendar endpoint for a single account.
type RawOutage struct {
	StartTime            string `json:"startTime"`
	EndTime              string `json:"endTime"`
	Description          string `json:"description"`
	InterruptionTypeName string `json:"interruptionTypeName"`
	Status               string `json:"status,omitempty"`
}

// ErrAuth marks a failed login: unreachable login page, missing
// verification token, or rejected credentials.
var ErrAuth = errors.New("portal: authentication failed")

// ErrFetch marks a failed calendar query for one account.
var ErrFetch = errors.New("portal: outage fetch failed")

// OutageFetcher authenticates against the portal and retrieves scheduled
// interruptions per account over a date window.
type OutageFetcher interface {
	Login(ctx context.Context) error
	FetchOutages(ctx context.Context, accountNumber string, from, to time.Time) ([]RawOutage, error)
}
