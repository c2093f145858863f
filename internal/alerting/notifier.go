package alerting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Priority levels understood by ntfy.
const (
	PriorityLow     = "low"
	PriorityDefault = "default"
	PriorityHigh    = "high"
)

// ErrSend marks a notification that could not be delivered. Delivery
// failures are non-fatal to a run.
var ErrSend = errors.New("alerting: notification send failed")

// Notification is one push message.
type Notification struct {
	Title    string
	Body     string
	Priority string
	Tags     string // comma-joined label set, optional
}

// Notifier delivers push notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NtfyNotifier publishes messages to an ntfy topic URL. Title, priority,
// and tags ride in headers; the body is the plain-text message.
type NtfyNotifier struct {
	topicURL string
	client   *http.Client
	logger   zerolog.Logger
}

// NewNtfyNotifier constructs an ntfy publisher.
func NewNtfyNotifier(topicURL string, timeout time.Duration, logger zerolog.Logger) *NtfyNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &NtfyNotifier{
		topicURL: strings.TrimRight(topicURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_ntfy").Logger(),
	}
}

// Notify posts one message to the topic.
func (n *NtfyNotifier) Notify(ctx context.Context, note Notification) error {
	if n.topicURL == "" {
		return fmt.Errorf("%w: topic url not configured", ErrSend)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, strings.NewReader(note.Body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrSend, err)
	}

	req.Header.Set("Title", note.Title)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	priority := note.Priority
	if priority == "" {
		priority = PriorityDefault
	}
	req.Header.Set("Priority", priority)
	if note.Tags != "" {
		req.Header.Set("Tags", note.Tags)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ntfy returned %d", ErrSend, resp.StatusCode)
	}

	n.logger.Info().Str("title", note.Title).Str("priority", priority).Msg("notification sent")
	return nil
}

var _ Notifier = (*NtfyNotifier)(nil)
