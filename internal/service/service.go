// Package service implements the single-run outage check: fetch, merge,
// decide, notify, persist.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ceb-outage-alerts/internal/alerting"
	"ceb-outage-alerts/internal/config"
	"ceb-outage-alerts/internal/history"
	"ceb-outage-alerts/internal/outage"
	"ceb-outage-alerts/internal/portal"
	"ceb-outage-alerts/internal/storage"
)

const notifyTimeLayout = "2006-01-02 15:04"

// Service orchestrates one outage check from login to history save.
type Service struct {
	fetcher  portal.OutageFetcher
	notifier alerting.Notifier
	archive  storage.NotificationStore
	logger   zerolog.Logger

	accounts      []config.Account
	lookaheadDays int
	historyPath   string
	outagesPath   string
	forceTomorrow bool
}

// New constructs the outage check service. The archive store may be nil
// when no database is configured.
func New(cfg *config.Config, fetcher portal.OutageFetcher, notifier alerting.Notifier, archive storage.NotificationStore, logger zerolog.Logger) *Service {
	return &Service{
		fetcher:       fetcher,
		notifier:      notifier,
		archive:       archive,
		logger:        logger.With().Str("component", "service").Logger(),
		accounts:      cfg.Accounts,
		lookaheadDays: cfg.Portal.LookaheadDays,
		historyPath:   cfg.State.HistoryPath,
		outagesPath:   cfg.State.OutagesPath,
		forceTomorrow: cfg.Notify.ForceTomorrow,
	}
}

// SentNotification records one notification newly added to history this run.
type SentNotification struct {
	ID         string    `json:"id"`
	SentAt     time.Time `json:"sent_at"`
	IsTomorrow bool      `json:"is_tomorrow"`
}

// RunResult summarises a completed check.
type RunResult struct {
	Outages          []outage.Consolidated
	NewNotifications []SentNotification
}

// RunOnce performs a full check evaluated at the given instant. Login
// failure aborts the run with a single error notification and no state
// mutation; every other failure is logged and the run continues.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (RunResult, error) {
	if err := s.fetcher.Login(ctx); err != nil {
		s.logger.Error().Err(err).Msg("portal login failed")
		s.sendErrorNotification(ctx)
		return RunResult{}, err
	}

	outages := s.fetchAndConsolidate(ctx, now)

	if err := outage.WriteSnapshot(s.outagesPath, outages); err != nil {
		s.logger.Error().Err(err).Str("path", s.outagesPath).Msg("failed to write outage snapshot")
	}

	hist, err := history.Load(s.historyPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.historyPath).Msg("history unreadable, starting empty")
	}

	// Evaluated once per run, not per outage.
	tomorrow := now.AddDate(0, 0, 1)

	result := RunResult{Outages: outages}
	for _, o := range outages {
		if sent, ok := s.processOutage(ctx, o, tomorrow, hist); ok {
			result.NewNotifications = append(result.NewNotifications, sent)
		}
	}

	if err := hist.Save(s.historyPath); err != nil {
		s.logger.Error().Err(err).Str("path", s.historyPath).Msg("failed to save notification history")
	}

	s.sendSummary(ctx, len(result.NewNotifications))

	return result, nil
}

func (s *Service) fetchAndConsolidate(ctx context.Context, now time.Time) []outage.Consolidated {
	from := now
	to := now.AddDate(0, 0, s.lookaheadDays)

	cons := outage.NewConsolidator()
	for _, acct := range s.accounts {
		s.logger.Info().Str("account", acct.Number).Str("label", acct.Label).Msg("fetching outages")

		raws, err := s.fetcher.FetchOutages(ctx, acct.Number, from, to)
		if err != nil {
			s.logger.Warn().Err(err).Str("account", acct.Number).Msg("skipping account after fetch failure")
			continue
		}

		for _, raw := range raws {
			cons.Add(outage.Account{Number: acct.Number, Name: acct.Label}, raw)
		}
	}

	return cons.Outages()
}

// processOutage runs the notification decision for one consolidated outage.
// Returns the new history entry and true when one was recorded.
func (s *Service) processOutage(ctx context.Context, o outage.Consolidated, tomorrow time.Time, hist *history.History) (SentNotification, bool) {
	startTime, err := time.Parse(time.RFC3339, o.StartTime)
	if err != nil {
		s.logger.Warn().Err(err).Str("start_time", o.StartTime).Msg("unparseable outage start time, skipping")
		return SentNotification{}, false
	}
	endTime, err := time.Parse(time.RFC3339, o.EndTime)
	if err != nil {
		s.logger.Warn().Err(err).Str("end_time", o.EndTime).Msg("unparseable outage end time, skipping")
		return SentNotification{}, false
	}

	accountList := formatAccounts(o.Accounts)
	isTomorrow := sameDate(startTime, tomorrow) || sameDate(endTime, tomorrow)

	id := o.ID()
	alreadyNotified := hist.Contains(id)
	shouldNotify := !alreadyNotified || (isTomorrow && s.forceTomorrow)

	var recorded bool
	var sent SentNotification
	if shouldNotify {
		note := buildNotification(o, accountList, startTime, endTime, isTomorrow)
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("outage_id", id).Msg("failed to send outage notification")
		} else {
			// Forced repeats are sent but never re-added to history.
			if !alreadyNotified {
				hist.Add(id)
				sent = SentNotification{ID: id, SentAt: time.Now(), IsTomorrow: isTomorrow}
				recorded = true
			}
			s.archiveNotification(ctx, o, note, accountList, startTime, endTime, isTomorrow)
		}
	}

	status := "sent"
	if !shouldNotify {
		status = "already notified"
	}
	s.logger.Info().
		Str("from", startTime.Format("2006-01-02")).
		Str("to", endTime.Format("2006-01-02")).
		Str("accounts", accountList).
		Str("notification", status).
		Msg("outage processed")

	return sent, recorded
}

func (s *Service) archiveNotification(ctx context.Context, o outage.Consolidated, note alerting.Notification, accountList string, startTime, endTime time.Time, isTomorrow bool) {
	if s.archive == nil {
		return
	}

	rec := storage.NotificationRecord{
		OutageID:   o.ID(),
		Title:      note.Title,
		Priority:   note.Priority,
		IsTomorrow: isTomorrow,
		Accounts:   accountList,
		StartsAt:   startTime,
		EndsAt:     endTime,
		SentAt:     time.Now().UTC(),
	}
	if _, err := s.archive.InsertNotification(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("outage_id", rec.OutageID).Msg("failed to archive notification")
	}
}

func (s *Service) sendErrorNotification(ctx context.Context) {
	note := alerting.Notification{
		Title:    "CEB Script Error",
		Body:     "Failed to log in to CEB Care. Please check credentials.",
		Priority: alerting.PriorityHigh,
		Tags:     "warning",
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Msg("failed to send error notification")
	}
}

func (s *Service) sendSummary(ctx context.Context, newCount int) {
	if newCount == 0 {
		s.logger.Info().Msg("no new outages to notify about")
		return
	}

	note := alerting.Notification{
		Title:    "CEB Outage Summary",
		Body:     fmt.Sprintf("Found %d new outage(s)", newCount),
		Priority: alerting.PriorityLow,
		Tags:     "info",
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Msg("failed to send summary notification")
	}
}

func buildNotification(o outage.Consolidated, accountList string, startTime, endTime time.Time, isTomorrow bool) alerting.Notification {
	title := "CEB Power Outage"
	priority := alerting.PriorityDefault
	tags := "warning"
	if isTomorrow {
		title = "TOMORROW'S POWER OUTAGE!"
		priority = alerting.PriorityHigh
		tags = "warning,calendar,alert"
	}

	status := o.Status
	if status == "" {
		status = "N/A"
	}

	body := fmt.Sprintf(
		"Type: %s\nAffected Accounts: %s\nDescription: %s\nFrom: %s\nTo: %s\nStatus: %s",
		o.InterruptionTypeName,
		accountList,
		o.Description,
		startTime.Format(notifyTimeLayout),
		endTime.Format(notifyTimeLayout),
		status,
	)

	return alerting.Notification{Title: title, Body: body, Priority: priority, Tags: tags}
}

func formatAccounts(accounts []outage.Account) string {
	parts := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		parts = append(parts, fmt.Sprintf("%s (%s)", acc.Name, acc.Number))
	}
	return strings.Join(parts, ", ")
}

// sameDate compares calendar dates, each in its own location.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
