package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ceb-outage-alerts/internal/alerting"
	"ceb-outage-alerts/internal/config"
	"ceb-outage-alerts/internal/history"
	"ceb-outage-alerts/internal/outage"
	"ceb-outage-alerts/internal/portal"
	"ceb-outage-alerts/internal/storage"
)

// runAt is the fixed evaluation instant for these tests; "tomorrow" is
// 2025-01-10.
var runAt = time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	loginErr error
	outages  map[string][]portal.RawOutage
	fetchErr map[string]error
}

func (f *fakeFetcher) Login(ctx context.Context) error {
	return f.loginErr
}

func (f *fakeFetcher) FetchOutages(ctx context.Context, acct string, from, to time.Time) ([]portal.RawOutage, error) {
	if err := f.fetchErr[acct]; err != nil {
		return nil, err
	}
	return f.outages[acct], nil
}

type fakeNotifier struct {
	err  error
	sent []alerting.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n alerting.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeArchive struct {
	inserted []storage.NotificationRecord
}

func (f *fakeArchive) InsertNotification(ctx context.Context, rec storage.NotificationRecord) (int64, error) {
	f.inserted = append(f.inserted, rec)
	return int64(len(f.inserted)), nil
}

func (f *fakeArchive) ListRecentNotifications(ctx context.Context, limit int) ([]storage.NotificationRecord, error) {
	return f.inserted, nil
}

func (f *fakeArchive) ListNotificationsBetween(ctx context.Context, from, to time.Time, limit int) ([]storage.NotificationRecord, error) {
	return f.inserted, nil
}

func (f *fakeArchive) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func testConfig(t *testing.T, accounts []config.Account, force bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Accounts: accounts,
		Portal:   config.PortalConfig{LookaheadDays: 30},
		Notify:   config.NotifyConfig{ForceTomorrow: force},
		State: config.StateConfig{
			HistoryPath: filepath.Join(dir, "notification_history.json"),
			OutagesPath: filepath.Join(dir, "ceb_outages.json"),
		},
	}
}

func twoAccounts() []config.Account {
	return []config.Account{
		{Number: "4603310609", Label: "A7"},
		{Number: "4604009007", Label: "A8"},
	}
}

func maintenanceOutage() portal.RawOutage {
	return portal.RawOutage{
		StartTime:            "2025-01-20T10:00:00Z",
		EndTime:              "2025-01-20T14:00:00Z",
		Description:          "Maintenance",
		InterruptionTypeName: "Scheduled",
	}
}

func TestFirstRunNotifiesOnceAndRecordsHistory(t *testing.T) {
	cfg := testConfig(t, twoAccounts(), true)
	raw := maintenanceOutage()
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{
		"4603310609": {raw},
		"4604009007": {raw},
	}}
	notifier := &fakeNotifier{}

	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	result, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	require.Len(t, result.Outages, 1)
	assert.Equal(t, []outage.Account{
		{Number: "4603310609", Name: "A7"},
		{Number: "4604009007", Name: "A8"},
	}, result.Outages[0].Accounts)

	// One outage notification plus the end-of-run summary.
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, "CEB Power Outage", notifier.sent[0].Title)
	assert.Equal(t, alerting.PriorityDefault, notifier.sent[0].Priority)
	assert.Equal(t, "warning", notifier.sent[0].Tags)
	assert.Equal(t,
		"Type: Scheduled\n"+
			"Affected Accounts: A7 (4603310609), A8 (4604009007)\n"+
			"Description: Maintenance\n"+
			"From: 2025-01-20 10:00\n"+
			"To: 2025-01-20 14:00\n"+
			"Status: N/A",
		notifier.sent[0].Body)

	assert.Equal(t, "CEB Outage Summary", notifier.sent[1].Title)
	assert.Equal(t, "Found 1 new outage(s)", notifier.sent[1].Body)
	assert.Equal(t, alerting.PriorityLow, notifier.sent[1].Priority)
	assert.Equal(t, "info", notifier.sent[1].Tags)

	require.Len(t, result.NewNotifications, 1)
	assert.False(t, result.NewNotifications[0].IsTomorrow)

	hist, err := history.Load(cfg.State.HistoryPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-20T10:00:00Z|2025-01-20T14:00:00Z|Maintenance"}, hist.IDs())
}

func TestSecondRunSkipsAlreadyNotified(t *testing.T) {
	cfg := testConfig(t, twoAccounts(), true)
	raw := maintenanceOutage()
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{
		"4603310609": {raw},
		"4604009007": {raw},
	}}

	seed := history.New()
	seed.Add("2025-01-20T10:00:00Z|2025-01-20T14:00:00Z|Maintenance")
	require.NoError(t, seed.Save(cfg.State.HistoryPath))

	notifier := &fakeNotifier{}
	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	result, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	assert.Empty(t, notifier.sent)
	assert.Empty(t, result.NewNotifications)

	hist, err := history.Load(cfg.State.HistoryPath)
	require.NoError(t, err)
	assert.Equal(t, 1, hist.Len())
}

func TestForcedTomorrowResendKeepsHistoryCount(t *testing.T) {
	cfg := testConfig(t, twoAccounts()[:1], true)
	raw := portal.RawOutage{
		StartTime:            "2025-01-10T08:00:00Z",
		EndTime:              "2025-01-10T12:00:00Z",
		Description:          "Feeder repair",
		InterruptionTypeName: "Scheduled",
		Status:               "Confirmed",
	}
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{"4603310609": {raw}}}

	id := "2025-01-10T08:00:00Z|2025-01-10T12:00:00Z|Feeder repair"
	seed := history.New()
	seed.Add(id)
	require.NoError(t, seed.Save(cfg.State.HistoryPath))

	notifier := &fakeNotifier{}
	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	result, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	// Re-sent because it is tomorrow and force is on, but no summary: the
	// history gained nothing new.
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "TOMORROW'S POWER OUTAGE!", notifier.sent[0].Title)
	assert.Equal(t, alerting.PriorityHigh, notifier.sent[0].Priority)
	assert.Equal(t, "warning,calendar,alert", notifier.sent[0].Tags)
	assert.Contains(t, notifier.sent[0].Body, "Status: Confirmed")

	assert.Empty(t, result.NewNotifications)

	hist, err := history.Load(cfg.State.HistoryPath)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, hist.IDs())
}

func TestForceDisabledSkipsTomorrowRepeat(t *testing.T) {
	cfg := testConfig(t, twoAccounts()[:1], false)
	raw := portal.RawOutage{
		StartTime:   "2025-01-10T08:00:00Z",
		EndTime:     "2025-01-10T12:00:00Z",
		Description: "Feeder repair",
	}
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{"4603310609": {raw}}}

	seed := history.New()
	seed.Add("2025-01-10T08:00:00Z|2025-01-10T12:00:00Z|Feeder repair")
	require.NoError(t, seed.Save(cfg.State.HistoryPath))

	notifier := &fakeNotifier{}
	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	_, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	assert.Empty(t, notifier.sent)
}

func TestTomorrowMatchesByEndDate(t *testing.T) {
	cfg := testConfig(t, twoAccounts()[:1], true)
	raw := portal.RawOutage{
		StartTime:   "2025-01-09T23:00:00Z",
		EndTime:     "2025-01-10T02:00:00Z",
		Description: "Overnight work",
	}
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{"4603310609": {raw}}}

	notifier := &fakeNotifier{}
	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	result, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, "TOMORROW'S POWER OUTAGE!", notifier.sent[0].Title)
	require.Len(t, result.NewNotifications, 1)
	assert.True(t, result.NewNotifications[0].IsTomorrow)
}

func TestAuthFailureSendsErrorAndLeavesHistoryUntouched(t *testing.T) {
	cfg := testConfig(t, twoAccounts(), true)

	before := []byte(`{"notified_outages": ["a|b|c"]}`)
	require.NoError(t, os.WriteFile(cfg.State.HistoryPath, before, 0o644))

	fetcher := &fakeFetcher{loginErr: portal.ErrAuth}
	notifier := &fakeNotifier{}
	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())

	result, err := svc.RunOnce(context.Background(), runAt)
	require.ErrorIs(t, err, portal.ErrAuth)
	assert.Empty(t, result.Outages)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "CEB Script Error", notifier.sent[0].Title)
	assert.Equal(t, alerting.PriorityHigh, notifier.sent[0].Priority)
	assert.Equal(t, "warning", notifier.sent[0].Tags)
	assert.Equal(t, "Failed to log in to CEB Care. Please check credentials.", notifier.sent[0].Body)

	after, err := os.ReadFile(cfg.State.HistoryPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, statErr := os.Stat(cfg.State.OutagesPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSendFailureDoesNotRecordHistory(t *testing.T) {
	cfg := testConfig(t, twoAccounts()[:1], true)
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{"4603310609": {maintenanceOutage()}}}
	notifier := &fakeNotifier{err: alerting.ErrSend}

	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	result, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	assert.Empty(t, result.NewNotifications)

	hist, loadErr := history.Load(cfg.State.HistoryPath)
	require.NoError(t, loadErr)
	assert.Equal(t, 0, hist.Len())
}

func TestFetchFailureSkipsAccount(t *testing.T) {
	cfg := testConfig(t, twoAccounts(), true)
	fetcher := &fakeFetcher{
		outages:  map[string][]portal.RawOutage{"4604009007": {maintenanceOutage()}},
		fetchErr: map[string]error{"4603310609": portal.ErrFetch},
	}
	notifier := &fakeNotifier{}

	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	result, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	require.Len(t, result.Outages, 1)
	assert.Equal(t, []outage.Account{{Number: "4604009007", Name: "A8"}}, result.Outages[0].Accounts)
}

func TestSnapshotWrittenEveryRun(t *testing.T) {
	cfg := testConfig(t, twoAccounts()[:1], true)
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{"4603310609": {maintenanceOutage()}}}

	svc := New(cfg, fetcher, &fakeNotifier{}, nil, zerolog.Nop())
	_, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.State.OutagesPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Maintenance")
}

func TestUnparseableTimestampSkipsDecision(t *testing.T) {
	cfg := testConfig(t, twoAccounts()[:1], true)
	raw := portal.RawOutage{StartTime: "not-a-time", EndTime: "2025-01-10T12:00:00Z", Description: "bad"}
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{"4603310609": {raw}}}
	notifier := &fakeNotifier{}

	svc := New(cfg, fetcher, notifier, nil, zerolog.Nop())
	result, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	// Still consolidated and snapshotted, but never notified.
	assert.Len(t, result.Outages, 1)
	assert.Empty(t, notifier.sent)
}

func TestArchiveRecordsEverySuccessfulSend(t *testing.T) {
	cfg := testConfig(t, twoAccounts()[:1], true)
	raw := portal.RawOutage{
		StartTime:   "2025-01-10T08:00:00Z",
		EndTime:     "2025-01-10T12:00:00Z",
		Description: "Feeder repair",
	}
	fetcher := &fakeFetcher{outages: map[string][]portal.RawOutage{"4603310609": {raw}}}

	// Pre-seed history so this is a forced repeat: it must be archived even
	// though history gains nothing.
	seed := history.New()
	seed.Add("2025-01-10T08:00:00Z|2025-01-10T12:00:00Z|Feeder repair")
	require.NoError(t, seed.Save(cfg.State.HistoryPath))

	archive := &fakeArchive{}
	svc := New(cfg, fetcher, &fakeNotifier{}, archive, zerolog.Nop())
	_, err := svc.RunOnce(context.Background(), runAt)
	require.NoError(t, err)

	require.Len(t, archive.inserted, 1)
	assert.Equal(t, "2025-01-10T08:00:00Z|2025-01-10T12:00:00Z|Feeder repair", archive.inserted[0].OutageID)
	assert.True(t, archive.inserted[0].IsTomorrow)
	assert.Equal(t, "A7 (4603310609)", archive.inserted[0].Accounts)
}
