package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ceb-outage-alerts/internal/storage"
)

// defaultExportWindow bounds the lookback when --from is not given.
const defaultExportWindow = 90 * 24 * time.Hour

// Export renders the notification archive as CSV and/or a PNG chart of
// notifications per day.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListNotificationsBetween(ctx, from, to, opts.MaxRows)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no notifications found for export window")
		return nil
	}

	a.Logger.Info().Int("exported", len(records)).Msg("exporting notifications")

	if opts.CSVPath != "" {
		if err := writeNotificationsCSV(opts.CSVPath, records); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writeNotificationsPNG(opts.PNGPath, records); err != nil {
			return err
		}
	}

	return nil
}

func writeNotificationsCSV(path string, records []storage.NotificationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"sent_at", "outage_id", "title", "priority", "is_tomorrow", "accounts", "starts_at", "ends_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.SentAt.Format(time.RFC3339),
			rec.OutageID,
			rec.Title,
			rec.Priority,
			strconv.FormatBool(rec.IsTomorrow),
			rec.Accounts,
			rec.StartsAt.Format(time.RFC3339),
			rec.EndsAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func (a *App) writeNotificationsPNG(path string, records []storage.NotificationRecord) error {
	days, counts := notificationsPerDay(records)
	if len(days) < 2 {
		a.Logger.Warn().Msg("fewer than two days of data; skipping PNG chart")
		return nil
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Notifications / day",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Notifications",
				XValues: days,
				YValues: counts,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func notificationsPerDay(records []storage.NotificationRecord) ([]time.Time, []float64) {
	byDay := make(map[time.Time]float64)
	for _, rec := range records {
		day := rec.SentAt.UTC().Truncate(24 * time.Hour)
		byDay[day]++
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	counts := make([]float64, len(days))
	for i, day := range days {
		counts[i] = byDay[day]
	}
	return days, counts
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
