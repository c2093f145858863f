package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recently archived notifications.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show notifications")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentNotifications(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tTitle\tPriority\tTomorrow\tAccounts\tWindow")

	for _, rec := range records {
		window := fmt.Sprintf("%s -> %s",
			rec.StartsAt.UTC().Format("2006-01-02 15:04"),
			rec.EndsAt.UTC().Format("2006-01-02 15:04"),
		)
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%t\t%s\t%s\n",
			rec.SentAt.UTC().Format(time.RFC3339),
			sanitizeInline(rec.Title),
			rec.Priority,
			rec.IsTomorrow,
			sanitizeInline(rec.Accounts),
			window,
		)
	}

	writer.Flush()
	return nil
}

// Prune deletes archived notifications older than the cutoff.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	deleted, err := store.DeleteNotificationsBefore(ctx, opts.OlderThan)
	if err != nil {
		return err
	}

	a.Logger.Info().Int64("deleted", deleted).Time("older_than", opts.OlderThan).Msg("archive pruned")
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
