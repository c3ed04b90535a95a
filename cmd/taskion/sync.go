package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/remote"
	"github.com/taskion/taskion/internal/store"
	"github.com/taskion/taskion/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass now",
	Long: `Push pending local edits, pull remote changes and archive records that
were removed remotely.

A pass that fails partway keeps what it finished; the rest is retried on the
next pass. Without Notion credentials every pending record is marked synced
locally and nothing is pulled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := newEngine(db).RunSync(ctx)
		if err != nil {
			if stats != nil {
				out.SyncStats(stats)
			}
			if remote.IsRetryable(err) {
				out.Warn("remote unavailable; pending records will be pushed on the next pass")
			}
			return fmt.Errorf("sync failed: %w", err)
		}
		out.SyncStats(stats)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show record counts and the last sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		status := &ui.Status{
			Database: db.Path(),
			Remote:   "notion",
			Interval: cfg.SyncInterval(),
		}
		if err := cfg.RemoteConfigured(); err != nil {
			status.Remote = "disabled (" + err.Error() + ")"
		}
		if status.Courses, err = db.Counts(ctx, model.KindCourse); err != nil {
			return err
		}
		if status.Tasks, err = db.Counts(ctx, model.KindTask); err != nil {
			return err
		}

		last, err := db.LastSyncRun(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			status.LastRun = last
		}

		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(status); err != nil {
				return fmt.Errorf("failed to encode status: %w", err)
			}
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(status); err != nil {
				return fmt.Errorf("failed to encode status: %w", err)
			}
			return enc.Close()
		case "text", "":
			out.Status(status)
		default:
			return fmt.Errorf("unknown format %q (want text, yaml or json)", format)
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:     "runs",
	GroupID: "sync",
	Short:   "List recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListSyncRuns(ctx, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no sync runs yet")
			return nil
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-9s pushed %d, pulled %d, skipped %d, archived %d, dropped %d",
				r.StartedAt, r.Outcome, r.Pushed, r.Pulled, r.Skipped, r.Archived, r.Dropped)
			if r.Error != "" {
				line += "  " + r.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringP("format", "f", "text", "output format: text, yaml or json")
	runsCmd.Flags().IntP("limit", "n", 10, "number of runs to show")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runsCmd)
}
