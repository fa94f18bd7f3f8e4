package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Malixamran-01/MissMinutes/internal/app"
	"github.com/Malixamran-01/MissMinutes/internal/model"
)

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder, escalation and summary schedulers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				err := a.Serve(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Store.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}

func summaryCmd(opts *options) *cobra.Command {
	var orgID int64
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Generate and send an organization's daily summary now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Summary.SendNow(ctx, orgID)
			})
		},
	}
	cmd.Flags().Int64Var(&orgID, "org", 0, "organization id")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func historyCmd(opts *options) *cobra.Command {
	var taskID int64
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a task's status trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				updates, err := a.Lifecycle.History(ctx, taskID)
				if err != nil {
					return err
				}
				printHistory(cmd, updates)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func printHistory(cmd *cobra.Command, updates []model.TaskUpdate) {
	out := cmd.OutOrStdout()
	for _, u := range updates {
		line := fmt.Sprintf("%s  %-12s by %d", u.CreatedAt.UTC().Format("2006-01-02 15:04:05"), u.Status, u.ActorID)
		if u.Note != "" {
			line += "  " + u.Note
		}
		fmt.Fprintln(out, line)
	}
	statuses := model.ReplayStatuses(updates)
	trail := make([]string, len(statuses))
	for i, s := range statuses {
		trail[i] = string(s)
	}
	fmt.Fprintln(out, strings.Join(trail, " -> "))
}

func relayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Consume notification.requested events and deliver them once per idempotency key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Relay(ctx)
			})
		},
	}
}
