package main

import (
	"context"
	"errors"
	"time"

	"taskflow/internal/journal"

	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	var group string
	var limit int
	var everyone bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Follow the mutation journal",
		Long: `Print operation outcomes recorded in Kafka, including the raw error text
behind each failure. Requires KAFKA_BROKERS. Stops on Ctrl-C or after --limit entries.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVar(&group, "group", "taskctl-journal", "Kafka consumer group")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop after this many entries (0 follows forever)")
	cmd.Flags().BoolVar(&everyone, "all-users", false, "include entries from every account")

	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		if len(a.cfg.KafkaBrokers) == 0 {
			return errors.New("journal disabled: set KAFKA_BROKERS")
		}
		user := ""
		if !everyone {
			s, err := a.requireLogin(ctx)
			if err != nil {
				return err
			}
			user = s.User.ID
		}
		journal.EnsureTopic(ctx, a.cfg.KafkaBrokers, a.cfg.JournalTopic, 3)
		r := journal.NewReader(a.cfg.KafkaBrokers, a.cfg.JournalTopic, group)
		a.closeLater(r.Close)
		return a.tail(ctx, r, user, limit)
	})
	return cmd
}

func (a *app) tail(ctx context.Context, r journal.MessageReader, user string, limit int) error {
	seen := 0
	return journal.Tail(ctx, r, user, func(e journal.Entry) error {
		a.printf("%s\n", formatEntry(e))
		seen++
		if limit > 0 && seen >= limit {
			return journal.ErrStop
		}
		return nil
	})
}

func formatEntry(e journal.Entry) string {
	status := "ok"
	switch {
	case e.RolledBack:
		status = "rolled back"
	case !e.OK:
		status = "failed"
	}
	line := e.At.Local().Format(time.DateTime) + "  " + e.Op
	if e.TaskID != "" {
		line += " " + e.TaskID
	}
	line += "  " + status
	if e.Error != "" {
		line += ": " + e.Error
	}
	return line
}
