package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskflow/internal/engine"
	"taskflow/internal/models"
	"taskflow/internal/projector"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var tab, priority, search string
	var page int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks in a tab: today, upcoming, completed, or all.
Incomplete tasks whose due date has passed only show under all.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&tab, "tab", "t", "today", "today, upcoming, completed or all")
	cmd.Flags().StringVarP(&priority, "priority", "p", projector.PriorityAll, "ALL, LOW, MEDIUM or HIGH")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only titles containing this text")
	cmd.Flags().IntVar(&page, "page", 1, "page to fetch when LIST_PAGE_SIZE is set")

	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		prio, err := projector.ParsePriorityFilter(priority)
		if err != nil {
			return err
		}
		all := strings.EqualFold(strings.TrimSpace(tab), "all")
		var t projector.Tab
		if !all {
			if t, err = projector.ParseTab(tab); err != nil {
				return err
			}
		}
		if _, err := a.requireLogin(ctx); err != nil {
			return err
		}

		q := a.listQuery(true)
		if q.Limit > 0 {
			q.Page = max(page, 1)
		}
		e := a.engine(ctx, q)
		if err := e.Load(ctx); err != nil {
			return reported(err)
		}

		var tasks []models.Task
		if all {
			tasks = projector.Filter(e.Tasks(), prio, search)
		} else {
			tasks = e.Visible(t, prio, search)
		}
		if len(tasks) == 0 {
			a.printf("No tasks found.\n")
		}
		for _, task := range tasks {
			a.printf("%s\n", formatTask(task))
		}
		if info := e.PageInfo(); info.HasNextPage && info.NextPage != nil {
			a.printf("\nMore tasks: taskctl list --page %d (total %d)\n", *info.NextPage, info.Total)
		}
		return nil
	})
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var title, date, priority string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "task title (required)")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "due date: YYYY-MM-DD, today or tomorrow")
	cmd.Flags().StringVarP(&priority, "priority", "p", "LOW", "LOW, MEDIUM or HIGH")
	_ = cmd.MarkFlagRequired("title")

	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		due, err := parseDue(date)
		if err != nil {
			return err
		}
		prio, err := models.ParsePriority(priority)
		if err != nil {
			return err
		}
		if _, err := a.requireLogin(ctx); err != nil {
			return err
		}
		e := a.engine(ctx, a.listQuery(false))
		task, err := e.Create(ctx, models.Draft{Title: title, Priority: prio, Date: due})
		if err != nil {
			return reported(err)
		}
		a.printf("Created %s\n", formatTask(task))
		return nil
	})
	return cmd
}

func newToggleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a task between done and not done",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		e, err := a.loaded(ctx)
		if err != nil {
			return err
		}
		task, err := e.Toggle(ctx, args[0])
		if err != nil {
			return reported(err)
		}
		a.printf("%s\n", formatTask(task))
		return nil
	})
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var title, date, priority string
	var done, undone bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&date, "date", "d", "", "new due date")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority")
	cmd.Flags().BoolVar(&done, "done", false, "mark completed")
	cmd.Flags().BoolVar(&undone, "undone", false, "mark not completed")
	cmd.MarkFlagsMutuallyExclusive("done", "undone")

	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		var p models.Patch
		if cmd.Flags().Changed("title") {
			p.Title = &title
		}
		if date != "" {
			due, err := parseDue(date)
			if err != nil {
				return err
			}
			p.DueDate = &due
		}
		if priority != "" {
			prio, err := models.ParsePriority(priority)
			if err != nil {
				return err
			}
			p.Priority = &prio
		}
		if done || undone {
			p.Completed = &done
		}
		if p.Empty() {
			return fmt.Errorf("nothing to change; pass --title, --date, --priority, --done or --undone")
		}
		e, err := a.loaded(ctx)
		if err != nil {
			return err
		}
		task, err := e.Edit(ctx, args[0], p)
		if err != nil {
			return reported(err)
		}
		a.printf("%s\n", formatTask(task))
		return nil
	})
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks",
		Args:    cobra.MinimumNArgs(1),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		e, err := a.loaded(ctx)
		if err != nil {
			return err
		}
		var failed error
		for _, id := range args {
			if err := e.Delete(ctx, id); err != nil {
				failed = err
				continue
			}
			a.printf("Deleted %s\n", id)
		}
		return reported(failed)
	})
	return cmd
}

// loaded checks the session and returns an engine holding the whole list,
// so ids beyond the first page can be changed too.
func (a *app) loaded(ctx context.Context) (*engine.Engine, error) {
	if _, err := a.requireLogin(ctx); err != nil {
		return nil, err
	}
	e := a.engine(ctx, a.listQuery(false))
	if err := e.Load(ctx); err != nil {
		return nil, reported(err)
	}
	return e, nil
}

func (a *app) listQuery(paged bool) models.ListQuery {
	q := models.ListQuery{Sort: a.cfg.ListSort, Order: a.cfg.ListOrder}
	if paged {
		q.Limit = a.cfg.PageSize
	}
	return q
}

// parseDue accepts YYYY-MM-DD, an RFC 3339 timestamp, today or tomorrow.
func parseDue(s string) (models.Date, error) {
	today := models.DateOf(nowFunc())
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	}
	return models.ParseDate(s, time.Local)
}

func formatTask(t models.Task) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}
	due := t.DueDate.String()
	if due == "" {
		due = "no date"
	}
	return fmt.Sprintf("%s %s  %s  (%s, %s)", box, t.ID, t.Title, due, t.Priority)
}
