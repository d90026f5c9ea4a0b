// Package projector derives the visible task list from the full collection.
// Nothing here mutates its input.
package projector

import (
	"fmt"
	"strings"

	"taskflow/internal/models"
)

// Tab partitions tasks by completion and due date.
type Tab string

const (
	TabToday     Tab = "today"
	TabUpcoming  Tab = "upcoming"
	TabCompleted Tab = "completed"
)

// PriorityAll disables the priority filter.
const PriorityAll = "ALL"

// ParseTab accepts a tab name in any casing. Blank input selects today.
func ParseTab(s string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TabToday, nil
	case TabToday, TabUpcoming, TabCompleted:
		return t, nil
	}
	return "", fmt.Errorf("unknown tab %q (want today, upcoming or completed)", s)
}

// ParsePriorityFilter returns "" for ALL (or blank) and the priority otherwise.
func ParsePriorityFilter(s string) (models.Priority, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, PriorityAll) {
		return "", nil
	}
	return models.ParsePriority(s)
}

// Project returns the tasks of tasks that fall in tab, match priority (empty
// means all) and contain search in their title, case-insensitively. Input
// order is preserved.
//
// Incomplete tasks due before today belong to no tab.
func Project(tasks []models.Task, tab Tab, priority models.Priority, search string, today models.Date) []models.Task {
	match := matcher(priority, search)
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if InTab(t, tab, today) && match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Filter applies only the priority and search filters, so every task is
// eligible regardless of completion or due date.
func Filter(tasks []models.Task, priority models.Priority, search string) []models.Task {
	match := matcher(priority, search)
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

func matcher(priority models.Priority, search string) func(models.Task) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	return func(t models.Task) bool {
		if priority != "" && t.Priority != priority {
			return false
		}
		return needle == "" || strings.Contains(strings.ToLower(t.Title), needle)
	}
}

// InTab reports whether t belongs to tab on the given day.
func InTab(t models.Task, tab Tab, today models.Date) bool {
	switch tab {
	case TabCompleted:
		return t.Completed
	case TabToday:
		return !t.Completed && t.DueDate.Compare(today) == 0
	case TabUpcoming:
		return !t.Completed && t.DueDate.After(today)
	}
	return false
}
