package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the ordered importance of a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority accepts any casing of low/medium/high.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Rank orders priorities LOW < MEDIUM < HIGH. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Task represents a todo item as the server last confirmed it.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	DueDate   Date      `json:"date"`
	Priority  Priority  `json:"priority"`
	OwnerRef  string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Draft is the create payload. The server assigns id and timestamps.
type Draft struct {
	Title    string   `json:"title" validate:"required,notblank"`
	Priority Priority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	Date     Date     `json:"date" validate:"required"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title     *string   `json:"title,omitempty"`
	Completed *bool     `json:"completed,omitempty"`
	DueDate   *Date     `json:"date,omitempty"`
	Priority  *Priority `json:"priority,omitempty"`
}

// Empty reports whether the patch carries no field.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Completed == nil && p.DueDate == nil && p.Priority == nil
}

// ApplyTo splices the patch fields into t.
func (p Patch) ApplyTo(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
}

// ListQuery holds the optional list filters. Zero values impose no constraint.
type ListQuery struct {
	Page      int      `url:"page,omitempty"`
	Limit     int      `url:"limit,omitempty"`
	Priority  Priority `url:"priority,omitempty"`
	Completed *bool    `url:"completed,omitempty"`
	DateGte   string   `url:"dateGte,omitempty"`
	DateLte   string   `url:"dateLte,omitempty"`
	Sort      string   `url:"sortBy,omitempty"`
	Order     string   `url:"order,omitempty"`
}

// Page is one list response plus whatever pagination metadata the envelope carried.
type Page struct {
	Tasks       []Task
	Total       int
	HasNextPage bool
	NextPage    *int
}
