package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskflow/internal/models"
)

// wireTask tolerates the field spellings seen across backend versions.
type wireTask struct {
	ID        json.RawMessage `json:"id"`
	MongoID   json.RawMessage `json:"_id"`
	Title     *string         `json:"title"`
	Task      *string         `json:"task"`
	Completed bool            `json:"completed"`
	Date      string          `json:"date"`
	DueDate   string          `json:"dueDate"`
	Priority  string          `json:"priority"`
	UserID    string          `json:"userId"`
	UserIDAlt string          `json:"user_id"`
	Created   string          `json:"createdAt"`
	CreatedS  string          `json:"created_at"`
	Updated   string          `json:"updatedAt"`
	UpdatedS  string          `json:"updated_at"`
}

func decodeTasks(raw json.RawMessage) ([]models.Task, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(items))
	for i, item := range items {
		t, err := decodeTask(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func decodeTask(raw json.RawMessage) (models.Task, error) {
	var w wireTask
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.Task{}, err
	}
	id := idString(w.ID)
	if id == "" {
		id = idString(w.MongoID)
	}
	if id == "" {
		return models.Task{}, errors.New("missing id")
	}

	t := models.Task{
		ID:        id,
		Completed: w.Completed,
		OwnerRef:  firstNonEmpty(w.UserID, w.UserIDAlt),
		CreatedAt: parseTime(firstNonEmpty(w.Created, w.CreatedS)),
		UpdatedAt: parseTime(firstNonEmpty(w.Updated, w.UpdatedS)),
	}
	switch {
	case w.Title != nil:
		t.Title = *w.Title
	case w.Task != nil:
		t.Title = *w.Task
	}
	if d := firstNonEmpty(w.Date, w.DueDate); d != "" {
		due, err := models.ParseDate(d, time.Local)
		if err != nil {
			return models.Task{}, err
		}
		t.DueDate = due
	}
	if w.Priority != "" {
		p, err := models.ParsePriority(w.Priority)
		if err != nil {
			return models.Task{}, err
		}
		t.Priority = p
	} else {
		t.Priority = models.PriorityLow
	}
	return t, nil
}

// idString accepts string and numeric ids.
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
