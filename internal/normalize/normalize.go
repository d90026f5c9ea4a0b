// Package normalize extracts canonical tasks from the several envelope shapes
// the to-do API is known to answer with.
//
// Shapes are tried in a fixed order and the first match wins:
//
//	single item: {id,...}  >  {data: {id,...}}  >  {todo: {id,...}}
//	collection:  [...]     >  {data: [...]}     >  {todos: [...]}  >  {data: {todos: [...]}}
//	login:       {data: {token, user}}  >  {token, user}
//
// An object carrying both an id and a wrapper field is therefore always read
// as a direct item.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"taskflow/internal/models"
)

// ShapeError means a response matched none of the known envelopes, or a
// matched envelope held something that is not a task.
type ShapeError struct {
	Op     string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected %s response shape: %s", e.Op, e.Reason)
}

type object = map[string]json.RawMessage

type itemShape struct {
	name  string
	match func(json.RawMessage, object) (json.RawMessage, bool)
}

type listShape struct {
	name  string
	match func(json.RawMessage, object) (json.RawMessage, object, bool)
}

var itemShapes = []itemShape{
	{"item", func(raw json.RawMessage, o object) (json.RawMessage, bool) {
		return raw, hasID(o)
	}},
	{"data", wrappedItem("data")},
	{"todo", wrappedItem("todo")},
}

var listShapes = []listShape{
	{"array", func(raw json.RawMessage, _ object) (json.RawMessage, object, bool) {
		return raw, nil, isArray(raw)
	}},
	{"data", wrappedList("data")},
	{"todos", wrappedList("todos")},
	{"data.todos", func(_ json.RawMessage, o object) (json.RawMessage, object, bool) {
		inner, ok := asObject(o["data"])
		if !ok {
			return nil, nil, false
		}
		if todos, ok := inner["todos"]; ok && isArray(todos) {
			return todos, inner, true
		}
		return nil, nil, false
	}},
}

func wrappedItem(key string) func(json.RawMessage, object) (json.RawMessage, bool) {
	return func(_ json.RawMessage, o object) (json.RawMessage, bool) {
		inner, ok := asObject(o[key])
		if !ok || !hasID(inner) {
			return nil, false
		}
		return o[key], true
	}
}

func wrappedList(key string) func(json.RawMessage, object) (json.RawMessage, object, bool) {
	return func(_ json.RawMessage, o object) (json.RawMessage, object, bool) {
		if v, ok := o[key]; ok && isArray(v) {
			return v, o, true
		}
		return nil, nil, false
	}
}

// One extracts a single task.
func One(raw []byte) (models.Task, error) {
	o, ok := asObject(raw)
	if !ok {
		return models.Task{}, &ShapeError{Op: "item", Reason: "body is not a JSON object"}
	}
	for _, s := range itemShapes {
		if item, ok := s.match(raw, o); ok {
			t, err := decodeTask(item)
			if err != nil {
				return models.Task{}, &ShapeError{Op: "item", Reason: s.name + ": " + err.Error()}
			}
			return t, nil
		}
	}
	return models.Task{}, &ShapeError{Op: "item", Reason: "no known envelope matched"}
}

// Many extracts a task collection. A body that matches no collection shape
// is read as an empty list, not as an error.
func Many(raw []byte) ([]models.Task, error) {
	p, err := PageOf(raw)
	return p.Tasks, err
}

// PageOf is Many plus the pagination fields found beside the array.
func PageOf(raw []byte) (models.Page, error) {
	raw = bytes.TrimSpace(raw)
	o, _ := asObject(raw)
	for _, s := range listShapes {
		arr, container, ok := s.match(raw, o)
		if !ok {
			continue
		}
		tasks, err := decodeTasks(arr)
		if err != nil {
			return models.Page{Tasks: []models.Task{}}, &ShapeError{Op: "list", Reason: s.name + ": " + err.Error()}
		}
		page := models.Page{Tasks: tasks, Total: len(tasks)}
		readPageMeta(container, &page)
		return page, nil
	}
	return models.Page{Tasks: []models.Task{}}, nil
}

// Login extracts the bearer token and user profile of a login response.
func Login(raw []byte) (string, models.User, error) {
	o, ok := asObject(raw)
	if !ok {
		return "", models.User{}, &ShapeError{Op: "login", Reason: "body is not a JSON object"}
	}
	candidates := []object{}
	if inner, ok := asObject(o["data"]); ok {
		candidates = append(candidates, inner)
	}
	candidates = append(candidates, o)
	for _, c := range candidates {
		var token string
		if err := json.Unmarshal(c["token"], &token); err != nil || token == "" {
			continue
		}
		var user models.User
		if u, ok := c["user"]; ok {
			if err := json.Unmarshal(u, &user); err != nil {
				return "", models.User{}, &ShapeError{Op: "login", Reason: "user: " + err.Error()}
			}
		}
		return token, user, nil
	}
	return "", models.User{}, &ShapeError{Op: "login", Reason: "no token in response"}
}

// Message returns the human readable message of an error body, if any.
func Message(raw []byte) string {
	o, ok := asObject(raw)
	if !ok {
		return ""
	}
	for _, key := range []string{"message", "error"} {
		var s string
		if err := json.Unmarshal(o[key], &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func readPageMeta(o object, p *models.Page) {
	if o == nil {
		return
	}
	var total int
	if err := json.Unmarshal(o["totalTodos"], &total); err == nil && total > 0 {
		p.Total = total
	}
	var hasNext bool
	if err := json.Unmarshal(o["hasNextPage"], &hasNext); err == nil {
		p.HasNextPage = hasNext
	}
	var next *int
	if err := json.Unmarshal(o["nextPage"], &next); err == nil {
		p.NextPage = next
	}
}

func asObject(raw []byte) (object, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, false
	}
	return o, true
}

func isArray(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func hasID(o object) bool {
	_, id := o["id"]
	_, mongo := o["_id"]
	return id || mongo
}
