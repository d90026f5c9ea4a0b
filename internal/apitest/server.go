package apitest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskflow/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Style selects the envelope the server wraps responses in.
type Style int

const (
	// StyleNested: {message, data: item} and {success, data: {todos, totalTodos, ...}}.
	StyleNested Style = iota
	// StyleBare: item and array without wrappers.
	StyleBare
	// StyleData: {data: item} and {data: [...]}.
	StyleData
	// StyleNamed: {todo: item} and {todos: [...]}.
	StyleNamed
)

// Failure is a canned response for the next request matching Method and Path.
// An empty Path matches every path.
type Failure struct {
	Method  string
	Path    string
	Status  int
	Message string
	Raw     string
	Delay   time.Duration
}

// Request is what the server saw.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Auth      string
	RequestID string
	Body      string
}

type account struct {
	user     models.User
	password string
}

// Server is a fake to-do API.
type Server struct {
	URL         string
	Style       Style
	RequireAuth bool

	http     *httptest.Server
	secret   []byte
	mu       sync.Mutex
	todos    []models.Task
	accounts map[string]account
	failures []Failure
	requests []Request
}

// New starts a server. Close it when done.
func New() *Server {
	s := &Server{
		secret:   []byte("apitest-secret"),
		accounts: map[string]account{},
	}
	s.http = httptest.NewServer(s.router())
	s.URL = s.http.URL
	return s
}

func (s *Server) Close() { s.http.Close() }

// Seed appends todos as if the server had created them.
func (s *Server) Seed(tasks ...models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.Priority == "" {
			t.Priority = models.PriorityLow
		}
		s.todos = append(s.todos, t)
	}
}

// Todos returns the server-side collection.
func (s *Server) Todos() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Task(nil), s.todos...)
}

// AddAccount registers a user directly.
func (s *Server) AddAccount(u models.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[u.Email] = account{user: u, password: password}
}

// Fail queues a canned response.
func (s *Server) Fail(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) takeFailure(method, path string) (Failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.failures {
		if f.Method == method && (f.Path == "" || f.Path == path) {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			return f, true
		}
	}
	return Failure{}, false
}

func (s *Server) indexOf(id string) int {
	for i, t := range s.todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) listTodos(c *gin.Context) {
	s.list(c, c.Query("completed"))
}

func (s *Server) listCompleted(c *gin.Context) {
	s.list(c, "true")
}

func (s *Server) list(c *gin.Context, completed string) {
	s.mu.Lock()
	out := make([]models.Task, 0, len(s.todos))
	for _, t := range s.todos {
		if completed != "" && strconv.FormatBool(t.Completed) != completed {
			continue
		}
		if p := c.Query("priority"); p != "" && !strings.EqualFold(string(t.Priority), p) {
			continue
		}
		out = append(out, t)
	}
	s.mu.Unlock()

	if c.Query("sortBy") == "date" {
		desc := c.Query("order") == "desc"
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[j].DueDate.Before(out[i].DueDate)
			}
			return out[i].DueDate.Before(out[j].DueDate)
		})
	}

	total := len(out)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	hasNext := false
	var nextPage *int
	if limit > 0 && page > 0 {
		start := (page - 1) * limit
		if start > len(out) {
			start = len(out)
		}
		end := start + limit
		if end < len(out) {
			hasNext = true
			n := page + 1
			nextPage = &n
		} else {
			end = len(out)
		}
		out = out[start:end]
	}

	wire := make([]gin.H, 0, len(out))
	for _, t := range out {
		wire = append(wire, toWire(t))
	}
	switch s.Style {
	case StyleBare:
		c.JSON(http.StatusOK, wire)
	case StyleData:
		c.JSON(http.StatusOK, gin.H{"data": wire})
	case StyleNamed:
		c.JSON(http.StatusOK, gin.H{"todos": wire})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Todos fetched",
			"data": gin.H{
				"todos":       wire,
				"totalTodos":  total,
				"hasNextPage": hasNext,
				"nextPage":    nextPage,
			},
		})
	}
}

type todoBody struct {
	Title     *string `json:"title"`
	Task      *string `json:"task"`
	Completed *bool   `json:"completed"`
	Date      *string `json:"date"`
	Priority  *string `json:"priority"`
}

func (b todoBody) title() *string {
	if b.Title != nil {
		return b.Title
	}
	return b.Task
}

func (s *Server) createTodo(c *gin.Context) {
	var body todoBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	title := body.title()
	if title == nil || strings.TrimSpace(*title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Task is required"})
		return
	}
	if body.Date == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Date is required"})
		return
	}
	due, err := models.ParseDate(*body.Date, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Date is invalid"})
		return
	}
	prio := models.PriorityLow
	if body.Priority != nil {
		if prio, err = models.ParsePriority(*body.Priority); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Priority is invalid"})
			return
		}
	}
	now := time.Now().UTC()
	uid, _ := c.Get("user")
	owner, _ := uid.(string)
	t := models.Task{
		ID:        uuid.New().String(),
		Title:     *title,
		DueDate:   due,
		Priority:  prio,
		OwnerRef:  owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.todos = append(s.todos, t)
	s.mu.Unlock()
	s.item(c, http.StatusCreated, "Todo created", t)
}

func (s *Server) updateTodo(c *gin.Context) {
	id := c.Param("id")
	var body todoBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"message": "Todo not found"})
		return
	}
	t := s.todos[i]
	if title := body.title(); title != nil {
		t.Title = *title
	}
	if body.Completed != nil {
		t.Completed = *body.Completed
	}
	if body.Date != nil {
		due, err := models.ParseDate(*body.Date, time.Local)
		if err != nil {
			s.mu.Unlock()
			c.JSON(http.StatusBadRequest, gin.H{"message": "Date is invalid"})
			return
		}
		t.DueDate = due
	}
	if body.Priority != nil {
		p, err := models.ParsePriority(*body.Priority)
		if err != nil {
			s.mu.Unlock()
			c.JSON(http.StatusBadRequest, gin.H{"message": "Priority is invalid"})
			return
		}
		t.Priority = p
	}
	t.UpdatedAt = time.Now().UTC()
	s.todos[i] = t
	s.mu.Unlock()
	s.item(c, http.StatusOK, "Todo updated", t)
}

func (s *Server) deleteTodo(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	i := s.indexOf(id)
	if i >= 0 {
		s.todos = append(s.todos[:i], s.todos[i+1:]...)
	}
	s.mu.Unlock()
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Todo not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Todo deleted"})
}

func (s *Server) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[body.Email]
	s.mu.Unlock()
	if !ok || acc.password != body.Password {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}
	token := s.Token(acc.user.ID, time.Hour)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"data":    gin.H{"token": token, "user": acc.user},
	})
}

func (s *Server) register(c *gin.Context) {
	var body models.RegisterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[body.Email]; exists {
		c.JSON(http.StatusConflict, gin.H{"message": "Email already registered"})
		return
	}
	s.accounts[body.Email] = account{
		user:     models.User{ID: uuid.New().String(), Name: body.Name, Email: body.Email},
		password: body.Password,
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registered", "statusCode": http.StatusCreated})
}

func (s *Server) item(c *gin.Context, status int, message string, t models.Task) {
	w := toWire(t)
	switch s.Style {
	case StyleBare:
		c.JSON(status, w)
	case StyleData:
		c.JSON(status, gin.H{"data": w})
	case StyleNamed:
		c.JSON(status, gin.H{"todo": w})
	default:
		c.JSON(status, gin.H{"message": message, "data": w})
	}
}

func toWire(t models.Task) gin.H {
	return gin.H{
		"id":        t.ID,
		"task":      t.Title,
		"completed": t.Completed,
		"date":      t.DueDate.String(),
		"priority":  t.Priority,
		"userId":    t.OwnerRef,
		"createdAt": t.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": t.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func newBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
