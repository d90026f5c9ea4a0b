package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskflow/internal/apiclient"
	"taskflow/internal/apitest"
	"taskflow/internal/config"
	"taskflow/internal/engine"
	"taskflow/internal/journal"
	"taskflow/internal/models"
	"taskflow/internal/normalize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupAPI starts a fake API with one account and points the CLI at it with
// a throwaway session file.
func setupAPI(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.RequireAuth = true
	srv.AddAccount(models.User{ID: "u1", Name: "Ana", Email: "ana@example.com"}, "secret")

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("SESSION_BACKEND", "file")
	t.Setenv("SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LIST_PAGE_SIZE", "0")
	t.Setenv("LOG_LEVEL", "error")
	return srv
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCmd(config.Load)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func login(t *testing.T) {
	t.Helper()
	out, _, err := execute(t, "login", "--email", "ana@example.com", "--password", "secret")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as Ana <ana@example.com>")
}

func TestTaskLifecycle(t *testing.T) {
	srv := setupAPI(t)
	login(t)

	out, _, err := execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana <ana@example.com> (id u1)")
	assert.Contains(t, out, "Session expires")

	out, _, err = execute(t, "add", "--title", "Buy milk", "--priority", "high")
	require.NoError(t, err)
	assert.Contains(t, out, "Created [ ]")
	require.Len(t, srv.Todos(), 1)
	id := srv.Todos()[0].ID
	assert.Equal(t, "u1", srv.Todos()[0].OwnerRef)

	_, _, err = execute(t, "add", "--title", "Buy eggs", "--date", "tomorrow")
	require.NoError(t, err)

	out, _, err = execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Buy milk")
	assert.NotContains(t, out, "Buy eggs")

	out, _, err = execute(t, "list", "--tab", "upcoming")
	require.NoError(t, err)
	assert.Contains(t, out, "Buy eggs")

	out, _, err = execute(t, "toggle", id)
	require.NoError(t, err)
	assert.Contains(t, out, "[x] "+id)

	out, _, err = execute(t, "list", "--tab", "completed", "--search", "MILK", "--priority", "HIGH")
	require.NoError(t, err)
	assert.Contains(t, out, "Buy milk")

	out, _, err = execute(t, "edit", id, "--title", "Buy oat milk", "--undone")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] "+id+"  Buy oat milk")

	out, _, err = execute(t, "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)
	require.Len(t, srv.Todos(), 1)

	out, _, err = execute(t, "list", "--tab", "all")
	require.NoError(t, err)
	assert.NotContains(t, out, "oat milk")
	assert.Contains(t, out, "Buy eggs")

	out, _, err = execute(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")
	out, _, err = execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in.")
}

func TestToggleFailurePrintsOneNotice(t *testing.T) {
	srv := setupAPI(t)
	srv.Seed(models.Task{ID: "t1", Title: "Water plants", DueDate: models.DateOf(time.Now())})
	login(t)

	srv.Fail(apitest.Failure{Method: http.MethodPut, Status: http.StatusInternalServerError, Message: "db down"})
	_, stderr, err := execute(t, "toggle", "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errReported))
	assert.Equal(t, 1, strings.Count(stderr, "error: Server error, please try again later. (status: 500)"))
	assert.False(t, srv.Todos()[0].Completed)

	out, _, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] t1")
}

func TestRepeatDeleteSucceeds(t *testing.T) {
	srv := setupAPI(t)
	srv.Seed(models.Task{ID: "t1", Title: "x"})
	login(t)

	_, _, err := execute(t, "rm", "t1")
	require.NoError(t, err)
	out, stderr, err := execute(t, "rm", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted t1")
	assert.Empty(t, stderr)
}

func TestUnauthorizedClearsSession(t *testing.T) {
	srv := setupAPI(t)
	login(t)

	srv.Fail(apitest.Failure{Method: http.MethodGet, Path: "/todos", Status: http.StatusUnauthorized, Message: "jwt expired"})
	_, stderr, err := execute(t, "list")
	require.Error(t, err)
	assert.True(t, apiclient.IsAuth(err))
	assert.Contains(t, stderr, "Your session has expired, please log in again.")

	out, _, err := execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in.")
}

func TestCommandsRequireLogin(t *testing.T) {
	setupAPI(t)

	for _, args := range [][]string{{"list"}, {"add", "--title", "x"}, {"toggle", "t1"}, {"rm", "t1"}} {
		_, _, err := execute(t, args...)
		require.Error(t, err, "%v", args)
		assert.Contains(t, err.Error(), "not logged in")
	}
}

func TestLoginRejected(t *testing.T) {
	setupAPI(t)

	_, _, err := execute(t, "login", "--email", "ana@example.com", "--password", "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", describe(err))
}

func TestRegisterThenLogin(t *testing.T) {
	setupAPI(t)

	out, _, err := execute(t, "register", "--name", "Bo", "--email", "bo@example.com", "--password", "pw123", "--confirm", "pw123")
	require.NoError(t, err)
	assert.Contains(t, out, "Account created for bo@example.com")

	out, _, err = execute(t, "login", "-e", "bo@example.com", "-p", "pw123")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Bo")

	_, _, err = execute(t, "register", "--name", "Bo", "--email", "bo@example.com", "--password", "pw123", "--confirm", "pw123")
	require.Error(t, err)
	var ve *apiclient.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, http.StatusConflict, ve.Status)
}

func TestInputErrors(t *testing.T) {
	setupAPI(t)
	login(t)

	_, _, err := execute(t, "list", "--tab", "overdue")
	assert.ErrorContains(t, err, "unknown tab")

	_, _, err = execute(t, "add", "--title", "x", "--priority", "urgent")
	assert.ErrorContains(t, err, "unknown priority")

	_, _, err = execute(t, "edit", "t1")
	assert.ErrorContains(t, err, "nothing to change")

	_, _, err = execute(t, "journal")
	assert.ErrorContains(t, err, "KAFKA_BROKERS")
}

func TestPagination(t *testing.T) {
	srv := setupAPI(t)
	today := models.DateOf(time.Now())
	for _, title := range []string{"a", "b", "c"} {
		srv.Seed(models.Task{Title: title, DueDate: today})
	}
	t.Setenv("LIST_PAGE_SIZE", "2")
	login(t)

	out, _, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "More tasks: taskctl list --page 2 (total 3)")

	out, _, err = execute(t, "list", "--page", "2")
	require.NoError(t, err)
	assert.NotContains(t, out, "More tasks")
	assert.Contains(t, out, "  c  ")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "This task no longer exists.", describe(&apiclient.NotFoundError{ID: "x"}))
	assert.Equal(t, "Unexpected response from server.", describe(&normalize.ShapeError{Op: "item", Reason: "no match"}))
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestFormatEntry(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	line := formatEntry(journal.Entry{Outcome: engine.Outcome{
		Op: engine.OpToggle, TaskID: "t1", RolledBack: true,
		Error: "remote call failed (status 500): db down", At: at,
	}})
	assert.Equal(t, "2026-03-14 09:30:00  toggle t1  rolled back: remote call failed (status 500): db down", line)

	line = formatEntry(journal.Entry{Outcome: engine.Outcome{Op: engine.OpLoad, OK: true, At: at}})
	assert.Equal(t, "2026-03-14 09:30:00  load  ok", line)
}
