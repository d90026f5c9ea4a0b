package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", c.APIBaseURL)
	assert.Equal(t, 10*time.Second, c.APITimeout)
	assert.Equal(t, "title", c.TitleField)
	assert.Equal(t, "PUT", c.UpdateMethod)
	assert.Equal(t, uint32(5), c.BreakerMaxFailures)
	assert.Equal(t, 30*time.Second, c.BreakerOpen)
	assert.Equal(t, "file", c.SessionBackend)
	assert.NotEmpty(t, c.SessionFile)
	assert.Empty(t, c.KafkaBrokers)
	assert.Equal(t, "todo-journal", c.JournalTopic)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://todo.example.com/api/")
	t.Setenv("API_TIMEOUT_SEC", "3")
	t.Setenv("API_UPDATE_METHOD", "patch")
	t.Setenv("API_COMPLETED_ROUTE", "true")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LIST_PAGE_SIZE", "-4")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://todo.example.com/api", c.APIBaseURL)
	assert.Equal(t, 3*time.Second, c.APITimeout)
	assert.Equal(t, "PATCH", c.UpdateMethod)
	assert.True(t, c.CompletedRoute)
	assert.Equal(t, "redis", c.SessionBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, 0, c.PageSize)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
API_BASE_URL: http://api.internal:9000
API_TITLE_FIELD: task
SESSION_BACKEND: memory
KAFKA_BROKERS:
  - a:9092
  - b:9092
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.internal:9000", c.APIBaseURL)
	assert.Equal(t, "task", c.TitleField)
	assert.Equal(t, "memory", c.SessionBackend)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.KafkaBrokers)

	t.Setenv("API_TITLE_FIELD", "title")
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "title", c.TitleField, "environment wins over the file")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("SESSION_BACKEND", "postgres")
	_, err = Load("")
	assert.Error(t, err)
}
