package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds the client configuration. Values come from defaults, then an
// optional config file, then environment variables.
type Config struct {
	APIBaseURL     string
	APITimeout     time.Duration
	TitleField     string
	UpdateMethod   string
	CompletedRoute bool

	PageSize  int
	ListSort  string
	ListOrder string

	BreakerMaxFailures uint32
	BreakerOpen        time.Duration

	SessionBackend string // memory, file or redis
	SessionFile    string
	RedisURL       string
	RedisPoolSize  int
	SessionKey     string
	SessionTTL     time.Duration

	KafkaBrokers []string
	JournalTopic string

	LogLevel  string
	LogFormat string
}

var (
	cfg     *Config
	cfgErr  error
	cfgOnce sync.Once
)

// Init loads the config once. An empty path falls back to CONFIG_FILE.
func Init(path string) (*Config, error) {
	cfgOnce.Do(func() {
		if path == "" {
			path = os.Getenv("CONFIG_FILE")
		}
		cfg, cfgErr = Load(path)
	})
	return cfg, cfgErr
}

// Get returns the application config. If the config file could not be read
// it falls back to defaults and environment.
func Get() *Config {
	c, err := Init("")
	if err != nil || c == nil {
		c, _ = Load("")
	}
	return c
}

// Load builds a Config without touching the singleton. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	c := &Config{
		APIBaseURL:         strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		APITimeout:         seconds(v, "API_TIMEOUT_SEC", 10),
		TitleField:         strings.ToLower(v.GetString("API_TITLE_FIELD")),
		UpdateMethod:       strings.ToUpper(v.GetString("API_UPDATE_METHOD")),
		CompletedRoute:     v.GetBool("API_COMPLETED_ROUTE"),
		PageSize:           positive(v.GetInt("LIST_PAGE_SIZE"), 0),
		ListSort:           v.GetString("LIST_SORT"),
		ListOrder:          strings.ToLower(v.GetString("LIST_ORDER")),
		BreakerMaxFailures: uint32(positive(v.GetInt("BREAKER_MAX_FAILURES"), 5)),
		BreakerOpen:        seconds(v, "BREAKER_OPEN_SEC", 30),
		SessionBackend:     strings.ToLower(v.GetString("SESSION_BACKEND")),
		SessionFile:        v.GetString("SESSION_FILE"),
		RedisURL:           v.GetString("REDIS_URL"),
		RedisPoolSize:      positive(v.GetInt("REDIS_POOL_SIZE"), 10),
		SessionKey:         v.GetString("SESSION_KEY"),
		SessionTTL:         seconds(v, "SESSION_TTL_SEC", 0),
		KafkaBrokers:       list(v, "KAFKA_BROKERS"),
		JournalTopic:       v.GetString("KAFKA_JOURNAL_TOPIC"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}
	switch c.SessionBackend {
	case "memory", "file", "redis":
	default:
		return nil, fmt.Errorf("SESSION_BACKEND must be memory, file or redis, got %q", c.SessionBackend)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("API_TIMEOUT_SEC", 10)
	v.SetDefault("API_TITLE_FIELD", "title")
	v.SetDefault("API_UPDATE_METHOD", "PUT")
	v.SetDefault("API_COMPLETED_ROUTE", false)
	v.SetDefault("LIST_PAGE_SIZE", 0)
	v.SetDefault("LIST_SORT", "date")
	v.SetDefault("LIST_ORDER", "asc")
	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_OPEN_SEC", 30)
	v.SetDefault("SESSION_BACKEND", "file")
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("SESSION_KEY", "taskflow:session")
	v.SetDefault("SESSION_TTL_SEC", 0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_JOURNAL_TOPIC", "todo-journal")
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_FORMAT", "text")
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "taskflow", "session.json")
}

func seconds(v *viper.Viper, key string, def int) time.Duration {
	n := v.GetInt(key)
	if n < 0 || (n == 0 && def > 0) {
		n = def
	}
	return time.Duration(n) * time.Second
}

func positive(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// list accepts a YAML list or a comma separated string.
func list(v *viper.Viper, key string) []string {
	var raw []string
	if s, ok := v.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = v.GetStringSlice(key)
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
