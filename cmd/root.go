package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"taskflow/internal/apiclient"
	"taskflow/internal/config"
	"taskflow/internal/engine"
	"taskflow/internal/journal"
	"taskflow/internal/models"
	"taskflow/internal/session"
	"taskflow/pkg/logger"

	"github.com/spf13/cobra"
)

// errReported marks a failure whose message was already printed as a notice.
var errReported = errors.New("reported")

type reportedError struct{ err error }

func (r reportedError) Error() string   { return r.err.Error() }
func (r reportedError) Unwrap() []error { return []error{r.err, errReported} }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

// app is what every subcommand shares. It is filled in by the root's
// PersistentPreRunE.
type app struct {
	cmd     *cobra.Command
	cfg     *config.Config
	store   session.Store
	client  *apiclient.Client
	closers []func() error
}

// NewRootCmd builds the taskctl command tree. load resolves the config file
// path; main passes config.Init, tests pass config.Load.
func NewRootCmd(load func(path string) (*config.Config, error)) *cobra.Command {
	a := &app{}
	var configPath string

	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Manage your to-do list from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cmd = cmd
			cfg, err := load(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger.Setup(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML, JSON or .env); defaults to $CONFIG_FILE")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newListCmd(a),
		newAddCmd(a),
		newToggleCmd(a),
		newEditCmd(a),
		newRmCmd(a),
		newJournalCmd(a),
	)
	return root
}

func (a *app) closeLater(fn func() error) { a.closers = append(a.closers, fn) }

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.cmd.OutOrStdout(), format, args...)
}

func (a *app) eprintf(format string, args ...any) {
	fmt.Fprintf(a.cmd.ErrOrStderr(), format, args...)
}

func (a *app) open(ctx context.Context) error {
	switch a.cfg.SessionBackend {
	case "memory":
		a.store = session.NewMemoryStore()
	case "redis":
		rs, err := session.NewRedisStore(ctx, session.RedisOptions{
			URL:      a.cfg.RedisURL,
			PoolSize: a.cfg.RedisPoolSize,
			Key:      a.cfg.SessionKey,
			TTL:      a.cfg.SessionTTL,
		})
		if err != nil {
			return err
		}
		a.store = rs
		a.closeLater(rs.Close)
	default:
		a.store = session.NewFileStore(a.cfg.SessionFile)
	}

	client, err := apiclient.New(apiclient.Options{
		BaseURL:            a.cfg.APIBaseURL,
		Timeout:            a.cfg.APITimeout,
		TitleField:         a.cfg.TitleField,
		UpdateMethod:       a.cfg.UpdateMethod,
		CompletedRoute:     a.cfg.CompletedRoute,
		BreakerMaxFailures: a.cfg.BreakerMaxFailures,
		BreakerOpenTimeout: a.cfg.BreakerOpen,
		HTTPClient:         &http.Client{Timeout: a.cfg.APITimeout},
	}, apiclient.TokenFunc(func(ctx context.Context) (string, error) {
		return session.Token(ctx, a.store)
	}))
	if err != nil {
		return err
	}
	a.client = client
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// run wraps a RunE body. It drops the stored session when the server rejects
// the credential and releases resources even when the body fails.
func (a *app) run(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		err := fn(ctx, args)
		if apiclient.IsAuth(err) {
			if cerr := a.store.Clear(ctx); cerr != nil {
				logger.Warn(ctx, "Clearing session failed", "error", cerr)
			}
			logger.Info(ctx, "Session cleared after authentication failure")
		}
		if err != nil {
			_ = a.close()
		}
		return err
	}
}

// engine builds an Engine for one command. Failures are printed as notices,
// and outcomes go to Kafka when brokers are configured.
func (a *app) engine(ctx context.Context, q models.ListQuery) *engine.Engine {
	opts := engine.Options{
		Query: q,
		Notify: func(n engine.Notice) {
			a.eprintf("error: %s\n", n.Message)
		},
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		user := ""
		if s, err := a.store.Load(ctx); err == nil {
			user = s.User.ID
		}
		p := journal.NewPublisher(ctx, a.cfg.KafkaBrokers, a.cfg.JournalTopic, user)
		a.closeLater(p.Close)
		opts.Journal = p
	}
	return engine.New(a.client, opts)
}

// requireLogin fails fast when there is no usable session.
func (a *app) requireLogin(ctx context.Context) (session.Session, error) {
	s, err := a.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return session.Session{}, errors.New("not logged in; run taskctl login")
	}
	if err != nil {
		return session.Session{}, err
	}
	if !s.Authenticated(nowFunc()) {
		_ = a.store.Clear(ctx)
		return session.Session{}, &apiclient.AuthError{Message: "token expired"}
	}
	return s, nil
}
