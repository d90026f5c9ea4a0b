package main

import (
	"context"
	"errors"
	"os"
	"time"

	"taskflow/internal/models"
	"taskflow/internal/session"

	"github.com/spf13/cobra"
)

var nowFunc = time.Now

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Long:  `Log in with email and password. The password may also come from $TASKCTL_PASSWORD.`,
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")

	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		if password == "" {
			password = os.Getenv("TASKCTL_PASSWORD")
		}
		token, user, err := a.client.Login(ctx, email, password)
		if err != nil {
			return err
		}
		if err := a.store.Save(ctx, session.Session{Token: token, User: user}); err != nil {
			return err
		}
		a.printf("Logged in as %s <%s>\n", user.Name, user.Email)
		return nil
	})
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var req models.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "display name (required)")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password, at least 3 characters (required)")
	cmd.Flags().StringVar(&req.ConfirmPassword, "confirm", "", "password again (required)")
	for _, f := range []string{"name", "email", "password", "confirm"} {
		_ = cmd.MarkFlagRequired(f)
	}

	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		if err := a.client.Register(ctx, req); err != nil {
			return err
		}
		a.printf("Account created for %s. Run taskctl login to continue.\n", req.Email)
		return nil
	})
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		if err := a.store.Clear(ctx); err != nil {
			return err
		}
		a.printf("Logged out.\n")
		return nil
	})
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		s, err := a.store.Load(ctx)
		if errors.Is(err, session.ErrNoSession) {
			a.printf("Not logged in.\n")
			return nil
		}
		if err != nil {
			return err
		}
		a.printf("%s <%s> (id %s)\n", s.User.Name, s.User.Email, s.User.ID)
		if c, err := session.ParseClaims(s.Token); err == nil && !c.ExpiresAt.IsZero() {
			if s.Authenticated(nowFunc()) {
				a.printf("Session expires %s\n", c.ExpiresAt.Local().Format(time.RFC1123))
			} else {
				a.printf("Session expired %s\n", c.ExpiresAt.Local().Format(time.RFC1123))
			}
		}
		return nil
	})
	return cmd
}
