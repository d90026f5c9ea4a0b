package apiclient

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"taskflow/internal/models"
	"taskflow/internal/normalize"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=3"`
}

// Login exchanges credentials for a bearer token and the user's profile.
func (c *Client) Login(ctx context.Context, email, password string) (string, models.User, error) {
	in := loginRequest{Email: strings.TrimSpace(email), Password: password}
	if err := check(&in); err != nil {
		return "", models.User{}, err
	}
	body, err := c.do(ctx, http.MethodPost, "/auth/login", nil, in, "")
	if err != nil {
		// A bad password answers 400 on this API; say so plainly.
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Status == http.StatusBadRequest {
			ve.Message = "Invalid email or password"
		}
		return "", models.User{}, err
	}
	return normalize.Login(body)
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, r models.RegisterRequest) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if err := check(&r); err != nil {
		return err
	}
	_, err := c.do(ctx, http.MethodPost, "/auth/register", nil, r, "")
	return err
}
