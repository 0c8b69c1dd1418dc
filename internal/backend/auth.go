package backend

import (
	"context"
	"net/http"

	"github.com/fjod/storefront-gateway/internal/domain"
)

const (
	loginPath        = "/dj-rest-auth/login/"
	googleLoginPath  = "/dj-rest-auth/google/"
	tokenRefreshPath = "/dj-rest-auth/token/refresh/"
	logoutPath       = "/dj-rest-auth/logout/"
	currentUserPath  = "/dj-rest-auth/user/"
	registrationPath = "/dj-rest-auth/registration/"
)

func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthTokens, error) {
	return c.authenticate(ctx, loginPath, creds)
}

func (c *Client) GoogleLogin(ctx context.Context, in domain.GoogleLogin) (*domain.AuthTokens, error) {
	return c.authenticate(ctx, googleLoginPath, in)
}

func (c *Client) Register(ctx context.Context, in domain.Registration) (*domain.AuthTokens, error) {
	return c.authenticate(ctx, registrationPath, in)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*domain.AuthTokens, error) {
	var t domain.AuthTokens
	if err := c.call(ctx, http.MethodPost, path, "", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (c *Client) RefreshToken(ctx context.Context, refresh string) (*domain.AuthTokens, error) {
	var t domain.AuthTokens
	if err := c.call(ctx, http.MethodPost, tokenRefreshPath, "", refreshRequest{Refresh: refresh}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, http.MethodPost, logoutPath, token, struct{}{}, nil)
}

func (c *Client) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	var u domain.User
	if err := c.call(ctx, http.MethodGet, currentUserPath, token, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
