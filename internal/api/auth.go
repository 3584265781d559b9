package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type LoginRequest struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token. Username may be an email
// address or a user name.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("username", req.Username)
	form.Set("password", req.Password)

	var tok TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", &tok)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, NewUnauthorizedError()
	}

	return &tok, nil
}
