package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/auth"
	"github.com/pitabwire/console/model"
)

// ErrNoSession is returned by auth calls on a client built without a session.
var ErrNoSession = errors.New("api: client has no auth session")

// Login exchanges credentials for a token pair and stores it in the session.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*model.User, error) {
	if c.session == nil {
		return nil, ErrNoSession
	}
	var problems []model.FieldError
	if req.Email == "" {
		problems = append(problems, model.FieldError{Field: "email", Code: model.RuleRequired, Message: "Email is required"})
	}
	if req.Password == "" {
		problems = append(problems, model.FieldError{Field: "password", Code: model.RuleRequired, Message: "Password is required"})
	}
	if len(problems) > 0 {
		return nil, model.NewValidationError(problems)
	}

	var resp model.TokenResponse
	if _, err := c.Do(ctx, Call{
		Resource:  "auth",
		Method:    http.MethodPost,
		Path:      c.authCfg.LoginPath,
		Body:      req,
		Result:    &resp,
		Anonymous: true,
	}); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("api: login response carried no access token")
	}
	if err := c.session.Set(auth.FromResponse(resp)); err != nil {
		return nil, fmt.Errorf("api: storing tokens: %w", err)
	}
	c.logger.Info("api: logged in", zap.String("email", req.Email))
	return resp.User, nil
}

// Logout revokes the refresh token server side and always clears the local
// credentials, even if the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	if c.session == nil {
		return ErrNoSession
	}
	tokens := c.session.Tokens()
	var callErr error
	if !tokens.Empty() {
		_, callErr = c.Do(ctx, Call{
			Resource: "auth",
			Method:   http.MethodPost,
			Path:     c.authCfg.LogoutPath,
			Body:     map[string]string{"refreshToken": tokens.RefreshToken},
		})
	}
	if err := c.session.Clear(); err != nil {
		return fmt.Errorf("api: clearing tokens: %w", err)
	}
	c.logger.Info("api: logged out")
	if callErr != nil && !model.IsAuthExpired(callErr) {
		return callErr
	}
	return nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var user model.User
	_, err := c.Do(ctx, Call{Resource: "auth", Method: http.MethodGet, Path: c.authCfg.MePath, Result: &user})
	return user, err
}

// Refresh implements auth.Refresher against POST {refresh_path}. It is
// anonymous so a rejected refresh token never recurses into another refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	var resp model.TokenResponse
	if _, err := c.Do(ctx, Call{
		Resource:  "auth",
		Method:    http.MethodPost,
		Path:      c.authCfg.RefreshPath,
		Body:      map[string]string{"refreshToken": refreshToken},
		Result:    &resp,
		Anonymous: true,
	}); err != nil {
		return auth.Tokens{}, err
	}
	if resp.AccessToken == "" {
		return auth.Tokens{}, fmt.Errorf("api: refresh response carried no access token")
	}
	return auth.FromResponse(resp), nil
}
