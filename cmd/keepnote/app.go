package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"github.com/MarcoPoloResearchLab/keepnote/internal/client"
	"github.com/MarcoPoloResearchLab/keepnote/internal/config"
	"github.com/MarcoPoloResearchLab/keepnote/internal/logging"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"go.uber.org/zap"
)

var errAdminOnly = errors.New("this command requires the admin role")

// app is the application-wide context shared by every command.
type app struct {
	config  config.ClientConfig
	logger  *zap.Logger
	session *auth.Session
	api     *client.Client
	out     io.Writer
}

func (a *app) init(cfg config.ClientConfig, out io.Writer) error {
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	session, err := newSession(cfg, httpClient, logger)
	if err != nil {
		return err
	}
	api, err := client.New(client.Config{
		BaseURL:    cfg.BaseURL,
		Tokens:     session,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	a.config = cfg
	a.logger = logger
	a.session = session
	a.api = api
	a.out = out
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newSession builds the session around a refreshing token source when a
// refresh token is configured and a static one otherwise. A failed refresh
// logs the session out.
func newSession(cfg config.ClientConfig, httpClient *http.Client, logger *zap.Logger) (*auth.Session, error) {
	if cfg.RefreshToken == "" {
		return auth.NewSession(auth.SessionConfig{
			Tokens:   auth.StaticTokenSource(cfg.AccessToken),
			ClientID: cfg.Keycloak.ClientID,
		}), nil
	}

	keycloak := auth.KeycloakTokenClient{
		TokenURL:   cfg.Keycloak.TokenURL(),
		LogoutURL:  cfg.Keycloak.LogoutURL(),
		ClientID:   cfg.Keycloak.ClientID,
		HTTPClient: httpClient,
	}
	var session *auth.Session
	tokens, err := auth.NewRefreshingTokenSource(auth.RefreshingTokenSourceConfig{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		Refresher:    keycloak,
		MinValidity:  cfg.TokenMinValidity,
		OnFailure: func(ctx context.Context) {
			logger.Warn("token refresh failed, logging out")
			if err := session.Logout(ctx); err != nil {
				logger.Warn("logout failed", zap.Error(err))
			}
		},
	})
	if err != nil {
		return nil, err
	}
	session = auth.NewSession(auth.SessionConfig{
		Tokens:   tokens,
		ClientID: cfg.Keycloak.ClientID,
		Logout: func(ctx context.Context) error {
			return keycloak.Logout(ctx, tokens.RefreshToken())
		},
	})
	return session, nil
}

func (a *app) requireAdmin(ctx context.Context) error {
	claims, err := a.session.Claims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsAdmin() {
		return errAdminOnly
	}
	return nil
}

// findNote looks a note up among the active and archived listings.
func (a *app) findNote(ctx context.Context, id int64) (notes.Note, error) {
	active, err := a.api.Notes().List(ctx)
	if err != nil {
		return notes.Note{}, err
	}
	archived, err := a.api.Notes().ListArchived(ctx)
	if err != nil {
		return notes.Note{}, err
	}
	for _, note := range append(active, archived...) {
		if note.ID == id {
			return note, nil
		}
	}
	return notes.Note{}, fmt.Errorf("note %d: %w", id, notes.ErrNotFound)
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}
