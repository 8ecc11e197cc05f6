package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"github.com/MarcoPoloResearchLab/keepnote/internal/config"
	"github.com/MarcoPoloResearchLab/keepnote/internal/database"
	"github.com/MarcoPoloResearchLab/keepnote/internal/email"
	"github.com/MarcoPoloResearchLab/keepnote/internal/logging"
	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"github.com/MarcoPoloResearchLab/keepnote/internal/reminders"
	"github.com/MarcoPoloResearchLab/keepnote/internal/requests"
	"github.com/MarcoPoloResearchLab/keepnote/internal/server"
	"github.com/MarcoPoloResearchLab/keepnote/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "keepnote-api",
		Short: "KeepNote backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("http.allowed_origins"), "CORS allowed origins")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres DSN")
	cmd.PersistentFlags().String("keycloak-url", defaults.GetString("keycloak.url"), "Keycloak base URL")
	cmd.PersistentFlags().String("keycloak-realm", defaults.GetString("keycloak.realm"), "Keycloak realm")
	cmd.PersistentFlags().String("keycloak-client-id", defaults.GetString("keycloak.client_id"), "Keycloak client ID")
	cmd.PersistentFlags().String("dev-signing-secret", "", "Accept locally issued HS256 tokens signed with this secret")
	cmd.PersistentFlags().Duration("reminder-lookahead", defaults.GetDuration("reminders.lookahead"), "How far ahead due reminders are reported")
	cmd.PersistentFlags().String("postmark-token", "", "Postmark server token; enables reminder emails")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "keycloak.url", "keycloak-url")
	bindFlag(cmd, "keycloak.realm", "keycloak-realm")
	bindFlag(cmd, "keycloak.client_id", "keycloak-client-id")
	bindFlag(cmd, "auth.dev_signing_secret", "dev-signing-secret")
	bindFlag(cmd, "reminders.lookahead", "reminder-lookahead")
	bindFlag(cmd, "email.postmark_token", "postmark-token")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	config.LoadDotEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	verifier, err := buildVerifier(appConfig, logger)
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:          db,
		Clock:             time.Now,
		Logger:            logger,
		ReminderLookahead: appConfig.ReminderLookahead,
	})
	if err != nil {
		return err
	}
	requestsService, err := requests.NewService(requests.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:        verifier,
		NotesService:    notesService,
		RequestsService: requestsService,
		UsersService:    usersService,
		AllowedOrigins:  appConfig.AllowedOrigins,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if appConfig.Email.Enabled() {
		mailer := email.NewClient(appConfig.Email.PostmarkToken, appConfig.Email.FromAddress,
			email.WithEndpoint(appConfig.Email.PostmarkURL))
		scheduler, err := reminders.NewScheduler(reminders.Config{
			Notes:     notesService,
			Approvals: requestsService,
			Sender:    mailer,
			Interval:  appConfig.Email.Interval,
			Window:    appConfig.Email.Window,
			Logger:    logger.Named("reminders"),
		})
		if err != nil {
			return err
		}
		scheduler.Start(signalCtx)
		defer scheduler.Stop()
		logger.Info("reminder emails enabled",
			zap.Duration("interval", appConfig.Email.Interval),
			zap.Duration("window", appConfig.Email.Window))
	} else {
		logger.Info("reminder emails disabled: no postmark token configured")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildVerifier trusts the Keycloak realm and, when a dev signing secret is
// configured, locally issued tokens as well.
func buildVerifier(appConfig config.AppConfig, logger *zap.Logger) (auth.TokenVerifier, error) {
	keycloakVerifier, err := auth.NewKeycloakVerifier(auth.KeycloakVerifierConfig{
		Issuer:   appConfig.Keycloak.RealmURL(),
		ClientID: appConfig.Keycloak.ClientID,
		JWKSURL:  appConfig.Keycloak.JWKSURL(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(appConfig.DevSigningSecret) == "" {
		return keycloakVerifier, nil
	}

	devIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.DevSigningSecret),
		Issuer:        appConfig.DevTokenIssuer,
		ClientID:      appConfig.Keycloak.ClientID,
	})
	if err != nil {
		return nil, err
	}
	logger.Warn("development token issuer enabled", zap.String("issuer", appConfig.DevTokenIssuer))
	return auth.ChainVerifier{keycloakVerifier, devIssuer}, nil
}

// newIssueTokenCommand mints a token for the development issuer so the API can
// be exercised without a running identity provider.
func newIssueTokenCommand() *cobra.Command {
	var (
		subject string
		name    string
		mail    string
		admin   bool
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a development access token",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if strings.TrimSpace(appConfig.DevSigningSecret) == "" {
				return errors.New("auth.dev_signing_secret is required to issue tokens")
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.DevSigningSecret),
				Issuer:        appConfig.DevTokenIssuer,
				ClientID:      appConfig.Keycloak.ClientID,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			identity := auth.Claims{Subject: subject, Name: name, Email: mail, Role: auth.RoleNone}
			if admin {
				identity.Role = auth.RoleAdmin
			}
			token, expiresAt, err := issuer.IssueToken(cmd.Context(), identity)
			if err != nil {
				return err
			}
			cmd.PrintErrf("token expires at %s\n", expiresAt.Format(time.RFC3339))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject (user id) of the token")
	cmd.Flags().StringVar(&name, "name", "", "Preferred username")
	cmd.Flags().StringVar(&mail, "email", "", "Email address")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
