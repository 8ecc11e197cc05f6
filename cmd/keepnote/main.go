package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/keepnote/internal/auth"
	"github.com/MarcoPoloResearchLab/keepnote/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	state := &app{}
	rootCmd := &cobra.Command{
		Use:           "keepnote",
		Short:         "KeepNote command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			clientConfig, err := config.LoadClient(viper.GetViper())
			if err != nil {
				return err
			}
			return state.init(clientConfig, cmd.OutOrStdout())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			state.close()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newWhoAmICommand(state),
		newLogoutCommand(state),
		newNotesCommand(state),
		newRequestsCommand(state),
		newWatchCommand(state),
	)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, auth.ErrAuthentication) {
			fmt.Fprintln(os.Stderr, "error: session expired or invalid, log in again and provide a fresh token")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("base-url", defaults.GetString("client.base_url"), "KeepNote API base URL")
	cmd.PersistentFlags().String("access-token", "", "Bearer access token")
	cmd.PersistentFlags().String("refresh-token", "", "Keycloak refresh token")
	cmd.PersistentFlags().String("keycloak-url", defaults.GetString("keycloak.url"), "Keycloak base URL")
	cmd.PersistentFlags().String("keycloak-realm", defaults.GetString("keycloak.realm"), "Keycloak realm")
	cmd.PersistentFlags().String("keycloak-client-id", defaults.GetString("keycloak.client_id"), "Keycloak client ID")
	cmd.PersistentFlags().Duration("poll-interval", defaults.GetDuration("client.poll_interval"), "Reminder polling interval")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")

	bindFlag(cmd, "client.base_url", "base-url")
	bindFlag(cmd, "client.access_token", "access-token")
	bindFlag(cmd, "client.refresh_token", "refresh-token")
	bindFlag(cmd, "keycloak.url", "keycloak-url")
	bindFlag(cmd, "keycloak.realm", "keycloak-realm")
	bindFlag(cmd, "keycloak.client_id", "keycloak-client-id")
	bindFlag(cmd, "client.poll_interval", "poll-interval")
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
