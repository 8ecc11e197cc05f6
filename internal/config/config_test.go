package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.ReminderLookahead != 5*time.Minute {
		t.Fatalf("unexpected lookahead %s", cfg.ReminderLookahead)
	}
	if cfg.Email.Enabled() {
		t.Fatalf("expected email job to be disabled without a token")
	}
	if cfg.Keycloak.JWKSURL() != "http://localhost:6060/realms/fastApi/protocol/openid-connect/certs" {
		t.Fatalf("unexpected jwks url %s", cfg.Keycloak.JWKSURL())
	}
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.driver", "postgres")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected missing dsn to fail validation")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.driver", "oracle")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected unknown driver to fail validation")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KEEPNOTE_EMAIL_POSTMARK_TOKEN", "server-token")
	t.Setenv("KEEPNOTE_HTTP_ADDRESS", "127.0.0.1:9000")
	configViper := NewViper()

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected address %s", cfg.HTTPAddress)
	}
	if !cfg.Email.Enabled() {
		t.Fatalf("expected email job to be enabled")
	}
}

func TestLoadClientRequiresToken(t *testing.T) {
	configViper := NewViper()

	if _, err := LoadClient(configViper); err == nil {
		t.Fatalf("expected missing token to fail")
	}

	configViper.Set("client.access_token", "abc")
	cfg, err := LoadClient(configViper)
	if err != nil {
		t.Fatalf("unexpected client load error: %v", err)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval)
	}
	if cfg.Keycloak.TokenURL() != "http://localhost:6060/realms/fastApi/protocol/openid-connect/token" {
		t.Fatalf("unexpected token url %s", cfg.Keycloak.TokenURL())
	}
}
