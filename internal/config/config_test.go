package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.StoreDriver != StoreBolt {
		t.Errorf("expected bolt driver, got %q", cfg.StoreDriver)
	}
	if cfg.RefundLockTTL != 30*time.Second {
		t.Errorf("expected 30s refund lock ttl, got %s", cfg.RefundLockTTL)
	}
	if len(cfg.EnabledProviders) != 1 || cfg.EnabledProviders[0] != "sandbox" {
		t.Errorf("expected [sandbox], got %v", cfg.EnabledProviders)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOCK_WAIT_TIMEOUT", "2s")
	t.Setenv("ENABLED_PROVIDERS", "stone, rede ,sandbox")
	t.Setenv("PROVIDER_URLS", "stone=http://stone.local,rede=http://rede.local")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.LockWaitTimeout != 2*time.Second {
		t.Errorf("expected 2s, got %s", cfg.LockWaitTimeout)
	}
	if len(cfg.EnabledProviders) != 3 || cfg.EnabledProviders[1] != "rede" {
		t.Errorf("unexpected providers %v", cfg.EnabledProviders)
	}
	urls, err := cfg.ProviderURLMap()
	if err != nil {
		t.Fatalf("ProviderURLMap returned error: %v", err)
	}
	if urls["rede"] != "http://rede.local" {
		t.Errorf("unexpected url map %v", urls)
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", StorePostgres)
	t.Setenv("DATABASE_URL", "")

	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoad_RejectsBadProviderURLs(t *testing.T) {
	t.Setenv("PROVIDER_URLS", "stone")

	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected error for malformed PROVIDER_URLS")
	}
}
