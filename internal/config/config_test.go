package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DEFAULT_SERVICE_COST", "")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Errorf("expected DEV by default")
	}
	if cfg.DefaultServiceCost != 300 {
		t.Errorf("expected default cost 300, got %v", cfg.DefaultServiceCost)
	}
	if cfg.WebhookDedupeTTL != 24*time.Hour {
		t.Errorf("expected 24h dedupe ttl, got %v", cfg.WebhookDedupeTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEFAULT_SERVICE_COST", "12.5")

	cfg := Load()
	if cfg.IsDev() {
		t.Errorf("expected PROD")
	}
	if cfg.RunMigrations {
		t.Errorf("expected migrations disabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.DefaultServiceCost != 12.5 {
		t.Errorf("expected 12.5, got %v", cfg.DefaultServiceCost)
	}
}

func TestLoadDotEnv_EnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport LISTAS_TEST_A=\"quoted value\"\nLISTAS_TEST_B=plain # trailing\nLISTAS_TEST_C=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LISTAS_TEST_C", "from-env")
	os.Unsetenv("LISTAS_TEST_A")
	os.Unsetenv("LISTAS_TEST_B")
	t.Cleanup(func() {
		os.Unsetenv("LISTAS_TEST_A")
		os.Unsetenv("LISTAS_TEST_B")
	})

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("LISTAS_TEST_A"); got != "quoted value" {
		t.Errorf("A = %q", got)
	}
	if got := os.Getenv("LISTAS_TEST_B"); got != "plain" {
		t.Errorf("B = %q", got)
	}
	if got := os.Getenv("LISTAS_TEST_C"); got != "from-env" {
		t.Errorf("C = %q", got)
	}
}
