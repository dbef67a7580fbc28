package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_APP_PORT"

	// 环境变量未设置时，应该返回默认值
	_ = os.Unsetenv(key)
	if got := getEnv(key, "9000"); got != "9000" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "9000")
	}

	// 环境变量设置后，应优先返回环境变量
	t.Setenv(key, "8080")
	if got := getEnv(key, "9000"); got != "8080" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "8080")
	}
}

func TestGetEnvIntAndDuration(t *testing.T) {
	t.Setenv("TEST_INT", "nope")
	if got := getEnvInt("TEST_INT", 5); got != 5 {
		t.Fatalf("invalid int should fall back, got %d", got)
	}
	t.Setenv("TEST_INT", "7")
	if got := getEnvInt("TEST_INT", 5); got != 7 {
		t.Fatalf("getEnvInt = %d, want 7", got)
	}

	t.Setenv("TEST_DUR", "-3s")
	if got := getEnvDuration("TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("negative duration should fall back, got %s", got)
	}
	t.Setenv("TEST_DUR", "90s")
	if got := getEnvDuration("TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("getEnvDuration = %s, want 90s", got)
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_CHANNEL_ID", "123456789")
	t.Setenv("POSTGRES_DSN", "host=localhost dbname=doudou")
}

func TestLoadReadsAuthAndPorts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_PORT", "1234")
	t.Setenv("APP_BASIC_USER", "user")
	t.Setenv("APP_BASIC_PASS", "pass")
	t.Setenv("CRON_SPEC", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.AppPort != "1234" {
		t.Fatalf("AppPort = %q, want %q", cfg.AppPort, "1234")
	}
	if cfg.BasicAuthUser != "user" || cfg.BasicAuthPass != "pass" {
		t.Fatalf("BasicAuthUser/Pass not loaded correctly: %+v", cfg)
	}
	if cfg.CronSpec != "@every 45s" || cfg.ResultBuffer != 32 || cfg.ChannelID != "123456789" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("missing token should be fatal")
	}

	setRequiredEnv(t)
	t.Setenv("DISCORD_CHANNEL_ID", "general")
	if _, err := Load(); err == nil {
		t.Fatalf("non-numeric channel id should be fatal")
	}

	setRequiredEnv(t)
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("missing DSN should be fatal")
	}
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sources.yaml")
	content := `sources:
  - vendor: Acme
    url: https://acme.test/new
    extractor: scripts/acme.sh
    pattern: 'acme\.test/item/\d+'
  - vendor: Globex
    url: https://globex.test/drops
    extractor: scripts/globex.sh
    pattern: 'globex\.test/p/[a-z0-9-]+'
    input: html
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	specs, err := LoadSources(p)
	if err != nil {
		t.Fatalf("LoadSources error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d sources, want 2", len(specs))
	}
	if specs[0].Pattern != `acme\.test/item/\d+` || specs[1].Input != "html" {
		t.Fatalf("unexpected sources: %+v", specs)
	}
}

func TestLoadSourcesErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadSources(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("missing file should fail")
	}

	empty := filepath.Join(dir, "empty.yaml")
	_ = os.WriteFile(empty, []byte("sources: []\n"), 0o644)
	if _, err := LoadSources(empty); err == nil {
		t.Fatalf("empty source list should fail")
	}

	dup := filepath.Join(dir, "dup.yaml")
	_ = os.WriteFile(dup, []byte("sources:\n  - vendor: A\n  - vendor: A\n"), 0o644)
	if _, err := LoadSources(dup); err == nil {
		t.Fatalf("duplicate vendor should fail")
	}
}
