package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("api port = %d", cfg.API.Port)
	}
	if cfg.OTP.TTL != 5*time.Minute || cfg.OTP.MaxPerHour != 5 {
		t.Fatalf("unexpected otp defaults %+v", cfg.OTP)
	}
	if cfg.Certificate.Engine != "pdf" || cfg.Certificate.DateFormat != "1/2/2006" {
		t.Fatalf("unexpected certificate defaults %+v", cfg.Certificate)
	}
	if cfg.Mail.Driver != "log" {
		t.Fatalf("mail driver = %q", cfg.Mail.Driver)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := strings.Join([]string{
		"API_PORT=9090",
		"CERTIFICATE_ENGINE=chromium",
		"CERTIFICATE_VERIFY_BASE_URL=https://certs.example.org",
		"OTP_TTL=2m",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	// 环境变量优先于 .env 文件。
	t.Setenv("API_PORT", "7070")
	t.Cleanup(func() {
		for _, key := range []string{"CERTIFICATE_ENGINE", "CERTIFICATE_VERIFY_BASE_URL", "OTP_TTL"} {
			os.Unsetenv(key)
		}
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 7070 {
		t.Fatalf("api port = %d, want env override", cfg.API.Port)
	}
	if cfg.Certificate.Engine != "chromium" || cfg.Certificate.VerifyBaseURL != "https://certs.example.org" {
		t.Fatalf("unexpected certificate config %+v", cfg.Certificate)
	}
	if cfg.OTP.TTL != 2*time.Minute {
		t.Fatalf("otp ttl = %v", cfg.OTP.TTL)
	}
}

func TestLoadRejectsBrevoWithoutKey(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("MAIL_DRIVER", "brevo")
	t.Setenv("BREVO_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected brevo without api key to be rejected")
	}
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CERTIFICATE_ENGINE", "wkhtmltopdf")

	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown engine to be rejected")
	}
}
