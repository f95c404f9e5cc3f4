package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Attendance.FaceMatchThreshold != 40 {
		t.Errorf("expected face match threshold 40, got %v", cfg.Attendance.FaceMatchThreshold)
	}
	if cfg.Attendance.PresenceThreshold != 40 {
		t.Errorf("expected presence threshold 40, got %v", cfg.Attendance.PresenceThreshold)
	}
	if cfg.Attendance.MinAttendancePercentage != 75 {
		t.Errorf("expected min attendance 75, got %v", cfg.Attendance.MinAttendancePercentage)
	}
	if cfg.Attendance.DraftTTL != 2*time.Hour {
		t.Errorf("expected draft TTL 2h, got %v", cfg.Attendance.DraftTTL)
	}
	if cfg.Matcher.Workers != 5 {
		t.Errorf("expected 5 matcher workers, got %d", cfg.Matcher.Workers)
	}
	if cfg.Matcher.Timeout != 30*time.Second {
		t.Errorf("expected matcher timeout 30s, got %v", cfg.Matcher.Timeout)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Web.Port)
	}
}

func TestLoad_ThresholdOverrides(t *testing.T) {
	t.Setenv("FACE_MATCH_THRESHOLD", "55.5")
	t.Setenv("PRESENCE_THRESHOLD", "60")

	cfg := Load()

	if cfg.Attendance.FaceMatchThreshold != 55.5 {
		t.Errorf("expected face match threshold 55.5, got %v", cfg.Attendance.FaceMatchThreshold)
	}
	if cfg.Attendance.PresenceThreshold != 60 {
		t.Errorf("expected presence threshold 60, got %v", cfg.Attendance.PresenceThreshold)
	}
}

func TestLoad_InvalidThresholdFallsBack(t *testing.T) {
	for _, v := range []string{"abc", "-1", "101"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("PRESENCE_THRESHOLD", v)

			cfg := Load()

			// Should fall back to default
			if cfg.Attendance.PresenceThreshold != 40 {
				t.Errorf("expected default presence threshold 40 for %q, got %v", v, cfg.Attendance.PresenceThreshold)
			}
		})
	}
}

func TestLoad_ZeroThresholdAllowed(t *testing.T) {
	t.Setenv("FACE_MATCH_THRESHOLD", "0")

	cfg := Load()

	if cfg.Attendance.FaceMatchThreshold != 0 {
		t.Errorf("expected face match threshold 0, got %v", cfg.Attendance.FaceMatchThreshold)
	}
}

func TestLoad_MatcherConfig(t *testing.T) {
	t.Setenv("MATCHER_URL", "http://faces.internal:5000/")
	t.Setenv("MATCHER_WORKERS", "12")
	t.Setenv("MATCHER_TIMEOUT", "5s")
	t.Setenv("REFERENCE_DIR", "/srv/references")
	t.Setenv("MATCHER_RATE_LIMIT", "2.5")

	cfg := Load()

	if cfg.Matcher.URL != "http://faces.internal:5000" {
		t.Errorf("expected trailing slash trimmed, got '%s'", cfg.Matcher.URL)
	}
	if cfg.Matcher.Workers != 12 {
		t.Errorf("expected 12 workers, got %d", cfg.Matcher.Workers)
	}
	if cfg.Matcher.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Matcher.Timeout)
	}
	if cfg.Matcher.ReferenceDir != "/srv/references" {
		t.Errorf("expected reference dir '/srv/references', got '%s'", cfg.Matcher.ReferenceDir)
	}
	if cfg.Matcher.RateLimit != 2.5 {
		t.Errorf("expected rate limit 2.5, got %v", cfg.Matcher.RateLimit)
	}
}

func TestLoad_InvalidWorkersFallsBack(t *testing.T) {
	t.Setenv("MATCHER_WORKERS", "0")

	cfg := Load()

	if cfg.Matcher.Workers != 5 {
		t.Errorf("expected default 5 workers for zero input, got %d", cfg.Matcher.Workers)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DRAFT_TTL", "forever")

	cfg := Load()

	if cfg.Attendance.DraftTTL != 2*time.Hour {
		t.Errorf("expected default draft TTL for invalid input, got %v", cfg.Attendance.DraftTTL)
	}
}

func TestLoad_DatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://rollcall@db/rollcall")
	t.Setenv("SIS_DATABASE_URL", "sis:sis@tcp(mariadb:3306)/sis")

	cfg := Load()

	if cfg.Database.URL != "postgres://rollcall@db/rollcall" {
		t.Errorf("unexpected database URL '%s'", cfg.Database.URL)
	}
	if cfg.Roster.SISDatabaseURL != "sis:sis@tcp(mariadb:3306)/sis" {
		t.Errorf("unexpected SIS DSN '%s'", cfg.Roster.SISDatabaseURL)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://school.example, ,https://admin.example")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Web.AllowedOrigins[1] != "https://admin.example" {
		t.Errorf("unexpected origin '%s'", cfg.Web.AllowedOrigins[1])
	}
}

func TestLoad_EmptyEnvVars(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "MATCHER_URL", "ROSTER_FILE", "LOG_LEVEL"} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Database.URL != "" {
		t.Errorf("expected empty database URL, got '%s'", cfg.Database.URL)
	}
	if cfg.Matcher.URL != "http://localhost:5000" {
		t.Errorf("expected default matcher URL, got '%s'", cfg.Matcher.URL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level, got '%s'", cfg.Log.Level)
	}
}
