package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Attendance AttendanceConfig `yaml:"attendance"`
	Matcher    MatcherConfig    `yaml:"matcher"`
	Roster     RosterConfig     `yaml:"roster"`
	Database   DatabaseConfig   `yaml:"database"`
	Web        WebConfig        `yaml:"web"`
	Log        LogConfig        `yaml:"log"`
}

type AttendanceConfig struct {
	FaceMatchThreshold      float64       `yaml:"face_match_threshold"`
	PresenceThreshold       float64       `yaml:"presence_threshold"`
	MinAttendancePercentage float64       `yaml:"min_attendance_percentage"`
	DraftTTL                time.Duration `yaml:"draft_ttl"`
}

type MatcherConfig struct {
	URL               string        `yaml:"url"`     // face service base URL
	Workers           int           `yaml:"workers"` // concurrent comparisons per request
	Timeout           time.Duration `yaml:"timeout"` // per HTTP call
	ReferenceDir      string        `yaml:"reference_dir"`
	ReferenceCacheTTL time.Duration `yaml:"reference_cache_ttl"`
	RateLimit         float64       `yaml:"rate_limit"` // requests per second, 0 is unlimited
}

type RosterConfig struct {
	File           string `yaml:"file"`             // YAML roster file (optional)
	SISDatabaseURL string `yaml:"sis_database_url"` // MariaDB DSN of the student information system (optional)
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envPercent reads an environment variable as a number in [0, 100].
func envPercent(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 100 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive duration ("90s", "2h").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envRate reads an environment variable as a non-negative rate.
func envRate(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the embedded defaults without environment overrides.
func Defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

func Load() *Config {
	cfg := Defaults()

	a := &cfg.Attendance
	a.FaceMatchThreshold = envPercent("FACE_MATCH_THRESHOLD", a.FaceMatchThreshold)
	a.PresenceThreshold = envPercent("PRESENCE_THRESHOLD", a.PresenceThreshold)
	a.MinAttendancePercentage = envPercent("MIN_ATTENDANCE_PERCENTAGE", a.MinAttendancePercentage)
	a.DraftTTL = envDuration("DRAFT_TTL", a.DraftTTL)

	m := &cfg.Matcher
	m.URL = strings.TrimRight(envString("MATCHER_URL", m.URL), "/")
	m.Workers = envInt("MATCHER_WORKERS", m.Workers)
	m.Timeout = envDuration("MATCHER_TIMEOUT", m.Timeout)
	m.ReferenceDir = envString("REFERENCE_DIR", m.ReferenceDir)
	m.ReferenceCacheTTL = envDuration("REFERENCE_CACHE_TTL", m.ReferenceCacheTTL)
	m.RateLimit = envRate("MATCHER_RATE_LIMIT", m.RateLimit)

	cfg.Roster.File = envString("ROSTER_FILE", cfg.Roster.File)
	cfg.Roster.SISDatabaseURL = envString("SIS_DATABASE_URL", cfg.Roster.SISDatabaseURL)

	d := &cfg.Database
	d.URL = envString("DATABASE_URL", d.URL)
	d.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", d.MaxIdleConns)

	w := &cfg.Web
	w.Host = envString("WEB_HOST", w.Host)
	w.Port = envInt("WEB_PORT", w.Port)
	w.MaxUploadMB = envInt("WEB_MAX_UPLOAD_MB", w.MaxUploadMB)
	w.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", w.AllowedOrigins)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.JSON = envBool("LOG_JSON", cfg.Log.JSON)

	return &cfg
}
