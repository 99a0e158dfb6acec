package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"exam-portal/pkg/database"
)

type BackendConfig struct {
	BaseURL            string `validate:"required,url"`
	Token              string
	Timeout            time.Duration `validate:"gt=0"`
	TemplatesFetchPath string        `validate:"required,startswith=/"`
	TemplatesSavePath  string        `validate:"required,startswith=/"`
}

type Config struct {
	Env            string
	Addr           string `validate:"required"`
	AllowedOrigins []string
	JWTSecret      string        `validate:"required"`
	TokenTTL       time.Duration `validate:"gt=0"`
	DB             database.Config
	RedisAddr      string        `validate:"required"`
	CacheTTL       time.Duration `validate:"gte=0"`
	Backend        BackendConfig
	// TestPathPrefix is the navigation prefix that precedes the test identifier, e.g. "/test/".
	TestPathPrefix string `validate:"required,startswith=/"`
	StudyListURL   string `validate:"required"`
	// SessionIdleTimeout abandons test sessions nobody has touched or listened to for this long.
	SessionIdleTimeout time.Duration `validate:"gt=0"`
	SessionRetention   time.Duration `validate:"gt=0"`
	AdminEmail         string        `validate:"omitempty,email"`
	AdminPassword      string        `validate:"required_with=AdminEmail"`
}

// FromEnv builds the configuration from environment variables. Call godotenv.Load first
// when a .env file should be honoured.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:            getString("ENV", "dev"),
		Addr:           getString("ADDR", ":8080"),
		AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       getDuration("JWT_TTL", 24*time.Hour),
		DB: database.Config{
			Host:     getString("DB_HOST", "localhost"),
			Port:     getString("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		RedisAddr: getString("REDIS_ADDR", "localhost:6379"),
		CacheTTL:  getDuration("QUESTION_CACHE_TTL", 10*time.Minute),
		Backend: BackendConfig{
			BaseURL:            os.Getenv("BACKEND_URL"),
			Token:              os.Getenv("BACKEND_TOKEN"),
			Timeout:            getDuration("BACKEND_TIMEOUT", 15*time.Second),
			TemplatesFetchPath: getString("BACKEND_TEMPLATES_FETCH_PATH", "/get-course-templates"),
			TemplatesSavePath:  getString("BACKEND_TEMPLATES_SAVE_PATH", "/save-course-templates"),
		},
		TestPathPrefix:     getString("TEST_PATH_PREFIX", "/test/"),
		StudyListURL:       getString("STUDY_LIST_URL", "/study"),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 2*time.Minute),
		SessionRetention:   getDuration("SESSION_RETENTION", 15*time.Minute),
		AdminEmail:         os.Getenv("ADMIN_EMAIL"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
