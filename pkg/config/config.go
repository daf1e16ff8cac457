package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Escalation EscalationConfig
	RateLimit  RateLimitConfig
	Board      BoardConfig
	Reports    ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EscalationConfig holds the notification ladder thresholds. Thresholds are
// expected to satisfy Student < Teacher < Admin < MaxDuration; Validate
// rejects configs that invert the ladder.
type EscalationConfig struct {
	StudentNotifyMinutes   int
	TeacherNotifyMinutes   int
	AdminEscalationMinutes int
	MaxDurationMinutes     int
	CooldownMinutes        int
	SweepInterval          time.Duration
}

// Validate checks ladder ordering.
func (c EscalationConfig) Validate() error {
	if c.StudentNotifyMinutes <= 0 ||
		c.TeacherNotifyMinutes <= c.StudentNotifyMinutes ||
		c.AdminEscalationMinutes <= c.TeacherNotifyMinutes ||
		c.MaxDurationMinutes <= c.AdminEscalationMinutes {
		return errors.New("escalation thresholds must be strictly increasing")
	}
	if c.CooldownMinutes < 0 {
		return errors.New("notification cooldown must not be negative")
	}
	return nil
}

// RateLimitConfig bounds pass creation per student.
type RateLimitConfig struct {
	PassCreationLimit  int
	PassCreationWindow time.Duration
}

// BoardConfig tunes the active-pass board cache.
type BoardConfig struct {
	CacheTTL time.Duration
}

// ReportsConfig labels exported pass reports.
type ReportsConfig struct {
	SchoolName string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Escalation = EscalationConfig{
		StudentNotifyMinutes:   v.GetInt("STUDENT_NOTIFY_MINUTES"),
		TeacherNotifyMinutes:   v.GetInt("TEACHER_NOTIFY_MINUTES"),
		AdminEscalationMinutes: v.GetInt("ADMIN_ESCALATION_MINUTES"),
		MaxDurationMinutes:     v.GetInt("MAX_PASS_DURATION_MINUTES"),
		CooldownMinutes:        v.GetInt("NOTIFICATION_COOLDOWN_MINUTES"),
		SweepInterval:          parseDuration(v.GetString("SWEEP_INTERVAL"), time.Minute),
	}
	if err := cfg.Escalation.Validate(); err != nil {
		return nil, err
	}

	cfg.RateLimit = RateLimitConfig{
		PassCreationLimit:  v.GetInt("PASS_CREATION_LIMIT"),
		PassCreationWindow: parseDuration(v.GetString("PASS_CREATION_WINDOW"), time.Hour),
	}

	cfg.Board = BoardConfig{
		CacheTTL: parseDuration(v.GetString("BOARD_CACHE_TTL"), 15*time.Second),
	}

	cfg.Reports = ReportsConfig{
		SchoolName: v.GetString("REPORTS_SCHOOL_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "hallpass")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STUDENT_NOTIFY_MINUTES", 10)
	v.SetDefault("TEACHER_NOTIFY_MINUTES", 15)
	v.SetDefault("ADMIN_ESCALATION_MINUTES", 20)
	v.SetDefault("MAX_PASS_DURATION_MINUTES", 30)
	v.SetDefault("NOTIFICATION_COOLDOWN_MINUTES", 5)
	v.SetDefault("SWEEP_INTERVAL", "1m")

	v.SetDefault("PASS_CREATION_LIMIT", 5)
	v.SetDefault("PASS_CREATION_WINDOW", "1h")

	v.SetDefault("BOARD_CACHE_TTL", "15s")
	v.SetDefault("REPORTS_SCHOOL_NAME", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
