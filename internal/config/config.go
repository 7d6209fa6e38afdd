package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dotapulse/matches-service/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string
	LogLevel       logging.Level

	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration

	LiquipediaBaseURL               string
	LiquipediaAppName               string
	LiquipediaParsePeriod           time.Duration
	LiquipediaRawPeriod             time.Duration
	LiquipediaCircuitEnabled        bool
	LiquipediaCircuitFailureCount   int
	LiquipediaCircuitOpenTimeout    time.Duration
	LiquipediaCircuitHalfOpenMaxReq int

	RefreshInterval  time.Duration
	RefreshMaxMatch  int
	RefreshWorkers   int
	StreamLeadWindow time.Duration

	TwitchEnabled               bool
	TwitchClientID              string
	TwitchClientSecret          string
	TwitchGameName              string
	TwitchTimeout               time.Duration
	TwitchCircuitEnabled        bool
	TwitchCircuitFailureCount   int
	TwitchCircuitOpenTimeout    time.Duration
	TwitchCircuitHalfOpenMaxReq int

	StreamRefreshInterval   time.Duration
	StreamMinScore          float64
	StreamMaxResults        int
	StreamPrimaryLanguage   string
	StreamSecondaryLanguage string

	RemindersEnabled    bool
	ReminderCheckPeriod time.Duration
	ReminderWindow      time.Duration

	PprofEnabled bool
	PprofAddr    string

	UptraceEnabled bool
	UptraceDSN     string

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("SERVICE_NAME", "matches-service"),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
		HTTPAddr:       getEnv("APP_HTTP_ADDR", ":8080"),
		LogLevel:       parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
	}

	cfg.CORSAllowedOrigins = splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	cfg.ReadTimeout, err = getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.WriteTimeout, err = getEnvAsDuration("HTTP_WRITE_TIMEOUT", 20*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg.LiquipediaBaseURL = strings.TrimSpace(getEnv("LIQUIPEDIA_BASE_URL", "https://liquipedia.net"))
	cfg.LiquipediaAppName = strings.TrimSpace(getEnv("LIQUIPEDIA_APP_NAME", "matches-service/dev"))
	cfg.LiquipediaParsePeriod, err = getEnvAsDuration("LIQUIPEDIA_PARSE_PERIOD", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.LiquipediaRawPeriod, err = getEnvAsDuration("LIQUIPEDIA_RAW_PERIOD", time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.LiquipediaCircuitEnabled, err = getEnvAsBool("LIQUIPEDIA_CIRCUIT_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	cfg.LiquipediaCircuitFailureCount, err = getEnvAsInt("LIQUIPEDIA_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.LiquipediaCircuitOpenTimeout, err = getEnvAsDuration("LIQUIPEDIA_CIRCUIT_OPEN_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.LiquipediaCircuitHalfOpenMaxReq, err = getEnvAsInt("LIQUIPEDIA_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, err
	}

	cfg.RefreshInterval, err = getEnvAsDuration("REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.RefreshMaxMatch, err = getEnvAsInt("REFRESH_MAX_MATCHES", 5)
	if err != nil {
		return Config{}, err
	}
	if cfg.RefreshMaxMatch <= 0 {
		return Config{}, fmt.Errorf("REFRESH_MAX_MATCHES must be > 0")
	}
	cfg.RefreshWorkers, err = getEnvAsInt("REFRESH_WORKERS", 4)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamLeadWindow, err = getEnvAsDuration("STREAM_LEAD_WINDOW", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg.TwitchEnabled, err = getEnvAsBool("TWITCH_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.TwitchClientID = strings.TrimSpace(getEnv("TWITCH_CLIENT_ID", ""))
	cfg.TwitchClientSecret = strings.TrimSpace(getEnv("TWITCH_CLIENT_SECRET", ""))
	if cfg.TwitchEnabled && (cfg.TwitchClientID == "" || cfg.TwitchClientSecret == "") {
		return Config{}, fmt.Errorf("TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET are required when TWITCH_ENABLED=true")
	}
	cfg.TwitchGameName = strings.TrimSpace(getEnv("TWITCH_GAME_NAME", "Dota 2"))
	cfg.TwitchTimeout, err = getEnvAsDuration("TWITCH_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.TwitchCircuitEnabled, err = getEnvAsBool("TWITCH_CIRCUIT_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	cfg.TwitchCircuitFailureCount, err = getEnvAsInt("TWITCH_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.TwitchCircuitOpenTimeout, err = getEnvAsDuration("TWITCH_CIRCUIT_OPEN_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.TwitchCircuitHalfOpenMaxReq, err = getEnvAsInt("TWITCH_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, err
	}

	cfg.StreamRefreshInterval, err = getEnvAsDuration("STREAM_REFRESH_INTERVAL", 100*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamMinScore, err = getEnvAsFloat("STREAM_MIN_SCORE", 0.5)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamMaxResults, err = getEnvAsInt("STREAM_MAX_RESULTS", 6)
	if err != nil {
		return Config{}, err
	}
	if cfg.StreamMaxResults <= 0 {
		return Config{}, fmt.Errorf("STREAM_MAX_RESULTS must be > 0")
	}
	cfg.StreamPrimaryLanguage = strings.TrimSpace(getEnv("STREAM_PRIMARY_LANGUAGE", "ru"))
	cfg.StreamSecondaryLanguage = strings.TrimSpace(getEnv("STREAM_SECONDARY_LANGUAGE", "en"))

	cfg.RemindersEnabled, err = getEnvAsBool("REMINDERS_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.ReminderCheckPeriod, err = getEnvAsDuration("REMINDER_CHECK_PERIOD", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ReminderWindow, err = getEnvAsDuration("REMINDER_WINDOW", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg.PprofEnabled, err = getEnvAsBool("PPROF_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.PprofAddr = getEnv("PPROF_ADDR", "localhost:6060")

	cfg.UptraceEnabled, err = getEnvAsBool("UPTRACE_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	cfg.PyroscopeEnabled, err = getEnvAsBool("PYROSCOPE_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName)
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	cfg.PyroscopeUploadRate, err = getEnvAsDuration("PYROSCOPE_UPLOAD_RATE", 15*time.Second)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}
