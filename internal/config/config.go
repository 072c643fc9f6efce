package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Upstream  UpstreamConfig
	R2        R2Config
	Track     TrackConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	ConvertPerHour  int
	ArchivePerHour  int
	StatusPerMinute int
}

// UpstreamConfig points at the AI-music provider: the submission API and
// the push-event websocket channel.
type UpstreamConfig struct {
	BaseURL    string
	ChannelURL string
	APIKey     string
	Timeout    int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

// TrackConfig tunes the job tracking engine
type TrackConfig struct {
	WatchdogIntervalSec int
	StallThresholdSec   int
	SubmissionGraceSec  int
	ReconnectAttempts   int
	ReconnectBackoffSec int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("UPSTREAM_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ratelimit.convert_per_hour", "RATELIMIT_CONVERT_PER_HOUR")
	_ = viper.BindEnv("ratelimit.archive_per_hour", "RATELIMIT_ARCHIVE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.status_per_minute", "RATELIMIT_STATUS_PER_MINUTE")
	_ = viper.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	_ = viper.BindEnv("upstream.channel_url", "UPSTREAM_CHANNEL_URL")
	_ = viper.BindEnv("upstream.api_key", "UPSTREAM_API_KEY")
	_ = viper.BindEnv("upstream.timeout", "UPSTREAM_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("track.watchdog_interval_sec", "TRACK_WATCHDOG_INTERVAL_SEC")
	_ = viper.BindEnv("track.stall_threshold_sec", "TRACK_STALL_THRESHOLD_SEC")
	_ = viper.BindEnv("track.submission_grace_sec", "TRACK_SUBMISSION_GRACE_SEC")
	_ = viper.BindEnv("track.reconnect_attempts", "TRACK_RECONNECT_ATTEMPTS")
	_ = viper.BindEnv("track.reconnect_backoff_sec", "TRACK_RECONNECT_BACKOFF_SEC")

	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.convert_per_hour", 20)
	viper.SetDefault("ratelimit.archive_per_hour", 10)
	viper.SetDefault("ratelimit.status_per_minute", 120)
	viper.SetDefault("upstream.base_url", "https://api.tunecraft-upstream.com")
	viper.SetDefault("upstream.channel_url", "wss://events.tunecraft-upstream.com/ws")
	viper.SetDefault("upstream.timeout", 60)
	viper.SetDefault("track.watchdog_interval_sec", 10)
	viper.SetDefault("track.stall_threshold_sec", 120)
	viper.SetDefault("track.submission_grace_sec", 30)
	viper.SetDefault("track.reconnect_attempts", 5)
	viper.SetDefault("track.reconnect_backoff_sec", 3)

	// Config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			ConvertPerHour:  viper.GetInt("ratelimit.convert_per_hour"),
			ArchivePerHour:  viper.GetInt("ratelimit.archive_per_hour"),
			StatusPerMinute: viper.GetInt("ratelimit.status_per_minute"),
		},
		Upstream: UpstreamConfig{
			BaseURL:    viper.GetString("upstream.base_url"),
			ChannelURL: viper.GetString("upstream.channel_url"),
			APIKey:     viper.GetString("upstream.api_key"),
			Timeout:    viper.GetInt("upstream.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
		},
		Track: TrackConfig{
			WatchdogIntervalSec: viper.GetInt("track.watchdog_interval_sec"),
			StallThresholdSec:   viper.GetInt("track.stall_threshold_sec"),
			SubmissionGraceSec:  viper.GetInt("track.submission_grace_sec"),
			ReconnectAttempts:   viper.GetInt("track.reconnect_attempts"),
			ReconnectBackoffSec: viper.GetInt("track.reconnect_backoff_sec"),
		},
	}

	return cfg, nil
}
