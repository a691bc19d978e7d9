package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

// Placeholder left in deployments whose relay endpoint was never filled in
const RelayURLPlaceholder = "{{GOOGLE_APPS_SCRIPT_URL}}"

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Store      StoreConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Evaluation EvaluationConfig
	Relay      RelayConfig
	R2         R2Config
	Metrics    MetricsConfig
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

type StoreConfig struct {
	Driver string // redis | memory
	Prefix string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	SubmitPerMin  int
	ExportPerHour int
}

type EvaluationConfig struct {
	// Sources are tried in order until one yields a usable configuration
	Sources         []string
	ReferenceMethod string
	Comparisons     int
	ClipBase        string
	WholisticClips  int
	FetchTimeout    int // seconds
}

type RelayConfig struct {
	Enabled       bool
	Mode          string // direct | queue
	ComparisonURL string
	ReviewURL     string
	Timeout       int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("RELAY_COMPARISON_URL")
	readSecret("RELAY_REVIEW_URL")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("store.driver", "STORE_DRIVER")
	_ = viper.BindEnv("store.prefix", "STORE_PREFIX")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.submit_per_min", "RATELIMIT_SUBMIT_PER_MIN")
	_ = viper.BindEnv("ratelimit.export_per_hour", "RATELIMIT_EXPORT_PER_HOUR")
	_ = viper.BindEnv("evaluation.sources", "EVALUATION_SOURCES")
	_ = viper.BindEnv("evaluation.reference_method", "EVALUATION_REFERENCE_METHOD")
	_ = viper.BindEnv("evaluation.comparisons", "EVALUATION_COMPARISONS")
	_ = viper.BindEnv("evaluation.clip_base", "EVALUATION_CLIP_BASE")
	_ = viper.BindEnv("evaluation.wholistic_clips", "EVALUATION_WHOLISTIC_CLIPS")
	_ = viper.BindEnv("evaluation.fetch_timeout", "EVALUATION_FETCH_TIMEOUT")
	_ = viper.BindEnv("relay.enabled", "RELAY_ENABLED")
	_ = viper.BindEnv("relay.mode", "RELAY_MODE")
	_ = viper.BindEnv("relay.comparison_url", "RELAY_COMPARISON_URL")
	_ = viper.BindEnv("relay.review_url", "RELAY_REVIEW_URL")
	_ = viper.BindEnv("relay.timeout", "RELAY_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	_ = viper.BindEnv("metrics.path", "METRICS_PATH")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.prefix", "humanstudy")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24*30)
	viper.SetDefault("ratelimit.submit_per_min", 60)
	viper.SetDefault("ratelimit.export_per_hour", 20)

	// Evaluation defaults
	viper.SetDefault("evaluation.sources", []string{
		"./config.json",
		"./html/config.json",
		"./static/config.json",
	})
	viper.SetDefault("evaluation.reference_method", "infinitystory")
	viper.SetDefault("evaluation.comparisons", 4)
	viper.SetDefault("evaluation.clip_base", "clips")
	viper.SetDefault("evaluation.wholistic_clips", 5)
	viper.SetDefault("evaluation.fetch_timeout", 10)

	// Relay defaults
	viper.SetDefault("relay.enabled", true)
	viper.SetDefault("relay.mode", "direct")
	viper.SetDefault("relay.comparison_url", RelayURLPlaceholder)
	viper.SetDefault("relay.review_url", RelayURLPlaceholder)
	viper.SetDefault("relay.timeout", 30)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Try to read config file (optional)
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
		Store: StoreConfig{
			Driver: viper.GetString("store.driver"),
			Prefix: viper.GetString("store.prefix"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin:  viper.GetInt("ratelimit.submit_per_min"),
			ExportPerHour: viper.GetInt("ratelimit.export_per_hour"),
		},
		Evaluation: EvaluationConfig{
			Sources:         splitList(viper.GetStringSlice("evaluation.sources")),
			ReferenceMethod: viper.GetString("evaluation.reference_method"),
			Comparisons:     viper.GetInt("evaluation.comparisons"),
			ClipBase:        viper.GetString("evaluation.clip_base"),
			WholisticClips:  viper.GetInt("evaluation.wholistic_clips"),
			FetchTimeout:    viper.GetInt("evaluation.fetch_timeout"),
		},
		Relay: RelayConfig{
			Enabled:       viper.GetBool("relay.enabled"),
			Mode:          viper.GetString("relay.mode"),
			ComparisonURL: viper.GetString("relay.comparison_url"),
			ReviewURL:     viper.GetString("relay.review_url"),
			Timeout:       viper.GetInt("relay.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Metrics: MetricsConfig{
			Enabled: viper.GetBool("metrics.enabled"),
			Path:    viper.GetString("metrics.path"),
		},
	}

	return cfg, nil
}

// RelayConfigured reports whether url points at a real sink
func RelayConfigured(url string) bool {
	url = strings.TrimSpace(url)
	return url != "" && url != RelayURLPlaceholder && !strings.Contains(url, "{{")
}

// splitList accepts both YAML lists and a comma separated env value
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
