package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	SandboxEngine       string
	SandboxTimeout      time.Duration
	SandboxMaxSteps     uint64
	SandboxOutputBytes  int
	PythonImage         string
	DockerHost          string
	DockerPullImages    bool
	CodeRunMemoryMB     int
	CodeRunCPUShares    int
	CodeRunWorkspaceDir string

	GradeCacheTTL     time.Duration
	SubmitRateLimit   int
	SubmitRateWindow  time.Duration
	AttemptFeedPrefix string

	AIProvider      string
	AIModel         string
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SCORESTREAM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "ScoreStream API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("sandbox.engine", "auto")
	v.SetDefault("sandbox.timeout", "2s")
	v.SetDefault("sandbox.max_steps", 10_000_000)
	v.SetDefault("sandbox.output_bytes", 16*1024)
	v.SetDefault("python_image", "python:3.12-alpine")
	v.SetDefault("docker_pull_images", false)
	v.SetDefault("code_run_memory_mb", 128)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("grade.cache_ttl", "10m")
	v.SetDefault("submit.rate_limit", 20)
	v.SetDefault("submit.rate_window", "1m")
	v.SetDefault("feed.subject_prefix", "scorestream.attempts")
	v.SetDefault("ai.provider", "openai")

	timeout, err := parseDuration(v, "sandbox.timeout", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := parseDuration(v, "grade.cache_ttl", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}

	rateWindow, err := parseDuration(v, "submit.rate_window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		SandboxEngine:       strings.ToLower(v.GetString("sandbox.engine")),
		SandboxTimeout:      timeout,
		SandboxMaxSteps:     v.GetUint64("sandbox.max_steps"),
		SandboxOutputBytes:  v.GetInt("sandbox.output_bytes"),
		PythonImage:         v.GetString("python_image"),
		DockerHost:          v.GetString("docker_host"),
		DockerPullImages:    v.GetBool("docker_pull_images"),
		CodeRunMemoryMB:     v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:    v.GetInt("code_run_cpu_shares"),
		CodeRunWorkspaceDir: v.GetString("code_run_workspace_dir"),
		GradeCacheTTL:       cacheTTL,
		SubmitRateLimit:     v.GetInt("submit.rate_limit"),
		SubmitRateWindow:    rateWindow,
		AttemptFeedPrefix:   v.GetString("feed.subject_prefix"),
		AIProvider:          strings.ToLower(v.GetString("ai.provider")),
		AIModel:             v.GetString("ai.model"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		AnthropicAPIKey:     v.GetString("anthropic_api_key"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("jwt secret must be provided")
	}

	switch cfg.SandboxEngine {
	case "auto", "starlark", "docker":
	default:
		return Config{}, fmt.Errorf("unsupported sandbox engine %q", cfg.SandboxEngine)
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 128
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 20
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return fallback, nil
	}
	return d, nil
}
