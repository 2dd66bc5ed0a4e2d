package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the attention API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	MutationTimeout        time.Duration
	MaxSaveAttempts        int
	MaxAttentionRecords    int
	MaxGraphSamples        int
	SummaryCacheTTL        time.Duration
	UploadMaxSizeMB        int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadsEnabled reports whether file sharing can be wired up.
func (c Config) UploadsEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and an optional
// .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EYEAI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "EyeAI Attention API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("mutation.timeout", "5s")
	v.SetDefault("mutation.max_save_attempts", 5)
	v.SetDefault("history.max_attention_records", 2000)
	v.SetDefault("history.max_graph_samples", 1000)
	v.SetDefault("summary.cache_ttl", "15m")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("cloudinary.folder", "eyeai/files")

	mutationTimeout, err := time.ParseDuration(v.GetString("mutation.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid mutation timeout: %w", err)
	}

	summaryTTL, err := time.ParseDuration(v.GetString("summary.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid summary cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		MutationTimeout:        mutationTimeout,
		MaxSaveAttempts:        v.GetInt("mutation.max_save_attempts"),
		MaxAttentionRecords:    v.GetInt("history.max_attention_records"),
		MaxGraphSamples:        v.GetInt("history.max_graph_samples"),
		SummaryCacheTTL:        summaryTTL,
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("redis url must be provided")
	}

	if cfg.MaxSaveAttempts <= 0 {
		cfg.MaxSaveAttempts = 5
	}
	if cfg.MaxAttentionRecords <= 0 {
		cfg.MaxAttentionRecords = 2000
	}
	if cfg.MaxGraphSamples <= 0 {
		cfg.MaxGraphSamples = 1000
	}
	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	return cfg, nil
}
