// Package config loads quilld settings from QUILL_-prefixed environment
// variables, with a .env file honored in development.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Object storage. Optional: without credentials the file endpoints are
	// disabled and everything else runs normally.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"quill-files"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// OpenAI. Optional: without a key, search degrades to keyword mode and
	// conversation asks are rejected.
	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingAttempts   int           `envconfig:"EMBEDDING_ATTEMPTS" default:"3"`
	EmbeddingBackoff    time.Duration `envconfig:"EMBEDDING_BACKOFF" default:"1s"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	ChatModel           string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	SearchLimit     int     `envconfig:"SEARCH_LIMIT" default:"5"`
	SearchThreshold float64 `envconfig:"SEARCH_THRESHOLD" default:"0.7"`

	// Bootstrap: create an initial workspace and API key on first start.
	InitWorkspaceName string `envconfig:"INIT_WORKSPACE_NAME"`
	InitAPIKey        string `envconfig:"INIT_API_KEY"`
}

// Load reads the environment into a Config. A .env file in the working
// directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("QUILL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load for main functions; it exits on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// HasS3 reports whether object storage is fully configured.
func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// HasOpenAI reports whether embedding and chat calls can be made.
func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
