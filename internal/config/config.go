// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBPath      string
	BaseURL     string
	LogLevel    string
	LogFormat   string
	StrictQuota bool
	Timezone    string

	JWTSecret string
	JWTIssuer string

	AnthropicAPIKey string
	AnthropicModel  string
	ElevenLabsKey   string

	StripeSecretKey     string
	StripeWebhookSecret string
	ConvertKitSecret    string

	AudioS3 S3

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

// S3 holds the audio cache bucket settings. An empty bucket disables the cache.
type S3 struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Load reads a .env file when one exists and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	strict, err := envBool("GYM_STRICT_QUOTA", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        envOr("GYM_PORT", "8080"),
		DBPath:      envOr("GYM_DB_PATH", "writinggym.db"),
		BaseURL:     strings.TrimRight(envOr("GYM_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:    envOr("GYM_LOG_LEVEL", "info"),
		LogFormat:   envOr("GYM_LOG_FORMAT", "text"),
		StrictQuota: strict,
		Timezone:    os.Getenv("GYM_TIMEZONE"),

		JWTSecret: os.Getenv("GYM_JWT_SECRET"),
		JWTIssuer: os.Getenv("GYM_JWT_ISSUER"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  os.Getenv("ANTHROPIC_MODEL"),
		ElevenLabsKey:   os.Getenv("ELEVENLABS_API_KEY"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		ConvertKitSecret:    os.Getenv("CONVERTKIT_API_SECRET"),

		AudioS3: S3{
			Endpoint:  os.Getenv("GYM_AUDIO_S3_ENDPOINT"),
			Bucket:    os.Getenv("GYM_AUDIO_S3_BUCKET"),
			Region:    envOr("GYM_AUDIO_S3_REGION", "auto"),
			AccessKey: os.Getenv("GYM_AUDIO_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("GYM_AUDIO_S3_SECRET_KEY"),
			Prefix:    os.Getenv("GYM_AUDIO_S3_PREFIX"),
		},

		VAPIDPublicKey:  os.Getenv("GYM_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("GYM_VAPID_PRIVATE_KEY"),
		VAPIDSubject:    envOr("GYM_VAPID_SUBJECT", "mailto:hello@writinggym.app"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("GYM_JWT_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
