package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Pricing and policy values
// are injected into the core components from here; nothing in the wallet
// or playback code reads the environment directly.
type Config struct {
	HTTPAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	JWTSecret string

	// Wallet and playback policy. All amounts are AF minor units.
	StreamUnitPrice   int64  // Debited per billable stream start
	PreviewBudgetSecs int    // Free listening time before the gate blocks
	WithdrawMinAF     int64  // Withdrawal floor
	TopUpMinAF        int64  // Top-up floor
	StartingCreditAF  int64  // Wallet credit at account creation
	PlaybackPolicy    string // "requireWalletPerStream" or "freePreviewThenGate"

	// Emails that are provisioned with the artist role on registration.
	ArtistEmails []string
}

// Playback policy names.
const (
	PolicyWalletPerStream = "requireWalletPerStream"
	PolicyFreePreview     = "freePreviewThenGate"
)

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() does not override variables that are already set.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	var artistEmails []string
	for _, e := range strings.Split(getEnv("ARTIST_EMAILS", ""), ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			artistEmails = append(artistEmails, e)
		}
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // No hardcoded default for the password
		DBName:     getEnv("DB_NAME", "artistsfirst"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "artistsfirst"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		StreamUnitPrice:   getEnvInt64("STREAM_UNIT_PRICE_AF", 1),
		PreviewBudgetSecs: getEnvInt("PREVIEW_BUDGET_SECONDS", 60),
		WithdrawMinAF:     getEnvInt64("WITHDRAW_MIN_AF", 500),
		TopUpMinAF:        getEnvInt64("TOPUP_MIN_AF", 500),
		StartingCreditAF:  getEnvInt64("STARTING_CREDIT_AF", 500),
		PlaybackPolicy:    getEnv("PLAYBACK_POLICY", PolicyWalletPerStream),

		ArtistEmails: artistEmails,
	}
}

// IsArtistEmail reports whether the email is on the configured artist list.
func (c *Config) IsArtistEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.ArtistEmails {
		if e == email {
			return true
		}
	}
	return false
}
