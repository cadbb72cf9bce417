// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Escrow      EscrowConfig
	Otp         OtpConfig
	Legal       LegalConfig
	Sweep       SweepConfig
	Email       EmailConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    int
	WriteTimeout   int
	IdleTimeout    int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  int // in hours
	RefreshTokenTTL int // in hours
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
}

type PaymentConfig struct {
	StripeSecretKey      string
	StripePublishableKey string
	WebhookSecret        string
}

// EscrowConfig drives the ledger's retry and auto-release policy.
type EscrowConfig struct {
	AutoReleaseDays    int
	CaptureMaxAttempts int
	CaptureBackoffBase time.Duration
	CaptureTimeout     time.Duration
}

type OtpConfig struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	// IssuePerHour bounds challenge issuance per subject.
	IssuePerHour int
}

// LegalConfig carries statutory constants.
type LegalConfig struct {
	RetractionWindow time.Duration
}

type SweepConfig struct {
	Interval    time.Duration
	DisputeSLA  time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS",
				[]string{getEnv("FRONTEND_BASE_URL", "http://localhost:3000")}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "ndako"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL:  getEnvAsInt("JWT_ACCESS_TTL", 24),   // 24 hours
			RefreshTokenTTL: getEnvAsInt("JWT_REFRESH_TTL", 168), // 7 days
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "eu-west-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "ndako-contracts"),
		},
		Payment: PaymentConfig{
			StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:        getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
		Escrow: EscrowConfig{
			AutoReleaseDays:    getEnvAsInt("ESCROW_AUTO_RELEASE_DAYS", 5),
			CaptureMaxAttempts: getEnvAsInt("ESCROW_CAPTURE_MAX_ATTEMPTS", 3),
			CaptureBackoffBase: getEnvAsDuration("ESCROW_CAPTURE_BACKOFF_BASE", 2*time.Second),
			CaptureTimeout:     getEnvAsDuration("ESCROW_CAPTURE_TIMEOUT", 30*time.Second),
		},
		Otp: OtpConfig{
			CodeLength:   getEnvAsInt("OTP_CODE_LENGTH", 6),
			TTL:          getEnvAsDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts:  getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			IssuePerHour: getEnvAsInt("OTP_ISSUE_PER_HOUR", 5),
		},
		Legal: LegalConfig{
			// Statutory retraction period after full signature.
			RetractionWindow: getEnvAsDuration("LEGAL_RETRACTION_WINDOW", 7*24*time.Hour),
		},
		Sweep: SweepConfig{
			Interval:   getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
			DisputeSLA: getEnvAsDuration("DISPUTE_ASSIGNMENT_SLA", 48*time.Hour),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@ndako.app"),
			FromName:     getEnv("FROM_NAME", "Ndako"),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Otp.MaxAttempts < 1 {
		return fmt.Errorf("OTP max attempts must be at least 1")
	}

	if c.Escrow.CaptureMaxAttempts < 1 {
		return fmt.Errorf("escrow capture max attempts must be at least 1")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
