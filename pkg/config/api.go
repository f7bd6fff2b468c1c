package config

import (
	"strings"
	"time"
)

// Store drivers understood by the API.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// APIConfig holds runtime configuration for the accounts API.
type APIConfig struct {
	Environment   string
	Addr          string
	LogLevel      string
	StoreDriver   string
	DatabaseURL   string
	MigrationsDir string
	AutoMigrate   bool
	JWTSecret     string
	PublicBaseURL string

	VerificationTokenTTL    time.Duration
	ExposeVerificationToken bool

	PasswordMinLength          int
	PasswordRequireLetterDigit bool
	MinAgeYears                int
	BcryptCost                 int

	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	MailFrom      string
	NotifyTimeout time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	RateLimitRegister  int
	RateLimitVerify    int
	RateLimitRead      int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":4000"),
		LogLevel:      GetString("LOG_LEVEL", "info"),
		StoreDriver:   strings.ToLower(GetString("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://accounts:accounts@db:5432/accounts?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		AutoMigrate:   GetBool("DB_AUTO_MIGRATE", true),
		JWTSecret:     GetString("JWT_SECRET", "supersecuresecret"),
		PublicBaseURL: GetString("PUBLIC_BASE_URL", "http://localhost:4000"),

		VerificationTokenTTL:    GetDuration("VERIFICATION_TOKEN_TTL_HOURS", 24, time.Hour),
		ExposeVerificationToken: GetBool("EXPOSE_VERIFICATION_TOKEN", false),

		PasswordMinLength:          GetInt("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireLetterDigit: GetBool("PASSWORD_REQUIRE_LETTER_DIGIT", false),
		MinAgeYears:                GetInt("MIN_AGE_YEARS", 18),
		BcryptCost:                 GetInt("BCRYPT_COST", 0),

		SMTPHost:      GetString("SMTP_HOST", ""),
		SMTPPort:      GetInt("SMTP_PORT", 587),
		SMTPUser:      GetString("SMTP_USER", ""),
		SMTPPassword:  GetString("SMTP_PASSWORD", ""),
		MailFrom:      GetString("MAIL_FROM", "no-reply@example.com"),
		NotifyTimeout: GetDuration("NOTIFY_TIMEOUT_SECONDS", 10, time.Second),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		RateLimitRegister:  GetInt("RATE_LIMIT_REGISTER_PER_MIN", 5),
		RateLimitVerify:    GetInt("RATE_LIMIT_VERIFY_PER_MIN", 20),
		RateLimitRead:      GetInt("RATE_LIMIT_READ_PER_MIN", 120),
	}
}

// Production reports whether the service runs in a production environment.
func (c APIConfig) Production() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
