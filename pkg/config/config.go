package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultSuperAdminEmail is used when SUPER_ADMIN_EMAIL is unset.
const DefaultSuperAdminEmail = "pharmaelevate.admin@gmail.com"

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Auth     AuthConfig
	Mail     MailConfig
	Storage  StorageConfig
	Uploads  UploadConfig
	Cache    CacheConfig
	Audit    AuditConfig
	OAuth    OAuthConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig tunes account lifecycle rules.
type AuthConfig struct {
	SuperAdminEmail string
	OTPTTL          time.Duration
	ResendCooldown  time.Duration
	MinPasswordLen  int
}

// MailConfig configures outbound SMTP delivery.
type MailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// StorageConfig selects and configures the object store backend.
type StorageConfig struct {
	Driver      string
	LocalDir    string
	PublicURL   string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
	RootFolder  string
}

// UploadConfig holds validation limits and signing parameters for uploads.
type UploadConfig struct {
	MaxImageBytes     int64
	MaxNoteBytes      int64
	AllowedImageMIMEs []string
	AllowedNoteMIMEs  []string
	SigningSecret     string
	SignedTTL         time.Duration
}

// CacheConfig governs Redis caching of public listings.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AuditConfig controls the asynchronous audit sink.
type AuditConfig struct {
	BufferSize    int
	Workers       int
	Retention     time.Duration
	PurgeInterval time.Duration
}

// OAuthConfig holds social sign-in credentials.
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
	SessionSecret      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 15*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 30*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	superAdmin := strings.ToLower(strings.TrimSpace(v.GetString("SUPER_ADMIN_EMAIL")))
	if superAdmin == "" {
		superAdmin = DefaultSuperAdminEmail
	}
	cfg.Auth = AuthConfig{
		SuperAdminEmail: superAdmin,
		OTPTTL:          parseDuration(v.GetString("OTP_TTL"), 10*time.Minute),
		ResendCooldown:  parseDuration(v.GetString("OTP_RESEND_COOLDOWN"), 60*time.Second),
		MinPasswordLen:  v.GetInt("MIN_PASSWORD_LENGTH"),
	}

	cfg.Mail = MailConfig{
		Enabled:  v.GetBool("MAIL_ENABLED"),
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("MAIL_FROM"),
	}

	cfg.Storage = StorageConfig{
		Driver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:    v.GetString("STORAGE_LOCAL_DIR"),
		PublicURL:   strings.TrimRight(v.GetString("STORAGE_PUBLIC_URL"), "/"),
		S3Bucket:    v.GetString("S3_BUCKET"),
		S3Region:    v.GetString("S3_REGION"),
		S3Endpoint:  v.GetString("S3_ENDPOINT"),
		S3AccessKey: v.GetString("S3_ACCESS_KEY_ID"),
		S3SecretKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		S3PathStyle: v.GetBool("S3_FORCE_PATH_STYLE"),
		RootFolder:  strings.Trim(v.GetString("STORAGE_ROOT_FOLDER"), "/"),
	}
	if cfg.Storage.PublicURL == "" && cfg.Storage.Driver == StorageDriverLocal {
		cfg.Storage.PublicURL = cfg.PublicBaseURL + "/files"
	}

	cfg.Uploads = UploadConfig{
		MaxImageBytes:     positiveInt64(v.GetInt64("UPLOAD_MAX_IMAGE_BYTES"), 10*1024*1024),
		MaxNoteBytes:      positiveInt64(v.GetInt64("UPLOAD_MAX_NOTE_BYTES"), 25*1024*1024),
		AllowedImageMIMEs: splitAndTrim(v.GetString("UPLOAD_ALLOWED_IMAGE_TYPES")),
		AllowedNoteMIMEs:  splitAndTrim(v.GetString("UPLOAD_ALLOWED_NOTE_TYPES")),
		SigningSecret:     v.GetString("UPLOAD_SIGNING_SECRET"),
		SignedTTL:         parseDuration(v.GetString("UPLOAD_SIGNED_TTL"), 15*time.Minute),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.Audit = AuditConfig{
		BufferSize:    v.GetInt("AUDIT_BUFFER_SIZE"),
		Workers:       v.GetInt("AUDIT_WORKERS"),
		Retention:     parseDuration(v.GetString("AUDIT_RETENTION"), 90*24*time.Hour),
		PurgeInterval: parseDuration(v.GetString("AUDIT_PURGE_INTERVAL"), 6*time.Hour),
	}

	cfg.OAuth = OAuthConfig{
		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  v.GetString("GOOGLE_CALLBACK_URL"),
		SessionSecret:      v.GetString("SESSION_SECRET"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pharmaelevate")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "720h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SUPER_ADMIN_EMAIL", "")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("MIN_PASSWORD_LENGTH", 8)

	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "PharmaElevate <no-reply@pharmaelevate.in>")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./uploads")
	v.SetDefault("STORAGE_PUBLIC_URL", "")
	v.SetDefault("STORAGE_ROOT_FOLDER", "pharmaelevate")
	v.SetDefault("S3_BUCKET", "pharmaelevate")
	v.SetDefault("S3_REGION", "auto")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_FORCE_PATH_STYLE", false)

	v.SetDefault("UPLOAD_MAX_IMAGE_BYTES", 10*1024*1024)
	v.SetDefault("UPLOAD_MAX_NOTE_BYTES", 25*1024*1024)
	v.SetDefault("UPLOAD_ALLOWED_IMAGE_TYPES", "image/jpeg,image/png,image/webp,image/gif")
	v.SetDefault("UPLOAD_ALLOWED_NOTE_TYPES", "application/pdf")
	v.SetDefault("UPLOAD_SIGNING_SECRET", "dev_upload_secret")
	v.SetDefault("UPLOAD_SIGNED_TTL", "15m")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("AUDIT_BUFFER_SIZE", 256)
	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_RETENTION", "2160h")
	v.SetDefault("AUDIT_PURGE_INTERVAL", "6h")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_CALLBACK_URL", "http://localhost:8080/api/v1/auth/google/callback")
	v.SetDefault("SESSION_SECRET", "dev_session_secret")
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == EnvProduction
}

// GoogleEnabled reports whether Google sign-in credentials are configured.
func (c OAuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveInt64(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
