package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings sourced from environment variables,
// optionally seeded from a local .env file.
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Auth          AuthConfig          `mapstructure:"auth"`
	OTP           OTPConfig           `mapstructure:"otp"`
	Mail          MailConfig          `mapstructure:"mail"`
	Certificate   CertificateConfig   `mapstructure:"certificate"`
	Clamd         ClamdConfig         `mapstructure:"clamd"`
	Log           LogConfig           `mapstructure:"log"`
	Registrations RegistrationsConfig `mapstructure:"registrations"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Snowflake     SnowflakeConfig     `mapstructure:"snowflake"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port          int           `mapstructure:"port"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	// AllowedOrigins 限制 WebSocket 的来源，为空时只允许同源。逗号分隔。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Name         string `mapstructure:"name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"sslmode"`
	LogLevel     string `mapstructure:"log_level"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	PublicEndpoint   string        `mapstructure:"public_endpoint"`
	AccessKeyID      string        `mapstructure:"access_key_id"`
	SecretAccessKey  string        `mapstructure:"secret_access_key"`
	UseSSL           bool          `mapstructure:"use_ssl"`
	Bucket           string        `mapstructure:"bucket"`
	Region           string        `mapstructure:"region"`
	BucketLookup     string        `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool          `mapstructure:"auto_create_bucket"`
	PresignTTL       time.Duration `mapstructure:"presign_ttl"`
}

// AuthConfig 描述组织者访问令牌的签发参数。
type AuthConfig struct {
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// OTPConfig 描述一次性验证码的有效期与频率限制。
type OTPConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxPerHour int           `mapstructure:"max_per_hour"`
	CodeLength int           `mapstructure:"code_length"`
}

// MailConfig 选择邮件投递方式。driver 为 brevo 时通过 Brevo HTTP API 发送，
// 为 log 时只写日志。
type MailConfig struct {
	Driver        string        `mapstructure:"driver"`
	BrevoAPIKey   string        `mapstructure:"brevo_api_key"`
	BrevoEndpoint string        `mapstructure:"brevo_endpoint"`
	SenderEmail   string        `mapstructure:"sender_email"`
	SenderName    string        `mapstructure:"sender_name"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// CertificateConfig 控制证书渲染与批量发送。
type CertificateConfig struct {
	Engine        string  `mapstructure:"engine"`
	VerifyBaseURL string  `mapstructure:"verify_base_url"`
	DateFormat    string  `mapstructure:"date_format"`
	PreviewScale  float64 `mapstructure:"preview_scale"`
	DeliveryMode  string  `mapstructure:"delivery_mode"`
}

// ClamdConfig 为空地址时跳过上传文件的病毒扫描。
type ClamdConfig struct {
	Address string `mapstructure:"address"`
}

// LogConfig 控制 slog 输出。
type LogConfig struct {
	Level        string        `mapstructure:"level"`
	Format       string        `mapstructure:"format"`
	File         string        `mapstructure:"file"`
	RotationTime time.Duration `mapstructure:"rotation_time"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// RegistrationsConfig 控制外部报名表的定时同步。
type RegistrationsConfig struct {
	SyncCron     string        `mapstructure:"sync_cron"`
	SheetsAPIURL string        `mapstructure:"sheets_api_url"`
	SheetsCSVURL string        `mapstructure:"sheets_csv_url"`
	TallyAPIKey  string        `mapstructure:"tally_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// WorkerConfig contains asynq worker settings.
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	MetricsAddr string `mapstructure:"metrics_addr"` // 为空时不暴露 /metrics
}

// SnowflakeConfig 指定活动 id 生成器的节点号。
type SnowflakeConfig struct {
	Node int64 `mapstructure:"node"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from environment variables. A .env file in the
// working directory (or the path in ENV_FILE) is loaded first when present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.max_upload_size", 20<<20)
	v.SetDefault("api.send_timeout", 10*time.Minute)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "eventcert")
	v.SetDefault("database.user", "eventcert")
	v.SetDefault("database.password", "eventcert")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "certificates")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("minio.presign_ttl", 15*time.Minute)
	v.SetDefault("auth.access_token_ttl", 12*time.Hour)
	v.SetDefault("otp.ttl", 5*time.Minute)
	v.SetDefault("otp.max_per_hour", 5)
	v.SetDefault("otp.code_length", 6)
	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.brevo_endpoint", "https://api.brevo.com/v3/smtp/email")
	v.SetDefault("mail.sender_name", "Event Certificates")
	v.SetDefault("mail.timeout", 30*time.Second)
	v.SetDefault("certificate.engine", "pdf")
	v.SetDefault("certificate.verify_base_url", "http://localhost:3000")
	v.SetDefault("certificate.date_format", "1/2/2006")
	v.SetDefault("certificate.preview_scale", 1.0)
	v.SetDefault("certificate.delivery_mode", "sync")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.rotation_time", 24*time.Hour)
	v.SetDefault("log.max_age", 7*24*time.Hour)
	v.SetDefault("registrations.sync_cron", "*/10 * * * *")
	v.SetDefault("registrations.sheets_api_url", "https://sheets.googleapis.com")
	v.SetDefault("registrations.sheets_csv_url", "https://docs.google.com")
	v.SetDefault("registrations.timeout", 20*time.Second)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("snowflake.node", 1)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.max_upload_size":            "API_MAX_UPLOAD_SIZE",
		"api.send_timeout":               "API_SEND_TIMEOUT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.log_level":             "DATABASE_LOG_LEVEL",
		"database.max_idle_conns":        "DATABASE_MAX_IDLE_CONNS",
		"database.max_open_conns":        "DATABASE_MAX_OPEN_CONNS",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"redis.password":                 "REDIS_PASSWORD",
		"redis.db":                       "REDIS_DB",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"minio.presign_ttl":              "MINIO_PRESIGN_TTL",
		"auth.private_key_path":          "AUTH_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "AUTH_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":          "AUTH_ACCESS_TOKEN_TTL",
		"otp.ttl":                        "OTP_TTL",
		"otp.max_per_hour":               "OTP_MAX_PER_HOUR",
		"otp.code_length":                "OTP_CODE_LENGTH",
		"mail.driver":                    "MAIL_DRIVER",
		"mail.brevo_api_key":             "BREVO_API_KEY",
		"mail.brevo_endpoint":            "BREVO_ENDPOINT",
		"mail.sender_email":              "MAIL_SENDER_EMAIL",
		"mail.sender_name":               "MAIL_SENDER_NAME",
		"mail.timeout":                   "MAIL_TIMEOUT",
		"certificate.engine":             "CERTIFICATE_ENGINE",
		"certificate.verify_base_url":    "CERTIFICATE_VERIFY_BASE_URL",
		"certificate.date_format":        "CERTIFICATE_DATE_FORMAT",
		"certificate.preview_scale":      "CERTIFICATE_PREVIEW_SCALE",
		"certificate.delivery_mode":      "CERTIFICATE_DELIVERY_MODE",
		"clamd.address":                  "CLAMD_ADDRESS",
		"log.level":                      "LOG_LEVEL",
		"log.format":                     "LOG_FORMAT",
		"log.file":                       "LOG_FILE",
		"log.rotation_time":              "LOG_ROTATION_TIME",
		"log.max_age":                    "LOG_MAX_AGE",
		"registrations.sync_cron":        "REGISTRATIONS_SYNC_CRON",
		"registrations.sheets_api_url":   "REGISTRATIONS_SHEETS_API_URL",
		"registrations.sheets_csv_url":   "REGISTRATIONS_SHEETS_CSV_URL",
		"registrations.tally_api_key":    "TALLY_API_KEY",
		"registrations.timeout":          "REGISTRATIONS_TIMEOUT",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.metrics_addr":            "WORKER_METRICS_ADDR",
		"snowflake.node":                 "SNOWFLAKE_NODE",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	switch cfg.Mail.Driver {
	case "log", "disabled":
	case "brevo":
		if cfg.Mail.BrevoAPIKey == "" {
			return errors.New("brevo api key is required when mail driver is brevo")
		}
		if cfg.Mail.SenderEmail == "" {
			return errors.New("mail sender email is required when mail driver is brevo")
		}
	default:
		return fmt.Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
	switch cfg.Certificate.Engine {
	case "pdf", "chromium":
	default:
		return fmt.Errorf("unknown certificate engine %q", cfg.Certificate.Engine)
	}
	switch cfg.Certificate.DeliveryMode {
	case "sync", "queued":
	default:
		return fmt.Errorf("unknown certificate delivery mode %q", cfg.Certificate.DeliveryMode)
	}
	if strings.TrimSpace(cfg.Certificate.VerifyBaseURL) == "" {
		return errors.New("certificate verify base url is required")
	}
	if cfg.Snowflake.Node < 0 || cfg.Snowflake.Node > 1023 {
		return errors.New("snowflake node must be between 0 and 1023")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
