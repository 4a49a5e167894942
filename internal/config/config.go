package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Argon2     Argon2Config
	OTP        OTPConfig
	Captcha    CaptchaConfig
	RabbitMQ   RabbitMQConfig
	Storage    StorageConfig
	Payment    PaymentConfig
	Settlement SettlementConfig
}

type ServerConfig struct {
	Port            string
	PublicURL       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	SecretKey string
	Expiry    time.Duration
}

type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

type OTPConfig struct {
	Length         int
	TTL            time.Duration
	ResendCooldown time.Duration
	Secret         string
}

// CaptchaConfig is disabled when Secret is empty.
type CaptchaConfig struct {
	Secret    string
	VerifyURL string
	Timeout   time.Duration
}

// RabbitMQConfig is disabled when URL is empty; notifications are then logged.
type RabbitMQConfig struct {
	URL          string
	ContactInbox string
}

// StorageConfig is disabled when URL is empty.
type StorageConfig struct {
	URL           string
	ServiceKey    string
	ReceiptBucket string
	SignedURLTTL  time.Duration
}

type PaymentConfig struct {
	PayeeVPA       string
	PayeeName      string
	Currency       string
	DebtorBIC      string
	CreditorMember string
	ValidityDays   int
	MaxBulkItems   int
	BulkWorkers    int
}

type SettlementConfig struct {
	Schedule string
	Timezone string
}

var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.public_url":       "PUBLIC_URL",
	"server.allowed_origins":  "ALLOWED_ORIGINS",
	"database.host":           "DATABASE_HOST",
	"database.port":           "DATABASE_PORT",
	"database.user":           "DATABASE_USER",
	"database.password":       "DATABASE_PASSWORD",
	"database.name":           "DATABASE_NAME",
	"database.ssl_mode":       "DATABASE_SSL_MODE",
	"database.auto_migrate":   "DATABASE_AUTO_MIGRATE",
	"redis.host":              "REDIS_HOST",
	"redis.port":              "REDIS_PORT",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"jwt.secret_key":          "JWT_SECRET_KEY",
	"jwt.expiry_hours":        "JWT_EXPIRY_HOURS",
	"argon2.time":             "ARGON2_TIME",
	"argon2.memory":           "ARGON2_MEMORY",
	"argon2.threads":          "ARGON2_THREADS",
	"argon2.key_length":       "ARGON2_KEY_LENGTH",
	"argon2.salt_length":      "ARGON2_SALT_LENGTH",
	"otp.length":              "OTP_LENGTH",
	"otp.ttl":                 "OTP_TTL",
	"otp.resend_cooldown":     "OTP_RESEND_COOLDOWN",
	"otp.secret":              "OTP_SECRET",
	"captcha.secret":          "CAPTCHA_SECRET",
	"captcha.verify_url":      "CAPTCHA_VERIFY_URL",
	"rabbitmq.url":            "RABBITMQ_URL",
	"rabbitmq.contact_inbox":  "CONTACT_INBOX",
	"storage.url":             "SUPABASE_STORAGE_URL",
	"storage.service_key":     "SUPABASE_SERVICE_KEY",
	"storage.receipt_bucket":  "RECEIPT_BUCKET",
	"payment.payee_vpa":       "PAYMENT_PAYEE_VPA",
	"payment.payee_name":      "PAYMENT_PAYEE_NAME",
	"payment.currency":        "PAYMENT_CURRENCY",
	"payment.debtor_bic":      "PAYMENT_DEBTOR_BIC",
	"payment.creditor_member": "PAYMENT_CREDITOR_MEMBER",
	"settlement.schedule":     "SETTLEMENT_SCHEDULE",
	"settlement.timezone":     "SETTLEMENT_TIMEZONE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", "https://*,http://*")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "gridbill")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("argon2.time", 1)
	v.SetDefault("argon2.memory", 64*1024)
	v.SetDefault("argon2.threads", 4)
	v.SetDefault("argon2.key_length", 32)
	v.SetDefault("argon2.salt_length", 16)

	v.SetDefault("otp.length", 6)
	v.SetDefault("otp.ttl", 5*time.Minute)
	v.SetDefault("otp.resend_cooldown", 30*time.Second)

	v.SetDefault("captcha.verify_url", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	v.SetDefault("captcha.timeout", 5*time.Second)

	v.SetDefault("rabbitmq.contact_inbox", "support@gridbill.example")

	v.SetDefault("storage.receipt_bucket", "receipts")
	v.SetDefault("storage.signed_url_ttl", 15*time.Minute)

	v.SetDefault("payment.payee_name", "GridBill Collections")
	v.SetDefault("payment.currency", "INR")
	v.SetDefault("payment.validity_days", 7)
	v.SetDefault("payment.max_bulk_items", 50)
	v.SetDefault("payment.bulk_workers", 4)

	v.SetDefault("settlement.schedule", "@every 15m")
	v.SetDefault("settlement.timezone", "UTC")
}

// Load reads .env (if present) and the environment into a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			slog.Debug("[CONFIG] env file not loaded, using environment only", "file", envFile, "err", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			PublicURL:       strings.TrimRight(v.GetString("server.public_url"), "/"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  splitList(v.GetString("server.allowed_origins")),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
			Expiry:    time.Duration(v.GetInt("jwt.expiry_hours")) * time.Hour,
		},
		Argon2: Argon2Config{
			Time:       v.GetUint32("argon2.time"),
			Memory:     v.GetUint32("argon2.memory"),
			Threads:    uint8(v.GetUint("argon2.threads")),
			KeyLength:  v.GetUint32("argon2.key_length"),
			SaltLength: v.GetInt("argon2.salt_length"),
		},
		OTP: OTPConfig{
			Length:         v.GetInt("otp.length"),
			TTL:            v.GetDuration("otp.ttl"),
			ResendCooldown: v.GetDuration("otp.resend_cooldown"),
			Secret:         v.GetString("otp.secret"),
		},
		Captcha: CaptchaConfig{
			Secret:    v.GetString("captcha.secret"),
			VerifyURL: v.GetString("captcha.verify_url"),
			Timeout:   v.GetDuration("captcha.timeout"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:          v.GetString("rabbitmq.url"),
			ContactInbox: v.GetString("rabbitmq.contact_inbox"),
		},
		Storage: StorageConfig{
			URL:           v.GetString("storage.url"),
			ServiceKey:    v.GetString("storage.service_key"),
			ReceiptBucket: v.GetString("storage.receipt_bucket"),
			SignedURLTTL:  v.GetDuration("storage.signed_url_ttl"),
		},
		Payment: PaymentConfig{
			PayeeVPA:       v.GetString("payment.payee_vpa"),
			PayeeName:      v.GetString("payment.payee_name"),
			Currency:       v.GetString("payment.currency"),
			DebtorBIC:      v.GetString("payment.debtor_bic"),
			CreditorMember: v.GetString("payment.creditor_member"),
			ValidityDays:   v.GetInt("payment.validity_days"),
			MaxBulkItems:   v.GetInt("payment.max_bulk_items"),
			BulkWorkers:    v.GetInt("payment.bulk_workers"),
		},
		Settlement: SettlementConfig{
			Schedule: v.GetString("settlement.schedule"),
			Timezone: v.GetString("settlement.timezone"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the server cannot run without.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY_HOURS must be positive")
	}
	if c.OTP.Length < 4 || c.OTP.Length > 9 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 9, got %d", c.OTP.Length)
	}
	if c.Payment.BulkWorkers < 1 {
		return fmt.Errorf("payment bulk workers must be at least 1")
	}
	if c.OTP.Secret == "" {
		c.OTP.Secret = c.JWT.SecretKey
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
