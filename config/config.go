package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/farellandr/storefront/internal/models"
	"github.com/farellandr/storefront/internal/services"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	Port        string
	JWTSecret   string
	LogLevel    string
	PolicyPath  string
	Policy      Policy
}

// Policy is the optional YAML file holding business thresholds.
type Policy struct {
	DuplicatePaymentWindow time.Duration `yaml:"duplicate_payment_window"`
	PendingPaymentTTL      time.Duration `yaml:"pending_payment_ttl"`
	MaxCategoryDepth       int           `yaml:"max_category_depth"`
	DefaultCurrency        string        `yaml:"default_currency"`
}

func defaultPolicy() Policy {
	d := services.DefaultPolicy()
	return Policy{
		DuplicatePaymentWindow: d.DuplicatePaymentWindow,
		PendingPaymentTTL:      d.PendingPaymentTTL,
		MaxCategoryDepth:       d.MaxCategoryDepth,
		DefaultCurrency:        d.DefaultCurrency,
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      os.Getenv("DB_HOST"),
		DBPort:      os.Getenv("DB_PORT"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      os.Getenv("DB_NAME"),
		Port:        os.Getenv("PORT"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		PolicyPath:  os.Getenv("STOREFRONT_CONFIG"),
		Policy:      defaultPolicy(),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	if cfg.PolicyPath != "" {
		policy, err := LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		cfg.Policy = *policy
	}
	return cfg, nil
}

// LoadPolicy reads a YAML policy file. Keys left out keep their defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	policy := defaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	policy.DefaultCurrency = strings.ToUpper(strings.TrimSpace(policy.DefaultCurrency))

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (p Policy) Validate() error {
	if p.DuplicatePaymentWindow <= 0 {
		return fmt.Errorf("duplicate_payment_window must be positive")
	}
	if p.PendingPaymentTTL <= 0 {
		return fmt.Errorf("pending_payment_ttl must be positive")
	}
	if p.MaxCategoryDepth <= 0 {
		return fmt.Errorf("max_category_depth must be positive")
	}
	if len(p.DefaultCurrency) != 3 {
		return fmt.Errorf("default_currency must be a 3-letter code")
	}
	return nil
}

// Services converts the file policy into the core's policy.
func (p Policy) Services() services.Policy {
	return services.Policy{
		DuplicatePaymentWindow: p.DuplicatePaymentWindow,
		PendingPaymentTTL:      p.PendingPaymentTTL,
		MaxCategoryDepth:       p.MaxCategoryDepth,
		DefaultCurrency:        p.DefaultCurrency,
	}
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" && c.DBHost == "" {
		return fmt.Errorf("either DATABASE_URL or DB_HOST is required")
	}
	return c.Policy.Validate()
}

// RequireJWTSecret is checked only by commands that serve HTTP.
func (c *Config) RequireJWTSecret() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func (c *Config) dsn() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&TimeZone=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// OpenDatabase picks the driver from the URL scheme.
func OpenDatabase(databaseURL string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return gorm.Open(postgres.Open(databaseURL), gormCfg)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		db, err := gorm.Open(sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	return nil, fmt.Errorf("unsupported database URL: %s", databaseURL)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	db, err := OpenDatabase(cfg.dsn())
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}
