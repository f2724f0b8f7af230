package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rezonia/arca-fiscal/internal/padron"
	"github.com/rezonia/arca-fiscal/internal/signature"
	"github.com/rezonia/arca-fiscal/internal/ticket"
	"github.com/rezonia/arca-fiscal/internal/wsfe"
)

// Environments
const (
	EnvHomologation = "homologation"
	EnvProduction   = "production"
)

// Ticket store kinds
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	ARCA    ARCAConfig    `yaml:"arca"`
	Signer  SignerConfig  `yaml:"signer"`
	Ticket  TicketConfig  `yaml:"ticket"`
	Redis   RedisConfig   `yaml:"redis"`
	HTTP    HTTPConfig    `yaml:"http"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Invoice InvoiceConfig `yaml:"invoice"`
}

// ARCAConfig identifies the taxpayer and the authority environment
type ARCAConfig struct {
	CUIT           string `yaml:"cuit"`
	Environment    string `yaml:"environment"`
	CertPath       string `yaml:"cert_path"`
	KeyPath        string `yaml:"key_path"`
	PKCS12Path     string `yaml:"pkcs12_path"`
	PKCS12Password string `yaml:"pkcs12_password"`
	WSAAEndpoint   string `yaml:"wsaa_endpoint"`
	WSFEEndpoint   string `yaml:"wsfe_endpoint"`
	PadronEndpoint string `yaml:"padron_endpoint"`
}

// SignerConfig selects the CMS implementation
type SignerConfig struct {
	Kind        string `yaml:"kind"`
	OpenSSLPath string `yaml:"openssl_path"`
}

// TicketConfig tunes access ticket caching and renewal
type TicketConfig struct {
	SafetyMargin  time.Duration `yaml:"safety_margin"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Store         string        `yaml:"store"`
	Dir           string        `yaml:"dir"`
}

// RedisConfig holds Redis connection settings for the ticket store
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// HTTPConfig bounds every outbound call to the authority
type HTTPConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// ServerConfig configures the HTTP API surface
type ServerConfig struct {
	Address      string        `yaml:"address"`
	APIKey       string        `yaml:"api_key"`
	Debug        bool          `yaml:"debug"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// InvoiceConfig holds draft defaults
type InvoiceConfig struct {
	DefaultCurrency string `yaml:"default_currency"`
	DefaultConcept  int    `yaml:"default_concept"`
	VerifyBuyerCUIT bool   `yaml:"verify_buyer_cuit"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ARCA: ARCAConfig{
			Environment: EnvHomologation,
		},
		Signer: SignerConfig{
			Kind: signature.KindCMS,
		},
		Ticket: TicketConfig{
			SafetyMargin:  5 * time.Minute,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
			Store:         StoreFile,
			Dir:           "tokens",
		},
		Redis: RedisConfig{
			Host:   "localhost",
			Port:   "6379",
			Prefix: "arca:ticket:",
		},
		HTTP: HTTPConfig{
			ConnectTimeout: 30 * time.Second,
			ReadTimeout:    30 * time.Second,
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Invoice: InvoiceConfig{
			DefaultCurrency: "PES",
			DefaultConcept:  1,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if any),
// then environment variables (a .env file in the working directory is loaded first)
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ARCA.CUIT = getEnv("ARCA_CUIT", cfg.ARCA.CUIT)
	cfg.ARCA.Environment = strings.ToLower(getEnv("ARCA_ENV", cfg.ARCA.Environment))
	cfg.ARCA.CertPath = getEnv("ARCA_CERT_PATH", cfg.ARCA.CertPath)
	cfg.ARCA.KeyPath = getEnv("ARCA_KEY_PATH", cfg.ARCA.KeyPath)
	cfg.ARCA.PKCS12Path = getEnv("ARCA_PKCS12_PATH", cfg.ARCA.PKCS12Path)
	cfg.ARCA.PKCS12Password = getEnv("ARCA_PKCS12_PASSWORD", cfg.ARCA.PKCS12Password)
	cfg.ARCA.WSAAEndpoint = getEnv("ARCA_WSAA_URL", cfg.ARCA.WSAAEndpoint)
	cfg.ARCA.WSFEEndpoint = getEnv("ARCA_WSFE_URL", cfg.ARCA.WSFEEndpoint)
	cfg.ARCA.PadronEndpoint = getEnv("ARCA_PADRON_URL", cfg.ARCA.PadronEndpoint)

	cfg.Signer.Kind = getEnv("ARCA_SIGNER", cfg.Signer.Kind)
	cfg.Signer.OpenSSLPath = getEnv("OPENSSL_PATH", cfg.Signer.OpenSSLPath)

	cfg.Ticket.SafetyMargin = getEnvAsDuration("TICKET_SAFETY_MARGIN", cfg.Ticket.SafetyMargin)
	cfg.Ticket.RetryAttempts = getEnvAsInt("TICKET_RETRY_ATTEMPTS", cfg.Ticket.RetryAttempts)
	cfg.Ticket.RetryDelay = getEnvAsDuration("TICKET_RETRY_DELAY", cfg.Ticket.RetryDelay)
	cfg.Ticket.Store = strings.ToLower(getEnv("TICKET_STORE", cfg.Ticket.Store))
	cfg.Ticket.Dir = getEnv("TICKET_DIR", cfg.Ticket.Dir)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = getEnv("REDIS_PREFIX", cfg.Redis.Prefix)

	cfg.HTTP.ConnectTimeout = getEnvAsDuration("HTTP_CONNECT_TIMEOUT", cfg.HTTP.ConnectTimeout)
	cfg.HTTP.ReadTimeout = getEnvAsDuration("HTTP_READ_TIMEOUT", cfg.HTTP.ReadTimeout)

	cfg.Server.Address = getEnv("SERVER_ADDRESS", cfg.Server.Address)
	cfg.Server.APIKey = getEnv("API_KEY", cfg.Server.APIKey)
	cfg.Server.Debug = getEnvAsBool("SERVER_DEBUG", cfg.Server.Debug)
	cfg.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Invoice.DefaultCurrency = getEnv("INVOICE_DEFAULT_CURRENCY", cfg.Invoice.DefaultCurrency)
	cfg.Invoice.DefaultConcept = getEnvAsInt("INVOICE_DEFAULT_CONCEPT", cfg.Invoice.DefaultConcept)
	cfg.Invoice.VerifyBuyerCUIT = getEnvAsBool("INVOICE_VERIFY_BUYER_CUIT", cfg.Invoice.VerifyBuyerCUIT)
}

// Validate checks that the configuration can run the authorization flow
func (c *Config) Validate() error {
	if len(c.ARCA.CUIT) != 11 || !allDigits(c.ARCA.CUIT) {
		return fmt.Errorf("ARCA_CUIT must be 11 digits, got %q", c.ARCA.CUIT)
	}
	switch c.ARCA.Environment {
	case EnvHomologation, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q, expected %s or %s", c.ARCA.Environment, EnvHomologation, EnvProduction)
	}

	switch c.Signer.Kind {
	case signature.KindCMS, signature.KindOpenSSL:
	default:
		return fmt.Errorf("unknown signer %q", c.Signer.Kind)
	}
	if c.ARCA.PKCS12Path != "" {
		if c.Signer.Kind == signature.KindOpenSSL {
			return fmt.Errorf("the openssl signer needs a PEM certificate and key, not a PKCS#12 bundle")
		}
		if err := readable(c.ARCA.PKCS12Path); err != nil {
			return err
		}
	} else {
		if c.ARCA.CertPath == "" || c.ARCA.KeyPath == "" {
			return fmt.Errorf("signing material missing: set ARCA_CERT_PATH and ARCA_KEY_PATH or ARCA_PKCS12_PATH")
		}
		if err := readable(c.ARCA.CertPath); err != nil {
			return err
		}
		if err := readable(c.ARCA.KeyPath); err != nil {
			return err
		}
	}

	switch c.Ticket.Store {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.Ticket.Dir == "" {
			return fmt.Errorf("TICKET_DIR is required for the file store")
		}
	default:
		return fmt.Errorf("unknown ticket store %q", c.Ticket.Store)
	}
	if c.Ticket.RetryAttempts < 1 {
		return fmt.Errorf("TICKET_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Ticket.SafetyMargin < 0 || c.Ticket.RetryDelay < 0 {
		return fmt.Errorf("ticket margin and retry delay must not be negative")
	}
	if c.HTTP.ConnectTimeout <= 0 || c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.Invoice.DefaultConcept < 1 || c.Invoice.DefaultConcept > 3 {
		return fmt.Errorf("INVOICE_DEFAULT_CONCEPT must be 1, 2 or 3")
	}
	return nil
}

// Production reports whether the production environment is selected
func (c *Config) Production() bool {
	return c.ARCA.Environment == EnvProduction
}

// WSAAEndpoint returns the login endpoint for the configured environment
func (c *Config) WSAAEndpoint() string {
	return c.endpoint(c.ARCA.WSAAEndpoint, ticket.HomologationEndpoint, ticket.ProductionEndpoint)
}

// WSFEEndpoint returns the invoicing endpoint for the configured environment
func (c *Config) WSFEEndpoint() string {
	return c.endpoint(c.ARCA.WSFEEndpoint, wsfe.HomologationEndpoint, wsfe.ProductionEndpoint)
}

// PadronEndpoint returns the taxpayer registry endpoint for the configured environment
func (c *Config) PadronEndpoint() string {
	return c.endpoint(c.ARCA.PadronEndpoint, padron.HomologationEndpoint, padron.ProductionEndpoint)
}

func (c *Config) endpoint(override, homologation, production string) string {
	if override != "" {
		return override
	}
	if c.Production() {
		return production
	}
	return homologation
}

// SignerOptions maps the configuration onto signature.Options
func (c *Config) SignerOptions() signature.Options {
	return signature.Options{
		Kind:           c.Signer.Kind,
		CertPath:       c.ARCA.CertPath,
		KeyPath:        c.ARCA.KeyPath,
		PKCS12Path:     c.ARCA.PKCS12Path,
		PKCS12Password: c.ARCA.PKCS12Password,
		OpenSSLPath:    c.Signer.OpenSSLPath,
	}
}

func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("signing material not readable: %w", err)
	}
	return f.Close()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
