// Package config provides application configuration management using Viper.
// Values come from defaults, an optional config.yaml, an optional .env file
// and the process environment, with the environment taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/ferraceros/ferrabot/internal/errors"
)

// Row sink backends.
const (
	SheetsBackendGoogle   = "google"
	SheetsBackendPostgres = "postgres"
	SheetsBackendBolt     = "bolt"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	WhatsApp     WhatsAppConfig
	OpenAI       OpenAIConfig
	Sheets       SheetsConfig
	Database     DatabaseConfig
	Bolt         BoltConfig
	Conversation ConversationConfig
	Content      ContentConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AdminRateLimit caps /admin requests per client IP per AdminRateWindow.
	AdminRateLimit  int
	AdminRateWindow time.Duration
	// AdminToken guards /admin with a bearer token; empty disables /admin.
	AdminToken string
}

// Address returns host:port for the HTTP listener.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// WhatsAppConfig holds Cloud API credentials and webhook secrets.
type WhatsAppConfig struct {
	APIURL        string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	AppSecret     string
	// BotID is the bot's own WhatsApp id; events from it are dropped.
	BotID   string
	Timeout time.Duration
}

// OpenAIConfig holds assistant settings.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// SheetsConfig selects and configures the row sink.
type SheetsConfig struct {
	Backend         string
	SpreadsheetID   string
	Range           string
	CredentialsFile string
	Timezone        string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// BoltConfig holds the local row journal settings.
type BoltConfig struct {
	Path string
}

// ConversationConfig tunes the conversation engine.
type ConversationConfig struct {
	InactivityTimeout time.Duration
	FeedbackEnabled   bool
	ExitCommand       string
	DedupeSize        int
	DedupeTTL         time.Duration
	// MailboxSize bounds the events queued per user before new ones are dropped.
	MailboxSize int
}

// ContentConfig points at an optional content catalog overriding the built-in one.
type ContentConfig struct {
	Path string
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ferrabot")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, apperrors.ConfigError("error reading config file", err)
		}
	}

	cfg := fromViper(v)

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ConfigError("invalid configuration", err)
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Environment:     v.GetString("server.env"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AdminRateLimit:  v.GetInt("server.admin_rate_limit"),
			AdminRateWindow: v.GetDuration("server.admin_rate_window"),
			AdminToken:      v.GetString("server.admin_token"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		WhatsApp: WhatsAppConfig{
			APIURL:        v.GetString("whatsapp.api_url"),
			APIVersion:    v.GetString("whatsapp.api_version"),
			PhoneNumberID: v.GetString("whatsapp.phone_number_id"),
			AccessToken:   v.GetString("whatsapp.access_token"),
			VerifyToken:   v.GetString("whatsapp.verify_token"),
			AppSecret:     v.GetString("whatsapp.app_secret"),
			BotID:         v.GetString("whatsapp.bot_id"),
			Timeout:       v.GetDuration("whatsapp.timeout"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai.api_key"),
			Model:   v.GetString("openai.model"),
			BaseURL: v.GetString("openai.base_url"),
			Timeout: v.GetDuration("openai.timeout"),
		},
		Sheets: SheetsConfig{
			Backend:         strings.ToLower(v.GetString("sheets.backend")),
			SpreadsheetID:   v.GetString("sheets.spreadsheet_id"),
			Range:           v.GetString("sheets.range"),
			CredentialsFile: v.GetString("sheets.credentials_file"),
			Timezone:        v.GetString("sheets.timezone"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
		},
		Bolt: BoltConfig{
			Path: v.GetString("bolt.path"),
		},
		Conversation: ConversationConfig{
			InactivityTimeout: v.GetDuration("conversation.inactivity_timeout"),
			FeedbackEnabled:   v.GetBool("conversation.feedback_enabled"),
			ExitCommand:       v.GetString("conversation.exit_command"),
			DedupeSize:        v.GetInt("conversation.dedupe_size"),
			DedupeTTL:         v.GetDuration("conversation.dedupe_ttl"),
			MailboxSize:       v.GetInt("conversation.mailbox_size"),
		},
		Content: ContentConfig{
			Path: v.GetString("content.path"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.admin_rate_limit", 60)
	v.SetDefault("server.admin_rate_window", "1m")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// WhatsApp Cloud API defaults
	v.SetDefault("whatsapp.api_url", "https://graph.facebook.com")
	v.SetDefault("whatsapp.api_version", "v21.0")
	v.SetDefault("whatsapp.timeout", "10s")

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", "30s")

	// Spreadsheet defaults
	v.SetDefault("sheets.backend", SheetsBackendGoogle)
	v.SetDefault("sheets.range", "cotizacion")
	v.SetDefault("sheets.credentials_file", "credentials/credentials.json")
	v.SetDefault("sheets.timezone", "America/Bogota")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ferrabot")
	v.SetDefault("database.name", "ferrabot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)
	v.SetDefault("database.connection_max_lifetime", "5m")

	v.SetDefault("bolt.path", "data/rows.db")

	// Conversation defaults
	v.SetDefault("conversation.inactivity_timeout", "5m")
	v.SetDefault("conversation.feedback_enabled", true)
	v.SetDefault("conversation.exit_command", "salir")
	v.SetDefault("conversation.dedupe_size", 4096)
	v.SetDefault("conversation.dedupe_ttl", "10m")
	v.SetDefault("conversation.mailbox_size", 32)
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	var missing []string

	if c.WhatsApp.PhoneNumberID == "" {
		missing = append(missing, "WHATSAPP_PHONE_NUMBER_ID")
	}
	if c.WhatsApp.AccessToken == "" {
		missing = append(missing, "WHATSAPP_ACCESS_TOKEN")
	}
	if c.WhatsApp.VerifyToken == "" {
		missing = append(missing, "WHATSAPP_VERIFY_TOKEN")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	switch c.Sheets.Backend {
	case SheetsBackendGoogle:
		if c.Sheets.SpreadsheetID == "" {
			missing = append(missing, "SHEETS_SPREADSHEET_ID")
		}
		if c.Sheets.CredentialsFile == "" {
			missing = append(missing, "SHEETS_CREDENTIALS_FILE")
		}
	case SheetsBackendPostgres:
		if c.Database.Password == "" {
			missing = append(missing, "DATABASE_PASSWORD")
		}
	case SheetsBackendBolt:
		if c.Bolt.Path == "" {
			missing = append(missing, "BOLT_PATH")
		}
	default:
		return fmt.Errorf("invalid sheets backend %q: want google, postgres or bolt", c.Sheets.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Conversation.InactivityTimeout <= 0 {
		return fmt.Errorf("conversation.inactivity_timeout must be positive, got %s", c.Conversation.InactivityTimeout)
	}
	if strings.TrimSpace(c.Conversation.ExitCommand) == "" {
		return errors.New("conversation.exit_command must not be empty")
	}
	if _, err := time.LoadLocation(c.Sheets.Timezone); err != nil {
		return fmt.Errorf("invalid sheets.timezone %q: %w", c.Sheets.Timezone, err)
	}

	return nil
}

// Location returns the timezone rows are stamped in.
func (c *SheetsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
