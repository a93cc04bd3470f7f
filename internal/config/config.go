package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SIGNOFF_DB_HOST.
const EnvPrefix = "SIGNOFF"

// Config holds the configuration for the application.
type Config struct {
	Environment   string         `mapstructure:"environment"`
	DevModeBypass bool           `mapstructure:"dev_mode_bypass"`
	Server        ServerConfig   `mapstructure:"server"`
	DB            DBConfig       `mapstructure:"db"`
	Auth          AuthConfig     `mapstructure:"auth"`
	TLS           TLSConfig      `mapstructure:"tls"`
	Log           LogConfig      `mapstructure:"log"`
	Workflow      WorkflowConfig `mapstructure:"workflow"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig configures the PostgreSQL pool.
type DBConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// AuthConfig configures the OIDC provider.
type AuthConfig struct {
	OktaDomain      string `mapstructure:"okta_domain"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	RedirectURL     string `mapstructure:"redirect_url"`
	SwaggerClientID string `mapstructure:"swagger_client_id"`
}

// TLSConfig configures HTTPS.
type TLSConfig struct {
	Enable    bool     `mapstructure:"enable"`
	CertFile  string   `mapstructure:"cert_file"`
	KeyFile   string   `mapstructure:"key_file"`
	Hostnames []string `mapstructure:"hostnames"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// WorkflowConfig tunes the approval engine.
type WorkflowConfig struct {
	HistoryLimit        int  `mapstructure:"history_limit"`
	MaxSignatureBytes   int  `mapstructure:"max_signature_bytes"`
	AllowForcedRedefine bool `mapstructure:"allow_forced_redefine"`
}

var defaults = map[string]any{
	"environment":     "PROD",
	"dev_mode_bypass": false,

	"server.address":          ":8080",
	"server.read_timeout":     15 * time.Second,
	"server.write_timeout":    15 * time.Second,
	"server.idle_timeout":     60 * time.Second,
	"server.shutdown_timeout": 30 * time.Second,

	"db.host":             "localhost",
	"db.port":             5432,
	"db.user":             "postgres",
	"db.password":         "",
	"db.name":             "signoff",
	"db.sslmode":          "disable",
	"db.max_conns":        10,
	"db.migrate_on_start": false,

	"auth.okta_domain":       "",
	"auth.client_id":         "",
	"auth.client_secret":     "",
	"auth.redirect_url":      "",
	"auth.swagger_client_id": "",

	"tls.enable":    false,
	"tls.cert_file": "",
	"tls.key_file":  "",
	"tls.hostnames": []string{},

	"log.level":       "info",
	"log.format":      "json",
	"log.output":      "stdout",
	"log.file_path":   "logs/signoff.log",
	"log.max_size":    100,
	"log.max_backups": 5,
	"log.max_age":     30,
	"log.compress":    true,

	"workflow.history_limit":         20,
	"workflow.max_signature_bytes":   2 << 20,
	"workflow.allow_forced_redefine": true,
}

// LoadConfig loads the configuration from a file and the environment.
//
// With an empty path, config.yaml is looked up in . and ./config and may be
// absent. A path ending in .env is read as a dotenv file of SIGNOFF_*
// variables; any other path is read as a config file and must exist. Real
// environment variables win over both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path == "":
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	case strings.HasSuffix(path, ".env"):
		if err := applyDotEnv(v, path); err != nil {
			return nil, err
		}
	default:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)
	config.Environment = strings.ToUpper(strings.TrimSpace(config.Environment))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDotEnv maps SIGNOFF_* entries of a dotenv file onto known keys.
// Variables already present in the process environment are left alone.
func applyDotEnv(v *viper.Viper, path string) error {
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	for key := range defaults {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if env.IsSet(strings.ToLower(name)) {
			v.Set(key, env.Get(strings.ToLower(name)))
		}
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Environment != "DEV" && c.Environment != "PROD" {
		return fmt.Errorf("environment must be DEV or PROD, got %q", c.Environment)
	}
	if c.Workflow.HistoryLimit <= 0 {
		return fmt.Errorf("workflow.history_limit must be positive, got %d", c.Workflow.HistoryLimit)
	}
	if c.Workflow.MaxSignatureBytes <= 0 {
		return fmt.Errorf("workflow.max_signature_bytes must be positive, got %d", c.Workflow.MaxSignatureBytes)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Output) {
	case "stdout", "file":
	default:
		return fmt.Errorf("unsupported log output: %s", c.Log.Output)
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be positive, got %d", c.DB.MaxConns)
	}
	return nil
}

// DevBypass reports whether authentication is bypassed.
func (c *Config) DevBypass() bool {
	return c.Environment == "DEV" && c.DevModeBypass
}

// DSN returns the PostgreSQL connection URL.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
