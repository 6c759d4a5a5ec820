// Package config loads runtime configuration from config.yaml and the
// environment via viper. Environment variables use the CLAIMFLOW_ prefix with
// dots replaced by underscores, e.g. CLAIMFLOW_SMTP_HOST.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	SessionDir string        `mapstructure:"session_dir"`
	AuditDB    string        `mapstructure:"audit_db"`
	LogLevel   string        `mapstructure:"log_level"`
	LogFormat  string        `mapstructure:"log_format"`
	Poll       time.Duration `mapstructure:"poll_interval"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// MaxAttachmentSize caps inbound attachments, in bytes.
	MaxAttachmentSize int64 `mapstructure:"max_attachment_size"`

	IMAP   IMAP   `mapstructure:"imap"`
	SMTP   SMTP   `mapstructure:"smtp"`
	OpenAI OpenAI `mapstructure:"openai"`

	// Assistants maps specialist agent names to deployed assistant ids.
	Assistants map[string]string `mapstructure:"assistants"`
}

type IMAP struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
}

type SMTP struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OpenAI struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// Init wires viper's defaults, env binding, and config file search paths.
// Called once from the CLI root.
func Init(configFile string) error {
	viper.SetDefault("session_dir", "sessions")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("poll_interval", 10*time.Second)
	viper.SetDefault("run_timeout", 120*time.Second)
	viper.SetDefault("max_attachment_size", int64(10<<20))
	viper.SetDefault("imap.mailbox", "INBOX")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("openai.model", "gpt-4.1")

	viper.SetEnvPrefix("CLAIMFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".claimflow"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configFile == "" {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load unmarshals the merged configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if cfg.AuditDB == "" {
		cfg.AuditDB = filepath.Join(cfg.SessionDir, "audit.db")
	}
	return &cfg, nil
}
