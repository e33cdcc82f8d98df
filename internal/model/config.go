package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultCheckInterval      = 60 * time.Second
	DefaultCheckTimeout       = 5 * time.Minute
	DefaultSupervisorInterval = 2 * time.Second
)

// ServerConfig describes the incoming mail server shared by all accounts.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// UsernameSuffix is appended to usernames that carry no domain.
	UsernameSuffix string `mapstructure:"username_suffix" yaml:"username_suffix"`
}

// ProxyConfig holds optional SOCKS proxy settings. An empty Host disables
// the proxy.
type ProxyConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// Enabled reports whether a proxy is configured.
func (p ProxyConfig) Enabled() bool {
	return p.Host != ""
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// StoreConfig locates the local state database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SupervisorConfig tunes the check-loop watchdog.
type SupervisorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Proxy      ProxyConfig      `mapstructure:"proxy" yaml:"proxy"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Accounts   []AccountConfig  `mapstructure:"accounts" yaml:"accounts"`
}

// configDir returns ~/.config/mailnotify, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailnotify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailnotify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Host:           "imap.gmail.com",
			Port:           993,
			UsernameSuffix: "@gmail.com",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(configDir(), "state.db"),
		},
		Supervisor: SupervisorConfig{
			Interval: DefaultSupervisorInterval,
		},
		Accounts: []AccountConfig{},
	}
}

// DefaultAccountConfig returns the settings given to a newly added account.
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		Enabled:       true,
		NotifyMode:    NotifyInbox,
		CheckInterval: DefaultCheckInterval,
		CheckTimeout:  DefaultCheckTimeout,
		Alerts: AlertConfig{
			Popup: true,
			Chime: true,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	return LoadConfigWith(viper.New(), path)
}

// LoadConfigWith is LoadConfig on a caller-supplied Viper instance, so that
// command-line flags bound to v take precedence over the file.
func LoadConfigWith(v *viper.Viper, path string) (*AppConfig, error) {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.username_suffix", def.Server.UsernameSuffix)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.pretty", def.Log.Pretty)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("supervisor.interval", def.Supervisor.Interval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Supervisor.Interval <= 0 {
		cfg.Supervisor.Interval = DefaultSupervisorInterval
	}

	// Apply defaults for each account entry.
	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		prefix := fmt.Sprintf("accounts.%d.", i)

		// Viper unmarshals missing bools as false; treat unset as true.
		if !acct.Enabled && !v.IsSet(prefix+"enabled") {
			acct.Enabled = true
		}
		if !v.IsSet(prefix + "alerts") {
			acct.Alerts = DefaultAccountConfig().Alerts
		}
		if acct.NotifyMode == "" {
			acct.NotifyMode = NotifyInbox
		}
		if !acct.NotifyMode.Valid() {
			return nil, fmt.Errorf("account %q: unknown notify_mode %q", acct.Username, acct.NotifyMode)
		}
		if len(acct.Labels) > MaxLabels {
			acct.Labels = acct.Labels[:MaxLabels]
		}
		if acct.CheckInterval <= 0 {
			acct.CheckInterval = DefaultCheckInterval
		}
		if acct.CheckTimeout <= 0 {
			acct.CheckTimeout = DefaultCheckTimeout
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Account passwords are never
// written; they belong in the keyring.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	accounts := make([]AccountConfig, len(cfg.Accounts))
	copy(accounts, cfg.Accounts)
	for i := range accounts {
		accounts[i].Password = ""
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("proxy", cfg.Proxy)
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)
	v.Set("supervisor", cfg.Supervisor)
	v.Set("accounts", accounts)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
