package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PROFILE"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDocumentPath    = "data/profileData.json"
	defaultAssetsDir       = "data/assets"
	defaultLogLevel        = "info"
	defaultTokenTTLMinutes = 30
)

// AppConfig captures runtime configuration for the profile server.
type AppConfig struct {
	HTTPAddress    string
	DocumentPath   string
	DocumentLock   bool
	AssetsDir      string
	AdminPassword  string
	AuthSigningKey string
	TokenTTL       time.Duration
	DiscordUserID  string
	LogLevel       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("document.path", defaultDocumentPath)
	configViper.SetDefault("document.lock", true)
	configViper.SetDefault("assets.dir", defaultAssetsDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DocumentPath:   configViper.GetString("document.path"),
		DocumentLock:   configViper.GetBool("document.lock"),
		AssetsDir:      configViper.GetString("assets.dir"),
		AdminPassword:  configViper.GetString("admin.password"),
		AuthSigningKey: configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		DiscordUserID:  configViper.GetString("discord.user_id"),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DocumentPath) == "" {
		return fmt.Errorf("document.path is required")
	}
	if strings.TrimSpace(c.AdminPassword) != "" && strings.TrimSpace(c.AuthSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required when admin.password is set")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}
