package config

import (
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Push     PushConfig     `yaml:"push"`
	Passes   WalletConfig   `yaml:"passes"`
	Orders   WalletConfig   `yaml:"orders"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	OperatorToken   string  `yaml:"operator_token"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds settings for the APNs transport.
type PushConfig struct {
	Production bool `yaml:"production"`
}

// WalletConfig configures one artifact family (passes or orders): the signing
// material plus the directories the built-in filesystem delegate serves from.
type WalletConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CertificatesDir string `yaml:"certificates_dir"`
	KeyPassword     string `yaml:"key_password"`
	OpenSSLPath     string `yaml:"openssl_path"`
	TemplateRoot    string `yaml:"template_root"`
	ContentRoot     string `yaml:"content_root"`
}

// CertificatePath returns the signer certificate location.
func (w *WalletConfig) CertificatePath() string {
	return filepath.Join(w.CertificatesDir, "certificate.pem")
}

// KeyPath returns the signer private key location.
func (w *WalletConfig) KeyPath() string {
	return filepath.Join(w.CertificatesDir, "key.pem")
}

// WWDRPath returns the intermediate WWDR certificate location.
func (w *WalletConfig) WWDRPath() string {
	return filepath.Join(w.CertificatesDir, "wwdr.pem")
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	for _, w := range []*WalletConfig{&cfg.Passes, &cfg.Orders} {
		if w.OpenSSLPath == "" {
			w.OpenSSLPath = "/usr/bin/openssl"
		}
	}

	if !cfg.Passes.Enabled && !cfg.Orders.Enabled {
		log.Printf("neither passes nor orders are enabled; the API will serve no routes")
	}

	return &cfg, nil
}
