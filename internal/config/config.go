// Package config loads the service configuration from YAML, with
// environment overrides for secrets so passphrases never live in files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
)

const (
	// EnvRootPassphrase overrides authority.root_passphrase.
	EnvRootPassphrase = "ESIGN_ROOT_KEY_PASSPHRASE"

	// EnvTSAPassphrase overrides authority.tsa_passphrase.
	EnvTSAPassphrase = "ESIGN_TSA_KEY_PASSPHRASE"

	// EnvDatabaseURL overrides database.url.
	EnvDatabaseURL = "ESIGN_DATABASE_URL"
)

// Config is the full service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Authority Authority `yaml:"authority"`
	Database  Database  `yaml:"database"`
	Audit     Audit     `yaml:"audit"`
	Log       Log       `yaml:"log"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Authority configures the certificate store and key material.
type Authority struct {
	Dir             string `yaml:"dir"`
	CommonName      string `yaml:"common_name"`
	Organization    string `yaml:"organization"`
	Country         string `yaml:"country"`
	Algorithm       string `yaml:"algorithm"`
	SignerAlgorithm string `yaml:"signer_algorithm"`
	ValidityYears   int    `yaml:"validity_years"`
	RootPassphrase  string `yaml:"root_passphrase"`
	TSAPassphrase   string `yaml:"tsa_passphrase"`
}

// Database configures the PostgreSQL store. Empty URL selects the
// in-memory store.
type Database struct {
	URL string `yaml:"url"`
}

// Audit configures the tamper-evident event log.
type Audit struct {
	Path string `yaml:"path"`
}

// Log configures the technical logger.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a configuration usable out of the box.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8443",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Authority: Authority{
			Dir:             "authority",
			CommonName:      "Hestia Document Authority",
			Organization:    "Hestia",
			Country:         "FR",
			Algorithm:       string(esigncrypto.AlgEd25519),
			SignerAlgorithm: string(esigncrypto.AlgECDSAP256),
			ValidityYears:   10,
		},
		Audit: Audit{Path: "audit.log"},
		Log:   Log{Level: "info"},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
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

	if v := os.Getenv(EnvRootPassphrase); v != "" {
		cfg.Authority.RootPassphrase = v
	}
	if v := os.Getenv(EnvTSAPassphrase); v != "" {
		cfg.Authority.TSAPassphrase = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Database.URL = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	alg, err := esigncrypto.ParseAlgorithm(c.Authority.Algorithm)
	if err != nil {
		return fmt.Errorf("authority.algorithm: %w", err)
	}
	if alg.IsPQC() {
		return fmt.Errorf("authority.algorithm: %s cannot back an authority certificate", alg)
	}
	signerAlg, err := esigncrypto.ParseAlgorithm(c.Authority.SignerAlgorithm)
	if err != nil {
		return fmt.Errorf("authority.signer_algorithm: %w", err)
	}
	if signerAlg.IsPQC() {
		return fmt.Errorf("authority.signer_algorithm: %s cannot back a signer certificate", signerAlg)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required")
	}
	return nil
}
