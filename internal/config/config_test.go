package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestU_LoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8443" {
		t.Errorf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Authority.Algorithm != "ed25519" {
		t.Errorf("algorithm = %s", cfg.Authority.Algorithm)
	}
}

func TestU_LoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "esign.yaml")
	content := `
server:
  addr: ":9000"
  read_timeout: 5s
authority:
  dir: /var/lib/esign
  root_passphrase: from-file
audit:
  path: /var/log/esign/audit.log
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvRootPassphrase, "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %s, want :9000", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("read_timeout = %v", cfg.Server.ReadTimeout)
	}
	// File values not overridden keep defaults.
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("write_timeout = %v", cfg.Server.WriteTimeout)
	}
	// Environment wins over the file for secrets.
	if cfg.Authority.RootPassphrase != "from-env" {
		t.Errorf("root_passphrase = %s", cfg.Authority.RootPassphrase)
	}
}

func TestU_LoadRejectsBadAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "esign.yaml")
	if err := os.WriteFile(path, []byte("authority:\n  algorithm: rot13\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestU_LoadRejectsPQCCertificateAlgorithms(t *testing.T) {
	dir := t.TempDir()

	// ML-DSA keys have no x509 certificate encoding, so neither authority
	// slot may select them.
	for name, content := range map[string]string{
		"root.yaml":   "authority:\n  algorithm: ml-dsa-65\n",
		"signer.yaml": "authority:\n  signer_algorithm: ml-dsa-65\n",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error for ml-dsa-65", name)
		}
	}
}
