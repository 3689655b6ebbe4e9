package authority

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Store manages the on-disk layout of an authority directory:
// certificates, encrypted keys and the serial counter.
type Store struct {
	basePath string

	mu sync.Mutex // guards the serial file
}

// NewStore returns a store rooted at basePath.
func NewStore(basePath string) *Store {
	return &Store{basePath: basePath}
}

// BasePath returns the authority directory.
func (s *Store) BasePath() string { return s.basePath }

// RootCertPath returns the root certificate path.
func (s *Store) RootCertPath() string { return filepath.Join(s.basePath, "root.crt") }

// RootKeyPath returns the root key path.
func (s *Store) RootKeyPath() string { return filepath.Join(s.basePath, "root.key") }

// TSACertPath returns the timestamp authority certificate path.
func (s *Store) TSACertPath() string { return filepath.Join(s.basePath, "tsa.crt") }

// TSAKeyPath returns the timestamp authority key path.
func (s *Store) TSAKeyPath() string { return filepath.Join(s.basePath, "tsa.key") }

func (s *Store) serialPath() string { return filepath.Join(s.basePath, "serial") }

// Exists reports whether the authority directory is already initialized.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.RootCertPath())
	return err == nil
}

// Init creates the authority directory and seeds the serial counter.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.basePath, 0700); err != nil {
		return fmt.Errorf("failed to create authority directory: %w", err)
	}
	return os.WriteFile(s.serialPath(), []byte("2\n"), 0600)
}

// SaveCert writes a certificate PEM to path.
func (s *Store) SaveCert(path string, cert *x509.Certificate) error {
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	return nil
}

// LoadCert reads a certificate PEM from path.
func (s *Store) LoadCert(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// NextSerial allocates the next certificate serial and persists the counter.
func (s *Store) NextSerial() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.serialPath())
	if err != nil {
		return 0, fmt.Errorf("failed to read serial file: %w", err)
	}
	last, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt serial file: %w", err)
	}

	next := last + 1
	if err := os.WriteFile(s.serialPath(), []byte(strconv.FormatInt(next, 10)+"\n"), 0600); err != nil {
		return 0, fmt.Errorf("failed to persist serial: %w", err)
	}
	return next, nil
}
