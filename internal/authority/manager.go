// Package authority manages the root certificate authority and the
// timestamp authority identity, and issues short-lived signer certificates.
package authority

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
)

// ErrAuthorityUnavailable reports missing or undecryptable authority key
// material. Configuration error: fatal at first use, never retried.
var ErrAuthorityUnavailable = errors.New("authority unavailable")

// SigningIdentity pairs a certificate with its private key.
type SigningIdentity struct {
	Cert   *x509.Certificate
	Signer esigncrypto.Signer
}

// Config holds authority initialization parameters.
type Config struct {
	CommonName   string
	Organization string
	Country      string

	// Algorithm for the root and TSA keys.
	Algorithm esigncrypto.AlgorithmID

	// ValidityYears for the root certificate.
	ValidityYears int

	RootPassphrase []byte
	TSAPassphrase  []byte
}

// SubjectInfo identifies the signer a certificate is issued to.
type SubjectInfo struct {
	Name     string
	SignerID string
	Email    string
}

// Manager holds the two platform identities and issues signer certificates.
type Manager struct {
	store *Store
	root  SigningIdentity
	tsa   SigningIdentity

	// signerAlgorithm is the key algorithm for issued signer certificates.
	signerAlgorithm esigncrypto.AlgorithmID

	// signerValidity is the issued certificate lifetime.
	signerValidity time.Duration

	logger zerolog.Logger
}

// Option adjusts a Manager.
type Option func(*Manager)

// WithSignerAlgorithm sets the key algorithm for issued certificates.
func WithSignerAlgorithm(alg esigncrypto.AlgorithmID) Option {
	return func(m *Manager) { m.signerAlgorithm = alg }
}

// WithSignerValidity sets the issued certificate lifetime.
func WithSignerValidity(d time.Duration) Option {
	return func(m *Manager) { m.signerValidity = d }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Initialize creates a new authority directory: a self-signed root and a
// TSA identity chained to it, both keys encrypted at rest.
func Initialize(store *Store, cfg Config, opts ...Option) (*Manager, error) {
	if store.Exists() {
		return nil, fmt.Errorf("authority already exists at %s", store.BasePath())
	}
	if err := store.Init(); err != nil {
		return nil, err
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = esigncrypto.AlgEd25519
	}
	// Certificate construction goes through x509.CreateCertificate, which
	// only understands classical keys. ML-DSA stays available for CMS
	// envelopes and the keystore, not for authority identities.
	if cfg.Algorithm.IsPQC() {
		return nil, fmt.Errorf("algorithm %s cannot back an authority certificate", cfg.Algorithm)
	}
	if cfg.ValidityYears == 0 {
		cfg.ValidityYears = 10
	}

	rootSigner, err := esigncrypto.GenerateSigner(cfg.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}
	if err := esigncrypto.SaveSigner(store.RootKeyPath(), rootSigner, cfg.RootPassphrase); err != nil {
		return nil, fmt.Errorf("failed to save root key: %w", err)
	}

	rootCert, err := createRootCert(store, cfg, rootSigner)
	if err != nil {
		return nil, err
	}
	if err := store.SaveCert(store.RootCertPath(), rootCert); err != nil {
		return nil, err
	}

	tsaSigner, err := esigncrypto.GenerateSigner(cfg.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to generate TSA key: %w", err)
	}
	if err := esigncrypto.SaveSigner(store.TSAKeyPath(), tsaSigner, cfg.TSAPassphrase); err != nil {
		return nil, fmt.Errorf("failed to save TSA key: %w", err)
	}

	tsaCert, err := createTSACert(store, cfg, rootCert, rootSigner, tsaSigner)
	if err != nil {
		return nil, err
	}
	if err := store.SaveCert(store.TSACertPath(), tsaCert); err != nil {
		return nil, err
	}

	m := newManager(store, SigningIdentity{rootCert, rootSigner}, SigningIdentity{tsaCert, tsaSigner}, opts)
	m.logger.Info().
		Str("subject", rootCert.Subject.String()).
		Str("algorithm", cfg.Algorithm.String()).
		Msg("authority initialized")
	return m, nil
}

// Load opens an existing authority directory, decrypting both keys.
func Load(store *Store, rootPassphrase, tsaPassphrase []byte, opts ...Option) (*Manager, error) {
	rootCert, err := store.LoadCert(store.RootCertPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	rootSigner, err := esigncrypto.LoadSigner(store.RootKeyPath(), rootPassphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: root key: %v", ErrAuthorityUnavailable, err)
	}
	tsaCert, err := store.LoadCert(store.TSACertPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	tsaSigner, err := esigncrypto.LoadSigner(store.TSAKeyPath(), tsaPassphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: tsa key: %v", ErrAuthorityUnavailable, err)
	}

	return newManager(store, SigningIdentity{rootCert, rootSigner}, SigningIdentity{tsaCert, tsaSigner}, opts), nil
}

func newManager(store *Store, root, tsa SigningIdentity, opts []Option) *Manager {
	m := &Manager{
		store:           store,
		root:            root,
		tsa:             tsa,
		signerAlgorithm: esigncrypto.AlgRSA2048,
		signerValidity:  48 * time.Hour,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the root authority identity.
func (m *Manager) Root() SigningIdentity { return m.root }

// TSA returns the timestamp authority identity.
func (m *Manager) TSA() SigningIdentity { return m.tsa }

// TrustPool returns a pool containing the root certificate.
func (m *Manager) TrustPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(m.root.Cert)
	return pool
}

// IssueSignerCertificate issues a short-lived certificate for one signer.
// The private key is generated fresh and held in memory only.
func (m *Manager) IssueSignerCertificate(ctx context.Context, subject SubjectInfo) (*x509.Certificate, esigncrypto.Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if m.root.Signer == nil {
		return nil, nil, fmt.Errorf("%w: root key not loaded", ErrAuthorityUnavailable)
	}
	if m.signerAlgorithm.IsPQC() {
		return nil, nil, fmt.Errorf("algorithm %s cannot back a signer certificate", m.signerAlgorithm)
	}

	signer, err := esigncrypto.GenerateSigner(m.signerAlgorithm)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate signer key: %w", err)
	}

	serial, err := m.store.NextSerial()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	skid, err := subjectKeyID(signer)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:   subject.Name,
			SerialNumber: subject.SignerID,
			Organization: m.root.Cert.Subject.Organization,
		},
		EmailAddresses:        []string{subject.Email},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(m.signerValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		BasicConstraintsValid: true,
		SubjectKeyId:          skid,
		AuthorityKeyId:        m.root.Cert.SubjectKeyId,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, m.root.Cert, signer.Public(), m.root.Signer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue signer certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse issued certificate: %w", err)
	}

	m.logger.Info().
		Str("subject", cert.Subject.CommonName).
		Str("serial", cert.SerialNumber.String()).
		Time("not_after", cert.NotAfter).
		Msg("signer certificate issued")
	return cert, signer, nil
}

func createRootCert(store *Store, cfg Config, signer esigncrypto.Signer) (*x509.Certificate, error) {
	serial, err := store.NextSerial()
	if err != nil {
		return nil, err
	}
	skid, err := subjectKeyID(signer)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:   cfg.CommonName,
			Organization: []string{cfg.Organization},
			Country:      []string{cfg.Country},
		},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.AddDate(cfg.ValidityYears, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		SubjectKeyId:          skid,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create root certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

func createTSACert(store *Store, cfg Config, rootCert *x509.Certificate, rootSigner, tsaSigner esigncrypto.Signer) (*x509.Certificate, error) {
	serial, err := store.NextSerial()
	if err != nil {
		return nil, err
	}
	skid, err := subjectKeyID(tsaSigner)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:   cfg.CommonName + " TSA",
			Organization: []string{cfg.Organization},
			Country:      []string{cfg.Country},
		},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.AddDate(cfg.ValidityYears, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
		BasicConstraintsValid: true,
		SubjectKeyId:          skid,
		AuthorityKeyId:        rootCert.SubjectKeyId,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, rootCert, tsaSigner.Public(), rootSigner)
	if err != nil {
		return nil, fmt.Errorf("failed to create TSA certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

func subjectKeyID(signer esigncrypto.Signer) ([]byte, error) {
	pem, err := esigncrypto.PublicKeyPEM(signer.Public())
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(pem)
	return sum[:20], nil
}
