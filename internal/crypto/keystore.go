package crypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/scrypt"
)

const (
	pemTypePKCS8   = "PRIVATE KEY"
	pemTypeMLDSA65 = "ML-DSA-65 PRIVATE KEY"

	encScheme = "scrypt-aes-256-gcm"

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// ErrPassphraseRequired is returned when loading an encrypted key without
// a passphrase.
var ErrPassphraseRequired = errors.New("key is encrypted: passphrase required")

// SaveSigner writes the signer's private key to path as PEM. When passphrase
// is non-empty the key material is encrypted with scrypt + AES-256-GCM.
func SaveSigner(path string, s *SoftwareSigner, passphrase []byte) error {
	der, pemType, err := marshalPrivateKey(s)
	if err != nil {
		return err
	}

	block := &pem.Block{Type: pemType, Bytes: der}
	if len(passphrase) > 0 {
		block, err = encryptBlock(block, passphrase)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadSigner reads a private key PEM written by SaveSigner.
func LoadSigner(path string, passphrase []byte) (*SoftwareSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	if block.Headers["Enc"] == encScheme {
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		block, err = decryptBlock(block, passphrase)
		if err != nil {
			return nil, err
		}
	}

	return unmarshalPrivateKey(block)
}

func marshalPrivateKey(s *SoftwareSigner) (der []byte, pemType string, err error) {
	switch priv := s.priv.(type) {
	case *mldsa65.PrivateKey:
		raw, err := priv.MarshalBinary()
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal ML-DSA key: %w", err)
		}
		return raw, pemTypeMLDSA65, nil
	default:
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal private key: %w", err)
		}
		return der, pemTypePKCS8, nil
	}
}

func unmarshalPrivateKey(block *pem.Block) (*SoftwareSigner, error) {
	switch block.Type {
	case pemTypeMLDSA65:
		priv := new(mldsa65.PrivateKey)
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA key: %w", err)
		}
		pub := priv.Public().(*mldsa65.PublicKey)
		return NewSigner(AlgMLDSA65, priv, pub), nil

	case pemTypePKCS8:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return signerFromKey(key)

	default:
		return nil, fmt.Errorf("unsupported PEM type: %s", block.Type)
	}
}

func signerFromKey(key any) (*SoftwareSigner, error) {
	switch priv := key.(type) {
	case ed25519.PrivateKey:
		return NewSigner(AlgEd25519, priv, priv.Public()), nil
	case *ecdsa.PrivateKey:
		return NewSigner(AlgECDSAP256, priv, &priv.PublicKey), nil
	case *rsa.PrivateKey:
		return NewSigner(AlgRSA2048, priv, &priv.PublicKey), nil
	default:
		return nil, fmt.Errorf("unsupported private key type: %T", key)
	}
}

func encryptBlock(block *pem.Block, passphrase []byte) (*pem.Block, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("scrypt derivation failed: %w", err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nonce, nonce, block.Bytes, nil)
	return &pem.Block{
		Type: block.Type,
		Headers: map[string]string{
			"Enc":         encScheme,
			"Scrypt-Salt": hex.EncodeToString(salt),
			"Scrypt-N":    strconv.Itoa(scryptN),
			"Scrypt-R":    strconv.Itoa(scryptR),
			"Scrypt-P":    strconv.Itoa(scryptP),
		},
		Bytes: ciphertext,
	}, nil
}

func decryptBlock(block *pem.Block, passphrase []byte) (*pem.Block, error) {
	salt, err := hex.DecodeString(block.Headers["Scrypt-Salt"])
	if err != nil {
		return nil, fmt.Errorf("invalid salt header: %w", err)
	}
	n := headerInt(block.Headers, "Scrypt-N", scryptN)
	r := headerInt(block.Headers, "Scrypt-R", scryptR)
	p := headerInt(block.Headers, "Scrypt-P", scryptP)

	key, err := scrypt.Key(passphrase, salt, n, r, p, 32)
	if err != nil {
		return nil, fmt.Errorf("scrypt derivation failed: %w", err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(block.Bytes) < aead.NonceSize() {
		return nil, errors.New("encrypted key too short")
	}
	nonce, ciphertext := block.Bytes[:aead.NonceSize()], block.Bytes[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("failed to decrypt key: wrong passphrase or corrupted file")
	}
	return &pem.Block{Type: block.Type, Bytes: plaintext}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return aead, nil
}

func headerInt(headers map[string]string, name string, def int) int {
	v, err := strconv.Atoi(headers[name])
	if err != nil {
		return def
	}
	return v
}

// PublicKeyPEM encodes a public key as a PEM "PUBLIC KEY" block.
// ML-DSA keys use a dedicated PEM type with raw encoding.
func PublicKeyPEM(pub crypto.PublicKey) ([]byte, error) {
	if mlPub, ok := pub.(*mldsa65.PublicKey); ok {
		raw, err := mlPub.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ML-DSA public key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "ML-DSA-65 PUBLIC KEY", Bytes: raw}), nil
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
