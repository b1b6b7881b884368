// Package filebackend is a signing.Backend that loads SSH user/host keys
// and X.509 CA material directly from local disk, optionally unwrapping
// passphrase-encrypted private key files via pkg/security.
package filebackend

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/security"
	"github.com/cuemby/jitca/pkg/signing"
)

// Config describes one file-backed authority. Every field is optional
// except that a backend with none of the four capabilities configured is
// permitted by this package (the registry-level startup checks are what
// reject an authority that can't do anything useful).
type Config struct {
	// UserKeyPath, if set, is an OpenSSH-format private key used as this
	// authority's SSH user-certificate signing key.
	UserKeyPath string
	// UserKeyPassphrase decrypts UserKeyPath if it is itself
	// passphrase-protected in the OpenSSH key format.
	UserKeyPassphrase string
	// UserKeyEncryptionPassphrase, if set, means UserKeyPath on disk is
	// AES-256-GCM-wrapped via pkg/security rather than plain OpenSSH PEM;
	// this is the passphrase used to derive the unwrap key.
	UserKeyEncryptionPassphrase string

	HostKeyPath                 string
	HostKeyPassphrase           string
	HostKeyEncryptionPassphrase string

	// AttestedX509CACertPath/AttestedX509CAKeyPath are a PEM certificate
	// and PKCS#8 private key pair used to sign attested X.509 client
	// certificates.
	AttestedX509CACertPath string
	AttestedX509CAKeyPath  string

	// ClientCACertPath/ClientCAKeyPath sign rolling mTLS client
	// certificates minted during issuance.
	ClientCACertPath string
	ClientCAKeyPath  string
}

// Backend is the loaded, ready-to-sign form of Config.
type Backend struct {
	userSigner ssh.Signer
	hostSigner ssh.Signer

	attestedCA *signing.CertificateAuthority
	clientCA   *signing.CertificateAuthority
}

// Load reads and parses every key configured in cfg, decrypting
// passphrase-wrapped files as needed. It does no registry-level
// validation; that happens in signing.New once all backends are loaded.
func Load(cfg Config) (*Backend, error) {
	b := &Backend{}

	if cfg.UserKeyPath != "" {
		signer, err := loadSSHSigner(cfg.UserKeyPath, cfg.UserKeyPassphrase, cfg.UserKeyEncryptionPassphrase)
		if err != nil {
			return nil, fmt.Errorf("loading user key: %w", err)
		}
		b.userSigner = signer
	}

	if cfg.HostKeyPath != "" {
		signer, err := loadSSHSigner(cfg.HostKeyPath, cfg.HostKeyPassphrase, cfg.HostKeyEncryptionPassphrase)
		if err != nil {
			return nil, fmt.Errorf("loading host key: %w", err)
		}
		b.hostSigner = signer
	}

	if cfg.AttestedX509CACertPath != "" {
		ca, err := loadCA(cfg.AttestedX509CACertPath, cfg.AttestedX509CAKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading attested X509 CA: %w", err)
		}
		b.attestedCA = ca
	}

	if cfg.ClientCACertPath != "" {
		ca, err := loadCA(cfg.ClientCACertPath, cfg.ClientCAKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading client CA: %w", err)
		}
		b.clientCA = ca
	}

	return b, nil
}

func loadSSHSigner(path, passphrase, encryptionPassphrase string) (ssh.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if encryptionPassphrase != "" {
		protector, err := security.NewKeyProtectorFromPassphrase(encryptionPassphrase)
		if err != nil {
			return nil, err
		}
		raw, err = protector.Decrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", path, err)
		}
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(raw, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing SSH private key %s: %w", path, err)
	}
	return signer, nil
}

func loadCA(certPath, keyPath string) (*signing.CertificateAuthority, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", certPath, err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", certPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing CA certificate %s: %w", certPath, err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", keyPath, err)
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("no PEM block in %s", keyPath)
	}
	key, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing CA key %s: %w", keyPath, err)
	}

	return &signing.CertificateAuthority{Certificate: cert, Signer: key}, nil
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("PKCS8 key is not a crypto.Signer")
		}
		return signer, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unrecognized private key encoding")
}

// Sign implements signing.Backend.
func (b *Backend) Sign(_ context.Context, certType signing.CertType, cert *ssh.Certificate) (*ssh.Certificate, error) {
	signer := b.signerFor(certType)
	if signer == nil {
		return nil, fmt.Errorf("signer does not have the requested SSH key configured")
	}
	if err := cert.SignCert(rand.Reader, signer); err != nil {
		return nil, fmt.Errorf("signing certificate: %w", err)
	}
	return cert, nil
}

// SignerPublicKey implements signing.Backend.
func (b *Backend) SignerPublicKey(certType signing.CertType) (ssh.PublicKey, bool) {
	signer := b.signerFor(certType)
	if signer == nil {
		return nil, false
	}
	return signer.PublicKey(), true
}

func (b *Backend) signerFor(certType signing.CertType) ssh.Signer {
	switch certType {
	case signing.CertTypeUser:
		return b.userSigner
	case signing.CertTypeHost:
		return b.hostSigner
	default:
		return nil
	}
}

// AttestedX509CA implements signing.Backend.
func (b *Backend) AttestedX509CA() (*signing.CertificateAuthority, bool) {
	if b.attestedCA == nil {
		return nil, false
	}
	return b.attestedCA, true
}

// ClientCA implements signing.Backend.
func (b *Backend) ClientCA() (*signing.CertificateAuthority, bool) {
	if b.clientCA == nil {
		return nil, false
	}
	return b.clientCA, true
}
