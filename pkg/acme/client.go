// Package acme provisions a TLS certificate for the control surface's
// optional HTTPS listener via an ACME certificate authority, so the
// runtime never needs an operator to hand-manage a cert/key pair.
package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// Config holds the ACME account and challenge parameters needed to
// obtain a certificate for the control surface's domains.
type Config struct {
	DirectoryURL string
	Email        string
	Domains      []string
	StoragePath  string
}

func (c Config) validate() error {
	if c.DirectoryURL == "" {
		return fmt.Errorf("acme: directory URL is required")
	}
	if c.Email == "" {
		return fmt.Errorf("acme: email is required")
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("acme: at least one domain is required")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("acme: storage path is required")
	}
	return nil
}

// account implements lego's registration.User, backed by a key persisted
// on disk so repeated runs reuse the same ACME account.
type account struct {
	email        string
	key          *ecdsa.PrivateKey
	registration *registration.Resource
}

func (a *account) GetEmail() string                        { return a.email }
func (a *account) GetRegistration() *registration.Resource { return a.registration }
func (a *account) GetPrivateKey() crypto.PrivateKey         { return a.key }

type accountFile struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration,omitempty"`
}

// Client manages the ACME account and certificate lifecycle.
type Client struct {
	cfg  Config
	lego *lego.Client
	acct *account
}

// NewClient loads or creates an ACME account under cfg.StoragePath and
// registers a lego client ready to obtain certificates.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o700); err != nil {
		return nil, fmt.Errorf("acme: create storage directory: %w", err)
	}

	acct, err := loadOrCreateAccount(cfg)
	if err != nil {
		return nil, err
	}

	legoCfg := lego.NewConfig(acct)
	legoCfg.CADirURL = cfg.DirectoryURL
	legoCfg.Certificate.KeyType = certcrypto.EC256

	legoClient, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("acme: create lego client: %w", err)
	}

	if err := legoClient.Challenge.SetHTTP01Provider(http01.NewProviderServer("", "80")); err != nil {
		return nil, fmt.Errorf("acme: set up HTTP-01 challenge: %w", err)
	}

	if acct.registration == nil {
		reg, err := legoClient.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("acme: register account: %w", err)
		}
		acct.registration = reg
		if err := saveAccount(cfg, acct); err != nil {
			return nil, err
		}
	}

	return &Client{cfg: cfg, lego: legoClient, acct: acct}, nil
}

func loadOrCreateAccount(cfg Config) (*account, error) {
	keyPath := filepath.Join(cfg.StoragePath, "account.key")
	metaPath := filepath.Join(cfg.StoragePath, "account.json")

	key, err := loadOrGenerateKey(keyPath)
	if err != nil {
		return nil, err
	}

	acct := &account{email: cfg.Email, key: key}

	if data, err := os.ReadFile(metaPath); err == nil {
		var meta accountFile
		if err := json.Unmarshal(data, &meta); err == nil {
			acct.registration = meta.Registration
		}
	}

	return acct, nil
}

func loadOrGenerateKey(path string) (*ecdsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		key, err := x509.ParseECPrivateKey(data)
		if err == nil {
			return key, nil
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("acme: generate account key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("acme: marshal account key: %w", err)
	}
	if err := os.WriteFile(path, der, 0o600); err != nil {
		return nil, fmt.Errorf("acme: persist account key: %w", err)
	}
	return key, nil
}

func saveAccount(cfg Config, acct *account) error {
	data, err := json.Marshal(accountFile{Email: acct.email, Registration: acct.registration})
	if err != nil {
		return fmt.Errorf("acme: marshal account: %w", err)
	}
	return os.WriteFile(filepath.Join(cfg.StoragePath, "account.json"), data, 0o600)
}

// ObtainCertificate requests a certificate for every configured domain,
// persists it under the account's storage path, and returns it ready to
// install into an http.Server's tls.Config.
func (c *Client) ObtainCertificate() (*tls.Certificate, error) {
	certs, err := c.lego.Certificate.Obtain(certificate.ObtainRequest{
		Domains: c.cfg.Domains,
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("acme: obtain certificate: %w", err)
	}

	certPath := filepath.Join(c.cfg.StoragePath, "certificate.pem")
	keyPath := filepath.Join(c.cfg.StoragePath, "certificate.key")
	if err := os.WriteFile(certPath, certs.Certificate, 0o644); err != nil {
		return nil, fmt.Errorf("acme: write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, certs.PrivateKey, 0o600); err != nil {
		return nil, fmt.Errorf("acme: write private key: %w", err)
	}

	tlsCert, err := tls.X509KeyPair(certs.Certificate, certs.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("acme: load obtained certificate: %w", err)
	}
	return &tlsCert, nil
}

// RenewBefore is a renewal lead time before certificate expiry. Nothing in
// this package reads it or renews certificates.
const RenewBefore = 8 * time.Hour
