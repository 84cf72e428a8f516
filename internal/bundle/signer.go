package bundle

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/smallstep/pkcs7"

	"wallet-pass-backend/config"
)

// Signer produces the detached CMS signature over a manifest (or, for the
// personalization flow, a raw token payload). A configured key password
// switches from in-process signing to the external openssl smime invocation,
// since an encrypted private key cannot be used directly.
type Signer struct {
	certificatePath string
	keyPath         string
	wwdrPath        string
	keyPassword     string
	opensslPath     string

	certificate *x509.Certificate
	wwdr        *x509.Certificate
	privateKey  crypto.PrivateKey
}

// NewSigner validates the certificate material at startup and, for the plain
// path, parses it eagerly so a broken PEM fails the process instead of the
// first bundle.
func NewSigner(cfg *config.WalletConfig) (*Signer, error) {
	s := &Signer{
		certificatePath: cfg.CertificatePath(),
		keyPath:         cfg.KeyPath(),
		wwdrPath:        cfg.WWDRPath(),
		keyPassword:     cfg.KeyPassword,
		opensslPath:     cfg.OpenSSLPath,
	}

	for _, path := range []string{s.certificatePath, s.keyPath, s.wwdrPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("signing material missing: %w", err)
		}
	}

	if s.keyPassword != "" {
		if _, err := os.Stat(s.opensslPath); err != nil {
			return nil, fmt.Errorf("key password is set but openssl binary is missing at %s: %w", s.opensslPath, err)
		}
		return s, nil
	}

	var err error
	if s.certificate, err = readCertificate(s.certificatePath); err != nil {
		return nil, err
	}
	if s.wwdr, err = readCertificate(s.wwdrPath); err != nil {
		return nil, err
	}
	if s.privateKey, err = readPrivateKey(s.keyPath); err != nil {
		return nil, err
	}
	return s, nil
}

// Sign writes the detached signature over payload to dir/signature.
func (s *Signer) Sign(ctx context.Context, payload []byte, dir string) error {
	if s.keyPassword != "" {
		return s.signExternal(ctx, payload, dir)
	}

	signed, err := pkcs7.NewSignedData(payload)
	if err != nil {
		return fmt.Errorf("failed to initialize signed data: %w", err)
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := signed.AddSignerChain(s.certificate, s.privateKey, []*x509.Certificate{s.wwdr}, pkcs7.SignerInfoConfig{}); err != nil {
		return fmt.Errorf("failed to add signer: %w", err)
	}
	signed.Detach()

	der, err := signed.Finish()
	if err != nil {
		return fmt.Errorf("failed to finish signature: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, SignatureFile), der, 0o644)
}

// signExternal shells out to openssl for a password-protected key. The
// argument list is the fixed smime contract: binary detached sign, WWDR as
// extra certificate, DER output, password on the command line.
func (s *Signer) signExternal(ctx context.Context, payload []byte, dir string) error {
	input := filepath.Join(dir, "signable")
	if err := os.WriteFile(input, payload, 0o600); err != nil {
		return err
	}
	defer os.Remove(input)

	cmd := exec.CommandContext(ctx, s.opensslPath,
		"smime", "-binary", "-sign",
		"-certfile", s.wwdrPath,
		"-signer", s.certificatePath,
		"-inkey", s.keyPath,
		"-in", input,
		"-out", filepath.Join(dir, SignatureFile),
		"-outform", "DER",
		"-passin", "pass:"+s.keyPassword,
	)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("openssl smime failed: %w: %s", err, out)
	}
	return nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate %s: %w", path, err)
	}
	return cert, nil
}

func readPrivateKey(path string) (crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key format in %s", path)
}
