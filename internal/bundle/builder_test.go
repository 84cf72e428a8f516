package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/smallstep/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-pass-backend/config"
	"wallet-pass-backend/internal/model"
)

// writeSigningMaterial generates a throwaway self-signed certificate and key
// laid out the way the configuration expects them.
func writeSigningMaterial(t *testing.T) *config.WalletConfig {
	t.Helper()
	dir := t.TempDir()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test signer"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "certificate.pem"), certPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wwdr.pem"), certPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.pem"), keyPEM, 0o600))

	return &config.WalletConfig{CertificatesDir: dir}
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := NewSigner(writeSigningMaterial(t))
	require.NoError(t, err)
	return signer
}

func newTemplateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icon.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "en.lproj"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.lproj", "pass.strings"), []byte(`"label" = "Label";`), 0o644))
	return dir
}

type testDelegate struct {
	templateDir string
}

func (d *testDelegate) TemplateDir(_ context.Context, _ *model.Artifact) (string, error) {
	return d.templateDir, nil
}

func (d *testDelegate) ArtifactJSON(_ context.Context, artifact *model.Artifact) ([]byte, error) {
	return []byte(fmt.Sprintf(`{"serialNumber":%q}`, artifact.ID)), nil
}

type personalizingDelegate struct {
	testDelegate
	personalization []byte
}

func (d *personalizingDelegate) PersonalizationJSON(_ context.Context, _ *model.Artifact) ([]byte, error) {
	return d.personalization, nil
}

type customSigningDelegate struct {
	testDelegate
}

func (d *customSigningDelegate) GenerateSignature(_ context.Context, _ *model.Artifact, dir string) (bool, error) {
	return true, os.WriteFile(filepath.Join(dir, SignatureFile), []byte("custom"), 0o644)
}

func testArtifact(family Family, serial string) *model.Artifact {
	return &model.Artifact{
		ID:             serial,
		Family:         family.Name,
		TypeIdentifier: family.Name + ".com.example.demo",
		UpdatedAt:      time.Now(),
	}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	files := make(map[string][]byte)
	for _, entry := range reader.File {
		rc, err := entry.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[entry.Name] = content
	}
	return files
}

func TestBuildProducesSignedPass(t *testing.T) {
	service := NewService(Passes, &testDelegate{templateDir: newTemplateDir(t)}, newTestSigner(t), time.Minute)
	artifact := testArtifact(Passes, "serial-1")

	data, err := service.Build(context.Background(), artifact)
	require.NoError(t, err)

	files := readZip(t, data)
	for _, name := range []string{"pass.json", ManifestFile, SignatureFile, "icon.png", "en.lproj/pass.strings"} {
		assert.Contains(t, files, name)
	}
	assert.JSONEq(t, `{"serialNumber":"serial-1"}`, string(files["pass.json"]))

	var manifest map[string]string
	require.NoError(t, json.Unmarshal(files[ManifestFile], &manifest))
	assert.Len(t, manifest, len(files)-2, "manifest covers everything except itself and the signature")
	for name, content := range files {
		if name == ManifestFile || name == SignatureFile {
			continue
		}
		digest := sha1.Sum(content)
		assert.Equal(t, hex.EncodeToString(digest[:]), manifest[name], name)
	}

	signed, err := pkcs7.Parse(files[SignatureFile])
	require.NoError(t, err)
	signed.Content = files[ManifestFile]
	assert.NoError(t, signed.Verify())
}

func TestBuildOrderUsesSHA256(t *testing.T) {
	service := NewService(Orders, &testDelegate{templateDir: newTemplateDir(t)}, newTestSigner(t), time.Minute)
	artifact := testArtifact(Orders, "order-1")

	data, err := service.Build(context.Background(), artifact)
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Contains(t, files, "order.json")
	assert.NotContains(t, files, "pass.json")

	var manifest map[string]string
	require.NoError(t, json.Unmarshal(files[ManifestFile], &manifest))
	digest := sha256.Sum256(files["icon.png"])
	assert.Equal(t, hex.EncodeToString(digest[:]), manifest["icon.png"])
}

func TestBuildIncludesPersonalization(t *testing.T) {
	delegate := &personalizingDelegate{
		testDelegate:    testDelegate{templateDir: newTemplateDir(t)},
		personalization: []byte(`{"requiredPersonalizationFields":["name"]}`),
	}
	service := NewService(Passes, delegate, newTestSigner(t), time.Minute)

	data, err := service.Build(context.Background(), testArtifact(Passes, "serial-2"))
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Contains(t, files, "personalization.json")

	var manifest map[string]string
	require.NoError(t, json.Unmarshal(files[ManifestFile], &manifest))
	assert.Contains(t, manifest, "personalization.json")
}

func TestBuildCustomSignerPreempts(t *testing.T) {
	delegate := &customSigningDelegate{testDelegate{templateDir: newTemplateDir(t)}}
	service := NewService(Passes, delegate, newTestSigner(t), time.Minute)

	data, err := service.Build(context.Background(), testArtifact(Passes, "serial-3"))
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Equal(t, []byte("custom"), files[SignatureFile])
}

func TestBuildTemplateNotDirectory(t *testing.T) {
	service := NewService(Passes, &testDelegate{templateDir: filepath.Join(t.TempDir(), "missing")}, newTestSigner(t), time.Minute)

	_, err := service.Build(context.Background(), testArtifact(Passes, "serial-4"))
	assert.ErrorIs(t, err, ErrTemplateNotDirectory)
}

func TestBuildTemplatePathErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// A regular file is not a usable template.
	service := NewService(Passes, &testDelegate{templateDir: file}, newTestSigner(t), time.Minute)
	_, err := service.Build(context.Background(), testArtifact(Passes, "serial-6"))
	assert.ErrorIs(t, err, ErrTemplateNotDirectory)

	// A stat failure that is not "does not exist" keeps its own cause.
	service = NewService(Passes, &testDelegate{templateDir: filepath.Join(file, "nested")}, newTestSigner(t), time.Minute)
	_, err = service.Build(context.Background(), testArtifact(Passes, "serial-7"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTemplateNotDirectory)
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}

func TestBuildCleansWorkdirOnCopyFailure(t *testing.T) {
	templateDir := newTemplateDir(t)
	signer := newTestSigner(t)
	require.NoError(t, os.Symlink(filepath.Join(templateDir, "missing"), filepath.Join(templateDir, "broken")))

	scratch := t.TempDir()
	t.Setenv("TMPDIR", scratch)

	service := NewService(Passes, &testDelegate{templateDir: templateDir}, signer, time.Minute)
	_, err := service.Build(context.Background(), testArtifact(Passes, "serial-8"))
	require.Error(t, err)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed build must not leave its working directory behind")
}

func TestBuildCachesUntilArtifactChanges(t *testing.T) {
	templateDir := newTemplateDir(t)
	service := NewService(Passes, &testDelegate{templateDir: templateDir}, newTestSigner(t), time.Minute)
	artifact := testArtifact(Passes, "serial-5")

	first, err := service.Build(context.Background(), artifact)
	require.NoError(t, err)

	// Mutate the template; an unchanged artifact must still serve the
	// cached bytes.
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "extra.txt"), []byte("x"), 0o644))
	second, err := service.Build(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	artifact.UpdatedAt = artifact.UpdatedAt.Add(time.Second)
	third, err := service.Build(context.Background(), artifact)
	require.NoError(t, err)
	assert.Contains(t, readZip(t, third), "extra.txt")
}

func TestBuildBundledCountValidation(t *testing.T) {
	service := NewService(Passes, &testDelegate{templateDir: newTemplateDir(t)}, newTestSigner(t), time.Minute)

	for _, count := range []int{0, 1, 11} {
		artifacts := make([]*model.Artifact, count)
		for i := range artifacts {
			artifacts[i] = testArtifact(Passes, fmt.Sprintf("serial-%d", i))
		}
		_, err := service.BuildBundled(context.Background(), artifacts)
		assert.ErrorIs(t, err, ErrInvalidBundleCount, "count %d", count)
	}
}

func TestBuildBundledPasses(t *testing.T) {
	service := NewService(Passes, &testDelegate{templateDir: newTemplateDir(t)}, newTestSigner(t), time.Minute)

	artifacts := []*model.Artifact{testArtifact(Passes, "a"), testArtifact(Passes, "b")}
	data, err := service.BuildBundled(context.Background(), artifacts)
	require.NoError(t, err)

	files := readZip(t, data)
	require.Contains(t, files, "pass1.pkpass")
	require.Contains(t, files, "pass2.pkpass")

	inner := readZip(t, files["pass1.pkpass"])
	assert.Contains(t, inner, "pass.json")
	assert.Contains(t, inner, SignatureFile)
}

func TestBuildBundledTenPasses(t *testing.T) {
	service := NewService(Passes, &testDelegate{templateDir: newTemplateDir(t)}, newTestSigner(t), time.Minute)

	artifacts := make([]*model.Artifact, 10)
	for i := range artifacts {
		artifacts[i] = testArtifact(Passes, fmt.Sprintf("serial-%d", i))
	}
	data, err := service.BuildBundled(context.Background(), artifacts)
	require.NoError(t, err)
	assert.Len(t, readZip(t, data), 10)
}

func TestBuildBundledRejectedForOrders(t *testing.T) {
	service := NewService(Orders, &testDelegate{templateDir: newTemplateDir(t)}, newTestSigner(t), time.Minute)

	_, err := service.BuildBundled(context.Background(), []*model.Artifact{testArtifact(Orders, "a"), testArtifact(Orders, "b")})
	assert.Error(t, err)
}

func TestNewSignerMissingMaterial(t *testing.T) {
	_, err := NewSigner(&config.WalletConfig{CertificatesDir: t.TempDir()})
	assert.Error(t, err)
}

func TestNewSignerPasswordRequiresOpenSSL(t *testing.T) {
	cfg := writeSigningMaterial(t)
	cfg.KeyPassword = "secret"
	cfg.OpenSSLPath = filepath.Join(t.TempDir(), "missing-openssl")

	_, err := NewSigner(cfg)
	assert.Error(t, err)
}
