package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"wallet-pass-backend/internal/model"
)

// Delegate supplies the domain content for an artifact. The host application
// implements it; the pipeline calls it synchronously at defined points.
type Delegate interface {
	// TemplateDir returns the directory holding the static bundle files for
	// this artifact's template.
	TemplateDir(ctx context.Context, artifact *model.Artifact) (string, error)
	// ArtifactJSON encodes the artifact's domain content as the primary JSON
	// file (pass.json or order.json).
	ArtifactJSON(ctx context.Context, artifact *model.Artifact) ([]byte, error)
}

// Personalizer is an optional delegate extension adding personalization.json
// to pass bundles. A nil payload means no personalization.
type Personalizer interface {
	PersonalizationJSON(ctx context.Context, artifact *model.Artifact) ([]byte, error)
}

// CustomSigner is an optional delegate extension that pre-empts signature
// generation. Returning true means the delegate wrote dir/signature itself.
type CustomSigner interface {
	GenerateSignature(ctx context.Context, artifact *model.Artifact, dir string) (bool, error)
}

var (
	// ErrTemplateNotDirectory reports a delegate template path that does not
	// resolve to a directory.
	ErrTemplateNotDirectory = errors.New("template path is not a directory")
	// ErrInvalidBundleCount reports a multi-pass request outside 2..10.
	ErrInvalidBundleCount = errors.New("bundled passes must contain between 2 and 10 passes")
)

// Service assembles signed, zipped bundles for one artifact family.
type Service struct {
	family   Family
	delegate Delegate
	signer   *Signer
	built    *cache.Cache
}

// NewService creates a bundle service. Built bundles are cached for ttl,
// keyed by artifact id and update stamp, so repeated downloads of an
// unchanged artifact skip the signing pipeline.
func NewService(family Family, delegate Delegate, signer *Signer, ttl time.Duration) *Service {
	return &Service{
		family:   family,
		delegate: delegate,
		signer:   signer,
		built:    cache.New(ttl, 2*ttl),
	}
}

// Family returns the artifact family this service builds for.
func (s *Service) Family() Family {
	return s.family
}

// Build produces the compressed bundle bytes for one artifact.
func (s *Service) Build(ctx context.Context, artifact *model.Artifact) ([]byte, error) {
	key := fmt.Sprintf("%s/%s/%d", s.family.Name, artifact.ID, artifact.UpdatedAt.Unix())
	if data, ok := s.built.Get(key); ok {
		return data.([]byte), nil
	}

	data, err := s.build(ctx, artifact)
	if err != nil {
		return nil, err
	}
	s.built.Set(key, data, cache.DefaultExpiration)
	return data, nil
}

func (s *Service) build(ctx context.Context, artifact *model.Artifact) ([]byte, error) {
	templateDir, err := s.delegate.TemplateDir(ctx, artifact)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(templateDir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotDirectory, templateDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat template %s: %w", templateDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotDirectory, templateDir)
	}

	workDir := filepath.Join(os.TempDir(), uuid.NewString())
	defer os.RemoveAll(workDir)
	if err := copyTree(templateDir, workDir); err != nil {
		return nil, fmt.Errorf("failed to copy template: %w", err)
	}

	content, err := s.delegate.ArtifactJSON(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s content: %w", s.family.Name, err)
	}
	if err := os.WriteFile(filepath.Join(workDir, s.family.PrimaryFile), content, 0o644); err != nil {
		return nil, err
	}

	if s.family.Name == Passes.Name {
		if p, ok := s.delegate.(Personalizer); ok {
			personalization, err := p.PersonalizationJSON(ctx, artifact)
			if err != nil {
				return nil, fmt.Errorf("failed to encode personalization: %w", err)
			}
			if personalization != nil {
				if err := os.WriteFile(filepath.Join(workDir, "personalization.json"), personalization, 0o644); err != nil {
					return nil, err
				}
			}
		}
	}

	manifest, err := WriteManifest(workDir, s.family.NewHash)
	if err != nil {
		return nil, err
	}

	handled := false
	if cs, ok := s.delegate.(CustomSigner); ok {
		if handled, err = cs.GenerateSignature(ctx, artifact, workDir); err != nil {
			return nil, fmt.Errorf("delegate signature failed: %w", err)
		}
	}
	if !handled {
		if err := s.signer.Sign(ctx, manifest, workDir); err != nil {
			return nil, err
		}
	}

	return zipTree(workDir)
}

// BuildBundled produces a zip of 2 to 10 individual pass bundles, with the
// inner archives numbered sequentially. Counts outside that range are
// rejected before any I/O. Passes only.
func (s *Service) BuildBundled(ctx context.Context, artifacts []*model.Artifact) ([]byte, error) {
	if s.family.Name != Passes.Name {
		return nil, fmt.Errorf("bundled archives are not supported for %s artifacts", s.family.Name)
	}
	if len(artifacts) < 2 || len(artifacts) > 10 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBundleCount, len(artifacts))
	}

	tmpDir := filepath.Join(os.TempDir(), uuid.NewString())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	for i, artifact := range artifacts {
		data, err := s.Build(ctx, artifact)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s %s: %w", s.family.Name, artifact.ID, err)
		}
		name := fmt.Sprintf("%s%d%s", s.family.Name, i+1, s.family.BundleExtension)
		if err := os.WriteFile(filepath.Join(tmpDir, name), data, 0o644); err != nil {
			return nil, err
		}
	}

	return zipTree(tmpDir)
}

// copyTree replicates the template directory into an exclusively owned
// working directory so concurrent builds never interfere.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func zipTree(root string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compress bundle: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
