package bundle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ManifestFile is the name of the digest manifest inside a bundle.
const ManifestFile = "manifest.json"

// SignatureFile is the name of the detached signature inside a bundle.
const SignatureFile = "signature"

// WriteManifest hashes every regular file under root with the family digest,
// writes the name-to-digest mapping to manifest.json in root and returns the
// manifest bytes for signing. Must run before the signature is produced so
// neither manifest nor signature hash themselves.
func WriteManifest(root string, newHash func() hash.Hash) ([]byte, error) {
	entries := make(map[string]string)
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
		digest, err := hashFile(path, newHash())
		if err != nil {
			return err
		}
		entries[filepath.ToSlash(rel)] = digest
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest for %s: %w", root, err)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(root, ManifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return data, nil
}

func hashFile(path string, h hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
