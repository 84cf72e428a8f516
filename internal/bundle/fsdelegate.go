package bundle

import (
	"context"
	"os"
	"path/filepath"

	"wallet-pass-backend/internal/model"
)

// FSDelegate is the built-in delegate used by the standalone server: the
// template lives at TemplateRoot/<typeIdentifier>/ and the artifact content at
// ContentRoot/<typeIdentifier>/<id>.json. Host applications embedding this
// module typically supply their own Delegate instead.
type FSDelegate struct {
	TemplateRoot string
	ContentRoot  string
}

func (d *FSDelegate) TemplateDir(ctx context.Context, artifact *model.Artifact) (string, error) {
	return filepath.Join(d.TemplateRoot, artifact.TypeIdentifier), nil
}

func (d *FSDelegate) ArtifactJSON(ctx context.Context, artifact *model.Artifact) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.ContentRoot, artifact.TypeIdentifier, artifact.ID+".json"))
}
