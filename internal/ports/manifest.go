package ports

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// ManifestPort resolves the layer digests referenced by an image tag,
// limited to a fixed architecture allow-list.
type ManifestPort interface {
	LayerDigests(ctx context.Context, pkg string, tag string) ([]digest.Digest, error)
}
