package ports

import (
	"context"

	"registry-retain/internal/types"
)

// PackageRegistryPort lists and deletes stored package versions on a
// GitHub-Packages-style registry API.
type PackageRegistryPort interface {
	// PageCount probes the version listing and returns the number of
	// pages, defaulting to 1 when the response carries no pagination
	// hint.
	PageCount(ctx context.Context, pkg string) (int, error)
	ListVersions(ctx context.Context, pkg string, page int) ([]types.PackageVersion, error)
	// VersionURL returns the fully-qualified deletion URL for a
	// version, as queued during the decision phase.
	VersionURL(pkg string, id int64) string
	DeleteVersion(ctx context.Context, url string) error
}
