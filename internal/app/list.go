package app

import (
	"context"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"registry-retain/internal/adapters"
	"registry-retain/internal/ports"
	"registry-retain/internal/types"
)

// ListVersions enumerates all stored versions of the configured
// packages with their tag-protection classification. Read-only: no
// deletion queue is built and no mutating call is made.
func (s Service) ListVersions(ctx context.Context, req ListRequest) (ListResult, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return ListResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("owner is required")
	}
	if len(req.Packages) == 0 {
		return ListResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no packages configured")
	}
	registry := adapters.NewGitHubPackagesAdapter(req.APIBaseURL, req.Owner, req.Token, req.PageSize, req.HTTPTimeoutSec)
	return s.listWith(ctx, req, registry)
}

func (s Service) listWith(ctx context.Context, req ListRequest, registry ports.PackageRegistryPort) (ListResult, error) {
	var result ListResult
	for _, pkg := range selectPackages(req.Packages, nil) {
		pages, err := registry.PageCount(ctx, pkg)
		if err != nil {
			return ListResult{}, err
		}
		for page := pages; page >= 1; page-- {
			versions, err := registry.ListVersions(ctx, pkg, page)
			if err != nil {
				if errbuilder.CodeOf(err) == errbuilder.CodeNotFound {
					log.Warn().Str("package", pkg).Int("page", page).Msg("page not found, skipping")
					continue
				}
				return ListResult{}, err
			}
			sorted := append([]types.PackageVersion(nil), versions...)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i].ID > sorted[j].ID
			})
			for _, version := range sorted {
				result.Versions = append(result.Versions, ListedVersion{
					Package:   pkg,
					ID:        version.ID,
					Tags:      version.Tags,
					Protected: IsProtectedTags(version.Tags),
				})
			}
		}
	}
	return result, nil
}
