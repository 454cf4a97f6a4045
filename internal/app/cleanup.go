package app

import (
	"context"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"registry-retain/internal/adapters"
	"registry-retain/internal/ports"
	"registry-retain/internal/types"
)

const defaultPaceMs = 1000

// CleanupPackages runs the retention policy against every configured
// package: enumerate all stored versions page by page, build the
// retention plan, record exclusion layers for tag-protected images,
// and, outside dry-run, delete the queued versions with rate-limit
// pacing.
func (s Service) CleanupPackages(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	if err := validateCleanupRequest(req); err != nil {
		return CleanupResult{}, err
	}
	packages := selectPackages(req.Packages, req.Only)
	if len(packages) == 0 {
		return CleanupResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package selection matches no configured package")
	}

	registry := adapters.NewGitHubPackagesAdapter(req.APIBaseURL, req.Owner, req.Token, req.PageSize, req.HTTPTimeoutSec)
	manifests := adapters.NewGHCRManifestAdapter(req.RegistryBaseURL, req.Owner, req.Token, req.HTTPTimeoutSec)
	return s.cleanupWith(ctx, req, packages, registry, manifests)
}

func (s Service) cleanupWith(ctx context.Context, req CleanupRequest, packages []string, registry ports.PackageRegistryPort, manifests ports.ManifestPort) (CleanupResult, error) {
	pace := paceDuration(req.PaceMs)
	policy := types.RetentionPolicy{
		Keep:             req.Keep,
		DryRun:           req.DryRun,
		IgnoreSkipTagged: req.IgnoreSkipTagged,
	}
	exclusions := types.NewExclusionSet()
	var queue []string
	var summaries []PackageCleanupSummary

	for _, pkg := range packages {
		pages, err := registry.PageCount(ctx, pkg)
		if err != nil {
			return CleanupResult{}, err
		}
		var merged types.RetentionPlan

		// Pages are walked last to first so the most recently created
		// versions are visited last; the count rule applies only to
		// page 1, the final page of the walk.
		for page := pages; page >= 1; page-- {
			log.Info().Str("package", pkg).Int("page", page).Msg("listing versions")
			versions, err := registry.ListVersions(ctx, pkg, page)
			if err != nil {
				if errbuilder.CodeOf(err) == errbuilder.CodeNotFound {
					log.Warn().Str("package", pkg).Int("page", page).Msg("page not found, skipping")
					continue
				}
				return CleanupResult{}, err
			}

			plan := BuildPagePlan(versions, policy, page == 1)
			for _, version := range plan.Retained {
				log.Debug().Str("package", pkg).Int64("id", version.ID).Msg("retained by keep count")
			}
			for _, version := range plan.Protected {
				log.Info().
					Str("package", pkg).
					Int64("id", version.ID).
					Strs("tags", version.Tags).
					Msg("skip tagged version")
				s.recordExclusions(ctx, manifests, exclusions, version)
			}
			for _, version := range plan.Delete {
				queue = append(queue, registry.VersionURL(pkg, version.ID))
				if len(version.Tags) > 0 {
					log.Info().
						Str("package", pkg).
						Int64("id", version.ID).
						Strs("tags", version.Tags).
						Msg("queued tagged version for deletion")
				} else {
					log.Info().
						Str("package", pkg).
						Int64("id", version.ID).
						Msg("queued untagged version for deletion")
				}
			}
			merged.Merge(plan)
			s.sleep(pace)
		}
		summaries = append(summaries, summarizePlan(pkg, merged))
	}

	deleted := 0
	if !req.DryRun {
		for _, deleteURL := range queue {
			err := registry.DeleteVersion(ctx, deleteURL)
			if err != nil {
				if errbuilder.CodeOf(err) == errbuilder.CodeNotFound {
					log.Warn().Str("url", deleteURL).Msg("version already gone")
					continue
				}
				return CleanupResult{}, err
			}
			deleted++
			log.Info().Str("url", deleteURL).Msg("deleted version")
			s.sleep(pace)
		}
	}
	log.Info().Int("deleted", deleted).Bool("dry_run", req.DryRun).Msg("cleanup finished")

	result := CleanupResult{
		DryRun:         req.DryRun,
		Deleted:        deleted,
		QueuedURLs:     queue,
		ExcludedLayers: exclusions.Digests(),
		Packages:       summaries,
	}
	if strings.TrimSpace(req.ReportPath) != "" && s.ReportWriter != nil {
		if err := s.ReportWriter.WriteCleanupReport(req.ReportPath, buildReport(req, result, s.now())); err != nil {
			return CleanupResult{}, err
		}
	}
	return result, nil
}

// recordExclusions resolves the first tag of a protected version and
// adds its layer digests to the exclusion set. Manifest fetch failures
// degrade to an empty contribution.
func (s Service) recordExclusions(ctx context.Context, manifests ports.ManifestPort, exclusions *types.ExclusionSet, version types.PackageVersion) {
	if len(version.Tags) == 0 || manifests == nil {
		return
	}
	layers, err := manifests.LayerDigests(ctx, version.Package, version.Tags[0])
	if err != nil {
		log.Warn().
			Str("package", version.Package).
			Str("tag", version.Tags[0]).
			Err(err).
			Msg("manifest resolution failed, no layers excluded")
		return
	}
	for _, layer := range layers {
		if exclusions.Add(layer) {
			log.Info().Str("digest", layer.String()).Msg("added layer digest to exclusion list")
		}
	}
}

func validateCleanupRequest(req CleanupRequest) error {
	if strings.TrimSpace(req.Owner) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("owner is required")
	}
	if len(req.Packages) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no packages configured")
	}
	if req.Keep < 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("keep count must be non-negative")
	}
	return nil
}

// summarizePlan flattens a merged per-package plan into the ID lists
// reported per package.
func summarizePlan(pkg string, plan types.RetentionPlan) PackageCleanupSummary {
	summary := PackageCleanupSummary{Package: pkg}
	for _, version := range plan.Retained {
		summary.Retained = append(summary.Retained, version.ID)
	}
	for _, version := range plan.Protected {
		summary.Protected = append(summary.Protected, version.ID)
	}
	for _, version := range plan.Delete {
		summary.Queued = append(summary.Queued, version.ID)
	}
	return summary
}

// selectPackages narrows the configured package list to the requested
// subset, preserving the configured order. An empty subset selects
// everything.
func selectPackages(configured []string, only []string) []string {
	cleaned := make([]string, 0, len(configured))
	for _, pkg := range configured {
		name := strings.TrimSpace(pkg)
		if name != "" {
			cleaned = append(cleaned, name)
		}
	}
	if len(only) == 0 {
		return cleaned
	}
	subset := map[string]struct{}{}
	for _, pkg := range only {
		name := strings.TrimSpace(pkg)
		if name != "" {
			subset[name] = struct{}{}
		}
	}
	var selected []string
	for _, pkg := range cleaned {
		if _, ok := subset[pkg]; ok {
			selected = append(selected, pkg)
		}
	}
	return selected
}

func buildReport(req CleanupRequest, result CleanupResult, generatedAt time.Time) types.CleanupReport {
	report := types.CleanupReport{
		GeneratedAt: generatedAt,
		Owner:       req.Owner,
		Keep:        req.Keep,
		DryRun:      result.DryRun,
		QueuedURLs:  result.QueuedURLs,
		Deleted:     result.Deleted,
	}
	for _, layer := range result.ExcludedLayers {
		report.ExcludedLayers = append(report.ExcludedLayers, layer.String())
	}
	for _, pkg := range result.Packages {
		report.Packages = append(report.Packages, types.PackageReport{
			Name:      pkg.Package,
			Retained:  pkg.Retained,
			Protected: pkg.Protected,
			Queued:    pkg.Queued,
		})
	}
	return report
}

func paceDuration(ms int) time.Duration {
	if ms < 0 {
		return 0
	}
	if ms == 0 {
		return defaultPaceMs * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}
