package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registry-retain/internal/types"
)

type fakeRegistry struct {
	pages     map[string][][]types.PackageVersion
	listErr   map[string]error
	deleteErr map[string]error
	deleted   []string
}

func (f *fakeRegistry) PageCount(_ context.Context, pkg string) (int, error) {
	count := len(f.pages[pkg])
	if count == 0 {
		count = 1
	}
	return count, nil
}

func (f *fakeRegistry) ListVersions(_ context.Context, pkg string, page int) ([]types.PackageVersion, error) {
	key := fmt.Sprintf("%s/%d", pkg, page)
	if err, ok := f.listErr[key]; ok {
		return nil, err
	}
	pages := f.pages[pkg]
	if page < 1 || page > len(pages) {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("version list target not found")
	}
	return pages[page-1], nil
}

func (f *fakeRegistry) VersionURL(pkg string, id int64) string {
	return fmt.Sprintf("https://api.test/orgs/acme/packages/container/%s/versions/%d", pkg, id)
}

func (f *fakeRegistry) DeleteVersion(_ context.Context, url string) error {
	if err, ok := f.deleteErr[url]; ok {
		return err
	}
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeManifests struct {
	layers map[string][]digest.Digest
	errs   map[string]error
	calls  []string
}

func (f *fakeManifests) LayerDigests(_ context.Context, pkg string, tag string) ([]digest.Digest, error) {
	key := pkg + ":" + tag
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.layers[key], nil
}

type fakeReportWriter struct {
	path   string
	report types.CleanupReport
}

func (f *fakeReportWriter) WriteCleanupReport(path string, report types.CleanupReport) error {
	f.path = path
	f.report = report
	return nil
}

func testService() Service {
	return Service{Clock: time.Now, Sleep: func(time.Duration) {}}
}

func demoRegistry() *fakeRegistry {
	return &fakeRegistry{
		pages: map[string][][]types.PackageVersion{
			"demo": {{
				{Package: "demo", ID: 3, Tags: []string{"latest"}},
				{Package: "demo", ID: 2},
				{Package: "demo", ID: 1, Tags: []string{"1.2.3"}},
			}},
		},
	}
}

func demoManifests() *fakeManifests {
	return &fakeManifests{
		layers: map[string][]digest.Digest{
			"demo:latest": {
				"sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
				"sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			},
			"demo:1.2.3": {
				"sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
				"sha256:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc",
			},
		},
	}
}

func demoRequest(dryRun bool) CleanupRequest {
	return CleanupRequest{
		Owner:    "acme",
		Token:    "tok",
		Packages: []string{"demo"},
		Keep:     0,
		DryRun:   dryRun,
		PaceMs:   1,
	}
}

func TestCleanupDryRunQueuesWithoutDeleting(t *testing.T) {
	registry := demoRegistry()
	manifests := demoManifests()
	service := testService()

	result, err := service.cleanupWith(t.Context(), demoRequest(true), []string{"demo"}, registry, manifests)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Zero(t, result.Deleted)
	assert.Empty(t, registry.deleted, "dry run must issue zero delete calls")
	require.Len(t, result.QueuedURLs, 1)
	assert.Contains(t, result.QueuedURLs[0], "/versions/2")

	// Layers of both tag-protected versions land in the exclusion set,
	// deduplicated.
	require.Len(t, result.ExcludedLayers, 3)
	assert.ElementsMatch(t, []string{"demo:latest", "demo:1.2.3"}, manifests.calls)
}

func TestCleanupLiveRunDeletesQueuedVersions(t *testing.T) {
	registry := demoRegistry()
	service := testService()

	result, err := service.cleanupWith(t.Context(), demoRequest(false), []string{"demo"}, registry, demoManifests())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	require.Len(t, registry.deleted, 1)
	assert.Contains(t, registry.deleted[0], "/versions/2")
}

func TestCleanupKeepPlusOneVersionsOnSinglePage(t *testing.T) {
	registry := &fakeRegistry{
		pages: map[string][][]types.PackageVersion{
			"demo": {{
				{Package: "demo", ID: 3},
				{Package: "demo", ID: 2},
				{Package: "demo", ID: 1},
			}},
		},
	}
	req := demoRequest(false)
	req.Keep = 2
	service := testService()

	result, err := service.cleanupWith(t.Context(), req, []string{"demo"}, registry, &fakeManifests{})
	require.NoError(t, err)

	assert.Empty(t, result.QueuedURLs)
	assert.Zero(t, result.Deleted)
	assert.Empty(t, registry.deleted)
}

func TestCleanupCountRuleOnlyOnFinalPage(t *testing.T) {
	registry := &fakeRegistry{
		pages: map[string][][]types.PackageVersion{
			"demo": {
				{ // page 1, processed last in the walk
					{Package: "demo", ID: 2},
					{Package: "demo", ID: 1},
				},
				{ // page 2, walked first
					{Package: "demo", ID: 4},
					{Package: "demo", ID: 3},
				},
			},
		},
	}
	req := demoRequest(true)
	req.Keep = 1
	service := testService()

	result, err := service.cleanupWith(t.Context(), req, []string{"demo"}, registry, &fakeManifests{})
	require.NoError(t, err)

	// Page 2 versions are candidates wholesale; page 1 keeps keep+1.
	require.Len(t, result.QueuedURLs, 2)
	assert.Contains(t, result.QueuedURLs[0], "/versions/4")
	assert.Contains(t, result.QueuedURLs[1], "/versions/3")
}

func TestCleanupSkipsNotFoundPage(t *testing.T) {
	registry := &fakeRegistry{
		pages: map[string][][]types.PackageVersion{
			"demo": {
				{{Package: "demo", ID: 1}},
				{{Package: "demo", ID: 2}},
			},
		},
		listErr: map[string]error{
			"demo/2": errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("version list target not found"),
		},
	}
	service := testService()

	result, err := service.cleanupWith(t.Context(), demoRequest(true), []string{"demo"}, registry, &fakeManifests{})
	require.NoError(t, err)

	// Page 2 is skipped; page 1 still applies the count rule.
	assert.Empty(t, result.QueuedURLs)
}

func TestCleanupListingForbiddenIsFatal(t *testing.T) {
	registry := &fakeRegistry{
		pages: map[string][][]types.PackageVersion{
			"demo": {{{Package: "demo", ID: 1}}},
		},
		listErr: map[string]error{
			"demo/1": errbuilder.New().
				WithCode(errbuilder.CodePermissionDenied).
				WithMsg("version list forbidden"),
		},
	}
	service := testService()

	_, err := service.cleanupWith(t.Context(), demoRequest(true), []string{"demo"}, registry, &fakeManifests{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodePermissionDenied, errbuilder.CodeOf(err))
}

func TestCleanupDeleteNotFoundIsSkipped(t *testing.T) {
	registry := &fakeRegistry{
		pages: map[string][][]types.PackageVersion{
			"demo": {{
				{Package: "demo", ID: 3},
				{Package: "demo", ID: 2},
				{Package: "demo", ID: 1},
			}},
		},
	}
	registry.deleteErr = map[string]error{
		registry.VersionURL("demo", 2): errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("version delete target not found"),
	}
	service := testService()

	result, err := service.cleanupWith(t.Context(), demoRequest(false), []string{"demo"}, registry, &fakeManifests{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	require.Len(t, registry.deleted, 1)
	assert.Contains(t, registry.deleted[0], "/versions/1")
}

func TestCleanupDeleteForbiddenAbortsRun(t *testing.T) {
	registry := &fakeRegistry{
		pages: map[string][][]types.PackageVersion{
			"demo": {{
				{Package: "demo", ID: 3},
				{Package: "demo", ID: 2},
				{Package: "demo", ID: 1},
			}},
		},
	}
	registry.deleteErr = map[string]error{
		registry.VersionURL("demo", 2): errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("version delete forbidden"),
	}
	service := testService()

	_, err := service.cleanupWith(t.Context(), demoRequest(false), []string{"demo"}, registry, &fakeManifests{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodePermissionDenied, errbuilder.CodeOf(err))
	// The abort happens at the failing call, so the remaining queued
	// deletion for id 1 is never attempted.
	assert.Empty(t, registry.deleted)
}

func TestCleanupManifestFailureDegradesToNoExclusions(t *testing.T) {
	registry := demoRegistry()
	manifests := &fakeManifests{
		errs: map[string]error{
			"demo:latest": errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("manifest fetch failed"),
			"demo:1.2.3": errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("manifest fetch failed"),
		},
	}
	service := testService()

	result, err := service.cleanupWith(t.Context(), demoRequest(true), []string{"demo"}, registry, manifests)
	require.NoError(t, err)

	assert.Empty(t, result.ExcludedLayers)
	// Protected versions stay protected even without resolvable layers.
	require.Len(t, result.QueuedURLs, 1)
	assert.Contains(t, result.QueuedURLs[0], "/versions/2")
}

func TestCleanupWritesReport(t *testing.T) {
	registry := demoRegistry()
	writer := &fakeReportWriter{}
	service := testService()
	service.ReportWriter = writer
	generatedAt := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	service.Clock = func() time.Time { return generatedAt }

	req := demoRequest(true)
	req.ReportPath = "out/report.yaml"
	result, err := service.cleanupWith(t.Context(), req, []string{"demo"}, registry, demoManifests())
	require.NoError(t, err)

	assert.Equal(t, "out/report.yaml", writer.path)
	assert.Equal(t, generatedAt, writer.report.GeneratedAt)
	assert.Equal(t, "acme", writer.report.Owner)
	assert.True(t, writer.report.DryRun)
	assert.Len(t, writer.report.ExcludedLayers, len(result.ExcludedLayers))
	require.Len(t, writer.report.Packages, 1)
	assert.Equal(t, "demo", writer.report.Packages[0].Name)
	assert.ElementsMatch(t, []int64{3, 1}, writer.report.Packages[0].Protected)
	assert.ElementsMatch(t, []int64{2}, writer.report.Packages[0].Queued)
}

func TestCleanupPacesUpstreamCalls(t *testing.T) {
	registry := demoRegistry()
	sleeps := 0
	service := testService()
	service.Sleep = func(d time.Duration) {
		assert.Equal(t, time.Millisecond, d)
		sleeps++
	}

	_, err := service.cleanupWith(t.Context(), demoRequest(false), []string{"demo"}, registry, demoManifests())
	require.NoError(t, err)

	// One pause after the single page batch, one after the deletion.
	assert.Equal(t, 2, sleeps)
}

func TestCleanupPackagesValidatesConfiguration(t *testing.T) {
	service := testService()

	_, err := service.CleanupPackages(t.Context(), CleanupRequest{Owner: "acme"})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	_, err = service.CleanupPackages(t.Context(), CleanupRequest{Packages: []string{"demo"}})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	_, err = service.CleanupPackages(t.Context(), CleanupRequest{
		Owner:    "acme",
		Packages: []string{"demo"},
		Keep:     -1,
	})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestSelectPackagesSubset(t *testing.T) {
	configured := []string{"base", "runtime", " tools "}

	assert.Equal(t, []string{"base", "runtime", "tools"}, selectPackages(configured, nil))
	assert.Equal(t, []string{"runtime"}, selectPackages(configured, []string{"runtime"}))
	assert.Empty(t, selectPackages(configured, []string{"unknown"}))
}
