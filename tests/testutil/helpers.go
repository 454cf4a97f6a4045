// Package testutil provides shared test helpers: httptest doubles for
// the packages API and the container registry used by integration
// tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeVersion is one stored package version served by the fake
// packages API.
type FakeVersion struct {
	ID   int64
	Tags []string
}

// FakePackagesAPI mimics the GitHub Packages version listing and
// deletion endpoints for a single owner. Versions are served newest
// first across pages, the way the upstream API orders them.
type FakePackagesAPI struct {
	mu       sync.Mutex
	owner    string
	pageSize int
	versions map[string][]FakeVersion
	deleted  []string

	Server *httptest.Server
}

func StartFakePackagesAPI(t *testing.T, owner string, pageSize int, versions map[string][]FakeVersion) *FakePackagesAPI {
	t.Helper()
	api := &FakePackagesAPI{
		owner:    owner,
		pageSize: pageSize,
		versions: versions,
	}
	api.Server = httptest.NewServer(http.HandlerFunc(api.handle))
	t.Cleanup(api.Server.Close)
	return api
}

// Deleted returns the request paths of every DELETE call received.
func (a *FakePackagesAPI) Deleted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.deleted...)
}

func (a *FakePackagesAPI) handle(w http.ResponseWriter, r *http.Request) {
	prefix := fmt.Sprintf("/orgs/%s/packages/container/", a.owner)
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rest := strings.TrimPrefix(r.URL.EscapedPath(), prefix)

	if r.Method == http.MethodDelete {
		a.mu.Lock()
		a.deleted = append(a.deleted, r.URL.Path)
		a.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	pkg := strings.TrimSuffix(rest, "/versions")
	versions, ok := a.versions[pkg]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	pages := (len(versions) + a.pageSize - 1) / a.pageSize
	if pages == 0 {
		pages = 1
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	if pages > 1 {
		w.Header().Set("Link", fmt.Sprintf(
			`<%s%s%s/versions?page=%d&per_page=%d>; rel="last"`,
			a.Server.URL, prefix, pkg, pages, a.pageSize))
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := (page - 1) * a.pageSize
	if start > len(versions) {
		start = len(versions)
	}
	end := start + a.pageSize
	if end > len(versions) {
		end = len(versions)
	}
	payload := make([]map[string]any, 0, end-start)
	for _, version := range versions[start:end] {
		tags := version.Tags
		if tags == nil {
			tags = []string{}
		}
		payload = append(payload, map[string]any{
			"id":         version.ID,
			"created_at": "2026-08-01T10:00:00Z",
			"metadata":   map[string]any{"container": map[string]any{"tags": tags}},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// FakeContainerRegistry mimics the ghcr.io token and manifest
// endpoints. Every tag resolves to a single-architecture index entry
// per allowed architecture, with the configured layer digests.
type FakeContainerRegistry struct {
	owner  string
	layers map[string][]string

	Server *httptest.Server
}

func StartFakeContainerRegistry(t *testing.T, owner string, layersByTag map[string][]string) *FakeContainerRegistry {
	t.Helper()
	registry := &FakeContainerRegistry{owner: owner, layers: layersByTag}
	registry.Server = httptest.NewServer(http.HandlerFunc(registry.handle))
	t.Cleanup(registry.Server.Close)
	return registry
}

func (reg *FakeContainerRegistry) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/token" {
		fmt.Fprint(w, `{"token": "registry-token"}`)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v2/"), "/manifests/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	reference := parts[1]

	if _, ok := reg.layers[reference]; ok {
		// Tag reference: serve an index pointing at a digest-addressed
		// manifest.
		fmt.Fprintf(w, `{
			"schemaVersion": 2,
			"mediaType": "application/vnd.oci.image.index.v1+json",
			"manifests": [
				{"mediaType": "application/vnd.oci.image.manifest.v1+json", "digest": %q, "size": 1, "platform": {"architecture": "amd64", "os": "linux"}}
			]
		}`, manifestDigestForTag(reference))
		return
	}
	for tag, layers := range reg.layers {
		if reference != manifestDigestForTag(tag) {
			continue
		}
		descriptors := make([]string, 0, len(layers))
		for _, layer := range layers {
			descriptors = append(descriptors, fmt.Sprintf(
				`{"mediaType": "application/vnd.oci.image.layer.v1.tar+gzip", "digest": %q, "size": 1}`, layer))
		}
		fmt.Fprintf(w, `{
			"schemaVersion": 2,
			"mediaType": "application/vnd.oci.image.manifest.v1+json",
			"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": %q, "size": 1},
			"layers": [%s]
		}`, manifestDigestForTag(tag), strings.Join(descriptors, ","))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

// manifestDigestForTag derives a stable fake digest for a tag so index
// entries and manifest fetches line up.
func manifestDigestForTag(tag string) string {
	return fmt.Sprintf("sha256:%064x", []byte(tag))
}
