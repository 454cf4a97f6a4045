package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog/log"

	"registry-retain/internal/ports"
	"registry-retain/internal/shared"
)

// GHCRManifestAdapter resolves image manifests on a container registry
// that follows the ghcr.io token and manifest endpoints. It exchanges
// the configured bearer token for a pull-scoped registry token, fetches
// the multi-architecture index for a tag, and collects the layer
// digests of the manifests on the architecture allow-list.
type GHCRManifestAdapter struct {
	BaseURL string
	Owner   string
	Token   string
	Timeout time.Duration
}

const defaultRegistryBaseURL = "https://ghcr.io"
const defaultRegistryTimeout = 60 * time.Second

// manifestArchitectures is the fixed allow-list of index entries whose
// layers are recorded in the exclusion set.
var manifestArchitectures = []string{"amd64", "arm64"}

func NewGHCRManifestAdapter(baseURL string, owner string, token string, timeoutSec int) GHCRManifestAdapter {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultRegistryBaseURL
	}
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultRegistryTimeout
	}
	return GHCRManifestAdapter{
		BaseURL: base,
		Owner:   owner,
		Token:   token,
		Timeout: timeout,
	}
}

func (a GHCRManifestAdapter) LayerDigests(ctx context.Context, pkg string, tag string) ([]digest.Digest, error) {
	token, err := a.exchangeToken(ctx, pkg)
	if err != nil {
		return nil, err
	}
	body, err := a.fetchManifest(ctx, token, pkg, tag, v1.MediaTypeImageIndex)
	if err != nil {
		return nil, err
	}

	// A tag can resolve to a single-architecture manifest instead of
	// an index; its layer list is then used directly.
	var probe struct {
		MediaType string `json:"mediaType"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to parse manifest response").
			WithCause(err)
	}
	if probe.MediaType != v1.MediaTypeImageIndex {
		return layersFromManifest(body)
	}

	var index v1.Index
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to parse image index").
			WithCause(err)
	}
	var layers []digest.Digest
	for _, desc := range index.Manifests {
		if desc.Platform == nil || !allowedArchitecture(desc.Platform.Architecture) {
			continue
		}
		manifestBody, err := a.fetchManifest(ctx, token, pkg, desc.Digest.String(), v1.MediaTypeImageManifest)
		if err != nil {
			log.Warn().
				Str("package", pkg).
				Str("digest", desc.Digest.String()).
				Err(err).
				Msg("architecture manifest fetch failed")
			continue
		}
		archLayers, err := layersFromManifest(manifestBody)
		if err != nil {
			return nil, err
		}
		layers = append(layers, archLayers...)
	}
	return layers, nil
}

func (a GHCRManifestAdapter) exchangeToken(ctx context.Context, pkg string) (string, error) {
	service := a.BaseURL
	if parsed, err := url.Parse(a.BaseURL); err == nil && parsed.Host != "" {
		service = parsed.Host
	}
	scope := fmt.Sprintf("repository:%s/%s:pull", a.Owner, pkg)
	tokenURL := fmt.Sprintf("%s/token?service=%s&scope=%s",
		a.BaseURL, url.QueryEscape(service), url.QueryEscape(scope))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create registry token request").
			WithCause(err)
	}
	if strings.TrimSpace(a.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	client := &http.Client{Timeout: a.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("registry token exchange failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("registry token exchange failed").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, tokenURL, string(body)))
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to parse registry token response").
			WithCause(err)
	}
	return payload.Token, nil
}

func (a GHCRManifestAdapter) fetchManifest(ctx context.Context, token string, pkg string, reference string, accept string) ([]byte, error) {
	manifestURL := fmt.Sprintf("%s/v2/%s/%s/manifests/%s",
		a.BaseURL, a.Owner, pkg, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create manifest request").
			WithCause(err)
	}
	req.Header.Set("Accept", accept)
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: a.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("manifest fetch failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("manifest fetch failed").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, manifestURL, string(body)))
	}
	return body, nil
}

func layersFromManifest(body []byte) ([]digest.Digest, error) {
	var manifest v1.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to parse image manifest").
			WithCause(err)
	}
	layers := make([]digest.Digest, 0, len(manifest.Layers))
	for _, layer := range manifest.Layers {
		layers = append(layers, layer.Digest)
	}
	return layers, nil
}

func allowedArchitecture(arch string) bool {
	for _, allowed := range manifestArchitectures {
		if arch == allowed {
			return true
		}
	}
	return false
}

var _ ports.ManifestPort = GHCRManifestAdapter{}
