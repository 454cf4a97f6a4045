package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"registry-retain/internal/ports"
	"registry-retain/internal/shared"
	"registry-retain/internal/types"
)

// GitHubPackagesAdapter talks to the GitHub Packages REST API for one
// organization: paginated container version listing and version
// deletion.
type GitHubPackagesAdapter struct {
	BaseURL  string
	Owner    string
	Token    string
	PageSize int
	Timeout  time.Duration
}

const defaultPackagesBaseURL = "https://api.github.com"
const defaultPackagesPageSize = 50
const defaultPackagesTimeout = 60 * time.Second
const githubAPIVersion = "2022-11-28"

func NewGitHubPackagesAdapter(baseURL string, owner string, token string, pageSize int, timeoutSec int) GitHubPackagesAdapter {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultPackagesBaseURL
	}
	if pageSize <= 0 {
		pageSize = defaultPackagesPageSize
	}
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultPackagesTimeout
	}
	return GitHubPackagesAdapter{
		BaseURL:  base,
		Owner:    owner,
		Token:    token,
		PageSize: pageSize,
		Timeout:  timeout,
	}
}

type packageVersionPayload struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	Metadata  struct {
		Container struct {
			Tags []string `json:"tags"`
		} `json:"container"`
	} `json:"metadata"`
}

func (a GitHubPackagesAdapter) PageCount(ctx context.Context, pkg string) (int, error) {
	listURL := a.versionsURL(pkg, 1)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, listURL, nil)
	if err != nil {
		return 0, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create page probe request").
			WithCause(err)
	}
	a.applyHeaders(req)
	client := &http.Client{Timeout: a.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("page probe failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	return lastPageFromLink(resp.Header.Get("Link")), nil
}

func (a GitHubPackagesAdapter) ListVersions(ctx context.Context, pkg string, page int) ([]types.PackageVersion, error) {
	listURL := a.versionsURL(pkg, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create version list request").
			WithCause(err)
	}
	a.applyHeaders(req)
	client := &http.Client{Timeout: a.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("version list failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := statusError(resp.StatusCode, listURL, body, "version list"); err != nil {
		return nil, err
	}
	var payload []packageVersionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to parse version list").
			WithCause(err)
	}
	versions := make([]types.PackageVersion, 0, len(payload))
	for _, item := range payload {
		versions = append(versions, types.PackageVersion{
			Package:   pkg,
			ID:        item.ID,
			Tags:      item.Metadata.Container.Tags,
			CreatedAt: parseTimeFlexible(item.CreatedAt),
		})
	}
	return versions, nil
}

func (a GitHubPackagesAdapter) VersionURL(pkg string, id int64) string {
	return fmt.Sprintf("%s/orgs/%s/packages/container/%s/versions/%d",
		a.BaseURL, url.PathEscape(a.Owner), url.PathEscape(pkg), id)
}

func (a GitHubPackagesAdapter) DeleteVersion(ctx context.Context, deleteURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create version delete request").
			WithCause(err)
	}
	a.applyHeaders(req)
	client := &http.Client{Timeout: a.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("version delete failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return statusError(resp.StatusCode, deleteURL, body, "version delete")
}

func (a GitHubPackagesAdapter) versionsURL(pkg string, page int) string {
	return fmt.Sprintf("%s/orgs/%s/packages/container/%s/versions?page=%d&per_page=%d",
		a.BaseURL, url.PathEscape(a.Owner), url.PathEscape(pkg), page, a.PageSize)
}

func (a GitHubPackagesAdapter) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if strings.TrimSpace(a.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
}

func statusError(status int, requestURL string, body []byte, operation string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(operation + " target not found").
			WithCause(shared.HTTPStatusError(status, requestURL))
	case status == http.StatusUnauthorized:
		return errbuilder.New().
			WithCode(errbuilder.CodeUnauthenticated).
			WithMsg(operation + " requires authentication").
			WithCause(shared.HTTPStatusError(status, requestURL))
	case status == http.StatusForbidden:
		return errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg(operation + " forbidden").
			WithCause(shared.HTTPStatusError(status, requestURL))
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(operation + " failed").
			WithCause(shared.HTTPStatusErrorWithBody(status, requestURL, string(body)))
	}
}

// lastPageFromLink extracts the page number of the rel="last" entry
// from a Link response header, defaulting to 1 when the header or
// entry is absent.
func lastPageFromLink(header string) int {
	if strings.TrimSpace(header) == "" {
		return 1
	}
	for _, link := range strings.Split(header, ",") {
		if !strings.Contains(link, `rel="last"`) {
			continue
		}
		start := strings.Index(link, "<")
		end := strings.Index(link, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		parsed, err := url.Parse(link[start+1 : end])
		if err != nil {
			continue
		}
		page, err := strconv.Atoi(parsed.Query().Get("page"))
		if err != nil || page < 1 {
			continue
		}
		return page
	}
	return 1
}

var _ ports.PackageRegistryPort = GitHubPackagesAdapter{}
