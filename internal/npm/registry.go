package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"relkit/internal/semver"
)

// downloadsAPI serves npm download counts; it is a separate host from
// the registry itself.
const downloadsAPI = "https://api.npmjs.org"

// defaultMaxWait caps WaitForVersion polling when the caller's context
// carries no deadline, so a version that never appears cannot hang a
// command forever.
const defaultMaxWait = 5 * time.Minute

// Registry is a read-only npm registry client.
type Registry struct {
	baseURL      string
	downloadsURL string
	client       *http.Client
	maxWait      time.Duration
}

// NewRegistry creates a registry client. Empty baseURL uses the public
// registry.
func NewRegistry(baseURL string) *Registry {
	if baseURL == "" {
		baseURL = DefaultRegistry
	}
	return &Registry{
		baseURL:      baseURL,
		downloadsURL: downloadsAPI,
		client:       &http.Client{Timeout: 30 * time.Second},
		maxWait:      defaultMaxWait,
	}
}

// WithDownloadsURL overrides the downloads API host, mainly for tests
// and mirrored registries. It returns the receiver for chaining.
func (r *Registry) WithDownloadsURL(u string) *Registry {
	if u != "" {
		r.downloadsURL = u
	}
	return r
}

// Packument is the subset of registry package metadata relkit uses.
type Packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]json.RawMessage `json:"versions"`
	Time     map[string]string          `json:"time"`
}

func (r *Registry) get(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrVersionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned %s for %s", resp.Status, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Packument fetches the package metadata document.
func (r *Registry) Packument(ctx context.Context, pkg string) (*Packument, error) {
	var doc Packument
	if err := r.get(ctx, r.baseURL+"/"+url.PathEscape(pkg), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// VersionExists reports whether the registry has the exact version.
func (r *Registry) VersionExists(ctx context.Context, pkg, version string) (bool, error) {
	doc, err := r.Packument(ctx, pkg)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			// Unpublished package: no versions at all.
			return false, nil
		}
		return false, err
	}
	_, ok := doc.Versions[version]
	return ok, nil
}

// DistTag returns the version a dist-tag points at, or
// ErrVersionNotFound when the tag is absent.
func (r *Registry) DistTag(ctx context.Context, pkg, tag string) (string, error) {
	doc, err := r.Packument(ctx, pkg)
	if err != nil {
		return "", err
	}
	v, ok := doc.DistTags[tag]
	if !ok {
		return "", fmt.Errorf("%w: dist-tag %s", ErrVersionNotFound, tag)
	}
	return v, nil
}

// Versions returns all published versions, sorted descending by semver.
func (r *Registry) Versions(ctx context.Context, pkg string) ([]string, error) {
	doc, err := r.Packument(ctx, pkg)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return semver.CompareStrings(versions[i], versions[j]) > 0
	})
	return versions, nil
}

// PreviousVersion returns the highest published version strictly below
// the given one, used by rollback when no git tag is available.
func (r *Registry) PreviousVersion(ctx context.Context, pkg, version string) (string, error) {
	versions, err := r.Versions(ctx, pkg)
	if err != nil {
		return "", err
	}
	for _, v := range versions {
		if semver.CompareStrings(v, version) < 0 {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: no version before %s", ErrVersionNotFound, version)
}

// PublishedAt returns the registry timestamp for a version.
func (r *Registry) PublishedAt(ctx context.Context, pkg, version string) (time.Time, error) {
	doc, err := r.Packument(ctx, pkg)
	if err != nil {
		return time.Time{}, err
	}
	stamp, ok := doc.Time[version]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	return time.Parse(time.RFC3339, stamp)
}

// Dist describes where a published version's tarball lives.
type Dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// TarballInfo returns the dist block for a published version.
func (r *Registry) TarballInfo(ctx context.Context, pkg, version string) (*Dist, error) {
	doc, err := r.Packument(ctx, pkg)
	if err != nil {
		return nil, err
	}
	raw, ok := doc.Versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	var meta struct {
		Dist Dist `json:"dist"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("version metadata for %s: %w", version, err)
	}
	if meta.Dist.Tarball == "" {
		return nil, fmt.Errorf("no tarball recorded for %s@%s", pkg, version)
	}
	return &meta.Dist, nil
}

// CheckTarball issues a HEAD request against the version's tarball so a
// release can be verified downloadable without pulling the archive.
func (r *Registry) CheckTarball(ctx context.Context, pkg, version string) (string, error) {
	dist, err := r.TarballInfo(ctx, pkg, version)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, dist.Tarball, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tarball returned %s: %s", resp.Status, dist.Tarball)
	}
	return dist.Tarball, nil
}

// Downloads returns the package's download count for the last day.
func (r *Registry) Downloads(ctx context.Context, pkg string) (int, error) {
	var parsed struct {
		Downloads int `json:"downloads"`
	}
	u := fmt.Sprintf("%s/downloads/point/last-day/%s", r.downloadsURL, url.PathEscape(pkg))
	if err := r.get(ctx, u, &parsed); err != nil {
		return 0, err
	}
	return parsed.Downloads, nil
}

// WaitForVersion polls the registry until the version appears or the
// context is done, returning the time it took to show up. When the
// context carries no deadline the wait is capped at maxWait.
func (r *Registry) WaitForVersion(ctx context.Context, pkg, version string, interval time.Duration) (time.Duration, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.maxWait)
		defer cancel()
	}
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		exists, err := r.VersionExists(ctx, pkg, version)
		if err == nil && exists {
			return time.Since(start), nil
		}

		select {
		case <-ctx.Done():
			return time.Since(start), fmt.Errorf("%s@%s did not appear in registry: %w", pkg, version, ctx.Err())
		case <-ticker.C:
		}
	}
}
