package precompile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

const (
	// GitHubReleaseZipID is the adapter key used in the pre-compiled settings.
	GitHubReleaseZipID = "gh-release-zip"
	// GitHubAPIURL is the public GitHub REST endpoint.
	GitHubAPIURL = "https://api.github.com"

	defaultGitHubUser = "x-access-token"
)

// GitHubReleaseZipAdapter downloads a zip asset attached to a GitHub release.
//
// Settings: config.repository ("owner/repo", required), config.token (optional, usually
// "${GITHUB_TOKEN}"), config.user (defaults to x-access-token). The release tag is the
// configured version, falling back to the package version. The asset name is the source, or
// the package name with "/" replaced by "-", with ".zip" appended when missing.
type GitHubReleaseZipAdapter struct {
	getter     Getter
	downloader Downloader
	apiURL     string
}

func NewGitHubReleaseZipAdapter(getter Getter, downloader Downloader) *GitHubReleaseZipAdapter {
	return &GitHubReleaseZipAdapter{getter: getter, downloader: downloader, apiURL: GitHubAPIURL}
}

// WithAPIURL points the adapter at another API endpoint, e.g. GitHub Enterprise.
func (a *GitHubReleaseZipAdapter) WithAPIURL(apiURL string) *GitHubReleaseZipAdapter {
	a.apiURL = strings.TrimSuffix(apiURL, "/")
	return a
}

func (a *GitHubReleaseZipAdapter) ID() string { return GitHubReleaseZipID }

type release struct {
	Assets []releaseAsset `json:"assets"`
}

type releaseAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	URL                string `json:"url"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (a *GitHubReleaseZipAdapter) TryPrecompiled(ctx context.Context, req Request) foundation.Outcome {
	log := slog.With(logfields.Adapter(a.ID()), logfields.Package(req.Name))

	version := req.replace(req.Version)
	if version == "" {
		log.Debug("No version to look up a release for")
		return foundation.SoftFailure("no version", nil)
	}
	repo := strings.Trim(req.configString("repository"), "/")
	if strings.Count(repo, "/") != 1 {
		log.Debug("Invalid GitHub repository", slog.String("repository", repo))
		return foundation.SoftFailure("invalid repository", nil)
	}

	user := req.configString("user")
	if user == "" {
		user = defaultGitHubUser
	}
	var auth *url.Userinfo
	if token := req.configString("token"); token != "" {
		auth = url.UserPassword(user, token)
	}

	endpoint, err := a.endpoint(auth, "repos", repo, "releases", "tags", version)
	if err != nil {
		return foundation.SoftFailure("invalid endpoint", err)
	}
	body, err := a.getter.Get(ctx, endpoint)
	if err != nil {
		log.Debug("Release lookup failed", logfields.URL(redact(endpoint)), logfields.Error(err))
		return foundation.SoftFailure("release not available", err)
	}
	var rel release
	if err := json.Unmarshal(body, &rel); err != nil {
		log.Debug("Invalid release document", logfields.Error(err))
		return foundation.SoftFailure("invalid release document", err)
	}

	name := assetName(req)
	var asset *releaseAsset
	for i := range rel.Assets {
		if rel.Assets[i].Name == name {
			asset = &rel.Assets[i]
			break
		}
	}
	if asset == nil || asset.ID == 0 {
		log.Debug("Release has no matching asset", slog.String("asset", name), slog.String("version", version))
		return foundation.SoftFailure(fmt.Sprintf("asset %s not found", name), nil)
	}

	downloadURL, err := a.downloadURL(auth, repo, *asset)
	if err != nil {
		return foundation.SoftFailure("invalid asset URL", err)
	}
	if err := a.downloader.Download(ctx, Dist{Key: req.CacheKey, Type: DistZip, URL: downloadURL}, req.TargetDir); err != nil {
		log.Debug("Asset download failed", logfields.URL(redact(downloadURL)), logfields.Error(err))
		return foundation.SoftFailure("download failed", err)
	}
	log.Debug("Release asset installed", slog.String("asset", name), logfields.Path(req.TargetDir))
	return foundation.OK()
}

func assetName(req Request) string {
	name := req.replace(req.Source)
	if name == "" {
		name = strings.ReplaceAll(req.Name, "/", "-")
	}
	if !strings.HasSuffix(name, ".zip") {
		name += ".zip"
	}
	return name
}

func (a *GitHubReleaseZipAdapter) endpoint(auth *url.Userinfo, segments ...string) (string, error) {
	u, err := url.Parse(a.apiURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath(segments...)
	u.User = auth
	return u.String(), nil
}

// downloadURL prefers the API asset URL when authenticated, since private release assets are
// only reachable through the API.
func (a *GitHubReleaseZipAdapter) downloadURL(auth *url.Userinfo, repo string, asset releaseAsset) (string, error) {
	if auth == nil && asset.BrowserDownloadURL != "" {
		return asset.BrowserDownloadURL, nil
	}
	if asset.URL == "" {
		return a.endpoint(auth, "repos", repo, "releases", "assets", fmt.Sprint(asset.ID))
	}
	u, err := url.Parse(asset.URL)
	if err != nil {
		return "", err
	}
	u.User = auth
	return u.String(), nil
}
