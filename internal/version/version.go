// Package version implements spec.md §4.6: the per-Home catalogue of
// installed engine binaries, the upstream release index, and
// download/decompress/install. Grounded in
// _examples/original_source/src/service.rs's get_available_versions and
// download_version, with divergences resolved toward spec.md per
// SPEC_FULL.md §9 (Linux armv7 added, zip extraction implemented for
// real, flag wiring matches spec.md elsewhere).
package version

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
)

const releasesURL = "https://api.github.com/repos/MetaCubeX/mihomo/releases"

// Channel selects an install strategy for "install <channel>".
type Channel string

const (
	ChannelStable  Channel = "stable"
	ChannelBeta    Channel = "beta"
	ChannelNightly Channel = "nightly"
)

// Release is one entry from the upstream release index (spec.md §4.6
// fetchReleases).
type Release struct {
	Version      string            `json:"version"`
	Name         string            `json:"name"`
	Prerelease   bool              `json:"prerelease"`
	PublishedAt  string            `json:"publishedAt"`
	DownloadURLs map[string]string `json:"downloadUrls"`
}

// InstalledVersion is one entry from listInstalled.
type InstalledVersion struct {
	Version   string
	Path      string
	IsDefault bool
}

// Manager operates on the version catalogue rooted at a single Home.
type Manager struct {
	home   *home.Home
	client *http.Client
}

// New builds a Manager rooted at h.
func New(h *home.Home) *Manager {
	return &Manager{home: h, client: &http.Client{Timeout: 30 * time.Second}}
}

// platformAsset holds the (os, arch, ext) naming rule from spec.md §4.6,
// including the Linux armv7 row original_source's Rust match statement
// omits (SPEC_FULL.md §9 divergence #3).
type platformAsset struct {
	os   string
	arch string
	ext  string
}

func hostPlatform() (platformAsset, error) {
	switch {
	case runtime.GOOS == "darwin" && runtime.GOARCH == "arm64":
		return platformAsset{"darwin", "arm64", ".gz"}, nil
	case runtime.GOOS == "darwin" && runtime.GOARCH == "amd64":
		return platformAsset{"darwin", "amd64", ".gz"}, nil
	case runtime.GOOS == "linux" && runtime.GOARCH == "arm64":
		return platformAsset{"linux", "arm64", ".gz"}, nil
	case runtime.GOOS == "linux" && runtime.GOARCH == "amd64":
		return platformAsset{"linux", "amd64", ".gz"}, nil
	case runtime.GOOS == "linux" && runtime.GOARCH == "arm":
		return platformAsset{"linux", "armv7", ".gz"}, nil
	case runtime.GOOS == "windows" && runtime.GOARCH == "amd64":
		return platformAsset{"windows", "amd64", ".zip"}, nil
	default:
		return platformAsset{}, mherr.Service("version.hostPlatform", fmt.Sprintf("unsupported platform %s/%s", runtime.GOOS, runtime.GOARCH))
	}
}

// assetName builds "mihomo-<os>-<arch>-<version><ext>" per spec.md §4.6.
func assetName(p platformAsset, ver string) string {
	return fmt.Sprintf("mihomo-%s-%s-%s%s", p.os, p.arch, ver, p.ext)
}

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "mihomo.exe"
	}
	return "mihomo"
}

// FetchReleases queries the upstream release index and returns the most
// recent limit entries (spec.md §4.6).
func (m *Manager) FetchReleases(ctx context.Context, limit int) ([]Release, error) {
	return m.fetchFrom(ctx, releasesURL, limit)
}

// fetchFrom is FetchReleases parameterized over the index URL, so tests
// can point it at an httptest server instead of the real GitHub API.
func (m *Manager) fetchFrom(ctx context.Context, url string, limit int) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, mherr.InvalidParameter("version.FetchReleases", err.Error())
	}
	req.Header.Set("User-Agent", "mihomo-rs-go")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, mherr.Network("version.FetchReleases", "querying release index", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, mherr.FromStatus("version.FetchReleases", resp.StatusCode, string(data))
	}

	var raw []struct {
		TagName    string `json:"tag_name"`
		Name       string `json:"name"`
		Prerelease bool   `json:"prerelease"`
		Published  string `json:"published_at"`
		Assets     []struct {
			Name string `json:"name"`
			URL  string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, mherr.DataProcessing("version.FetchReleases", "decoding release index", err)
	}

	releases := make([]Release, 0, len(raw))
	for _, r := range raw {
		urls := make(map[string]string, len(r.Assets))
		for _, a := range r.Assets {
			urls[a.Name] = a.URL
		}
		releases = append(releases, Release{
			Version:      r.TagName,
			Name:         r.Name,
			Prerelease:   r.Prerelease,
			PublishedAt:  r.Published,
			DownloadURLs: urls,
		})
	}
	if limit > 0 && len(releases) > limit {
		releases = releases[:limit]
	}
	return releases, nil
}

// findAsset picks the asset matching the current platform from a
// release's DownloadURLs.
func findAsset(r Release) (string, error) {
	p, err := hostPlatform()
	if err != nil {
		return "", err
	}
	name := assetName(p, r.Version)
	if url, ok := r.DownloadURLs[name]; ok {
		return url, nil
	}
	return "", mherr.Service("version.findAsset", fmt.Sprintf("no asset named %q for version %s", name, r.Version))
}

// Install downloads, decompresses, and installs a specific version
// (spec.md §4.6).
func (m *Manager) Install(ctx context.Context, ver string) (string, error) {
	releases, err := m.FetchReleases(ctx, 0)
	if err != nil {
		return "", err
	}
	var target *Release
	for i := range releases {
		if releases[i].Version == ver {
			target = &releases[i]
			break
		}
	}
	if target == nil {
		return "", mherr.NotFound("version.Install", fmt.Sprintf("version %s not found in release index", ver))
	}

	p, err := hostPlatform()
	if err != nil {
		return "", err
	}
	assetURL, err := findAsset(*target)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return "", mherr.InvalidParameter("version.Install", err.Error())
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", mherr.Network("version.Install", "downloading asset", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return "", mherr.FromStatus("version.Install", resp.StatusCode, string(data))
	}

	tmp, err := os.CreateTemp("", "mihomo-download-*")
	if err != nil {
		return "", mherr.System("version.Install", "creating temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", mherr.Network("version.Install", "saving download", err)
	}
	tmp.Close()

	destDir := m.home.VersionDir(ver)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", mherr.System("version.Install", "creating version directory", err)
	}
	destPath := filepath.Join(destDir, binaryName())

	switch p.ext {
	case ".gz":
		if err := decompressGzip(tmpPath, destPath); err != nil {
			return "", err
		}
	case ".zip":
		if err := decompressZip(tmpPath, destPath); err != nil {
			return "", err
		}
	default:
		return "", mherr.Internal("version.Install", fmt.Sprintf("unhandled extension %q", p.ext))
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(destPath, 0o755); err != nil {
			return "", mherr.System("version.Install", "setting executable bit", err)
		}
	}

	return destPath, nil
}

func decompressGzip(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return mherr.System("version.decompressGzip", "opening download", err)
	}
	defer src.Close()

	gr, err := gzip.NewReader(src)
	if err != nil {
		return mherr.DataProcessing("version.decompressGzip", "reading gzip header", err)
	}
	defer gr.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return mherr.System("version.decompressGzip", "creating destination", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, gr); err != nil {
		return mherr.DataProcessing("version.decompressGzip", "inflating", err)
	}
	return nil
}

// decompressZip extracts the single entry a release zip asset contains
// (spec.md §4.6: "exactly one entry"). original_source's Rust equivalent
// is an unimplemented stub that writes raw archive bytes (SPEC_FULL.md
// §9 divergence #4); this performs real extraction via the standard
// library's archive/zip.
func decompressZip(srcPath, destPath string) error {
	r, err := zip.OpenReader(srcPath)
	if err != nil {
		return mherr.DataProcessing("version.decompressZip", "opening zip", err)
	}
	defer r.Close()

	if len(r.File) != 1 {
		return mherr.DataProcessing("version.decompressZip", fmt.Sprintf("expected exactly one entry, found %d", len(r.File)), nil)
	}

	rc, err := r.File[0].Open()
	if err != nil {
		return mherr.DataProcessing("version.decompressZip", "opening zip entry", err)
	}
	defer rc.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return mherr.System("version.decompressZip", "creating destination", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, rc); err != nil {
		return mherr.DataProcessing("version.decompressZip", "extracting", err)
	}
	return nil
}

// InstallChannel resolves a channel (Stable/Beta/Nightly) to a concrete
// release and installs it (spec.md §4.6).
func (m *Manager) InstallChannel(ctx context.Context, channel Channel) (string, error) {
	releases, err := m.FetchReleases(ctx, 0)
	if err != nil {
		return "", err
	}

	var chosen *Release
	switch channel {
	case ChannelStable:
		for i := range releases {
			if !releases[i].Prerelease {
				chosen = &releases[i]
				break
			}
		}
	case ChannelBeta:
		for i := range releases {
			if releases[i].Prerelease {
				chosen = &releases[i]
				break
			}
		}
	case ChannelNightly:
		for i := range releases {
			if releases[i].Prerelease && strings.Contains(strings.ToLower(releases[i].Version), "nightly") {
				chosen = &releases[i]
				break
			}
		}
	default:
		return "", mherr.InvalidParameter("version.InstallChannel", fmt.Sprintf("unknown channel %q", channel))
	}
	if chosen == nil {
		return "", mherr.NotFound("version.InstallChannel", fmt.Sprintf("no release matching channel %q", channel))
	}

	if _, err := m.Install(ctx, chosen.Version); err != nil {
		return "", err
	}
	return chosen.Version, nil
}

// ListInstalled enumerates <Home>/versions subdirectories.
func (m *Manager) ListInstalled() ([]InstalledVersion, error) {
	def, _ := m.GetDefault()

	entries, err := os.ReadDir(m.home.VersionsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mherr.System("version.ListInstalled", "reading versions directory", err)
	}

	var out []InstalledVersion
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, InstalledVersion{
			Version:   e.Name(),
			Path:      m.home.VersionDir(e.Name()),
			IsDefault: e.Name() == def,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// SetDefault records ver as the default installed version.
func (m *Manager) SetDefault(ver string) error {
	if _, err := os.Stat(m.home.VersionDir(ver)); err != nil {
		if os.IsNotExist(err) {
			return mherr.NotFound("version.SetDefault", fmt.Sprintf("version %s not installed", ver))
		}
		return mherr.System("version.SetDefault", "checking version directory", err)
	}
	if err := os.MkdirAll(m.home.Root, 0o755); err != nil {
		return mherr.System("version.SetDefault", "creating home", err)
	}
	if err := os.WriteFile(m.home.DefaultFile(), []byte(ver), 0o644); err != nil {
		return mherr.System("version.SetDefault", "writing default marker", err)
	}
	return nil
}

// GetDefault returns the current default version, or "" if unset.
func (m *Manager) GetDefault() (string, error) {
	data, err := os.ReadFile(m.home.DefaultFile())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", mherr.System("version.GetDefault", "reading default marker", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// GetBinaryPath resolves the binary path for ver, or for the default
// version when ver == "".
func (m *Manager) GetBinaryPath(ver string) (string, error) {
	if ver == "" {
		def, err := m.GetDefault()
		if err != nil {
			return "", err
		}
		if def == "" {
			return "", mherr.NotFound("version.GetBinaryPath", "no default version set")
		}
		ver = def
	}
	return filepath.Join(m.home.VersionDir(ver), binaryName()), nil
}

// Uninstall removes a version's directory. Refuses if it is the default
// (spec.md §4.6).
func (m *Manager) Uninstall(ver string) error {
	def, err := m.GetDefault()
	if err != nil {
		return err
	}
	if ver == def {
		return mherr.InvalidParameter("version.Uninstall", fmt.Sprintf("%s is the default version; clear the default first", ver))
	}
	if err := os.RemoveAll(m.home.VersionDir(ver)); err != nil {
		return mherr.System("version.Uninstall", "removing version directory", err)
	}
	return nil
}
