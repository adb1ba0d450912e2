package version

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
)

func newTestManager(t *testing.T) (*Manager, *home.Home) {
	t.Helper()
	dir := t.TempDir()
	h := home.WithRoot(dir)
	if err := h.Ensure(); err != nil {
		t.Fatal(err)
	}
	return New(h), h
}

func TestListInstalledEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	list, err := m.ListInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no installed versions, got %+v", list)
	}
}

func TestSetDefaultGetDefaultRoundTrip(t *testing.T) {
	m, h := newTestManager(t)
	if err := os.MkdirAll(h.VersionDir("v1.18.0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDefault("v1.18.0"); err != nil {
		t.Fatal(err)
	}
	def, err := m.GetDefault()
	if err != nil {
		t.Fatal(err)
	}
	if def != "v1.18.0" {
		t.Fatalf("got %q", def)
	}
}

func TestSetDefaultFailsForUninstalledVersion(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.SetDefault("vX"); err == nil {
		t.Fatal("expected error for uninstalled version")
	}
}

func TestUninstallRefusesDefault(t *testing.T) {
	m, h := newTestManager(t)
	if err := os.MkdirAll(h.VersionDir("v1.0.0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDefault("v1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := m.Uninstall("v1.0.0"); err == nil {
		t.Fatal("expected error uninstalling the default version")
	}
}

func TestUninstallRemovesVersionDir(t *testing.T) {
	m, h := newTestManager(t)
	if err := os.MkdirAll(h.VersionDir("v2.0.0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.Uninstall("v2.0.0"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(h.VersionDir("v2.0.0")); !os.IsNotExist(err) {
		t.Fatal("expected version directory to be removed")
	}
}

func TestListInstalledMarksDefault(t *testing.T) {
	m, h := newTestManager(t)
	for _, v := range []string{"v1.0.0", "v1.1.0"} {
		if err := os.MkdirAll(h.VersionDir(v), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SetDefault("v1.1.0"); err != nil {
		t.Fatal(err)
	}
	list, err := m.ListInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %+v", list)
	}
	for _, iv := range list {
		if iv.Version == "v1.1.0" && !iv.IsDefault {
			t.Fatal("expected v1.1.0 to be marked default")
		}
		if iv.Version == "v1.0.0" && iv.IsDefault {
			t.Fatal("did not expect v1.0.0 to be marked default")
		}
	}
}

func TestAssetNameLinuxArmv7(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("this divergence only applies to the linux asset table")
	}
	p := platformAsset{"linux", "armv7", ".gz"}
	name := assetName(p, "v1.18.0")
	if name != "mihomo-linux-armv7-v1.18.0.gz" {
		t.Fatalf("got %q", name)
	}
}

func TestFetchReleasesParsesGitHubShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"tag_name":     "v1.18.0",
				"name":         "v1.18.0",
				"prerelease":   false,
				"published_at": "2024-01-01T00:00:00Z",
				"assets": []map[string]any{
					{"name": "mihomo-linux-amd64-v1.18.0.gz", "browser_download_url": "http://example.com/a.gz"},
				},
			},
		})
	}))
	defer srv.Close()

	m, _ := newTestManager(t)
	m.client = srv.Client()

	releases, err := m.fetchFrom(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 || releases[0].Version != "v1.18.0" {
		t.Fatalf("got %+v", releases)
	}
	if releases[0].DownloadURLs["mihomo-linux-amd64-v1.18.0.gz"] != "http://example.com/a.gz" {
		t.Fatalf("got %+v", releases[0].DownloadURLs)
	}
}

func TestDecompressGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.gz")
	dst := filepath.Join(dir, "out")

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("fake binary contents"))
	gw.Close()
	if err := os.WriteFile(src, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := decompressGzip(src, dst); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake binary contents" {
		t.Fatalf("got %q", data)
	}
}

func TestDecompressZipExtractsSingleEntry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.zip")
	dst := filepath.Join(dir, "out.exe")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("mihomo.exe")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("fake windows binary"))
	zw.Close()
	if err := os.WriteFile(src, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := decompressZip(src, dst); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake windows binary" {
		t.Fatalf("got %q", data)
	}
}

func TestDecompressZipRejectsMultiEntry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.zip")
	dst := filepath.Join(dir, "out")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f1, _ := zw.Create("a")
	f1.Write([]byte("a"))
	f2, _ := zw.Create("b")
	f2.Write([]byte("b"))
	zw.Close()
	if err := os.WriteFile(src, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := decompressZip(src, dst); err == nil {
		t.Fatal("expected error for a multi-entry zip")
	}
}

func TestGetBinaryPathUsesDefaultWhenVersionEmpty(t *testing.T) {
	m, h := newTestManager(t)
	if err := os.MkdirAll(h.VersionDir("v3.0.0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDefault("v3.0.0"); err != nil {
		t.Fatal(err)
	}
	path, err := m.GetBinaryPath("")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(h.VersionDir("v3.0.0"), binaryName())
	if path != want {
		t.Fatalf("got %q want %q", path, want)
	}
}

func TestGetBinaryPathFailsWithNoDefault(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.GetBinaryPath(""); err == nil {
		t.Fatal("expected error when no default is set")
	}
}
