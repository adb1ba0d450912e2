package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
)

func newTestSupervisor(t *testing.T, controllerURL string) (*Supervisor, *home.Home) {
	t.Helper()
	dir := t.TempDir()
	h := home.WithRoot(dir)
	if err := h.Ensure(); err != nil {
		t.Fatal(err)
	}
	addr := strings.TrimPrefix(controllerURL, "http://")
	cfg := Config{ExternalController: addr}
	return New(h, cfg), h
}

func TestIsRunningFalseWithNoPIDAndUnreachableAPI(t *testing.T) {
	s, _ := newTestSupervisor(t, "http://127.0.0.1:1")
	if s.IsRunning(context.Background()) {
		t.Fatal("expected not running when there is no PID file and the API is unreachable")
	}
}

func TestIsRunningTrueWhenAPIReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"v1","meta":true}`))
	}))
	defer srv.Close()

	s, _ := newTestSupervisor(t, srv.URL)
	if !s.IsRunning(context.Background()) {
		t.Fatal("expected running when the API is reachable even without a PID file")
	}
}

func TestIsRunningClearsStalePIDFile(t *testing.T) {
	s, h := newTestSupervisor(t, "http://127.0.0.1:1")
	if err := os.WriteFile(h.PidFile(), []byte("999999999"), 0o644); err != nil {
		t.Fatal(err)
	}
	if s.IsRunning(context.Background()) {
		t.Fatal("expected not running for a PID that does not exist")
	}
	if _, err := os.Stat(h.PidFile()); !os.IsNotExist(err) {
		t.Fatal("expected stale PID file to be removed")
	}
}

func TestIsRunningTrueForOwnProcess(t *testing.T) {
	s, h := newTestSupervisor(t, "http://127.0.0.1:1")
	if err := os.WriteFile(h.PidFile(), []byte(itoaTest(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if !s.IsRunning(context.Background()) {
		t.Fatal("expected running: PID file points at our own live process")
	}
}

func TestStartRefusesWhenAlreadyRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"v1","meta":true}`))
	}))
	defer srv.Close()

	s, _ := newTestSupervisor(t, srv.URL)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error starting an already-running service")
	}
}

func TestCleanupBackupsKeepsMostRecentN(t *testing.T) {
	s, h := newTestSupervisor(t, "http://127.0.0.1:1")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(h.BackupsDir(), "b"+itoaTest(i)), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CleanupBackups(2); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(h.BackupsDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 backups to remain, got %d", len(entries))
	}
}

func TestCleanupBackupsNoopWhenUnderLimit(t *testing.T) {
	s, h := newTestSupervisor(t, "http://127.0.0.1:1")
	if err := os.WriteFile(filepath.Join(h.BackupsDir(), "b0"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.CleanupBackups(5); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(h.BackupsDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the single backup to remain untouched, got %d", len(entries))
	}
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
