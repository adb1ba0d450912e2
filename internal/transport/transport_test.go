package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"v1.18.0","meta":true}`))
	}))
	defer srv.Close()

	tr := New(srv.URL)
	var out struct {
		Version string `json:"version"`
		Meta    bool   `json:"meta"`
	}
	if err := tr.Get(context.Background(), "/version", nil, &out); err != nil {
		t.Fatal(err)
	}
	if out.Version != "v1.18.0" || !out.Meta {
		t.Fatalf("got %+v", out)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(srv.URL, WithSecret("topsecret"))
	if err := tr.Get(context.Background(), "/version", nil, nil); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer topsecret" {
		t.Fatalf("got auth header %q", gotAuth)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		substr string
	}{
		{401, "Auth"},
		{404, "NotFound"},
		{500, "ServiceUnavailable"},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		tr := New(srv.URL)
		err := tr.Get(context.Background(), "/x", nil, nil)
		if err == nil || !strings.Contains(err.Error(), c.substr) {
			t.Fatalf("status %d: got err %v, want substring %q", c.status, err, c.substr)
		}
		srv.Close()
	}
}

func TestPutBody(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(srv.URL)
	if err := tr.Put(context.Background(), "/proxies/GLOBAL", map[string]string{"name": "B"}, nil); err != nil {
		t.Fatal(err)
	}
	if gotBody["name"] != "B" {
		t.Fatalf("got body %+v", gotBody)
	}
}

func TestStreamLinesDeliversAndToleratesBadFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte(`{"up":1,"down":2}` + "\n"))
		flusher.Flush()
		w.Write([]byte("not json\n"))
		flusher.Flush()
		w.Write([]byte(`{"up":3,"down":4}` + "\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	tr := New(srv.URL)
	seq, err := tr.StreamLines(context.Background(), "/traffic")
	if err != nil {
		t.Fatal(err)
	}
	defer seq.Close()

	var gotGood, gotBad int
	for {
		item, ok := seq.Pull()
		if !ok {
			break
		}
		if item.Err != nil {
			gotBad++
			continue
		}
		gotGood++
	}
	if gotGood != 2 || gotBad != 1 {
		t.Fatalf("got good=%d bad=%d, want good=2 bad=1", gotGood, gotBad)
	}
}

func TestClonesShareConfiguration(t *testing.T) {
	tr := New("http://127.0.0.1:9090", WithSecret("s"))
	clone := tr.Clone()
	if clone.secret != tr.secret || clone.baseURL != tr.baseURL {
		t.Fatal("clone diverged from original")
	}
}
