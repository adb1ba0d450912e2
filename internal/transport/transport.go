// Package transport implements spec.md §4.3: a request/response HTTP
// layer over either TCP or a Unix domain socket, plus two streaming
// modes (chunked newline-delimited JSON and WebSocket framing) unified
// behind the Sequence lazy-sequence abstraction.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/retry"
)

// Transport is the client runtime's entry point: it builds requests
// against a base URL (TCP http(s):// or a Unix-socket path / unix://
// path), attaches bearer auth, and delegates to the retry executor.
// Transport values are cheaply clonable: Clone() shares the underlying
// connection pool and retry policy (spec.md §4.4 "clients are cheaply
// clonable").
type Transport struct {
	baseURL  string
	secret   string
	client   *http.Client
	executor *retry.Executor
	isUnix   bool
	unixPath string
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithSecret attaches "Authorization: Bearer <secret>" to every request
// (spec.md §4.3/§6.1).
func WithSecret(secret string) Option {
	return func(t *Transport) { t.secret = secret }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(t *Transport) { t.executor = retry.New(p) }
}

// WithTimeout sets the per-request timeout used by the underlying HTTP
// client (not the streaming reads, which are unbounded until EOF or
// cancellation).
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.client.Timeout = d }
}

// New builds a Transport. base is either "http://host:port",
// "https://host:port", an absolute filesystem path to a Unix socket, or
// "unix://<path>" (spec.md §4.3).
func New(base string, opts ...Option) *Transport {
	t := &Transport{
		baseURL:  base,
		client:   &http.Client{Timeout: 30 * time.Second},
		executor: retry.New(retry.DefaultPolicy()),
	}

	if strings.HasPrefix(base, "unix://") {
		t.isUnix = true
		t.unixPath = strings.TrimPrefix(base, "unix://")
	} else if strings.HasPrefix(base, "/") {
		t.isUnix = true
		t.unixPath = base
	}

	if t.isUnix {
		dialer := &net.Dialer{}
		transport := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", t.unixPath)
			},
		}
		t.client.Transport = transport
		// Requests over the Unix socket are framed as ordinary HTTP/1.1
		// exchanges against a synthetic host, matching the convention
		// net/http uses for custom dialers.
		t.baseURL = "http://unix"
	}

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Clone returns a Transport sharing this one's connection pool, base
// URL, secret, and retry policy — an independent handle, not a new
// instance with private caches (spec.md §4.4/§9).
func (t *Transport) Clone() *Transport {
	clone := *t
	return &clone
}

func (t *Transport) buildURL(path string, query url.Values) (string, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return "", err
	}
	u.Path = joinPath(u.Path, path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return base + p
}

func (t *Transport) do(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	return retry.Execute(ctx, t.executor, func(ctx context.Context) (*http.Response, error) {
		target, err := t.buildURL(path, query)
		if err != nil {
			return nil, mherr.InvalidParameter("transport.do", fmt.Sprintf("invalid path %q: %v", path, err))
		}

		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, mherr.DataProcessing("transport.do", "encoding request body", err)
			}
			reader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, mherr.InvalidParameter("transport.do", fmt.Sprintf("building request: %v", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if t.secret != "" {
			req.Header.Set("Authorization", "Bearer "+t.secret)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, mherr.Timeout("transport.do", "request canceled or timed out", err)
			}
			return nil, mherr.Network("transport.do", fmt.Sprintf("%s %s failed", method, path), err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, mherr.FromStatus("transport.do", resp.StatusCode, string(data))
	})
}

// decode reads and JSON-decodes a response body, or returns nil if out
// is nil (2xx-empty responses).
func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return mherr.Network("transport.decode", "reading response body", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return mherr.DataProcessing("transport.decode", "decoding JSON response", err)
	}
	return nil
}

// Get issues GET path?query and decodes the JSON response into out
// (nil to discard the body).
func (t *Transport) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := t.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// Put issues PUT path with a JSON body.
func (t *Transport) Put(ctx context.Context, path string, body interface{}, out interface{}) error {
	resp, err := t.do(ctx, http.MethodPut, path, nil, body)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// Post issues POST path with an optional JSON body.
func (t *Transport) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	resp, err := t.do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// Delete issues DELETE path.
func (t *Transport) Delete(ctx context.Context, path string, out interface{}) error {
	resp, err := t.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// BaseURL returns the base URL requests are built against: the http(s)
// URL for TCP, or the synthetic "http://unix" for a Unix socket.
func (t *Transport) BaseURL() string { return t.baseURL }

// IsUnix reports whether this Transport talks over a Unix domain socket.
func (t *Transport) IsUnix() bool { return t.isUnix }
