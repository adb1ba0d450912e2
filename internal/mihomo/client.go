package mihomo

import (
	"context"
	"net/url"
	"strconv"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/transport"
)

// Client is the typed façade over Transport described in spec.md §4.4.
// Clients are cheaply clonable; clones share the underlying Transport's
// pool and retry policy.
type Client struct {
	t *transport.Transport
}

// New wraps an existing Transport.
func New(t *transport.Transport) *Client {
	return &Client{t: t}
}

// Clone returns a Client sharing the underlying Transport.
func (c *Client) Clone() *Client {
	return &Client{t: c.t.Clone()}
}

func (c *Client) Version(ctx context.Context) (Version, error) {
	var v Version
	err := c.t.Get(ctx, "/version", nil, &v)
	return v, err
}

// proxiesRaw performs the single /proxies call both Proxies and
// ProxyGroups partition (spec.md §4.4: "both derived from a single
// /proxies call by partitioning ProxyItems via the discriminator").
func (c *Client) proxiesRaw(ctx context.Context) (map[string]ProxyNode, map[string]ProxyGroup, error) {
	var resp ProxiesResponse
	if err := c.t.Get(ctx, "/proxies", nil, &resp); err != nil {
		return nil, nil, err
	}
	return Partition(resp)
}

// Proxies returns every terminal ProxyNode from the current /proxies
// snapshot.
func (c *Client) Proxies(ctx context.Context) (map[string]ProxyNode, error) {
	nodes, _, err := c.proxiesRaw(ctx)
	return nodes, err
}

// ProxyGroups returns every ProxyGroup from the current /proxies
// snapshot.
func (c *Client) ProxyGroups(ctx context.Context) (map[string]ProxyGroup, error) {
	_, groups, err := c.proxiesRaw(ctx)
	return groups, err
}

// SwitchProxy issues PUT /proxies/<group> {"name": node}.
func (c *Client) SwitchProxy(ctx context.Context, group, node string) error {
	return c.t.Put(ctx, "/proxies/"+url.PathEscape(group), map[string]string{"name": node}, nil)
}

// TestProxyDelay issues GET /proxies/<name>/delay?url=&timeout=.
func (c *Client) TestProxyDelay(ctx context.Context, name, testURL string, timeoutMs int) (int, error) {
	q := url.Values{}
	if testURL != "" {
		q.Set("url", testURL)
	}
	if timeoutMs > 0 {
		q.Set("timeout", strconv.Itoa(timeoutMs))
	}
	var out struct {
		Delay int `json:"delay"`
	}
	if err := c.t.Get(ctx, "/proxies/"+url.PathEscape(name)+"/delay", q, &out); err != nil {
		return 0, err
	}
	return out.Delay, nil
}

// Rules returns the full cached rule list from the engine.
func (c *Client) Rules(ctx context.Context) ([]Rule, error) {
	var out struct {
		Rules []Rule `json:"rules"`
	}
	if err := c.t.Get(ctx, "/rules", nil, &out); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

// Connections returns the connections list plus aggregate traffic stats.
func (c *Client) Connections(ctx context.Context) (ConnectionsResponse, error) {
	var out ConnectionsResponse
	err := c.t.Get(ctx, "/connections", nil, &out)
	return out, err
}

// CloseConnection closes a single connection by id, or every connection
// when id == "". A 404 on an already-closed id is treated as success
// (spec.md §9 open question).
func (c *Client) CloseConnection(ctx context.Context, id string) error {
	path := "/connections"
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	err := c.t.Delete(ctx, path, nil)
	if err == nil {
		return nil
	}
	if e, ok := asMherr(err); ok && e.Kind == mherr.KindNotFound {
		return nil
	}
	return err
}

func asMherr(err error) (*mherr.Error, bool) {
	e, ok := err.(*mherr.Error)
	return e, ok
}

// TrafficStream opens a lazy sequence of Traffic samples from /traffic.
func (c *Client) TrafficStream(ctx context.Context) (*transport.Sequence, error) {
	return c.t.StreamLines(ctx, "/traffic")
}

// MemoryStream opens a lazy sequence of Memory samples from /memory.
func (c *Client) MemoryStream(ctx context.Context) (*transport.Sequence, error) {
	return c.t.StreamLines(ctx, "/memory")
}

// LogStream opens a lazy sequence of LogLine entries from /logs, using a
// WebSocket upgrade when useWS is true, else chunked NDJSON (spec.md
// §6.1: "over WS when the transport can upgrade, newline-delimited JSON
// otherwise").
func (c *Client) LogStream(ctx context.Context, level string, useWS bool) (*transport.Sequence, error) {
	path := "/logs"
	if level != "" {
		path += "?level=" + url.QueryEscape(level)
	}
	if useWS {
		return c.t.StreamWS(ctx, path)
	}
	return c.t.StreamLines(ctx, path)
}

// GetConfig fetches the engine's current runtime configuration.
func (c *Client) GetConfig(ctx context.Context) (RuntimeInfo, error) {
	var out RuntimeInfo
	err := c.t.Get(ctx, "/configs", nil, &out)
	return out, err
}

// UpdateConfig PUTs a full engine configuration body.
func (c *Client) UpdateConfig(ctx context.Context, body interface{}) error {
	return c.t.Put(ctx, "/configs", body, nil)
}

// ReloadConfig issues PUT /configs/reload.
func (c *Client) ReloadConfig(ctx context.Context) error {
	return c.t.Put(ctx, "/configs/reload", nil, nil)
}

// SetLogLevel updates the engine's log level via PUT /configs.
func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	return c.t.Put(ctx, "/configs", map[string]string{"log-level": level}, nil)
}

// ProxyProviders returns the engine's configured proxy providers.
func (c *Client) ProxyProviders(ctx context.Context) (RuntimeInfo, error) {
	var out RuntimeInfo
	err := c.t.Get(ctx, "/providers/proxies", nil, &out)
	return out, err
}

// UpdateProxyProvider triggers a refresh of a named proxy provider.
func (c *Client) UpdateProxyProvider(ctx context.Context, name string) error {
	return c.t.Put(ctx, "/providers/proxies/"+url.PathEscape(name), nil, nil)
}

// HealthCheckProxyProvider triggers a healthcheck for a named proxy
// provider.
func (c *Client) HealthCheckProxyProvider(ctx context.Context, name string) error {
	return c.t.Get(ctx, "/providers/proxies/"+url.PathEscape(name)+"/healthcheck", nil, nil)
}

// RuleProviders returns the engine's configured rule providers.
func (c *Client) RuleProviders(ctx context.Context) (RuntimeInfo, error) {
	var out RuntimeInfo
	err := c.t.Get(ctx, "/providers/rules", nil, &out)
	return out, err
}

// UpdateRuleProvider triggers a refresh of a named rule provider.
func (c *Client) UpdateRuleProvider(ctx context.Context, name string) error {
	return c.t.Put(ctx, "/providers/rules/"+url.PathEscape(name), nil, nil)
}

// HealthCheckRuleProvider triggers a healthcheck for a named rule
// provider (spec.md §6.4 `rules provider health-check`).
func (c *Client) HealthCheckRuleProvider(ctx context.Context, name string) error {
	return c.t.Get(ctx, "/providers/rules/"+url.PathEscape(name)+"/healthcheck", nil, nil)
}

// DNSQuery resolves host via the engine's DNS resolver.
func (c *Client) DNSQuery(ctx context.Context, host string) ([]DNSQuery, error) {
	q := url.Values{"name": {host}}
	var out []DNSQuery
	err := c.t.Get(ctx, "/dns/query", q, &out)
	return out, err
}

// FlushDNSCache issues DELETE /dns/cache.
func (c *Client) FlushDNSCache(ctx context.Context) error {
	return c.t.Delete(ctx, "/dns/cache", nil)
}

// Restart issues POST /restart.
func (c *Client) Restart(ctx context.Context) error {
	return c.t.Post(ctx, "/restart", nil, nil)
}

// Shutdown issues POST /shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.t.Post(ctx, "/shutdown", nil, nil)
}

// GC issues POST /gc.
func (c *Client) GC(ctx context.Context) error {
	return c.t.Post(ctx, "/gc", nil, nil)
}
