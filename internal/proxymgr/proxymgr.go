// Package proxymgr implements spec.md §4.7: a caching façade over the
// mihomo client's proxy endpoints, plus the selection algorithms
// (fastest/region) spec.md layers on top of raw delay probes. Grounded
// on _examples/original_source/src/proxy.rs's ProxyManager (cache TTL,
// ensure/forceRefresh, fan-out delay testing).
package proxymgr

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mihomo"
)

// DefaultCacheTTL is the default staleness window for the cached
// proxies/groups snapshot (spec.md §4.7).
const DefaultCacheTTL = 30 * time.Second

// DelayResult pairs a proxy name with its probe outcome.
type DelayResult struct {
	Name  string
	Delay int
	Err   error
}

// Stats summarizes one proxy's recent health, used by getProxyStats.
type Stats struct {
	Name        string
	Alive       bool
	Delay       *int
	HistoryLen  int
	MeanDelay   float64
}

// Manager caches the engine's /proxies snapshot and layers selection
// strategies on top (spec.md §4.7).
type Manager struct {
	client   *mihomo.Client
	cacheTTL time.Duration

	mu         sync.Mutex
	nodes      map[string]mihomo.ProxyNode
	groups     map[string]mihomo.ProxyGroup
	lastFetch  time.Time
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.cacheTTL = ttl }
}

// New builds a Manager over an existing mihomo Client.
func New(client *mihomo.Client, opts ...Option) *Manager {
	m := &Manager{client: client, cacheTTL: DefaultCacheTTL}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ensureCache refreshes the cached snapshot if it is missing or older
// than cacheTTL (spec.md §4.7 "ensureCache").
func (m *Manager) ensureCache(ctx context.Context) error {
	m.mu.Lock()
	stale := m.lastFetch.IsZero() || time.Since(m.lastFetch) > m.cacheTTL
	m.mu.Unlock()
	if !stale {
		return nil
	}
	return m.ForceRefresh(ctx)
}

// ForceRefresh unconditionally refetches /proxies, bypassing the TTL
// (spec.md §4.7 "forceRefresh").
func (m *Manager) ForceRefresh(ctx context.Context) error {
	nodes, err := m.client.Proxies(ctx)
	if err != nil {
		return err
	}
	groups, err := m.client.ProxyGroups(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.nodes = nodes
	m.groups = groups
	m.lastFetch = time.Now()
	m.mu.Unlock()
	return nil
}

// Nodes returns the cached proxy nodes, refreshing first if stale.
func (m *Manager) Nodes(ctx context.Context) (map[string]mihomo.ProxyNode, error) {
	if err := m.ensureCache(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]mihomo.ProxyNode, len(m.nodes))
	for k, v := range m.nodes {
		out[k] = v
	}
	return out, nil
}

// Groups returns the cached proxy groups, refreshing first if stale.
func (m *Manager) Groups(ctx context.Context) (map[string]mihomo.ProxyGroup, error) {
	if err := m.ensureCache(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]mihomo.ProxyGroup, len(m.groups))
	for k, v := range m.groups {
		out[k] = v
	}
	return out, nil
}

// SwitchProxy validates that group exists and that node is a member of
// its "all" list (the group's kind is not checked), before issuing the
// HTTP switch (spec.md §4.7 "switchProxy
// validates group+node membership before the HTTP call").
func (m *Manager) SwitchProxy(ctx context.Context, group, node string) error {
	groups, err := m.Groups(ctx)
	if err != nil {
		return err
	}
	g, ok := groups[group]
	if !ok {
		return mherr.NotFound("proxymgr.SwitchProxy", fmt.Sprintf("group %q not found", group))
	}
	found := false
	for _, member := range g.All {
		if member == node {
			found = true
			break
		}
	}
	if !found {
		return mherr.InvalidParameter("proxymgr.SwitchProxy", fmt.Sprintf("%q is not a member of group %q", node, group))
	}
	if err := m.client.SwitchProxy(ctx, group, node); err != nil {
		return err
	}
	m.mu.Lock()
	if cached, ok := m.groups[group]; ok {
		cached.Now = node
		m.groups[group] = cached
	}
	m.mu.Unlock()
	return nil
}

// TestProxyDelay probes a single proxy's delay via the engine.
func (m *Manager) TestProxyDelay(ctx context.Context, name, testURL string, timeoutMs int) (int, error) {
	return m.client.TestProxyDelay(ctx, name, testURL, timeoutMs)
}

// TestMultipleProxyDelays fans out delay probes across names concurrently,
// with no bound on concurrency (spec.md §4.7 "unbounded fan-out").
func (m *Manager) TestMultipleProxyDelays(ctx context.Context, names []string, testURL string, timeoutMs int) []DelayResult {
	results := make([]DelayResult, len(names))
	var wg sync.WaitGroup
	wg.Add(len(names))
	for i, name := range names {
		go func(i int, name string) {
			defer wg.Done()
			delay, err := m.client.TestProxyDelay(ctx, name, testURL, timeoutMs)
			results[i] = DelayResult{Name: name, Delay: delay, Err: err}
		}(i, name)
	}
	wg.Wait()
	return results
}

// AutoSelectFastestProxy probes every member of group and switches to
// whichever responds with the lowest delay. Ties are broken
// lexicographically by name (SPEC_FULL.md §9 divergence #1: the original
// implementation left tie-break order unspecified/map-iteration-order
// dependent; this makes it deterministic).
func (m *Manager) AutoSelectFastestProxy(ctx context.Context, group, testURL string, timeoutMs int) (string, error) {
	groups, err := m.Groups(ctx)
	if err != nil {
		return "", err
	}
	g, ok := groups[group]
	if !ok {
		return "", mherr.NotFound("proxymgr.AutoSelectFastestProxy", fmt.Sprintf("group %q not found", group))
	}
	if len(g.All) == 0 {
		return "", mherr.InvalidParameter("proxymgr.AutoSelectFastestProxy", fmt.Sprintf("group %q has no members", group))
	}

	results := m.TestMultipleProxyDelays(ctx, g.All, testURL, timeoutMs)

	type candidate struct {
		name  string
		delay int
	}
	var candidates []candidate
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		candidates = append(candidates, candidate{r.Name, r.Delay})
	}
	if len(candidates) == 0 {
		return "", mherr.ServiceUnavailable("proxymgr.AutoSelectFastestProxy", fmt.Sprintf("no reachable proxy in group %q", group), nil)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].delay != candidates[j].delay {
			return candidates[i].delay < candidates[j].delay
		}
		return candidates[i].name < candidates[j].name
	})

	best := candidates[0].name
	if err := m.SwitchProxy(ctx, group, best); err != nil {
		return "", err
	}
	return best, nil
}

// SelectByDelay returns the member of group with the lowest cached delay,
// without probing the engine or switching (spec.md §4.7 "selectByDelay"
// operates purely on cached history).
func (m *Manager) SelectByDelay(ctx context.Context, group string) (string, error) {
	groups, err := m.Groups(ctx)
	if err != nil {
		return "", err
	}
	g, ok := groups[group]
	if !ok {
		return "", mherr.NotFound("proxymgr.SelectByDelay", fmt.Sprintf("group %q not found", group))
	}
	nodes, err := m.Nodes(ctx)
	if err != nil {
		return "", err
	}

	best := ""
	bestDelay := -1
	for _, name := range g.All {
		n, ok := nodes[name]
		if !ok || n.Delay == nil || !n.Alive {
			continue
		}
		d := *n.Delay
		if bestDelay < 0 || d < bestDelay || (d == bestDelay && name < best) {
			best = name
			bestDelay = d
		}
	}
	if best == "" {
		return "", mherr.NotFound("proxymgr.SelectByDelay", fmt.Sprintf("no alive member with a recorded delay in group %q", group))
	}
	return best, nil
}

// SelectByRegion returns members of group whose name contains region as
// a case-insensitive substring (spec.md §4.7 "selectByRegion" — region
// tagging in mihomo proxy names is conventionally embedded in the name,
// e.g. "HK-01", "US-West"), sorted lexicographically for determinism.
func (m *Manager) SelectByRegion(ctx context.Context, group, region string) ([]string, error) {
	groups, err := m.Groups(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := groups[group]
	if !ok {
		return nil, mherr.NotFound("proxymgr.SelectByRegion", fmt.Sprintf("group %q not found", group))
	}
	var matches []string
	for _, name := range g.All {
		if containsFold(name, region) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func containsFold(haystack, needle string) bool {
	hl, nl := []rune(haystack), []rune(needle)
	if len(nl) == 0 {
		return true
	}
	for i := 0; i+len(nl) <= len(hl); i++ {
		match := true
		for j := range nl {
			if toLower(hl[i+j]) != toLower(nl[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// GetProxyStats summarizes a single proxy's cached delay history
// (spec.md §4.7 "getProxyStats").
func (m *Manager) GetProxyStats(ctx context.Context, name string) (Stats, error) {
	nodes, err := m.Nodes(ctx)
	if err != nil {
		return Stats{}, err
	}
	n, ok := nodes[name]
	if !ok {
		return Stats{}, mherr.NotFound("proxymgr.GetProxyStats", fmt.Sprintf("proxy %q not found", name))
	}
	stats := Stats{Name: name, Alive: n.Alive, Delay: n.Delay, HistoryLen: len(n.History)}
	if len(n.History) > 0 {
		sum := 0
		for _, h := range n.History {
			sum += h.Delay
		}
		stats.MeanDelay = float64(sum) / float64(len(n.History))
	}
	return stats, nil
}
