// Package rules implements spec.md §4.8: a cached view of the engine's
// routing table plus a client-side re-implementation of its
// first-match-wins matching semantics, so callers can answer "where
// would this target route?" without round-tripping through the engine.
// Grounded directly on _examples/original_source/src/rules.rs's
// RuleEngine, with divergences #5/#7 (SPEC_FULL.md §9) resolved toward
// spec.md.
package rules

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mihomo"
)

// Engine caches the engine's rule list and matches targets against it
// client-side (spec.md §4.8).
type Engine struct {
	client *mihomo.Client

	mu         sync.Mutex
	rules      []mihomo.Rule
	cacheValid bool
}

// New builds an Engine over an existing mihomo Client.
func New(client *mihomo.Client) *Engine {
	return &Engine{client: client}
}

// Refresh forces a reload of the rule cache from GET /rules.
func (e *Engine) Refresh(ctx context.Context) error {
	list, err := e.client.Rules(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rules = list
	e.cacheValid = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) ensureCache(ctx context.Context) error {
	e.mu.Lock()
	valid := e.cacheValid
	e.mu.Unlock()
	if valid {
		return nil
	}
	return e.Refresh(ctx)
}

// Rules returns the cached rule list, refreshing first if invalid.
func (e *Engine) Rules(ctx context.Context) ([]mihomo.Rule, error) {
	if err := e.ensureCache(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]mihomo.Rule, len(e.rules))
	copy(out, e.rules)
	return out, nil
}

// Target describes the routable attributes of a connection attempt;
// fields left zero/empty are simply never matched by rule kinds that
// need them.
type Target struct {
	Host string
	Port int
}

// MatchRule walks the cached rule list in order and returns the first
// rule that matches t, alongside its target proxy (spec.md §4.8
// "matchRule": first-match-wins).
func (e *Engine) MatchRule(ctx context.Context, t Target) (mihomo.Rule, string, bool, error) {
	list, err := e.Rules(ctx)
	if err != nil {
		return mihomo.Rule{}, "", false, err
	}
	for _, rule := range list {
		if matchOne(rule, t) {
			return rule, rule.Target, true, nil
		}
	}
	return mihomo.Rule{}, "", false, nil
}

// matchOne evaluates a single rule per spec.md §4.8's per-kind table.
// Kinds requiring information this package is never given (source
// IP/port, process identity, GeoIP databases, script/rule-set
// evaluation) always report no-match, matching
// original_source/src/rules.rs's own "not yet supported" arms.
func matchOne(rule mihomo.Rule, t Target) bool {
	switch rule.Kind {
	case mihomo.RuleDomain:
		return matchDomain(rule.Payload, t.Host)
	case mihomo.RuleDomainSuffix:
		return matchDomainSuffix(rule.Payload, t.Host)
	case mihomo.RuleDomainKeyword:
		return matchDomainKeyword(rule.Payload, t.Host)
	case mihomo.RuleIPCidr:
		return matchIPCidr(rule.Payload, t.Host)
	case mihomo.RuleDstPort:
		return matchPortSpec(rule.Payload, t.Port)
	case mihomo.RuleMatch:
		return true
	case mihomo.RuleGeoip, mihomo.RuleSrcIPCidr, mihomo.RuleSrcPort,
		mihomo.RuleProcessName, mihomo.RuleProcessPath, mihomo.RuleScript, mihomo.RuleRuleSet:
		return false
	default:
		return false
	}
}

func matchDomain(payload, host string) bool {
	return host != "" && strings.EqualFold(payload, host)
}

// matchDomainSuffix implements spec.md §8's boundary example directly:
// "www.google.com" matches suffix "google.com", and so does an exact
// match on the suffix itself; there is no leading-dot requirement
// (SPEC_FULL.md §9 divergence #5).
func matchDomainSuffix(suffix, host string) bool {
	if host == "" {
		return false
	}
	h := strings.ToLower(host)
	s := strings.ToLower(suffix)
	if !strings.HasSuffix(h, s) {
		return false
	}
	return len(h) == len(s) || h[len(h)-len(s)-1] == '.'
}

func matchDomainKeyword(keyword, host string) bool {
	if host == "" {
		return false
	}
	return strings.Contains(strings.ToLower(host), strings.ToLower(keyword))
}

func matchIPCidr(cidr, host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	ok, _ := ipInCIDR(ip, cidr)
	return ok
}

// ipInCIDR implements spec.md §4.8's v4/v6 CIDR masking. IPv6 is masked
// as a whole 128-bit integer, split across two uint64 halves, per
// spec.md's own phrasing and matching original_source/src/utils.rs's
// ip_in_cidr (SPEC_FULL.md §9 divergence #7) rather than
// rules.rs's byte-wise loop.
func ipInCIDR(ip net.IP, cidr string) (bool, error) {
	addrPart, prefixPart, ok := strings.Cut(cidr, "/")
	if !ok {
		return false, mherr.InvalidParameter("rules.ipInCIDR", fmt.Sprintf("invalid CIDR %q", cidr))
	}
	prefixLen, err := strconv.Atoi(prefixPart)
	if err != nil {
		return false, mherr.InvalidParameter("rules.ipInCIDR", fmt.Sprintf("invalid prefix length %q", prefixPart))
	}
	netIP := net.ParseIP(addrPart)
	if netIP == nil {
		return false, mherr.InvalidParameter("rules.ipInCIDR", fmt.Sprintf("invalid network address %q", addrPart))
	}

	if ip4 := ip.To4(); ip4 != nil {
		net4 := netIP.To4()
		if net4 == nil {
			return false, nil
		}
		if prefixLen < 0 || prefixLen > 32 {
			return false, mherr.InvalidParameter("rules.ipInCIDR", "IPv4 prefix length cannot exceed 32")
		}
		mask := uint32(0)
		if prefixLen > 0 {
			mask = ^uint32(0) << uint(32-prefixLen)
		}
		a := uint32FromIP(ip4)
		b := uint32FromIP(net4)
		return a&mask == b&mask, nil
	}

	ip16 := ip.To16()
	net16 := netIP.To16()
	if ip16 == nil || net16 == nil || netIP.To4() != nil {
		return false, nil
	}
	if prefixLen < 0 || prefixLen > 128 {
		return false, mherr.InvalidParameter("rules.ipInCIDR", "IPv6 prefix length cannot exceed 128")
	}
	aHi, aLo := uint128FromIP(ip16)
	bHi, bLo := uint128FromIP(net16)
	maskHi, maskLo := prefixMask128(prefixLen)
	return aHi&maskHi == bHi&maskHi && aLo&maskLo == bLo&maskLo, nil
}

func uint32FromIP(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uint128FromIP(ip net.IP) (hi, lo uint64) {
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(ip[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(ip[i])
	}
	return hi, lo
}

// prefixMask128 builds a 128-bit all-ones-then-all-zeros mask split into
// two uint64 halves, for prefixLen in [0, 128].
func prefixMask128(prefixLen int) (hi, lo uint64) {
	switch {
	case prefixLen <= 0:
		return 0, 0
	case prefixLen >= 128:
		return ^uint64(0), ^uint64(0)
	case prefixLen <= 64:
		if prefixLen == 64 {
			return ^uint64(0), 0
		}
		return ^uint64(0) << uint(64-prefixLen), 0
	default:
		rem := prefixLen - 64
		return ^uint64(0), ^uint64(0) << uint(64-rem)
	}
}

// matchPortSpec implements spec.md §4.8's DST-PORT grammar: a single
// port, a "start-end" range, or a comma-separated list.
func matchPortSpec(spec string, port int) bool {
	if port <= 0 {
		return false
	}
	if strings.Contains(spec, "-") {
		start, end, ok := strings.Cut(spec, "-")
		if !ok {
			return false
		}
		s, err1 := strconv.Atoi(start)
		e, err2 := strconv.Atoi(end)
		if err1 != nil || err2 != nil {
			return false
		}
		return port >= s && port <= e
	}
	if strings.Contains(spec, ",") {
		for _, p := range strings.Split(spec, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err == nil && v == port {
				return true
			}
		}
		return false
	}
	v, err := strconv.Atoi(spec)
	return err == nil && v == port
}

// ParsedRule is the result of ValidateRule: a well-formed "TYPE,PAYLOAD,
// TARGET[,OPTIONS...]" row (spec.md §4.8 "validateRule").
type ParsedRule struct {
	Kind    mihomo.RuleKind
	Payload string
	Target  string
	Options string
}

// ValidateRule parses and validates a raw rule line in the engine's
// "TYPE,PAYLOAD,TARGET" textual form.
func ValidateRule(line string) (ParsedRule, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return ParsedRule{}, mherr.InvalidParameter("rules.ValidateRule", "rule must have at least 3 parts: TYPE,PAYLOAD,TARGET")
	}

	kind, err := parseKind(parts[0])
	if err != nil {
		return ParsedRule{}, err
	}

	payload := parts[1]
	target := parts[2]
	options := ""
	if len(parts) > 3 {
		options = strings.Join(parts[3:], ",")
	}

	if err := validatePayload(kind, payload); err != nil {
		return ParsedRule{}, err
	}

	return ParsedRule{Kind: kind, Payload: payload, Target: target, Options: options}, nil
}

func parseKind(raw string) (mihomo.RuleKind, error) {
	switch strings.ToUpper(raw) {
	case string(mihomo.RuleDomain):
		return mihomo.RuleDomain, nil
	case string(mihomo.RuleDomainSuffix):
		return mihomo.RuleDomainSuffix, nil
	case string(mihomo.RuleDomainKeyword):
		return mihomo.RuleDomainKeyword, nil
	case string(mihomo.RuleGeoip):
		return mihomo.RuleGeoip, nil
	case string(mihomo.RuleIPCidr):
		return mihomo.RuleIPCidr, nil
	case string(mihomo.RuleSrcIPCidr):
		return mihomo.RuleSrcIPCidr, nil
	case string(mihomo.RuleSrcPort):
		return mihomo.RuleSrcPort, nil
	case string(mihomo.RuleDstPort):
		return mihomo.RuleDstPort, nil
	case string(mihomo.RuleProcessName):
		return mihomo.RuleProcessName, nil
	case string(mihomo.RuleProcessPath):
		return mihomo.RuleProcessPath, nil
	case string(mihomo.RuleScript):
		return mihomo.RuleScript, nil
	case string(mihomo.RuleRuleSet):
		return mihomo.RuleRuleSet, nil
	case string(mihomo.RuleMatch):
		return mihomo.RuleMatch, nil
	default:
		return "", mherr.InvalidParameter("rules.parseKind", fmt.Sprintf("unknown rule type %q", raw))
	}
}

func validatePayload(kind mihomo.RuleKind, payload string) error {
	switch kind {
	case mihomo.RuleIPCidr, mihomo.RuleSrcIPCidr:
		addrPart, prefixPart, ok := strings.Cut(payload, "/")
		if !ok {
			return mherr.InvalidParameter("rules.validatePayload", "CIDR must be in format IP/PREFIX")
		}
		ip := net.ParseIP(addrPart)
		if ip == nil {
			return mherr.InvalidParameter("rules.validatePayload", "invalid IP address in CIDR")
		}
		prefix, err := strconv.Atoi(prefixPart)
		if err != nil {
			return mherr.InvalidParameter("rules.validatePayload", "invalid prefix length")
		}
		if ip.To4() != nil && prefix > 32 {
			return mherr.InvalidParameter("rules.validatePayload", "IPv4 prefix cannot exceed 32")
		}
		if ip.To4() == nil && prefix > 128 {
			return mherr.InvalidParameter("rules.validatePayload", "IPv6 prefix cannot exceed 128")
		}
	case mihomo.RuleDstPort, mihomo.RuleSrcPort:
		switch {
		case strings.Contains(payload, "-"):
			start, end, ok := strings.Cut(payload, "-")
			if !ok {
				return mherr.InvalidParameter("rules.validatePayload", "port range must be in format START-END")
			}
			s, err1 := strconv.Atoi(start)
			e, err2 := strconv.Atoi(end)
			if err1 != nil || err2 != nil {
				return mherr.InvalidParameter("rules.validatePayload", "invalid port in range")
			}
			if s > e {
				return mherr.InvalidParameter("rules.validatePayload", "start port cannot exceed end port")
			}
		case strings.Contains(payload, ","):
			for _, p := range strings.Split(payload, ",") {
				if _, err := strconv.Atoi(strings.TrimSpace(p)); err != nil {
					return mherr.InvalidParameter("rules.validatePayload", fmt.Sprintf("invalid port %q", p))
				}
			}
		default:
			if _, err := strconv.Atoi(payload); err != nil {
				return mherr.InvalidParameter("rules.validatePayload", "invalid port number")
			}
		}
	}
	return nil
}

// Stats summarizes the cached rule list (spec.md §4.8 "getRuleStats").
type Stats struct {
	TotalRules  int
	TypeCounts  map[mihomo.RuleKind]int
	ProxyCounts map[string]int
}

// GetRuleStats tallies the cached rule list by kind and target proxy.
func (e *Engine) GetRuleStats(ctx context.Context) (Stats, error) {
	list, err := e.Rules(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		TotalRules:  len(list),
		TypeCounts:  map[mihomo.RuleKind]int{},
		ProxyCounts: map[string]int{},
	}
	for _, r := range list {
		stats.TypeCounts[r.Kind]++
		stats.ProxyCounts[r.Target]++
	}
	return stats, nil
}

// FindRulesByProxy returns every cached rule whose target proxy matches.
func (e *Engine) FindRulesByProxy(ctx context.Context, proxy string) ([]mihomo.Rule, error) {
	list, err := e.Rules(ctx)
	if err != nil {
		return nil, err
	}
	var out []mihomo.Rule
	for _, r := range list {
		if r.Target == proxy {
			out = append(out, r)
		}
	}
	return out, nil
}

// FindRulesByKind returns every cached rule of the given kind.
func (e *Engine) FindRulesByKind(ctx context.Context, kind mihomo.RuleKind) ([]mihomo.Rule, error) {
	list, err := e.Rules(ctx)
	if err != nil {
		return nil, err
	}
	var out []mihomo.Rule
	for _, r := range list {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}
