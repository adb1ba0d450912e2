package rules

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mihomo"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/transport"
)

func newTestEngine(t *testing.T, body string) (*Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	c := mihomo.New(transport.New(srv.URL))
	return New(c), srv
}

const sampleRules = `{"rules":[
	{"type":"DOMAIN","payload":"example.com","proxy":"Proxy1"},
	{"type":"DOMAIN-SUFFIX","payload":"google.com","proxy":"Proxy2"},
	{"type":"DOMAIN-KEYWORD","payload":"ads","proxy":"REJECT"},
	{"type":"IP-CIDR","payload":"192.168.1.0/24","proxy":"DIRECT"},
	{"type":"DST-PORT","payload":"80-90","proxy":"Proxy3"},
	{"type":"MATCH","payload":"","proxy":"Proxy4"}
]}`

func TestMatchRuleFirstMatchWins(t *testing.T) {
	e, srv := newTestEngine(t, sampleRules)
	defer srv.Close()

	rule, target, ok, err := e.MatchRule(context.Background(), Target{Host: "www.google.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || target != "Proxy2" || rule.Kind != mihomo.RuleDomainSuffix {
		t.Fatalf("got rule=%+v target=%s ok=%v", rule, target, ok)
	}
}

func TestMatchRuleFallsThroughToMatch(t *testing.T) {
	e, srv := newTestEngine(t, sampleRules)
	defer srv.Close()

	_, target, ok, err := e.MatchRule(context.Background(), Target{Host: "unrelated.example.org"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || target != "Proxy4" {
		t.Fatalf("expected catch-all MATCH rule, got target=%s ok=%v", target, ok)
	}
}

func TestMatchRuleExactDomain(t *testing.T) {
	e, srv := newTestEngine(t, sampleRules)
	defer srv.Close()

	_, target, ok, err := e.MatchRule(context.Background(), Target{Host: "example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || target != "Proxy1" {
		t.Fatalf("got target=%s ok=%v", target, ok)
	}
}

func TestMatchDomainSuffixBoundary(t *testing.T) {
	// spec.md §8's explicit boundary example: "www.google.com" matches
	// the suffix "google.com", and a domain with the suffix embedded
	// mid-string ("google.com.cn") must not.
	if !matchDomainSuffix("google.com", "www.google.com") {
		t.Fatal("expected www.google.com to match suffix google.com")
	}
	if !matchDomainSuffix("google.com", "google.com") {
		t.Fatal("expected exact match to count as a suffix match")
	}
	if matchDomainSuffix("google.com", "google.com.cn") {
		t.Fatal("did not expect google.com.cn to match suffix google.com")
	}
	if matchDomainSuffix("google.com", "evilgoogle.com") {
		t.Fatal("did not expect evilgoogle.com to match suffix google.com (no dot boundary)")
	}
}

func TestMatchIPCidrV4(t *testing.T) {
	e, srv := newTestEngine(t, sampleRules)
	defer srv.Close()

	_, target, ok, err := e.MatchRule(context.Background(), Target{Host: "192.168.1.100"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || target != "DIRECT" {
		t.Fatalf("got target=%s ok=%v", target, ok)
	}

	_, target2, ok2, err := e.MatchRule(context.Background(), Target{Host: "192.168.2.100"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok2 || target2 != "Proxy4" {
		t.Fatalf("expected 192.168.2.100 to miss the CIDR rule and fall through to MATCH, got target=%s ok=%v", target2, ok2)
	}
}

func TestMatchIPCidrV6WholeIntegerMasking(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	ok, err := ipInCIDR(ip, "2001:db8::/32")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected 2001:db8::1 to match 2001:db8::/32")
	}

	ok2, err := ipInCIDR(ip, "2001:db9::/32")
	if err != nil {
		t.Fatal(err)
	}
	if ok2 {
		t.Fatal("did not expect 2001:db8::1 to match 2001:db9::/32")
	}
}

func TestMatchDstPortRange(t *testing.T) {
	if !matchPortSpec("80-90", 85) {
		t.Fatal("expected 85 to match range 80-90")
	}
	if matchPortSpec("80-90", 100) {
		t.Fatal("did not expect 100 to match range 80-90")
	}
}

func TestMatchDstPortList(t *testing.T) {
	if !matchPortSpec("80,443,8080", 443) {
		t.Fatal("expected 443 to match list")
	}
	if matchPortSpec("80,443,8080", 22) {
		t.Fatal("did not expect 22 to match list")
	}
}

func TestMatchDstPortSingle(t *testing.T) {
	if !matchPortSpec("443", 443) {
		t.Fatal("expected exact port match")
	}
}

func TestUnsupportedKindsAlwaysNoMatch(t *testing.T) {
	for _, kind := range []mihomo.RuleKind{
		mihomo.RuleGeoip, mihomo.RuleSrcIPCidr, mihomo.RuleSrcPort,
		mihomo.RuleProcessName, mihomo.RuleProcessPath, mihomo.RuleScript, mihomo.RuleRuleSet,
	} {
		rule := mihomo.Rule{Kind: kind, Payload: "anything", Target: "X"}
		if matchOne(rule, Target{Host: "anything", Port: 1}) {
			t.Fatalf("expected kind %s to never match (unsupported)", kind)
		}
	}
}

func TestValidateRuleHappyPath(t *testing.T) {
	parsed, err := ValidateRule("DOMAIN-SUFFIX,google.com,Proxy")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Kind != mihomo.RuleDomainSuffix || parsed.Payload != "google.com" || parsed.Target != "Proxy" {
		t.Fatalf("got %+v", parsed)
	}
}

func TestValidateRuleRejectsUnknownType(t *testing.T) {
	if _, err := ValidateRule("INVALID-TYPE,google.com,Proxy"); err == nil {
		t.Fatal("expected error for unknown rule type")
	}
}

func TestValidateRuleRejectsTooFewParts(t *testing.T) {
	if _, err := ValidateRule("DOMAIN,google.com"); err == nil {
		t.Fatal("expected error for too few parts")
	}
}

func TestValidateRuleRejectsBadCIDR(t *testing.T) {
	if _, err := ValidateRule("IP-CIDR,not-a-cidr,Proxy"); err == nil {
		t.Fatal("expected error for malformed CIDR payload")
	}
}

func TestValidateRuleRejectsOversizedIPv4Prefix(t *testing.T) {
	if _, err := ValidateRule("IP-CIDR,192.168.1.0/33,Proxy"); err == nil {
		t.Fatal("expected error for IPv4 prefix > 32")
	}
}

func TestGetRuleStatsTalliesByKindAndProxy(t *testing.T) {
	e, srv := newTestEngine(t, sampleRules)
	defer srv.Close()

	stats, err := e.GetRuleStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRules != 6 {
		t.Fatalf("got %d", stats.TotalRules)
	}
	if stats.TypeCounts[mihomo.RuleDomain] != 1 || stats.ProxyCounts["Proxy1"] != 1 {
		t.Fatalf("got %+v", stats)
	}
}

func TestFindRulesByProxy(t *testing.T) {
	e, srv := newTestEngine(t, sampleRules)
	defer srv.Close()

	found, err := e.FindRulesByProxy(context.Background(), "REJECT")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Kind != mihomo.RuleDomainKeyword {
		t.Fatalf("got %+v", found)
	}
}

func TestGlobDiagnosticMatchAll(t *testing.T) {
	d, err := CompileGlobDiagnostic("*.google.com")
	if err != nil {
		t.Fatal(err)
	}
	matches := d.MatchAll([]string{"www.google.com", "mail.google.com", "example.com"})
	if len(matches) != 2 {
		t.Fatalf("got %+v", matches)
	}
}

func TestGlobDiagnosticRejectsBadPattern(t *testing.T) {
	if _, err := CompileGlobDiagnostic("["); err == nil {
		t.Fatal("expected error for malformed glob")
	}
}
