// Package mihomo holds the data model described in spec.md §3 and the
// typed Client façade described in spec.md §4.4, grounded on the field
// names and operation surface of _examples/original_source/src/types.rs
// and _examples/original_source/src/client.rs.
package mihomo

import "encoding/json"

// Version is immutable, returned as-is by the engine.
type Version struct {
	Version string `json:"version"`
	Premium bool   `json:"premium"`
	Meta    bool   `json:"meta"`
}

// ProxyKind enumerates the terminal proxy protocols and the catch-alls
// Direct/Reject/Compatible.
type ProxyKind string

const (
	ProxyDirect     ProxyKind = "Direct"
	ProxyReject     ProxyKind = "Reject"
	ProxyHTTP       ProxyKind = "Http"
	ProxyHTTPS      ProxyKind = "Https"
	ProxySocks5     ProxyKind = "Socks5"
	ProxySS         ProxyKind = "Ss"
	ProxySSR        ProxyKind = "Ssr"
	ProxyVmess      ProxyKind = "Vmess"
	ProxyVless      ProxyKind = "Vless"
	ProxyTrojan     ProxyKind = "Trojan"
	ProxyHysteria   ProxyKind = "Hysteria"
	ProxyWireguard  ProxyKind = "Wireguard"
	ProxyCompatible ProxyKind = "Compatible"
)

// GroupKind enumerates the proxy-group selection strategies.
type GroupKind string

const (
	GroupSelector    GroupKind = "Selector"
	GroupURLTest     GroupKind = "UrlTest"
	GroupFallback    GroupKind = "Fallback"
	GroupLoadBalance GroupKind = "LoadBalance"
	GroupRelay       GroupKind = "Relay"
)

// DelayHistory is a single recorded delay-probe result.
type DelayHistory struct {
	Time  int64 `json:"time"`
	Delay int   `json:"delay"`
}

// ProxyNode is a terminal proxy endpoint (spec.md §3).
type ProxyNode struct {
	Name    string                 `json:"name"`
	Kind    ProxyKind              `json:"type"`
	Server  string                 `json:"server,omitempty"`
	Port    int                    `json:"port,omitempty"`
	UDP     bool                   `json:"udp"`
	Delay   *int                   `json:"delay,omitempty"`
	Alive   bool                   `json:"alive"`
	History []DelayHistory         `json:"history"`
	Extra   map[string]interface{} `json:"-"`
}

// ProxyGroup is a selection over nodes (spec.md §3). Invariant:
// Now == "" || contains(All, Now); All entries resolve to a ProxyNode or
// another ProxyGroup in the same snapshot (groups may nest).
type ProxyGroup struct {
	Name    string          `json:"name"`
	Kind    GroupKind       `json:"type"`
	Now     string          `json:"now"`
	All     []string        `json:"all"`
	History []DelayHistory  `json:"history"`
	TestURL string          `json:"testUrl,omitempty"`
}

// rawProxyItem is the wire shape of a single entry in /proxies' map,
// before the Node-vs-Group discriminator (spec.md §9 "Polymorphic
// ProxyItem") is resolved.
type rawProxyItem struct {
	Name    string                 `json:"name"`
	Kind    string                 `json:"type"`
	Server  string                 `json:"server,omitempty"`
	Port    int                    `json:"port,omitempty"`
	UDP     bool                   `json:"udp"`
	Delay   *int                   `json:"delay,omitempty"`
	Alive   bool                   `json:"alive"`
	History []DelayHistory         `json:"history"`
	Now     string                 `json:"now,omitempty"`
	All     []string               `json:"all,omitempty"`
	TestURL string                 `json:"testUrl,omitempty"`
	Extra   map[string]interface{} `json:"-"`
}

// ProxiesResponse is the raw /proxies payload: a map of name to a union
// type disambiguated by the emptiness of "all" (spec.md §3 ProxyItem,
// §9: reimplemented as an explicit tagged variant rather than a struct
// with optional fields and downcasts).
type ProxiesResponse struct {
	Proxies map[string]json.RawMessage `json:"proxies"`
}

// Partition splits a raw /proxies payload into Nodes and Groups using
// the emptiness-of-"all" discriminator (spec.md §3/§8: for every
// ProxyItem, isNode XOR isGroup).
func Partition(resp ProxiesResponse) (nodes map[string]ProxyNode, groups map[string]ProxyGroup, err error) {
	nodes = make(map[string]ProxyNode)
	groups = make(map[string]ProxyGroup)
	for name, raw := range resp.Proxies {
		var item rawProxyItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, nil, err
		}
		if item.Name == "" {
			item.Name = name
		}
		if len(item.All) > 0 {
			groups[name] = ProxyGroup{
				Name:    item.Name,
				Kind:    GroupKind(item.Kind),
				Now:     item.Now,
				All:     item.All,
				History: item.History,
				TestURL: item.TestURL,
			}
		} else {
			nodes[name] = ProxyNode{
				Name:    item.Name,
				Kind:    ProxyKind(item.Kind),
				Server:  item.Server,
				Port:    item.Port,
				UDP:     item.UDP,
				Delay:   item.Delay,
				Alive:   item.Alive,
				History: item.History,
			}
		}
	}
	return nodes, groups, nil
}

// RuleKind enumerates the rule-row discriminators understood by the
// rule engine (spec.md §3/§4.8).
type RuleKind string

const (
	RuleDomain        RuleKind = "DOMAIN"
	RuleDomainSuffix  RuleKind = "DOMAIN-SUFFIX"
	RuleDomainKeyword RuleKind = "DOMAIN-KEYWORD"
	RuleGeoip         RuleKind = "GEOIP"
	RuleIPCidr        RuleKind = "IP-CIDR"
	RuleSrcIPCidr     RuleKind = "SRC-IP-CIDR"
	RuleSrcPort       RuleKind = "SRC-PORT"
	RuleDstPort       RuleKind = "DST-PORT"
	RuleProcessName   RuleKind = "PROCESS-NAME"
	RuleProcessPath   RuleKind = "PROCESS-PATH"
	RuleScript        RuleKind = "SCRIPT"
	RuleRuleSet       RuleKind = "RULE-SET"
	RuleMatch         RuleKind = "MATCH"
)

// Rule is a single row of the engine's routing table.
type Rule struct {
	Kind    RuleKind `json:"type"`
	Payload string   `json:"payload"`
	Target  string   `json:"proxy"`
	Size    int      `json:"size,omitempty"`
}

// ConnectionMetadata describes a single tracked connection's endpoints.
type ConnectionMetadata struct {
	Network       string `json:"network"`
	Type          string `json:"type"`
	SourceIP      string `json:"sourceIP"`
	DestinationIP string `json:"destinationIP"`
	SourcePort    string `json:"sourcePort"`
	DestPort      string `json:"destinationPort"`
	Host          string `json:"host"`
	DNSMode       string `json:"dnsMode"`
	ProcessPath   string `json:"processPath"`
	SpecialProxy  string `json:"specialProxy"`
}

// Connection is a single active or recently-closed proxied connection.
type Connection struct {
	ID         string             `json:"id"`
	Metadata   ConnectionMetadata `json:"metadata"`
	Upload     int64              `json:"upload"`
	Download   int64              `json:"download"`
	Start      string             `json:"start"`
	Chains     []string           `json:"chains"`
	Rule       string             `json:"rule"`
	RulePayload string            `json:"rulePayload"`
}

// ConnectionsResponse is the /connections payload (spec.md §6.1).
type ConnectionsResponse struct {
	Connections  []Connection `json:"connections"`
	DownloadTotal int64       `json:"downloadTotal"`
	UploadTotal   int64       `json:"uploadTotal"`
	Memory        int64       `json:"memory"`
}

// Traffic is one line of the /traffic stream.
type Traffic struct {
	Up   uint64 `json:"up"`
	Down uint64 `json:"down"`
}

// Memory is one line of the /memory stream.
type Memory struct {
	InUse   uint64 `json:"inuse"`
	OSLimit uint64 `json:"oslimit"`
}

// LogLine is one entry of the /logs stream.
type LogLine struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Time    string `json:"time,omitempty"`
}

// DNSQuery is a single entry returned by GET /dns/query.
type DNSQuery struct {
	Host    string   `json:"host"`
	Answers []string `json:"answers"`
}

// RuntimeInfo reflects the engine's GET /configs response.
type RuntimeInfo map[string]interface{}
