package mihomo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/transport"
)

func TestVersionRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"v1.18.0","meta":true}`))
	}))
	defer srv.Close()

	c := New(transport.New(srv.URL))
	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != "v1.18.0" || v.Premium != false || v.Meta != true {
		t.Fatalf("got %+v", v)
	}
}

func TestSwitchProxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && r.URL.Path == "/proxies":
			w.Write([]byte(`{"proxies":{
				"GLOBAL":{"name":"GLOBAL","type":"Selector","now":"A","all":["A","B"]},
				"A":{"name":"A","type":"Direct"},
				"B":{"name":"B","type":"Direct"}
			}}`))
		case r.Method == "PUT" && r.URL.Path == "/proxies/GLOBAL":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["name"] != "B" {
				t.Fatalf("unexpected switch body %+v", body)
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(transport.New(srv.URL))
	groups, err := c.ProxyGroups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if groups["GLOBAL"].Now != "A" {
		t.Fatalf("unexpected group snapshot %+v", groups["GLOBAL"])
	}
	if err := c.SwitchProxy(context.Background(), "GLOBAL", "B"); err != nil {
		t.Fatal(err)
	}
}

func TestPartitionDiscriminator(t *testing.T) {
	resp := ProxiesResponse{Proxies: map[string]json.RawMessage{
		"GLOBAL": json.RawMessage(`{"name":"GLOBAL","type":"Selector","now":"A","all":["A"]}`),
		"A":      json.RawMessage(`{"name":"A","type":"Direct"}`),
	}}
	nodes, groups, err := Partition(resp)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := nodes["A"]; !ok {
		t.Fatal("expected A classified as a node")
	}
	if _, ok := groups["GLOBAL"]; !ok {
		t.Fatal("expected GLOBAL classified as a group")
	}
	if _, ok := nodes["GLOBAL"]; ok {
		t.Fatal("GLOBAL should not also appear as a node")
	}
}
