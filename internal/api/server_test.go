package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cruxpool/flux-insight-api/internal/cache"
	"github.com/cruxpool/flux-insight-api/internal/daemon"
	klog "github.com/cruxpool/flux-insight-api/internal/log"
	"github.com/cruxpool/flux-insight-api/internal/rpcclient"
	"github.com/cruxpool/flux-insight-api/internal/status"
	"github.com/cruxpool/flux-insight-api/internal/supply"
)

// fakeFluxd is a minimal bitcoind-style JSON-RPC endpoint.
type fakeFluxd struct {
	mu      sync.Mutex
	results map[string]interface{}
	errs    map[string][2]interface{} // method → {code, message}
	down    bool
}

func (f *fakeFluxd) set(method string, result interface{}) {
	f.mu.Lock()
	f.results[method] = result
	f.mu.Unlock()
}

func (f *fakeFluxd) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		// Not a JSON-RPC body: the client reports an HTTP failure.
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	if e, ok := f.errs[req.Method]; ok {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": req.ID, "result": nil,
			"error": map[string]interface{}{"code": e[0], "message": e[1]},
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id": req.ID, "result": f.results[req.Method], "error": nil,
	})
}

type testEnv struct {
	server *Server
	node   *fakeFluxd
	svc    *daemon.Service
	url    string
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithConfig(t, Config{})
}

func setupTestEnvWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	node := &fakeFluxd{
		results: map[string]interface{}{
			"getblockcount":    883001,
			"getbestblockhash": "0000000abc",
			"getinfo": map[string]interface{}{
				"version": 6020050, "protocolversion": 170020, "blocks": 883001,
				"connections": 8, "difficulty": 4321.5,
			},
			"getmininginfo":     map[string]interface{}{"difficulty": 4321.5, "networkhashps": 1000},
			"getpeerinfo":       []interface{}{},
			"getblockchaininfo": map[string]interface{}{"verificationprogress": 1},
			"viewdeterministiczelnodelist": []interface{}{
				map[string]interface{}{"tier": "NIMBUS"},
			},
		},
		errs: make(map[string][2]interface{}),
	}
	nodeSrv := httptest.NewServer(node)
	t.Cleanup(nodeSrv.Close)

	calc, err := supply.NewCalculator(supply.MainnetSchedule())
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	svc := daemon.New(rpcclient.New(nodeSrv.URL, "", ""), time.Hour)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh tip: %v", err)
	}
	ctrl := status.New(status.Config{
		Node:       svc,
		Supply:     cache.New(nil, svc, calc, time.Minute),
		Calculator: calc,
		Version:    "0.9.0",
	})

	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, ctrl)
	if err := srv.Start(); err != nil {
		t.Fatalf("start api: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server: srv,
		node:   node,
		svc:    svc,
		url:    fmt.Sprintf("http://%s", srv.Addr()),
	}
}

func get(t *testing.T, url string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestAPI_Routes(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		path string
		want string
	}{
		{"/api/status?q=getBestBlockHash", `{"bestblockhash":"0000000abc"}`},
		{"/api/status?q=getLastBlockHash", `{"syncTipHash":"0000000abc","lastblockhash":"0000000abc"}`},
		{"/api/status?q=getDifficulty", `{"difficulty":4321.5}`},
		{"/api/status?q=getFluxNodes", `{"fluxNodes":[{"tier":"NIMBUS"}]}`},
		{"/api/sync", `{"status":"finished","blockChainHeight":883001,"syncPercentage":100,"height":883001,"error":null,"type":"bitcore node"}`},
		{"/api/peer", `{"connected":true,"host":"127.0.0.1","port":null}`},
		{"/api/version", `{"version":"0.9.0"}`},
		{"/api/circulation", `{"circulationsupply":179455205.34974455,"circsupplyint":179455205,"circsupplydig":"179455205.34974455"}`},
		{"/healthz", `{"status":"ok"}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, env.url+tt.path)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("content-type = %q", ct)
			}
			if body != tt.want {
				t.Errorf("got  %s\nwant %s", body, tt.want)
			}
		})
	}
}

func TestAPI_StatusDefaultIsInfo(t *testing.T) {
	env := setupTestEnv(t)

	_, body := get(t, env.url+"/api/status")
	var got struct {
		Info struct {
			Blocks  int64   `json:"blocks"`
			Network string  `json:"network"`
			Reward  float64 `json:"reward"`
		} `json:"info"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if got.Info.Blocks != 883001 || got.Info.Network != "livenet" || got.Info.Reward != 75 {
		t.Errorf("info = %+v", got.Info)
	}
}

func TestAPI_JSONP(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := get(t, env.url+"/api/peer?callback=cb.fn")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/javascript") {
		t.Errorf("content-type = %q", ct)
	}
	want := `/**/ typeof cb.fn === 'function' && cb.fn({"connected":true,"host":"127.0.0.1","port":null});`
	if body != want {
		t.Errorf("got  %s\nwant %s", body, want)
	}

	// Invalid callback names fall back to plain JSON.
	resp, body = get(t, env.url+"/api/peer?callback=alert(1)")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content-type = %q", ct)
	}
	if body != `{"connected":true,"host":"127.0.0.1","port":null}` {
		t.Errorf("body = %s", body)
	}
}

func TestAPI_CirculationHeaders(t *testing.T) {
	env := setupTestEnvWithConfig(t, Config{MaxAge: 30 * time.Second})

	resp, _ := get(t, env.url+"/api/circulation")
	etag := resp.Header.Get("ETag")
	if etag != cache.ETag(883001, "179455205.34974455") {
		t.Errorf("etag = %q", etag)
	}
	if h := resp.Header.Get("X-Block-Height"); h != "883001" {
		t.Errorf("X-Block-Height = %q", h)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=30" {
		t.Errorf("Cache-Control = %q", cc)
	}

	resp, body := get(t, env.url+"/api/circulation", "If-None-Match", etag)
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d, want 304", resp.StatusCode)
	}
	if body != "" {
		t.Errorf("304 body = %q", body)
	}

	resp, _ = get(t, env.url+"/api/circulation", "If-None-Match", `"stale"`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAPI_RPCErrorIs400(t *testing.T) {
	env := setupTestEnv(t)
	env.node.mu.Lock()
	env.node.errs["getinfo"] = [2]interface{}{-28, "Loading block index..."}
	env.node.mu.Unlock()

	resp, body := get(t, env.url+"/api/status?q=getInfo")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content-type = %q", ct)
	}
	if body != "Loading block index.... Code:-28" {
		t.Errorf("body = %q", body)
	}
}

func TestAPI_NodeDownIs503(t *testing.T) {
	env := setupTestEnv(t)
	env.node.mu.Lock()
	env.node.down = true
	env.node.mu.Unlock()

	for _, path := range []string{"/api/status?q=getBestBlockHash", "/api/sync", "/api/circulation"} {
		resp, body := get(t, env.url+path)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503 (body %q)", path, resp.StatusCode, body)
		}
		if strings.Contains(body, "circulationsupply") {
			t.Errorf("%s: partial body %q", path, body)
		}
	}

	// Cached tip needs no node.
	resp, _ := get(t, env.url+"/api/status?q=getLastBlockHash")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("getLastBlockHash status = %d, want 200", resp.StatusCode)
	}
}

func TestAPI_CustomPrefix(t *testing.T) {
	env := setupTestEnvWithConfig(t, Config{Prefix: "/insight-api/"})

	resp, _ := get(t, env.url+"/insight-api/version")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("prefixed route status = %d", resp.StatusCode)
	}
	resp, _ = get(t, env.url+"/api/version")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("default prefix should not be served, got %d", resp.StatusCode)
	}
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url+"/api/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); !strings.Contains(allow, "GET") {
		t.Errorf("Allow = %q", allow)
	}
}

func TestAPI_Metrics(t *testing.T) {
	env := setupTestEnvWithConfig(t, Config{Metrics: true})
	get(t, env.url+"/api/circulation")

	resp, body := get(t, env.url+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	for _, name := range []string{
		"fluxinsight_http_requests_total",
		"fluxinsight_rpc_call_duration_seconds",
		"fluxinsight_supply_circulating_coins",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestAPI_MetricsDisabled(t *testing.T) {
	env := setupTestEnv(t)
	resp, _ := get(t, env.url+"/metrics")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("metrics status = %d, want 404", resp.StatusCode)
	}
}

// --- IP Filtering ---

func TestAPI_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnvWithConfig(t, Config{AllowedIPs: []string{"127.0.0.1"}})

	resp, _ := get(t, env.url+"/api/version")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected success for 127.0.0.1, got %d", resp.StatusCode)
	}
}

func TestAPI_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnvWithConfig(t, Config{AllowedIPs: []string{"10.0.0.0/8"}})

	resp, _ := get(t, env.url+"/api/version")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAPI_IPFilter_InvalidEntriesDenyAll(t *testing.T) {
	env := setupTestEnvWithConfig(t, Config{AllowedIPs: []string{"10.0.0.300"}})

	resp, _ := get(t, env.url+"/api/peer")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 with an unparseable allow-list, got %d", resp.StatusCode)
	}
}

func TestParseAllowedIPs(t *testing.T) {
	nets := parseAllowedIPs([]string{"127.0.0.1", "10.0.0.0/8", "::1", "garbage"})
	if len(nets) != 3 {
		t.Fatalf("got %d nets, want 3", len(nets))
	}
	if ones, _ := nets[0].Mask.Size(); ones != 32 {
		t.Errorf("single v4 mask = /%d", ones)
	}
	if ones, _ := nets[2].Mask.Size(); ones != 128 {
		t.Errorf("single v6 mask = /%d", ones)
	}
}

// --- CORS ---

func TestAPI_CORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "http://example.com", "*"},
		{"match", []string{"http://explorer.runonflux.io"}, "http://explorer.runonflux.io", "http://explorer.runonflux.io"},
		{"mismatch", []string{"http://explorer.runonflux.io"}, "http://evil.com", ""},
		{"disabled", nil, "http://example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvWithConfig(t, Config{CORSOrigins: tt.origins})
			resp, _ := get(t, env.url+"/api/version", "Origin", tt.origin)
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("CORS origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPI_CORS_Preflight(t *testing.T) {
	env := setupTestEnvWithConfig(t, Config{CORSOrigins: []string{"*"}})

	req, _ := http.NewRequest(http.MethodOptions, env.url+"/api/circulation", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight should have Allow-Methods header")
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		etag   string
		want   bool
	}{
		{`"abc"`, `"abc"`, true},
		{`W/"abc"`, `"abc"`, true},
		{`"x", "abc"`, `"abc"`, true},
		{`*`, `"abc"`, true},
		{`"x"`, `"abc"`, false},
		{``, `"abc"`, false},
		{`"abc"`, ``, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, tt.etag); got != tt.want {
			t.Errorf("etagMatches(%q, %q) = %v, want %v", tt.header, tt.etag, got, tt.want)
		}
	}
}
