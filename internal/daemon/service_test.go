package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	klog "github.com/cruxpool/flux-insight-api/internal/log"
	"github.com/cruxpool/flux-insight-api/internal/rpcclient"
)

type fakeNode struct {
	mu       sync.Mutex
	height   int64
	hash     string
	progress float64
	fail     bool
}

func (f *fakeNode) set(height int64, hash string) {
	f.mu.Lock()
	f.height, f.hash = height, hash
	f.mu.Unlock()
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": req.ID, "result": nil,
			"error": map[string]interface{}{"code": -28, "message": "Loading block index..."},
		})
		return
	}

	var result interface{}
	switch req.Method {
	case "getblockcount":
		result = f.height
	case "getbestblockhash":
		result = f.hash
	case "getblockchaininfo":
		result = map[string]interface{}{"verificationprogress": f.progress}
	default:
		result = nil
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"id": req.ID, "result": result, "error": nil})
}

func setupService(t *testing.T, poll time.Duration) (*Service, *fakeNode) {
	t.Helper()
	klog.Init("error", false, "")
	node := &fakeNode{height: 100, hash: "00a1", progress: 1}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return New(rpcclient.New(srv.URL, "", ""), poll), node
}

func TestService_Refresh(t *testing.T) {
	svc, node := setupService(t, time.Hour)

	if tip := svc.Tip(); tip.Height != 0 || tip.Hash != "" {
		t.Fatalf("tip before poll = %+v, want zero", tip)
	}
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	tip := svc.Tip()
	if tip.Height != 100 || tip.Hash != "00a1" {
		t.Errorf("tip = %+v", tip)
	}
	if tip.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}

	node.set(101, "00b2")
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tip := svc.Tip(); tip.Height != 101 || tip.Hash != "00b2" {
		t.Errorf("tip after new block = %+v", tip)
	}
}

func TestService_RefreshErrorKeepsTip(t *testing.T) {
	svc, node := setupService(t, time.Hour)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	node.mu.Lock()
	node.fail = true
	node.mu.Unlock()

	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected error from failing node")
	}
	if tip := svc.Tip(); tip.Height != 100 {
		t.Errorf("tip height = %d, want previous 100", tip.Height)
	}
}

func TestService_Run(t *testing.T) {
	svc, node := setupService(t, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	node.set(250, "00ff")
	deadline := time.Now().Add(2 * time.Second)
	for svc.Tip().Height != 250 {
		if time.Now().After(deadline) {
			t.Fatalf("tip never reached 250, got %d", svc.Tip().Height)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestService_Sync(t *testing.T) {
	tests := []struct {
		progress float64
		pct      float64
		synced   bool
	}{
		{1, 100, true},
		{0.999996, 99.9996, true},
		{0.994, 99.4, false},
		{0.5, 50, false},
		{0, 0, false},
	}

	for _, tt := range tests {
		svc, node := setupService(t, time.Hour)
		node.mu.Lock()
		node.progress = tt.progress
		node.mu.Unlock()

		pct, err := svc.SyncPercentage(context.Background())
		if err != nil {
			t.Fatalf("sync percentage: %v", err)
		}
		if diff := pct - tt.pct; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("progress %v: pct = %v, want %v", tt.progress, pct, tt.pct)
		}
		synced, err := svc.IsSynced(context.Background())
		if err != nil {
			t.Fatalf("is synced: %v", err)
		}
		if synced != tt.synced {
			t.Errorf("progress %v: synced = %v, want %v", tt.progress, synced, tt.synced)
		}
	}
}

func TestService_BlockCountIsLive(t *testing.T) {
	svc, node := setupService(t, time.Hour)
	node.set(500, "00cc")

	n, err := svc.BlockCount(context.Background())
	if err != nil {
		t.Fatalf("block count: %v", err)
	}
	if n != 500 {
		t.Errorf("block count = %d, want 500", n)
	}
	if svc.Tip().Height != 0 {
		t.Error("BlockCount should not update the cached tip")
	}
}
