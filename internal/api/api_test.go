// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/csmine/csmined/internal/mining"
)

const testAdminPass = "testpass"

// newTestAPI creates an API instance with stubbed engine callbacks and a
// shared notification channel.
func newTestAPI(t *testing.T) (*API, chan *mining.Block, *bool) {
	t.Helper()

	passHash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass),
		bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("unable to hash admin password: %v", err)
	}

	ntfnCh := make(chan *mining.Block, 4)
	paused := false
	cfg := &Config{
		Listen:        "127.0.0.1:0",
		AdminPassHash: passHash,
		Paused: func() (bool, error) {
			return paused, nil
		},
		SetPaused: func(p bool) error {
			paused = p
			return nil
		},
		LastBlockNumber: func() uint64 {
			return 42
		},
		NetworkStats: func() (float64, uint32, error) {
			return 550, 2, nil
		},
		FetchLatestBlocks: func(limit int) ([]*mining.Block, error) {
			blocks := []*mining.Block{
				mining.NewBlock(42, 100000, 550, 2),
				mining.NewBlock(41, 100000, 400, 2),
			}
			if limit < len(blocks) {
				blocks = blocks[:limit]
			}
			return blocks, nil
		},
		FetchMinerRewards: func(minerID string, limit int) ([]*mining.Reward, error) {
			if minerID != "miner-a" {
				return []*mining.Reward{}, nil
			}
			return []*mining.Reward{
				mining.NewReward(42, minerID, 100, 18.18, 18181.82),
			}, nil
		},
		ReconcileHashrates: func(ctx context.Context) (*mining.ReconcileStats, error) {
			return &mining.ReconcileStats{TotalUsers: 5, UsersUpdated: 2}, nil
		},
		BlockNotifications: func() <-chan *mining.Block {
			return ntfnCh
		},
	}

	return NewAPI(cfg), ntfnCh, &paused
}

// serve routes the provided request and returns the recorded response.
func serve(a *API, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, r)
	return rr
}

func TestStatus(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rr := serve(a, httptest.NewRequest("GET", "/v1/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var status statusData
	err := json.Unmarshal(rr.Body.Bytes(), &status)
	if err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if status.LastBlockNumber != 42 {
		t.Fatalf("expected last block 42, got %d", status.LastBlockNumber)
	}
	if status.NetworkHashrate != 550 {
		t.Fatalf("expected network hashrate 550, got %v", status.NetworkHashrate)
	}
	if status.Miners != 2 {
		t.Fatalf("expected 2 miners, got %d", status.Miners)
	}
	if status.Paused {
		t.Fatal("expected mining not paused")
	}
}

func TestLatestBlocks(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rr := serve(a, httptest.NewRequest("GET", "/v1/blocks", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var blocks []*mining.Block
	err := json.Unmarshal(rr.Body.Bytes(), &blocks)
	if err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Number != 42 {
		t.Fatalf("expected newest block first, got #%d", blocks[0].Number)
	}

	// The limit parameter caps the response.
	rr = serve(a, httptest.NewRequest("GET", "/v1/blocks?limit=1", nil))
	blocks = nil
	err = json.Unmarshal(rr.Body.Bytes(), &blocks)
	if err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
}

func TestLastBlock(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rr := serve(a, httptest.NewRequest("GET", "/v1/blocks/last", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var block mining.Block
	err := json.Unmarshal(rr.Body.Bytes(), &block)
	if err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if block.Number != 42 {
		t.Fatalf("expected block #42, got #%d", block.Number)
	}

	// An empty chain returns a not-found response.
	a.cfg.FetchLatestBlocks = func(limit int) ([]*mining.Block, error) {
		return []*mining.Block{}, nil
	}
	rr = serve(a, httptest.NewRequest("GET", "/v1/blocks/last", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestMinerRewards(t *testing.T) {
	a, _, _ := newTestAPI(t)

	rr := serve(a, httptest.NewRequest("GET", "/v1/user/miner-a/rewards", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var rewards []*mining.Reward
	err := json.Unmarshal(rr.Body.Bytes(), &rewards)
	if err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if len(rewards) != 1 {
		t.Fatalf("expected 1 reward, got %d", len(rewards))
	}
	if rewards[0].MinerID != "miner-a" {
		t.Fatalf("expected reward for miner-a, got %s", rewards[0].MinerID)
	}

	// Unknown miners have no rewards.
	rr = serve(a, httptest.NewRequest("GET", "/v1/user/miner-x/rewards", nil))
	rewards = nil
	err = json.Unmarshal(rr.Body.Bytes(), &rewards)
	if err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if len(rewards) != 0 {
		t.Fatalf("expected no rewards, got %d", len(rewards))
	}
}

func TestListLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 10},
		{"?limit=5", 5},
		{"?limit=0", 10},
		{"?limit=-3", 10},
		{"?limit=abc", 10},
		{"?limit=1000", maxListLimit},
	}

	for _, test := range tests {
		r := httptest.NewRequest("GET", "/v1/blocks"+test.query, nil)
		limit := listLimit(r, 10)
		if limit != test.want {
			t.Errorf("query %q: expected limit %d, got %d", test.query,
				test.want, limit)
		}
	}
}

func TestAdminAuth(t *testing.T) {
	a, _, paused := newTestAPI(t)

	// No password.
	rr := serve(a, httptest.NewRequest("POST", "/v1/admin/pause", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized,
			rr.Code)
	}
	if *paused {
		t.Fatal("expected pause flag untouched")
	}

	// Wrong password.
	r := httptest.NewRequest("POST", "/v1/admin/pause", nil)
	r.Header.Set(adminPassHeader, "wrongpass")
	rr = serve(a, r)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized,
			rr.Code)
	}

	// Correct password.
	r = httptest.NewRequest("POST", "/v1/admin/pause", nil)
	r.Header.Set(adminPassHeader, testAdminPass)
	rr = serve(a, r)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !*paused {
		t.Fatal("expected mining paused")
	}

	r = httptest.NewRequest("POST", "/v1/admin/resume", nil)
	r.Header.Set(adminPassHeader, testAdminPass)
	rr = serve(a, r)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if *paused {
		t.Fatal("expected mining resumed")
	}
}

func TestReconcileEndpoint(t *testing.T) {
	a, _, _ := newTestAPI(t)

	r := httptest.NewRequest("POST", "/v1/admin/reconcile", nil)
	r.Header.Set(adminPassHeader, testAdminPass)
	rr := serve(a, r)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var stats mining.ReconcileStats
	err := json.Unmarshal(rr.Body.Bytes(), &stats)
	if err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if stats.TotalUsers != 5 || stats.UsersUpdated != 2 {
		t.Fatalf("unexpected reconcile stats: %+v", stats)
	}
}

func TestRateLimit(t *testing.T) {
	a, _, _ := newTestAPI(t)

	// Exhaust the api token bucket for a single client address.
	limited := false
	for i := 0; i < apiBurst+1; i++ {
		rr := serve(a, httptest.NewRequest("GET", "/v1/status", nil))
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected request limit to be exceeded")
	}
}
