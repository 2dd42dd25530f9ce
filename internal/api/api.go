// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package api provides the HTTP status and admin interface of the mining
// engine. Public endpoints expose mined blocks and miner rewards, admin
// endpoints gate mining and trigger hashrate reconciliation, and a
// websocket endpoint pushes newly mined blocks to connected clients.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/csmine/csmined/errors"
	"github.com/csmine/csmined/internal/mining"
)

// adminPassHeader is the request header carrying the admin password.
const adminPassHeader = "X-Admin-Pass"

// maxListLimit caps the number of entries a list endpoint returns.
const maxListLimit = 100

// Config contains all of the required configuration values for the API
// component.
type Config struct {
	// Listen represents the listening address the API is served on.
	Listen string
	// AdminPassHash is the bcrypt hash of the admin password.
	AdminPassHash []byte
	// Paused returns whether mining is currently paused.
	Paused func() (bool, error)
	// SetPaused updates the mining pause flag.
	SetPaused func(bool) error
	// LastBlockNumber returns the number of the last mined block.
	LastBlockNumber func() uint64
	// NetworkStats returns the current network hashrate and the number
	// of users actively mining.
	NetworkStats func() (float64, uint32, error)
	// FetchLatestBlocks returns the most recently mined blocks.
	FetchLatestBlocks func(int) ([]*mining.Block, error)
	// FetchMinerRewards returns the most recent rewards credited to the
	// provided miner.
	FetchMinerRewards func(string, int) ([]*mining.Reward, error)
	// ReconcileHashrates recomputes cached user hashrates from owned
	// equipment.
	ReconcileHashrates func(context.Context) (*mining.ReconcileStats, error)
	// BlockNotifications returns the channel mined blocks are signalled
	// on.
	BlockNotifications func() <-chan *mining.Block
}

// API represents the HTTP interface of the mining engine.
type API struct {
	cfg             *Config
	limiter         *RateLimiter
	router          *mux.Router
	websocketServer *WebsocketServer
}

// statusData describes the status endpoint response.
type statusData struct {
	LastBlockNumber uint64  `json:"lastblocknumber"`
	NetworkHashrate float64 `json:"networkhashrate"`
	Miners          uint32  `json:"miners"`
	Paused          bool    `json:"paused"`
}

// NewAPI creates an instance of the mining engine API.
func NewAPI(cfg *Config) *API {
	a := API{
		cfg:             cfg,
		limiter:         NewRateLimiter(),
		router:          mux.NewRouter(),
		websocketServer: NewWebsocketServer(),
	}
	a.route()
	return &a
}

// route configures the http router of the API.
func (a *API) route() {
	v1 := a.router.PathPrefix("/v1").Subrouter()
	v1.Use(a.rateLimitMiddleware)

	v1.HandleFunc("/status", a.status).Methods("GET")
	v1.HandleFunc("/blocks", a.latestBlocks).Methods("GET")
	v1.HandleFunc("/blocks/last", a.lastBlock).Methods("GET")
	v1.HandleFunc("/user/{minerid}/rewards", a.minerRewards).Methods("GET")

	// Admin endpoints require the admin password on every request.
	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(a.adminAuthMiddleware)
	admin.HandleFunc("/pause", a.pauseMining).Methods("POST")
	admin.HandleFunc("/resume", a.resumeMining).Methods("POST")
	admin.HandleFunc("/reconcile", a.reconcileHashrates).Methods("POST")

	// Websocket endpoint allows clients to receive newly mined blocks.
	a.router.HandleFunc("/ws", a.websocketServer.registerClient).Methods("GET")
}

// remoteIP returns the client address of the provided request without its
// port.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimitMiddleware returns a "429 Too Many Requests" response if the
// client has exceeded its allowed limit, otherwise passes the request to
// the next middleware/handler.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)
		if !a.limiter.WithinLimit(ip, APIClient) {
			desc := fmt.Sprintf("%s exceeded its request limit", ip)
			log.Debug(errors.MiningError(errors.LimitExceeded, desc))
			a.renderError(w, http.StatusTooManyRequests,
				"request limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// adminAuthMiddleware rejects requests which do not carry the admin
// password.
func (a *API) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pass := r.Header.Get(adminPassHeader)
		err := bcrypt.CompareHashAndPassword(a.cfg.AdminPassHash,
			[]byte(pass))
		if err != nil {
			log.Warnf("unauthorized admin request from %s", remoteIP(r))
			a.renderError(w, http.StatusUnauthorized, "invalid admin password")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// renderJSON writes the provided value to the response as JSON.
func (a *API) renderJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		log.Errorf("unable to encode response: %v", err)
	}
}

// renderError writes an error message to the response as JSON with the
// provided status code.
func (a *API) renderError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(map[string]string{"error": msg})
	if err != nil {
		log.Errorf("unable to encode error response: %v", err)
	}
}

// listLimit parses the limit query parameter of the provided request,
// falling back to the provided default.
func listLimit(r *http.Request, defaultLimit int) int {
	limitStr := r.FormValue("limit")
	if limitStr == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// status is the handler for "GET /v1/status". It returns the block cursor,
// the network hashrate and the pause flag of the engine.
func (a *API) status(w http.ResponseWriter, r *http.Request) {
	paused, err := a.cfg.Paused()
	if err != nil {
		log.Errorf("unable to fetch pause flag: %v", err)
		a.renderError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	hashrate, miners, err := a.cfg.NetworkStats()
	if err != nil {
		log.Errorf("unable to fetch network stats: %v", err)
		a.renderError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	a.renderJSON(w, statusData{
		LastBlockNumber: a.cfg.LastBlockNumber(),
		NetworkHashrate: hashrate,
		Miners:          miners,
		Paused:          paused,
	})
}

// latestBlocks is the handler for "GET /v1/blocks". It returns the most
// recently mined blocks, newest first.
func (a *API) latestBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := a.cfg.FetchLatestBlocks(listLimit(r, 10))
	if err != nil {
		log.Errorf("unable to fetch blocks: %v", err)
		a.renderError(w, http.StatusInternalServerError, "blocks unavailable")
		return
	}
	a.renderJSON(w, blocks)
}

// lastBlock is the handler for "GET /v1/blocks/last". It returns the most
// recently mined block.
func (a *API) lastBlock(w http.ResponseWriter, r *http.Request) {
	blocks, err := a.cfg.FetchLatestBlocks(1)
	if err != nil {
		log.Errorf("unable to fetch blocks: %v", err)
		a.renderError(w, http.StatusInternalServerError, "blocks unavailable")
		return
	}
	if len(blocks) == 0 {
		a.renderError(w, http.StatusNotFound, "no blocks mined yet")
		return
	}
	a.renderJSON(w, blocks[0])
}

// minerRewards is the handler for "GET /v1/user/{minerid}/rewards". It
// returns the most recent rewards credited to the miner, newest first.
func (a *API) minerRewards(w http.ResponseWriter, r *http.Request) {
	minerID := mux.Vars(r)["minerid"]
	rewards, err := a.cfg.FetchMinerRewards(minerID, listLimit(r, 10))
	if err != nil {
		log.Errorf("unable to fetch rewards for %s: %v", minerID, err)
		a.renderError(w, http.StatusInternalServerError, "rewards unavailable")
		return
	}
	a.renderJSON(w, rewards)
}

// pauseMining is the handler for "POST /v1/admin/pause". It stops the
// engine from mining further blocks until resumed.
func (a *API) pauseMining(w http.ResponseWriter, r *http.Request) {
	err := a.cfg.SetPaused(true)
	if err != nil {
		log.Errorf("unable to pause mining: %v", err)
		a.renderError(w, http.StatusInternalServerError, "unable to pause mining")
		return
	}
	log.Infof("mining paused by admin request from %s", remoteIP(r))
	a.renderJSON(w, map[string]bool{"paused": true})
}

// resumeMining is the handler for "POST /v1/admin/resume". It allows the
// engine to mine blocks again.
func (a *API) resumeMining(w http.ResponseWriter, r *http.Request) {
	err := a.cfg.SetPaused(false)
	if err != nil {
		log.Errorf("unable to resume mining: %v", err)
		a.renderError(w, http.StatusInternalServerError, "unable to resume mining")
		return
	}
	log.Infof("mining resumed by admin request from %s", remoteIP(r))
	a.renderJSON(w, map[string]bool{"paused": false})
}

// reconcileHashrates is the handler for "POST /v1/admin/reconcile". It
// recomputes cached user hashrates from owned equipment and returns the
// reconciliation stats.
func (a *API) reconcileHashrates(w http.ResponseWriter, r *http.Request) {
	stats, err := a.cfg.ReconcileHashrates(r.Context())
	if err != nil {
		log.Errorf("unable to reconcile hashrates: %v", err)
		a.renderError(w, http.StatusInternalServerError,
			"unable to reconcile hashrates")
		return
	}
	a.renderJSON(w, stats)
}

// runWebServer starts the web server per the configuration options
// associated with the API instance.
//
// It must be run as a routine.
func (a *API) runWebServer(ctx context.Context) {
	server := http.Server{
		// Use the provided context as the parent context for all requests
		// to ensure handlers are able to react to both client disconnects
		// as well as shutdown via the provided context.
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},

		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 30,
		IdleTimeout:  time.Second * 30,
		Addr:         a.cfg.Listen,
		Handler:      a.router,
	}

	go func() {
		log.Infof("Starting API server on %s (http)", a.cfg.Listen)
		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.Error(err)
		}
	}()

	// Wait until the context is canceled and gracefully shutdown the server.
	<-ctx.Done()
	server.Shutdown(ctx)
}

// notifyWebsocketClients forwards mined blocks to any established websocket
// clients.
//
// It must be run as a routine.
func (a *API) notifyWebsocketClients(ctx context.Context) {
	ntfnCh := a.cfg.BlockNotifications()
	for {
		select {
		case block, ok := <-ntfnCh:
			if !ok {
				return
			}
			a.websocketServer.send(payload{
				BlockNumber:   block.Number,
				Reward:        block.Reward,
				TotalHashrate: block.TotalHashrate,
				TotalMiners:   block.TotalMiners,
			})

		case <-ctx.Done():
			return
		}
	}
}

// Run starts the API server and the websocket notifier.
func (a *API) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		a.runWebServer(ctx)
		wg.Done()
	}()
	go func() {
		a.notifyWebsocketClients(ctx)
		wg.Done()
	}()
	wg.Wait()
}
