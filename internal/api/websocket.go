// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// payload represents a websocket update message, sent to connected clients
// whenever a new block is mined.
type payload struct {
	BlockNumber   uint64  `json:"blocknumber"`
	Reward        float64 `json:"reward"`
	TotalHashrate float64 `json:"totalhashrate"`
	TotalMiners   uint32  `json:"totalminers"`
}

// WebsocketServer maintains the set of connected websocket clients and
// broadcasts update messages to them.
type WebsocketServer struct {
	clients    map[*websocket.Conn]bool
	clientsMtx sync.Mutex
	upgrader   websocket.Upgrader
}

// NewWebsocketServer initializes a websocket server with no connected
// clients.
func NewWebsocketServer() *WebsocketServer {
	return &WebsocketServer{
		clients:  make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{},
	}
}

// registerClient upgrades the HTTP request to a websocket and adds the
// caller to the set of connected clients.
func (s *WebsocketServer) registerClient(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("registerClient error: %v", err)
		return
	}
	s.clientsMtx.Lock()
	s.clients[ws] = true
	s.clientsMtx.Unlock()
}

// send broadcasts the provided message to all connected websocket clients.
// Clients which can no longer be written to are dropped from the set.
func (s *WebsocketServer) send(msg payload) {
	s.clientsMtx.Lock()
	for client := range s.clients {
		err := client.WriteJSON(msg)
		if err != nil {
			// "broken pipe" indicates the client has disconnected.
			// We don't need to log an error in this case.
			if !strings.Contains(err.Error(), "write: broken pipe") {
				log.Errorf("send: error on client %s: %v",
					client.LocalAddr(), err)
			}
			client.Close()
			delete(s.clients, client)
		}
	}
	s.clientsMtx.Unlock()
}
