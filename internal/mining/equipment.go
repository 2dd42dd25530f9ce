// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"bytes"
	"encoding/hex"
	"time"
)

// equipmentID generates a unique equipment id using the provided miner id
// and time acquired.
func equipmentID(minerID string, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	_, _ = buf.WriteString(minerID)
	return buf.String()
}

// Equipment represents a single piece of mining equipment owned by a user.
// The sum of Hashrate over a user's equipment is the authoritative value of
// the user's total hashrate.
type Equipment struct {
	UUID      string  `json:"uuid"`
	MinerID   string  `json:"minerid"`
	Name      string  `json:"name"`
	Level     uint32  `json:"level"`
	Hashrate  float64 `json:"hashrate"`
	CreatedOn int64   `json:"createdon"`
}

// NewEquipment creates a piece of equipment owned by the provided miner.
func NewEquipment(minerID string, name string, level uint32, hashrate float64) *Equipment {
	now := time.Now().UnixNano()
	return &Equipment{
		UUID:      equipmentID(minerID, now),
		MinerID:   minerID,
		Name:      name,
		Level:     level,
		Hashrate:  hashrate,
		CreatedOn: now,
	}
}
