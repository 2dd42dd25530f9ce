// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"bytes"
	"encoding/hex"
	"time"
)

// rewardID generates a unique reward id using the provided miner id and
// time created. The id is time-prefixed so that bolt cursors iterate
// rewards in creation order.
func rewardID(minerID string, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	_, _ = buf.WriteString(minerID)
	return buf.String()
}

// Reward represents one miner's portion of a mined block. A reward is
// created exactly once per (block, active miner) pair, atomically with its
// block and the miner's balance credit, and is immutable after creation.
type Reward struct {
	UUID         string  `json:"uuid"`
	BlockNumber  uint64  `json:"blocknumber"`
	MinerID      string  `json:"minerid"`
	Hashrate     float64 `json:"hashrate"`
	SharePercent float64 `json:"sharepercent"`
	Amount       float64 `json:"amount"`
	CreatedOn    int64   `json:"createdon"`
}

// NewReward creates a reward for the provided miner and block. Hashrate is
// the miner's boosted hashrate at mint time.
func NewReward(blockNumber uint64, minerID string, hashrate float64, sharePercent float64, amount float64) *Reward {
	now := time.Now().UnixNano()
	return &Reward{
		UUID:         rewardID(minerID, now),
		BlockNumber:  blockNumber,
		MinerID:      minerID,
		Hashrate:     hashrate,
		SharePercent: sharePercent,
		Amount:       amount,
		CreatedOn:    now,
	}
}
