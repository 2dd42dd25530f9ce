// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import "time"

// Block is an immutable record of one mining round. Blocks are created only
// by the mining engine and are never mutated, except by a full data purge.
type Block struct {
	Number        uint64  `json:"number"`
	Reward        float64 `json:"reward"`
	TotalHashrate float64 `json:"totalhashrate"`
	TotalMiners   uint32  `json:"totalminers"`
	Difficulty    uint32  `json:"difficulty"`
	CreatedOn     int64   `json:"createdon"`
}

// NewBlock creates a block with the provided round details.
func NewBlock(number uint64, reward float64, totalHashrate float64, totalMiners uint32) *Block {
	return &Block{
		Number:        number,
		Reward:        reward,
		TotalHashrate: totalHashrate,
		TotalMiners:   totalMiners,
		Difficulty:    1,
		CreatedOn:     time.Now().UnixNano(),
	}
}
