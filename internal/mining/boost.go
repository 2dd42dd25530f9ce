// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/csmine/csmined/errors"
)

const (
	// HashrateBoost multiplies the effective hashrate of a miner.
	HashrateBoost = "hashrate-boost"

	// LuckBoost multiplies the reward credited to a miner after its block
	// share is calculated.
	LuckBoost = "luck-boost"
)

// boostID generates a unique boost id using the provided miner id and time
// activated.
func boostID(minerID string, activatedOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(activatedOn)))
	_, _ = buf.WriteString(minerID)
	return buf.String()
}

// Boost is a time-boxed multiplicative modifier purchased by a user. Boosts
// are created active and flipped inactive lazily by the mining engine once
// expired; there is no background sweeper.
type Boost struct {
	UUID        string  `json:"uuid"`
	MinerID     string  `json:"minerid"`
	Kind        string  `json:"kind"`
	Percent     float64 `json:"percent"`
	ActivatedOn int64   `json:"activatedon"`
	ExpiresOn   int64   `json:"expireson"`
	Active      bool    `json:"active"`
}

// NewBoost creates an active boost of the provided kind for the miner,
// lasting for the provided duration.
func NewBoost(minerID string, kind string, percent float64, duration time.Duration) *Boost {
	now := time.Now().UnixNano()
	return &Boost{
		UUID:        boostID(minerID, now),
		MinerID:     minerID,
		Kind:        kind,
		Percent:     percent,
		ActivatedOn: now,
		ExpiresOn:   now + duration.Nanoseconds(),
		Active:      true,
	}
}

// Expired returns whether the boost has expired as of the provided
// nanosecond timestamp.
func (b *Boost) Expired(now int64) bool {
	return b.ExpiresOn <= now
}

// validate asserts the boost refers to a known kind. Both database backends
// reject boosts of unknown kinds on their write path; unknown kinds written
// out of band are skipped by the mining engine instead.
func (b *Boost) validate() error {
	switch b.Kind {
	case HashrateBoost, LuckBoost:
		return nil
	default:
		desc := fmt.Sprintf("unsupported boost kind %q for miner %s",
			b.Kind, b.MinerID)
		return errors.MiningError(errors.BoostKind, desc)
	}
}

// boostTotals represents the aggregated boost percentages of one miner.
type boostTotals struct {
	hashratePct float64
	luckPct     float64
}

// aggregateBoosts tallies the provided boosts per miner. Multiple boosts of
// the same kind stack additively.
func aggregateBoosts(boosts []*Boost) map[string]boostTotals {
	totals := make(map[string]boostTotals)
	for _, boost := range boosts {
		tally := totals[boost.MinerID]
		switch boost.Kind {
		case HashrateBoost:
			tally.hashratePct += boost.Percent
		case LuckBoost:
			tally.luckPct += boost.Percent
		default:
			log.Warnf("unknown boost kind %q for miner %s, skipping",
				boost.Kind, boost.MinerID)
			continue
		}
		totals[boost.MinerID] = tally
	}
	return totals
}
