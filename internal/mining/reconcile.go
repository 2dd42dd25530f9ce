// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"context"
	"fmt"

	"github.com/csmine/csmined/errors"
)

// ReconcileStats summarizes a hashrate reconciliation pass.
type ReconcileStats struct {
	TotalUsers   int `json:"totalusers"`
	UsersUpdated int `json:"usersupdated"`
}

// ReconcileHashrates recomputes the cached total hashrate of every user
// from their owned equipment, correcting any drift introduced by flows the
// engine is not aware of. Only users whose cached value differs from the
// recomputed sum are written.
//
// The pass is idempotent and safe to run while mining rounds are in
// progress. Each user is read and conditionally written independently;
// cross-user atomicity is not required since the cached value is only a
// performance shortcut.
func (e *Engine) ReconcileHashrates(ctx context.Context) (*ReconcileStats, error) {
	const funcName = "ReconcileHashrates"

	users, err := e.cfg.DB.fetchAllUsers()
	if err != nil {
		return nil, err
	}

	stats := &ReconcileStats{TotalUsers: len(users)}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			desc := fmt.Sprintf("%s: %v", funcName, err)
			return nil, errors.MiningError(errors.ContextCancelled, desc)
		}

		equipment, err := e.cfg.DB.fetchMinerEquipment(user.MinerID)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to fetch equipment for "+
				"miner %s: %v", funcName, user.MinerID, err)
			return nil, errors.MiningError(errors.Reconcile, desc)
		}

		var totalHashrate float64
		for _, equip := range equipment {
			totalHashrate += equip.Hashrate
		}

		if totalHashrate == user.TotalHashrate {
			continue
		}

		err = e.cfg.DB.updateUserHashrate(user.MinerID, totalHashrate)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to update hashrate for "+
				"miner %s: %v", funcName, user.MinerID, err)
			return nil, errors.MiningError(errors.Reconcile, desc)
		}

		log.Debugf("reconciled hashrate for miner %s: %v -> %v",
			user.MinerID, user.TotalHashrate, totalHashrate)
		stats.UsersUpdated++
	}

	return stats, nil
}
