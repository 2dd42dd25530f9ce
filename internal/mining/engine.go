// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csmine/csmined/errors"
)

const (
	// DefaultBlockReward is the total CS issued per mined block.
	DefaultBlockReward = 100000

	// DefaultMineInterval is the default duration between mining rounds.
	DefaultMineInterval = time.Minute * 5

	// blockNtfnBufferSize represents the block notification buffer size.
	blockNtfnBufferSize = 128
)

// EngineConfig contains all of the configuration values which should be
// provided when creating a new instance of Engine.
type EngineConfig struct {
	// DB represents the game database.
	DB Database
	// BlockReward is the total CS issued per mined block.
	BlockReward float64
	// MineInterval is the duration between mining rounds.
	MineInterval time.Duration
}

// Engine periodically mints blocks and distributes the block reward over
// all active miners in proportion to their boosted hashrate.
//
// The engine assumes it is the only writer of blocks. Running two engine
// instances against one database would race to mint the same block number;
// multi-instance deployments are not supported.
type Engine struct {
	lastBlockNumber uint64 // update atomically.
	mining          uint32 // update atomically.

	cfg    *EngineConfig
	ntfnCh chan *Block
}

// NewEngine creates a new mining engine.
func NewEngine(cfg *EngineConfig) *Engine {
	if cfg.BlockReward == 0 {
		cfg.BlockReward = DefaultBlockReward
	}
	if cfg.MineInterval == 0 {
		cfg.MineInterval = DefaultMineInterval
	}
	return &Engine{
		cfg:    cfg,
		ntfnCh: make(chan *Block, blockNtfnBufferSize),
	}
}

// InitBlockNumber synchronizes the engine's in-memory block cursor with the
// highest block number in the database. It is called on startup and after
// a data purge to resync.
func (e *Engine) InitBlockNumber() error {
	number, err := e.cfg.DB.fetchLastBlockNumber()
	if err != nil {
		return err
	}
	atomic.StoreUint64(&e.lastBlockNumber, number)
	log.Infof("block cursor initialized at #%d", number)
	return nil
}

// LastBlockNumber returns the number of the most recently mined block.
func (e *Engine) LastBlockNumber() uint64 {
	return atomic.LoadUint64(&e.lastBlockNumber)
}

// BlockNotifications returns the channel newly minted blocks are signalled
// on. The channel is closed when the engine shuts down.
func (e *Engine) BlockNotifications() <-chan *Block {
	return e.ntfnCh
}

// signalBlock publishes the provided block to the notification channel. The
// send never blocks a mining round; if the buffer is full the notification
// is dropped.
func (e *Engine) signalBlock(block *Block) {
	select {
	case e.ntfnCh <- block:
	default:
		log.Warnf("block notification buffer full, dropping block #%d",
			block.Number)
	}
}

// Paused returns whether the mining engine is administratively paused.
// Mining is paused only when the stored setting is the literal text "true".
func (e *Engine) Paused() (bool, error) {
	value, err := e.cfg.DB.fetchGameSetting(miningPausedKey)
	if err != nil {
		if errors.Is(err, errors.ValueNotFound) {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

// SetPaused updates the pause setting gating the mining engine.
func (e *Engine) SetPaused(paused bool) error {
	value := "false"
	if paused {
		value = "true"
	}
	return e.cfg.DB.persistGameSetting(miningPausedKey, value)
}

// FetchLatestBlocks returns the most recently mined blocks up to the
// provided limit, ordered by block number descending.
func (e *Engine) FetchLatestBlocks(limit int) ([]*Block, error) {
	return e.cfg.DB.fetchLatestBlocks(limit)
}

// FetchMinerRewards returns rewards credited to the provided miner, most
// recent first, up to the provided limit.
func (e *Engine) FetchMinerRewards(minerID string, limit int) ([]*Reward, error) {
	return e.cfg.DB.fetchMinerRewards(minerID, limit)
}

// NetworkStats returns the current network hashrate and the number of
// users actively mining, derived from cached user hashrates.
func (e *Engine) NetworkStats() (float64, uint32, error) {
	users, err := e.cfg.DB.fetchAllUsers()
	if err != nil {
		return 0, 0, err
	}
	var hashrate float64
	var miners uint32
	for _, user := range users {
		if user.TotalHashrate <= 0 {
			continue
		}
		hashrate += user.TotalHashrate
		miners++
	}
	return hashrate, miners, nil
}

// Run starts the periodic mining process. It initializes the block cursor,
// reconciles cached user hashrates once and then mints a block every mine
// interval until the provided context is cancelled. Each round runs on its
// own goroutine so a slow round never delays the ticker; an overlapping
// tick is skipped by the reentrancy guard rather than queued.
//
// Run must be called as a goroutine, it only returns on context
// cancellation. An in-flight round runs to completion after cancellation;
// only future ticks are cancelled.
func (e *Engine) Run(ctx context.Context) {
	err := e.InitBlockNumber()
	if err != nil {
		log.Errorf("unable to initialize block cursor: %v", err)
		return
	}

	stats, err := e.ReconcileHashrates(ctx)
	if err != nil {
		log.Errorf("unable to reconcile user hashrates: %v", err)
	} else {
		log.Infof("reconciled hashrates for %d users, %d updated",
			stats.TotalUsers, stats.UsersUpdated)
	}

	log.Infof("mining every %v, block reward is %v CS",
		e.cfg.MineInterval, e.cfg.BlockReward)

	ticker := time.NewTicker(e.cfg.MineInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			// Wait for an in-flight round to finish before closing the
			// notification channel, the round may still signal its block.
			wg.Wait()
			close(e.ntfnCh)
			log.Tracef("mining engine done")
			return

		case <-ticker.C:
			// A round failure is logged and retried on the next tick, it
			// must never stop the ticker.
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := e.mineBlock(ctx)
				if err != nil {
					log.Errorf("unable to mine block: %v", err)
				}
			}()
		}
	}
}

// mineBlock mints one block and distributes its reward over all active
// miners in a single database transaction. The round is skipped without
// error when a previous round is still in flight, when mining is paused or
// when no miner has a positive hashrate. The in-memory block cursor only
// advances after the round's transaction commits, so a failed round retries
// the same block number on the next tick.
func (e *Engine) mineBlock(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&e.mining, 0, 1) {
		log.Debugf("previous mining round still in flight, skipping tick")
		return nil
	}
	defer atomic.StoreUint32(&e.mining, 0)

	if err := ctx.Err(); err != nil {
		desc := fmt.Sprintf("mineBlock: %v", err)
		return errors.MiningError(errors.ContextCancelled, desc)
	}

	paused, err := e.Paused()
	if err != nil {
		return err
	}
	if paused {
		log.Debugf("mining is paused, skipping round")
		return nil
	}

	// The candidate number is only committed to the cursor after the
	// round's transaction succeeds. Skipped and failed rounds reuse it, so
	// block numbers stay contiguous.
	blockNumber := atomic.LoadUint64(&e.lastBlockNumber) + 1

	users, err := e.cfg.DB.fetchAllUsers()
	if err != nil {
		return err
	}

	activeMiners := make([]*User, 0, len(users))
	for _, user := range users {
		if user.TotalHashrate > 0 {
			activeMiners = append(activeMiners, user)
		}
	}
	if len(activeMiners) == 0 {
		log.Debugf("no active miners, skipping block #%d", blockNumber)
		return nil
	}

	now := time.Now().UnixNano()
	boosts, err := e.cfg.DB.fetchActiveBoosts(now)
	if err != nil {
		return err
	}
	totals := aggregateBoosts(boosts)

	var totalNetworkHashrate float64
	boostedHashrates := make(map[string]float64, len(activeMiners))
	for _, miner := range activeMiners {
		tally := totals[miner.MinerID]
		boosted := miner.TotalHashrate * (1 + tally.hashratePct/100)
		boostedHashrates[miner.MinerID] = boosted
		totalNetworkHashrate += boosted
	}

	if totalNetworkHashrate == 0 {
		desc := fmt.Sprintf("mineBlock: zero network hashrate for "+
			"block #%d", blockNumber)
		return errors.MiningError(errors.DivideByZero, desc)
	}

	block := NewBlock(blockNumber, e.cfg.BlockReward, totalNetworkHashrate,
		uint32(len(activeMiners)))
	rewards := make([]*Reward, 0, len(activeMiners))
	for _, miner := range activeMiners {
		boosted := boostedHashrates[miner.MinerID]
		share := boosted / totalNetworkHashrate
		amount := e.cfg.BlockReward * share
		if tally := totals[miner.MinerID]; tally.luckPct > 0 {
			amount *= 1 + tally.luckPct/100
		}
		rewards = append(rewards, NewReward(blockNumber, miner.MinerID,
			boosted, share*100, amount))
	}

	err = e.cfg.DB.persistMinedBlock(block, rewards, now)
	if err != nil {
		desc := fmt.Sprintf("mineBlock: unable to persist block #%d: %v",
			blockNumber, err)
		return errors.MiningError(errors.MineBlock, desc)
	}

	atomic.StoreUint64(&e.lastBlockNumber, blockNumber)

	log.Infof("mined block #%d: %v CS distributed over %d miners, "+
		"network hashrate %v", blockNumber, e.cfg.BlockReward,
		len(activeMiners), totalNetworkHashrate)

	e.signalBlock(block)
	return nil
}
