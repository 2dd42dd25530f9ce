// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/csmine/csmined/errors"
)

// newTestEngine creates a mining engine backed by a bolt database in a
// temporary directory.
func newTestEngine(t *testing.T) (*Engine, Database) {
	t.Helper()
	db := setupBoltDB(t)
	engine := NewEngine(&EngineConfig{
		DB:           db,
		BlockReward:  100000,
		MineInterval: time.Minute,
	})
	return engine, db
}

// addMiner persists a user with the provided cached hashrate and returns
// it.
func addMiner(t *testing.T, db Database, uuid, username string, hashrate float64) *User {
	t.Helper()
	user := NewUser(uuid, username)
	user.TotalHashrate = hashrate
	err := db.persistUser(user)
	if err != nil {
		t.Fatalf("unable to persist user: %v", err)
	}
	return user
}

// TestMineBlockNoMiners ensures no block is minted and the cursor does not
// advance when no user has a positive hashrate.
func TestMineBlockNoMiners(t *testing.T) {
	engine, db := newTestEngine(t)
	addMiner(t, db, "tg-10001", "alice", 0)

	err := engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}

	number, err := db.fetchLastBlockNumber()
	if err != nil {
		t.Fatalf("unable to fetch last block number: %v", err)
	}
	if number != 0 {
		t.Fatalf("expected no blocks, got block #%d", number)
	}
	if engine.LastBlockNumber() != 0 {
		t.Fatalf("expected block cursor at 0, got %d",
			engine.LastBlockNumber())
	}

	// The next productive round reuses the skipped candidate number.
	addMiner(t, db, "tg-10002", "bob", 100)
	err = engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}
	if engine.LastBlockNumber() != 1 {
		t.Fatalf("expected block cursor at 1, got %d",
			engine.LastBlockNumber())
	}
}

// TestMineBlockPauseGate ensures the pause setting gates mining and that
// only the literal text "true" pauses the engine.
func TestMineBlockPauseGate(t *testing.T) {
	engine, db := newTestEngine(t)
	addMiner(t, db, "tg-10001", "alice", 100)

	err := engine.SetPaused(true)
	if err != nil {
		t.Fatalf("unable to pause mining: %v", err)
	}
	err = engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}
	number, err := db.fetchLastBlockNumber()
	if err != nil {
		t.Fatalf("unable to fetch last block number: %v", err)
	}
	if number != 0 {
		t.Fatalf("expected no blocks while paused, got block #%d", number)
	}

	// Any value other than the literal true-string means not paused.
	err = db.persistGameSetting(miningPausedKey, "TRUE")
	if err != nil {
		t.Fatalf("unable to persist setting: %v", err)
	}
	err = engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}
	number, err = db.fetchLastBlockNumber()
	if err != nil {
		t.Fatalf("unable to fetch last block number: %v", err)
	}
	if number != 1 {
		t.Fatalf("expected block #1, got #%d", number)
	}

	err = engine.SetPaused(false)
	if err != nil {
		t.Fatalf("unable to resume mining: %v", err)
	}
	err = engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}
	number, err = db.fetchLastBlockNumber()
	if err != nil {
		t.Fatalf("unable to fetch last block number: %v", err)
	}
	if number != 2 {
		t.Fatalf("expected block #2, got #%d", number)
	}
}

// TestMineBlockRewardConservation ensures the rewards of a round without
// luck boosts sum to the block reward.
func TestMineBlockRewardConservation(t *testing.T) {
	engine, db := newTestEngine(t)
	minerA := addMiner(t, db, "tg-10001", "alice", 120)
	minerB := addMiner(t, db, "tg-10002", "bob", 370)
	minerC := addMiner(t, db, "tg-10003", "carol", 15.5)

	err := engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}

	var total float64
	for _, miner := range []*User{minerA, minerB, minerC} {
		rewards, err := db.fetchMinerRewards(miner.MinerID, 10)
		if err != nil {
			t.Fatalf("unable to fetch rewards: %v", err)
		}
		if len(rewards) != 1 {
			t.Fatalf("expected 1 reward for %s, got %d", miner.Username,
				len(rewards))
		}
		total += rewards[0].Amount
	}

	if math.Abs(total-100000) > 1e-6 {
		t.Fatalf("expected rewards to sum to the block reward, got %v",
			total)
	}
}

// TestMineBlockShareProportionality ensures a miner with twice the hashrate
// of another earns twice the reward in the same block.
func TestMineBlockShareProportionality(t *testing.T) {
	engine, db := newTestEngine(t)
	minerA := addMiner(t, db, "tg-10001", "alice", 200)
	minerB := addMiner(t, db, "tg-10002", "bob", 100)

	err := engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}

	rewardsA, err := db.fetchMinerRewards(minerA.MinerID, 10)
	if err != nil {
		t.Fatalf("unable to fetch rewards: %v", err)
	}
	rewardsB, err := db.fetchMinerRewards(minerB.MinerID, 10)
	if err != nil {
		t.Fatalf("unable to fetch rewards: %v", err)
	}
	if len(rewardsA) != 1 || len(rewardsB) != 1 {
		t.Fatalf("expected 1 reward each, got %d and %d", len(rewardsA),
			len(rewardsB))
	}

	if math.Abs(rewardsA[0].Amount-2*rewardsB[0].Amount) > 1e-6 {
		t.Fatalf("expected proportional rewards, got %v and %v",
			rewardsA[0].Amount, rewardsB[0].Amount)
	}
}

// TestMineBlockScenario exercises a full round with a boosted miner: A with
// hashrate 100 and no boosts, B with hashrate 300 and an active 50%
// hashrate boost.
func TestMineBlockScenario(t *testing.T) {
	engine, db := newTestEngine(t)
	minerA := addMiner(t, db, "tg-10001", "alice", 100)
	minerB := addMiner(t, db, "tg-10002", "bob", 300)

	err := db.persistBoost(NewBoost(minerB.MinerID, HashrateBoost, 50,
		time.Hour))
	if err != nil {
		t.Fatalf("unable to persist boost: %v", err)
	}

	err = engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}

	block, err := db.fetchBlock(1)
	if err != nil {
		t.Fatalf("unable to fetch block: %v", err)
	}
	if block.TotalMiners != 2 {
		t.Fatalf("expected 2 miners, got %d", block.TotalMiners)
	}
	if math.Abs(block.TotalHashrate-550) > 1e-6 {
		t.Fatalf("expected network hashrate 550, got %v",
			block.TotalHashrate)
	}

	rewardsA, err := db.fetchMinerRewards(minerA.MinerID, 10)
	if err != nil {
		t.Fatalf("unable to fetch rewards: %v", err)
	}
	rewardsB, err := db.fetchMinerRewards(minerB.MinerID, 10)
	if err != nil {
		t.Fatalf("unable to fetch rewards: %v", err)
	}

	wantA := 100000 * 100.0 / 550.0
	wantB := 100000 * 450.0 / 550.0
	if math.Abs(rewardsA[0].Amount-wantA) > 1e-6 {
		t.Fatalf("expected reward %v for alice, got %v", wantA,
			rewardsA[0].Amount)
	}
	if math.Abs(rewardsB[0].Amount-wantB) > 1e-6 {
		t.Fatalf("expected reward %v for bob, got %v", wantB,
			rewardsB[0].Amount)
	}
	if math.Abs(rewardsB[0].Hashrate-450) > 1e-6 {
		t.Fatalf("expected boosted hashrate 450, got %v",
			rewardsB[0].Hashrate)
	}

	userA, err := db.fetchUser(minerA.UUID)
	if err != nil {
		t.Fatalf("unable to fetch user: %v", err)
	}
	if math.Abs(userA.Balance-wantA) > 1e-6 {
		t.Fatalf("expected balance %v for alice, got %v", wantA,
			userA.Balance)
	}
}

// TestMineBlockLuckBoost ensures a luck boost multiplies the credited
// reward after the block share is calculated.
func TestMineBlockLuckBoost(t *testing.T) {
	engine, db := newTestEngine(t)
	minerA := addMiner(t, db, "tg-10001", "alice", 100)
	minerB := addMiner(t, db, "tg-10002", "bob", 100)

	err := db.persistBoost(NewBoost(minerB.MinerID, LuckBoost, 20,
		time.Hour))
	if err != nil {
		t.Fatalf("unable to persist boost: %v", err)
	}

	err = engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}

	rewardsA, err := db.fetchMinerRewards(minerA.MinerID, 10)
	if err != nil {
		t.Fatalf("unable to fetch rewards: %v", err)
	}
	rewardsB, err := db.fetchMinerRewards(minerB.MinerID, 10)
	if err != nil {
		t.Fatalf("unable to fetch rewards: %v", err)
	}

	// Luck does not change the share, only the credited amount.
	if math.Abs(rewardsB[0].SharePercent-50) > 1e-6 {
		t.Fatalf("expected 50%% share, got %v", rewardsB[0].SharePercent)
	}
	if math.Abs(rewardsA[0].Amount-50000) > 1e-6 {
		t.Fatalf("expected reward 50000 for alice, got %v",
			rewardsA[0].Amount)
	}
	if math.Abs(rewardsB[0].Amount-60000) > 1e-6 {
		t.Fatalf("expected reward 60000 for bob, got %v",
			rewardsB[0].Amount)
	}
}

// TestMineBlockBoostExpirySweep ensures an expired boost is excluded from
// the round's aggregation and flipped inactive by the round's transaction.
func TestMineBlockBoostExpirySweep(t *testing.T) {
	engine, db := newTestEngine(t)
	miner := addMiner(t, db, "tg-10001", "alice", 100)

	expired := NewBoost(miner.MinerID, HashrateBoost, 50, time.Hour)
	expired.ExpiresOn = time.Now().Add(-time.Minute).UnixNano()
	err := db.persistBoost(expired)
	if err != nil {
		t.Fatalf("unable to persist boost: %v", err)
	}

	err = engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}

	// The expired boost must not have contributed to the network hashrate.
	block, err := db.fetchBlock(1)
	if err != nil {
		t.Fatalf("unable to fetch block: %v", err)
	}
	if math.Abs(block.TotalHashrate-100) > 1e-6 {
		t.Fatalf("expected network hashrate 100, got %v",
			block.TotalHashrate)
	}

	// The round's transaction must have deactivated it.
	boosts, err := db.fetchActiveBoosts(0)
	if err != nil {
		t.Fatalf("unable to fetch boosts: %v", err)
	}
	if len(boosts) != 0 {
		t.Fatalf("expected expired boost to be deactivated, got %d "+
			"active boosts", len(boosts))
	}
}

// failingDB wraps a Database and fails mined-block persistence.
type failingDB struct {
	Database
}

func (db *failingDB) persistMinedBlock(block *Block, rewards []*Reward, expiredAsOf int64) error {
	return errors.DBError(errors.PersistEntry, "persistMinedBlock: write failed")
}

// TestMineBlockPersistFailure ensures a failed round surfaces a mining
// error and leaves the block cursor unchanged for the next tick.
func TestMineBlockPersistFailure(t *testing.T) {
	db := setupBoltDB(t)
	engine := NewEngine(&EngineConfig{
		DB:           &failingDB{Database: db},
		BlockReward:  100000,
		MineInterval: time.Minute,
	})
	addMiner(t, db, "tg-10001", "alice", 100)

	err := engine.mineBlock(context.Background())
	if !errors.Is(err, errors.MineBlock) {
		t.Fatalf("expected MineBlock error, got %v", err)
	}
	if engine.LastBlockNumber() != 0 {
		t.Fatalf("expected block cursor at 0, got %d",
			engine.LastBlockNumber())
	}
}

// TestMineBlockZeroNetworkHashrate ensures a round where boosts zero out
// the network hashrate errors instead of dividing by zero.
func TestMineBlockZeroNetworkHashrate(t *testing.T) {
	engine, db := newTestEngine(t)
	miner := addMiner(t, db, "tg-10001", "alice", 100)

	err := db.persistBoost(NewBoost(miner.MinerID, HashrateBoost, -100,
		time.Hour))
	if err != nil {
		t.Fatalf("unable to persist boost: %v", err)
	}

	err = engine.mineBlock(context.Background())
	if !errors.Is(err, errors.DivideByZero) {
		t.Fatalf("expected DivideByZero error, got %v", err)
	}
	if engine.LastBlockNumber() != 0 {
		t.Fatalf("expected block cursor at 0, got %d",
			engine.LastBlockNumber())
	}
}

// blockingDB wraps a Database and blocks mined-block persistence until
// released, to simulate a slow round transaction.
type blockingDB struct {
	Database
	started chan struct{}
	release chan struct{}
}

func (db *blockingDB) persistMinedBlock(block *Block, rewards []*Reward, expiredAsOf int64) error {
	close(db.started)
	<-db.release
	return db.Database.persistMinedBlock(block, rewards, expiredAsOf)
}

// TestMineBlockReentrancy ensures a mine invocation overlapping a slow
// in-flight round is a no-op.
func TestMineBlockReentrancy(t *testing.T) {
	db := setupBoltDB(t)
	slowDB := &blockingDB{
		Database: db,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	engine := NewEngine(&EngineConfig{
		DB:           slowDB,
		BlockReward:  100000,
		MineInterval: time.Minute,
	})
	addMiner(t, db, "tg-10001", "alice", 100)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- engine.mineBlock(context.Background())
	}()

	// Wait for the first round to reach its transaction, then overlap it.
	<-slowDB.started
	err := engine.mineBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected overlap mine error: %v", err)
	}

	close(slowDB.release)
	err = <-firstDone
	if err != nil {
		t.Fatalf("unexpected mine error: %v", err)
	}

	// Only the first round may have minted a block.
	number, err := db.fetchLastBlockNumber()
	if err != nil {
		t.Fatalf("unable to fetch last block number: %v", err)
	}
	if number != 1 {
		t.Fatalf("expected a single block, got block #%d", number)
	}
	blocks, err := db.fetchLatestBlocks(10)
	if err != nil {
		t.Fatalf("unable to fetch latest blocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
}

// TestInitBlockNumber ensures the block cursor resumes from the highest
// stored block.
func TestInitBlockNumber(t *testing.T) {
	engine, db := newTestEngine(t)
	addMiner(t, db, "tg-10001", "alice", 100)

	for i := 0; i < 3; i++ {
		err := engine.mineBlock(context.Background())
		if err != nil {
			t.Fatalf("unexpected mine error: %v", err)
		}
	}

	// A fresh engine over the same database must resume at block 3.
	restarted := NewEngine(&EngineConfig{DB: db})
	err := restarted.InitBlockNumber()
	if err != nil {
		t.Fatalf("unable to initialize block cursor: %v", err)
	}
	if restarted.LastBlockNumber() != 3 {
		t.Fatalf("expected block cursor at 3, got %d",
			restarted.LastBlockNumber())
	}
}

// TestReconcileHashrates ensures cached hashrates are recomputed from owned
// equipment and that reconciliation is idempotent.
func TestReconcileHashrates(t *testing.T) {
	engine, db := newTestEngine(t)
	minerA := addMiner(t, db, "tg-10001", "alice", 55) // stale cache
	minerB := addMiner(t, db, "tg-10002", "bob", 0)

	err := db.persistEquipment(NewEquipment(minerA.MinerID, "basic-rig", 1, 100))
	if err != nil {
		t.Fatalf("unable to persist equipment: %v", err)
	}
	err = db.persistEquipment(NewEquipment(minerA.MinerID, "gpu-rig", 2, 250))
	if err != nil {
		t.Fatalf("unable to persist equipment: %v", err)
	}

	stats, err := engine.ReconcileHashrates(context.Background())
	if err != nil {
		t.Fatalf("unable to reconcile hashrates: %v", err)
	}
	if stats.TotalUsers != 2 {
		t.Fatalf("expected 2 users, got %d", stats.TotalUsers)
	}
	if stats.UsersUpdated != 1 {
		t.Fatalf("expected 1 user updated, got %d", stats.UsersUpdated)
	}

	fetched, err := db.fetchUser(minerA.UUID)
	if err != nil {
		t.Fatalf("unable to fetch user: %v", err)
	}
	if fetched.TotalHashrate != 350 {
		t.Fatalf("expected hashrate 350, got %v", fetched.TotalHashrate)
	}
	fetched, err = db.fetchUser(minerB.UUID)
	if err != nil {
		t.Fatalf("unable to fetch user: %v", err)
	}
	if fetched.TotalHashrate != 0 {
		t.Fatalf("expected hashrate 0, got %v", fetched.TotalHashrate)
	}

	// A second pass with no intervening equipment changes updates nobody.
	stats, err = engine.ReconcileHashrates(context.Background())
	if err != nil {
		t.Fatalf("unable to reconcile hashrates: %v", err)
	}
	if stats.UsersUpdated != 0 {
		t.Fatalf("expected 0 users updated, got %d", stats.UsersUpdated)
	}
}

func TestNetworkStats(t *testing.T) {
	engine, db := newTestEngine(t)
	addMiner(t, db, "tg-10001", "alice", 100)
	addMiner(t, db, "tg-10002", "bob", 450)
	addMiner(t, db, "tg-10003", "carol", 0) // idle, no equipment

	hashrate, miners, err := engine.NetworkStats()
	if err != nil {
		t.Fatalf("unable to fetch network stats: %v", err)
	}
	if hashrate != 550 {
		t.Fatalf("expected network hashrate 550, got %v", hashrate)
	}
	if miners != 2 {
		t.Fatalf("expected 2 miners, got %d", miners)
	}
}

// TestEngineRunLifecycle ensures the engine mines on its ticker and stops
// on context cancellation.
func TestEngineRunLifecycle(t *testing.T) {
	db := setupBoltDB(t)
	engine := NewEngine(&EngineConfig{
		DB:           db,
		BlockReward:  100000,
		MineInterval: 50 * time.Millisecond,
	})
	addMiner(t, db, "tg-10001", "alice", 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	// Wait for at least one block notification, then shut down.
	select {
	case block := <-engine.BlockNotifications():
		if block.Number != 1 {
			t.Errorf("expected block #1, got #%d", block.Number)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for a mined block")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for engine shutdown")
	}
}
