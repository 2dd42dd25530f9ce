// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/csmine/csmined/errors"
)

// setupBoltDB creates a bolt database in a temporary directory for testing.
func setupBoltDB(t *testing.T) *BoltDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tdb")
	db, err := InitBoltDB(dbPath)
	if err != nil {
		t.Fatalf("unable to create test db: %v", err)
	}
	t.Cleanup(func() {
		err := db.Close()
		if err != nil {
			t.Errorf("unable to close test db: %v", err)
		}
	})
	return db
}

// setupPostgresDB creates a postgres database connection for testing. The
// test is skipped unless a local postgres instance is made available via
// CSMINED_POSTGRES_TEST.
func setupPostgresDB(t *testing.T) *PostgresDB {
	t.Helper()
	if os.Getenv("CSMINED_POSTGRES_TEST") == "" {
		t.Skip("set CSMINED_POSTGRES_TEST to run postgres database tests")
	}
	db, err := InitPostgresDB("127.0.0.1", 5432, "csminedpguser",
		"csminedpgpass", "csminedtestdb")
	if err != nil {
		t.Fatalf("unable to connect to postgres: %v", err)
	}
	t.Cleanup(func() {
		err := db.Purge()
		if err != nil {
			t.Errorf("unable to purge test db: %v", err)
		}
		err = db.Close()
		if err != nil {
			t.Errorf("unable to close test db: %v", err)
		}
	})
	return db
}

func TestBoltDB(t *testing.T) {
	testDatabase(t, setupBoltDB(t))
}

func TestPostgresDB(t *testing.T) {
	testDatabase(t, setupPostgresDB(t))
}

// testDatabase exercises the full Database contract against the provided
// implementation.
func testDatabase(t *testing.T, db Database) {
	// Persist some users.
	userA := NewUser("tg-10001", "alice")
	userB := NewUser("tg-10002", "bob")
	err := db.persistUser(userA)
	if err != nil {
		t.Fatalf("unable to persist user: %v", err)
	}
	err = db.persistUser(userB)
	if err != nil {
		t.Fatalf("unable to persist user: %v", err)
	}

	// Persisting a user with an existing id should fail.
	err = db.persistUser(userA)
	if !errors.Is(err, errors.ValueFound) {
		t.Fatalf("expected ValueFound error, got %v", err)
	}

	// Ensure users can be fetched by id and by miner id.
	fetched, err := db.fetchUser(userA.UUID)
	if err != nil {
		t.Fatalf("unable to fetch user: %v", err)
	}
	if fetched.Username != userA.Username {
		t.Fatalf("expected username %s, got %s", userA.Username,
			fetched.Username)
	}
	fetched, err = db.fetchUserByMinerID(userB.MinerID)
	if err != nil {
		t.Fatalf("unable to fetch user by miner id: %v", err)
	}
	if fetched.UUID != userB.UUID {
		t.Fatalf("expected user %s, got %s", userB.UUID, fetched.UUID)
	}
	_, err = db.fetchUser("tg-99999")
	if !errors.Is(err, errors.ValueNotFound) {
		t.Fatalf("expected ValueNotFound error, got %v", err)
	}

	users, err := db.fetchAllUsers()
	if err != nil {
		t.Fatalf("unable to fetch all users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	// Persist equipment and update the cached hashrate.
	rig := NewEquipment(userA.MinerID, "basic-rig", 1, 100)
	err = db.persistEquipment(rig)
	if err != nil {
		t.Fatalf("unable to persist equipment: %v", err)
	}
	equipment, err := db.fetchMinerEquipment(userA.MinerID)
	if err != nil {
		t.Fatalf("unable to fetch equipment: %v", err)
	}
	if len(equipment) != 1 {
		t.Fatalf("expected 1 piece of equipment, got %d", len(equipment))
	}
	err = db.updateUserHashrate(userA.MinerID, 100)
	if err != nil {
		t.Fatalf("unable to update hashrate: %v", err)
	}
	fetched, err = db.fetchUser(userA.UUID)
	if err != nil {
		t.Fatalf("unable to fetch user: %v", err)
	}
	if fetched.TotalHashrate != 100 {
		t.Fatalf("expected hashrate 100, got %v", fetched.TotalHashrate)
	}
	err = db.updateUserHashrate("unknown-miner", 100)
	if !errors.Is(err, errors.ValueNotFound) {
		t.Fatalf("expected ValueNotFound error, got %v", err)
	}

	// Persist a boost and ensure only unexpired active boosts are fetched.
	boost := NewBoost(userA.MinerID, HashrateBoost, 25, time.Hour)
	err = db.persistBoost(boost)
	if err != nil {
		t.Fatalf("unable to persist boost: %v", err)
	}
	expired := NewBoost(userB.MinerID, LuckBoost, 10, time.Hour)
	expired.ExpiresOn = time.Now().Add(-time.Hour).UnixNano()
	err = db.persistBoost(expired)
	if err != nil {
		t.Fatalf("unable to persist boost: %v", err)
	}
	boosts, err := db.fetchActiveBoosts(time.Now().UnixNano())
	if err != nil {
		t.Fatalf("unable to fetch active boosts: %v", err)
	}
	if len(boosts) != 1 {
		t.Fatalf("expected 1 active boost, got %d", len(boosts))
	}
	if boosts[0].UUID != boost.UUID {
		t.Fatalf("expected boost %s, got %s", boost.UUID, boosts[0].UUID)
	}

	// Boosts of unknown kinds are rejected on the write path.
	err = db.persistBoost(NewBoost(userA.MinerID, "turbo-boost", 25, time.Hour))
	if !errors.Is(err, errors.BoostKind) {
		t.Fatalf("expected BoostKind error, got %v", err)
	}

	// Game settings.
	_, err = db.fetchGameSetting(miningPausedKey)
	if !errors.Is(err, errors.ValueNotFound) {
		t.Fatalf("expected ValueNotFound error, got %v", err)
	}
	err = db.persistGameSetting(miningPausedKey, "true")
	if err != nil {
		t.Fatalf("unable to persist setting: %v", err)
	}
	value, err := db.fetchGameSetting(miningPausedKey)
	if err != nil {
		t.Fatalf("unable to fetch setting: %v", err)
	}
	if value != "true" {
		t.Fatalf("expected setting value true, got %s", value)
	}
	err = db.persistGameSetting(miningPausedKey, "false")
	if err != nil {
		t.Fatalf("unable to update setting: %v", err)
	}
	value, err = db.fetchGameSetting(miningPausedKey)
	if err != nil {
		t.Fatalf("unable to fetch setting: %v", err)
	}
	if value != "false" {
		t.Fatalf("expected setting value false, got %s", value)
	}

	// No blocks mined yet.
	number, err := db.fetchLastBlockNumber()
	if err != nil {
		t.Fatalf("unable to fetch last block number: %v", err)
	}
	if number != 0 {
		t.Fatalf("expected last block number 0, got %d", number)
	}

	// Persist a mined round and ensure its writes are all visible.
	block := NewBlock(1, 100000, 100, 1)
	reward := NewReward(1, userA.MinerID, 100, 100, 100000)
	err = db.persistMinedBlock(block, []*Reward{reward},
		time.Now().UnixNano())
	if err != nil {
		t.Fatalf("unable to persist mined block: %v", err)
	}

	fetchedBlock, err := db.fetchBlock(1)
	if err != nil {
		t.Fatalf("unable to fetch block: %v", err)
	}
	if fetchedBlock.TotalMiners != 1 {
		t.Fatalf("expected 1 miner, got %d", fetchedBlock.TotalMiners)
	}
	_, err = db.fetchBlock(2)
	if !errors.Is(err, errors.BlockNotFound) {
		t.Fatalf("expected BlockNotFound error, got %v", err)
	}

	number, err = db.fetchLastBlockNumber()
	if err != nil {
		t.Fatalf("unable to fetch last block number: %v", err)
	}
	if number != 1 {
		t.Fatalf("expected last block number 1, got %d", number)
	}

	blocks, err := db.fetchLatestBlocks(10)
	if err != nil {
		t.Fatalf("unable to fetch latest blocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}

	rewards, err := db.fetchMinerRewards(userA.MinerID, 10)
	if err != nil {
		t.Fatalf("unable to fetch rewards: %v", err)
	}
	if len(rewards) != 1 {
		t.Fatalf("expected 1 reward, got %d", len(rewards))
	}
	if rewards[0].Amount != 100000 {
		t.Fatalf("expected reward amount 100000, got %v", rewards[0].Amount)
	}

	fetched, err = db.fetchUser(userA.UUID)
	if err != nil {
		t.Fatalf("unable to fetch user: %v", err)
	}
	if fetched.Balance != 100000 {
		t.Fatalf("expected balance 100000, got %v", fetched.Balance)
	}

	// Re-minting the same block number must fail.
	err = db.persistMinedBlock(block, []*Reward{reward},
		time.Now().UnixNano())
	if !errors.Is(err, errors.ValueFound) {
		t.Fatalf("expected ValueFound error, got %v", err)
	}

	// Purge all game data.
	err = db.Purge()
	if err != nil {
		t.Fatalf("unable to purge db: %v", err)
	}
}

// TestBoltDBBackup ensures a bolt database can be backed up to file.
func TestBoltDBBackup(t *testing.T) {
	db := setupBoltDB(t)

	err := db.persistUser(NewUser("tg-10001", "alice"))
	if err != nil {
		t.Fatalf("unable to persist user: %v", err)
	}

	err = db.Backup(BoltBackupFile)
	if err != nil {
		t.Fatalf("unable to backup db: %v", err)
	}

	backupPath := filepath.Join(filepath.Dir(db.DB.Path()), BoltBackupFile)
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("expected backup file at %s: %v", backupPath, err)
	}
}
