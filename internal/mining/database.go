// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

const (
	// miningPausedKey is the game setting gating the mining engine. Mining
	// is paused only when the stored value is the literal text "true"; any
	// other value, or an absent entry, means mining proceeds.
	miningPausedKey = "mining_paused"
)

// Database describes all of the functionality needed by a csmined database
// implementation.
type Database interface {
	// Utils
	Close() error
	Purge() error
	Backup(fileName string) error

	// Game settings
	fetchGameSetting(key string) (string, error)
	persistGameSetting(key string, value string) error

	// User
	fetchUser(id string) (*User, error)
	fetchUserByMinerID(minerID string) (*User, error)
	persistUser(user *User) error
	fetchAllUsers() ([]*User, error)
	updateUserHashrate(minerID string, hashrate float64) error

	// Equipment
	persistEquipment(equip *Equipment) error
	fetchMinerEquipment(minerID string) ([]*Equipment, error)

	// Boost
	persistBoost(boost *Boost) error
	fetchActiveBoosts(now int64) ([]*Boost, error)

	// Block & Reward
	fetchBlock(number uint64) (*Block, error)
	fetchLastBlockNumber() (uint64, error)
	fetchLatestBlocks(limit int) ([]*Block, error)
	persistMinedBlock(block *Block, rewards []*Reward, expiredAsOf int64) error
	fetchMinerRewards(minerID string, limit int) ([]*Reward, error)
}
