// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/csmine/csmined/errors"
)

// LatestBoltDBVersion is the most recent bolt database schema version.
const LatestBoltDBVersion = 1

var (
	// gameBkt is the main bucket of csmined, all other buckets are nested
	// within it.
	gameBkt = []byte("gamebkt")
	// userBkt stores all registered users.
	userBkt = []byte("userbkt")
	// equipmentBkt stores all owned mining equipment.
	equipmentBkt = []byte("equipmentbkt")
	// blockBkt stores all mined blocks, keyed by big-endian block number so
	// cursors iterate in mint order.
	blockBkt = []byte("blockbkt")
	// rewardBkt stores all per-miner block rewards, keyed by a
	// creation-time-prefixed id so cursors iterate in creation order.
	rewardBkt = []byte("rewardbkt")
	// boostBkt stores all purchased boosts.
	boostBkt = []byte("boostbkt")
	// settingsBkt stores admin controlled game settings.
	settingsBkt = []byte("settingsbkt")
	// versionK is the key of the current version of the database.
	versionK = []byte("version")
	// BoltBackupFile is the database backup file name.
	BoltBackupFile = "backup.kv"
)

// BoltDB is a wrapper around bolt.DB which implements the Database
// interface.
type BoltDB struct {
	DB *bolt.DB
}

// nanoToBigEndianBytes returns an 8-byte big endian representation of the
// provided nanosecond time.
func nanoToBigEndianBytes(nano int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(nano))
	return b
}

// blockKey returns the big endian key of the provided block number.
func blockKey(number uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, number)
	return b
}

// openBoltDB creates a connection to the provided bolt storage, the
// returned connection storage should always be closed after use.
func openBoltDB(storage string) (*BoltDB, error) {
	const funcName = "openBoltDB"
	db, err := bolt.Open(storage, 0600,
		&bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open db file: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}
	return &BoltDB{db}, nil
}

// fetchBucket is a helper function for getting the requested bucket nested
// in the game bucket.
func fetchBucket(tx *bolt.Tx, bucketID []byte) (*bolt.Bucket, error) {
	const funcName = "fetchBucket"
	pbkt, err := fetchGameBucket(tx)
	if err != nil {
		return nil, err
	}
	bkt := pbkt.Bucket(bucketID)
	if bkt == nil {
		desc := fmt.Sprintf("%s: bucket %s not found", funcName,
			string(bucketID))
		return nil, errors.DBError(errors.StorageNotFound, desc)
	}
	return bkt, nil
}

// fetchGameBucket is a helper function for getting the game bucket.
func fetchGameBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	const funcName = "fetchGameBucket"
	pbkt := tx.Bucket(gameBkt)
	if pbkt == nil {
		desc := fmt.Sprintf("%s: bucket %s not found", funcName,
			string(gameBkt))
		return nil, errors.DBError(errors.StorageNotFound, desc)
	}
	return pbkt, nil
}

// createNestedBucket creates a nested child bucket of the provided parent.
func createNestedBucket(parent *bolt.Bucket, child []byte) error {
	const funcName = "createNestedBucket"
	_, err := parent.CreateBucketIfNotExists(child)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to create %s bucket: %v",
			funcName, string(child), err)
		return errors.DBError(errors.CreateStorage, desc)
	}
	return nil
}

// createBuckets creates all storage buckets of the game.
func createBuckets(db *BoltDB) error {
	const funcName = "createBuckets"
	err := db.DB.Update(func(tx *bolt.Tx) error {
		var err error
		pbkt := tx.Bucket(gameBkt)
		if pbkt == nil {
			pbkt, err = tx.CreateBucketIfNotExists(gameBkt)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to create %s bucket: %v",
					funcName, string(gameBkt), err)
				return errors.DBError(errors.CreateStorage, desc)
			}
			vbytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(vbytes, LatestBoltDBVersion)
			err = pbkt.Put(versionK, vbytes)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to persist version: %v",
					funcName, err)
				return errors.DBError(errors.PersistEntry, desc)
			}
		}

		for _, child := range [][]byte{userBkt, equipmentBkt, blockBkt,
			rewardBkt, boostBkt, settingsBkt} {
			err = createNestedBucket(pbkt, child)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// InitBoltDB handles the creation of a bolt database.
func InitBoltDB(dbFile string) (*BoltDB, error) {
	const funcName = "InitBoltDB"
	db, err := openBoltDB(dbFile)
	if err != nil {
		return nil, err
	}

	err = createBuckets(db)
	if err != nil {
		return nil, err
	}

	err = db.DB.View(func(tx *bolt.Tx) error {
		pbkt, err := fetchGameBucket(tx)
		if err != nil {
			return err
		}
		vbytes := pbkt.Get(versionK)
		if vbytes == nil {
			desc := fmt.Sprintf("%s: db version not found", funcName)
			return errors.DBError(errors.ValueNotFound, desc)
		}
		version := binary.LittleEndian.Uint32(vbytes)
		if version != LatestBoltDBVersion {
			desc := fmt.Sprintf("%s: unsupported db version %d", funcName,
				version)
			return errors.DBError(errors.DBUpgrade, desc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Close closes the bolt database connection.
func (db *BoltDB) Close() error {
	err := db.DB.Close()
	if err != nil {
		desc := fmt.Sprintf("unable to close bolt database: %v", err)
		return errors.DBError(errors.DBClose, desc)
	}
	return nil
}

// Purge removes all game data from the database and recreates empty
// buckets. This is only used by the data-reset flow.
func (db *BoltDB) Purge() error {
	const funcName = "purge"
	err := db.DB.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(gameBkt)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to delete %s bucket: %v",
				funcName, string(gameBkt), err)
			return errors.DBError(errors.DeleteEntry, desc)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return createBuckets(db)
}

// Backup saves a copy of the db to file. The file will be saved in the same
// directory as the current db file.
func (db *BoltDB) Backup(fileName string) error {
	backupPath := filepath.Join(filepath.Dir(db.DB.Path()), fileName)
	return db.DB.View(func(tx *bolt.Tx) error {
		err := tx.CopyFile(backupPath, 0600)
		if err != nil {
			desc := fmt.Sprintf("unable to backup db: %v", err)
			return errors.DBError(errors.Backup, desc)
		}
		return nil
	})
}

// fetchGameSetting retrieves the game setting stored under the provided
// key. Returns an error with kind errors.ValueNotFound if no entry exists.
func (db *BoltDB) fetchGameSetting(key string) (string, error) {
	const funcName = "fetchGameSetting"
	var value string
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, settingsBkt)
		if err != nil {
			return err
		}
		v := bkt.Get([]byte(key))
		if v == nil {
			desc := fmt.Sprintf("%s: no value found for %s", funcName, key)
			return errors.DBError(errors.ValueNotFound, desc)
		}
		value = string(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// persistGameSetting stores the provided game setting, replacing any
// existing value under the same key.
func (db *BoltDB) persistGameSetting(key string, value string) error {
	const funcName = "persistGameSetting"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, settingsBkt)
		if err != nil {
			return err
		}
		err = bkt.Put([]byte(key), []byte(value))
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist setting %s: %v",
				funcName, key, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// persistUser saves the user to the database. Returns an error if a user
// already exists with the same ID.
func (db *BoltDB) persistUser(user *User) error {
	const funcName = "persistUser"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, userBkt)
		if err != nil {
			return err
		}

		if bkt.Get([]byte(user.UUID)) != nil {
			desc := fmt.Sprintf("%s: user %s already exists", funcName,
				user.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}

		uBytes, err := json.Marshal(user)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal user bytes: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put([]byte(user.UUID), uBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist user entry: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// fetchUser fetches the user referenced by the provided id. Returns an
// error if the user is not found.
func (db *BoltDB) fetchUser(id string) (*User, error) {
	const funcName = "fetchUser"
	var user User
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, userBkt)
		if err != nil {
			return err
		}
		v := bkt.Get([]byte(id))
		if v == nil {
			desc := fmt.Sprintf("%s: no user found for id %s", funcName, id)
			return errors.DBError(errors.ValueNotFound, desc)
		}
		err = json.Unmarshal(v, &user)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to unmarshal user: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// fetchUserByMinerID fetches the user referenced by the provided mining
// identifier. Returns an error if the user is not found.
func (db *BoltDB) fetchUserByMinerID(minerID string) (*User, error) {
	const funcName = "fetchUserByMinerID"
	var user *User
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, userBkt)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var u User
			err := json.Unmarshal(v, &u)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal user: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if u.MinerID == minerID {
				user = &u
				return nil
			}
		}
		desc := fmt.Sprintf("%s: no user found for miner id %s", funcName,
			minerID)
		return errors.DBError(errors.ValueNotFound, desc)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// fetchAllUsers returns all registered users.
func (db *BoltDB) fetchAllUsers() ([]*User, error) {
	const funcName = "fetchAllUsers"
	users := make([]*User, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, userBkt)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var user User
			err := json.Unmarshal(v, &user)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal user: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			users = append(users, &user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// updateUserHashrate overwrites the cached total hashrate of the user
// referenced by the provided mining identifier.
func (db *BoltDB) updateUserHashrate(minerID string, hashrate float64) error {
	const funcName = "updateUserHashrate"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, userBkt)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var user User
			err := json.Unmarshal(v, &user)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal user: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if user.MinerID != minerID {
				continue
			}

			user.TotalHashrate = hashrate
			uBytes, err := json.Marshal(user)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to marshal user bytes: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			err = bkt.Put(k, uBytes)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to persist user entry: %v",
					funcName, err)
				return errors.DBError(errors.PersistEntry, desc)
			}
			return nil
		}
		desc := fmt.Sprintf("%s: no user found for miner id %s", funcName,
			minerID)
		return errors.DBError(errors.ValueNotFound, desc)
	})
}

// persistEquipment saves a piece of owned equipment to the database.
func (db *BoltDB) persistEquipment(equip *Equipment) error {
	const funcName = "persistEquipment"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, equipmentBkt)
		if err != nil {
			return err
		}

		if bkt.Get([]byte(equip.UUID)) != nil {
			desc := fmt.Sprintf("%s: equipment %s already exists", funcName,
				equip.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}

		eBytes, err := json.Marshal(equip)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal equipment bytes: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put([]byte(equip.UUID), eBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist equipment entry: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// fetchMinerEquipment returns all equipment owned by the provided miner.
func (db *BoltDB) fetchMinerEquipment(minerID string) ([]*Equipment, error) {
	const funcName = "fetchMinerEquipment"
	equipment := make([]*Equipment, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, equipmentBkt)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var equip Equipment
			err := json.Unmarshal(v, &equip)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal equipment: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if equip.MinerID == minerID {
				equipment = append(equipment, &equip)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return equipment, nil
}

// persistBoost saves a boost to the database.
func (db *BoltDB) persistBoost(boost *Boost) error {
	const funcName = "persistBoost"
	err := boost.validate()
	if err != nil {
		return err
	}

	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, boostBkt)
		if err != nil {
			return err
		}

		if bkt.Get([]byte(boost.UUID)) != nil {
			desc := fmt.Sprintf("%s: boost %s already exists", funcName,
				boost.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}

		bBytes, err := json.Marshal(boost)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal boost bytes: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put([]byte(boost.UUID), bBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist boost entry: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// fetchActiveBoosts returns all boosts which are flagged active and expire
// after the provided time.
func (db *BoltDB) fetchActiveBoosts(now int64) ([]*Boost, error) {
	const funcName = "fetchActiveBoosts"
	boosts := make([]*Boost, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, boostBkt)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var boost Boost
			err := json.Unmarshal(v, &boost)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal boost: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if boost.Active && !boost.Expired(now) {
				boosts = append(boosts, &boost)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return boosts, nil
}

// fetchBlock fetches the block referenced by the provided number. Returns
// an error if the block is not found.
func (db *BoltDB) fetchBlock(number uint64) (*Block, error) {
	const funcName = "fetchBlock"
	var block Block
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, blockBkt)
		if err != nil {
			return err
		}
		v := bkt.Get(blockKey(number))
		if v == nil {
			desc := fmt.Sprintf("%s: no block found for number %d", funcName,
				number)
			return errors.DBError(errors.BlockNotFound, desc)
		}
		err = json.Unmarshal(v, &block)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to unmarshal block: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// fetchLastBlockNumber returns the highest block number in the database, or
// zero if no blocks have been mined.
func (db *BoltDB) fetchLastBlockNumber() (uint64, error) {
	var number uint64
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, blockBkt)
		if err != nil {
			return err
		}
		k, _ := bkt.Cursor().Last()
		if k != nil {
			number = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return number, nil
}

// fetchLatestBlocks returns the most recently mined blocks up to the
// provided limit. List is ordered by block number, most recent comes first.
func (db *BoltDB) fetchLatestBlocks(limit int) ([]*Block, error) {
	const funcName = "fetchLatestBlocks"
	blocks := make([]*Block, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, blockBkt)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		for k, v := c.Last(); k != nil && len(blocks) < limit; k, v = c.Prev() {
			var block Block
			err := json.Unmarshal(v, &block)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal block: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			blocks = append(blocks, &block)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// persistMinedBlock writes one complete mining round in a single bolt
// transaction: the block record, one reward row per participating miner,
// the matching balance credits and the deactivation of boosts expired as of
// the provided time. A failure at any point rolls back the entire round.
func (db *BoltDB) persistMinedBlock(block *Block, rewards []*Reward, expiredAsOf int64) error {
	const funcName = "persistMinedBlock"
	return db.DB.Update(func(tx *bolt.Tx) error {
		blkBkt, err := fetchBucket(tx, blockBkt)
		if err != nil {
			return err
		}

		key := blockKey(block.Number)
		if blkBkt.Get(key) != nil {
			desc := fmt.Sprintf("%s: block %d already exists", funcName,
				block.Number)
			return errors.DBError(errors.ValueFound, desc)
		}

		bBytes, err := json.Marshal(block)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal block bytes: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = blkBkt.Put(key, bBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist block entry: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}

		rwdBkt, err := fetchBucket(tx, rewardBkt)
		if err != nil {
			return err
		}
		usrBkt, err := fetchBucket(tx, userBkt)
		if err != nil {
			return err
		}

		for _, reward := range rewards {
			rBytes, err := json.Marshal(reward)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to marshal reward bytes: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			err = rwdBkt.Put([]byte(reward.UUID), rBytes)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to persist reward entry: %v",
					funcName, err)
				return errors.DBError(errors.PersistEntry, desc)
			}

			err = creditUserBalance(usrBkt, reward.MinerID, reward.Amount)
			if err != nil {
				return err
			}
		}

		bstBkt, err := fetchBucket(tx, boostBkt)
		if err != nil {
			return err
		}
		return deactivateBoosts(bstBkt, expiredAsOf)
	})
}

// creditUserBalance increments the balance of the user referenced by the
// provided mining identifier. The read and write both occur within the
// caller's serialized update transaction.
func creditUserBalance(bkt *bolt.Bucket, minerID string, amount float64) error {
	const funcName = "creditUserBalance"
	c := bkt.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var user User
		err := json.Unmarshal(v, &user)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to unmarshal user: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		if user.MinerID != minerID {
			continue
		}

		user.Balance += amount
		uBytes, err := json.Marshal(user)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal user bytes: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put(k, uBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist user entry: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	}
	desc := fmt.Sprintf("%s: no user found for miner id %s", funcName,
		minerID)
	return errors.DBError(errors.ValueNotFound, desc)
}

// deactivateBoosts flips the active flag of all boosts expired as of the
// provided time.
func deactivateBoosts(bkt *bolt.Bucket, expiredAsOf int64) error {
	const funcName = "deactivateBoosts"
	type update struct {
		key   []byte
		value []byte
	}
	toUpdate := make([]update, 0)
	c := bkt.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var boost Boost
		err := json.Unmarshal(v, &boost)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to unmarshal boost: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		if !boost.Active || !boost.Expired(expiredAsOf) {
			continue
		}

		boost.Active = false
		bBytes, err := json.Marshal(&boost)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal boost bytes: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		kCopy := append([]byte(nil), k...)
		toUpdate = append(toUpdate, update{key: kCopy, value: bBytes})
	}
	for _, entry := range toUpdate {
		err := bkt.Put(entry.key, entry.value)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist boost entry: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
	}
	return nil
}

// fetchMinerRewards returns rewards credited to the provided miner, ordered
// by creation time with the most recent first, up to the provided limit.
func (db *BoltDB) fetchMinerRewards(minerID string, limit int) ([]*Reward, error) {
	const funcName = "fetchMinerRewards"
	rewards := make([]*Reward, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, rewardBkt)
		if err != nil {
			return err
		}
		c := bkt.Cursor()
		for k, v := c.Last(); k != nil && len(rewards) < limit; k, v = c.Prev() {
			var reward Reward
			err := json.Unmarshal(v, &reward)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal reward: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if reward.MinerID == minerID {
				rewards = append(rewards, &reward)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rewards, nil
}
