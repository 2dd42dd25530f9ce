// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/csmine/csmined/errors"
)

// PostgresDB is a wrapper around sql.DB which implements the Database
// interface.
type PostgresDB struct {
	DB *sql.DB
}

// InitPostgresDB connects to the specified database and creates all tables
// required by csmined.
func InitPostgresDB(host string, port uint32, user, pass, dbName string) (*PostgresDB, error) {
	const funcName = "InitPostgresDB"

	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s "+
		"password=%s dbname=%s sslmode=disable",
		host, port, user, pass, dbName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open postgres: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}

	// Send a Ping() to validate the db connection. This is because the Open()
	// func does not actually create a connection to the database, it just
	// validates the provided arguments.
	err = db.Ping()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to connect to postgres: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}

	// Create all of the tables required by csmined.
	for _, stmt := range []string{createTableMetadata, createTableUsers,
		createTableEquipment, createTableBlocks, createTableRewards,
		createTableBoosts} {
		_, err = db.Exec(stmt)
		if err != nil {
			return nil, err
		}
	}

	return &PostgresDB{db}, nil
}

// Close closes the postgres database connection.
func (db *PostgresDB) Close() error {
	err := db.DB.Close()
	if err != nil {
		desc := fmt.Sprintf("unable to close postgres database: %v", err)
		return errors.DBError(errors.DBClose, desc)
	}
	return nil
}

// Purge drops all csmined tables. This is only used by the data-reset
// flow.
func (db *PostgresDB) Purge() error {
	_, err := db.DB.Exec(purgeDB)
	return err
}

// Backup is not implemented for the postgres database.
func (db *PostgresDB) Backup(fileName string) error {
	const desc = "backup is not implemented for postgres database"
	return errors.DBError(errors.Unsupported, desc)
}

// decodeUserRows deserializes the provided SQL rows into a slice of User
// structs.
func decodeUserRows(rows *sql.Rows) ([]*User, error) {
	const funcName = "decodeUserRows"
	defer rows.Close()

	var toReturn []*User
	for rows.Next() {
		var uuid, username, minerID string
		var balance, totalHashrate float64
		var admin bool
		var createdOn int64
		err := rows.Scan(&uuid, &username, &minerID, &balance,
			&totalHashrate, &admin, &createdOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to decode user row: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}

		user := &User{uuid, username, minerID, balance, totalHashrate,
			admin, createdOn}
		toReturn = append(toReturn, user)
	}

	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: %v", funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}

	return toReturn, nil
}

// decodeBlockRows deserializes the provided SQL rows into a slice of Block
// structs.
func decodeBlockRows(rows *sql.Rows) ([]*Block, error) {
	const funcName = "decodeBlockRows"
	defer rows.Close()

	var toReturn []*Block
	for rows.Next() {
		var number uint64
		var reward, totalHashrate float64
		var totalMiners, difficulty uint32
		var createdOn int64
		err := rows.Scan(&number, &reward, &totalHashrate, &totalMiners,
			&difficulty, &createdOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to decode block row: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}

		block := &Block{number, reward, totalHashrate, totalMiners,
			difficulty, createdOn}
		toReturn = append(toReturn, block)
	}

	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: %v", funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}

	return toReturn, nil
}

// decodeRewardRows deserializes the provided SQL rows into a slice of Reward
// structs.
func decodeRewardRows(rows *sql.Rows) ([]*Reward, error) {
	const funcName = "decodeRewardRows"
	defer rows.Close()

	var toReturn []*Reward
	for rows.Next() {
		var uuid, minerID string
		var blockNumber uint64
		var hashrate, sharePercent, amount float64
		var createdOn int64
		err := rows.Scan(&uuid, &blockNumber, &minerID, &hashrate,
			&sharePercent, &amount, &createdOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to decode reward row: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}

		reward := &Reward{uuid, blockNumber, minerID, hashrate,
			sharePercent, amount, createdOn}
		toReturn = append(toReturn, reward)
	}

	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: %v", funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}

	return toReturn, nil
}

// decodeBoostRows deserializes the provided SQL rows into a slice of Boost
// structs.
func decodeBoostRows(rows *sql.Rows) ([]*Boost, error) {
	const funcName = "decodeBoostRows"
	defer rows.Close()

	var toReturn []*Boost
	for rows.Next() {
		var uuid, minerID, kind string
		var percent float64
		var activatedOn, expiresOn int64
		var active bool
		err := rows.Scan(&uuid, &minerID, &kind, &percent, &activatedOn,
			&expiresOn, &active)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to decode boost row: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}

		boost := &Boost{uuid, minerID, kind, percent, activatedOn,
			expiresOn, active}
		toReturn = append(toReturn, boost)
	}

	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: %v", funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}

	return toReturn, nil
}

// fetchGameSetting retrieves the game setting stored under the provided
// key. Returns an error with kind errors.ValueNotFound if no entry exists.
func (db *PostgresDB) fetchGameSetting(key string) (string, error) {
	const funcName = "fetchGameSetting"
	var value string
	err := db.DB.QueryRow(selectGameSetting, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			desc := fmt.Sprintf("%s: no value found for %s", funcName, key)
			return "", errors.DBError(errors.ValueNotFound, desc)
		}

		return "", err
	}
	return value, nil
}

// persistGameSetting stores the provided game setting, replacing any
// existing value under the same key.
func (db *PostgresDB) persistGameSetting(key string, value string) error {
	_, err := db.DB.Exec(insertGameSetting, key, value)
	return err
}

// persistUser saves the user to the database. Returns an error if a user
// already exists with the same ID.
func (db *PostgresDB) persistUser(user *User) error {
	const funcName = "persistUser"
	_, err := db.DB.Exec(insertUser, user.UUID, user.Username, user.MinerID,
		user.Balance, user.TotalHashrate, user.Admin, user.CreatedOn)
	if err != nil {
		var pqError *pq.Error
		if errors.As(err, &pqError) {
			if pqError.Code.Name() == "unique_violation" {
				desc := fmt.Sprintf("%s: user %s already exists", funcName,
					user.UUID)
				return errors.DBError(errors.ValueFound, desc)
			}
		}

		return err
	}
	return nil
}

// fetchUser fetches the user referenced by the provided id. Returns an
// error if the user is not found.
func (db *PostgresDB) fetchUser(id string) (*User, error) {
	const funcName = "fetchUser"
	return db.fetchUserRow(funcName, selectUser, id)
}

// fetchUserByMinerID fetches the user referenced by the provided mining
// identifier. Returns an error if the user is not found.
func (db *PostgresDB) fetchUserByMinerID(minerID string) (*User, error) {
	const funcName = "fetchUserByMinerID"
	return db.fetchUserRow(funcName, selectUserByMinerID, minerID)
}

// fetchUserRow scans a single user row using the provided query and id.
func (db *PostgresDB) fetchUserRow(funcName string, query string, id string) (*User, error) {
	var uuid, username, minerID string
	var balance, totalHashrate float64
	var admin bool
	var createdOn int64
	err := db.DB.QueryRow(query, id).Scan(&uuid, &username, &minerID,
		&balance, &totalHashrate, &admin, &createdOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			desc := fmt.Sprintf("%s: no user found for id %s", funcName, id)
			return nil, errors.DBError(errors.ValueNotFound, desc)
		}

		return nil, err
	}
	return &User{uuid, username, minerID, balance, totalHashrate, admin,
		createdOn}, nil
}

// fetchAllUsers returns all registered users.
func (db *PostgresDB) fetchAllUsers() ([]*User, error) {
	const funcName = "fetchAllUsers"
	rows, err := db.DB.Query(selectAllUsers)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch users: %v", funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}

	return decodeUserRows(rows)
}

// updateUserHashrate overwrites the cached total hashrate of the user
// referenced by the provided mining identifier.
func (db *PostgresDB) updateUserHashrate(minerID string, hashrate float64) error {
	const funcName = "updateUserHashrate"

	result, err := db.DB.Exec(updateUserHashrate, minerID, hashrate)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		desc := fmt.Sprintf("%s: no user found for miner id %s", funcName,
			minerID)
		return errors.DBError(errors.ValueNotFound, desc)
	}

	return nil
}

// persistEquipment saves a piece of owned equipment to the database.
func (db *PostgresDB) persistEquipment(equip *Equipment) error {
	const funcName = "persistEquipment"
	_, err := db.DB.Exec(insertEquipment, equip.UUID, equip.MinerID,
		equip.Name, equip.Level, equip.Hashrate, equip.CreatedOn)
	if err != nil {
		var pqError *pq.Error
		if errors.As(err, &pqError) {
			if pqError.Code.Name() == "unique_violation" {
				desc := fmt.Sprintf("%s: equipment %s already exists",
					funcName, equip.UUID)
				return errors.DBError(errors.ValueFound, desc)
			}
		}

		return err
	}
	return nil
}

// fetchMinerEquipment returns all equipment owned by the provided miner.
func (db *PostgresDB) fetchMinerEquipment(minerID string) ([]*Equipment, error) {
	const funcName = "fetchMinerEquipment"
	rows, err := db.DB.Query(selectMinerEquipment, minerID)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch equipment of %s: %v",
			funcName, minerID, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	defer rows.Close()

	var toReturn []*Equipment
	for rows.Next() {
		var uuid, owner, name string
		var level uint32
		var hashrate float64
		var createdOn int64
		err := rows.Scan(&uuid, &owner, &name, &level, &hashrate, &createdOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to decode equipment row: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}

		equip := &Equipment{uuid, owner, name, level, hashrate, createdOn}
		toReturn = append(toReturn, equip)
	}

	err = rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: %v", funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}

	return toReturn, nil
}

// persistBoost saves a boost to the database.
func (db *PostgresDB) persistBoost(boost *Boost) error {
	const funcName = "persistBoost"
	err := boost.validate()
	if err != nil {
		return err
	}

	_, err = db.DB.Exec(insertBoost, boost.UUID, boost.MinerID, boost.Kind,
		boost.Percent, boost.ActivatedOn, boost.ExpiresOn, boost.Active)
	if err != nil {
		var pqError *pq.Error
		if errors.As(err, &pqError) {
			if pqError.Code.Name() == "unique_violation" {
				desc := fmt.Sprintf("%s: boost %s already exists", funcName,
					boost.UUID)
				return errors.DBError(errors.ValueFound, desc)
			}
		}

		return err
	}
	return nil
}

// fetchActiveBoosts returns all boosts which are flagged active and expire
// after the provided time.
func (db *PostgresDB) fetchActiveBoosts(now int64) ([]*Boost, error) {
	const funcName = "fetchActiveBoosts"
	rows, err := db.DB.Query(selectActiveBoosts, now)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch boosts: %v", funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}

	return decodeBoostRows(rows)
}

// fetchBlock fetches the block referenced by the provided number. Returns
// an error if the block is not found.
func (db *PostgresDB) fetchBlock(number uint64) (*Block, error) {
	const funcName = "fetchBlock"
	var num uint64
	var reward, totalHashrate float64
	var totalMiners, difficulty uint32
	var createdOn int64
	err := db.DB.QueryRow(selectBlock, number).Scan(&num, &reward,
		&totalHashrate, &totalMiners, &difficulty, &createdOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			desc := fmt.Sprintf("%s: no block found for number %d", funcName,
				number)
			return nil, errors.DBError(errors.BlockNotFound, desc)
		}

		return nil, err
	}
	return &Block{num, reward, totalHashrate, totalMiners, difficulty,
		createdOn}, nil
}

// fetchLastBlockNumber returns the highest block number in the database, or
// zero if no blocks have been mined.
func (db *PostgresDB) fetchLastBlockNumber() (uint64, error) {
	const funcName = "fetchLastBlockNumber"
	var number uint64
	err := db.DB.QueryRow(selectLastBlockNumber).Scan(&number)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch last block number: %v",
			funcName, err)
		return 0, errors.DBError(errors.FetchEntry, desc)
	}
	return number, nil
}

// fetchLatestBlocks returns the most recently mined blocks up to the
// provided limit. List is ordered by block number, most recent comes first.
func (db *PostgresDB) fetchLatestBlocks(limit int) ([]*Block, error) {
	const funcName = "fetchLatestBlocks"
	rows, err := db.DB.Query(selectLatestBlocks, limit)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch blocks: %v", funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}

	return decodeBlockRows(rows)
}

// persistMinedBlock writes one complete mining round in a single
// transaction: the block record, one reward row per participating miner,
// the matching balance credits and the deactivation of boosts expired as of
// the provided time. Balance credits use an in-database increment so a
// concurrent purchase flow can never be overwritten with a stale read. A
// failure at any point rolls back the entire round.
func (db *PostgresDB) persistMinedBlock(block *Block, rewards []*Reward, expiredAsOf int64) error {
	const funcName = "persistMinedBlock"

	tx, err := db.DB.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(insertBlock, block.Number, block.Reward,
		block.TotalHashrate, block.TotalMiners, block.Difficulty,
		block.CreatedOn)
	if err != nil {
		tx.Rollback()

		var pqError *pq.Error
		if errors.As(err, &pqError) {
			if pqError.Code.Name() == "unique_violation" {
				desc := fmt.Sprintf("%s: block %d already exists", funcName,
					block.Number)
				return errors.DBError(errors.ValueFound, desc)
			}
		}

		return err
	}

	for _, reward := range rewards {
		_, err = tx.Exec(insertReward, reward.UUID, reward.BlockNumber,
			reward.MinerID, reward.Hashrate, reward.SharePercent,
			reward.Amount, reward.CreatedOn)
		if err != nil {
			tx.Rollback()
			return err
		}

		_, err = tx.Exec(incrementUserBalance, reward.MinerID, reward.Amount)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	_, err = tx.Exec(deactivateExpiredBoosts, expiredAsOf)
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// fetchMinerRewards returns rewards credited to the provided miner, ordered
// by creation time with the most recent first, up to the provided limit.
func (db *PostgresDB) fetchMinerRewards(minerID string, limit int) ([]*Reward, error) {
	const funcName = "fetchMinerRewards"
	rows, err := db.DB.Query(selectMinerRewards, minerID, limit)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch rewards of %s: %v",
			funcName, minerID, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}

	return decodeRewardRows(rows)
}
