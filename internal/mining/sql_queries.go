// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

const (
	createTableMetadata = `
	CREATE TABLE IF NOT EXISTS metadata (
		key      TEXT PRIMARY KEY,
		value    TEXT NOT NULL
	);`

	createTableUsers = `
	CREATE TABLE IF NOT EXISTS users (
		uuid          TEXT    PRIMARY KEY,
		username      TEXT    NOT NULL,
		minerid       TEXT    NOT NULL UNIQUE,
		balance       FLOAT8  NOT NULL,
		totalhashrate FLOAT8  NOT NULL,
		admin         BOOLEAN NOT NULL,
		createdon     INT8    NOT NULL
	);`

	createTableEquipment = `
	CREATE TABLE IF NOT EXISTS equipment (
		uuid      TEXT   PRIMARY KEY,
		minerid   TEXT   NOT NULL,
		name      TEXT   NOT NULL,
		level     INT8   NOT NULL,
		hashrate  FLOAT8 NOT NULL,
		createdon INT8   NOT NULL
	);`

	createTableBlocks = `
	CREATE TABLE IF NOT EXISTS blocks (
		number        INT8   PRIMARY KEY,
		reward        FLOAT8 NOT NULL,
		totalhashrate FLOAT8 NOT NULL,
		totalminers   INT8   NOT NULL,
		difficulty    INT8   NOT NULL,
		createdon     INT8   NOT NULL
	);`

	createTableRewards = `
	CREATE TABLE IF NOT EXISTS rewards (
		uuid         TEXT   PRIMARY KEY,
		blocknumber  INT8   NOT NULL,
		minerid      TEXT   NOT NULL,
		hashrate     FLOAT8 NOT NULL,
		sharepercent FLOAT8 NOT NULL,
		amount       FLOAT8 NOT NULL,
		createdon    INT8   NOT NULL
	);`

	createTableBoosts = `
	CREATE TABLE IF NOT EXISTS boosts (
		uuid        TEXT    PRIMARY KEY,
		minerid     TEXT    NOT NULL,
		kind        TEXT    NOT NULL,
		percent     FLOAT8  NOT NULL,
		activatedon INT8    NOT NULL,
		expireson   INT8    NOT NULL,
		active      BOOLEAN NOT NULL
	);`

	purgeDB = `DROP TABLE IF EXISTS
		blocks,
		boosts,
		equipment,
		metadata,
		rewards,
		users;`

	selectGameSetting = `
	SELECT value
	FROM metadata
	WHERE key=$1;`

	insertGameSetting = `
	INSERT INTO metadata(key, value)
	VALUES ($1, $2)
	ON CONFLICT (key)
	DO UPDATE SET value=$2;`

	insertUser = `
	INSERT INTO users(
		uuid, username, minerid, balance, totalhashrate, admin, createdon
	) VALUES ($1,$2,$3,$4,$5,$6,$7);`

	selectUser = `
	SELECT uuid, username, minerid, balance, totalhashrate, admin, createdon
	FROM users
	WHERE uuid=$1;`

	selectUserByMinerID = `
	SELECT uuid, username, minerid, balance, totalhashrate, admin, createdon
	FROM users
	WHERE minerid=$1;`

	selectAllUsers = `
	SELECT uuid, username, minerid, balance, totalhashrate, admin, createdon
	FROM users;`

	updateUserHashrate = `
	UPDATE users
	SET totalhashrate=$2
	WHERE minerid=$1;`

	incrementUserBalance = `
	UPDATE users
	SET balance=balance+$2
	WHERE minerid=$1;`

	insertEquipment = `
	INSERT INTO equipment(
		uuid, minerid, name, level, hashrate, createdon
	) VALUES ($1,$2,$3,$4,$5,$6);`

	selectMinerEquipment = `
	SELECT uuid, minerid, name, level, hashrate, createdon
	FROM equipment
	WHERE minerid=$1;`

	insertBoost = `
	INSERT INTO boosts(
		uuid, minerid, kind, percent, activatedon, expireson, active
	) VALUES ($1,$2,$3,$4,$5,$6,$7);`

	selectActiveBoosts = `
	SELECT uuid, minerid, kind, percent, activatedon, expireson, active
	FROM boosts
	WHERE active=TRUE AND expireson>$1;`

	deactivateExpiredBoosts = `
	UPDATE boosts
	SET active=FALSE
	WHERE active=TRUE AND expireson<=$1;`

	insertBlock = `
	INSERT INTO blocks(
		number, reward, totalhashrate, totalminers, difficulty, createdon
	) VALUES ($1,$2,$3,$4,$5,$6);`

	selectBlock = `
	SELECT number, reward, totalhashrate, totalminers, difficulty, createdon
	FROM blocks
	WHERE number=$1;`

	selectLastBlockNumber = `
	SELECT COALESCE(MAX(number), 0)
	FROM blocks;`

	selectLatestBlocks = `
	SELECT number, reward, totalhashrate, totalminers, difficulty, createdon
	FROM blocks
	ORDER BY number DESC
	LIMIT $1;`

	insertReward = `
	INSERT INTO rewards(
		uuid, blocknumber, minerid, hashrate, sharepercent, amount, createdon
	) VALUES ($1,$2,$3,$4,$5,$6,$7);`

	selectMinerRewards = `
	SELECT uuid, blocknumber, minerid, hashrate, sharepercent, amount, createdon
	FROM rewards
	WHERE minerid=$1
	ORDER BY createdon DESC
	LIMIT $2;`
)
