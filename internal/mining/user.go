// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MinerID generates the mining identifier of a user. The miner id is the
// join key for reward and boost records and never changes for the life of
// the account.
func MinerID(username string, createdOn int64) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%v.%v", username, createdOn)))
	return hex.EncodeToString(hash[:])
}

// User represents a participating player of the game.
//
// TotalHashrate is a denormalized cache of the sum of hashrates over the
// user's owned equipment. Equipment purchase and upgrade flows keep it
// current; the reconciliation pass corrects any drift.
type User struct {
	UUID          string  `json:"uuid"`
	Username      string  `json:"username"`
	MinerID       string  `json:"minerid"`
	Balance       float64 `json:"balance"`
	TotalHashrate float64 `json:"totalhashrate"`
	Admin         bool    `json:"admin"`
	CreatedOn     int64   `json:"createdon"`
}

// NewUser creates a new user with the provided id and username.
func NewUser(uuid string, username string) *User {
	now := time.Now().UnixNano()
	return &User{
		UUID:      uuid,
		Username:  username,
		MinerID:   MinerID(username, now),
		CreatedOn: now,
	}
}
