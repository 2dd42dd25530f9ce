// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package errors

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific error.
const (
	// ------------------------------------------
	// Errors related to database operations.
	// ------------------------------------------

	// ValueNotFound indicates no value found.
	ValueNotFound = ErrorKind("ValueNotFound")

	// ValueFound indicates an unexpected value found.
	ValueFound = ErrorKind("ValueFound")

	// StorageNotFound indicates a missing storage error.
	StorageNotFound = ErrorKind("StorageNotFound")

	// CreateStorage indicates a storage creation error.
	CreateStorage = ErrorKind("CreateStorage")

	// DBOpen indicates a database open error.
	DBOpen = ErrorKind("DBOpen")

	// DBClose indicates a database close error.
	DBClose = ErrorKind("DBClose")

	// DBUpgrade indicates a database upgrade error.
	DBUpgrade = ErrorKind("DBUpgrade")

	// PersistEntry indicates a database persistence error.
	PersistEntry = ErrorKind("PersistEntry")

	// DeleteEntry indicates a database entry delete error.
	DeleteEntry = ErrorKind("DeleteEntry")

	// FetchEntry indicates a database entry fetching error.
	FetchEntry = ErrorKind("FetchEntry")

	// Backup indicates database backup error.
	Backup = ErrorKind("Backup")

	// Parse indicates a parsing error.
	Parse = ErrorKind("Parse")

	// Decode indicates a decoding error.
	Decode = ErrorKind("Decode")

	// Unsupported indicates unsupported functionality.
	Unsupported = ErrorKind("Unsupported")

	// ------------------------------------------
	// Errors related to mining operations.
	// ------------------------------------------

	// MineBlock indicates a block minting error.
	MineBlock = ErrorKind("MineBlock")

	// BlockNotFound indicates a block not found error.
	BlockNotFound = ErrorKind("BlockNotFound")

	// DivideByZero indicates a division by zero error.
	DivideByZero = ErrorKind("DivideByZero")

	// BoostKind indicates an unknown boost kind.
	BoostKind = ErrorKind("BoostKind")

	// Reconcile indicates a hashrate reconciliation error.
	Reconcile = ErrorKind("Reconcile")

	// LimitExceeded indicates a rate limit exhaustion error.
	LimitExceeded = ErrorKind("LimitExceeded")

	// ContextCancelled indicates a context cancellation related error.
	ContextCancelled = ErrorKind("ContextCancelled")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error. It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for
// the error by checking the underlying error.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// MiningError creates an Error given a set of arguments. This should only be
// used when creating errors related to the mining engine and its processes.
func MiningError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// DBError creates an Error given a set of arguments. This should only be
// used when creating errors related to the database.
func DBError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
