// Package db implements the SQLite state store of the node: wallets,
// session delegations, relay nonces, elections, candidates, nullifiers,
// commitment counters and the public records of relayed calls and cast
// votes.
package db

import (
	"database/sql"
)

// SQLite represents the SQLite database
type SQLite struct {
	db *sql.DB
}

// NewSQLite returns a new *SQLite database
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{
		db: db,
	}
}

// Migrate creates the tables needed for the database
func (r *SQLite) Migrate() error {
	query := `
	PRAGMA foreign_keys = ON;
	`
	_, err := r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS wallets(
		nicHash BLOB NOT NULL PRIMARY KEY UNIQUE,
		address BLOB NOT NULL UNIQUE,
		active INTEGER NOT NULL,
		insertedDatetime DATETIME
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS sessions(
		nicHash BLOB NOT NULL,
		session BLOB NOT NULL,
		expiresAt INTEGER NOT NULL,
		PRIMARY KEY (nicHash, session),
		FOREIGN KEY(nicHash) REFERENCES wallets(nicHash)
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS nonces(
		signer BLOB NOT NULL PRIMARY KEY UNIQUE,
		nonce INTEGER NOT NULL
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS elections(
		id INTEGER NOT NULL PRIMARY KEY UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		startTime INTEGER NOT NULL,
		endTime INTEGER NOT NULL,
		totalVotes INTEGER NOT NULL,
		eligibilityRoot BLOB NOT NULL,
		insertedDatetime DATETIME
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS candidates(
		electionID INTEGER NOT NULL,
		indx INTEGER NOT NULL,
		name TEXT NOT NULL,
		externalID TEXT NOT NULL,
		party TEXT NOT NULL,
		voteCount INTEGER NOT NULL,
		PRIMARY KEY (electionID, indx),
		FOREIGN KEY(electionID) REFERENCES elections(id)
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS nullifiers(
		electionID INTEGER NOT NULL,
		nullifier BLOB NOT NULL,
		insertedDatetime DATETIME,
		PRIMARY KEY (electionID, nullifier),
		FOREIGN KEY(electionID) REFERENCES elections(id)
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS commitments(
		electionID INTEGER NOT NULL,
		commitment BLOB NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (electionID, commitment),
		FOREIGN KEY(electionID) REFERENCES elections(id)
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS votecast(
		electionID INTEGER NOT NULL,
		commitment BLOB NOT NULL,
		nullifier BLOB NOT NULL,
		insertedDatetime DATETIME,
		FOREIGN KEY(electionID) REFERENCES elections(id)
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS relayedcalls(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signer BLOB NOT NULL,
		target BLOB NOT NULL,
		nonce INTEGER NOT NULL,
		success INTEGER NOT NULL,
		returnData BLOB,
		insertedDatetime DATETIME
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	return nil
}
