package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/types"
)

// ErrWalletNotFound is returned when the requested wallet does not exist
// in the db
var ErrWalletNotFound = errors.New("wallet does not exist in the db")

// ErrWalletAlreadyExists is returned when trying to register a wallet
// for an identity or an address that is already registered
var ErrWalletAlreadyExists = errors.New("wallet already registered")

// StoreWallet stores a new wallet record for the given nicHash and
// address. It fails with ErrWalletAlreadyExists if either the nicHash or
// the address is already bound.
func (r *SQLite) StoreWallet(nicHash []byte, address common.Address) error {
	sqlQuery := `
	INSERT INTO wallets(
		nicHash,
		address,
		active,
		insertedDatetime
	) values(?, ?, 1, CURRENT_TIMESTAMP)
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	_, err = stmt.Exec(nicHash, address.Bytes())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrWalletAlreadyExists
		}
		return err
	}
	return nil
}

// GetWalletByNICHash returns the wallet record bound to the given
// nicHash
func (r *SQLite) GetWalletByNICHash(nicHash []byte) (*types.WalletRecord, error) {
	row := r.db.QueryRow(
		"SELECT nicHash, address, active, insertedDatetime FROM wallets WHERE nicHash = ?",
		nicHash)

	var w types.WalletRecord
	var addrBytes []byte
	err := row.Scan(&w.NICHash, &addrBytes, &w.Active, &w.InsertedDatetime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	w.Address = common.BytesToAddress(addrBytes)
	return &w, nil
}

// GetWalletByAddress returns the wallet record bound to the given
// address
func (r *SQLite) GetWalletByAddress(address common.Address) (*types.WalletRecord, error) {
	row := r.db.QueryRow(
		"SELECT nicHash, address, active, insertedDatetime FROM wallets WHERE address = ?",
		address.Bytes())

	var w types.WalletRecord
	var addrBytes []byte
	err := row.Scan(&w.NICHash, &addrBytes, &w.Active, &w.InsertedDatetime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	w.Address = common.BytesToAddress(addrBytes)
	return &w, nil
}

// SetWalletActive sets the active flag of the wallet bound to the given
// nicHash. Wallet records are never deleted, only deactivated.
func (r *SQLite) SetWalletActive(nicHash []byte, active bool) error {
	stmt, err := r.db.Prepare("UPDATE wallets SET active = ? WHERE nicHash = ?")
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	res, err := stmt.Exec(active, nicHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("can not update wallet: %w", ErrWalletNotFound)
	}
	return nil
}
