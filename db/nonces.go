package db

import (
	"database/sql"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// GetNonce returns the current nonce of the given signer. A signer that
// never relayed a call has nonce 0.
func (r *SQLite) GetNonce(signer common.Address) (uint64, error) {
	row := r.db.QueryRow("SELECT nonce FROM nonces WHERE signer = ?",
		signer.Bytes())

	var nonce uint64
	err := row.Scan(&nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return nonce, nil
}

// IncNonce increments the nonce of the given signer by exactly one.
// Nonces never decrease or reset.
func (r *SQLite) IncNonce(signer common.Address) error {
	sqlQuery := `
	INSERT INTO nonces(signer, nonce) VALUES(?, 1)
	ON CONFLICT(signer) DO UPDATE SET nonce = nonce + 1
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	_, err = stmt.Exec(signer.Bytes())
	return err
}
