package db

import (
	"database/sql"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// StoreSession sets the delegation expiry for the given (nicHash,
// session) pair. A repeated call overwrites the previous expiry, the two
// windows are never merged.
func (r *SQLite) StoreSession(nicHash []byte, session common.Address,
	expiresAt int64) error {
	sqlQuery := `
	INSERT OR REPLACE INTO sessions(
		nicHash,
		session,
		expiresAt
	) values(?, ?, ?)
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	_, err = stmt.Exec(nicHash, session.Bytes(), expiresAt)
	return err
}

// GetSessionExpiry returns the delegation expiry for the given (nicHash,
// session) pair, or 0 if no delegation entry exists
func (r *SQLite) GetSessionExpiry(nicHash []byte,
	session common.Address) (int64, error) {
	row := r.db.QueryRow(
		"SELECT expiresAt FROM sessions WHERE nicHash = ? AND session = ?",
		nicHash, session.Bytes())

	var expiresAt int64
	err := row.Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return expiresAt, nil
}
