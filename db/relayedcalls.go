package db

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/types"
)

// StoreRelayedCall stores the record of a forwarded call, including the
// result of the inner call. This is the relay's event log: it is written
// regardless of the inner call success.
func (r *SQLite) StoreRelayedCall(signer, target common.Address, nonce uint64,
	success bool, returnData []byte) error {
	sqlQuery := `
	INSERT INTO relayedcalls(
		signer,
		target,
		nonce,
		success,
		returnData,
		insertedDatetime
	) values(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	_, err = stmt.Exec(signer.Bytes(), target.Bytes(), nonce, success, returnData)
	return err
}

// ReadRelayedCallsBySigner reads all the stored relayed call records of
// the given signer, sorted by nonce
func (r *SQLite) ReadRelayedCallsBySigner(signer common.Address) ([]types.RelayedCall, error) {
	sqlQuery := `
	SELECT id, signer, target, nonce, success, returnData, insertedDatetime
	FROM relayedcalls
	WHERE signer = ?
	ORDER BY nonce ASC
	`

	rows, err := r.db.Query(sqlQuery, signer.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var calls []types.RelayedCall
	for rows.Next() {
		var call types.RelayedCall
		var signerBytes, targetBytes []byte
		err = rows.Scan(&call.ID, &signerBytes, &targetBytes, &call.Nonce,
			&call.Success, &call.ReturnData, &call.InsertedDatetime)
		if err != nil {
			return nil, err
		}
		call.Signer = common.BytesToAddress(signerBytes)
		call.Target = common.BytesToAddress(targetBytes)
		calls = append(calls, call)
	}
	return calls, nil
}
