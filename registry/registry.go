// Package registry implements the identity registry: the NIC-hash to
// wallet mapping and the time-boxed session delegation table. Every
// mutating operation takes the authenticated caller as an explicit
// parameter.
package registry

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/db"
	"github.com/zkballot/zkballot-node/types"
	"go.vocdoni.io/dvote/log"
)

var (
	// ErrAlreadyRegistered is returned when the identity or the account
	// is already bound
	ErrAlreadyRegistered = errors.New("identity or account already registered")
	// ErrNotRegistered is returned when the identity has no bound
	// account
	ErrNotRegistered = errors.New("identity not registered")
	// ErrAccessDenied is returned when the caller is not authorized for
	// the operation
	ErrAccessDenied = errors.New("access denied")
	// ErrDurationTooLong is returned when the requested session duration
	// exceeds types.MaxSessionDuration
	ErrDurationTooLong = fmt.Errorf("session duration exceeds the maximum (%s)",
		types.MaxSessionDuration)
	// ErrZeroAccount is returned when trying to register the zero
	// account
	ErrZeroAccount = errors.New("account is the zero address")
)

// Forwarder forwards a call to a target on behalf of an authenticated
// caller. It is implemented by the relay dispatcher.
type Forwarder interface {
	Forward(caller, target common.Address, value *big.Int, data []byte) ([]byte, error)
}

// Registry implements the identity registry over the SQLite state store
type Registry struct {
	db *db.SQLite
	// system is an account authorized to create sessions on behalf of
	// any identity, used by backend login flows. Zero means disabled.
	system common.Address
	fwd    Forwarder
}

// Options is used to pass the parameters to load a new Registry
type Options struct {
	DB *db.SQLite
	// SystemAccount, if not zero, is allowed to call CreateSession for
	// any identity
	SystemAccount common.Address
	// Forwarder is used by ExecuteOnBehalf to forward calls. Optional.
	Forwarder Forwarder
}

// New loads a new Registry
func New(opts Options) (*Registry, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("registry needs a db")
	}
	return &Registry{
		db:     opts.DB,
		system: opts.SystemAccount,
		fwd:    opts.Forwarder,
	}, nil
}

// RegisterWallet binds the given account to the given identity. It fails
// with ErrAlreadyRegistered if the identity already maps to an account
// or the account is already bound to another identity; repeated
// registration is rejected, not silently ignored.
func (r *Registry) RegisterWallet(nic string, account common.Address) error {
	if account == (common.Address{}) {
		return ErrZeroAccount
	}
	nicHash := types.HashNIC(nic)
	if err := r.db.StoreWallet(nicHash, account); err != nil {
		if errors.Is(err, db.ErrWalletAlreadyExists) {
			return ErrAlreadyRegistered
		}
		return err
	}
	log.Debugf("wallet registered: nicHash=%x account=%s", nicHash, account.Hex())
	return nil
}

// GetWalletByIdentity returns the account bound to the given identity
func (r *Registry) GetWalletByIdentity(nic string) (common.Address, error) {
	w, err := r.db.GetWalletByNICHash(types.HashNIC(nic))
	if err != nil {
		if errors.Is(err, db.ErrWalletNotFound) {
			return common.Address{}, ErrNotRegistered
		}
		return common.Address{}, err
	}
	return w.Address, nil
}

// DeactivateWallet marks the identity's wallet as inactive. Records are
// never deleted.
func (r *Registry) DeactivateWallet(caller common.Address, nic string) error {
	if r.system == (common.Address{}) || caller != r.system {
		return ErrAccessDenied
	}
	return r.db.SetWalletActive(types.HashNIC(nic), false)
}

// ReactivateWallet marks the identity's wallet as active again
func (r *Registry) ReactivateWallet(caller common.Address, nic string) error {
	if r.system == (common.Address{}) || caller != r.system {
		return ErrAccessDenied
	}
	return r.db.SetWalletActive(types.HashNIC(nic), true)
}

// CreateSession grants the given session account a time-boxed delegation
// for the given identity. The caller must be the identity's bound
// account or the configured system account. A duration of 0 uses
// types.DefaultSessionDuration; durations above types.MaxSessionDuration
// are rejected. A repeated call overwrites the previous expiry.
func (r *Registry) CreateSession(caller common.Address, nic string,
	session common.Address, duration time.Duration) error {
	if duration > types.MaxSessionDuration {
		return ErrDurationTooLong
	}
	if duration == 0 {
		duration = types.DefaultSessionDuration
	}
	if session == (common.Address{}) {
		return ErrZeroAccount
	}

	nicHash := types.HashNIC(nic)
	w, err := r.db.GetWalletByNICHash(nicHash)
	if err != nil {
		if errors.Is(err, db.ErrWalletNotFound) {
			return ErrNotRegistered
		}
		return err
	}
	if !w.Active {
		return ErrAccessDenied
	}
	if caller != w.Address &&
		(r.system == (common.Address{}) || caller != r.system) {
		return ErrAccessDenied
	}

	expiresAt := time.Now().Add(duration).Unix()
	if err := r.db.StoreSession(nicHash, session, expiresAt); err != nil {
		return err
	}
	log.Debugf("session created: nicHash=%x session=%s expiresAt=%d",
		nicHash, session.Hex(), expiresAt)
	return nil
}

// HasValidAccess returns true iff the identity's wallet is active and a
// non-expired delegation entry exists for the given (identity, session)
// pair. Side-effect free; validity is computed on read, no sweeper is
// needed.
func (r *Registry) HasValidAccess(nic string, session common.Address) (bool, error) {
	nicHash := types.HashNIC(nic)
	w, err := r.db.GetWalletByNICHash(nicHash)
	if err != nil {
		if errors.Is(err, db.ErrWalletNotFound) {
			return false, nil
		}
		return false, err
	}
	if !w.Active {
		return false, nil
	}
	return r.hasValidAccess(nicHash, session)
}

// HasValidAccessByAccount is the account-keyed variant of
// HasValidAccess, used by the relay, which knows the registered account
// but not the identity
func (r *Registry) HasValidAccessByAccount(original,
	session common.Address) (bool, error) {
	w, err := r.db.GetWalletByAddress(original)
	if err != nil {
		if errors.Is(err, db.ErrWalletNotFound) {
			return false, nil
		}
		return false, err
	}
	if !w.Active {
		return false, nil
	}
	return r.hasValidAccess(w.NICHash, session)
}

func (r *Registry) hasValidAccess(nicHash []byte, session common.Address) (bool, error) {
	expiresAt, err := r.db.GetSessionExpiry(nicHash, session)
	if err != nil {
		return false, err
	}
	return expiresAt > time.Now().Unix(), nil
}

// RevokeAccess zeroes the delegation expiry for the given (identity,
// session) pair. Callable only by the identity's bound account.
func (r *Registry) RevokeAccess(caller common.Address, nic string,
	session common.Address) error {
	nicHash := types.HashNIC(nic)
	w, err := r.db.GetWalletByNICHash(nicHash)
	if err != nil {
		if errors.Is(err, db.ErrWalletNotFound) {
			return ErrNotRegistered
		}
		return err
	}
	if caller != w.Address {
		return ErrAccessDenied
	}
	return r.db.StoreSession(nicHash, session, 0)
}

// ExecuteOnBehalf forwards the given call with the caller's delegated
// authorization. The caller must hold a valid session delegation for the
// identity. This is the non-gasless delegation path; the relay performs
// the equivalent validation on its own path.
func (r *Registry) ExecuteOnBehalf(caller common.Address, nic string,
	target common.Address, value *big.Int, data []byte) (bool, []byte, error) {
	ok, err := r.HasValidAccess(nic, caller)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, ErrAccessDenied
	}
	if r.fwd == nil {
		return false, nil, fmt.Errorf("no forwarder configured")
	}
	ret, err := r.fwd.Forward(caller, target, value, data)
	if err != nil {
		return false, []byte(err.Error()), nil
	}
	return true, ret, nil
}
