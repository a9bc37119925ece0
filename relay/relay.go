// Package relay implements the delegated-execution relay: it
// authenticates a signed instruction from a session account or a
// registered account, enforces nonce-based replay protection, and
// forwards the call so the relayer, not the signer, carries the
// execution cost.
package relay

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zkballot/zkballot-node/db"
	"github.com/zkballot/zkballot-node/types"
	"go.vocdoni.io/dvote/log"
)

var (
	// ErrAccessDenied is returned when the session account has no valid
	// delegation from the original account
	ErrAccessDenied = errors.New("invalid or expired session delegation")
	// ErrBadSignature is returned when the recovered signer does not
	// match the claimed account
	ErrBadSignature = errors.New("signature verification failed")
	// ErrUnknownTarget is returned by the dispatcher when no target is
	// registered at the given address
	ErrUnknownTarget = errors.New("unknown target")
)

// Target handles calls forwarded by the relay. Implementations must
// re-validate authorization themselves: the relay trusts the
// caller-constructed payload entirely.
type Target interface {
	Call(caller common.Address, value *big.Int, data []byte) ([]byte, error)
}

// Dispatcher resolves target addresses to in-process Target
// implementations
type Dispatcher struct {
	mu      sync.RWMutex
	targets map[common.Address]Target
}

// NewDispatcher returns an empty Dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{targets: make(map[common.Address]Target)}
}

// RegisterTarget registers the given Target at the given address
func (d *Dispatcher) RegisterTarget(addr common.Address, t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets[addr] = t
}

// Forward resolves the target address and invokes its Call method
func (d *Dispatcher) Forward(caller, target common.Address, value *big.Int,
	data []byte) ([]byte, error) {
	d.mu.RLock()
	t, ok := d.targets[target]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTarget
	}
	return t.Call(caller, value, data)
}

// AccessChecker validates session delegations. Implemented by
// registry.Registry.
type AccessChecker interface {
	HasValidAccessByAccount(original, session common.Address) (bool, error)
}

// Relay implements the delegated-execution relay
type Relay struct {
	mu     sync.Mutex
	db     *db.SQLite
	access AccessChecker
	fwd    *Dispatcher
	// addr identifies this relay inside the signed digest, so a
	// signature for one relay can not be replayed at another
	addr common.Address
}

// Options is used to pass the parameters to load a new Relay
type Options struct {
	DB            *db.SQLite
	AccessChecker AccessChecker
	Dispatcher    *Dispatcher
	Address       common.Address
}

// New loads a new Relay
func New(opts Options) (*Relay, error) {
	if opts.DB == nil || opts.AccessChecker == nil || opts.Dispatcher == nil {
		return nil, errors.New("relay needs a db, an access checker and a dispatcher")
	}
	return &Relay{
		db:     opts.DB,
		access: opts.AccessChecker,
		fwd:    opts.Dispatcher,
		addr:   opts.Address,
	}, nil
}

// Address returns the relay identifier included in the signed digests
func (r *Relay) Address() common.Address {
	return r.addr
}

// GetNonce returns the current nonce of the given signer
func (r *Relay) GetNonce(signer common.Address) (uint64, error) {
	return r.db.GetNonce(signer)
}

// recoverSigner recovers the signer address of the given digest after
// applying the standard personal-message prefix
func recoverSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != types.SignatureSize {
		return common.Address{}, ErrBadSignature
	}
	// normalize the recovery id: some signers use 27/28
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[64] >= 27 { //nolint:gomnd
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(digest), s)
	if err != nil {
		return common.Address{}, ErrBadSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ExecuteGaslessTemporaryTransaction authenticates the given signature
// from the session account and forwards the call to the target.
// The signature must be over RelayCallDigest(originalAccount,
// sessionAccount, target, value, callData, currentNonce, relayAddress).
// The session nonce is incremented once the signature is accepted, so a
// reverted inner call still burns the signature. An inner call failure
// does not fail the relay operation itself: it is reported through the
// returned success flag and the stored relayed-call record.
func (r *Relay) ExecuteGaslessTemporaryTransaction(original, session,
	target common.Address, value *big.Int, callData,
	sig []byte) (bool, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.access.HasValidAccessByAccount(original, session)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, ErrAccessDenied
	}

	nonce, err := r.db.GetNonce(session)
	if err != nil {
		return false, nil, err
	}

	digest := types.RelayCallDigest(original, session, target, value,
		callData, nonce, r.addr)
	signer, err := recoverSigner(digest, sig)
	if err != nil {
		return false, nil, err
	}
	if signer != session {
		return false, nil, ErrBadSignature
	}

	return r.execute(session, target, value, callData, nonce)
}

// ExecuteMetaTransaction authenticates the given signature directly from
// the registered account (no delegation lookup) and forwards the call.
// Same digest/nonce/recovery structure as the session path, scoped to
// the account's own nonce counter.
func (r *Relay) ExecuteMetaTransaction(account, target common.Address,
	value *big.Int, callData, sig []byte) (bool, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, err := r.db.GetNonce(account)
	if err != nil {
		return false, nil, err
	}

	digest := types.MetaCallDigest(account, target, value, callData, nonce, r.addr)
	signer, err := recoverSigner(digest, sig)
	if err != nil {
		return false, nil, err
	}
	if signer != account {
		return false, nil, ErrBadSignature
	}

	return r.execute(account, target, value, callData, nonce)
}

// execute increments the signer nonce, forwards the call and stores the
// relayed-call record. Expects r.mu to be held.
func (r *Relay) execute(signer, target common.Address, value *big.Int,
	callData []byte, nonce uint64) (bool, []byte, error) {
	if err := r.db.IncNonce(signer); err != nil {
		return false, nil, err
	}

	ret, callErr := r.fwd.Forward(signer, target, value, callData)
	success := callErr == nil
	if callErr != nil {
		ret = []byte(callErr.Error())
		log.Warnw("relayed call failed", "signer", signer.Hex(),
			"target", target.Hex(), "nonce", nonce, "err", callErr)
	}

	if err := r.db.StoreRelayedCall(signer, target, nonce, success, ret); err != nil {
		return false, nil, err
	}
	return success, ret, nil
}
