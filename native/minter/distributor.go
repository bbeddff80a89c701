package minter

import (
	"errors"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"kvault/core/events"
)

var (
	// ErrDistributorNotFound is returned when no distributor exists for the
	// batch.
	ErrDistributorNotFound = errors.New("distributor: not found for batch")
	// ErrAlreadyInitialized rejects a second initialization of a batch's
	// distributor.
	ErrAlreadyInitialized = errors.New("distributor: already initialized")
	// ErrUnauthorizedCaller rejects pulls from anyone but the configured
	// authorized caller.
	ErrUnauthorizedCaller = errors.New("distributor: unauthorized caller")
	// ErrBatchMismatch rejects pulls referencing a different batch than the
	// instance serves.
	ErrBatchMismatch = errors.New("distributor: batch mismatch")
	// ErrInsufficientEscrow rejects pulls exceeding the batch's settled
	// balance.
	ErrInsufficientEscrow = errors.New("distributor: insufficient escrow")
	// ErrRescueDistributionAsset forbids rescuing the batch's own settlement
	// asset.
	ErrRescueDistributionAsset = errors.New("distributor: cannot rescue distribution asset")
)

// arenaState abstracts the durable distributor records.
type arenaState interface {
	DistributorPut(*Distributor) error
	DistributorGet(batchID [32]byte) (*Distributor, bool, error)
}

// Arena manages one lightweight distributor instance per settled batch,
// replacing per-batch contract deployment while keeping the isolation
// property: scoped balance, scoped authorization.
type Arena struct {
	mu      sync.Mutex
	state   arenaState
	emitter events.Emitter
}

// NewArena constructs a distributor arena over the supplied state backend.
func NewArena(state arenaState) *Arena {
	return &Arena{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (a *Arena) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

// deriveReceiver turns the batch identifier into the distributor's receiver
// handle.
func deriveReceiver(batchID [32]byte) [20]byte {
	hash := ethcrypto.Keccak256Hash([]byte("batch-receiver"), batchID[:])
	var receiver [20]byte
	copy(receiver[:], hash[12:])
	return receiver
}

// FundBatch initializes the batch's distributor and credits the settled
// assets. Callable exactly once per batch; returns the receiver handle.
func (a *Arena) FundBatch(batchID [32]byte, asset [20]byte, amount *big.Int, authorizedCaller [20]byte) ([20]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return [20]byte{}, ErrInsufficientEscrow
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok, err := a.state.DistributorGet(batchID); err != nil {
		return [20]byte{}, err
	} else if ok {
		return [20]byte{}, ErrAlreadyInitialized
	}
	d := &Distributor{
		BatchID:          batchID,
		Asset:            asset,
		Receiver:         deriveReceiver(batchID),
		AuthorizedCaller: authorizedCaller,
		Balance:          new(big.Int).Set(amount),
		Stray:            make(map[[20]byte]*big.Int),
	}
	if err := a.state.DistributorPut(d); err != nil {
		return [20]byte{}, err
	}
	a.emit(events.DistributorFunded{BatchID: batchID, Asset: asset, Amount: d.Balance})
	return d.Receiver, nil
}

// PullAssets releases settled assets to a claimant. Only the authorized
// caller may pull, and only against the batch the instance was initialized
// for.
func (a *Arena) PullAssets(caller, receiver [20]byte, amount *big.Int, batchID [32]byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInsufficientEscrow
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok, err := a.state.DistributorGet(batchID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDistributorNotFound
	}
	if d.BatchID != batchID {
		return ErrBatchMismatch
	}
	if caller != d.AuthorizedCaller {
		return ErrUnauthorizedCaller
	}
	if d.Balance.Cmp(amount) < 0 {
		return ErrInsufficientEscrow
	}
	d.Balance = new(big.Int).Sub(d.Balance, amount)
	return a.state.DistributorPut(d)
}

// CreditStray records non-distribution assets that ended up held by the
// batch's distributor.
func (a *Arena) CreditStray(batchID [32]byte, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInsufficientEscrow
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok, err := a.state.DistributorGet(batchID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDistributorNotFound
	}
	if d.Stray == nil {
		d.Stray = make(map[[20]byte]*big.Int)
	}
	existing, ok := d.Stray[asset]
	if !ok {
		existing = big.NewInt(0)
	}
	d.Stray[asset] = new(big.Int).Add(existing, amount)
	return a.state.DistributorPut(d)
}

// RescueAssets drains a stray, non-distribution asset from the batch's
// distributor. The settlement asset itself can never be rescued.
func (a *Arena) RescueAssets(caller [20]byte, batchID [32]byte, asset [20]byte) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok, err := a.state.DistributorGet(batchID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDistributorNotFound
	}
	if caller != d.AuthorizedCaller {
		return nil, ErrUnauthorizedCaller
	}
	if asset == d.Asset {
		return nil, ErrRescueDistributionAsset
	}
	amount, ok := d.Stray[asset]
	if !ok || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	delete(d.Stray, asset)
	if err := a.state.DistributorPut(d); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// Balance reports the remaining settled escrow for a batch.
func (a *Arena) Balance(batchID [32]byte) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok, err := a.state.DistributorGet(batchID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDistributorNotFound
	}
	return new(big.Int).Set(d.Balance), nil
}

func (a *Arena) emit(evt events.Event) {
	if a == nil || a.emitter == nil || evt == nil {
		return
	}
	a.emitter.Emit(evt)
}
