package batch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"kvault/core/events"
)

var (
	errNilState = errors.New("batch ledger: state not configured")

	// ErrNotFound is returned when the referenced batch does not exist.
	ErrNotFound = errors.New("batch ledger: batch not found")
	// ErrAlreadyClosed rejects a second close of the same batch.
	ErrAlreadyClosed = errors.New("batch ledger: batch already closed")
	// ErrNotClosed rejects settlement of a batch that is still open.
	ErrNotClosed = errors.New("batch ledger: batch not closed")
	// ErrAlreadySettled rejects a second settlement of the same batch.
	ErrAlreadySettled = errors.New("batch ledger: batch already settled")
	// ErrUnauthorized rejects lifecycle transitions from the wrong caller.
	ErrUnauthorized = errors.New("batch ledger: unauthorized caller")
	// ErrNilSnapshot rejects settlement without a totals snapshot.
	ErrNilSnapshot = errors.New("batch ledger: nil snapshot")
)

// ledgerState abstracts the durable batch records behind the ledger.
type ledgerState interface {
	BatchPut(*Batch) error
	BatchGet(id [32]byte) (*Batch, bool, error)
	CurrentBatch(vault [20]byte) ([32]byte, bool, error)
	SetCurrentBatch(vault [20]byte, id [32]byte) error
	NextBatchNumber(vault [20]byte) (uint64, error)
}

// roleChecker is the slice of the registry the ledger needs.
type roleChecker interface {
	IsRelayer(addr [20]byte) bool
}

// Ledger drives the Open -> Closed -> Settled lifecycle of request batches.
// It is a pure state machine: no money math happens here.
type Ledger struct {
	state   ledgerState
	roles   roleChecker
	emitter events.Emitter
	chainID uint64
	settler [20]byte
	nowFn   func() int64
}

// NewLedger creates a batch ledger bound to the supplied state backend.
func NewLedger(state ledgerState, roles roleChecker, chainID uint64) *Ledger {
	return &Ledger{
		state:   state,
		roles:   roles,
		emitter: events.NoopEmitter{},
		chainID: chainID,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// SetSettler configures the only address allowed to mark batches settled,
// which is the settlement coordinator.
func (l *Ledger) SetSettler(addr [20]byte) { l.settler = addr }

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

// deriveID hashes the batch's entropy sources into a collision-resistant
// identifier.
func deriveID(vault [20]byte, number, chainID uint64, timestamp int64, asset [20]byte) [32]byte {
	var numberBuf, chainBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(numberBuf[:], number)
	binary.BigEndian.PutUint64(chainBuf[:], chainID)
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	return ethcrypto.Keccak256Hash(vault[:], numberBuf[:], chainBuf[:], tsBuf[:], asset[:])
}

// CreateBatch opens a fresh batch for the vault and activates it as the
// vault's current batch. Only relayers may create batches.
func (l *Ledger) CreateBatch(caller, vault, asset [20]byte) ([32]byte, error) {
	if l == nil || l.state == nil {
		return [32]byte{}, errNilState
	}
	if l.roles == nil || !l.roles.IsRelayer(caller) {
		return [32]byte{}, ErrUnauthorized
	}
	return l.createBatch(vault, asset)
}

func (l *Ledger) createBatch(vault, asset [20]byte) ([32]byte, error) {
	number, err := l.state.NextBatchNumber(vault)
	if err != nil {
		return [32]byte{}, err
	}
	now := l.now()
	b := &Batch{
		ID:        deriveID(vault, number, l.chainID, now, asset),
		Vault:     vault,
		Asset:     asset,
		Number:    number,
		CreatedAt: now,
	}
	if err := l.state.BatchPut(b); err != nil {
		return [32]byte{}, err
	}
	if err := l.state.SetCurrentBatch(vault, b.ID); err != nil {
		return [32]byte{}, err
	}
	l.emit(events.BatchCreated{Vault: vault, Asset: asset, BatchID: b.ID, Number: number})
	return b.ID, nil
}

// CloseBatch marks the batch closed to new requests. When createNext is set a
// replacement batch is created and activated atomically so request acceptance
// never stalls. Only relayers may close batches.
func (l *Ledger) CloseBatch(caller [20]byte, id [32]byte, createNext bool) ([32]byte, error) {
	if l == nil || l.state == nil {
		return [32]byte{}, errNilState
	}
	if l.roles == nil || !l.roles.IsRelayer(caller) {
		return [32]byte{}, ErrUnauthorized
	}
	b, ok, err := l.state.BatchGet(id)
	if err != nil {
		return [32]byte{}, err
	}
	if !ok {
		return [32]byte{}, ErrNotFound
	}
	if b.Closed {
		return [32]byte{}, ErrAlreadyClosed
	}
	b.Closed = true
	b.ClosedAt = l.now()
	if err := l.state.BatchPut(b); err != nil {
		return [32]byte{}, err
	}
	var next [32]byte
	if createNext {
		next, err = l.createBatch(b.Vault, b.Asset)
		if err != nil {
			return [32]byte{}, err
		}
	}
	l.emit(events.BatchClosed{Vault: b.Vault, BatchID: b.ID, Deposited: b.DepositedInBatch, Requested: b.WithdrawnInBatch})
	return next, nil
}

// MarkSettled flips a closed batch to settled and records the totals snapshot
// supplied by the settlement coordinator. Only the configured settler may
// invoke the transition.
func (l *Ledger) MarkSettled(caller [20]byte, id [32]byte, snapshot *Snapshot) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if caller != l.settler || l.settler == ([20]byte{}) {
		return ErrUnauthorized
	}
	if snapshot == nil {
		return ErrNilSnapshot
	}
	b, ok, err := l.state.BatchGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !b.Closed {
		return ErrNotClosed
	}
	if b.Settled {
		return ErrAlreadySettled
	}
	b.Settled = true
	b.SettledAt = l.now()
	b.Snapshot = snapshot.Clone()
	if err := l.state.BatchPut(b); err != nil {
		return err
	}
	l.emit(events.BatchSettled{
		Vault:          b.Vault,
		BatchID:        b.ID,
		TotalAssets:    b.Snapshot.TotalAssets,
		TotalNetAssets: b.Snapshot.TotalNetAssets,
		TotalSupply:    b.Snapshot.TotalSupply,
		SharePrice:     b.Snapshot.SharePrice,
		NetSharePrice:  b.Snapshot.NetSharePrice,
	})
	return nil
}

// RecordFlows accumulates the deposited/withdrawn totals shown on the batch.
// Deltas must be non-negative; nil means no change. The minter and staking
// vault call this as requests register against the open batch.
func (l *Ledger) RecordFlows(id [32]byte, depositedDelta, withdrawnDelta *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if (depositedDelta != nil && depositedDelta.Sign() < 0) || (withdrawnDelta != nil && withdrawnDelta.Sign() < 0) {
		return fmt.Errorf("batch ledger: negative flow delta")
	}
	b, ok, err := l.state.BatchGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if depositedDelta != nil && depositedDelta.Sign() > 0 {
		b.DepositedInBatch = new(big.Int).Add(cloneBigInt(b.DepositedInBatch), depositedDelta)
	}
	if withdrawnDelta != nil && withdrawnDelta.Sign() > 0 {
		b.WithdrawnInBatch = new(big.Int).Add(cloneBigInt(b.WithdrawnInBatch), withdrawnDelta)
	}
	return l.state.BatchPut(b)
}

// SetReceiver records the per-batch distribution receiver assigned at
// settlement time.
func (l *Ledger) SetReceiver(caller [20]byte, id [32]byte, receiver [20]byte) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if caller != l.settler || l.settler == ([20]byte{}) {
		return ErrUnauthorized
	}
	b, ok, err := l.state.BatchGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	b.Receiver = receiver
	b.HasReceiver = true
	return l.state.BatchPut(b)
}

// Get returns a copy of the batch record.
func (l *Ledger) Get(id [32]byte) (*Batch, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	return l.state.BatchGet(id)
}

// Current returns the vault's active batch identifier.
func (l *Ledger) Current(vault [20]byte) ([32]byte, bool, error) {
	if l == nil || l.state == nil {
		return [32]byte{}, false, errNilState
	}
	return l.state.CurrentBatch(vault)
}
