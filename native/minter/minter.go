package minter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"kvault/core/events"
	"kvault/native/batch"
	"kvault/native/registry"
)

var (
	errNilState = errors.New("minter: state not configured")

	// ErrUnauthorized rejects calls from non-institution addresses.
	ErrUnauthorized = errors.New("minter: unauthorized caller")
	// ErrZeroAmount rejects zero amounts at the request boundary.
	ErrZeroAmount = errors.New("minter: zero amount")
	// ErrZeroAddress rejects the zero address as recipient.
	ErrZeroAddress = errors.New("minter: zero address")
	// ErrMintCapExceeded rejects mints above the per-batch limit.
	ErrMintCapExceeded = errors.New("minter: batch mint limit exceeded")
	// ErrBurnCapExceeded rejects burn requests above the per-batch limit.
	ErrBurnCapExceeded = errors.New("minter: batch burn limit exceeded")
	// ErrRequestNotFound is returned for unknown burn request identifiers.
	ErrRequestNotFound = errors.New("minter: request not found")
	// ErrRequestNotPending rejects redeeming or cancelling a request that
	// already reached a terminal state.
	ErrRequestNotPending = errors.New("minter: request not pending")
	// ErrNotSettled rejects redemption while the owning batch has not
	// settled. Retryable once settlement lands.
	ErrNotSettled = errors.New("minter: batch not settled")
	// ErrBatchNotOpen rejects cancellation once the owning batch closed.
	ErrBatchNotOpen = errors.New("minter: batch not open")
)

// engineState abstracts the durable burn request records.
type engineState interface {
	BurnRequestPut(*BurnRequest) error
	BurnRequestGet(id [32]byte) (*BurnRequest, bool, error)
	NextMintNonce(asset [20]byte) (uint64, error)
}

// batchSource is the slice of the batch ledger the minter reads.
type batchSource interface {
	Get(id [32]byte) (*batch.Batch, bool, error)
	Current(vault [20]byte) ([32]byte, bool, error)
}

// flowRecorder is the slice of the asset router the minter writes request
// flows through.
type flowRecorder interface {
	RecordDeposit(vault [20]byte, batchID [32]byte, amount *big.Int) error
	RecordRequestPull(vault [20]byte, batchID [32]byte, amount *big.Int) error
	ReleaseRequestPull(vault [20]byte, batchID [32]byte, amount *big.Int) error
	PushDeposit(vault [20]byte, amount *big.Int) error
}

// tokenLedger is the claim-token surface the minter mints, escrows and burns
// on.
type tokenLedger interface {
	Mint(caller, token, to [20]byte, amount *big.Int) error
	Burn(caller, token, from [20]byte, amount *big.Int) error
	Transfer(token, from, to [20]byte, amount *big.Int) error
}

// distributorBank is the per-batch escrow burn redemptions pull from.
type distributorBank interface {
	PullAssets(caller, receiver [20]byte, amount *big.Int, batchID [32]byte) error
}

// registryView resolves roles, lookups and batch limits.
type registryView interface {
	IsInstitution(addr [20]byte) bool
	AssetToKToken(asset [20]byte) ([20]byte, error)
	VaultByAssetAndType(asset [20]byte, kind registry.VaultType) ([20]byte, error)
	MaxMintPerBatch(asset [20]byte) *big.Int
	MaxBurnPerBatch(asset [20]byte) *big.Int
}

// Engine is the institutional minter: claim tokens are minted 1:1 against
// deposits registered in the current batch, and redemptions escrow claim
// tokens until the owning batch settles into a distributor.
type Engine struct {
	state   engineState
	batches batchSource
	router  flowRecorder
	tokens  tokenLedger
	bank    distributorBank
	reg     registryView
	emitter events.Emitter
	self    [20]byte
	nowFn   func() int64
}

// New constructs a minter engine. The self address is the minter's identity
// in the token ledger and toward the distributor arena.
func New(state engineState, batches batchSource, router flowRecorder, tokens tokenLedger, reg registryView, self [20]byte) *Engine {
	return &Engine{
		state:   state,
		batches: batches,
		router:  router,
		tokens:  tokens,
		reg:     reg,
		emitter: events.NoopEmitter{},
		self:    self,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetDistributorBank wires the per-batch redemption escrow.
func (e *Engine) SetDistributorBank(bank distributorBank) { e.bank = bank }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) currentOpenBatch(asset [20]byte) ([20]byte, *batch.Batch, error) {
	vaultAddr, err := e.reg.VaultByAssetAndType(asset, registry.VaultTypeMinter)
	if err != nil {
		return [20]byte{}, nil, err
	}
	batchID, ok, err := e.batches.Current(vaultAddr)
	if err != nil {
		return [20]byte{}, nil, err
	}
	if !ok {
		return [20]byte{}, nil, fmt.Errorf("minter: no active batch for asset %x", asset)
	}
	b, found, err := e.batches.Get(batchID)
	if err != nil {
		return [20]byte{}, nil, err
	}
	if !found {
		return [20]byte{}, nil, fmt.Errorf("minter: active batch missing for asset %x", asset)
	}
	if b.Closed {
		return [20]byte{}, nil, ErrBatchNotOpen
	}
	return vaultAddr, b, nil
}

// Mint registers an institutional deposit against the asset's current batch
// and issues claim tokens 1:1 to the recipient.
func (e *Engine) Mint(institution, asset, recipient [20]byte, amount *big.Int) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	if e.reg == nil || !e.reg.IsInstitution(institution) {
		return [32]byte{}, ErrUnauthorized
	}
	if recipient == ([20]byte{}) {
		return [32]byte{}, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, ErrZeroAmount
	}
	kToken, err := e.reg.AssetToKToken(asset)
	if err != nil {
		return [32]byte{}, err
	}
	vaultAddr, b, err := e.currentOpenBatch(asset)
	if err != nil {
		return [32]byte{}, err
	}
	if limit := e.reg.MaxMintPerBatch(asset); limit != nil {
		projected := new(big.Int).Add(cloneBigInt(b.DepositedInBatch), amount)
		if projected.Cmp(limit) > 0 {
			return [32]byte{}, ErrMintCapExceeded
		}
	}
	if err := e.router.RecordDeposit(vaultAddr, b.ID, amount); err != nil {
		return [32]byte{}, err
	}
	if err := e.router.PushDeposit(vaultAddr, amount); err != nil {
		return [32]byte{}, err
	}
	if err := e.tokens.Mint(e.self, kToken, recipient, amount); err != nil {
		return [32]byte{}, err
	}
	e.emit(events.Minted{Institution: institution, Asset: asset, Recipient: recipient, Amount: amount, BatchID: b.ID})
	return b.ID, nil
}

// RequestBurn escrows the institution's claim tokens with the minter and
// registers the asset-denominated redemption in the current batch. The
// escrowed tokens are not burned until the batch settles and Burn redeems the
// request.
func (e *Engine) RequestBurn(institution, asset, recipient [20]byte, amount *big.Int) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	if e.reg == nil || !e.reg.IsInstitution(institution) {
		return [32]byte{}, ErrUnauthorized
	}
	if recipient == ([20]byte{}) {
		return [32]byte{}, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, ErrZeroAmount
	}
	kToken, err := e.reg.AssetToKToken(asset)
	if err != nil {
		return [32]byte{}, err
	}
	vaultAddr, b, err := e.currentOpenBatch(asset)
	if err != nil {
		return [32]byte{}, err
	}
	if limit := e.reg.MaxBurnPerBatch(asset); limit != nil {
		projected := new(big.Int).Add(cloneBigInt(b.WithdrawnInBatch), amount)
		if projected.Cmp(limit) > 0 {
			return [32]byte{}, ErrBurnCapExceeded
		}
	}
	// The virtual-balance sufficiency gate lives in the router: cumulative
	// requested obligations must never exceed what the adapters can produce.
	if err := e.router.RecordRequestPull(vaultAddr, b.ID, amount); err != nil {
		return [32]byte{}, err
	}
	if err := e.tokens.Transfer(kToken, institution, e.self, amount); err != nil {
		return [32]byte{}, err
	}
	nonce, err := e.state.NextMintNonce(asset)
	if err != nil {
		return [32]byte{}, err
	}
	now := e.now()
	req := &BurnRequest{
		ID:               deriveBurnRequestID(institution, asset, amount, nonce, now),
		Institution:      institution,
		Asset:            asset,
		Recipient:        recipient,
		Amount:           new(big.Int).Set(amount),
		BatchID:          b.ID,
		RequestTimestamp: now,
	}
	if err := e.state.BurnRequestPut(req); err != nil {
		return [32]byte{}, err
	}
	e.emit(events.BurnRequested{RequestID: req.ID, Institution: institution, Asset: asset, Amount: req.Amount, BatchID: b.ID})
	return req.ID, nil
}

func deriveBurnRequestID(institution, asset [20]byte, amount *big.Int, nonce uint64, timestamp int64) [32]byte {
	var nonceBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	return ethcrypto.Keccak256Hash([]byte{0x03}, institution[:], asset[:], amount.Bytes(), nonceBuf[:], tsBuf[:])
}

// Burn redeems a settled burn request: the escrowed claim tokens are burned
// and the settled assets are pulled from the batch's distributor to the
// recipient. Pending -> Redeemed exactly once.
func (e *Engine) Burn(caller [20]byte, requestID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, ok, err := e.state.BurnRequestGet(requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != BurnPending {
		return ErrRequestNotPending
	}
	if caller != req.Institution {
		return ErrUnauthorized
	}
	b, found, err := e.batches.Get(req.BatchID)
	if err != nil {
		return err
	}
	if !found || !b.Settled {
		return ErrNotSettled
	}
	kToken, err := e.reg.AssetToKToken(req.Asset)
	if err != nil {
		return err
	}
	if e.bank == nil {
		return fmt.Errorf("minter: distributor bank not wired")
	}
	// The distributor authorizes the minter vault as its claimant; the
	// engine redeems on that vault's behalf.
	vaultAddr, err := e.reg.VaultByAssetAndType(req.Asset, registry.VaultTypeMinter)
	if err != nil {
		return err
	}
	if err := e.bank.PullAssets(vaultAddr, req.Recipient, req.Amount, req.BatchID); err != nil {
		return err
	}
	if err := e.tokens.Burn(e.self, kToken, e.self, req.Amount); err != nil {
		return err
	}
	req.Status = BurnRedeemed
	if err := e.state.BurnRequestPut(req); err != nil {
		return err
	}
	e.emit(events.Burned{RequestID: req.ID, Recipient: req.Recipient, Asset: req.Asset, Amount: req.Amount, BatchID: req.BatchID})
	return nil
}

// CancelBurnRequest returns the escrowed claim tokens while the owning batch
// is still open.
func (e *Engine) CancelBurnRequest(caller [20]byte, requestID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, ok, err := e.state.BurnRequestGet(requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != BurnPending {
		return ErrRequestNotPending
	}
	if caller != req.Institution {
		return ErrUnauthorized
	}
	b, found, err := e.batches.Get(req.BatchID)
	if err != nil {
		return err
	}
	if !found || b.Closed {
		return ErrBatchNotOpen
	}
	vaultAddr, err := e.reg.VaultByAssetAndType(req.Asset, registry.VaultTypeMinter)
	if err != nil {
		return err
	}
	if err := e.router.ReleaseRequestPull(vaultAddr, req.BatchID, req.Amount); err != nil {
		return err
	}
	kToken, err := e.reg.AssetToKToken(req.Asset)
	if err != nil {
		return err
	}
	if err := e.tokens.Transfer(kToken, e.self, req.Institution, req.Amount); err != nil {
		return err
	}
	req.Status = BurnCancelled
	if err := e.state.BurnRequestPut(req); err != nil {
		return err
	}
	e.emit(events.BurnRequestCancelled{RequestID: req.ID, Institution: req.Institution, Amount: req.Amount, BatchID: req.BatchID})
	return nil
}

// BurnRequest returns a copy of the burn request.
func (e *Engine) BurnRequest(id [32]byte) (*BurnRequest, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.BurnRequestGet(id)
}
