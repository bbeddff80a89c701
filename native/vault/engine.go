package vault

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"kvault/core/events"
	"kvault/native/batch"
)

var (
	errNilState = errors.New("vault: state not configured")

	// ErrZeroAmount rejects zero amounts at the request boundary.
	ErrZeroAmount = errors.New("vault: zero amount")
	// ErrZeroAddress rejects the zero address as user or recipient.
	ErrZeroAddress = errors.New("vault: zero address")
	// ErrRequestNotFound is returned for unknown request identifiers.
	ErrRequestNotFound = errors.New("vault: request not found")
	// ErrRequestNotPending rejects claims or cancellations of requests that
	// already reached a terminal state.
	ErrRequestNotPending = errors.New("vault: request not pending")
	// ErrNotSettled rejects claims while the owning batch has not settled.
	// Retryable once settlement lands.
	ErrNotSettled = errors.New("vault: batch not settled")
	// ErrBatchNotOpen rejects cancellations once the owning batch closed.
	ErrBatchNotOpen = errors.New("vault: batch not open")
	// ErrUnauthorized rejects claims from anyone but the requesting user.
	ErrUnauthorized = errors.New("vault: unauthorized caller")
	// ErrUnknownVault is returned when the vault has no registry record.
	ErrUnknownVault = errors.New("vault: unknown vault")
	// ErrCapExceeded rejects deposits that would push the vault past its
	// configured max total assets.
	ErrCapExceeded = errors.New("vault: max total assets exceeded")
)

// engineState abstracts the durable retail request and fee records.
type engineState interface {
	StakeRequestPut(*StakeRequest) error
	StakeRequestGet(id [32]byte) (*StakeRequest, bool, error)
	UnstakeRequestPut(*UnstakeRequest) error
	UnstakeRequestGet(id [32]byte) (*UnstakeRequest, bool, error)
	FeeStateGet(vault [20]byte) (*FeeState, bool, error)
	FeeStatePut(vault [20]byte, fs *FeeState) error
	NextRequestNonce(vault [20]byte) (uint64, error)
}

// batchSource is the slice of the batch ledger the staking vault reads.
type batchSource interface {
	Get(id [32]byte) (*batch.Batch, bool, error)
	Current(vault [20]byte) ([32]byte, bool, error)
}

// flowRecorder is the slice of the asset router the staking vault writes
// request flows through.
type flowRecorder interface {
	RecordDeposit(vault [20]byte, batchID [32]byte, amount *big.Int) error
	ReleaseDeposit(vault [20]byte, batchID [32]byte, amount *big.Int) error
	RecordShareRequestPush(vault [20]byte, batchID [32]byte, shares *big.Int) error
	RecordShareRequestPull(vault [20]byte, batchID [32]byte, shares *big.Int) error
	PushDeposit(vault [20]byte, amount *big.Int) error
	VirtualBalance(vault [20]byte) *big.Int
}

// tokenLedger is the claim/share token surface the staking vault moves escrow
// and share supply on. The share token of a vault is keyed by the vault's own
// address.
type tokenLedger interface {
	Mint(caller, token, to [20]byte, amount *big.Int) error
	Burn(caller, token, from [20]byte, amount *big.Int) error
	Transfer(token, from, to [20]byte, amount *big.Int) error
	TotalSupply(token [20]byte) *big.Int
	BalanceOf(token, holder [20]byte) *big.Int
}

// registryView resolves vault metadata and role checks.
type registryView interface {
	IsAdmin(addr [20]byte) bool
	VaultAsset(vault [20]byte) ([20]byte, bool)
	AssetToKToken(asset [20]byte) ([20]byte, error)
	MaxTotalAssets(vault [20]byte) *big.Int
}

// Engine is the retail staking vault: it escrows claim tokens and shares per
// request, prices claims off settled batch snapshots and carries the fee
// accrual state the settlement coordinator assesses against.
type Engine struct {
	state    engineState
	batches  batchSource
	router   flowRecorder
	tokens   tokenLedger
	reg      registryView
	emitter  events.Emitter
	decimals uint8
	nowFn    func() int64
}

// New constructs a staking vault engine.
func New(state engineState, batches batchSource, router flowRecorder, tokens tokenLedger, reg registryView, decimals uint8) *Engine {
	return &Engine{
		state:    state,
		batches:  batches,
		router:   router,
		tokens:   tokens,
		reg:      reg,
		emitter:  events.NoopEmitter{},
		decimals: decimals,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

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

// SetFeeConfig installs the fee schedule for a vault. Admin only; rates above
// the basis-point cap are rejected.
func (e *Engine) SetFeeConfig(caller, vaultAddr [20]byte, cfg FeeConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.reg == nil || !e.reg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fs, ok, err := e.state.FeeStateGet(vaultAddr)
	if err != nil {
		return err
	}
	if !ok {
		now := e.now()
		fs = &FeeState{
			Watermark:                  PriceScale(e.decimals),
			AccruedFees:                big.NewInt(0),
			LastFeesChargedManagement:  now,
			LastFeesChargedPerformance: now,
		}
	}
	fs.Config = cfg
	return e.state.FeeStatePut(vaultAddr, fs)
}

// FeeState returns a copy of the vault's fee accrual cursor.
func (e *Engine) FeeState(vaultAddr [20]byte) (*FeeState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	fs, ok, err := e.state.FeeStateGet(vaultAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &FeeState{
			Watermark:   PriceScale(e.decimals),
			AccruedFees: big.NewInt(0),
		}, nil
	}
	return fs.Clone(), nil
}

// AssessFees computes the settlement fee accrual for the vault at the
// reported totals. It does not mutate state; CommitFees applies the outcome.
func (e *Engine) AssessFees(vaultAddr [20]byte, totalAssets, totalSupply *big.Int, lastMgmt, lastPerf, now int64) (*FeeAssessment, error) {
	fs, err := e.FeeState(vaultAddr)
	if err != nil {
		return nil, err
	}
	cfg := fs.Config
	management := ManagementFee(totalAssets, lastMgmt, now, cfg.ManagementFeeBps)
	netAfterManagement := new(big.Int).Sub(clone(totalAssets), management)
	if netAfterManagement.Sign() < 0 {
		netAfterManagement.SetInt64(0)
	}
	priceAfterManagement := GrossSharePrice(netAfterManagement, totalSupply, e.decimals)
	performance := PerformanceFee(priceAfterManagement, fs.Watermark, totalSupply, cfg.PerformanceFeeBps, cfg.HurdleRateBps, cfg.HardHurdle, lastPerf, now, e.decimals)

	totalFees := new(big.Int).Add(management, performance)
	totalNet := new(big.Int).Sub(clone(totalAssets), totalFees)
	if totalNet.Sign() < 0 {
		totalNet.SetInt64(0)
	}
	netPrice := GrossSharePrice(totalNet, totalSupply, e.decimals)

	newWatermark := clone(fs.Watermark)
	if newWatermark.Sign() == 0 {
		newWatermark = PriceScale(e.decimals)
	}
	if netPrice.Cmp(newWatermark) > 0 {
		newWatermark = clone(netPrice)
	}
	return &FeeAssessment{
		ManagementFee:  management,
		PerformanceFee: performance,
		TotalFees:      totalFees,
		TotalNetAssets: totalNet,
		SharePrice:     GrossSharePrice(totalAssets, totalSupply, e.decimals),
		NetSharePrice:  netPrice,
		NewWatermark:   newWatermark,
	}, nil
}

// CommitFees folds an assessment into the vault's fee state: accrued fees
// grow, the charge cursors advance and the watermark ratchets up, never down.
func (e *Engine) CommitFees(vaultAddr [20]byte, assessment *FeeAssessment, chargedAt int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if assessment == nil {
		return fmt.Errorf("vault: nil fee assessment")
	}
	fs, err := e.FeeState(vaultAddr)
	if err != nil {
		return err
	}
	fs.AccruedFees = new(big.Int).Add(clone(fs.AccruedFees), clone(assessment.TotalFees))
	fs.LastFeesChargedManagement = chargedAt
	fs.LastFeesChargedPerformance = chargedAt
	if assessment.NewWatermark != nil && assessment.NewWatermark.Cmp(clone(fs.Watermark)) > 0 {
		old := fs.Watermark
		fs.Watermark = clone(assessment.NewWatermark)
		e.emit(events.WatermarkRaised{Vault: vaultAddr, Old: old, New: fs.Watermark})
	}
	if err := e.state.FeeStatePut(vaultAddr, fs); err != nil {
		return err
	}
	if assessment.TotalFees != nil && assessment.TotalFees.Sign() > 0 {
		e.emit(events.FeesCharged{
			Vault:          vaultAddr,
			ManagementFee:  assessment.ManagementFee,
			PerformanceFee: assessment.PerformanceFee,
		})
	}
	return nil
}

func (e *Engine) vaultKToken(vaultAddr [20]byte) ([20]byte, error) {
	asset, ok := e.reg.VaultAsset(vaultAddr)
	if !ok {
		return [20]byte{}, ErrUnknownVault
	}
	return e.reg.AssetToKToken(asset)
}

func (e *Engine) currentOpenBatch(vaultAddr [20]byte) (*batch.Batch, error) {
	batchID, ok, err := e.batches.Current(vaultAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("vault: no active batch for vault %x", vaultAddr)
	}
	b, found, err := e.batches.Get(batchID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("vault: active batch missing for vault %x", vaultAddr)
	}
	if b.Closed {
		return nil, ErrBatchNotOpen
	}
	return b, nil
}

func deriveRequestID(kind byte, vaultAddr, user [20]byte, amount *big.Int, nonce uint64, timestamp int64) [32]byte {
	var nonceBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	return ethcrypto.Keccak256Hash([]byte{kind}, vaultAddr[:], user[:], amount.Bytes(), nonceBuf[:], tsBuf[:])
}

// RequestStake escrows the user's claim tokens with the vault and registers
// the deposit against the current batch. Shares are minted at claim time, at
// the batch's settled net share price.
func (e *Engine) RequestStake(user, vaultAddr, recipient [20]byte, amount *big.Int) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	if user == ([20]byte{}) || recipient == ([20]byte{}) {
		return [32]byte{}, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, ErrZeroAmount
	}
	kToken, err := e.vaultKToken(vaultAddr)
	if err != nil {
		return [32]byte{}, err
	}
	b, err := e.currentOpenBatch(vaultAddr)
	if err != nil {
		return [32]byte{}, err
	}
	if limit := e.reg.MaxTotalAssets(vaultAddr); limit != nil {
		projected := new(big.Int).Add(e.router.VirtualBalance(vaultAddr), amount)
		if projected.Cmp(limit) > 0 {
			return [32]byte{}, ErrCapExceeded
		}
	}
	if err := e.tokens.Transfer(kToken, user, vaultAddr, amount); err != nil {
		return [32]byte{}, err
	}
	if err := e.router.RecordDeposit(vaultAddr, b.ID, amount); err != nil {
		return [32]byte{}, err
	}
	if err := e.router.PushDeposit(vaultAddr, amount); err != nil {
		return [32]byte{}, err
	}
	nonce, err := e.state.NextRequestNonce(vaultAddr)
	if err != nil {
		return [32]byte{}, err
	}
	now := e.now()
	req := &StakeRequest{
		ID:               deriveRequestID(0x01, vaultAddr, user, amount, nonce, now),
		Vault:            vaultAddr,
		User:             user,
		Recipient:        recipient,
		Amount:           new(big.Int).Set(amount),
		BatchID:          b.ID,
		RequestTimestamp: now,
	}
	if err := e.state.StakeRequestPut(req); err != nil {
		return [32]byte{}, err
	}
	e.emit(events.StakeRequested{RequestID: req.ID, User: user, Recipient: recipient, Amount: req.Amount, BatchID: b.ID})
	return req.ID, nil
}

// ClaimStakedShares mints shares for a settled stake request at the settled
// net share price. Only the requesting user may claim, exactly once.
func (e *Engine) ClaimStakedShares(caller [20]byte, requestID [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok, err := e.state.StakeRequestGet(requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != RequestPending {
		return nil, ErrRequestNotPending
	}
	if caller != req.User {
		return nil, ErrUnauthorized
	}
	b, found, err := e.batches.Get(req.BatchID)
	if err != nil {
		return nil, err
	}
	if !found || !b.Settled || b.Snapshot == nil {
		return nil, ErrNotSettled
	}
	shares := ConvertToSharesAtPrice(req.Amount, b.Snapshot.NetSharePrice, e.decimals)
	if shares.Sign() == 0 {
		return nil, fmt.Errorf("vault: stake request rounds to zero shares")
	}
	if err := e.tokens.Mint(req.Vault, req.Vault, req.Recipient, shares); err != nil {
		return nil, err
	}
	req.Status = RequestClaimed
	if err := e.state.StakeRequestPut(req); err != nil {
		return nil, err
	}
	e.emit(events.StakeClaimed{RequestID: req.ID, Recipient: req.Recipient, Amount: req.Amount, Shares: shares, BatchID: req.BatchID})
	return shares, nil
}

// CancelStakeRequest returns the escrow while the owning batch is still open.
func (e *Engine) CancelStakeRequest(caller [20]byte, requestID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, ok, err := e.state.StakeRequestGet(requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != RequestPending {
		return ErrRequestNotPending
	}
	if caller != req.User {
		return ErrUnauthorized
	}
	b, found, err := e.batches.Get(req.BatchID)
	if err != nil {
		return err
	}
	if !found || b.Closed {
		return ErrBatchNotOpen
	}
	if err := e.router.ReleaseDeposit(req.Vault, req.BatchID, req.Amount); err != nil {
		return err
	}
	kToken, err := e.vaultKToken(req.Vault)
	if err != nil {
		return err
	}
	if err := e.tokens.Transfer(kToken, req.Vault, req.User, req.Amount); err != nil {
		return err
	}
	req.Status = RequestCancelled
	if err := e.state.StakeRequestPut(req); err != nil {
		return err
	}
	e.emit(events.StakeRequestCancelled{RequestID: req.ID, User: req.User, Amount: req.Amount, BatchID: req.BatchID})
	return nil
}

// RequestUnstake escrows the user's shares with the vault and registers the
// share-denominated redemption against the current batch.
func (e *Engine) RequestUnstake(user, vaultAddr, recipient [20]byte, shares *big.Int) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	if user == ([20]byte{}) || recipient == ([20]byte{}) {
		return [32]byte{}, ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return [32]byte{}, ErrZeroAmount
	}
	b, err := e.currentOpenBatch(vaultAddr)
	if err != nil {
		return [32]byte{}, err
	}
	if err := e.tokens.Transfer(vaultAddr, user, vaultAddr, shares); err != nil {
		return [32]byte{}, err
	}
	if err := e.router.RecordShareRequestPush(vaultAddr, b.ID, shares); err != nil {
		return [32]byte{}, err
	}
	nonce, err := e.state.NextRequestNonce(vaultAddr)
	if err != nil {
		return [32]byte{}, err
	}
	now := e.now()
	req := &UnstakeRequest{
		ID:               deriveRequestID(0x02, vaultAddr, user, shares, nonce, now),
		Vault:            vaultAddr,
		User:             user,
		Recipient:        recipient,
		Shares:           new(big.Int).Set(shares),
		BatchID:          b.ID,
		RequestTimestamp: now,
	}
	if err := e.state.UnstakeRequestPut(req); err != nil {
		return [32]byte{}, err
	}
	e.emit(events.UnstakeRequested{RequestID: req.ID, User: user, Recipient: recipient, Shares: req.Shares, BatchID: b.ID})
	return req.ID, nil
}

// ClaimUnstakedAssets burns the escrowed shares of a settled unstake request
// and releases claim tokens from the vault's holding at the settled net share
// price.
func (e *Engine) ClaimUnstakedAssets(caller [20]byte, requestID [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok, err := e.state.UnstakeRequestGet(requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != RequestPending {
		return nil, ErrRequestNotPending
	}
	if caller != req.User {
		return nil, ErrUnauthorized
	}
	b, found, err := e.batches.Get(req.BatchID)
	if err != nil {
		return nil, err
	}
	if !found || !b.Settled || b.Snapshot == nil {
		return nil, ErrNotSettled
	}
	assets := ConvertToAssetsAtPrice(req.Shares, b.Snapshot.NetSharePrice, e.decimals)
	if assets.Sign() == 0 {
		return nil, fmt.Errorf("vault: unstake request rounds to zero assets")
	}
	if err := e.tokens.Burn(req.Vault, req.Vault, req.Vault, req.Shares); err != nil {
		return nil, err
	}
	kToken, err := e.vaultKToken(req.Vault)
	if err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(kToken, req.Vault, req.Recipient, assets); err != nil {
		return nil, err
	}
	req.Status = RequestClaimed
	if err := e.state.UnstakeRequestPut(req); err != nil {
		return nil, err
	}
	e.emit(events.UnstakeClaimed{RequestID: req.ID, Recipient: req.Recipient, Shares: req.Shares, Assets: assets, BatchID: req.BatchID})
	return assets, nil
}

// CancelUnstakeRequest returns the escrowed shares while the owning batch is
// still open.
func (e *Engine) CancelUnstakeRequest(caller [20]byte, requestID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, ok, err := e.state.UnstakeRequestGet(requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != RequestPending {
		return ErrRequestNotPending
	}
	if caller != req.User {
		return ErrUnauthorized
	}
	b, found, err := e.batches.Get(req.BatchID)
	if err != nil {
		return err
	}
	if !found || b.Closed {
		return ErrBatchNotOpen
	}
	if err := e.router.RecordShareRequestPull(req.Vault, req.BatchID, req.Shares); err != nil {
		return err
	}
	if err := e.tokens.Transfer(req.Vault, req.Vault, req.User, req.Shares); err != nil {
		return err
	}
	req.Status = RequestCancelled
	if err := e.state.UnstakeRequestPut(req); err != nil {
		return err
	}
	e.emit(events.UnstakeRequestCancelled{RequestID: req.ID, User: req.User, Shares: req.Shares, BatchID: req.BatchID})
	return nil
}

// StakeRequest returns a copy of the stake request.
func (e *Engine) StakeRequest(id [32]byte) (*StakeRequest, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.StakeRequestGet(id)
}

// UnstakeRequest returns a copy of the unstake request.
func (e *Engine) UnstakeRequest(id [32]byte) (*UnstakeRequest, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.UnstakeRequestGet(id)
}
