package router

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"kvault/core/events"
	"kvault/native/adapter"
	"kvault/native/batch"
	"kvault/native/registry"
	"kvault/native/vault"
	"kvault/observability/metrics"
)

const (
	// DefaultCooldown is the settlement review window opened by a proposal.
	DefaultCooldown = time.Hour
	// MaxCooldown caps admin reconfiguration of the cooldown.
	MaxCooldown = 24 * time.Hour
	// DefaultYieldToleranceBps is the deviation of proposed yield from prior
	// totals beyond which a warning is emitted.
	DefaultYieldToleranceBps = 1_000
)

var (
	errNilState = errors.New("router: state not configured")

	// ErrUnauthorized rejects privileged calls from the wrong role.
	ErrUnauthorized = errors.New("router: unauthorized caller")
	// ErrZeroAmount rejects zero-amount flow records.
	ErrZeroAmount = errors.New("router: zero amount")
	// ErrBatchNotFound is returned when the referenced batch is unknown.
	ErrBatchNotFound = errors.New("router: batch not found")
	// ErrBatchClosed rejects new flow records against a closed batch.
	ErrBatchClosed = errors.New("router: batch closed")
	// ErrBatchNotClosed rejects settlement proposals for open batches.
	ErrBatchNotClosed = errors.New("router: batch not closed")
	// ErrBatchSettled rejects proposals for already-settled batches.
	ErrBatchSettled = errors.New("router: batch already settled")
	// ErrProposalPending enforces the single-flight constraint per vault.
	ErrProposalPending = errors.New("router: settlement proposal already pending for vault")
	// ErrProposalNotFound is returned when the referenced proposal is unknown.
	ErrProposalNotFound = errors.New("router: proposal not found")
	// ErrAlreadyExecuted rejects re-execution of an executed proposal.
	ErrAlreadyExecuted = errors.New("router: proposal already executed")
	// ErrCooldownActive rejects execution before the cooldown elapses.
	ErrCooldownActive = errors.New("router: cooldown not elapsed")
	// ErrInsufficientVirtualBalance rejects redemption requests exceeding the
	// vault's aggregated adapter holdings.
	ErrInsufficientVirtualBalance = errors.New("router: insufficient virtual balance")
	// ErrCooldownTooLong rejects cooldown configuration above the cap.
	ErrCooldownTooLong = errors.New("router: cooldown exceeds cap")
	// ErrToleranceOutOfRange rejects tolerance configuration above 100%.
	ErrToleranceOutOfRange = errors.New("router: tolerance bps out of range")
	// ErrUnknownVault is returned when the registry has no record of a vault.
	ErrUnknownVault = errors.New("router: unknown vault")
)

// engineState abstracts the durable router ledger: per-batch balances, the
// proposal set, the pending single-flight markers and the executed set.
type engineState interface {
	BalancesGet(vault [20]byte, batchID [32]byte) (*Balances, bool, error)
	BalancesPut(vault [20]byte, batchID [32]byte, balances *Balances) error
	ProposalPut(*Proposal) error
	ProposalGet(id [32]byte) (*Proposal, bool, error)
	ProposalDelete(id [32]byte) error
	PendingProposal(vault [20]byte) ([32]byte, bool, error)
	SetPendingProposal(vault [20]byte, id [32]byte) error
	ClearPendingProposal(vault [20]byte) error
	MarkExecuted(id [32]byte) error
	IsExecuted(id [32]byte) (bool, error)
	LastTotalAssets(vault [20]byte) (*big.Int, error)
	SetLastTotalAssets(vault [20]byte, total *big.Int) error
	YieldShortfall(vault [20]byte) (*big.Int, error)
	SetYieldShortfall(vault [20]byte, amount *big.Int) error
}

// batchLedger is the slice of the batch lifecycle the router drives.
type batchLedger interface {
	Get(id [32]byte) (*batch.Batch, bool, error)
	MarkSettled(caller [20]byte, id [32]byte, snapshot *batch.Snapshot) error
	SetReceiver(caller [20]byte, id [32]byte, receiver [20]byte) error
	RecordFlows(id [32]byte, depositedDelta, withdrawnDelta *big.Int) error
}

// tokenLedger is the claim-token surface the router mutates at settlement.
type tokenLedger interface {
	Mint(caller, token, to [20]byte, amount *big.Int) error
	Burn(caller, token, from [20]byte, amount *big.Int) error
	TotalSupply(token [20]byte) *big.Int
	BalanceOf(token, holder [20]byte) *big.Int
}

// registryView is the injected lookup/role context.
type registryView interface {
	IsAdmin(addr [20]byte) bool
	IsRelayer(addr [20]byte) bool
	IsGuardian(addr [20]byte) bool
	AssetToKToken(asset [20]byte) ([20]byte, error)
	VaultKind(vault [20]byte) (registry.VaultType, bool)
	VaultByAssetAndType(asset [20]byte, kind registry.VaultType) ([20]byte, error)
}

// FeePolicy assesses and commits settlement fee accrual for staking vaults.
// Implemented by the staking vault engine.
type FeePolicy interface {
	AssessFees(vaultAddr [20]byte, totalAssets, totalSupply *big.Int, lastMgmt, lastPerf, now int64) (*vault.FeeAssessment, error)
	CommitFees(vaultAddr [20]byte, assessment *vault.FeeAssessment, chargedAt int64) error
}

// DistributionBank receives the settled redemption assets for a batch and
// returns the per-batch receiver handle claimants later pull from.
type DistributionBank interface {
	FundBatch(batchID [32]byte, asset [20]byte, amount *big.Int, authorizedCaller [20]byte) ([20]byte, error)
}

// Engine is the asset router: the virtual balance ledger plus the settlement
// proposal state machine. Every mutating operation on a vault is serialized
// behind a per-vault lock so the single-flight and atomicity guarantees hold
// outside a transaction-serialized substrate.
type Engine struct {
	state     engineState
	batches   batchLedger
	tokens    tokenLedger
	reg       registryView
	fees      FeePolicy
	bank      DistributionBank
	emitter   events.Emitter
	telemetry *metrics.SettlementMetrics

	self     [20]byte
	decimals uint8

	cooldown     time.Duration
	toleranceBps uint64

	adaptersMu sync.RWMutex
	adapters   map[[20]byte][]adapter.Adapter

	locksMu sync.Mutex
	locks   map[[20]byte]*sync.Mutex

	nowFn func() int64
}

// New constructs a router engine. The self address identifies the router when
// it authorizes itself to the batch ledger and token ledger.
func New(state engineState, batches batchLedger, tokens tokenLedger, reg registryView, self [20]byte, decimals uint8) *Engine {
	return &Engine{
		state:        state,
		batches:      batches,
		tokens:       tokens,
		reg:          reg,
		emitter:      events.NoopEmitter{},
		telemetry:    metrics.Settlement(),
		self:         self,
		decimals:     decimals,
		cooldown:     DefaultCooldown,
		toleranceBps: DefaultYieldToleranceBps,
		adapters:     make(map[[20]byte][]adapter.Adapter),
		locks:        make(map[[20]byte]*sync.Mutex),
		nowFn:        func() int64 { return time.Now().Unix() },
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

// SetFeePolicy wires the staking vault fee assessor.
func (e *Engine) SetFeePolicy(fees FeePolicy) { e.fees = fees }

// SetDistributionBank wires the per-batch redemption distributor arena.
func (e *Engine) SetDistributionBank(bank DistributionBank) { e.bank = bank }

// Self returns the router's own address.
func (e *Engine) Self() [20]byte { return e.self }

// SetCooldown reconfigures the settlement cooldown. Admin only, capped at
// MaxCooldown.
func (e *Engine) SetCooldown(caller [20]byte, cooldown time.Duration) error {
	if e.reg == nil || !e.reg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if cooldown <= 0 || cooldown > MaxCooldown {
		return ErrCooldownTooLong
	}
	e.cooldown = cooldown
	return nil
}

// SetYieldTolerance reconfigures the yield deviation warning threshold.
func (e *Engine) SetYieldTolerance(caller [20]byte, bps uint64) error {
	if e.reg == nil || !e.reg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if bps > 10_000 {
		return ErrToleranceOutOfRange
	}
	e.toleranceBps = bps
	return nil
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

func (e *Engine) vaultLock(vaultAddr [20]byte) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[vaultAddr]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[vaultAddr] = lock
	}
	return lock
}

// RegisterAdapter attaches a strategy adapter to the vault. Admin only.
func (e *Engine) RegisterAdapter(caller, vaultAddr [20]byte, a adapter.Adapter) error {
	if e.reg == nil || !e.reg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if a == nil {
		return fmt.Errorf("router: nil adapter")
	}
	e.adaptersMu.Lock()
	defer e.adaptersMu.Unlock()
	e.adapters[vaultAddr] = append(e.adapters[vaultAddr], a)
	return nil
}

// VirtualBalance aggregates the point-in-time valuation reported by every
// adapter attached to the vault. This is the authoritative figure the vault's
// obligations draw against, independent of where the assets physically sit.
func (e *Engine) VirtualBalance(vaultAddr [20]byte) *big.Int {
	e.adaptersMu.RLock()
	defer e.adaptersMu.RUnlock()
	total := big.NewInt(0)
	for _, a := range e.adapters[vaultAddr] {
		if reported := a.TotalAssets(); reported != nil && reported.Sign() > 0 {
			total.Add(total, reported)
		}
	}
	e.telemetry.SetVirtualBalance(addrLabel(vaultAddr), total)
	return total
}

// CheckSufficientVirtualBalance fails when the vault cannot cover the
// required amount from its adapters.
func (e *Engine) CheckSufficientVirtualBalance(vaultAddr [20]byte, required *big.Int) error {
	if required == nil || required.Sign() == 0 {
		return ErrZeroAmount
	}
	if e.VirtualBalance(vaultAddr).Cmp(required) < 0 {
		return ErrInsufficientVirtualBalance
	}
	return nil
}

// PushDeposit credits an asset push to the vault's first depositable adapter
// so the virtual balance reflects inbound flows immediately.
func (e *Engine) PushDeposit(vaultAddr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	e.adaptersMu.RLock()
	defer e.adaptersMu.RUnlock()
	for _, a := range e.adapters[vaultAddr] {
		if dep, ok := a.(interface{ Credit(*big.Int) }); ok {
			dep.Credit(amount)
			return nil
		}
	}
	return fmt.Errorf("router: no depositable adapter for vault %x", vaultAddr)
}

func (e *Engine) pullFromAdapters(vaultAddr, asset [20]byte, amount *big.Int) error {
	e.adaptersMu.RLock()
	defer e.adaptersMu.RUnlock()
	remaining := new(big.Int).Set(amount)
	for _, a := range e.adapters[vaultAddr] {
		if remaining.Sign() == 0 {
			break
		}
		available := a.TotalAssets()
		if available == nil || available.Sign() == 0 {
			continue
		}
		pull := new(big.Int).Set(remaining)
		if available.Cmp(pull) < 0 {
			pull.Set(available)
		}
		if err := a.Pull(asset, pull); err != nil {
			return err
		}
		remaining.Sub(remaining, pull)
	}
	if remaining.Sign() > 0 {
		return ErrInsufficientVirtualBalance
	}
	return nil
}

func (e *Engine) openBatchBalances(vaultAddr [20]byte, batchID [32]byte) (*batch.Batch, *Balances, error) {
	b, ok, err := e.batches.Get(batchID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrBatchNotFound
	}
	if b.Closed {
		return nil, nil, ErrBatchClosed
	}
	balances, _, err := e.state.BalancesGet(vaultAddr, batchID)
	if err != nil {
		return nil, nil, err
	}
	return b, balances.normalize(), nil
}

// RecordDeposit registers asset inflow against the vault's open batch.
func (e *Engine) RecordDeposit(vaultAddr [20]byte, batchID [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	lock := e.vaultLock(vaultAddr)
	lock.Lock()
	defer lock.Unlock()
	_, balances, err := e.openBatchBalances(vaultAddr, batchID)
	if err != nil {
		return err
	}
	balances.Deposited = new(big.Int).Add(balances.Deposited, amount)
	if err := e.state.BalancesPut(vaultAddr, batchID, balances); err != nil {
		return err
	}
	return e.batches.RecordFlows(batchID, amount, nil)
}

// RecordRequestPull registers an asset-denominated redemption request against
// the vault's open batch. The cumulative requested obligation must stay
// within the vault's virtual balance.
func (e *Engine) RecordRequestPull(vaultAddr [20]byte, batchID [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	lock := e.vaultLock(vaultAddr)
	lock.Lock()
	defer lock.Unlock()
	_, balances, err := e.openBatchBalances(vaultAddr, batchID)
	if err != nil {
		return err
	}
	required := new(big.Int).Add(balances.Requested, amount)
	if err := e.CheckSufficientVirtualBalance(vaultAddr, required); err != nil {
		return err
	}
	balances.Requested = required
	if err := e.state.BalancesPut(vaultAddr, batchID, balances); err != nil {
		return err
	}
	return e.batches.RecordFlows(batchID, nil, amount)
}

// RecordShareRequestPush registers a share-denominated redemption request
// against the vault's open batch.
func (e *Engine) RecordShareRequestPush(vaultAddr [20]byte, batchID [32]byte, shares *big.Int) error {
	return e.adjustShareRequest(vaultAddr, batchID, shares, true)
}

// RecordShareRequestPull removes a share-denominated redemption request from
// the vault's open batch (request cancellation).
func (e *Engine) RecordShareRequestPull(vaultAddr [20]byte, batchID [32]byte, shares *big.Int) error {
	return e.adjustShareRequest(vaultAddr, batchID, shares, false)
}

func (e *Engine) adjustShareRequest(vaultAddr [20]byte, batchID [32]byte, shares *big.Int, push bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if shares == nil || shares.Sign() <= 0 {
		return ErrZeroAmount
	}
	lock := e.vaultLock(vaultAddr)
	lock.Lock()
	defer lock.Unlock()
	_, balances, err := e.openBatchBalances(vaultAddr, batchID)
	if err != nil {
		return err
	}
	if push {
		balances.RequestedShares = new(big.Int).Add(balances.RequestedShares, shares)
	} else {
		next := new(big.Int).Sub(balances.RequestedShares, shares)
		if next.Sign() < 0 {
			return fmt.Errorf("router: share request underflow")
		}
		balances.RequestedShares = next
	}
	return e.state.BalancesPut(vaultAddr, batchID, balances)
}

// ReleaseDeposit removes a deposit from the vault's open batch (request
// cancellation before close).
func (e *Engine) ReleaseDeposit(vaultAddr [20]byte, batchID [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	lock := e.vaultLock(vaultAddr)
	lock.Lock()
	defer lock.Unlock()
	_, balances, err := e.openBatchBalances(vaultAddr, batchID)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(balances.Deposited, amount)
	if next.Sign() < 0 {
		return fmt.Errorf("router: deposit underflow")
	}
	balances.Deposited = next
	return e.state.BalancesPut(vaultAddr, batchID, balances)
}

// ReleaseRequestPull removes an asset-denominated redemption request from the
// vault's open batch (request cancellation before close).
func (e *Engine) ReleaseRequestPull(vaultAddr [20]byte, batchID [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	lock := e.vaultLock(vaultAddr)
	lock.Lock()
	defer lock.Unlock()
	_, balances, err := e.openBatchBalances(vaultAddr, batchID)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(balances.Requested, amount)
	if next.Sign() < 0 {
		return fmt.Errorf("router: request underflow")
	}
	balances.Requested = next
	return e.state.BalancesPut(vaultAddr, batchID, balances)
}

// BatchBalances returns a copy of the flow counters for a (vault, batch)
// pair.
func (e *Engine) BatchBalances(vaultAddr [20]byte, batchID [32]byte) (*Balances, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balances, _, err := e.state.BalancesGet(vaultAddr, batchID)
	if err != nil {
		return nil, err
	}
	return balances.normalize(), nil
}

func addrLabel(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func deriveProposalID(vaultAddr [20]byte, batchID [32]byte, timestamp int64) [32]byte {
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	return ethcrypto.Keccak256Hash(vaultAddr[:], batchID[:], []byte("settlement"), tsBuf[:])
}

// ProposeSettleBatch opens a settlement proposal for a closed batch and
// starts the cooldown. The relayer supplies the adapters' reported total and
// the fee accrual cursor timestamps. At most one proposal may be pending per
// vault.
func (e *Engine) ProposeSettleBatch(caller, asset, vaultAddr [20]byte, batchID [32]byte, totalAssetsReported *big.Int, lastFeesManagement, lastFeesPerformance int64) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	if e.reg == nil || !e.reg.IsRelayer(caller) {
		return [32]byte{}, ErrUnauthorized
	}
	if totalAssetsReported == nil || totalAssetsReported.Sign() < 0 {
		return [32]byte{}, fmt.Errorf("router: invalid reported total")
	}
	kind, ok := e.reg.VaultKind(vaultAddr)
	if !ok {
		return [32]byte{}, ErrUnknownVault
	}

	lock := e.vaultLock(vaultAddr)
	lock.Lock()
	defer lock.Unlock()

	b, found, err := e.batches.Get(batchID)
	if err != nil {
		return [32]byte{}, err
	}
	if !found {
		return [32]byte{}, ErrBatchNotFound
	}
	if b.Vault != vaultAddr || b.Asset != asset {
		return [32]byte{}, fmt.Errorf("router: batch does not belong to vault/asset")
	}
	if !b.Closed {
		return [32]byte{}, ErrBatchNotClosed
	}
	if b.Settled {
		return [32]byte{}, ErrBatchSettled
	}

	// Single-flight: check-and-set under the vault lock.
	if _, pending, err := e.state.PendingProposal(vaultAddr); err != nil {
		return [32]byte{}, err
	} else if pending {
		return [32]byte{}, ErrProposalPending
	}

	balances, _, err := e.state.BalancesGet(vaultAddr, batchID)
	if err != nil {
		return [32]byte{}, err
	}
	balances = balances.normalize()

	requestedAssets := new(big.Int).Set(balances.Requested)
	if kind == registry.VaultTypeStaking && balances.RequestedShares.Sign() > 0 {
		shareSupply := e.tokens.TotalSupply(vaultAddr)
		requestedAssets.Add(requestedAssets, vault.ConvertToAssets(balances.RequestedShares, totalAssetsReported, shareSupply, e.decimals))
	}

	netted := new(big.Int).Sub(balances.Deposited, requestedAssets)

	previous, err := e.state.LastTotalAssets(vaultAddr)
	if err != nil {
		return [32]byte{}, err
	}
	yield := new(big.Int).Sub(totalAssetsReported, netted)
	yield.Sub(yield, cloneBigInt(previous))

	now := e.now()
	proposal := &Proposal{
		ID:                         deriveProposalID(vaultAddr, batchID, now),
		Asset:                      asset,
		Vault:                      vaultAddr,
		BatchID:                    batchID,
		TotalAssets:                new(big.Int).Set(totalAssetsReported),
		Netted:                     netted,
		Yield:                      yield,
		ExecuteAfter:               now + int64(e.cooldown/time.Second),
		LastFeesChargedManagement:  lastFeesManagement,
		LastFeesChargedPerformance: lastFeesPerformance,
		CreatedAt:                  now,
	}
	if err := e.state.ProposalPut(proposal); err != nil {
		return [32]byte{}, err
	}
	if err := e.state.SetPendingProposal(vaultAddr, proposal.ID); err != nil {
		return [32]byte{}, err
	}

	// Tolerance breaches warn rather than block: guardians review during the
	// cooldown and cancel if the reported total looks wrong.
	if tolerance := e.yieldTolerance(previous, totalAssetsReported); tolerance != nil {
		if new(big.Int).Abs(yield).Cmp(tolerance) > 0 {
			e.telemetry.ObserveToleranceBreach(addrLabel(vaultAddr))
			e.emit(events.YieldToleranceExceeded{
				ProposalID: proposal.ID,
				Vault:      vaultAddr,
				BatchID:    batchID,
				Yield:      proposal.Yield,
				Tolerance:  tolerance,
			})
		}
	}

	e.telemetry.ObserveProposalCreated(addrLabel(vaultAddr))
	e.emit(events.SettlementProposed{
		ProposalID:   proposal.ID,
		Vault:        vaultAddr,
		Asset:        asset,
		BatchID:      batchID,
		TotalAssets:  proposal.TotalAssets,
		Netted:       proposal.Netted,
		Yield:        proposal.Yield,
		ExecuteAfter: proposal.ExecuteAfter,
	})
	return proposal.ID, nil
}

// yieldTolerance computes the absolute deviation allowance from the prior
// totals basis. Nil disables the check.
func (e *Engine) yieldTolerance(previous, reported *big.Int) *big.Int {
	if e.toleranceBps == 0 {
		return nil
	}
	basis := cloneBigInt(previous)
	if basis.Sign() == 0 {
		basis = cloneBigInt(reported)
	}
	if basis.Sign() == 0 {
		return nil
	}
	tolerance := new(big.Int).Mul(basis, new(big.Int).SetUint64(e.toleranceBps))
	return tolerance.Div(tolerance, big.NewInt(10_000))
}

// ExecuteSettleBatch applies a matured proposal: adjusts claim-token supply
// by the signed yield, snapshots the batch as settled and funds the per-batch
// redemption distributor. Anyone may execute once the cooldown has elapsed;
// execution is idempotent-fail on replay.
func (e *Engine) ExecuteSettleBatch(proposalID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	executed, err := e.state.IsExecuted(proposalID)
	if err != nil {
		return err
	}
	if executed {
		return ErrAlreadyExecuted
	}
	proposal, ok, err := e.state.ProposalGet(proposalID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProposalNotFound
	}
	now := e.now()
	if now < proposal.ExecuteAfter {
		return ErrCooldownActive
	}

	lock := e.vaultLock(proposal.Vault)
	lock.Lock()
	defer lock.Unlock()

	// Re-check the executed set inside the lock: two racing executors must
	// not both apply supply changes.
	if executed, err := e.state.IsExecuted(proposalID); err != nil {
		return err
	} else if executed {
		return ErrAlreadyExecuted
	}

	b, found, err := e.batches.Get(proposal.BatchID)
	if err != nil {
		return err
	}
	if !found {
		return ErrBatchNotFound
	}
	if b.Settled {
		return ErrBatchSettled
	}

	kind, ok := e.reg.VaultKind(proposal.Vault)
	if !ok {
		return ErrUnknownVault
	}
	kToken, err := e.reg.AssetToKToken(proposal.Asset)
	if err != nil {
		return err
	}

	balances, _, err := e.state.BalancesGet(proposal.Vault, proposal.BatchID)
	if err != nil {
		return err
	}
	balances = balances.normalize()
	requestedAssets := proposal.RequestedAssets(balances.Deposited)

	var assessment *vault.FeeAssessment
	var shareSupply *big.Int
	if kind == registry.VaultTypeStaking && e.fees != nil {
		shareSupply = e.tokens.TotalSupply(proposal.Vault)
		assessment, err = e.fees.AssessFees(proposal.Vault, proposal.TotalAssets, shareSupply, proposal.LastFeesChargedManagement, proposal.LastFeesChargedPerformance, now)
		if err != nil {
			return err
		}
	}

	// Every fallible effect runs before the first ledger transition: a failed
	// execution must leave batch, supply and proposal state exactly as found,
	// so a later retry (or a guardian cancel) still works.
	//
	// Adapter value can drop during the cooldown, so the virtual balance is
	// re-checked here, not just at request time.
	if requestedAssets.Sign() > 0 {
		if e.VirtualBalance(proposal.Vault).Cmp(requestedAssets) < 0 {
			return ErrInsufficientVirtualBalance
		}
		if err := e.pullFromAdapters(proposal.Vault, proposal.Asset, requestedAssets); err != nil {
			return err
		}
	}
	// Institutional batches park the settled assets in the batch's isolated
	// distributor; retail claims pay out of the staking vault's own holding.
	var receiver [20]byte
	hasReceiver := false
	if kind == registry.VaultTypeMinter && balances.Requested.Sign() > 0 && e.bank != nil {
		authorized := e.authorizedClaimant(proposal.Asset, kind)
		receiver, err = e.bank.FundBatch(proposal.BatchID, proposal.Asset, balances.Requested, authorized)
		if err != nil {
			return err
		}
		hasReceiver = true
	}

	minted, burned, shortfall, err := e.applyYield(kToken, proposal.Vault, proposal.Yield)
	if err != nil {
		return err
	}

	snapshot := &batch.Snapshot{TotalAssets: cloneBigInt(proposal.TotalAssets)}
	if assessment != nil {
		snapshot.TotalNetAssets = cloneBigInt(assessment.TotalNetAssets)
		snapshot.TotalSupply = shareSupply
		snapshot.SharePrice = cloneBigInt(assessment.SharePrice)
		snapshot.NetSharePrice = cloneBigInt(assessment.NetSharePrice)
	} else {
		supply := e.tokens.TotalSupply(kToken)
		scale := vault.PriceScale(e.decimals)
		snapshot.TotalNetAssets = cloneBigInt(proposal.TotalAssets)
		snapshot.TotalSupply = supply
		snapshot.SharePrice = scale
		snapshot.NetSharePrice = new(big.Int).Set(scale)
	}

	if err := e.batches.MarkSettled(e.self, proposal.BatchID, snapshot); err != nil {
		return err
	}
	if hasReceiver {
		if err := e.batches.SetReceiver(e.self, proposal.BatchID, receiver); err != nil {
			return err
		}
	}

	remaining := new(big.Int).Sub(cloneBigInt(proposal.TotalAssets), requestedAssets)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	if err := e.state.SetLastTotalAssets(proposal.Vault, remaining); err != nil {
		return err
	}
	if assessment != nil {
		if err := e.fees.CommitFees(proposal.Vault, assessment, now); err != nil {
			return err
		}
	}
	if err := e.state.MarkExecuted(proposalID); err != nil {
		return err
	}
	if err := e.state.ClearPendingProposal(proposal.Vault); err != nil {
		return err
	}
	label := addrLabel(proposal.Vault)
	e.telemetry.ObserveProposalExecuted(label)
	e.telemetry.ObserveBatchSettled(label)
	e.telemetry.SetYield(label, proposal.Yield)
	e.emit(events.SettlementExecuted{
		ProposalID: proposalID,
		Vault:      proposal.Vault,
		BatchID:    proposal.BatchID,
		Yield:      proposal.Yield,
		Minted:     minted,
		Burned:     burned,
		Shortfall:  shortfall,
	})
	return nil
}

// applyYield adjusts claim-token supply by the signed yield against the
// vault's own holding. A loss larger than that holding burns what is there
// and records the remainder as the vault's shortfall; later gains repay the
// shortfall before any new supply is minted. The returned shortfall is the
// outstanding balance after this settlement.
func (e *Engine) applyYield(kToken, vaultAddr [20]byte, yield *big.Int) (minted, burned, shortfall *big.Int, err error) {
	minted = big.NewInt(0)
	burned = big.NewInt(0)
	shortfall, err = e.state.YieldShortfall(vaultAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	switch yield.Sign() {
	case 1:
		gain := new(big.Int).Set(yield)
		if shortfall.Sign() > 0 {
			repay := new(big.Int).Set(shortfall)
			if gain.Cmp(repay) < 0 {
				repay.Set(gain)
			}
			shortfall = new(big.Int).Sub(shortfall, repay)
			gain.Sub(gain, repay)
			if err := e.state.SetYieldShortfall(vaultAddr, shortfall); err != nil {
				return nil, nil, nil, err
			}
		}
		if gain.Sign() > 0 {
			if err := e.tokens.Mint(e.self, kToken, vaultAddr, gain); err != nil {
				return nil, nil, nil, err
			}
			minted = gain
		}
	case -1:
		loss := new(big.Int).Abs(yield)
		burn := new(big.Int).Set(loss)
		if held := e.tokens.BalanceOf(kToken, vaultAddr); held.Cmp(burn) < 0 {
			burn.Set(held)
		}
		if burn.Sign() > 0 {
			if err := e.tokens.Burn(e.self, kToken, vaultAddr, burn); err != nil {
				return nil, nil, nil, err
			}
			burned = burn
		}
		if rest := new(big.Int).Sub(loss, burn); rest.Sign() > 0 {
			shortfall = new(big.Int).Add(shortfall, rest)
			if err := e.state.SetYieldShortfall(vaultAddr, shortfall); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	return minted, burned, shortfall, nil
}

// YieldShortfall returns the vault's outstanding unabsorbed loss, zero when
// supply fully tracks reported assets.
func (e *Engine) YieldShortfall(vaultAddr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.YieldShortfall(vaultAddr)
}

// authorizedClaimant resolves which address may pull from the distributor
// for the vault kind: the asset's minter vault for institutional batches,
// the staking vault itself for retail batches.
func (e *Engine) authorizedClaimant(asset [20]byte, kind registry.VaultType) [20]byte {
	if addr, err := e.reg.VaultByAssetAndType(asset, kind); err == nil {
		return addr
	}
	return e.self
}

// CancelProposal removes a pending proposal before execution. Guardian only.
func (e *Engine) CancelProposal(caller [20]byte, proposalID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.reg == nil || !e.reg.IsGuardian(caller) {
		return ErrUnauthorized
	}
	executed, err := e.state.IsExecuted(proposalID)
	if err != nil {
		return err
	}
	if executed {
		return ErrAlreadyExecuted
	}
	proposal, ok, err := e.state.ProposalGet(proposalID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProposalNotFound
	}
	lock := e.vaultLock(proposal.Vault)
	lock.Lock()
	defer lock.Unlock()
	if err := e.state.ProposalDelete(proposalID); err != nil {
		return err
	}
	if err := e.state.ClearPendingProposal(proposal.Vault); err != nil {
		return err
	}
	e.telemetry.ObserveProposalCancelled(addrLabel(proposal.Vault))
	e.emit(events.SettlementCancelled{
		ProposalID: proposalID,
		Vault:      proposal.Vault,
		BatchID:    proposal.BatchID,
		Guardian:   caller,
	})
	return nil
}

// PendingProposal returns the vault's pending proposal, if any.
func (e *Engine) PendingProposal(vaultAddr [20]byte) (*Proposal, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	id, pending, err := e.state.PendingProposal(vaultAddr)
	if err != nil || !pending {
		return nil, false, err
	}
	return e.state.ProposalGet(id)
}
