package vault

import (
	"errors"
	"math/big"
	"testing"

	"kvault/core/events"
	"kvault/native/batch"
	"kvault/native/token"
)

type mockState struct {
	stakes    map[[32]byte]*StakeRequest
	unstakes  map[[32]byte]*UnstakeRequest
	feeStates map[[20]byte]*FeeState
	nonces    map[[20]byte]uint64
}

func newMockState() *mockState {
	return &mockState{
		stakes:    make(map[[32]byte]*StakeRequest),
		unstakes:  make(map[[32]byte]*UnstakeRequest),
		feeStates: make(map[[20]byte]*FeeState),
		nonces:    make(map[[20]byte]uint64),
	}
}

func (m *mockState) StakeRequestPut(req *StakeRequest) error {
	m.stakes[req.ID] = req.Clone()
	return nil
}

func (m *mockState) StakeRequestGet(id [32]byte) (*StakeRequest, bool, error) {
	req, ok := m.stakes[id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (m *mockState) UnstakeRequestPut(req *UnstakeRequest) error {
	m.unstakes[req.ID] = req.Clone()
	return nil
}

func (m *mockState) UnstakeRequestGet(id [32]byte) (*UnstakeRequest, bool, error) {
	req, ok := m.unstakes[id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (m *mockState) FeeStateGet(vault [20]byte) (*FeeState, bool, error) {
	fs, ok := m.feeStates[vault]
	if !ok {
		return nil, false, nil
	}
	return fs.Clone(), true, nil
}

func (m *mockState) FeeStatePut(vault [20]byte, fs *FeeState) error {
	m.feeStates[vault] = fs.Clone()
	return nil
}

func (m *mockState) NextRequestNonce(vault [20]byte) (uint64, error) {
	m.nonces[vault]++
	return m.nonces[vault], nil
}

type mockBatches struct {
	batches map[[32]byte]*batch.Batch
	current map[[20]byte][32]byte
}

func newMockBatches() *mockBatches {
	return &mockBatches{
		batches: make(map[[32]byte]*batch.Batch),
		current: make(map[[20]byte][32]byte),
	}
}

func (m *mockBatches) Get(id [32]byte) (*batch.Batch, bool, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *mockBatches) Current(vault [20]byte) ([32]byte, bool, error) {
	id, ok := m.current[vault]
	return id, ok, nil
}

type mockRouter struct {
	deposits    *big.Int
	released    *big.Int
	sharePushes *big.Int
	sharePulls  *big.Int
	pushed      *big.Int
	virtual     *big.Int
}

func newMockRouter() *mockRouter {
	return &mockRouter{
		deposits:    big.NewInt(0),
		released:    big.NewInt(0),
		sharePushes: big.NewInt(0),
		sharePulls:  big.NewInt(0),
		pushed:      big.NewInt(0),
		virtual:     big.NewInt(0),
	}
}

func (m *mockRouter) RecordDeposit(vault [20]byte, batchID [32]byte, amount *big.Int) error {
	m.deposits.Add(m.deposits, amount)
	return nil
}

func (m *mockRouter) ReleaseDeposit(vault [20]byte, batchID [32]byte, amount *big.Int) error {
	m.released.Add(m.released, amount)
	return nil
}

func (m *mockRouter) RecordShareRequestPush(vault [20]byte, batchID [32]byte, shares *big.Int) error {
	m.sharePushes.Add(m.sharePushes, shares)
	return nil
}

func (m *mockRouter) RecordShareRequestPull(vault [20]byte, batchID [32]byte, shares *big.Int) error {
	m.sharePulls.Add(m.sharePulls, shares)
	return nil
}

func (m *mockRouter) PushDeposit(vault [20]byte, amount *big.Int) error {
	m.pushed.Add(m.pushed, amount)
	return nil
}

func (m *mockRouter) VirtualBalance(vault [20]byte) *big.Int {
	return new(big.Int).Set(m.virtual)
}

type mockRegistry struct {
	admins  map[[20]byte]bool
	assets  map[[20]byte][20]byte
	kTokens map[[20]byte][20]byte
	caps    map[[20]byte]*big.Int
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		admins:  make(map[[20]byte]bool),
		assets:  make(map[[20]byte][20]byte),
		kTokens: make(map[[20]byte][20]byte),
		caps:    make(map[[20]byte]*big.Int),
	}
}

func (m *mockRegistry) IsAdmin(addr [20]byte) bool { return m.admins[addr] }

func (m *mockRegistry) VaultAsset(vault [20]byte) ([20]byte, bool) {
	asset, ok := m.assets[vault]
	return asset, ok
}

func (m *mockRegistry) AssetToKToken(asset [20]byte) ([20]byte, error) {
	kToken, ok := m.kTokens[asset]
	if !ok {
		return [20]byte{}, errors.New("mock: asset not registered")
	}
	return kToken, nil
}

func (m *mockRegistry) MaxTotalAssets(vault [20]byte) *big.Int { return m.caps[vault] }

var (
	testAdmin  = [20]byte{0x01}
	testVault  = [20]byte{0x30}
	testAsset  = [20]byte{0x20}
	testKToken = [20]byte{0x21}
	testUser   = [20]byte{0x50}
	testRecv   = [20]byte{0x51}
)

type vaultFixture struct {
	engine  *Engine
	state   *mockState
	batches *mockBatches
	router  *mockRouter
	tokens  *token.Ledger
	reg     *mockRegistry
	emitter *events.CollectingEmitter
	batchID [32]byte
	now     int64
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()
	state := newMockState()
	batches := newMockBatches()
	router := newMockRouter()
	tokens := token.NewLedger()
	reg := newMockRegistry()
	reg.admins[testAdmin] = true
	reg.assets[testVault] = testAsset
	reg.kTokens[testAsset] = testKToken

	// The share token of a vault is keyed by its own address and the vault
	// mints it for itself.
	if err := tokens.AuthorizeMinter(testVault, testVault); err != nil {
		t.Fatalf("authorize share minter: %v", err)
	}
	if err := tokens.AuthorizeMinter(testKToken, testAdmin); err != nil {
		t.Fatalf("authorize claim minter: %v", err)
	}

	batchID := [32]byte{0x0a}
	batches.batches[batchID] = &batch.Batch{ID: batchID, Vault: testVault, Asset: testAsset, Number: 1}
	batches.current[testVault] = batchID

	engine := New(state, batches, router, tokens, reg, testDecimals)
	emitter := &events.CollectingEmitter{}
	engine.SetEmitter(emitter)

	f := &vaultFixture{
		engine:  engine,
		state:   state,
		batches: batches,
		router:  router,
		tokens:  tokens,
		reg:     reg,
		emitter: emitter,
		batchID: batchID,
		now:     1_700_000_000,
	}
	engine.SetNowFunc(func() int64 { return f.now })
	return f
}

func (f *vaultFixture) fundUser(t *testing.T, amount int64) {
	t.Helper()
	if err := f.tokens.Mint(testAdmin, testKToken, testUser, big.NewInt(amount)); err != nil {
		t.Fatalf("fund user: %v", err)
	}
}

func (f *vaultFixture) settleBatch(netSharePrice int64) {
	b := f.batches.batches[f.batchID]
	b.Closed = true
	b.Settled = true
	b.Snapshot = &batch.Snapshot{
		TotalAssets:   big.NewInt(0),
		NetSharePrice: big.NewInt(netSharePrice),
		SharePrice:    big.NewInt(netSharePrice),
	}
}

func TestSetFeeConfig(t *testing.T) {
	f := newVaultFixture(t)
	cfg := FeeConfig{ManagementFeeBps: 200, PerformanceFeeBps: 2000, HurdleRateBps: 500}

	if err := f.engine.SetFeeConfig(testUser, testVault, cfg); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.SetFeeConfig(testAdmin, testVault, FeeConfig{ManagementFeeBps: 10_001}); !errors.Is(err, ErrFeeOutOfRange) {
		t.Fatalf("expected ErrFeeOutOfRange, got %v", err)
	}
	if err := f.engine.SetFeeConfig(testAdmin, testVault, cfg); err != nil {
		t.Fatalf("set fee config: %v", err)
	}

	fs, err := f.engine.FeeState(testVault)
	if err != nil {
		t.Fatalf("fee state: %v", err)
	}
	if fs.Config != cfg {
		t.Fatalf("config = %+v, want %+v", fs.Config, cfg)
	}
	// A fresh vault starts at a 1.0 watermark.
	if fs.Watermark.Cmp(scale) != 0 {
		t.Fatalf("watermark = %s, want %s", fs.Watermark, scale)
	}
}

func TestAssessAndCommitFees(t *testing.T) {
	f := newVaultFixture(t)
	cfg := FeeConfig{ManagementFeeBps: 200, PerformanceFeeBps: 2000}
	if err := f.engine.SetFeeConfig(testAdmin, testVault, cfg); err != nil {
		t.Fatalf("set fee config: %v", err)
	}

	totalAssets := big.NewInt(1_200_000)
	totalSupply := big.NewInt(1_000_000)
	last := f.now - SecondsPerYear

	assessment, err := f.engine.AssessFees(testVault, totalAssets, totalSupply, last, last, f.now)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	// One year of 2% management on 1.2M is 24k.
	if assessment.ManagementFee.Cmp(big.NewInt(24_000)) != 0 {
		t.Fatalf("management = %s, want 24000", assessment.ManagementFee)
	}
	// Net-of-management price 1.176 against a 1.0 watermark: 20% of the
	// 176k appreciation.
	if assessment.PerformanceFee.Cmp(big.NewInt(35_200)) != 0 {
		t.Fatalf("performance = %s, want 35200", assessment.PerformanceFee)
	}
	if assessment.TotalNetAssets.Cmp(big.NewInt(1_140_800)) != 0 {
		t.Fatalf("net assets = %s, want 1140800", assessment.TotalNetAssets)
	}
	if assessment.NetSharePrice.Cmp(big.NewInt(1_140_800)) != 0 {
		t.Fatalf("net price = %s, want 1140800", assessment.NetSharePrice)
	}
	if assessment.NewWatermark.Cmp(big.NewInt(1_140_800)) != 0 {
		t.Fatalf("watermark = %s, want 1140800", assessment.NewWatermark)
	}

	if err := f.engine.CommitFees(testVault, assessment, f.now); err != nil {
		t.Fatalf("commit: %v", err)
	}
	fs, _ := f.engine.FeeState(testVault)
	if fs.AccruedFees.Cmp(big.NewInt(59_200)) != 0 {
		t.Fatalf("accrued = %s, want 59200", fs.AccruedFees)
	}
	if fs.Watermark.Cmp(big.NewInt(1_140_800)) != 0 {
		t.Fatalf("watermark = %s, want 1140800", fs.Watermark)
	}
	if fs.LastFeesChargedManagement != f.now {
		t.Fatalf("management cursor = %d, want %d", fs.LastFeesChargedManagement, f.now)
	}

	// A later assessment below the watermark must not lower it.
	lower := &FeeAssessment{TotalFees: big.NewInt(0), NewWatermark: big.NewInt(1_000_000)}
	if err := f.engine.CommitFees(testVault, lower, f.now+1); err != nil {
		t.Fatalf("commit lower: %v", err)
	}
	fs, _ = f.engine.FeeState(testVault)
	if fs.Watermark.Cmp(big.NewInt(1_140_800)) != 0 {
		t.Fatalf("watermark ratcheted down to %s", fs.Watermark)
	}

	var raised, charged bool
	for _, evt := range f.emitter.Events {
		switch evt.EventType() {
		case events.TypeWatermarkRaised:
			raised = true
		case events.TypeFeesCharged:
			charged = true
		}
	}
	if !raised || !charged {
		t.Fatalf("events raised=%v charged=%v, want both", raised, charged)
	}
}

func TestRequestStakeEscrowsAndRecords(t *testing.T) {
	f := newVaultFixture(t)
	f.fundUser(t, 1000)

	id, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(600))
	if err != nil {
		t.Fatalf("request stake: %v", err)
	}
	if got := f.tokens.BalanceOf(testKToken, testUser); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("user balance = %s, want 400", got)
	}
	if got := f.tokens.BalanceOf(testKToken, testVault); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("vault escrow = %s, want 600", got)
	}
	if f.router.deposits.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("recorded deposits = %s, want 600", f.router.deposits)
	}
	if f.router.pushed.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("pushed deposits = %s, want 600", f.router.pushed)
	}
	req, ok, _ := f.engine.StakeRequest(id)
	if !ok || req.Status != RequestPending {
		t.Fatalf("request missing or not pending: %+v", req)
	}
	if req.BatchID != f.batchID || req.Recipient != testRecv {
		t.Fatal("request fields mismatch")
	}
}

func TestRequestStakeValidation(t *testing.T) {
	f := newVaultFixture(t)
	f.fundUser(t, 1000)

	if _, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := f.engine.RequestStake([20]byte{}, testVault, testRecv, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}

	f.batches.batches[f.batchID].Closed = true
	if _, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(1)); !errors.Is(err, ErrBatchNotOpen) {
		t.Fatalf("expected ErrBatchNotOpen, got %v", err)
	}
}

func TestRequestStakeCapExceeded(t *testing.T) {
	f := newVaultFixture(t)
	f.fundUser(t, 1000)
	f.reg.caps[testVault] = big.NewInt(500)
	f.router.virtual = big.NewInt(100)

	if _, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(600)); !errors.Is(err, ErrCapExceeded) {
		t.Fatalf("expected ErrCapExceeded, got %v", err)
	}
	if _, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(400)); err != nil {
		t.Fatalf("request within cap: %v", err)
	}
}

func TestClaimStakedShares(t *testing.T) {
	f := newVaultFixture(t)
	f.fundUser(t, 1000)

	id, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(1000))
	if err != nil {
		t.Fatalf("request stake: %v", err)
	}
	if _, err := f.engine.ClaimStakedShares(testUser, id); !errors.Is(err, ErrNotSettled) {
		t.Fatalf("expected ErrNotSettled, got %v", err)
	}

	f.settleBatch(1_020_000)
	if _, err := f.engine.ClaimStakedShares(testRecv, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	shares, err := f.engine.ClaimStakedShares(testUser, id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// 1000 assets at a 1.02 settled net price round down to 980 shares.
	if shares.Cmp(big.NewInt(980)) != 0 {
		t.Fatalf("shares = %s, want 980", shares)
	}
	if got := f.tokens.BalanceOf(testVault, testRecv); got.Cmp(big.NewInt(980)) != 0 {
		t.Fatalf("recipient shares = %s, want 980", got)
	}
	if _, err := f.engine.ClaimStakedShares(testUser, id); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected ErrRequestNotPending on replay, got %v", err)
	}
}

func TestCancelStakeRequest(t *testing.T) {
	f := newVaultFixture(t)
	f.fundUser(t, 1000)

	id, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(700))
	if err != nil {
		t.Fatalf("request stake: %v", err)
	}
	if err := f.engine.CancelStakeRequest(testRecv, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.CancelStakeRequest(testUser, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.tokens.BalanceOf(testKToken, testUser); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("user balance = %s, want 1000 after refund", got)
	}
	if f.router.released.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("released = %s, want 700", f.router.released)
	}
	if err := f.engine.CancelStakeRequest(testUser, id); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected ErrRequestNotPending, got %v", err)
	}
}

func TestCancelStakeRequestAfterClose(t *testing.T) {
	f := newVaultFixture(t)
	f.fundUser(t, 1000)

	id, err := f.engine.RequestStake(testUser, testVault, testRecv, big.NewInt(700))
	if err != nil {
		t.Fatalf("request stake: %v", err)
	}
	f.batches.batches[f.batchID].Closed = true
	if err := f.engine.CancelStakeRequest(testUser, id); !errors.Is(err, ErrBatchNotOpen) {
		t.Fatalf("expected ErrBatchNotOpen, got %v", err)
	}
}

func TestUnstakeLifecycle(t *testing.T) {
	f := newVaultFixture(t)

	// Seed the user with shares and the vault with the claim tokens the
	// redemption later pays out of.
	if err := f.tokens.Mint(testVault, testVault, testUser, big.NewInt(100)); err != nil {
		t.Fatalf("mint shares: %v", err)
	}
	if err := f.tokens.Mint(testAdmin, testKToken, testVault, big.NewInt(500)); err != nil {
		t.Fatalf("fund vault: %v", err)
	}

	id, err := f.engine.RequestUnstake(testUser, testVault, testRecv, big.NewInt(100))
	if err != nil {
		t.Fatalf("request unstake: %v", err)
	}
	if got := f.tokens.BalanceOf(testVault, testUser); got.Sign() != 0 {
		t.Fatalf("user shares = %s, want 0 after escrow", got)
	}
	if f.router.sharePushes.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("share pushes = %s, want 100", f.router.sharePushes)
	}
	if _, err := f.engine.ClaimUnstakedAssets(testUser, id); !errors.Is(err, ErrNotSettled) {
		t.Fatalf("expected ErrNotSettled, got %v", err)
	}

	f.settleBatch(1_100_000)
	assets, err := f.engine.ClaimUnstakedAssets(testUser, id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// 100 shares at a 1.10 settled net price pay 110 assets.
	if assets.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("assets = %s, want 110", assets)
	}
	if got := f.tokens.BalanceOf(testKToken, testRecv); got.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("recipient balance = %s, want 110", got)
	}
	// The escrowed shares leave the supply.
	if got := f.tokens.TotalSupply(testVault); got.Sign() != 0 {
		t.Fatalf("share supply = %s, want 0", got)
	}
	if _, err := f.engine.ClaimUnstakedAssets(testUser, id); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected ErrRequestNotPending on replay, got %v", err)
	}
}

func TestCancelUnstakeRequest(t *testing.T) {
	f := newVaultFixture(t)
	if err := f.tokens.Mint(testVault, testVault, testUser, big.NewInt(100)); err != nil {
		t.Fatalf("mint shares: %v", err)
	}

	id, err := f.engine.RequestUnstake(testUser, testVault, testRecv, big.NewInt(100))
	if err != nil {
		t.Fatalf("request unstake: %v", err)
	}
	if err := f.engine.CancelUnstakeRequest(testUser, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.tokens.BalanceOf(testVault, testUser); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("user shares = %s, want 100 after refund", got)
	}
	if f.router.sharePulls.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("share pulls = %s, want 100", f.router.sharePulls)
	}

	// The cancellation carries its own event type, distinct from a stake
	// cancellation.
	var unstakeCancelled, stakeCancelled bool
	for _, evt := range f.emitter.Events {
		switch evt.EventType() {
		case events.TypeUnstakeRequestCancelled:
			unstakeCancelled = true
		case events.TypeStakeRequestCancelled:
			stakeCancelled = true
		}
	}
	if !unstakeCancelled {
		t.Fatal("missing unstake cancellation event")
	}
	if stakeCancelled {
		t.Fatal("unstake cancel emitted a stake cancellation event")
	}
}
