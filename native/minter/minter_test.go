package minter

import (
	"errors"
	"math/big"
	"testing"

	"kvault/core/events"
	"kvault/native/batch"
	"kvault/native/registry"
	"kvault/native/token"
)

type mockState struct {
	requests map[[32]byte]*BurnRequest
	nonces   map[[20]byte]uint64
}

func newMockState() *mockState {
	return &mockState{
		requests: make(map[[32]byte]*BurnRequest),
		nonces:   make(map[[20]byte]uint64),
	}
}

func (m *mockState) BurnRequestPut(req *BurnRequest) error {
	m.requests[req.ID] = req.Clone()
	return nil
}

func (m *mockState) BurnRequestGet(id [32]byte) (*BurnRequest, bool, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (m *mockState) NextMintNonce(asset [20]byte) (uint64, error) {
	m.nonces[asset]++
	return m.nonces[asset], nil
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
	deposits *big.Int
	requests *big.Int
	released *big.Int
	pushed   *big.Int
	pullErr  error
}

func newMockRouter() *mockRouter {
	return &mockRouter{
		deposits: big.NewInt(0),
		requests: big.NewInt(0),
		released: big.NewInt(0),
		pushed:   big.NewInt(0),
	}
}

func (m *mockRouter) RecordDeposit(vault [20]byte, batchID [32]byte, amount *big.Int) error {
	m.deposits.Add(m.deposits, amount)
	return nil
}

func (m *mockRouter) RecordRequestPull(vault [20]byte, batchID [32]byte, amount *big.Int) error {
	if m.pullErr != nil {
		return m.pullErr
	}
	m.requests.Add(m.requests, amount)
	return nil
}

func (m *mockRouter) ReleaseRequestPull(vault [20]byte, batchID [32]byte, amount *big.Int) error {
	m.released.Add(m.released, amount)
	return nil
}

func (m *mockRouter) PushDeposit(vault [20]byte, amount *big.Int) error {
	m.pushed.Add(m.pushed, amount)
	return nil
}

type mockRegistry struct {
	institutions map[[20]byte]bool
	kTokens      map[[20]byte][20]byte
	vaults       map[[20]byte][20]byte
	mintCaps     map[[20]byte]*big.Int
	burnCaps     map[[20]byte]*big.Int
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		institutions: make(map[[20]byte]bool),
		kTokens:      make(map[[20]byte][20]byte),
		vaults:       make(map[[20]byte][20]byte),
		mintCaps:     make(map[[20]byte]*big.Int),
		burnCaps:     make(map[[20]byte]*big.Int),
	}
}

func (m *mockRegistry) IsInstitution(addr [20]byte) bool { return m.institutions[addr] }

func (m *mockRegistry) AssetToKToken(asset [20]byte) ([20]byte, error) {
	kToken, ok := m.kTokens[asset]
	if !ok {
		return [20]byte{}, registry.ErrAssetNotFound
	}
	return kToken, nil
}

func (m *mockRegistry) VaultByAssetAndType(asset [20]byte, kind registry.VaultType) ([20]byte, error) {
	vault, ok := m.vaults[asset]
	if !ok {
		return [20]byte{}, registry.ErrVaultNotFound
	}
	return vault, nil
}

func (m *mockRegistry) MaxMintPerBatch(asset [20]byte) *big.Int { return m.mintCaps[asset] }
func (m *mockRegistry) MaxBurnPerBatch(asset [20]byte) *big.Int { return m.burnCaps[asset] }

type mockBank struct {
	pulls   []*big.Int
	callers [][20]byte
	pullErr error
}

func (m *mockBank) PullAssets(caller, receiver [20]byte, amount *big.Int, batchID [32]byte) error {
	if m.pullErr != nil {
		return m.pullErr
	}
	m.pulls = append(m.pulls, new(big.Int).Set(amount))
	m.callers = append(m.callers, caller)
	return nil
}

var (
	institution = [20]byte{0x40}
	outsider    = [20]byte{0x41}
	recipient   = [20]byte{0x42}
	minterSelf  = [20]byte{0x05}
	vaultAddr   = [20]byte{0x10}
	assetAddr   = [20]byte{0x20}
	kTokenAddr  = [20]byte{0x21}
)

type minterFixture struct {
	engine  *Engine
	state   *mockState
	batches *mockBatches
	router  *mockRouter
	tokens  *token.Ledger
	reg     *mockRegistry
	bank    *mockBank
	emitter *events.CollectingEmitter
	batchID [32]byte
}

func newMinterFixture(t *testing.T) *minterFixture {
	t.Helper()
	state := newMockState()
	batches := newMockBatches()
	router := newMockRouter()
	tokens := token.NewLedger()
	reg := newMockRegistry()
	reg.institutions[institution] = true
	reg.kTokens[assetAddr] = kTokenAddr
	reg.vaults[assetAddr] = vaultAddr

	if err := tokens.AuthorizeMinter(kTokenAddr, minterSelf); err != nil {
		t.Fatalf("authorize minter: %v", err)
	}

	batchID := [32]byte{0x0b}
	batches.batches[batchID] = &batch.Batch{ID: batchID, Vault: vaultAddr, Asset: assetAddr, Number: 1}
	batches.current[vaultAddr] = batchID

	engine := New(state, batches, router, tokens, reg, minterSelf)
	emitter := &events.CollectingEmitter{}
	engine.SetEmitter(emitter)
	bank := &mockBank{}
	engine.SetDistributorBank(bank)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })

	return &minterFixture{
		engine:  engine,
		state:   state,
		batches: batches,
		router:  router,
		tokens:  tokens,
		reg:     reg,
		bank:    bank,
		emitter: emitter,
		batchID: batchID,
	}
}

func TestMintIssuesClaims(t *testing.T) {
	f := newMinterFixture(t)

	batchID, err := f.engine.Mint(institution, assetAddr, recipient, big.NewInt(1000))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if batchID != f.batchID {
		t.Fatal("mint attributed to wrong batch")
	}
	if got := f.tokens.BalanceOf(kTokenAddr, recipient); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("recipient balance = %s, want 1000", got)
	}
	if f.router.deposits.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("recorded deposits = %s, want 1000", f.router.deposits)
	}
	if f.router.pushed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("pushed deposits = %s, want 1000", f.router.pushed)
	}
	if len(f.emitter.Events) == 0 || f.emitter.Events[0].EventType() != events.TypeMinted {
		t.Fatal("missing minter.minted event")
	}
}

func TestMintValidation(t *testing.T) {
	f := newMinterFixture(t)

	if _, err := f.engine.Mint(outsider, assetAddr, recipient, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.engine.Mint(institution, assetAddr, [20]byte{}, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if _, err := f.engine.Mint(institution, assetAddr, recipient, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	f.batches.batches[f.batchID].Closed = true
	if _, err := f.engine.Mint(institution, assetAddr, recipient, big.NewInt(1)); !errors.Is(err, ErrBatchNotOpen) {
		t.Fatalf("expected ErrBatchNotOpen, got %v", err)
	}
}

func TestMintCapEnforced(t *testing.T) {
	f := newMinterFixture(t)
	f.reg.mintCaps[assetAddr] = big.NewInt(1000)
	f.batches.batches[f.batchID].DepositedInBatch = big.NewInt(800)

	if _, err := f.engine.Mint(institution, assetAddr, recipient, big.NewInt(300)); !errors.Is(err, ErrMintCapExceeded) {
		t.Fatalf("expected ErrMintCapExceeded, got %v", err)
	}
	if _, err := f.engine.Mint(institution, assetAddr, recipient, big.NewInt(200)); err != nil {
		t.Fatalf("mint within cap: %v", err)
	}
}

func TestRequestBurnEscrowsClaims(t *testing.T) {
	f := newMinterFixture(t)
	if _, err := f.engine.Mint(institution, assetAddr, institution, big.NewInt(1000)); err != nil {
		t.Fatalf("seed mint: %v", err)
	}

	id, err := f.engine.RequestBurn(institution, assetAddr, recipient, big.NewInt(400))
	if err != nil {
		t.Fatalf("request burn: %v", err)
	}
	if got := f.tokens.BalanceOf(kTokenAddr, institution); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("institution balance = %s, want 600", got)
	}
	if got := f.tokens.BalanceOf(kTokenAddr, minterSelf); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("escrow = %s, want 400", got)
	}
	if f.router.requests.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("recorded requests = %s, want 400", f.router.requests)
	}
	req, ok, _ := f.engine.BurnRequest(id)
	if !ok || req.Status != BurnPending {
		t.Fatalf("request missing or not pending: %+v", req)
	}
}

func TestRequestBurnCapEnforced(t *testing.T) {
	f := newMinterFixture(t)
	if _, err := f.engine.Mint(institution, assetAddr, institution, big.NewInt(1000)); err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	f.reg.burnCaps[assetAddr] = big.NewInt(500)
	f.batches.batches[f.batchID].WithdrawnInBatch = big.NewInt(300)

	if _, err := f.engine.RequestBurn(institution, assetAddr, recipient, big.NewInt(300)); !errors.Is(err, ErrBurnCapExceeded) {
		t.Fatalf("expected ErrBurnCapExceeded, got %v", err)
	}
}

func TestRequestBurnRouterGate(t *testing.T) {
	f := newMinterFixture(t)
	if _, err := f.engine.Mint(institution, assetAddr, institution, big.NewInt(1000)); err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	f.router.pullErr = errors.New("router: insufficient virtual balance")

	if _, err := f.engine.RequestBurn(institution, assetAddr, recipient, big.NewInt(400)); err == nil {
		t.Fatal("expected router gate to propagate")
	}
	// The escrow transfer must not have happened.
	if got := f.tokens.BalanceOf(kTokenAddr, institution); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("institution balance = %s, want 1000", got)
	}
}

func TestBurnLifecycle(t *testing.T) {
	f := newMinterFixture(t)
	if _, err := f.engine.Mint(institution, assetAddr, institution, big.NewInt(1000)); err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	id, err := f.engine.RequestBurn(institution, assetAddr, recipient, big.NewInt(400))
	if err != nil {
		t.Fatalf("request burn: %v", err)
	}

	if err := f.engine.Burn(institution, id); !errors.Is(err, ErrNotSettled) {
		t.Fatalf("expected ErrNotSettled, got %v", err)
	}

	b := f.batches.batches[f.batchID]
	b.Closed = true
	b.Settled = true

	if err := f.engine.Burn(outsider, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.Burn(institution, id); err != nil {
		t.Fatalf("burn: %v", err)
	}
	// The escrowed claims left the supply and the distributor paid out.
	if got := f.tokens.BalanceOf(kTokenAddr, minterSelf); got.Sign() != 0 {
		t.Fatalf("escrow = %s, want 0 after burn", got)
	}
	if got := f.tokens.TotalSupply(kTokenAddr); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("supply = %s, want 600", got)
	}
	if len(f.bank.pulls) != 1 || f.bank.pulls[0].Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("bank pulls = %v, want one pull of 400", f.bank.pulls)
	}
	if f.bank.callers[0] != vaultAddr {
		t.Fatal("distributor pull not made as the minter vault")
	}
	if err := f.engine.Burn(institution, id); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected ErrRequestNotPending on replay, got %v", err)
	}
}

func TestCancelBurnRequest(t *testing.T) {
	f := newMinterFixture(t)
	if _, err := f.engine.Mint(institution, assetAddr, institution, big.NewInt(1000)); err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	id, err := f.engine.RequestBurn(institution, assetAddr, recipient, big.NewInt(400))
	if err != nil {
		t.Fatalf("request burn: %v", err)
	}

	if err := f.engine.CancelBurnRequest(outsider, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.CancelBurnRequest(institution, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.tokens.BalanceOf(kTokenAddr, institution); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("institution balance = %s, want 1000 after refund", got)
	}
	if f.router.released.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("released = %s, want 400", f.router.released)
	}
	if err := f.engine.CancelBurnRequest(institution, id); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected ErrRequestNotPending, got %v", err)
	}
}

func TestCancelBurnRequestAfterClose(t *testing.T) {
	f := newMinterFixture(t)
	if _, err := f.engine.Mint(institution, assetAddr, institution, big.NewInt(1000)); err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	id, err := f.engine.RequestBurn(institution, assetAddr, recipient, big.NewInt(400))
	if err != nil {
		t.Fatalf("request burn: %v", err)
	}
	f.batches.batches[f.batchID].Closed = true
	if err := f.engine.CancelBurnRequest(institution, id); !errors.Is(err, ErrBatchNotOpen) {
		t.Fatalf("expected ErrBatchNotOpen, got %v", err)
	}
}
