package token

import (
	"errors"
	"math/big"
	"testing"
)

var (
	minter = [20]byte{0x01}
	tok    = [20]byte{0x20}
	alice  = [20]byte{0x50}
	bob    = [20]byte{0x51}
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger()
	if err := l.AuthorizeMinter(tok, minter); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	return l
}

func TestMintRequiresAuthorization(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Mint(alice, tok, alice, big.NewInt(100)); !errors.Is(err, ErrUnauthorizedMinter) {
		t.Fatalf("expected ErrUnauthorizedMinter, got %v", err)
	}
	if err := l.Mint(minter, tok, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := l.BalanceOf(tok, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance = %s, want 100", got)
	}
	if got := l.TotalSupply(tok); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s, want 100", got)
	}
}

func TestMintValidation(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Mint(minter, tok, alice, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if err := l.Mint(minter, tok, alice, big.NewInt(-5)); err == nil {
		t.Fatal("negative mint accepted")
	}
	if err := l.Mint(minter, tok, [20]byte{}, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := l.AuthorizeMinter([20]byte{}, minter); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress on authorize, got %v", err)
	}
}

func TestMintOverflowRejected(t *testing.T) {
	l := newTestLedger(t)
	word := new(big.Int).Lsh(big.NewInt(1), 256)

	if err := l.Mint(minter, tok, alice, word); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}

	// Supply overflow across two mints must leave state untouched.
	max := new(big.Int).Sub(word, big.NewInt(1))
	if err := l.Mint(minter, tok, alice, max); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := l.Mint(minter, tok, bob, big.NewInt(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected supply overflow, got %v", err)
	}
	if got := l.BalanceOf(tok, bob); got.Sign() != 0 {
		t.Fatalf("bob balance = %s after failed mint", got)
	}
	if got := l.TotalSupply(tok); got.Cmp(max) != 0 {
		t.Fatal("supply changed by failed mint")
	}
}

func TestBurn(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint(minter, tok, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := l.Burn(alice, tok, alice, big.NewInt(10)); !errors.Is(err, ErrUnauthorizedMinter) {
		t.Fatalf("expected ErrUnauthorizedMinter, got %v", err)
	}
	if err := l.Burn(minter, tok, alice, big.NewInt(150)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Burn(minter, tok, alice, big.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := l.BalanceOf(tok, alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", got)
	}
	if got := l.TotalSupply(tok); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("supply = %s, want 60", got)
	}
}

func TestTransfer(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint(minter, tok, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := l.Transfer(tok, alice, bob, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(tok, alice); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("alice = %s, want 70", got)
	}
	if got := l.BalanceOf(tok, bob); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("bob = %s, want 30", got)
	}
	if err := l.Transfer(tok, bob, alice, big.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// Supply is unaffected by transfers.
	if got := l.TotalSupply(tok); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s, want 100", got)
	}
}

func TestBalancesAreIsolatedPerToken(t *testing.T) {
	l := newTestLedger(t)
	other := [20]byte{0x22}
	if err := l.AuthorizeMinter(other, minter); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := l.Mint(minter, tok, alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(minter, other, alice, big.NewInt(20)); err != nil {
		t.Fatalf("mint other: %v", err)
	}
	if got := l.BalanceOf(tok, alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("tok balance = %s, want 10", got)
	}
	if got := l.BalanceOf(other, alice); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("other balance = %s, want 20", got)
	}
}
