package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

var (
	// ErrUnauthorizedMinter rejects mint/burn calls from addresses that have
	// not been authorized for the token.
	ErrUnauthorizedMinter = errors.New("token: unauthorized minter")
	// ErrInsufficientBalance rejects transfers and burns exceeding the
	// holder's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrZeroAmount rejects zero-amount operations.
	ErrZeroAmount = errors.New("token: zero amount")
	// ErrZeroAddress rejects the zero address as a holder or token.
	ErrZeroAddress = errors.New("token: zero address")
	// ErrAmountOverflow rejects amounts that do not fit a 256-bit word.
	ErrAmountOverflow = errors.New("token: amount overflows uint256")
)

// Ledger tracks balances and supply for every protocol token (claim tokens
// and vault share tokens) and gates supply mutation behind per-token minter
// authorization. Balances are held as 256-bit words; the public surface stays
// in math/big to match the rest of the engines.
type Ledger struct {
	mu       sync.RWMutex
	balances map[[20]byte]map[[20]byte]*uint256.Int
	supply   map[[20]byte]*uint256.Int
	minters  map[[20]byte]map[[20]byte]bool
}

// NewLedger constructs an empty token ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[[20]byte]map[[20]byte]*uint256.Int),
		supply:   make(map[[20]byte]*uint256.Int),
		minters:  make(map[[20]byte]map[[20]byte]bool),
	}
}

func isZero(addr [20]byte) bool { return addr == ([20]byte{}) }

func toWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("token: negative amount %s", amount)
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return word, nil
}

// AuthorizeMinter grants mint/burn rights on a token to the supplied address.
func (l *Ledger) AuthorizeMinter(token, minter [20]byte) error {
	if isZero(token) || isZero(minter) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.minters[token]
	if !ok {
		set = make(map[[20]byte]bool)
		l.minters[token] = set
	}
	set[minter] = true
	return nil
}

// Mint credits newly issued tokens to the recipient.
func (l *Ledger) Mint(caller, token, to [20]byte, amount *big.Int) error {
	if isZero(token) || isZero(to) {
		return ErrZeroAddress
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.minters[token][caller] {
		return ErrUnauthorizedMinter
	}
	supply := l.supplyOf(token)
	grown := new(uint256.Int)
	if _, overflow := grown.AddOverflow(supply, word); overflow {
		return ErrAmountOverflow
	}
	l.credit(token, to, word)
	supply.Set(grown)
	return nil
}

// Burn destroys tokens held by the supplied address.
func (l *Ledger) Burn(caller, token, from [20]byte, amount *big.Int) error {
	if isZero(token) || isZero(from) {
		return ErrZeroAddress
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.minters[token][caller] {
		return ErrUnauthorizedMinter
	}
	if err := l.debit(token, from, word); err != nil {
		return err
	}
	supply := l.supplyOf(token)
	supply.Sub(supply, word)
	return nil
}

// Transfer moves tokens between two holders.
func (l *Ledger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if isZero(token) || isZero(from) || isZero(to) {
		return ErrZeroAddress
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(token, from, word); err != nil {
		return err
	}
	l.credit(token, to, word)
	return nil
}

// BalanceOf returns the holder's balance for the token.
func (l *Ledger) BalanceOf(token, holder [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	holders, ok := l.balances[token]
	if !ok {
		return big.NewInt(0)
	}
	bal, ok := holders[holder]
	if !ok {
		return big.NewInt(0)
	}
	return bal.ToBig()
}

// TotalSupply returns the outstanding supply of the token.
func (l *Ledger) TotalSupply(token [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	supply, ok := l.supply[token]
	if !ok {
		return big.NewInt(0)
	}
	return supply.ToBig()
}

func (l *Ledger) supplyOf(token [20]byte) *uint256.Int {
	supply, ok := l.supply[token]
	if !ok {
		supply = uint256.NewInt(0)
		l.supply[token] = supply
	}
	return supply
}

func (l *Ledger) credit(token, holder [20]byte, amount *uint256.Int) {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[[20]byte]*uint256.Int)
		l.balances[token] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = uint256.NewInt(0)
		holders[holder] = bal
	}
	bal.Add(bal, amount)
}

func (l *Ledger) debit(token, holder [20]byte, amount *uint256.Int) error {
	holders, ok := l.balances[token]
	if !ok {
		return ErrInsufficientBalance
	}
	bal, ok := holders[holder]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}
