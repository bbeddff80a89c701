package router

import "math/big"

// Balances tracks the per (vault, batch) virtual flow counters. Deposited and
// Requested are asset-denominated institutional flows; RequestedShares is the
// share-denominated retail redemption counter.
type Balances struct {
	Deposited       *big.Int
	Requested       *big.Int
	RequestedShares *big.Int
}

// Clone returns a deep copy of the balances record.
func (b *Balances) Clone() *Balances {
	if b == nil {
		return nil
	}
	return &Balances{
		Deposited:       cloneBigInt(b.Deposited),
		Requested:       cloneBigInt(b.Requested),
		RequestedShares: cloneBigInt(b.RequestedShares),
	}
}

func (b *Balances) normalize() *Balances {
	if b == nil {
		return &Balances{Deposited: big.NewInt(0), Requested: big.NewInt(0), RequestedShares: big.NewInt(0)}
	}
	if b.Deposited == nil {
		b.Deposited = big.NewInt(0)
	}
	if b.Requested == nil {
		b.Requested = big.NewInt(0)
	}
	if b.RequestedShares == nil {
		b.RequestedShares = big.NewInt(0)
	}
	return b
}

// Proposal captures a pending vault settlement awaiting its cooldown. Netted
// and Yield are signed.
type Proposal struct {
	ID                         [32]byte
	Asset                      [20]byte
	Vault                      [20]byte
	BatchID                    [32]byte
	TotalAssets                *big.Int
	Netted                     *big.Int
	Yield                      *big.Int
	ExecuteAfter               int64
	LastFeesChargedManagement  int64
	LastFeesChargedPerformance int64
	CreatedAt                  int64
}

// Clone returns a deep copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalAssets = cloneBigInt(p.TotalAssets)
	clone.Netted = cloneBigInt(p.Netted)
	clone.Yield = cloneBigInt(p.Yield)
	return &clone
}

// RequestedAssets derives the asset-denominated redemption obligation the
// proposal was netted against: deposited - netted.
func (p *Proposal) RequestedAssets(deposited *big.Int) *big.Int {
	return new(big.Int).Sub(cloneBigInt(deposited), cloneBigInt(p.Netted))
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
