package minter

import "math/big"

// BurnStatus tracks the lifecycle of institutional burn requests.
type BurnStatus uint8

const (
	BurnPending BurnStatus = iota
	BurnRedeemed
	BurnCancelled
)

// BurnRequest captures claim tokens escrowed with the minter until the owning
// batch settles and the per-batch distributor receives assets.
type BurnRequest struct {
	ID               [32]byte
	Institution      [20]byte
	Asset            [20]byte
	Recipient        [20]byte
	Amount           *big.Int
	BatchID          [32]byte
	RequestTimestamp int64
	Status           BurnStatus
}

// Clone returns a deep copy of the request.
func (r *BurnRequest) Clone() *BurnRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Amount = cloneBigInt(r.Amount)
	return &clone
}

// Distributor is the isolated per-batch escrow releasing settled assets to
// individual claimants. Exactly one exists per settled batch requiring
// institutional distribution; only the authorized caller may pull from it.
type Distributor struct {
	BatchID          [32]byte
	Asset            [20]byte
	Receiver         [20]byte
	AuthorizedCaller [20]byte
	Balance          *big.Int
	Stray            map[[20]byte]*big.Int
}

// Clone returns a deep copy of the distributor record.
func (d *Distributor) Clone() *Distributor {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Balance = cloneBigInt(d.Balance)
	clone.Stray = make(map[[20]byte]*big.Int, len(d.Stray))
	for asset, amount := range d.Stray {
		clone.Stray[asset] = cloneBigInt(amount)
	}
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
