package batch

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of a request batch.
type Status uint8

const (
	BatchOpen Status = iota
	BatchClosed
	BatchSettled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case BatchOpen, BatchClosed, BatchSettled:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case BatchOpen:
		return "open"
	case BatchClosed:
		return "closed"
	case BatchSettled:
		return "settled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Snapshot records the vault totals frozen into a batch at settlement.
type Snapshot struct {
	TotalAssets    *big.Int
	TotalNetAssets *big.Int
	TotalSupply    *big.Int
	SharePrice     *big.Int
	NetSharePrice  *big.Int
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		TotalAssets:    cloneBigInt(s.TotalAssets),
		TotalNetAssets: cloneBigInt(s.TotalNetAssets),
		TotalSupply:    cloneBigInt(s.TotalSupply),
		SharePrice:     cloneBigInt(s.SharePrice),
		NetSharePrice:  cloneBigInt(s.NetSharePrice),
	}
}

// Batch captures the lifecycle and settlement snapshot of one aggregation
// window for a vault. The identifier is the keccak256 hash of the vault
// address, a per-vault monotonic counter, the chain identifier, the creation
// timestamp and the asset, which keeps IDs unique and unpredictable without
// external randomness.
type Batch struct {
	ID               [32]byte
	Vault            [20]byte
	Asset            [20]byte
	Number           uint64
	Receiver         [20]byte
	HasReceiver      bool
	Closed           bool
	Settled          bool
	CreatedAt        int64
	ClosedAt         int64
	SettledAt        int64
	DepositedInBatch *big.Int
	WithdrawnInBatch *big.Int
	Snapshot         *Snapshot
}

// Status derives the lifecycle state from the closed/settled flags.
func (b *Batch) Status() Status {
	switch {
	case b == nil:
		return BatchOpen
	case b.Settled:
		return BatchSettled
	case b.Closed:
		return BatchClosed
	default:
		return BatchOpen
	}
}

// Clone returns a deep copy so callers can safely mutate the result without
// affecting the stored instance.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	clone := *b
	clone.DepositedInBatch = cloneBigInt(b.DepositedInBatch)
	clone.WithdrawnInBatch = cloneBigInt(b.WithdrawnInBatch)
	clone.Snapshot = b.Snapshot.Clone()
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
