package vault

import "math/big"

// RequestStatus tracks the lifecycle of retail requests.
type RequestStatus uint8

const (
	RequestPending RequestStatus = iota
	RequestClaimed
	RequestCancelled
)

// StakeRequest captures escrowed claim tokens awaiting batch settlement and
// share issuance.
type StakeRequest struct {
	ID               [32]byte
	Vault            [20]byte
	User             [20]byte
	Recipient        [20]byte
	Amount           *big.Int
	BatchID          [32]byte
	RequestTimestamp int64
	Status           RequestStatus
}

// Clone returns a deep copy of the request.
func (r *StakeRequest) Clone() *StakeRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Amount = clone(r.Amount)
	return &cp
}

// UnstakeRequest captures escrowed shares awaiting batch settlement and asset
// release.
type UnstakeRequest struct {
	ID               [32]byte
	Vault            [20]byte
	User             [20]byte
	Recipient        [20]byte
	Shares           *big.Int
	BatchID          [32]byte
	RequestTimestamp int64
	Status           RequestStatus
}

// Clone returns a deep copy of the request.
func (r *UnstakeRequest) Clone() *UnstakeRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Shares = clone(r.Shares)
	return &cp
}

// FeeState is the durable fee accrual cursor for one staking vault.
type FeeState struct {
	Config                     FeeConfig
	Watermark                  *big.Int
	AccruedFees                *big.Int
	LastFeesChargedManagement  int64
	LastFeesChargedPerformance int64
}

// Clone returns a deep copy of the fee state.
func (s *FeeState) Clone() *FeeState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Watermark = clone(s.Watermark)
	cp.AccruedFees = clone(s.AccruedFees)
	return &cp
}

// FeeAssessment is the outcome of assessing fees against reported totals at
// settlement time.
type FeeAssessment struct {
	ManagementFee  *big.Int
	PerformanceFee *big.Int
	TotalFees      *big.Int
	TotalNetAssets *big.Int
	SharePrice     *big.Int
	NetSharePrice  *big.Int
	NewWatermark   *big.Int
}
