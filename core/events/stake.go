package events

import "math/big"

const (
	// TypeStakeRequested is emitted when a retail user escrows claim tokens
	// for staking in the current batch.
	TypeStakeRequested = "vault.stakeRequested"
	// TypeUnstakeRequested is emitted when a retail user escrows shares for
	// redemption in the current batch.
	TypeUnstakeRequested = "vault.unstakeRequested"
	// TypeStakeClaimed is emitted when shares are minted for a settled stake
	// request.
	TypeStakeClaimed = "vault.stakeClaimed"
	// TypeUnstakeClaimed is emitted when assets are released for a settled
	// unstake request.
	TypeUnstakeClaimed = "vault.unstakeClaimed"
	// TypeStakeRequestCancelled is emitted when a stake request is cancelled
	// while its batch is still open.
	TypeStakeRequestCancelled = "vault.stakeRequestCancelled"
	// TypeUnstakeRequestCancelled is emitted when an unstake request is
	// cancelled while its batch is still open.
	TypeUnstakeRequestCancelled = "vault.unstakeRequestCancelled"
	// TypeFeesCharged is emitted when settlement accrues management and
	// performance fees against vault totals.
	TypeFeesCharged = "vault.feesCharged"
	// TypeWatermarkRaised is emitted when the net share price sets a new high.
	TypeWatermarkRaised = "vault.watermarkRaised"
)

// StakeRequested captures an escrowed retail staking request.
type StakeRequested struct {
	RequestID [32]byte
	User      [20]byte
	Recipient [20]byte
	Amount    *big.Int
	BatchID   [32]byte
}

// EventType satisfies the Event interface.
func (StakeRequested) EventType() string { return TypeStakeRequested }

// Attributes satisfies the Event interface.
func (e StakeRequested) Attributes() map[string]string {
	return map[string]string{
		"requestId": formatID(e.RequestID),
		"user":      formatAddress(e.User),
		"recipient": formatAddress(e.Recipient),
		"amount":    formatAmount(e.Amount),
		"batchId":   formatID(e.BatchID),
	}
}

// UnstakeRequested captures an escrowed retail unstake request.
type UnstakeRequested struct {
	RequestID [32]byte
	User      [20]byte
	Recipient [20]byte
	Shares    *big.Int
	BatchID   [32]byte
}

// EventType satisfies the Event interface.
func (UnstakeRequested) EventType() string { return TypeUnstakeRequested }

// Attributes satisfies the Event interface.
func (e UnstakeRequested) Attributes() map[string]string {
	return map[string]string{
		"requestId": formatID(e.RequestID),
		"user":      formatAddress(e.User),
		"recipient": formatAddress(e.Recipient),
		"shares":    formatAmount(e.Shares),
		"batchId":   formatID(e.BatchID),
	}
}

// StakeClaimed captures shares minted for a settled stake request.
type StakeClaimed struct {
	RequestID [32]byte
	Recipient [20]byte
	Amount    *big.Int
	Shares    *big.Int
	BatchID   [32]byte
}

// EventType satisfies the Event interface.
func (StakeClaimed) EventType() string { return TypeStakeClaimed }

// Attributes satisfies the Event interface.
func (e StakeClaimed) Attributes() map[string]string {
	return map[string]string{
		"requestId": formatID(e.RequestID),
		"recipient": formatAddress(e.Recipient),
		"amount":    formatAmount(e.Amount),
		"shares":    formatAmount(e.Shares),
		"batchId":   formatID(e.BatchID),
	}
}

// UnstakeClaimed captures assets released for a settled unstake request.
type UnstakeClaimed struct {
	RequestID [32]byte
	Recipient [20]byte
	Shares    *big.Int
	Assets    *big.Int
	BatchID   [32]byte
}

// EventType satisfies the Event interface.
func (UnstakeClaimed) EventType() string { return TypeUnstakeClaimed }

// Attributes satisfies the Event interface.
func (e UnstakeClaimed) Attributes() map[string]string {
	return map[string]string{
		"requestId": formatID(e.RequestID),
		"recipient": formatAddress(e.Recipient),
		"shares":    formatAmount(e.Shares),
		"assets":    formatAmount(e.Assets),
		"batchId":   formatID(e.BatchID),
	}
}

// StakeRequestCancelled captures cancellation of an open stake request and
// the claim tokens returned from escrow.
type StakeRequestCancelled struct {
	RequestID [32]byte
	User      [20]byte
	Amount    *big.Int
	BatchID   [32]byte
}

// EventType satisfies the Event interface.
func (StakeRequestCancelled) EventType() string { return TypeStakeRequestCancelled }

// Attributes satisfies the Event interface.
func (e StakeRequestCancelled) Attributes() map[string]string {
	return map[string]string{
		"requestId": formatID(e.RequestID),
		"user":      formatAddress(e.User),
		"amount":    formatAmount(e.Amount),
		"batchId":   formatID(e.BatchID),
	}
}

// UnstakeRequestCancelled captures cancellation of an open unstake request
// and the shares returned from escrow.
type UnstakeRequestCancelled struct {
	RequestID [32]byte
	User      [20]byte
	Shares    *big.Int
	BatchID   [32]byte
}

// EventType satisfies the Event interface.
func (UnstakeRequestCancelled) EventType() string { return TypeUnstakeRequestCancelled }

// Attributes satisfies the Event interface.
func (e UnstakeRequestCancelled) Attributes() map[string]string {
	return map[string]string{
		"requestId": formatID(e.RequestID),
		"user":      formatAddress(e.User),
		"shares":    formatAmount(e.Shares),
		"batchId":   formatID(e.BatchID),
	}
}

// FeesCharged captures the fee accrual folded into a settlement snapshot.
type FeesCharged struct {
	Vault          [20]byte
	ManagementFee  *big.Int
	PerformanceFee *big.Int
}

// EventType satisfies the Event interface.
func (FeesCharged) EventType() string { return TypeFeesCharged }

// Attributes satisfies the Event interface.
func (e FeesCharged) Attributes() map[string]string {
	return map[string]string{
		"vault":          formatAddress(e.Vault),
		"managementFee":  formatAmount(e.ManagementFee),
		"performanceFee": formatAmount(e.PerformanceFee),
	}
}

// WatermarkRaised captures a new net-share-price high for a vault.
type WatermarkRaised struct {
	Vault [20]byte
	Old   *big.Int
	New   *big.Int
}

// EventType satisfies the Event interface.
func (WatermarkRaised) EventType() string { return TypeWatermarkRaised }

// Attributes satisfies the Event interface.
func (e WatermarkRaised) Attributes() map[string]string {
	return map[string]string{
		"vault": formatAddress(e.Vault),
		"old":   formatAmount(e.Old),
		"new":   formatAmount(e.New),
	}
}
