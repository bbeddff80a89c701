package events

import "math/big"

const (
	// TypeSettlementProposed is emitted when a settlement proposal opens its
	// cooldown window.
	TypeSettlementProposed = "settlement.proposed"
	// TypeSettlementExecuted is emitted when an approved proposal is applied.
	TypeSettlementExecuted = "settlement.executed"
	// TypeSettlementCancelled is emitted when a guardian cancels a pending
	// proposal.
	TypeSettlementCancelled = "settlement.cancelled"
	// TypeYieldToleranceExceeded warns that a proposed yield deviates beyond
	// the configured tolerance. Execution is not blocked; guardians are
	// expected to review during the cooldown.
	TypeYieldToleranceExceeded = "settlement.yieldToleranceExceeded"
)

// SettlementProposed captures a new settlement proposal and its cooldown gate.
type SettlementProposed struct {
	ProposalID   [32]byte
	Vault        [20]byte
	Asset        [20]byte
	BatchID      [32]byte
	TotalAssets  *big.Int
	Netted       *big.Int
	Yield        *big.Int
	ExecuteAfter int64
}

// EventType satisfies the Event interface.
func (SettlementProposed) EventType() string { return TypeSettlementProposed }

// Attributes satisfies the Event interface.
func (e SettlementProposed) Attributes() map[string]string {
	return map[string]string{
		"proposalId":   formatID(e.ProposalID),
		"vault":        formatAddress(e.Vault),
		"asset":        formatAddress(e.Asset),
		"batchId":      formatID(e.BatchID),
		"totalAssets":  formatAmount(e.TotalAssets),
		"netted":       formatAmount(e.Netted),
		"yield":        formatAmount(e.Yield),
		"executeAfter": formatTimestamp(e.ExecuteAfter),
	}
}

// SettlementExecuted captures the applied supply adjustment of a settlement.
// Shortfall is the loss remainder that could not be burned from the vault's
// holding and stays outstanding until later gains repay it.
type SettlementExecuted struct {
	ProposalID [32]byte
	Vault      [20]byte
	BatchID    [32]byte
	Yield      *big.Int
	Minted     *big.Int
	Burned     *big.Int
	Shortfall  *big.Int
}

// EventType satisfies the Event interface.
func (SettlementExecuted) EventType() string { return TypeSettlementExecuted }

// Attributes satisfies the Event interface.
func (e SettlementExecuted) Attributes() map[string]string {
	return map[string]string{
		"proposalId": formatID(e.ProposalID),
		"vault":      formatAddress(e.Vault),
		"batchId":    formatID(e.BatchID),
		"yield":      formatAmount(e.Yield),
		"minted":     formatAmount(e.Minted),
		"burned":     formatAmount(e.Burned),
		"shortfall":  formatAmount(e.Shortfall),
	}
}

// SettlementCancelled captures a guardian cancelling a pending proposal.
type SettlementCancelled struct {
	ProposalID [32]byte
	Vault      [20]byte
	BatchID    [32]byte
	Guardian   [20]byte
}

// EventType satisfies the Event interface.
func (SettlementCancelled) EventType() string { return TypeSettlementCancelled }

// Attributes satisfies the Event interface.
func (e SettlementCancelled) Attributes() map[string]string {
	return map[string]string{
		"proposalId": formatID(e.ProposalID),
		"vault":      formatAddress(e.Vault),
		"batchId":    formatID(e.BatchID),
		"guardian":   formatAddress(e.Guardian),
	}
}

// YieldToleranceExceeded warns that the proposed yield moved the vault totals
// more than the configured tolerance allows.
type YieldToleranceExceeded struct {
	ProposalID [32]byte
	Vault      [20]byte
	BatchID    [32]byte
	Yield      *big.Int
	Tolerance  *big.Int
}

// EventType satisfies the Event interface.
func (YieldToleranceExceeded) EventType() string { return TypeYieldToleranceExceeded }

// Attributes satisfies the Event interface.
func (e YieldToleranceExceeded) Attributes() map[string]string {
	return map[string]string{
		"proposalId": formatID(e.ProposalID),
		"vault":      formatAddress(e.Vault),
		"batchId":    formatID(e.BatchID),
		"yield":      formatAmount(e.Yield),
		"tolerance":  formatAmount(e.Tolerance),
	}
}
