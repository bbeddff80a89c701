package events

import "math/big"

const (
	// TypeBatchCreated is emitted when a new request batch opens for a vault.
	TypeBatchCreated = "batch.created"
	// TypeBatchClosed is emitted when the relayer closes a batch.
	TypeBatchClosed = "batch.closed"
	// TypeBatchSettled is emitted once settlement execution snapshots a batch.
	TypeBatchSettled = "batch.settled"
)

// BatchCreated captures the opening of a new batch window.
type BatchCreated struct {
	Vault   [20]byte
	Asset   [20]byte
	BatchID [32]byte
	Number  uint64
}

// EventType satisfies the Event interface.
func (BatchCreated) EventType() string { return TypeBatchCreated }

// Attributes satisfies the Event interface.
func (e BatchCreated) Attributes() map[string]string {
	return map[string]string{
		"vault":   formatAddress(e.Vault),
		"asset":   formatAddress(e.Asset),
		"batchId": formatID(e.BatchID),
		"number":  formatAmount(new(big.Int).SetUint64(e.Number)),
	}
}

// BatchClosed captures the relayer closing a batch to new requests.
type BatchClosed struct {
	Vault     [20]byte
	BatchID   [32]byte
	Deposited *big.Int
	Requested *big.Int
}

// EventType satisfies the Event interface.
func (BatchClosed) EventType() string { return TypeBatchClosed }

// Attributes satisfies the Event interface.
func (e BatchClosed) Attributes() map[string]string {
	return map[string]string{
		"vault":     formatAddress(e.Vault),
		"batchId":   formatID(e.BatchID),
		"deposited": formatAmount(e.Deposited),
		"requested": formatAmount(e.Requested),
	}
}

// BatchSettled captures the final snapshot recorded for a settled batch.
type BatchSettled struct {
	Vault          [20]byte
	BatchID        [32]byte
	TotalAssets    *big.Int
	TotalNetAssets *big.Int
	TotalSupply    *big.Int
	SharePrice     *big.Int
	NetSharePrice  *big.Int
}

// EventType satisfies the Event interface.
func (BatchSettled) EventType() string { return TypeBatchSettled }

// Attributes satisfies the Event interface.
func (e BatchSettled) Attributes() map[string]string {
	return map[string]string{
		"vault":          formatAddress(e.Vault),
		"batchId":        formatID(e.BatchID),
		"totalAssets":    formatAmount(e.TotalAssets),
		"totalNetAssets": formatAmount(e.TotalNetAssets),
		"totalSupply":    formatAmount(e.TotalSupply),
		"sharePrice":     formatAmount(e.SharePrice),
		"netSharePrice":  formatAmount(e.NetSharePrice),
	}
}
