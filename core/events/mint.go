package events

import "math/big"

const (
	// TypeMinted is emitted when an institution mints claim tokens against a
	// deposit.
	TypeMinted = "minter.minted"
	// TypeBurnRequested is emitted when an institution escrows claim tokens
	// for redemption in the current batch.
	TypeBurnRequested = "minter.burnRequested"
	// TypeBurned is emitted when a settled burn request is redeemed.
	TypeBurned = "minter.burned"
	// TypeBurnRequestCancelled is emitted when a pending burn request is
	// cancelled before its batch closes.
	TypeBurnRequestCancelled = "minter.burnRequestCancelled"
	// TypeDistributorFunded is emitted when settlement moves assets into a
	// per-batch redemption distributor.
	TypeDistributorFunded = "minter.distributorFunded"
)

// Minted captures an institutional deposit and the 1:1 claim-token issuance.
type Minted struct {
	Institution [20]byte
	Asset       [20]byte
	Recipient   [20]byte
	Amount      *big.Int
	BatchID     [32]byte
}

// EventType satisfies the Event interface.
func (Minted) EventType() string { return TypeMinted }

// Attributes satisfies the Event interface.
func (e Minted) Attributes() map[string]string {
	return map[string]string{
		"institution": formatAddress(e.Institution),
		"asset":       formatAddress(e.Asset),
		"recipient":   formatAddress(e.Recipient),
		"amount":      formatAmount(e.Amount),
		"batchId":     formatID(e.BatchID),
	}
}

// BurnRequested captures escrowed claim tokens awaiting batch settlement.
type BurnRequested struct {
	RequestID   [32]byte
	Institution [20]byte
	Asset       [20]byte
	Amount      *big.Int
	BatchID     [32]byte
}

// EventType satisfies the Event interface.
func (BurnRequested) EventType() string { return TypeBurnRequested }

// Attributes satisfies the Event interface.
func (e BurnRequested) Attributes() map[string]string {
	return map[string]string{
		"requestId":   formatID(e.RequestID),
		"institution": formatAddress(e.Institution),
		"asset":       formatAddress(e.Asset),
		"amount":      formatAmount(e.Amount),
		"batchId":     formatID(e.BatchID),
	}
}

// Burned captures the redemption of a settled burn request.
type Burned struct {
	RequestID [32]byte
	Recipient [20]byte
	Asset     [20]byte
	Amount    *big.Int
	BatchID   [32]byte
}

// EventType satisfies the Event interface.
func (Burned) EventType() string { return TypeBurned }

// Attributes satisfies the Event interface.
func (e Burned) Attributes() map[string]string {
	return map[string]string{
		"requestId": formatID(e.RequestID),
		"recipient": formatAddress(e.Recipient),
		"asset":     formatAddress(e.Asset),
		"amount":    formatAmount(e.Amount),
		"batchId":   formatID(e.BatchID),
	}
}

// BurnRequestCancelled captures a cancelled burn request and the returned
// claim-token escrow.
type BurnRequestCancelled struct {
	RequestID   [32]byte
	Institution [20]byte
	Amount      *big.Int
	BatchID     [32]byte
}

// EventType satisfies the Event interface.
func (BurnRequestCancelled) EventType() string { return TypeBurnRequestCancelled }

// Attributes satisfies the Event interface.
func (e BurnRequestCancelled) Attributes() map[string]string {
	return map[string]string{
		"requestId":   formatID(e.RequestID),
		"institution": formatAddress(e.Institution),
		"amount":      formatAmount(e.Amount),
		"batchId":     formatID(e.BatchID),
	}
}

// DistributorFunded captures assets arriving in a per-batch distributor.
type DistributorFunded struct {
	BatchID [32]byte
	Asset   [20]byte
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (DistributorFunded) EventType() string { return TypeDistributorFunded }

// Attributes satisfies the Event interface.
func (e DistributorFunded) Attributes() map[string]string {
	return map[string]string{
		"batchId": formatID(e.BatchID),
		"asset":   formatAddress(e.Asset),
		"amount":  formatAmount(e.Amount),
	}
}
