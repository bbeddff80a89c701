package state

import (
	"errors"
	"math/big"

	"kvault/native/router"
	"kvault/storage"
)

type storedBalances struct {
	Deposited       string
	Requested       string
	RequestedShares string
}

type storedProposal struct {
	ID                         [32]byte
	Asset                      [20]byte
	Vault                      [20]byte
	BatchID                    [32]byte
	TotalAssets                string
	Netted                     string
	Yield                      string
	ExecuteAfter               uint64
	LastFeesChargedManagement  uint64
	LastFeesChargedPerformance uint64
	CreatedAt                  uint64
}

// BalancesGet loads the per-batch flow counters for a vault.
func (s *Store) BalancesGet(vault [20]byte, batchID [32]byte) (*router.Balances, bool, error) {
	var record storedBalances
	ok, err := s.get(compositeKey(prefixBalances, vault[:], batchID[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	balances := &router.Balances{}
	if balances.Deposited, err = decodeBigInt(record.Deposited); err != nil {
		return nil, false, err
	}
	if balances.Requested, err = decodeBigInt(record.Requested); err != nil {
		return nil, false, err
	}
	if balances.RequestedShares, err = decodeBigInt(record.RequestedShares); err != nil {
		return nil, false, err
	}
	return balances, true, nil
}

// BalancesPut stores the per-batch flow counters for a vault.
func (s *Store) BalancesPut(vault [20]byte, batchID [32]byte, balances *router.Balances) error {
	if balances == nil {
		return errNilRecord
	}
	record := storedBalances{
		Deposited:       encodeBigInt(balances.Deposited),
		Requested:       encodeBigInt(balances.Requested),
		RequestedShares: encodeBigInt(balances.RequestedShares),
	}
	return s.put(compositeKey(prefixBalances, vault[:], batchID[:]), record)
}

// ProposalPut stores a settlement proposal keyed by its identifier.
func (s *Store) ProposalPut(p *router.Proposal) error {
	if p == nil {
		return errNilRecord
	}
	record := storedProposal{
		ID:                         p.ID,
		Asset:                      p.Asset,
		Vault:                      p.Vault,
		BatchID:                    p.BatchID,
		TotalAssets:                encodeBigInt(p.TotalAssets),
		Netted:                     encodeBigInt(p.Netted),
		Yield:                      encodeBigInt(p.Yield),
		ExecuteAfter:               encodeTimestamp(p.ExecuteAfter),
		LastFeesChargedManagement:  encodeTimestamp(p.LastFeesChargedManagement),
		LastFeesChargedPerformance: encodeTimestamp(p.LastFeesChargedPerformance),
		CreatedAt:                  encodeTimestamp(p.CreatedAt),
	}
	return s.put(compositeKey(prefixProposal, p.ID[:]), record)
}

// ProposalGet loads the proposal stored under id.
func (s *Store) ProposalGet(id [32]byte) (*router.Proposal, bool, error) {
	var record storedProposal
	ok, err := s.get(compositeKey(prefixProposal, id[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	proposal := &router.Proposal{
		ID:                         record.ID,
		Asset:                      record.Asset,
		Vault:                      record.Vault,
		BatchID:                    record.BatchID,
		ExecuteAfter:               int64(record.ExecuteAfter),
		LastFeesChargedManagement:  int64(record.LastFeesChargedManagement),
		LastFeesChargedPerformance: int64(record.LastFeesChargedPerformance),
		CreatedAt:                  int64(record.CreatedAt),
	}
	if proposal.TotalAssets, err = decodeBigInt(record.TotalAssets); err != nil {
		return nil, false, err
	}
	if proposal.Netted, err = decodeBigInt(record.Netted); err != nil {
		return nil, false, err
	}
	if proposal.Yield, err = decodeBigInt(record.Yield); err != nil {
		return nil, false, err
	}
	return proposal, true, nil
}

// ProposalDelete removes the proposal stored under id.
func (s *Store) ProposalDelete(id [32]byte) error {
	return s.db.Delete(compositeKey(prefixProposal, id[:]))
}

// PendingProposal returns the identifier of the vault's in-flight proposal.
func (s *Store) PendingProposal(vault [20]byte) ([32]byte, bool, error) {
	var id [32]byte
	raw, err := s.db.Get(compositeKey(prefixPending, vault[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return id, false, nil
	}
	if err != nil {
		return id, false, err
	}
	copy(id[:], raw)
	return id, true, nil
}

// SetPendingProposal marks a proposal as the vault's single in-flight one.
func (s *Store) SetPendingProposal(vault [20]byte, id [32]byte) error {
	return s.db.Put(compositeKey(prefixPending, vault[:]), id[:])
}

// ClearPendingProposal removes the vault's in-flight proposal marker.
func (s *Store) ClearPendingProposal(vault [20]byte) error {
	return s.db.Delete(compositeKey(prefixPending, vault[:]))
}

// MarkExecuted records that a proposal has been executed. The marker is never
// removed so replays stay detectable.
func (s *Store) MarkExecuted(id [32]byte) error {
	return s.db.Put(compositeKey(prefixExecuted, id[:]), []byte{1})
}

// IsExecuted reports whether a proposal was already executed.
func (s *Store) IsExecuted(id [32]byte) (bool, error) {
	return s.db.Has(compositeKey(prefixExecuted, id[:]))
}

// LastTotalAssets returns the totals carried out of the vault's previous
// settlement, zero before the first one.
func (s *Store) LastTotalAssets(vault [20]byte) (*big.Int, error) {
	raw, err := s.db.Get(compositeKey(prefixLastTotal, vault[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBigInt(string(raw))
}

// SetLastTotalAssets stores the post-settlement asset total for the vault.
func (s *Store) SetLastTotalAssets(vault [20]byte, total *big.Int) error {
	return s.db.Put(compositeKey(prefixLastTotal, vault[:]), []byte(encodeBigInt(total)))
}

// YieldShortfall returns the vault's outstanding unabsorbed loss, zero when
// no shortfall is carried.
func (s *Store) YieldShortfall(vault [20]byte) (*big.Int, error) {
	raw, err := s.db.Get(compositeKey(prefixShortfall, vault[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBigInt(string(raw))
}

// SetYieldShortfall stores the vault's outstanding unabsorbed loss.
func (s *Store) SetYieldShortfall(vault [20]byte, amount *big.Int) error {
	return s.db.Put(compositeKey(prefixShortfall, vault[:]), []byte(encodeBigInt(amount)))
}
