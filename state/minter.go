package state

import (
	"bytes"
	"math/big"
	"sort"

	"kvault/native/minter"
)

type storedBurnRequest struct {
	ID               [32]byte
	Institution      [20]byte
	Asset            [20]byte
	Recipient        [20]byte
	Amount           string
	BatchID          [32]byte
	RequestTimestamp uint64
	Status           uint8
}

type storedStrayEntry struct {
	Asset  [20]byte
	Amount string
}

// storedDistributor flattens the stray-asset map into a slice because RLP
// cannot encode maps.
type storedDistributor struct {
	BatchID          [32]byte
	Asset            [20]byte
	Receiver         [20]byte
	AuthorizedCaller [20]byte
	Balance          string
	Stray            []storedStrayEntry
}

// BurnRequestPut stores an institutional burn request.
func (s *Store) BurnRequestPut(r *minter.BurnRequest) error {
	if r == nil {
		return errNilRecord
	}
	record := storedBurnRequest{
		ID:               r.ID,
		Institution:      r.Institution,
		Asset:            r.Asset,
		Recipient:        r.Recipient,
		Amount:           encodeBigInt(r.Amount),
		BatchID:          r.BatchID,
		RequestTimestamp: encodeTimestamp(r.RequestTimestamp),
		Status:           uint8(r.Status),
	}
	return s.put(compositeKey(prefixBurnReq, r.ID[:]), record)
}

// BurnRequestGet loads the burn request stored under id.
func (s *Store) BurnRequestGet(id [32]byte) (*minter.BurnRequest, bool, error) {
	var record storedBurnRequest
	ok, err := s.get(compositeKey(prefixBurnReq, id[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	amount, err := decodeBigInt(record.Amount)
	if err != nil {
		return nil, false, err
	}
	return &minter.BurnRequest{
		ID:               record.ID,
		Institution:      record.Institution,
		Asset:            record.Asset,
		Recipient:        record.Recipient,
		Amount:           amount,
		BatchID:          record.BatchID,
		RequestTimestamp: int64(record.RequestTimestamp),
		Status:           minter.BurnStatus(record.Status),
	}, true, nil
}

// NextMintNonce advances and returns the asset's mint counter, used to derive
// unique burn request identifiers.
func (s *Store) NextMintNonce(asset [20]byte) (uint64, error) {
	return s.nextCounter(compositeKey(prefixMintNonce, asset[:]))
}

// DistributorPut stores a per-batch redemption distributor.
func (s *Store) DistributorPut(d *minter.Distributor) error {
	if d == nil {
		return errNilRecord
	}
	record := storedDistributor{
		BatchID:          d.BatchID,
		Asset:            d.Asset,
		Receiver:         d.Receiver,
		AuthorizedCaller: d.AuthorizedCaller,
		Balance:          encodeBigInt(d.Balance),
	}
	for asset, amount := range d.Stray {
		record.Stray = append(record.Stray, storedStrayEntry{Asset: asset, Amount: encodeBigInt(amount)})
	}
	// Map iteration order is random; sort so encodings stay deterministic.
	sort.Slice(record.Stray, func(i, j int) bool {
		return bytes.Compare(record.Stray[i].Asset[:], record.Stray[j].Asset[:]) < 0
	})
	return s.put(compositeKey(prefixDistributor, d.BatchID[:]), record)
}

// DistributorGet loads the distributor for a batch.
func (s *Store) DistributorGet(batchID [32]byte) (*minter.Distributor, bool, error) {
	var record storedDistributor
	ok, err := s.get(compositeKey(prefixDistributor, batchID[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	balance, err := decodeBigInt(record.Balance)
	if err != nil {
		return nil, false, err
	}
	distributor := &minter.Distributor{
		BatchID:          record.BatchID,
		Asset:            record.Asset,
		Receiver:         record.Receiver,
		AuthorizedCaller: record.AuthorizedCaller,
		Balance:          balance,
		Stray:            make(map[[20]byte]*big.Int, len(record.Stray)),
	}
	for _, entry := range record.Stray {
		amount, err := decodeBigInt(entry.Amount)
		if err != nil {
			return nil, false, err
		}
		distributor.Stray[entry.Asset] = amount
	}
	return distributor, true, nil
}
