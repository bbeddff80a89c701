package state

import (
	"encoding/binary"
	"errors"

	"kvault/native/batch"
	"kvault/storage"
)

type storedSnapshot struct {
	TotalAssets    string
	TotalNetAssets string
	TotalSupply    string
	SharePrice     string
	NetSharePrice  string
}

type storedBatch struct {
	ID               [32]byte
	Vault            [20]byte
	Asset            [20]byte
	Number           uint64
	Receiver         [20]byte
	HasReceiver      bool
	Closed           bool
	Settled          bool
	CreatedAt        uint64
	ClosedAt         uint64
	SettledAt        uint64
	DepositedInBatch string
	WithdrawnInBatch string
	HasSnapshot      bool
	Snapshot         storedSnapshot
}

func newStoredBatch(b *batch.Batch) *storedBatch {
	record := &storedBatch{
		ID:               b.ID,
		Vault:            b.Vault,
		Asset:            b.Asset,
		Number:           b.Number,
		Receiver:         b.Receiver,
		HasReceiver:      b.HasReceiver,
		Closed:           b.Closed,
		Settled:          b.Settled,
		CreatedAt:        encodeTimestamp(b.CreatedAt),
		ClosedAt:         encodeTimestamp(b.ClosedAt),
		SettledAt:        encodeTimestamp(b.SettledAt),
		DepositedInBatch: encodeBigInt(b.DepositedInBatch),
		WithdrawnInBatch: encodeBigInt(b.WithdrawnInBatch),
	}
	if b.Snapshot != nil {
		record.HasSnapshot = true
		record.Snapshot = storedSnapshot{
			TotalAssets:    encodeBigInt(b.Snapshot.TotalAssets),
			TotalNetAssets: encodeBigInt(b.Snapshot.TotalNetAssets),
			TotalSupply:    encodeBigInt(b.Snapshot.TotalSupply),
			SharePrice:     encodeBigInt(b.Snapshot.SharePrice),
			NetSharePrice:  encodeBigInt(b.Snapshot.NetSharePrice),
		}
	}
	return record
}

func (r *storedBatch) toBatch() (*batch.Batch, error) {
	deposited, err := decodeBigInt(r.DepositedInBatch)
	if err != nil {
		return nil, err
	}
	withdrawn, err := decodeBigInt(r.WithdrawnInBatch)
	if err != nil {
		return nil, err
	}
	result := &batch.Batch{
		ID:               r.ID,
		Vault:            r.Vault,
		Asset:            r.Asset,
		Number:           r.Number,
		Receiver:         r.Receiver,
		HasReceiver:      r.HasReceiver,
		Closed:           r.Closed,
		Settled:          r.Settled,
		CreatedAt:        int64(r.CreatedAt),
		ClosedAt:         int64(r.ClosedAt),
		SettledAt:        int64(r.SettledAt),
		DepositedInBatch: deposited,
		WithdrawnInBatch: withdrawn,
	}
	if r.HasSnapshot {
		snapshot := &batch.Snapshot{}
		if snapshot.TotalAssets, err = decodeBigInt(r.Snapshot.TotalAssets); err != nil {
			return nil, err
		}
		if snapshot.TotalNetAssets, err = decodeBigInt(r.Snapshot.TotalNetAssets); err != nil {
			return nil, err
		}
		if snapshot.TotalSupply, err = decodeBigInt(r.Snapshot.TotalSupply); err != nil {
			return nil, err
		}
		if snapshot.SharePrice, err = decodeBigInt(r.Snapshot.SharePrice); err != nil {
			return nil, err
		}
		if snapshot.NetSharePrice, err = decodeBigInt(r.Snapshot.NetSharePrice); err != nil {
			return nil, err
		}
		result.Snapshot = snapshot
	}
	return result, nil
}

// BatchPut stores a batch record keyed by its identifier.
func (s *Store) BatchPut(b *batch.Batch) error {
	if b == nil {
		return errNilRecord
	}
	return s.put(compositeKey(prefixBatch, b.ID[:]), newStoredBatch(b))
}

// BatchGet loads the batch stored under id.
func (s *Store) BatchGet(id [32]byte) (*batch.Batch, bool, error) {
	var record storedBatch
	ok, err := s.get(compositeKey(prefixBatch, id[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	decoded, err := record.toBatch()
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// CurrentBatch returns the identifier of the vault's open batch, if any.
func (s *Store) CurrentBatch(vault [20]byte) ([32]byte, bool, error) {
	var id [32]byte
	raw, err := s.db.Get(compositeKey(prefixCurrentBatch, vault[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return id, false, nil
	}
	if err != nil {
		return id, false, err
	}
	copy(id[:], raw)
	return id, true, nil
}

// SetCurrentBatch records the vault's open batch pointer.
func (s *Store) SetCurrentBatch(vault [20]byte, id [32]byte) error {
	return s.db.Put(compositeKey(prefixCurrentBatch, vault[:]), id[:])
}

// NextBatchNumber advances and returns the vault's monotonic batch counter.
// The first batch for a vault is numbered one.
func (s *Store) NextBatchNumber(vault [20]byte) (uint64, error) {
	key := compositeKey(prefixBatchNumber, vault[:])
	next, err := s.nextCounter(key)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) nextCounter(key []byte) (uint64, error) {
	var last uint64
	raw, err := s.db.Get(key)
	switch {
	case err == nil:
		if len(raw) != 8 {
			return 0, errors.New("state: corrupt counter record")
		}
		last = binary.BigEndian.Uint64(raw)
	case errors.Is(err, storage.ErrNotFound):
	default:
		return 0, err
	}
	next := last + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.db.Put(key, buf); err != nil {
		return 0, err
	}
	return next, nil
}
