package state

import (
	"kvault/native/vault"
)

type storedStakeRequest struct {
	ID               [32]byte
	Vault            [20]byte
	User             [20]byte
	Recipient        [20]byte
	Amount           string
	BatchID          [32]byte
	RequestTimestamp uint64
	Status           uint8
}

type storedUnstakeRequest struct {
	ID               [32]byte
	Vault            [20]byte
	User             [20]byte
	Recipient        [20]byte
	Shares           string
	BatchID          [32]byte
	RequestTimestamp uint64
	Status           uint8
}

type storedFeeState struct {
	ManagementFeeBps           uint64
	PerformanceFeeBps          uint64
	HurdleRateBps              uint64
	HardHurdle                 bool
	Watermark                  string
	AccruedFees                string
	LastFeesChargedManagement  uint64
	LastFeesChargedPerformance uint64
}

// StakeRequestPut stores a retail stake request.
func (s *Store) StakeRequestPut(r *vault.StakeRequest) error {
	if r == nil {
		return errNilRecord
	}
	record := storedStakeRequest{
		ID:               r.ID,
		Vault:            r.Vault,
		User:             r.User,
		Recipient:        r.Recipient,
		Amount:           encodeBigInt(r.Amount),
		BatchID:          r.BatchID,
		RequestTimestamp: encodeTimestamp(r.RequestTimestamp),
		Status:           uint8(r.Status),
	}
	return s.put(compositeKey(prefixStakeReq, r.ID[:]), record)
}

// StakeRequestGet loads the stake request stored under id.
func (s *Store) StakeRequestGet(id [32]byte) (*vault.StakeRequest, bool, error) {
	var record storedStakeRequest
	ok, err := s.get(compositeKey(prefixStakeReq, id[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	amount, err := decodeBigInt(record.Amount)
	if err != nil {
		return nil, false, err
	}
	return &vault.StakeRequest{
		ID:               record.ID,
		Vault:            record.Vault,
		User:             record.User,
		Recipient:        record.Recipient,
		Amount:           amount,
		BatchID:          record.BatchID,
		RequestTimestamp: int64(record.RequestTimestamp),
		Status:           vault.RequestStatus(record.Status),
	}, true, nil
}

// UnstakeRequestPut stores a retail unstake request.
func (s *Store) UnstakeRequestPut(r *vault.UnstakeRequest) error {
	if r == nil {
		return errNilRecord
	}
	record := storedUnstakeRequest{
		ID:               r.ID,
		Vault:            r.Vault,
		User:             r.User,
		Recipient:        r.Recipient,
		Shares:           encodeBigInt(r.Shares),
		BatchID:          r.BatchID,
		RequestTimestamp: encodeTimestamp(r.RequestTimestamp),
		Status:           uint8(r.Status),
	}
	return s.put(compositeKey(prefixUnstakeReq, r.ID[:]), record)
}

// UnstakeRequestGet loads the unstake request stored under id.
func (s *Store) UnstakeRequestGet(id [32]byte) (*vault.UnstakeRequest, bool, error) {
	var record storedUnstakeRequest
	ok, err := s.get(compositeKey(prefixUnstakeReq, id[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	shares, err := decodeBigInt(record.Shares)
	if err != nil {
		return nil, false, err
	}
	return &vault.UnstakeRequest{
		ID:               record.ID,
		Vault:            record.Vault,
		User:             record.User,
		Recipient:        record.Recipient,
		Shares:           shares,
		BatchID:          record.BatchID,
		RequestTimestamp: int64(record.RequestTimestamp),
		Status:           vault.RequestStatus(record.Status),
	}, true, nil
}

// FeeStateGet loads the staking vault's fee schedule and accrual cursors.
func (s *Store) FeeStateGet(addr [20]byte) (*vault.FeeState, bool, error) {
	var record storedFeeState
	ok, err := s.get(compositeKey(prefixFeeState, addr[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	fs := &vault.FeeState{
		Config: vault.FeeConfig{
			ManagementFeeBps:  record.ManagementFeeBps,
			PerformanceFeeBps: record.PerformanceFeeBps,
			HurdleRateBps:     record.HurdleRateBps,
			HardHurdle:        record.HardHurdle,
		},
		LastFeesChargedManagement:  int64(record.LastFeesChargedManagement),
		LastFeesChargedPerformance: int64(record.LastFeesChargedPerformance),
	}
	if fs.Watermark, err = decodeBigInt(record.Watermark); err != nil {
		return nil, false, err
	}
	if fs.AccruedFees, err = decodeBigInt(record.AccruedFees); err != nil {
		return nil, false, err
	}
	return fs, true, nil
}

// FeeStatePut stores the staking vault's fee schedule and accrual cursors.
func (s *Store) FeeStatePut(addr [20]byte, fs *vault.FeeState) error {
	if fs == nil {
		return errNilRecord
	}
	record := storedFeeState{
		ManagementFeeBps:           fs.Config.ManagementFeeBps,
		PerformanceFeeBps:          fs.Config.PerformanceFeeBps,
		HurdleRateBps:              fs.Config.HurdleRateBps,
		HardHurdle:                 fs.Config.HardHurdle,
		Watermark:                  encodeBigInt(fs.Watermark),
		AccruedFees:                encodeBigInt(fs.AccruedFees),
		LastFeesChargedManagement:  encodeTimestamp(fs.LastFeesChargedManagement),
		LastFeesChargedPerformance: encodeTimestamp(fs.LastFeesChargedPerformance),
	}
	return s.put(compositeKey(prefixFeeState, addr[:]), record)
}

// NextRequestNonce advances and returns the vault's request counter, used to
// derive unique request identifiers.
func (s *Store) NextRequestNonce(addr [20]byte) (uint64, error) {
	return s.nextCounter(compositeKey(prefixReqNonce, addr[:]))
}
