package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"kvault/storage"
)

// Key prefixes namespace the records sharing one key-value database.
var (
	prefixBatch        = []byte("kv/batch/")
	prefixCurrentBatch = []byte("kv/batch/current/")
	prefixBatchNumber  = []byte("kv/batch/number/")
	prefixBalances     = []byte("kv/router/balances/")
	prefixProposal     = []byte("kv/router/proposal/")
	prefixPending      = []byte("kv/router/pending/")
	prefixExecuted     = []byte("kv/router/executed/")
	prefixLastTotal    = []byte("kv/router/lasttotal/")
	prefixShortfall    = []byte("kv/router/shortfall/")
	prefixStakeReq     = []byte("kv/vault/stake/")
	prefixUnstakeReq   = []byte("kv/vault/unstake/")
	prefixFeeState     = []byte("kv/vault/fees/")
	prefixReqNonce     = []byte("kv/vault/nonce/")
	prefixBurnReq      = []byte("kv/minter/burn/")
	prefixMintNonce    = []byte("kv/minter/nonce/")
	prefixDistributor  = []byte("kv/minter/distributor/")
)

var errNilRecord = errors.New("state: nil record")

// Store persists the protocol state in a key-value database using RLP
// encoded records. It backs every engine's state interface so a single
// database instance carries the whole vault ledger.
type Store struct {
	db storage.Database
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func compositeKey(prefix []byte, parts ...[]byte) []byte {
	key := append([]byte(nil), prefix...)
	for _, part := range parts {
		key = append(key, part...)
	}
	return key
}

func (s *Store) put(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	return s.db.Put(key, encoded)
}

// get decodes the record stored at key into out. The bool reports whether the
// key was present.
func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

// --- big.Int and timestamp codec helpers ---
//
// RLP has no signed integer support, so amounts persist as decimal strings.
// This also keeps signed settlement quantities (netted flow, yield)
// round-trippable.

func encodeBigInt(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("state: invalid amount %q", value)
	}
	return parsed, nil
}

func encodeTimestamp(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}
