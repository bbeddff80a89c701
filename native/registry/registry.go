package registry

import (
	"errors"
	"math/big"
	"sync"
)

// VaultType distinguishes the institutional minter pool from retail staking
// vaults sharing the same underlying asset.
type VaultType uint8

const (
	VaultTypeMinter VaultType = iota
	VaultTypeStaking
)

var (
	// ErrVaultNotFound is returned when no vault is registered for the
	// requested asset and type.
	ErrVaultNotFound = errors.New("registry: vault not found")
	// ErrAssetNotFound is returned when an asset has no registered claim
	// token.
	ErrAssetNotFound = errors.New("registry: asset not found")
	// ErrZeroAddress rejects the zero address in any registration.
	ErrZeroAddress = errors.New("registry: zero address")
)

// Roles exposes the role checks the engines gate privileged transitions on.
type Roles interface {
	IsAdmin(addr [20]byte) bool
	IsRelayer(addr [20]byte) bool
	IsGuardian(addr [20]byte) bool
	IsInstitution(addr [20]byte) bool
}

// Limits exposes the per-batch and global caps enforced at the request
// boundary.
type Limits interface {
	MaxMintPerBatch(asset [20]byte) *big.Int
	MaxBurnPerBatch(asset [20]byte) *big.Int
	MaxTotalAssets(vault [20]byte) *big.Int
}

// Lookup resolves assets, claim tokens and vaults for the engines.
type Lookup interface {
	AssetToKToken(asset [20]byte) ([20]byte, error)
	VaultByAssetAndType(asset [20]byte, kind VaultType) ([20]byte, error)
	VaultAsset(vault [20]byte) ([20]byte, bool)
	VaultKind(vault [20]byte) (VaultType, bool)
}

// Registry is the injected configuration object shared by every engine. It
// replaces any globally reachable singleton so engines stay testable.
type Registry struct {
	mu           sync.RWMutex
	admins       map[[20]byte]bool
	relayers     map[[20]byte]bool
	guardians    map[[20]byte]bool
	institutions map[[20]byte]bool

	kTokens    map[[20]byte][20]byte
	vaults     map[vaultKey][20]byte
	vaultAsset map[[20]byte][20]byte
	vaultKind  map[[20]byte]VaultType

	maxMint        map[[20]byte]*big.Int
	maxBurn        map[[20]byte]*big.Int
	maxTotalAssets map[[20]byte]*big.Int
}

type vaultKey struct {
	asset [20]byte
	kind  VaultType
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		admins:         make(map[[20]byte]bool),
		relayers:       make(map[[20]byte]bool),
		guardians:      make(map[[20]byte]bool),
		institutions:   make(map[[20]byte]bool),
		kTokens:        make(map[[20]byte][20]byte),
		vaults:         make(map[vaultKey][20]byte),
		vaultAsset:     make(map[[20]byte][20]byte),
		vaultKind:      make(map[[20]byte]VaultType),
		maxMint:        make(map[[20]byte]*big.Int),
		maxBurn:        make(map[[20]byte]*big.Int),
		maxTotalAssets: make(map[[20]byte]*big.Int),
	}
}

func isZero(addr [20]byte) bool { return addr == ([20]byte{}) }

// GrantAdmin registers an admin address.
func (r *Registry) GrantAdmin(addr [20]byte) error { return r.grant(addr, "admin") }

// GrantRelayer registers a relayer address.
func (r *Registry) GrantRelayer(addr [20]byte) error { return r.grant(addr, "relayer") }

// GrantGuardian registers a guardian address.
func (r *Registry) GrantGuardian(addr [20]byte) error { return r.grant(addr, "guardian") }

// GrantInstitution registers an institution address.
func (r *Registry) GrantInstitution(addr [20]byte) error { return r.grant(addr, "institution") }

func (r *Registry) grant(addr [20]byte, role string) error {
	if isZero(addr) {
		return ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch role {
	case "admin":
		r.admins[addr] = true
	case "relayer":
		r.relayers[addr] = true
	case "guardian":
		r.guardians[addr] = true
	case "institution":
		r.institutions[addr] = true
	}
	return nil
}

// IsAdmin implements Roles.
func (r *Registry) IsAdmin(addr [20]byte) bool { return r.has(r.admins, addr) }

// IsRelayer implements Roles.
func (r *Registry) IsRelayer(addr [20]byte) bool { return r.has(r.relayers, addr) }

// IsGuardian implements Roles.
func (r *Registry) IsGuardian(addr [20]byte) bool { return r.has(r.guardians, addr) }

// IsInstitution implements Roles.
func (r *Registry) IsInstitution(addr [20]byte) bool { return r.has(r.institutions, addr) }

func (r *Registry) has(set map[[20]byte]bool, addr [20]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return set[addr]
}

// RegisterAsset binds an asset to its claim token.
func (r *Registry) RegisterAsset(asset, kToken [20]byte) error {
	if isZero(asset) || isZero(kToken) {
		return ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kTokens[asset] = kToken
	return nil
}

// RegisterVault binds a vault address to its asset and type.
func (r *Registry) RegisterVault(vault, asset [20]byte, kind VaultType) error {
	if isZero(vault) || isZero(asset) {
		return ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vaults[vaultKey{asset: asset, kind: kind}] = vault
	r.vaultAsset[vault] = asset
	r.vaultKind[vault] = kind
	return nil
}

// AssetToKToken implements Lookup.
func (r *Registry) AssetToKToken(asset [20]byte) ([20]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.kTokens[asset]
	if !ok {
		return [20]byte{}, ErrAssetNotFound
	}
	return token, nil
}

// VaultByAssetAndType implements Lookup.
func (r *Registry) VaultByAssetAndType(asset [20]byte, kind VaultType) ([20]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vault, ok := r.vaults[vaultKey{asset: asset, kind: kind}]
	if !ok {
		return [20]byte{}, ErrVaultNotFound
	}
	return vault, nil
}

// VaultAsset implements Lookup.
func (r *Registry) VaultAsset(vault [20]byte) ([20]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.vaultAsset[vault]
	return asset, ok
}

// VaultKind implements Lookup.
func (r *Registry) VaultKind(vault [20]byte) (VaultType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.vaultKind[vault]
	return kind, ok
}

// SetMaxMintPerBatch configures the institutional mint cap for an asset. A nil
// cap removes the limit.
func (r *Registry) SetMaxMintPerBatch(asset [20]byte, cap *big.Int) {
	r.setLimit(r.maxMint, asset, cap)
}

// SetMaxBurnPerBatch configures the institutional burn cap for an asset.
func (r *Registry) SetMaxBurnPerBatch(asset [20]byte, cap *big.Int) {
	r.setLimit(r.maxBurn, asset, cap)
}

// SetMaxTotalAssets configures the global asset cap for a vault.
func (r *Registry) SetMaxTotalAssets(vault [20]byte, cap *big.Int) {
	r.setLimit(r.maxTotalAssets, vault, cap)
}

func (r *Registry) setLimit(dst map[[20]byte]*big.Int, key [20]byte, cap *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cap == nil {
		delete(dst, key)
		return
	}
	dst[key] = new(big.Int).Set(cap)
}

// MaxMintPerBatch implements Limits. Nil means unlimited.
func (r *Registry) MaxMintPerBatch(asset [20]byte) *big.Int { return r.limit(r.maxMint, asset) }

// MaxBurnPerBatch implements Limits. Nil means unlimited.
func (r *Registry) MaxBurnPerBatch(asset [20]byte) *big.Int { return r.limit(r.maxBurn, asset) }

// MaxTotalAssets implements Limits. Nil means unlimited.
func (r *Registry) MaxTotalAssets(vault [20]byte) *big.Int { return r.limit(r.maxTotalAssets, vault) }

func (r *Registry) limit(src map[[20]byte]*big.Int, key [20]byte) *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := src[key]
	if !ok {
		return nil
	}
	return new(big.Int).Set(v)
}
