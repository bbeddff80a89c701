package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const maxCooldownSeconds = 24 * 60 * 60

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("config: invalid address %q: %w", value, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("config: invalid address %q: expected 20 bytes, got %d", value, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// ParseAmount decodes a non-negative decimal amount string. An empty string
// parses as zero.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid amount %q", value)
	}
	return amount, nil
}

// Validate checks address formats, fee rates and cooldown bounds.
func (c *Config) Validate() error {
	if c.SettlementCooldownSeconds < 0 || c.SettlementCooldownSeconds > maxCooldownSeconds {
		return fmt.Errorf("config: settlement cooldown must be within [0, %d] seconds", maxCooldownSeconds)
	}
	if c.YieldToleranceBps > 10_000 {
		return fmt.Errorf("config: yield tolerance %d exceeds 10000 bps", c.YieldToleranceBps)
	}
	if c.Decimals > 30 {
		return fmt.Errorf("config: decimals %d out of range", c.Decimals)
	}
	for _, group := range [][]string{c.Admins, c.Relayers, c.Guardians, c.Institutions} {
		for _, addr := range group {
			if _, err := ParseAddress(addr); err != nil {
				return err
			}
		}
	}
	for i := range c.Assets {
		asset := &c.Assets[i]
		if strings.TrimSpace(asset.Symbol) == "" {
			return fmt.Errorf("config: asset %d missing symbol", i)
		}
		for _, addr := range []string{asset.Address, asset.KToken, asset.MinterVault, asset.StakingVault} {
			if _, err := ParseAddress(addr); err != nil {
				return fmt.Errorf("config: asset %s: %w", asset.Symbol, err)
			}
		}
		for _, amount := range []string{asset.MaxMintPerBatch, asset.MaxBurnPerBatch, asset.MaxTotalAssets} {
			if _, err := ParseAmount(amount); err != nil {
				return fmt.Errorf("config: asset %s: %w", asset.Symbol, err)
			}
		}
		fees := asset.Fees
		if fees.ManagementFeeBps > 10_000 || fees.PerformanceFeeBps > 10_000 || fees.HurdleRateBps > 10_000 {
			return fmt.Errorf("config: asset %s: fee rate exceeds 10000 bps", asset.Symbol)
		}
	}
	return nil
}
