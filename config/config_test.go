package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("listen = %q, want :8080", cfg.ListenAddress)
	}
	if cfg.Decimals != 18 || cfg.ChainID != 1 {
		t.Fatalf("decimals = %d chainID = %d", cfg.Decimals, cfg.ChainID)
	}
	if cfg.SettlementCooldownSeconds != 3600 || cfg.YieldToleranceBps != 1000 {
		t.Fatalf("cooldown = %d tolerance = %d", cfg.SettlementCooldownSeconds, cfg.YieldToleranceBps)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// A second load reads the persisted file back.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress || again.DataDir != cfg.DataDir {
		t.Fatal("reloaded config differs from default")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
ListenAddress = ":9000"
Admins = ["0x0000000000000000000000000000000000000001"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("listen = %q, want :9000", cfg.ListenAddress)
	}
	if cfg.DataDir != "./kvault-data" || cfg.Decimals != 18 {
		t.Fatal("defaults not applied to omitted fields")
	}
	if len(cfg.Admins) != 1 {
		t.Fatalf("admins = %v", cfg.Admins)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
Admins = ["not-an-address"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("invalid admin address accepted")
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000000000000000000000000000Ab")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr[19] != 0xab {
		t.Fatalf("addr = %x", addr)
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatal("short address accepted")
	}
	if _, err := ParseAddress("zz000000000000000000000000000000000000zz"); err == nil {
		t.Fatal("non-hex address accepted")
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("1000000")
	if err != nil || amount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("amount = %s err = %v", amount, err)
	}
	amount, err = ParseAmount("")
	if err != nil || amount.Sign() != 0 {
		t.Fatalf("empty amount = %s err = %v", amount, err)
	}
	if _, err := ParseAmount("-5"); err == nil {
		t.Fatal("negative amount accepted")
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Fatal("non-decimal amount accepted")
	}
}

func TestValidateBounds(t *testing.T) {
	cfg := &Config{SettlementCooldownSeconds: maxCooldownSeconds + 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("oversized cooldown accepted")
	}
	cfg = &Config{YieldToleranceBps: 10_001}
	if err := cfg.Validate(); err == nil {
		t.Fatal("oversized tolerance accepted")
	}
	cfg = &Config{Decimals: 31}
	if err := cfg.Validate(); err == nil {
		t.Fatal("oversized decimals accepted")
	}
}

func TestValidateAssets(t *testing.T) {
	addr := "0x0000000000000000000000000000000000000001"
	asset := Asset{
		Symbol:       "USDC",
		Address:      addr,
		KToken:       addr,
		MinterVault:  addr,
		StakingVault: addr,
	}

	cfg := &Config{Assets: []Asset{asset}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid asset rejected: %v", err)
	}

	missing := asset
	missing.Symbol = " "
	cfg = &Config{Assets: []Asset{missing}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("asset without symbol accepted")
	}

	badFee := asset
	badFee.Fees.PerformanceFeeBps = 10_001
	cfg = &Config{Assets: []Asset{badFee}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("oversized fee accepted")
	}

	badCap := asset
	badCap.MaxMintPerBatch = "-1"
	cfg = &Config{Assets: []Asset{badCap}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative cap accepted")
	}
}
