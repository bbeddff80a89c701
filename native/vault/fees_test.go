package vault

import (
	"math/big"
	"testing"
)

const testDecimals = 6

var scale = PriceScale(testDecimals)

func TestGrossSharePrice(t *testing.T) {
	if got := GrossSharePrice(big.NewInt(500), big.NewInt(0), testDecimals); got.Cmp(scale) != 0 {
		t.Fatalf("zero supply price = %s, want %s", got, scale)
	}
	got := GrossSharePrice(big.NewInt(2000), big.NewInt(1000), testDecimals)
	if got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("price = %s, want 2000000", got)
	}
}

func TestNetSharePriceClampsNegative(t *testing.T) {
	got := NetSharePrice(big.NewInt(100), big.NewInt(150), big.NewInt(1000), testDecimals)
	if got.Sign() != 0 {
		t.Fatalf("net price = %s, want 0", got)
	}
}

func TestManagementFeeAccruesLinearly(t *testing.T) {
	total := big.NewInt(1_000_000)
	last := int64(0)
	now := int64(SecondsPerYear / 2)

	got := ManagementFee(total, last, now, 200)
	if got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("half-year fee = %s, want 10000", got)
	}
	if got := ManagementFee(total, now, now, 200); got.Sign() != 0 {
		t.Fatalf("zero elapsed fee = %s, want 0", got)
	}
	if got := ManagementFee(total, last, now, 0); got.Sign() != 0 {
		t.Fatalf("zero rate fee = %s, want 0", got)
	}
}

func TestPerformanceFeeBelowWatermark(t *testing.T) {
	got := PerformanceFee(big.NewInt(900_000), scale, big.NewInt(1_000_000), 2000, 0, false, 0, SecondsPerYear, testDecimals)
	if got.Sign() != 0 {
		t.Fatalf("fee below watermark = %s, want 0", got)
	}
}

func TestPerformanceFeeNoHurdle(t *testing.T) {
	price := big.NewInt(1_200_000)
	supply := big.NewInt(1_000_000)
	got := PerformanceFee(price, scale, supply, 2000, 0, false, 0, SecondsPerYear, testDecimals)
	// 0.2 per share appreciation on 1M shares is 200k of gain; 20% of that.
	if got.Cmp(big.NewInt(40_000)) != 0 {
		t.Fatalf("fee = %s, want 40000", got)
	}
}

func TestPerformanceFeeHardHurdle(t *testing.T) {
	price := big.NewInt(1_200_000)
	supply := big.NewInt(1_000_000)
	// A 5% annual hurdle over one year shields 50k of price appreciation.
	got := PerformanceFee(price, scale, supply, 2000, 500, true, 0, SecondsPerYear, testDecimals)
	if got.Cmp(big.NewInt(30_000)) != 0 {
		t.Fatalf("hard hurdle fee = %s, want 30000", got)
	}
	// Appreciation entirely inside the hurdle charges nothing.
	got = PerformanceFee(price, scale, supply, 2000, 2500, true, 0, SecondsPerYear, testDecimals)
	if got.Sign() != 0 {
		t.Fatalf("shielded fee = %s, want 0", got)
	}
}

func TestPerformanceFeeSoftHurdle(t *testing.T) {
	price := big.NewInt(1_200_000)
	supply := big.NewInt(1_000_000)
	// Once the soft hurdle clears the full appreciation is chargeable.
	got := PerformanceFee(price, scale, supply, 2000, 500, false, 0, SecondsPerYear, testDecimals)
	if got.Cmp(big.NewInt(40_000)) != 0 {
		t.Fatalf("soft hurdle fee = %s, want 40000", got)
	}
	// Below the hurdle nothing is chargeable at all.
	got = PerformanceFee(price, scale, supply, 2000, 2500, false, 0, SecondsPerYear, testDecimals)
	if got.Sign() != 0 {
		t.Fatalf("soft hurdle below threshold fee = %s, want 0", got)
	}
}

func TestConvertToSharesAtPrice(t *testing.T) {
	// 1000 assets at a 1.02 net share price round down to 980 shares.
	got := ConvertToSharesAtPrice(big.NewInt(1000), big.NewInt(1_020_000), testDecimals)
	if got.Cmp(big.NewInt(980)) != 0 {
		t.Fatalf("shares = %s, want 980", got)
	}
	if got := ConvertToSharesAtPrice(big.NewInt(0), big.NewInt(1_020_000), testDecimals); got.Sign() != 0 {
		t.Fatalf("zero assets shares = %s, want 0", got)
	}
}

func TestConvertToAssetsAtPrice(t *testing.T) {
	got := ConvertToAssetsAtPrice(big.NewInt(100), big.NewInt(1_100_000), testDecimals)
	if got.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("assets = %s, want 110", got)
	}
}

func TestConvertRoundTripZeroSupply(t *testing.T) {
	if got := ConvertToShares(big.NewInt(123), big.NewInt(0), big.NewInt(0), testDecimals); got.Cmp(big.NewInt(123)) != 0 {
		t.Fatalf("bootstrap shares = %s, want 123", got)
	}
	if got := ConvertToAssets(big.NewInt(123), big.NewInt(0), big.NewInt(0), testDecimals); got.Cmp(big.NewInt(123)) != 0 {
		t.Fatalf("bootstrap assets = %s, want 123", got)
	}
}

func TestConvertToAssetsProRata(t *testing.T) {
	got := ConvertToAssets(big.NewInt(100), big.NewInt(2000), big.NewInt(1000), testDecimals)
	if got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("assets = %s, want 200", got)
	}
}

func TestFeeConfigValidate(t *testing.T) {
	ok := FeeConfig{ManagementFeeBps: 200, PerformanceFeeBps: 2000, HurdleRateBps: 500}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := FeeConfig{PerformanceFeeBps: 10_001}
	if err := bad.Validate(); err != ErrFeeOutOfRange {
		t.Fatalf("expected ErrFeeOutOfRange, got %v", err)
	}
}
