package vault

import (
	"errors"
	"math/big"
)

const (
	// BpsDenominator is the basis-point scale shared by every fee rate.
	BpsDenominator = 10_000
	// SecondsPerYear is the accrual period for annualized rates.
	SecondsPerYear = 365 * 24 * 60 * 60
)

// ErrFeeOutOfRange rejects fee configuration above 100%.
var ErrFeeOutOfRange = errors.New("vault: fee bps out of range")

// FeeConfig captures the fee schedule applied to a staking vault at
// settlement.
type FeeConfig struct {
	ManagementFeeBps  uint64
	PerformanceFeeBps uint64
	HurdleRateBps     uint64
	HardHurdle        bool
}

// Validate ensures every rate stays within the basis-point cap.
func (c FeeConfig) Validate() error {
	if c.ManagementFeeBps > BpsDenominator || c.PerformanceFeeBps > BpsDenominator || c.HurdleRateBps > BpsDenominator {
		return ErrFeeOutOfRange
	}
	return nil
}

// PriceScale returns 10^decimals, the fixed-point scale share prices are
// quoted at. A price equal to the scale is 1.0.
func PriceScale(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// GrossSharePrice computes totalAssets * 10^decimals / totalSupply, defined
// as 1.0 at scale when the supply is zero.
func GrossSharePrice(totalAssets, totalSupply *big.Int, decimals uint8) *big.Int {
	scale := PriceScale(decimals)
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return scale
	}
	price := new(big.Int).Mul(clone(totalAssets), scale)
	return price.Div(price, totalSupply)
}

// NetSharePrice computes the share price after deducting accrued fees from
// the asset total.
func NetSharePrice(totalAssets, accruedFees, totalSupply *big.Int, decimals uint8) *big.Int {
	net := new(big.Int).Sub(clone(totalAssets), clone(accruedFees))
	if net.Sign() < 0 {
		net.SetInt64(0)
	}
	return GrossSharePrice(net, totalSupply, decimals)
}

// ManagementFee accrues the annual management rate linearly over the elapsed
// interval: totalAssets * rateBps / 10_000 * elapsed / secondsPerYear.
func ManagementFee(totalAssets *big.Int, lastCharged, now int64, annualRateBps uint64) *big.Int {
	if totalAssets == nil || totalAssets.Sign() <= 0 || annualRateBps == 0 || now <= lastCharged {
		return big.NewInt(0)
	}
	elapsed := big.NewInt(now - lastCharged)
	fee := new(big.Int).Mul(totalAssets, new(big.Int).SetUint64(annualRateBps))
	fee.Mul(fee, elapsed)
	fee.Div(fee, big.NewInt(BpsDenominator))
	fee.Div(fee, big.NewInt(SecondsPerYear))
	return fee
}

// PerformanceFee charges the performance rate on net-share-price appreciation
// above the watermark. With a hard hurdle only the appreciation exceeding the
// hurdle return is chargeable; with a soft hurdle the entire appreciation is
// chargeable once the hurdle clears. The result is denominated in assets.
func PerformanceFee(currentNetSharePrice, watermark, totalSupply *big.Int, rateBps, hurdleRateBps uint64, hardHurdle bool, lastCharged, now int64, decimals uint8) *big.Int {
	zero := big.NewInt(0)
	if currentNetSharePrice == nil || totalSupply == nil || totalSupply.Sign() == 0 || rateBps == 0 {
		return zero
	}
	mark := clone(watermark)
	if mark.Sign() == 0 {
		mark = PriceScale(decimals)
	}
	if currentNetSharePrice.Cmp(mark) <= 0 {
		return zero
	}
	appreciation := new(big.Int).Sub(currentNetSharePrice, mark)

	hurdle := big.NewInt(0)
	if hurdleRateBps > 0 && now > lastCharged {
		hurdle.Mul(mark, new(big.Int).SetUint64(hurdleRateBps))
		hurdle.Mul(hurdle, big.NewInt(now-lastCharged))
		hurdle.Div(hurdle, big.NewInt(BpsDenominator))
		hurdle.Div(hurdle, big.NewInt(SecondsPerYear))
	}

	chargeable := new(big.Int)
	if hardHurdle {
		chargeable.Sub(appreciation, hurdle)
		if chargeable.Sign() <= 0 {
			return zero
		}
	} else {
		if appreciation.Cmp(hurdle) <= 0 {
			return zero
		}
		chargeable.Set(appreciation)
	}

	// Price delta times supply over scale yields the asset-denominated gain.
	fee := new(big.Int).Mul(chargeable, totalSupply)
	fee.Mul(fee, new(big.Int).SetUint64(rateBps))
	fee.Div(fee, big.NewInt(BpsDenominator))
	fee.Div(fee, PriceScale(decimals))
	return fee
}

// ConvertToShares maps an asset amount to shares at the supplied totals. A
// zero supply converts 1:1 at the decimals scale.
func ConvertToShares(assets, totalAssets, totalSupply *big.Int, decimals uint8) *big.Int {
	if assets == nil || assets.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return clone(assets)
	}
	if totalAssets == nil || totalAssets.Sign() == 0 {
		return clone(assets)
	}
	shares := new(big.Int).Mul(assets, totalSupply)
	return shares.Div(shares, totalAssets)
}

// ConvertToAssets maps a share amount to assets at the supplied totals. A
// zero supply converts 1:1 at the decimals scale.
func ConvertToAssets(shares, totalAssets, totalSupply *big.Int, decimals uint8) *big.Int {
	if shares == nil || shares.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return clone(shares)
	}
	assets := new(big.Int).Mul(shares, clone(totalAssets))
	return assets.Div(assets, totalSupply)
}

// ConvertToSharesAtPrice maps assets to shares at an explicit share price
// quoted at the decimals scale.
func ConvertToSharesAtPrice(assets, price *big.Int, decimals uint8) *big.Int {
	if assets == nil || assets.Sign() == 0 || price == nil || price.Sign() == 0 {
		return big.NewInt(0)
	}
	shares := new(big.Int).Mul(assets, PriceScale(decimals))
	return shares.Div(shares, price)
}

// ConvertToAssetsAtPrice maps shares to assets at an explicit share price
// quoted at the decimals scale.
func ConvertToAssetsAtPrice(shares, price *big.Int, decimals uint8) *big.Int {
	if shares == nil || shares.Sign() == 0 || price == nil || price.Sign() == 0 {
		return big.NewInt(0)
	}
	assets := new(big.Int).Mul(shares, price)
	return assets.Div(assets, PriceScale(decimals))
}
