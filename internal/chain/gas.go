package chain

import (
	"math/big"
)

// GasPolicy 出账交易的 Gas 定价策略
// 在建议价上加一定比例的溢价加速打包，同时受单笔最大手续费约束
type GasPolicy struct {
	// PriceMultiplier 建议价溢价倍数，例如 1.15 表示加价 15%
	PriceMultiplier float64
}

// DefaultGasPolicy 默认定价策略
func DefaultGasPolicy() *GasPolicy {
	return &GasPolicy{PriceMultiplier: 1.15}
}

// Price 计算实际使用的 Gas 价格
// maxFeeWei 为该币种允许的单笔最大手续费 (gasPrice * gasLimit)，nil 表示不限制
func (p *GasPolicy) Price(suggested *big.Int, gasLimit uint64, maxFeeWei *big.Int) *big.Int {
	price := new(big.Int).Set(suggested)
	if p.PriceMultiplier > 1 {
		multiplied := new(big.Float).SetInt(price)
		multiplied.Mul(multiplied, big.NewFloat(p.PriceMultiplier))
		price, _ = multiplied.Int(nil)
	}

	if maxFeeWei != nil && gasLimit > 0 {
		fee := new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit))
		if fee.Cmp(maxFeeWei) > 0 {
			price = new(big.Int).Div(maxFeeWei, new(big.Int).SetUint64(gasLimit))
		}
	}
	return price
}

// Fee 计算给定价格与限额下的总手续费
func (p *GasPolicy) Fee(price *big.Int, gasLimit uint64) *big.Int {
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit))
}
