package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// CryptoService 链服务类型
type CryptoService string

const (
	CryptoServiceEthereum CryptoService = "ETHEREUM"
	CryptoServiceBSC      CryptoService = "BSC"
	CryptoServicePolygon  CryptoService = "POLYGON"
)

var (
	ErrInvalidCryptoData = errors.New("invalid crypto data")
)

// CryptoData 币种链上配置
// 以 JSONB 存储，加载后通过 Validate 校验，避免在调用点做未检查的类型转换
type CryptoData struct {
	ChainID          int64           `json:"chain_id"`
	RPCURLs          []string        `json:"rpc_urls"`
	ContractAddress  string          `json:"contract_address,omitempty"` // 代币合约地址，原生币为空
	TokenDecimals    int32           `json:"token_decimals"`
	GasLimit         uint64          `json:"gas_limit"`
	MaxFeeWei        string          `json:"max_fee_wei"` // 单笔转账的最大手续费上限 (wei)
	MinCollectAmount decimal.Decimal `json:"min_collect_amount"`
}

// Value 实现 driver.Valuer 接口
func (d CryptoData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan 实现 sql.Scanner 接口
func (d *CryptoData) Scan(value interface{}) error {
	if value == nil {
		*d = CryptoData{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, d)
}

// IsToken 是否为合约代币
func (d *CryptoData) IsToken() bool {
	return d.ContractAddress != ""
}

// MaxFee 解析最大手续费上限，未配置时返回 nil
func (d *CryptoData) MaxFee() *big.Int {
	if d.MaxFeeWei == "" {
		return nil
	}
	fee, ok := new(big.Int).SetString(d.MaxFeeWei, 10)
	if !ok {
		return nil
	}
	return fee
}

// Validate 校验链上配置
func (d *CryptoData) Validate() error {
	if d.ChainID <= 0 {
		return ErrInvalidCryptoData
	}
	if len(d.RPCURLs) == 0 {
		return ErrInvalidCryptoData
	}
	if d.IsToken() && d.TokenDecimals <= 0 {
		return ErrInvalidCryptoData
	}
	if d.GasLimit == 0 {
		return ErrInvalidCryptoData
	}
	if d.MaxFeeWei != "" && d.MaxFee() == nil {
		return ErrInvalidCryptoData
	}
	if d.MinCollectAmount.IsNegative() {
		return ErrInvalidCryptoData
	}
	return nil
}

// Decimals 代币精度，原生币默认 18
func (d *CryptoData) Decimals() int32 {
	if d.IsToken() {
		return d.TokenDecimals
	}
	return 18
}

// Currency 币种
type Currency struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol        string        `gorm:"column:symbol;type:varchar(20);uniqueIndex;not null" json:"symbol"`
	Name          string        `gorm:"column:name;type:varchar(100);not null" json:"name"`
	CryptoService CryptoService `gorm:"column:crypto_service;type:varchar(20);not null" json:"crypto_service"`
	CryptoData    CryptoData    `gorm:"column:crypto_data;type:jsonb;not null" json:"crypto_data"`
	Enabled       bool          `gorm:"column:enabled;type:boolean;not null;default:true" json:"enabled"`
	CreatedAt     int64         `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt     int64         `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (Currency) TableName() string {
	return "currencies"
}
