package model

import "github.com/shopspring/decimal"

// MasterTxType 归集流水类型
type MasterTxType string

const (
	MasterTxTypeIn  MasterTxType = "IN"  // 用户地址 -> 主钱包 (归集)
	MasterTxTypeOut MasterTxType = "OUT" // 费用钱包 -> 用户地址 (gas 补充)
)

// TransactionMaster 归集/gas 补充流水
// 与用户充提记录分开存储，归集不是用户发起的提现
type TransactionMaster struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CurrencyID  int64           `gorm:"column:currency_id;type:bigint;index;not null" json:"currency_id"`
	TxType      MasterTxType    `gorm:"column:tx_type;type:varchar(5);not null" json:"tx_type"`
	FromAddress string          `gorm:"column:from_address;type:varchar(42);not null" json:"from_address"`
	ToAddress   string          `gorm:"column:to_address;type:varchar(42);not null" json:"to_address"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	TxHash      string          `gorm:"column:tx_hash;type:varchar(66);index;not null" json:"tx_hash"`
	CreatedAt   int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
}

// TableName 返回表名
func (TransactionMaster) TableName() string {
	return "transaction_masters"
}
