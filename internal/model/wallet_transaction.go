package model

import "github.com/shopspring/decimal"

// WalletTxType 钱包交易类型
type WalletTxType string

const (
	WalletTxTypeDeposit  WalletTxType = "DEPOSIT"
	WalletTxTypeWithdraw WalletTxType = "WITHDRAW"
)

// WalletTxStatus 钱包交易状态
type WalletTxStatus int8

const (
	WalletTxStatusPending WalletTxStatus = 0 // 待处理
	WalletTxStatusSucceed WalletTxStatus = 1 // 成功 (终态)
	WalletTxStatusFailed  WalletTxStatus = 2 // 失败 (终态)
)

func (s WalletTxStatus) String() string {
	switch s {
	case WalletTxStatusPending:
		return "PENDING"
	case WalletTxStatusSucceed:
		return "SUCCEED"
	case WalletTxStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal 是否为终态
func (s WalletTxStatus) IsTerminal() bool {
	return s == WalletTxStatusSucceed || s == WalletTxStatusFailed
}

// ApprovedStatus 审核状态
type ApprovedStatus int8

const (
	ApprovedStatusNone     ApprovedStatus = 0 // 无需审核
	ApprovedStatusRequired ApprovedStatus = 1 // 待审核
	ApprovedStatusApproved ApprovedStatus = 2 // 已通过
	ApprovedStatusRejected ApprovedStatus = 3 // 已拒绝
)

func (s ApprovedStatus) String() string {
	switch s {
	case ApprovedStatusNone:
		return "NONE"
	case ApprovedStatusRequired:
		return "REQUIRED"
	case ApprovedStatusApproved:
		return "APPROVED"
	case ApprovedStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// MainWalletTransaction 充值/提现交易记录
// (currency_id, tx_hash) 部分唯一索引是防止充值重复入账的核心约束。
// 索引只覆盖 DEPOSIT: 提现创建时哈希为空，广播后才回填，不能参与唯一约束
type MainWalletTransaction struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	MainWalletID    int64           `gorm:"column:main_wallet_id;type:bigint;index;not null" json:"main_wallet_id"`
	CurrencyID      int64           `gorm:"column:currency_id;type:bigint;uniqueIndex:idx_deposit_dedup,where:tx_type = 'DEPOSIT';not null" json:"currency_id"`
	TxType          WalletTxType    `gorm:"column:tx_type;type:varchar(10);index;not null" json:"tx_type"`
	TxHash          string          `gorm:"column:tx_hash;type:varchar(66);uniqueIndex:idx_deposit_dedup;not null" json:"tx_hash"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Fee             decimal.Decimal `gorm:"column:fee;type:decimal(36,18);not null;default:0" json:"fee"`
	ToAddress       string          `gorm:"column:to_address;type:varchar(42);not null;default:''" json:"to_address"`
	BlockNumber     int64           `gorm:"column:block_number;type:bigint;not null;default:0" json:"block_number"`
	Status          WalletTxStatus  `gorm:"column:status;type:smallint;index;not null;default:0" json:"status"`
	ApprovedStatus  ApprovedStatus  `gorm:"column:approved_status;type:smallint;not null;default:0" json:"approved_status"`
	IsNotifiedAdmin bool            `gorm:"column:is_notified_admin;type:boolean;not null;default:false" json:"is_notified_admin"`
	ErrorMessage    string          `gorm:"column:error_message;type:text;not null;default:''" json:"error_message"`
	CreatedAt       int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt       int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (MainWalletTransaction) TableName() string {
	return "main_wallet_transactions"
}

// SendAmount 提现实际上链金额 (扣除手续费)
func (t *MainWalletTransaction) SendAmount() decimal.Decimal {
	return t.Amount.Sub(t.Fee)
}

// Disbursable 提现是否可执行 (无需审核，或已通过审核)
func (t *MainWalletTransaction) Disbursable() bool {
	return t.ApprovedStatus == ApprovedStatusNone || t.ApprovedStatus == ApprovedStatusApproved
}
