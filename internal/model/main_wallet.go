package model

import "github.com/shopspring/decimal"

// MainWallet 用户资金钱包 (每用户每币种一个)
// 余额为派生值: base_balance + balance_cached_at 之后的账变之和
type MainWallet struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"column:user_id;type:bigint;uniqueIndex:idx_user_currency;not null" json:"user_id"`
	CurrencyID      int64           `gorm:"column:currency_id;type:bigint;uniqueIndex:idx_user_currency;not null" json:"currency_id"`
	BaseBalance     decimal.Decimal `gorm:"column:base_balance;type:decimal(36,18);not null;default:0" json:"base_balance"`
	BalanceCachedAt int64           `gorm:"column:balance_cached_at;type:bigint;not null;default:0" json:"balance_cached_at"`
	Frozen          bool            `gorm:"column:frozen;type:boolean;not null;default:false" json:"frozen"`
	CreatedAt       int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt       int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (MainWallet) TableName() string {
	return "main_wallets"
}

// DisplayBalance 展示余额，负数钳位为 0
func (w *MainWallet) DisplayBalance(changesSum decimal.Decimal) decimal.Decimal {
	balance := w.BaseBalance.Add(changesSum)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// MainWalletAddress 用户充值地址 (每钱包一个)
type MainWalletAddress struct {
	ID              int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	MainWalletID    int64  `gorm:"column:main_wallet_id;type:bigint;uniqueIndex;not null" json:"main_wallet_id"`
	Address         string `gorm:"column:address;type:varchar(42);index;not null" json:"address"`
	EncryptedKey    string `gorm:"column:encrypted_key;type:text;not null" json:"-"`
	NeedSyncBalance bool   `gorm:"column:need_sync_balance;type:boolean;index;not null;default:false" json:"need_sync_balance"`
	CreatedAt       int64  `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt       int64  `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (MainWalletAddress) TableName() string {
	return "main_wallet_addresses"
}

// UserAccountStatus 用户状态
type UserAccountStatus int8

const (
	UserAccountStatusNormal    UserAccountStatus = 0
	UserAccountStatusSuspended UserAccountStatus = 1
)

func (s UserAccountStatus) String() string {
	switch s {
	case UserAccountStatusNormal:
		return "NORMAL"
	case UserAccountStatusSuspended:
		return "SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// UserAccount 用户账户 (提现前置校验用)
type UserAccount struct {
	ID        int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64             `gorm:"column:user_id;type:bigint;uniqueIndex;not null" json:"user_id"`
	Status    UserAccountStatus `gorm:"column:status;type:smallint;not null;default:0" json:"status"`
	CreatedAt int64             `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt int64             `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (UserAccount) TableName() string {
	return "user_accounts"
}
