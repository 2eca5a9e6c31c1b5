package model

import "github.com/shopspring/decimal"

// ChangeEventType 账变事件类型
type ChangeEventType string

const (
	ChangeEventDeposit        ChangeEventType = "DEPOSIT"
	ChangeEventWithdraw       ChangeEventType = "WITHDRAW"
	ChangeEventWithdrawRefund ChangeEventType = "WITHDRAW_REFUND" // 提现失败的补偿入账
	ChangeEventAdjustment     ChangeEventType = "ADJUSTMENT"
)

// MainWalletChange 账变流水 (仅追加，不更新不删除)
// (event_type, event_id) 唯一索引保证同一事件最多产生一条账变
type MainWalletChange struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	MainWalletID int64           `gorm:"column:main_wallet_id;type:bigint;index;not null" json:"main_wallet_id"`
	EventType    ChangeEventType `gorm:"column:event_type;type:varchar(30);uniqueIndex:idx_event;not null" json:"event_type"`
	EventID      string          `gorm:"column:event_id;type:varchar(64);uniqueIndex:idx_event;not null" json:"event_id"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"` // 带符号增量
	CreatedAt    int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
}

// TableName 返回表名
func (MainWalletChange) TableName() string {
	return "main_wallet_changes"
}

// DepositEvent 充值事件 (发送到 Kafka)
type DepositEvent struct {
	TransactionID int64           `json:"transaction_id"`
	MainWalletID  int64           `json:"main_wallet_id"`
	CurrencyID    int64           `json:"currency_id"`
	Symbol        string          `json:"symbol"`
	Address       string          `json:"address"`
	Amount        decimal.Decimal `json:"amount"`
	TxHash        string          `json:"tx_hash"`
	BlockNumber   int64           `json:"block_number"`
	DetectedAt    int64           `json:"detected_at"`
}

// WithdrawalEvent 提现结果事件 (发送到 Kafka)
type WithdrawalEvent struct {
	TransactionID int64           `json:"transaction_id"`
	MainWalletID  int64           `json:"main_wallet_id"`
	CurrencyID    int64           `json:"currency_id"`
	Symbol        string          `json:"symbol"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	ToAddress     string          `json:"to_address"`
	TxHash        string          `json:"tx_hash,omitempty"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	FinishedAt    int64           `json:"finished_at"`
}

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "WARNING"
	AlertLevelCritical AlertLevel = "CRITICAL"
)

// OperatorAlert 运营告警 (发送到 Kafka)
type OperatorAlert struct {
	Level      AlertLevel `json:"level"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	CurrencyID int64      `json:"currency_id,omitempty"`
	Symbol     string     `json:"symbol,omitempty"`
	RaisedAt   int64      `json:"raised_at"`
}
