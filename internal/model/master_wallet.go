package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

var (
	ErrInvalidScanData = errors.New("invalid scan data")
)

// ScanData 充值扫描游标
// 以 JSONB 存储在主钱包上，是充值扫描器唯一的持久化游标
type ScanData struct {
	CurrentBlock     int64 `json:"current_block"`
	DelayBlock       int64 `json:"delay_block"`
	MaxCheckingBlock int64 `json:"max_checking_block"`
}

// Value 实现 driver.Valuer 接口
func (d ScanData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan 实现 sql.Scanner 接口
func (d *ScanData) Scan(value interface{}) error {
	if value == nil {
		*d = ScanData{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, d)
}

// Validate 校验扫描游标
func (d *ScanData) Validate() error {
	if d.CurrentBlock < 0 || d.DelayBlock < 0 {
		return ErrInvalidScanData
	}
	if d.MaxCheckingBlock <= 0 {
		return ErrInvalidScanData
	}
	return nil
}

// WindowEnd 计算本轮扫描的结束区块
// to_block = min(chain_head, current_block + max_checking_block) - delay_block
// delay_block 保留最近的 N 个区块不扫描，避免链重组导致的误入账
func (d *ScanData) WindowEnd(chainHead int64) int64 {
	end := chainHead
	if limit := d.CurrentBlock + d.MaxCheckingBlock; limit < end {
		end = limit
	}
	return end - d.DelayBlock
}

// MasterWallet 主钱包 (每币种一个热钱包)
type MasterWallet struct {
	ID           int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CurrencyID   int64    `gorm:"column:currency_id;type:bigint;uniqueIndex;not null" json:"currency_id"`
	Address      string   `gorm:"column:address;type:varchar(42);not null" json:"address"`
	EncryptedKey string   `gorm:"column:encrypted_key;type:text;not null" json:"-"`
	ScanData     ScanData `gorm:"column:scan_data;type:jsonb;not null" json:"scan_data"`
	CreatedAt    int64    `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt    int64    `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (MasterWallet) TableName() string {
	return "master_wallets"
}
