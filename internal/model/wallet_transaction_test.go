package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWalletTxStatus_String(t *testing.T) {
	tests := []struct {
		status   WalletTxStatus
		expected string
	}{
		{WalletTxStatusPending, "PENDING"},
		{WalletTxStatusSucceed, "SUCCEED"},
		{WalletTxStatusFailed, "FAILED"},
		{WalletTxStatus(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestWalletTxStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status     WalletTxStatus
		isTerminal bool
	}{
		{WalletTxStatusPending, false},
		{WalletTxStatusSucceed, true},
		{WalletTxStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.isTerminal, tt.status.IsTerminal())
		})
	}
}

func TestMainWalletTransaction_SendAmount(t *testing.T) {
	tx := MainWalletTransaction{
		Amount: decimal.NewFromInt(100),
		Fee:    decimal.NewFromInt(1),
	}
	assert.True(t, tx.SendAmount().Equal(decimal.NewFromInt(99)))
}

func TestMainWalletTransaction_Disbursable(t *testing.T) {
	tests := []struct {
		approved    ApprovedStatus
		disbursable bool
	}{
		{ApprovedStatusNone, true},
		{ApprovedStatusRequired, false},
		{ApprovedStatusApproved, true},
		{ApprovedStatusRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.approved.String(), func(t *testing.T) {
			tx := MainWalletTransaction{ApprovedStatus: tt.approved}
			assert.Equal(t, tt.disbursable, tx.Disbursable())
		})
	}
}

func TestMainWalletTransaction_TableName(t *testing.T) {
	tx := MainWalletTransaction{}
	assert.Equal(t, "main_wallet_transactions", tx.TableName())
}
