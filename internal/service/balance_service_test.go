package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

func newBalanceService(walletRepo *mockMainWalletRepo, addressRepo *mockWalletAddressRepo, changeRepo *mockWalletChangeRepo) *BalanceService {
	return NewBalanceService(walletRepo, addressRepo, changeRepo, passthroughTxManager{}, 0)
}

// TestDisplayBalance 测试余额派生公式 base + 缓存点之后的账变
func TestDisplayBalance(t *testing.T) {
	walletRepo := new(mockMainWalletRepo)
	addressRepo := new(mockWalletAddressRepo)
	changeRepo := new(mockWalletChangeRepo)
	svc := newBalanceService(walletRepo, addressRepo, changeRepo)
	ctx := context.Background()

	walletRepo.On("GetByID", ctx, int64(3)).Return(&model.MainWallet{
		ID:              3,
		BaseBalance:     decimal.NewFromInt(10),
		BalanceCachedAt: 1000,
	}, nil)
	changeRepo.On("SumAfter", ctx, int64(3), int64(1000)).
		Return(decimalFromString(t, "-3.5"), nil)

	balance, err := svc.DisplayBalance(ctx, 3)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimalFromString(t, "6.5")))
}

// TestDisplayBalance_NegativeClampedToZero 测试负余额钳位为 0
func TestDisplayBalance_NegativeClampedToZero(t *testing.T) {
	walletRepo := new(mockMainWalletRepo)
	addressRepo := new(mockWalletAddressRepo)
	changeRepo := new(mockWalletChangeRepo)
	svc := newBalanceService(walletRepo, addressRepo, changeRepo)
	ctx := context.Background()

	walletRepo.On("GetByID", ctx, int64(3)).Return(&model.MainWallet{
		ID:              3,
		BaseBalance:     decimal.NewFromInt(1),
		BalanceCachedAt: 1000,
	}, nil)
	changeRepo.On("SumAfter", ctx, int64(3), int64(1000)).
		Return(decimal.NewFromInt(-5), nil)

	balance, err := svc.DisplayBalance(ctx, 3)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

// TestBalanceSync_FoldsChangesIntoBase 测试账变折叠进 base_balance
func TestBalanceSync_FoldsChangesIntoBase(t *testing.T) {
	walletRepo := new(mockMainWalletRepo)
	addressRepo := new(mockWalletAddressRepo)
	changeRepo := new(mockWalletChangeRepo)
	svc := newBalanceService(walletRepo, addressRepo, changeRepo)
	ctx := context.Background()

	addr := &model.MainWalletAddress{ID: 7, MainWalletID: 3, NeedSyncBalance: true}
	addressRepo.On("ListNeedSync", ctx, 200).
		Return([]*model.MainWalletAddress{addr}, nil)
	walletRepo.On("GetByID", ctx, int64(3)).Return(&model.MainWallet{
		ID:              3,
		BaseBalance:     decimal.NewFromInt(10),
		BalanceCachedAt: 1000,
	}, nil)
	// 截止点取当前时刻，只断言求和区间的起点
	changeRepo.On("SumBetween", ctx, int64(3), int64(1000), mock.AnythingOfType("int64")).
		Return(decimal.NewFromInt(4), nil)
	walletRepo.On("Rebase", ctx, int64(3), decimal.NewFromInt(14), mock.AnythingOfType("int64")).
		Return(nil)
	addressRepo.On("SetNeedSyncBalance", ctx, int64(7), false).Return(nil)

	stats, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	walletRepo.AssertExpectations(t)
	addressRepo.AssertExpectations(t)
}
