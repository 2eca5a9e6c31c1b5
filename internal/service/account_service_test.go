package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
)

type accountFixture struct {
	currencyRepo *mockCurrencyRepo
	walletRepo   *mockMainWalletRepo
	addressRepo  *mockWalletAddressRepo
	keystore     *mockKeystore
	svc          *AccountService
}

func newAccountFixture() *accountFixture {
	f := &accountFixture{
		currencyRepo: new(mockCurrencyRepo),
		walletRepo:   new(mockMainWalletRepo),
		addressRepo:  new(mockWalletAddressRepo),
		keystore:     new(mockKeystore),
	}
	f.svc = NewAccountService(f.currencyRepo, f.walletRepo, f.addressRepo, passthroughTxManager{}, f.keystore)
	return f
}

// TestGetOrCreateWallet_Existing 测试已有钱包直接返回
func TestGetOrCreateWallet_Existing(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()

	wallet := &model.MainWallet{ID: 3, UserID: 9, CurrencyID: 1}
	addr := &model.MainWalletAddress{ID: 7, MainWalletID: 3, Address: "0xcc"}

	f.walletRepo.On("GetByUserAndCurrency", ctx, int64(9), int64(1)).Return(wallet, nil)
	f.addressRepo.On("GetByWalletID", ctx, int64(3)).Return(addr, nil)

	gotWallet, gotAddr, err := f.svc.GetOrCreateWallet(ctx, 9, 1)
	require.NoError(t, err)
	assert.Same(t, wallet, gotWallet)
	assert.Same(t, addr, gotAddr)
	f.keystore.AssertNotCalled(t, "GenerateAddress")
}

// TestGetOrCreateWallet_CreatesWalletAndAddress 测试开户生成地址并落库
func TestGetOrCreateWallet_CreatesWalletAndAddress(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()

	f.walletRepo.On("GetByUserAndCurrency", ctx, int64(9), int64(1)).
		Return(nil, repository.ErrMainWalletNotFound)
	f.currencyRepo.On("GetByID", ctx, int64(1)).Return(testTokenCurrency(), nil)
	f.keystore.On("GenerateAddress").
		Return("0x00000000000000000000000000000000000000cc", "enc-key", nil)
	f.walletRepo.On("Create", ctx, mock.MatchedBy(func(w *model.MainWallet) bool {
		return w.UserID == 9 && w.CurrencyID == 1
	})).Return(nil)
	f.addressRepo.On("Create", ctx, mock.MatchedBy(func(a *model.MainWalletAddress) bool {
		return a.Address == "0x00000000000000000000000000000000000000cc" &&
			a.EncryptedKey == "enc-key" &&
			a.MainWalletID == 1
	})).Return(nil)

	wallet, addr, err := f.svc.GetOrCreateWallet(ctx, 9, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), wallet.UserID)
	assert.Equal(t, "0x00000000000000000000000000000000000000cc", addr.Address)
	f.walletRepo.AssertExpectations(t)
	f.addressRepo.AssertExpectations(t)
}

// TestGetOrCreateWallet_ConcurrentCreateFallsBack 测试并发开户竞争失败后读取已落库的钱包
func TestGetOrCreateWallet_ConcurrentCreateFallsBack(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()

	existing := &model.MainWallet{ID: 3, UserID: 9, CurrencyID: 1}
	existingAddr := &model.MainWalletAddress{ID: 7, MainWalletID: 3}

	f.walletRepo.On("GetByUserAndCurrency", ctx, int64(9), int64(1)).
		Return(nil, repository.ErrMainWalletNotFound).Once()
	f.currencyRepo.On("GetByID", ctx, int64(1)).Return(testTokenCurrency(), nil)
	f.keystore.On("GenerateAddress").Return("0xcc", "enc-key", nil)
	f.walletRepo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateMainWallet)
	f.walletRepo.On("GetByUserAndCurrency", ctx, int64(9), int64(1)).
		Return(existing, nil).Once()
	f.addressRepo.On("GetByWalletID", ctx, int64(3)).Return(existingAddr, nil)

	wallet, addr, err := f.svc.GetOrCreateWallet(ctx, 9, 1)
	require.NoError(t, err)
	assert.Same(t, existing, wallet)
	assert.Same(t, existingAddr, addr)
	f.addressRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// TestGetOrCreateWallet_UnknownCurrency 测试未知币种拒绝开户
func TestGetOrCreateWallet_UnknownCurrency(t *testing.T) {
	f := newAccountFixture()
	ctx := context.Background()

	f.walletRepo.On("GetByUserAndCurrency", ctx, int64(9), int64(99)).
		Return(nil, repository.ErrMainWalletNotFound)
	f.currencyRepo.On("GetByID", ctx, int64(99)).
		Return(nil, repository.ErrCurrencyNotFound)

	_, _, err := f.svc.GetOrCreateWallet(ctx, 9, 99)
	assert.ErrorIs(t, err, repository.ErrCurrencyNotFound)
	f.keystore.AssertNotCalled(t, "GenerateAddress")
}
