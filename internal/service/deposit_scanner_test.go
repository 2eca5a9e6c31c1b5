package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/heliox-exchange/heliox-custody/internal/chain"
	"github.com/heliox-exchange/heliox-custody/internal/model"
)

func testTokenCurrency() *model.Currency {
	return &model.Currency{
		ID:            1,
		Symbol:        "USDT",
		CryptoService: model.CryptoServiceEthereum,
		CryptoData: model.CryptoData{
			ChainID:         1,
			RPCURLs:         []string{"http://localhost:8545"},
			ContractAddress: "0x00000000000000000000000000000000000000aa",
			TokenDecimals:   6,
			GasLimit:        60000,
		},
		Enabled: true,
	}
}

func testNativeCurrency() *model.Currency {
	return &model.Currency{
		ID:            2,
		Symbol:        "ETH",
		CryptoService: model.CryptoServiceEthereum,
		CryptoData: model.CryptoData{
			ChainID:  1,
			RPCURLs:  []string{"http://localhost:8545"},
			GasLimit: 21000,
		},
		Enabled: true,
	}
}

func testMasterWallet(currentBlock int64) *model.MasterWallet {
	return &model.MasterWallet{
		ID:         1,
		CurrencyID: 1,
		Address:    "0x00000000000000000000000000000000000000ff",
		ScanData: model.ScanData{
			CurrentBlock:     currentBlock,
			DelayBlock:       2,
			MaxCheckingBlock: 50,
		},
	}
}

type scannerFixture struct {
	currencyRepo *mockCurrencyRepo
	masterRepo   *mockMasterWalletRepo
	addressRepo  *mockWalletAddressRepo
	txRepo       *mockWalletTxRepo
	changeRepo   *mockWalletChangeRepo
	client       *mockChainClient
	notifier     *recordingNotifier
	scanner      *DepositScanner
}

func newScannerFixture() *scannerFixture {
	f := &scannerFixture{
		currencyRepo: new(mockCurrencyRepo),
		masterRepo:   new(mockMasterWalletRepo),
		addressRepo:  new(mockWalletAddressRepo),
		txRepo:       new(mockWalletTxRepo),
		changeRepo:   new(mockWalletChangeRepo),
		client:       new(mockChainClient),
		notifier:     new(recordingNotifier),
	}
	f.scanner = NewDepositScanner(
		f.currencyRepo, f.masterRepo, f.addressRepo, f.txRepo, f.changeRepo,
		passthroughTxManager{},
		&stubChainRegistry{client: f.client},
		f.notifier,
	)
	return f
}

// TestScanCurrency_WindowArithmetic 测试扫描窗口计算
// current=100, max_checking=50, delay=2, head=200 => (100, 148]
func TestScanCurrency_WindowArithmetic(t *testing.T) {
	f := newScannerFixture()
	currency := testTokenCurrency()
	ctx := context.Background()

	f.masterRepo.On("GetByCurrencyID", ctx, int64(1)).Return(testMasterWallet(100), nil)
	f.client.On("BlockNumber", ctx).Return(int64(200), nil)
	f.addressRepo.On("ListByCurrency", ctx, int64(1)).Return([]*model.MainWalletAddress{}, nil)
	f.client.On("TokenTransfers", ctx, common.HexToAddress(currency.CryptoData.ContractAddress), int64(100), int64(148)).
		Return([]*chain.Transfer{}, nil)
	f.masterRepo.On("AdvanceCheckpoint", ctx, int64(1), int64(148)).Return(nil)

	stats, err := f.scanner.ScanCurrency(ctx, currency)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
	f.masterRepo.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

// TestScanCurrency_NoNewBlocks 测试窗口为空时不扫描也不推进游标
func TestScanCurrency_NoNewBlocks(t *testing.T) {
	f := newScannerFixture()
	ctx := context.Background()

	// head=101, delay=2 => to_block=99 <= current=100
	f.masterRepo.On("GetByCurrencyID", ctx, int64(1)).Return(testMasterWallet(100), nil)
	f.client.On("BlockNumber", ctx).Return(int64(101), nil)

	stats, err := f.scanner.ScanCurrency(ctx, testTokenCurrency())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
	f.masterRepo.AssertNotCalled(t, "AdvanceCheckpoint", mock.Anything, mock.Anything, mock.Anything)
}

// TestScanCurrency_CreditsDeposit 测试命中平台地址的转账入账
func TestScanCurrency_CreditsDeposit(t *testing.T) {
	f := newScannerFixture()
	currency := testTokenCurrency()
	ctx := context.Background()

	addr := &model.MainWalletAddress{ID: 7, MainWalletID: 3, Address: "0x00000000000000000000000000000000000000cc"}
	transfer := &chain.Transfer{
		TxHash:      "0xdeadbeef",
		From:        "0x00000000000000000000000000000000000000dd",
		To:          addr.Address,
		AmountWei:   big.NewInt(1_500_000), // 1.5 USDT (6 位精度)
		BlockNumber: 120,
	}

	f.masterRepo.On("GetByCurrencyID", ctx, int64(1)).Return(testMasterWallet(100), nil)
	f.client.On("BlockNumber", ctx).Return(int64(200), nil)
	f.addressRepo.On("ListByCurrency", ctx, int64(1)).Return([]*model.MainWalletAddress{addr}, nil)
	f.client.On("TokenTransfers", ctx, mock.Anything, int64(100), int64(148)).
		Return([]*chain.Transfer{transfer}, nil)
	f.txRepo.On("ExistsDeposit", ctx, int64(1), "0xdeadbeef").Return(false, nil)
	f.txRepo.On("Create", ctx, mock.MatchedBy(func(tx *model.MainWalletTransaction) bool {
		// 充值见账即成，直接落为 SUCCEED
		return tx.Status == model.WalletTxStatusSucceed &&
			tx.TxType == model.WalletTxTypeDeposit &&
			tx.Amount.Equal(decimalFromString(t, "1.5")) &&
			tx.MainWalletID == 3
	})).Return(nil)
	f.changeRepo.On("Create", ctx, mock.MatchedBy(func(change *model.MainWalletChange) bool {
		return change.EventType == model.ChangeEventDeposit &&
			change.EventID == "1" &&
			change.Amount.Equal(decimalFromString(t, "1.5"))
	})).Return(nil)
	f.addressRepo.On("SetNeedSyncBalance", ctx, int64(7), true).Return(nil)
	f.masterRepo.On("AdvanceCheckpoint", ctx, int64(1), int64(148)).Return(nil)

	stats, err := f.scanner.ScanCurrency(ctx, currency)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)

	require.Len(t, f.notifier.deposits, 1)
	assert.Equal(t, "0xdeadbeef", f.notifier.deposits[0].TxHash)
	f.txRepo.AssertExpectations(t)
	f.changeRepo.AssertExpectations(t)
}

// TestScanCurrency_DuplicateIsNoOp 测试重复扫描同一笔充值不会二次入账
func TestScanCurrency_DuplicateIsNoOp(t *testing.T) {
	f := newScannerFixture()
	ctx := context.Background()

	addr := &model.MainWalletAddress{ID: 7, MainWalletID: 3, Address: "0x00000000000000000000000000000000000000cc"}
	transfer := &chain.Transfer{
		TxHash:      "0xdeadbeef",
		To:          addr.Address,
		AmountWei:   big.NewInt(1_500_000),
		BlockNumber: 120,
	}

	f.masterRepo.On("GetByCurrencyID", ctx, int64(1)).Return(testMasterWallet(100), nil)
	f.client.On("BlockNumber", ctx).Return(int64(200), nil)
	f.addressRepo.On("ListByCurrency", ctx, int64(1)).Return([]*model.MainWalletAddress{addr}, nil)
	f.client.On("TokenTransfers", ctx, mock.Anything, int64(100), int64(148)).
		Return([]*chain.Transfer{transfer}, nil)
	f.txRepo.On("ExistsDeposit", ctx, int64(1), "0xdeadbeef").Return(true, nil)
	f.masterRepo.On("AdvanceCheckpoint", ctx, int64(1), int64(148)).Return(nil)

	stats, err := f.scanner.ScanCurrency(ctx, testTokenCurrency())
	require.NoError(t, err)
	// 重复充值计入跳过而非成功
	assert.Equal(t, 0, stats.Succeeded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, f.notifier.deposits)
	f.txRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	// 重复不是错误，游标照常推进
	f.masterRepo.AssertExpectations(t)
}

// TestScanCurrency_FetchErrorKeepsCheckpoint 测试拉取失败时游标不动
func TestScanCurrency_FetchErrorKeepsCheckpoint(t *testing.T) {
	f := newScannerFixture()
	ctx := context.Background()

	f.masterRepo.On("GetByCurrencyID", ctx, int64(1)).Return(testMasterWallet(100), nil)
	f.client.On("BlockNumber", ctx).Return(int64(200), nil)
	f.addressRepo.On("ListByCurrency", ctx, int64(1)).Return([]*model.MainWalletAddress{}, nil)
	f.client.On("TokenTransfers", ctx, mock.Anything, int64(100), int64(148)).
		Return(nil, errors.New("rpc unavailable"))

	_, err := f.scanner.ScanCurrency(ctx, testTokenCurrency())
	require.Error(t, err)
	f.masterRepo.AssertNotCalled(t, "AdvanceCheckpoint", mock.Anything, mock.Anything, mock.Anything)
}

// TestScanCurrency_CreditErrorKeepsCheckpoint 测试入账失败时游标不动
func TestScanCurrency_CreditErrorKeepsCheckpoint(t *testing.T) {
	f := newScannerFixture()
	ctx := context.Background()

	addr := &model.MainWalletAddress{ID: 7, MainWalletID: 3, Address: "0x00000000000000000000000000000000000000cc"}
	transfer := &chain.Transfer{
		TxHash:      "0xdeadbeef",
		To:          addr.Address,
		AmountWei:   big.NewInt(1_500_000),
		BlockNumber: 120,
	}

	f.masterRepo.On("GetByCurrencyID", ctx, int64(1)).Return(testMasterWallet(100), nil)
	f.client.On("BlockNumber", ctx).Return(int64(200), nil)
	f.addressRepo.On("ListByCurrency", ctx, int64(1)).Return([]*model.MainWalletAddress{addr}, nil)
	f.client.On("TokenTransfers", ctx, mock.Anything, int64(100), int64(148)).
		Return([]*chain.Transfer{transfer}, nil)
	f.txRepo.On("ExistsDeposit", ctx, int64(1), "0xdeadbeef").Return(false, nil)
	f.txRepo.On("Create", ctx, mock.Anything).Return(errors.New("db down"))

	_, err := f.scanner.ScanCurrency(ctx, testTokenCurrency())
	require.Error(t, err)
	f.masterRepo.AssertNotCalled(t, "AdvanceCheckpoint", mock.Anything, mock.Anything, mock.Anything)
}

// TestScanCurrency_UnknownAddressSkipped 测试无关地址的转账被忽略
func TestScanCurrency_UnknownAddressSkipped(t *testing.T) {
	f := newScannerFixture()
	ctx := context.Background()

	transfer := &chain.Transfer{
		TxHash:      "0xdeadbeef",
		To:          "0x0000000000000000000000000000000000000999",
		AmountWei:   big.NewInt(1_500_000),
		BlockNumber: 120,
	}

	f.masterRepo.On("GetByCurrencyID", ctx, int64(1)).Return(testMasterWallet(100), nil)
	f.client.On("BlockNumber", ctx).Return(int64(200), nil)
	f.addressRepo.On("ListByCurrency", ctx, int64(1)).Return([]*model.MainWalletAddress{}, nil)
	f.client.On("TokenTransfers", ctx, mock.Anything, int64(100), int64(148)).
		Return([]*chain.Transfer{transfer}, nil)
	f.masterRepo.On("AdvanceCheckpoint", ctx, int64(1), int64(148)).Return(nil)

	stats, err := f.scanner.ScanCurrency(ctx, testTokenCurrency())
	require.NoError(t, err)
	// 无关地址的转账不进入统计口径
	assert.Equal(t, 0, stats.Processed)
	f.txRepo.AssertNotCalled(t, "ExistsDeposit", mock.Anything, mock.Anything, mock.Anything)
}

// TestScanCurrency_NativePerBlock 测试原生币逐块拉取转账
func TestScanCurrency_NativePerBlock(t *testing.T) {
	f := newScannerFixture()
	currency := testNativeCurrency()
	ctx := context.Background()

	master := testMasterWallet(100)
	master.CurrencyID = 2
	// 窗口收窄为 (100, 102] 便于逐块断言
	master.ScanData.MaxCheckingBlock = 4

	f.masterRepo.On("GetByCurrencyID", ctx, int64(2)).Return(master, nil)
	f.client.On("BlockNumber", ctx).Return(int64(200), nil)
	f.addressRepo.On("ListByCurrency", ctx, int64(2)).Return([]*model.MainWalletAddress{}, nil)
	f.client.On("NativeTransfers", ctx, int64(100)).Return([]*chain.Transfer{}, nil)
	f.client.On("NativeTransfers", ctx, int64(101)).Return([]*chain.Transfer{}, nil)
	f.client.On("NativeTransfers", ctx, int64(102)).Return([]*chain.Transfer{}, nil)
	f.masterRepo.On("AdvanceCheckpoint", ctx, int64(2), int64(102)).Return(nil)

	_, err := f.scanner.ScanCurrency(ctx, currency)
	require.NoError(t, err)
	f.client.AssertExpectations(t)
}
