package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/heliox-exchange/heliox-custody/internal/chain"
	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("invalid decimal %q: %v", s, err)
	}
	return d
}

// mockCurrencyRepo 模拟币种仓储
type mockCurrencyRepo struct {
	mock.Mock
}

func (m *mockCurrencyRepo) GetByID(ctx context.Context, id int64) (*model.Currency, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Currency), args.Error(1)
}

func (m *mockCurrencyRepo) GetBySymbol(ctx context.Context, symbol string) (*model.Currency, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Currency), args.Error(1)
}

func (m *mockCurrencyRepo) ListEnabled(ctx context.Context) ([]*model.Currency, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Currency), args.Error(1)
}

func (m *mockCurrencyRepo) Update(ctx context.Context, currency *model.Currency) error {
	args := m.Called(ctx, currency)
	return args.Error(0)
}

// mockMasterWalletRepo 模拟主钱包仓储
type mockMasterWalletRepo struct {
	mock.Mock
}

func (m *mockMasterWalletRepo) GetByCurrencyID(ctx context.Context, currencyID int64) (*model.MasterWallet, error) {
	args := m.Called(ctx, currencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MasterWallet), args.Error(1)
}

func (m *mockMasterWalletRepo) ListAll(ctx context.Context) ([]*model.MasterWallet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MasterWallet), args.Error(1)
}

func (m *mockMasterWalletRepo) AdvanceCheckpoint(ctx context.Context, currencyID int64, newCurrentBlock int64) error {
	args := m.Called(ctx, currencyID, newCurrentBlock)
	return args.Error(0)
}

// mockWalletAddressRepo 模拟充值地址仓储
type mockWalletAddressRepo struct {
	mock.Mock
}

func (m *mockWalletAddressRepo) Create(ctx context.Context, addr *model.MainWalletAddress) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *mockWalletAddressRepo) GetByWalletID(ctx context.Context, walletID int64) (*model.MainWalletAddress, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MainWalletAddress), args.Error(1)
}

func (m *mockWalletAddressRepo) GetByAddress(ctx context.Context, address string) (*model.MainWalletAddress, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MainWalletAddress), args.Error(1)
}

func (m *mockWalletAddressRepo) ListByCurrency(ctx context.Context, currencyID int64) ([]*model.MainWalletAddress, error) {
	args := m.Called(ctx, currencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MainWalletAddress), args.Error(1)
}

func (m *mockWalletAddressRepo) ListNeedSync(ctx context.Context, limit int) ([]*model.MainWalletAddress, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MainWalletAddress), args.Error(1)
}

func (m *mockWalletAddressRepo) SetNeedSyncBalance(ctx context.Context, addressID int64, need bool) error {
	args := m.Called(ctx, addressID, need)
	return args.Error(0)
}

// mockWalletTxRepo 模拟充提交易仓储
type mockWalletTxRepo struct {
	mock.Mock
}

func (m *mockWalletTxRepo) Create(ctx context.Context, tx *model.MainWalletTransaction) error {
	args := m.Called(ctx, tx)
	if args.Error(0) == nil && tx.ID == 0 {
		tx.ID = 1
	}
	return args.Error(0)
}

func (m *mockWalletTxRepo) GetByID(ctx context.Context, id int64) (*model.MainWalletTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MainWalletTransaction), args.Error(1)
}

func (m *mockWalletTxRepo) ExistsDeposit(ctx context.Context, currencyID int64, txHash string) (bool, error) {
	args := m.Called(ctx, currencyID, txHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockWalletTxRepo) ListDisbursablePending(ctx context.Context, currencyID int64, limit int) ([]*model.MainWalletTransaction, error) {
	args := m.Called(ctx, currencyID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MainWalletTransaction), args.Error(1)
}

func (m *mockWalletTxRepo) SetSubmittedHash(ctx context.Context, id int64, txHash string) error {
	args := m.Called(ctx, id, txHash)
	return args.Error(0)
}

func (m *mockWalletTxRepo) MarkSucceeded(ctx context.Context, id int64, txHash string) error {
	args := m.Called(ctx, id, txHash)
	return args.Error(0)
}

func (m *mockWalletTxRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockWalletTxRepo) CountByWallet(ctx context.Context, walletID int64) (int64, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWalletTxRepo) ListByWallet(ctx context.Context, walletID int64, page *repository.Pagination) ([]*model.MainWalletTransaction, error) {
	args := m.Called(ctx, walletID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MainWalletTransaction), args.Error(1)
}

// mockWalletChangeRepo 模拟账变流水仓储
type mockWalletChangeRepo struct {
	mock.Mock
}

func (m *mockWalletChangeRepo) Create(ctx context.Context, change *model.MainWalletChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *mockWalletChangeRepo) SumAfter(ctx context.Context, walletID int64, afterMs int64) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID, afterMs)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockWalletChangeRepo) SumBetween(ctx context.Context, walletID int64, afterMs, untilMs int64) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID, afterMs, untilMs)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockWalletChangeRepo) SumAll(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockWalletChangeRepo) ExistsByEvent(ctx context.Context, eventType model.ChangeEventType, eventID string) (bool, error) {
	args := m.Called(ctx, eventType, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *mockWalletChangeRepo) ListByWallet(ctx context.Context, walletID int64, page *repository.Pagination) ([]*model.MainWalletChange, error) {
	args := m.Called(ctx, walletID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MainWalletChange), args.Error(1)
}

// mockMainWalletRepo 模拟用户钱包仓储
type mockMainWalletRepo struct {
	mock.Mock
}

func (m *mockMainWalletRepo) Create(ctx context.Context, wallet *model.MainWallet) error {
	args := m.Called(ctx, wallet)
	if args.Error(0) == nil && wallet.ID == 0 {
		wallet.ID = 1
	}
	return args.Error(0)
}

func (m *mockMainWalletRepo) GetByID(ctx context.Context, id int64) (*model.MainWallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MainWallet), args.Error(1)
}

func (m *mockMainWalletRepo) GetByUserAndCurrency(ctx context.Context, userID, currencyID int64) (*model.MainWallet, error) {
	args := m.Called(ctx, userID, currencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MainWallet), args.Error(1)
}

func (m *mockMainWalletRepo) ListByCurrency(ctx context.Context, currencyID int64) ([]*model.MainWallet, error) {
	args := m.Called(ctx, currencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MainWallet), args.Error(1)
}

func (m *mockMainWalletRepo) Rebase(ctx context.Context, walletID int64, newBase decimal.Decimal, cachedAt int64) error {
	args := m.Called(ctx, walletID, newBase, cachedAt)
	return args.Error(0)
}

// mockUserAccountRepo 模拟用户账户仓储
type mockUserAccountRepo struct {
	mock.Mock
}

func (m *mockUserAccountRepo) GetByUserID(ctx context.Context, userID int64) (*model.UserAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserAccount), args.Error(1)
}

// mockTransactionMasterRepo 模拟归集流水仓储
type mockTransactionMasterRepo struct {
	mock.Mock
}

func (m *mockTransactionMasterRepo) Create(ctx context.Context, tx *model.TransactionMaster) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockTransactionMasterRepo) ListByCurrency(ctx context.Context, currencyID int64, page *repository.Pagination) ([]*model.TransactionMaster, error) {
	args := m.Called(ctx, currencyID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.TransactionMaster), args.Error(1)
}

func (m *mockTransactionMasterRepo) CountByCurrency(ctx context.Context, currencyID int64, txType model.MasterTxType) (int64, error) {
	args := m.Called(ctx, currencyID, txType)
	return args.Get(0).(int64), args.Error(1)
}

// mockChainClient 模拟链客户端
type mockChainClient struct {
	mock.Mock
}

func (m *mockChainClient) ChainID() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockChainClient) BlockNumber(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChainClient) NativeTransfers(ctx context.Context, blockNumber int64) ([]*chain.Transfer, error) {
	args := m.Called(ctx, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*chain.Transfer), args.Error(1)
}

func (m *mockChainClient) TokenTransfers(ctx context.Context, contract common.Address, fromBlock, toBlock int64) ([]*chain.Transfer, error) {
	args := m.Called(ctx, contract, fromBlock, toBlock)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*chain.Transfer), args.Error(1)
}

func (m *mockChainClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockChainClient) TokenBalance(ctx context.Context, contract, account common.Address) (*big.Int, error) {
	args := m.Called(ctx, contract, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockChainClient) Send(ctx context.Context, req *chain.SendRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockChainClient) WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	args := m.Called(ctx, txHash, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

// mockNonceSource 模拟 nonce 分配
type mockNonceSource struct {
	mock.Mock
}

func (m *mockNonceSource) AcquireNonce(ctx context.Context, wallet common.Address) (uint64, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockNonceSource) SyncFromChain(ctx context.Context, wallet common.Address) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

// stubChainRegistry 固定返回同一套链依赖
type stubChainRegistry struct {
	client ChainClient
	nonces NonceSource
}

func (r *stubChainRegistry) Client(service model.CryptoService) (ChainClient, error) {
	if r.client == nil {
		return nil, ErrChainNotConfigured
	}
	return r.client, nil
}

func (r *stubChainRegistry) Nonces(service model.CryptoService) (NonceSource, error) {
	if r.nonces == nil {
		return nil, ErrChainNotConfigured
	}
	return r.nonces, nil
}

// mockKeystore 模拟私钥存储
type mockKeystore struct {
	mock.Mock
}

func (m *mockKeystore) GenerateAddress() (string, string, error) {
	args := m.Called()
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockKeystore) Decrypt(encryptedKey string) (*ecdsa.PrivateKey, error) {
	args := m.Called(encryptedKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecdsa.PrivateKey), args.Error(1)
}

// passthroughTxManager 直接执行回调，不做真正的事务
type passthroughTxManager struct{}

func (passthroughTxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordingNotifier 记录通知调用
type recordingNotifier struct {
	deposits    []*model.DepositEvent
	withdrawals []*model.WithdrawalEvent
	alerts      []*model.OperatorAlert
}

func (n *recordingNotifier) NotifyDeposit(ctx context.Context, event *model.DepositEvent) {
	n.deposits = append(n.deposits, event)
}

func (n *recordingNotifier) NotifyWithdrawal(ctx context.Context, event *model.WithdrawalEvent) {
	n.withdrawals = append(n.withdrawals, event)
}

func (n *recordingNotifier) NotifyAlert(ctx context.Context, alert *model.OperatorAlert) {
	n.alerts = append(n.alerts, alert)
}
