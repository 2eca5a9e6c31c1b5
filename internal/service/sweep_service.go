package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/chain"
	"github.com/heliox-exchange/heliox-custody/internal/metrics"
	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// gasTransferLimit 原生币转账的固定 Gas 限额
const gasTransferLimit = 21000

// SweepService 归集引擎
// 定期把用户充值地址上的资金归集到主钱包。
// 每个地址独立处理: 一个地址失败不影响其他地址，下一轮自动重试
type SweepService struct {
	currencyRepo repository.CurrencyRepository
	masterRepo   repository.MasterWalletRepository
	addressRepo  repository.WalletAddressRepository
	txRepo       repository.WalletTransactionRepository
	masterTxRepo repository.TransactionMasterRepository
	chains       ChainRegistry
	keystore     KeyStore
	gasPolicy    *chain.GasPolicy
	balances     BalanceProvider

	maxConcurrent  int
	gasTopUp       decimal.Decimal
	interStepDelay time.Duration
	confirmTimeout time.Duration
}

// BalanceProvider 批量原生余额查询 (第三方索引服务，可选加速)
// 返回 address -> wei; 查询失败时调用方回落到逐地址 RPC
type BalanceProvider interface {
	NativeBalances(ctx context.Context, chainID int64, addresses []string) (map[string]*big.Int, error)
}

// SweepConfig 归集配置
type SweepConfig struct {
	// MaxConcurrent 单币种并发处理的地址数
	MaxConcurrent int
	// GasTopUpAmount 代币归集前补充的原生币数量
	GasTopUpAmount decimal.Decimal
	// InterStepDelay 同一地址连续上链操作之间的间隔
	InterStepDelay time.Duration
	// ConfirmTimeout 等待交易确认的上限
	ConfirmTimeout time.Duration
}

// NewSweepService 创建归集引擎
func NewSweepService(
	currencyRepo repository.CurrencyRepository,
	masterRepo repository.MasterWalletRepository,
	addressRepo repository.WalletAddressRepository,
	txRepo repository.WalletTransactionRepository,
	masterTxRepo repository.TransactionMasterRepository,
	chains ChainRegistry,
	keystore KeyStore,
	balances BalanceProvider,
	cfg *SweepConfig,
) *SweepService {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = 5
	}
	gasTopUp := cfg.GasTopUpAmount
	if gasTopUp.IsZero() {
		gasTopUp = decimal.RequireFromString("0.001")
	}
	interStepDelay := cfg.InterStepDelay
	if interStepDelay == 0 {
		interStepDelay = 3 * time.Second
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = 5 * time.Minute
	}

	return &SweepService{
		currencyRepo:   currencyRepo,
		masterRepo:     masterRepo,
		addressRepo:    addressRepo,
		txRepo:         txRepo,
		masterTxRepo:   masterTxRepo,
		chains:         chains,
		keystore:       keystore,
		gasPolicy:      chain.DefaultGasPolicy(),
		balances:       balances,
		maxConcurrent:  maxConcurrent,
		gasTopUp:       gasTopUp,
		interStepDelay: interStepDelay,
		confirmTimeout: confirmTimeout,
	}
}

// Run 对所有启用币种执行归集
func (s *SweepService) Run(ctx context.Context) (*RunStats, error) {
	currencies, err := s.currencyRepo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{}
	for _, currency := range currencies {
		currencyStats, err := s.SweepCurrency(ctx, currency)
		stats.Merge(currencyStats)
		if err != nil {
			stats.Failed++
			logger.Error("sweep failed for currency",
				zap.String("symbol", currency.Symbol),
				zap.Error(err))
		}
	}
	return stats, nil
}

// SweepCurrency 归集单个币种下的所有地址
func (s *SweepService) SweepCurrency(ctx context.Context, currency *model.Currency) (*RunStats, error) {
	if err := currency.CryptoData.Validate(); err != nil {
		return nil, err
	}

	master, err := s.masterRepo.GetByCurrencyID(ctx, currency.ID)
	if err != nil {
		return nil, err
	}

	client, err := s.chains.Client(currency.CryptoService)
	if err != nil {
		return nil, err
	}
	nonces, err := s.chains.Nonces(currency.CryptoService)
	if err != nil {
		return nil, err
	}

	addrs, err := s.addressRepo.ListByCurrency(ctx, currency.ID)
	if err != nil {
		return nil, err
	}

	// 批量余额预取，失败时退回逐地址查询
	prefetched := s.prefetchBalances(ctx, currency, addrs)

	stats := &RunStats{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrent)

	for _, addr := range addrs {
		wg.Add(1)
		sem <- struct{}{}
		go func(addr *model.MainWalletAddress) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			swept, err := s.sweepAddress(ctx, currency, master, client, nonces, addr, prefetched)

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			switch {
			case err != nil:
				stats.Failed++
				metrics.RecordSweep(currency.Symbol, "failed", 0, 0)
				logger.Warn("sweep failed for address",
					zap.String("symbol", currency.Symbol),
					zap.String("address", addr.Address),
					zap.Error(err))
			case swept.IsPositive():
				stats.Succeeded++
				sweptF, _ := swept.Float64()
				metrics.RecordSweep(currency.Symbol, "swept", sweptF, time.Since(start).Seconds())
			default:
				stats.Skipped++
				metrics.RecordSweep(currency.Symbol, "skipped", 0, 0)
			}
		}(addr)
	}
	wg.Wait()

	return stats, nil
}

// prefetchBalances 通过索引服务批量获取原生余额
func (s *SweepService) prefetchBalances(ctx context.Context, currency *model.Currency, addrs []*model.MainWalletAddress) map[string]*big.Int {
	if s.balances == nil || len(addrs) == 0 {
		return nil
	}

	hexes := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		hexes = append(hexes, addr.Address)
	}

	balances, err := s.balances.NativeBalances(ctx, currency.CryptoData.ChainID, hexes)
	if err != nil {
		logger.Warn("balance prefetch failed, falling back to per-address RPC",
			zap.String("symbol", currency.Symbol),
			zap.Error(err))
		return nil
	}
	return balances
}

// nativeBalance 读取地址原生余额，优先使用预取结果
func (s *SweepService) nativeBalance(ctx context.Context, client ChainClient, prefetched map[string]*big.Int, address string) (*big.Int, error) {
	if balance, ok := prefetched[address]; ok && balance != nil {
		return balance, nil
	}
	return client.BalanceAt(ctx, common.HexToAddress(address))
}

// sweepAddress 归集单个地址，返回归集金额 (0 表示跳过)
func (s *SweepService) sweepAddress(ctx context.Context, currency *model.Currency, master *model.MasterWallet, client ChainClient, nonces NonceSource, addr *model.MainWalletAddress, prefetched map[string]*big.Int) (decimal.Decimal, error) {
	if currency.CryptoData.IsToken() {
		swept, err := s.sweepToken(ctx, currency, master, client, nonces, addr, prefetched)
		if err != nil {
			return decimal.Zero, err
		}

		// 代币+原生混合归集: 仅对有过交易记录的钱包执行，避免打扰从未使用的地址
		if currency.CryptoData.MinCollectAmount.IsPositive() {
			count, err := s.txRepo.CountByWallet(ctx, addr.MainWalletID)
			if err != nil {
				return swept, err
			}
			if count == 0 {
				return swept, nil
			}
			if swept.IsPositive() {
				time.Sleep(s.interStepDelay)
			}
			nativeSwept, err := s.sweepNative(ctx, currency, master, client, addr, prefetched)
			if err != nil {
				return swept, err
			}
			return swept.Add(nativeSwept), nil
		}
		return swept, nil
	}

	return s.sweepNative(ctx, currency, master, client, addr, prefetched)
}

// sweepToken 代币归集: 余额为零跳过，Gas 不足先由主钱包补足
func (s *SweepService) sweepToken(ctx context.Context, currency *model.Currency, master *model.MasterWallet, client ChainClient, nonces NonceSource, addr *model.MainWalletAddress, prefetched map[string]*big.Int) (decimal.Decimal, error) {
	contract := common.HexToAddress(currency.CryptoData.ContractAddress)
	userAddr := common.HexToAddress(addr.Address)

	tokenBalance, err := client.TokenBalance(ctx, contract, userAddr)
	if err != nil {
		return decimal.Zero, err
	}
	if tokenBalance.Sign() == 0 {
		return decimal.Zero, nil
	}

	nativeBalance, err := s.nativeBalance(ctx, client, prefetched, addr.Address)
	if err != nil {
		return decimal.Zero, err
	}

	topUpWei := chain.DecimalToWei(s.gasTopUp, 18)
	if nativeBalance.Cmp(topUpWei) < 0 {
		// 前置交易: 补 Gas 失败则本轮放弃该地址
		if err := s.topUpGas(ctx, currency, master, client, nonces, addr, topUpWei); err != nil {
			metrics.RecordGasTopUp(currency.Symbol, "failed")
			return decimal.Zero, err
		}
		metrics.RecordGasTopUp(currency.Symbol, "sent")
		time.Sleep(s.interStepDelay)
	}

	userKey, err := s.keystore.Decrypt(addr.EncryptedKey)
	if err != nil {
		return decimal.Zero, err
	}

	gasLimit := currency.CryptoData.GasLimit
	gasPrice, err := s.effectiveGasPrice(ctx, client, gasLimit, currency.CryptoData.MaxFee())
	if err != nil {
		return decimal.Zero, err
	}

	hash, err := client.Send(ctx, &chain.SendRequest{
		PrivateKey: userKey,
		To:         common.HexToAddress(master.Address),
		AmountWei:  tokenBalance,
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
		Contract:   &contract,
	})
	if err != nil {
		return decimal.Zero, err
	}

	if _, err := client.WaitMined(ctx, common.HexToHash(hash), s.confirmTimeout); err != nil {
		return decimal.Zero, err
	}

	amount := chain.WeiToDecimal(tokenBalance, currency.CryptoData.Decimals()).Truncate(ledgerPrecision)
	return amount, s.recordSweep(ctx, currency, addr, master.Address, amount, hash)
}

// sweepNative 原生币归集: 保留 min_collect_amount 作为未来 Gas 储备
func (s *SweepService) sweepNative(ctx context.Context, currency *model.Currency, master *model.MasterWallet, client ChainClient, addr *model.MainWalletAddress, prefetched map[string]*big.Int) (decimal.Decimal, error) {
	balance, err := s.nativeBalance(ctx, client, prefetched, addr.Address)
	if err != nil {
		return decimal.Zero, err
	}

	reserveWei := chain.DecimalToWei(currency.CryptoData.MinCollectAmount, 18)
	if balance.Cmp(reserveWei) <= 0 {
		return decimal.Zero, nil
	}
	sweepWei := new(big.Int).Sub(balance, reserveWei)

	userKey, err := s.keystore.Decrypt(addr.EncryptedKey)
	if err != nil {
		return decimal.Zero, err
	}

	gasPrice, err := s.effectiveGasPrice(ctx, client, gasTransferLimit, currency.CryptoData.MaxFee())
	if err != nil {
		return decimal.Zero, err
	}

	hash, err := client.Send(ctx, &chain.SendRequest{
		PrivateKey: userKey,
		To:         common.HexToAddress(master.Address),
		AmountWei:  sweepWei,
		GasPrice:   gasPrice,
		GasLimit:   gasTransferLimit,
	})
	if err != nil {
		return decimal.Zero, err
	}

	if _, err := client.WaitMined(ctx, common.HexToHash(hash), s.confirmTimeout); err != nil {
		return decimal.Zero, err
	}

	amount := chain.WeiToDecimal(sweepWei, 18).Truncate(ledgerPrecision)
	return amount, s.recordSweep(ctx, currency, addr, master.Address, amount, hash)
}

// topUpGas 主钱包向用户地址补充归集用的原生币
// 主钱包同时承担补 Gas 与提现出账，且归集按地址并发，
// nonce 必须统一经由管理器分配，不能各自读链上 pending nonce
func (s *SweepService) topUpGas(ctx context.Context, currency *model.Currency, master *model.MasterWallet, client ChainClient, nonces NonceSource, addr *model.MainWalletAddress, topUpWei *big.Int) error {
	masterKey, err := s.keystore.Decrypt(master.EncryptedKey)
	if err != nil {
		return err
	}

	gasPrice, err := s.effectiveGasPrice(ctx, client, gasTransferLimit, currency.CryptoData.MaxFee())
	if err != nil {
		return err
	}

	masterAddr := common.HexToAddress(master.Address)
	nonce, err := nonces.AcquireNonce(ctx, masterAddr)
	if err != nil {
		return err
	}

	hash, err := client.Send(ctx, &chain.SendRequest{
		PrivateKey: masterKey,
		To:         common.HexToAddress(addr.Address),
		AmountWei:  topUpWei,
		GasPrice:   gasPrice,
		GasLimit:   gasTransferLimit,
		Nonce:      &nonce,
	})
	if err != nil {
		// nonce 可能已污染，清缓存强制下次从链上重新对齐
		if syncErr := nonces.SyncFromChain(ctx, masterAddr); syncErr != nil {
			logger.Warn("failed to resync nonce after top-up error",
				zap.String("address", master.Address),
				zap.Error(syncErr))
		}
		return err
	}

	if _, err := client.WaitMined(ctx, common.HexToHash(hash), s.confirmTimeout); err != nil {
		return err
	}

	topUp := chain.WeiToDecimal(topUpWei, 18).Truncate(ledgerPrecision)
	record := &model.TransactionMaster{
		CurrencyID:  currency.ID,
		TxType:      model.MasterTxTypeOut,
		FromAddress: chain.NormalizeAddress(master.Address),
		ToAddress:   addr.Address,
		Amount:      topUp,
		TxHash:      hash,
	}
	if err := s.masterTxRepo.Create(ctx, record); err != nil {
		return err
	}

	logger.Info("gas topped up for sweep",
		zap.String("symbol", currency.Symbol),
		zap.String("address", addr.Address),
		zap.String("amount", topUp.String()),
		zap.String("tx_hash", hash))
	return nil
}

// recordSweep 归集成功后的落库: 审计流水 + 余额刷新标记
// 只在链上确认之后写入，失败的归集不留下任何账面痕迹
func (s *SweepService) recordSweep(ctx context.Context, currency *model.Currency, addr *model.MainWalletAddress, masterAddress string, amount decimal.Decimal, hash string) error {
	record := &model.TransactionMaster{
		CurrencyID:  currency.ID,
		TxType:      model.MasterTxTypeIn,
		FromAddress: addr.Address,
		ToAddress:   chain.NormalizeAddress(masterAddress),
		Amount:      amount,
		TxHash:      hash,
	}
	if err := s.masterTxRepo.Create(ctx, record); err != nil {
		return err
	}

	if err := s.addressRepo.SetNeedSyncBalance(ctx, addr.ID, true); err != nil {
		return err
	}

	logger.Info("address swept to master wallet",
		zap.String("symbol", currency.Symbol),
		zap.String("address", addr.Address),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", hash))
	return nil
}

// effectiveGasPrice 按溢价+封顶策略计算实际 Gas 价格
func (s *SweepService) effectiveGasPrice(ctx context.Context, client ChainClient, gasLimit uint64, maxFeeWei *big.Int) (*big.Int, error) {
	suggested, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return s.gasPolicy.Price(suggested, gasLimit, maxFeeWei), nil
}
