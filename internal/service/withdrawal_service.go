package service

import (
	"context"
	"errors"
	"math/big"
	"strconv"
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

// alertCodeMasterBalanceLow 主钱包余额不足告警码
const alertCodeMasterBalanceLow = "MASTER_BALANCE_LOW"

// WithdrawalService 提现出账器
// 只负责把已受理的 PENDING 提现搬上链:
// 受理、审核、手续费计算都在上游完成。
// 终态转换最多发生一次，失败补偿依赖账变唯一约束兜底
type WithdrawalService struct {
	currencyRepo repository.CurrencyRepository
	walletRepo   repository.MainWalletRepository
	userRepo     repository.UserAccountRepository
	masterRepo   repository.MasterWalletRepository
	txRepo       repository.WalletTransactionRepository
	changeRepo   repository.WalletChangeRepository
	txManager    TxManager
	chains       ChainRegistry
	keystore     KeyStore
	notifier     Notifier
	gasPolicy    *chain.GasPolicy

	batchSize      int
	confirmTimeout time.Duration
}

// WithdrawConfig 提现出账配置
type WithdrawConfig struct {
	// BatchSize 单币种单轮处理的提现笔数上限
	BatchSize int
	// ConfirmTimeout 等待交易确认的上限
	ConfirmTimeout time.Duration
}

// NewWithdrawalService 创建提现出账器
func NewWithdrawalService(
	currencyRepo repository.CurrencyRepository,
	walletRepo repository.MainWalletRepository,
	userRepo repository.UserAccountRepository,
	masterRepo repository.MasterWalletRepository,
	txRepo repository.WalletTransactionRepository,
	changeRepo repository.WalletChangeRepository,
	txManager TxManager,
	chains ChainRegistry,
	keystore KeyStore,
	notifier Notifier,
	cfg *WithdrawConfig,
) *WithdrawalService {
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 50
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = 5 * time.Minute
	}

	return &WithdrawalService{
		currencyRepo:   currencyRepo,
		walletRepo:     walletRepo,
		userRepo:       userRepo,
		masterRepo:     masterRepo,
		txRepo:         txRepo,
		changeRepo:     changeRepo,
		txManager:      txManager,
		chains:         chains,
		keystore:       keystore,
		notifier:       notifier,
		gasPolicy:      chain.DefaultGasPolicy(),
		batchSize:      batchSize,
		confirmTimeout: confirmTimeout,
	}
}

// Run 处理所有启用币种的待出账提现
func (s *WithdrawalService) Run(ctx context.Context) (*RunStats, error) {
	currencies, err := s.currencyRepo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{}
	for _, currency := range currencies {
		currencyStats, err := s.DisburseCurrency(ctx, currency)
		stats.Merge(currencyStats)
		if err != nil {
			stats.Failed++
			logger.Error("withdrawal disbursement failed for currency",
				zap.String("symbol", currency.Symbol),
				zap.Error(err))
		}
	}
	return stats, nil
}

// DisburseCurrency 按创建时间先后处理单个币种的待出账提现
func (s *WithdrawalService) DisburseCurrency(ctx context.Context, currency *model.Currency) (*RunStats, error) {
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

	pending, err := s.txRepo.ListDisbursablePending(ctx, currency.ID, s.batchSize)
	if err != nil {
		return nil, err
	}
	metrics.UpdatePendingWithdrawals(currency.Symbol, len(pending))
	if len(pending) == 0 {
		return &RunStats{}, nil
	}

	stats := &RunStats{}
	for i, tx := range pending {
		halt, skipped, err := s.disburse(ctx, currency, master, client, nonces, tx)
		if err != nil {
			stats.Processed++
			stats.Failed++
			logger.Warn("withdrawal disbursement failed",
				zap.String("symbol", currency.Symbol),
				zap.Int64("transaction_id", tx.ID),
				zap.Error(err))
			continue
		}
		if halt {
			// 主钱包资金不足，当前及剩余提现保持 PENDING 等待补仓
			stats.Skipped += len(pending) - i
			break
		}
		stats.Processed++
		if skipped {
			stats.Skipped++
		} else {
			stats.Succeeded++
		}
	}
	return stats, nil
}

// disburse 处理单笔提现
// 返回 halt=true 时停止处理该币种剩余提现，skipped=true 时该笔保持 PENDING
func (s *WithdrawalService) disburse(ctx context.Context, currency *model.Currency, master *model.MasterWallet, client ChainClient, nonces NonceSource, tx *model.MainWalletTransaction) (halt bool, skipped bool, err error) {
	wallet, err := s.walletRepo.GetByID(ctx, tx.MainWalletID)
	if err != nil {
		return false, false, err
	}

	// 上一轮已广播但未确认的提现: 只追踪既有哈希，绝不二次广播
	if tx.TxHash != "" {
		logger.Info("resuming previously submitted withdrawal",
			zap.Int64("transaction_id", tx.ID),
			zap.String("tx_hash", tx.TxHash))
		return false, false, s.finalize(ctx, currency, client, tx, wallet, tx.TxHash)
	}

	if wallet.Frozen {
		return false, false, s.failWithReason(ctx, currency, tx, wallet, "wallet frozen")
	}

	user, err := s.userRepo.GetByUserID(ctx, wallet.UserID)
	if err != nil {
		return false, false, err
	}
	if user.Status != model.UserAccountStatusNormal {
		return false, false, s.failWithReason(ctx, currency, tx, wallet, "user account not in normal status")
	}

	sendAmount := tx.SendAmount()
	if !sendAmount.IsPositive() {
		// 手续费吞掉了全部金额，人工介入前不做终态转换
		logger.Warn("withdrawal send amount not positive, leaving pending",
			zap.Int64("transaction_id", tx.ID),
			zap.String("amount", tx.Amount.String()),
			zap.String("fee", tx.Fee.String()))
		return false, true, nil
	}
	sendWei := chain.DecimalToWei(sendAmount, currency.CryptoData.Decimals())

	masterBalance, err := s.masterBalance(ctx, currency, client, master)
	if err != nil {
		return false, false, err
	}
	if masterBalance.Cmp(sendWei) < 0 {
		s.alertMasterBalanceLow(ctx, currency, master, sendAmount)
		return true, false, nil
	}

	hash, err := s.send(ctx, currency, master, client, nonces, tx, sendWei)
	if err != nil {
		// 广播失败是明确的否定信号，终结并补偿
		return false, false, s.failWithReason(ctx, currency, tx, wallet, err.Error())
	}

	// 哈希先于确认落库: 确认中断后，下一轮凭哈希续跟而不是重新出账
	if err := s.txRepo.SetSubmittedHash(ctx, tx.ID, hash); err != nil {
		logger.Warn("failed to persist submitted tx hash",
			zap.Int64("transaction_id", tx.ID),
			zap.String("tx_hash", hash),
			zap.Error(err))
	}

	return false, false, s.finalize(ctx, currency, client, tx, wallet, hash)
}

// finalize 跟踪已广播的提现交易直到终态或超时
func (s *WithdrawalService) finalize(ctx context.Context, currency *model.Currency, client ChainClient, tx *model.MainWalletTransaction, wallet *model.MainWallet, hash string) error {
	if _, err := client.WaitMined(ctx, common.HexToHash(hash), s.confirmTimeout); err != nil {
		if errors.Is(err, chain.ErrTxReverted) {
			metrics.RecordChainTx(string(currency.CryptoService), "withdraw", "reverted", 0)
			return s.failWithReason(ctx, currency, tx, wallet, "transaction reverted on chain")
		}
		// 确认超时不是失败: 交易可能仍在内存池中，保持 PENDING 等待下一轮
		logger.Warn("withdrawal confirmation timed out, leaving pending",
			zap.Int64("transaction_id", tx.ID),
			zap.String("tx_hash", hash))
		return err
	}

	if err := s.txRepo.MarkSucceeded(ctx, tx.ID, hash); err != nil {
		if errors.Is(err, repository.ErrTxAlreadyFinalized) {
			logger.Warn("withdrawal already finalized, skipping",
				zap.Int64("transaction_id", tx.ID))
			return nil
		}
		return err
	}

	amountF, _ := tx.Amount.Float64()
	metrics.RecordWithdrawal(currency.Symbol, "succeed", amountF)
	metrics.RecordChainTx(string(currency.CryptoService), "withdraw", "confirmed", 0)

	s.notifier.NotifyWithdrawal(ctx, &model.WithdrawalEvent{
		TransactionID: tx.ID,
		MainWalletID:  tx.MainWalletID,
		CurrencyID:    currency.ID,
		Symbol:        currency.Symbol,
		Amount:        tx.Amount,
		Fee:           tx.Fee,
		ToAddress:     tx.ToAddress,
		TxHash:        hash,
		Status:        model.WalletTxStatusSucceed.String(),
		FinishedAt:    time.Now().UnixMilli(),
	})

	logger.Info("withdrawal disbursed",
		zap.String("symbol", currency.Symbol),
		zap.Int64("transaction_id", tx.ID),
		zap.String("tx_hash", hash),
		zap.String("send_amount", tx.SendAmount().String()))
	return nil
}

// send 构造并广播提现交易
func (s *WithdrawalService) send(ctx context.Context, currency *model.Currency, master *model.MasterWallet, client ChainClient, nonces NonceSource, tx *model.MainWalletTransaction, sendWei *big.Int) (string, error) {
	masterKey, err := s.keystore.Decrypt(master.EncryptedKey)
	if err != nil {
		return "", err
	}

	gasLimit := uint64(gasTransferLimit)
	var contract *common.Address
	if currency.CryptoData.IsToken() {
		gasLimit = currency.CryptoData.GasLimit
		addr := common.HexToAddress(currency.CryptoData.ContractAddress)
		contract = &addr
	}

	suggested, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}
	gasPrice := s.gasPolicy.Price(suggested, gasLimit, currency.CryptoData.MaxFee())

	masterAddr := common.HexToAddress(master.Address)
	nonce, err := nonces.AcquireNonce(ctx, masterAddr)
	if err != nil {
		return "", err
	}

	hash, err := client.Send(ctx, &chain.SendRequest{
		PrivateKey: masterKey,
		To:         common.HexToAddress(tx.ToAddress),
		AmountWei:  sendWei,
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
		Nonce:      &nonce,
		Contract:   contract,
	})
	if err != nil {
		// nonce 可能已污染，清缓存强制下次从链上重新对齐
		if syncErr := nonces.SyncFromChain(ctx, masterAddr); syncErr != nil {
			logger.Warn("failed to resync nonce after send error",
				zap.String("address", master.Address),
				zap.Error(syncErr))
		}
		return "", err
	}
	return hash, nil
}

// masterBalance 主钱包可出账余额
func (s *WithdrawalService) masterBalance(ctx context.Context, currency *model.Currency, client ChainClient, master *model.MasterWallet) (*big.Int, error) {
	masterAddr := common.HexToAddress(master.Address)
	if currency.CryptoData.IsToken() {
		contract := common.HexToAddress(currency.CryptoData.ContractAddress)
		return client.TokenBalance(ctx, contract, masterAddr)
	}
	return client.BalanceAt(ctx, masterAddr)
}

// alertMasterBalanceLow 主钱包余额不足: 告警一次，本轮剩余提现不再尝试
func (s *WithdrawalService) alertMasterBalanceLow(ctx context.Context, currency *model.Currency, master *model.MasterWallet, needed decimal.Decimal) {
	metrics.RecordMasterBalanceAlert(currency.Symbol)
	s.notifier.NotifyAlert(ctx, &model.OperatorAlert{
		Level:      model.AlertLevelCritical,
		Code:       alertCodeMasterBalanceLow,
		Message:    "master wallet balance insufficient for pending withdrawals, needed at least " + needed.String() + " " + currency.Symbol,
		CurrencyID: currency.ID,
		Symbol:     currency.Symbol,
	})
	logger.Error("master wallet balance insufficient",
		zap.String("symbol", currency.Symbol),
		zap.String("address", master.Address),
		zap.String("needed", needed.String()))
}

// failWithReason 终结提现并补偿退款
// 状态转换与补偿账变在同一事务中: 要么都发生，要么都不发生。
// (event_type, event_id) 唯一约束保证同一笔提现最多退款一次
func (s *WithdrawalService) failWithReason(ctx context.Context, currency *model.Currency, tx *model.MainWalletTransaction, wallet *model.MainWallet, reason string) error {
	err := s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.MarkFailed(txCtx, tx.ID, reason); err != nil {
			return err
		}
		change := &model.MainWalletChange{
			MainWalletID: wallet.ID,
			EventType:    model.ChangeEventWithdrawRefund,
			EventID:      strconv.FormatInt(tx.ID, 10),
			Amount:       tx.Amount,
		}
		if err := s.changeRepo.Create(txCtx, change); err != nil && !errors.Is(err, repository.ErrDuplicateChange) {
			return err
		}
		return nil
	})
	if errors.Is(err, repository.ErrTxAlreadyFinalized) {
		// 已被并发处理终结，无需补偿
		logger.Warn("withdrawal already finalized, skipping refund",
			zap.Int64("transaction_id", tx.ID))
		return nil
	}
	if err != nil {
		return err
	}

	amountF, _ := tx.Amount.Float64()
	metrics.RecordWithdrawal(currency.Symbol, "failed", amountF)

	s.notifier.NotifyWithdrawal(ctx, &model.WithdrawalEvent{
		TransactionID: tx.ID,
		MainWalletID:  tx.MainWalletID,
		CurrencyID:    currency.ID,
		Symbol:        currency.Symbol,
		Amount:        tx.Amount,
		Fee:           tx.Fee,
		ToAddress:     tx.ToAddress,
		Status:        model.WalletTxStatusFailed.String(),
		Reason:        reason,
		FinishedAt:    time.Now().UnixMilli(),
	})

	logger.Info("withdrawal failed and refunded",
		zap.String("symbol", currency.Symbol),
		zap.Int64("transaction_id", tx.ID),
		zap.String("reason", reason))
	return nil
}
