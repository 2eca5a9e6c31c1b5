package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/chain"
	"github.com/heliox-exchange/heliox-custody/internal/metrics"
	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// ledgerPrecision 入账金额的小数位数
const ledgerPrecision = 8

// DepositScanner 充值扫描器
// 按币种独立推进扫描游标，游标只在整段区块处理完成后落库，
// 重复扫描由充值记录上的 (currency_id, tx_hash) 唯一约束兜底
type DepositScanner struct {
	currencyRepo repository.CurrencyRepository
	masterRepo   repository.MasterWalletRepository
	addressRepo  repository.WalletAddressRepository
	txRepo       repository.WalletTransactionRepository
	changeRepo   repository.WalletChangeRepository
	txManager    TxManager
	chains       ChainRegistry
	notifier     Notifier
}

// NewDepositScanner 创建充值扫描器
func NewDepositScanner(
	currencyRepo repository.CurrencyRepository,
	masterRepo repository.MasterWalletRepository,
	addressRepo repository.WalletAddressRepository,
	txRepo repository.WalletTransactionRepository,
	changeRepo repository.WalletChangeRepository,
	txManager TxManager,
	chains ChainRegistry,
	notifier Notifier,
) *DepositScanner {
	return &DepositScanner{
		currencyRepo: currencyRepo,
		masterRepo:   masterRepo,
		addressRepo:  addressRepo,
		txRepo:       txRepo,
		changeRepo:   changeRepo,
		txManager:    txManager,
		chains:       chains,
		notifier:     notifier,
	}
}

// Run 扫描所有启用币种的充值，币种之间错误隔离
// 统计口径为充值笔数，Failed 额外记录中断扫描的币种数
func (s *DepositScanner) Run(ctx context.Context) (*RunStats, error) {
	currencies, err := s.currencyRepo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{}
	for _, currency := range currencies {
		currencyStats, err := s.ScanCurrency(ctx, currency)
		stats.Merge(currencyStats)
		if err != nil {
			stats.Failed++
			logger.Error("deposit scan failed for currency",
				zap.String("symbol", currency.Symbol),
				zap.Int64("currency_id", currency.ID),
				zap.Error(err))
			continue
		}
	}
	return stats, nil
}

// ScanCurrency 扫描单个币种
// 统计以命中平台地址的充值为单位: 新入账计成功，重复或尘埃转账计跳过
func (s *DepositScanner) ScanCurrency(ctx context.Context, currency *model.Currency) (*RunStats, error) {
	stats := &RunStats{}
	if err := currency.CryptoData.Validate(); err != nil {
		return stats, err
	}

	master, err := s.masterRepo.GetByCurrencyID(ctx, currency.ID)
	if err != nil {
		return stats, err
	}

	client, err := s.chains.Client(currency.CryptoService)
	if err != nil {
		return stats, err
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return stats, err
	}

	fromBlock := master.ScanData.CurrentBlock
	toBlock := master.ScanData.WindowEnd(head)
	if toBlock <= fromBlock {
		// 没有新的可安全扫描的区块
		return stats, nil
	}

	addrs, err := s.addressRepo.ListByCurrency(ctx, currency.ID)
	if err != nil {
		return stats, err
	}
	addrByHex := make(map[string]*model.MainWalletAddress, len(addrs))
	for _, addr := range addrs {
		addrByHex[addr.Address] = addr
	}

	transfers, err := s.fetchTransfers(ctx, client, currency, fromBlock, toBlock)
	if err != nil {
		// 游标不动，下一轮重扫同一区间
		return stats, err
	}

	for _, transfer := range transfers {
		if transfer.AmountWei == nil || transfer.AmountWei.Sign() <= 0 {
			continue
		}
		addr, ok := addrByHex[transfer.To]
		if !ok {
			// 不是本平台的充值地址
			continue
		}

		stats.Processed++
		ok, err := s.credit(ctx, currency, addr, transfer)
		if err != nil {
			// 入账失败则不推进游标，整段区间下一轮重试
			return stats, err
		}
		if ok {
			stats.Succeeded++
		} else {
			stats.Skipped++
		}
	}

	if err := s.masterRepo.AdvanceCheckpoint(ctx, currency.ID, toBlock); err != nil {
		return stats, err
	}
	metrics.RecordScanCheckpoint(currency.Symbol, toBlock, head)

	if stats.Succeeded > 0 {
		logger.Info("deposit scan completed",
			zap.String("symbol", currency.Symbol),
			zap.Int64("from_block", fromBlock),
			zap.Int64("to_block", toBlock),
			zap.Int("credited", stats.Succeeded))
	}
	return stats, nil
}

// fetchTransfers 拉取区间内的转账: 代币走事件日志，原生币逐块遍历交易
func (s *DepositScanner) fetchTransfers(ctx context.Context, client ChainClient, currency *model.Currency, fromBlock, toBlock int64) ([]*chain.Transfer, error) {
	if currency.CryptoData.IsToken() {
		contract := common.HexToAddress(currency.CryptoData.ContractAddress)
		return client.TokenTransfers(ctx, contract, fromBlock, toBlock)
	}

	var transfers []*chain.Transfer
	for block := fromBlock; block <= toBlock; block++ {
		blockTransfers, err := client.NativeTransfers(ctx, block)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, blockTransfers...)
	}
	return transfers, nil
}

// credit 将一笔链上转账入账，返回是否产生了新记录
// 同一 (currency, tx_hash) 重复出现视为已入账的无操作，不是错误
func (s *DepositScanner) credit(ctx context.Context, currency *model.Currency, addr *model.MainWalletAddress, transfer *chain.Transfer) (bool, error) {
	exists, err := s.txRepo.ExistsDeposit(ctx, currency.ID, transfer.TxHash)
	if err != nil {
		return false, err
	}
	if exists {
		metrics.RecordDeposit(currency.Symbol, "duplicate", 0)
		return false, nil
	}

	amount := chain.WeiToDecimal(transfer.AmountWei, currency.CryptoData.Decimals()).Truncate(ledgerPrecision)
	if amount.IsZero() {
		// 低于账面精度的尘埃转账
		return false, nil
	}

	tx := &model.MainWalletTransaction{
		MainWalletID: addr.MainWalletID,
		CurrencyID:   currency.ID,
		TxType:       model.WalletTxTypeDeposit,
		TxHash:       transfer.TxHash,
		Amount:       amount,
		ToAddress:    transfer.To,
		BlockNumber:  transfer.BlockNumber,
		// 充值见账即成，不经过 PENDING
		Status: model.WalletTxStatusSucceed,
	}

	err = s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.Create(txCtx, tx); err != nil {
			return err
		}
		change := &model.MainWalletChange{
			MainWalletID: addr.MainWalletID,
			EventType:    model.ChangeEventDeposit,
			EventID:      strconv.FormatInt(tx.ID, 10),
			Amount:       amount,
		}
		if err := s.changeRepo.Create(txCtx, change); err != nil {
			return err
		}
		return s.addressRepo.SetNeedSyncBalance(txCtx, addr.ID, true)
	})
	if errors.Is(err, repository.ErrDuplicateTransaction) {
		// 并发扫描已入账
		metrics.RecordDeposit(currency.Symbol, "duplicate", 0)
		return false, nil
	}
	if err != nil {
		metrics.RecordDeposit(currency.Symbol, "failed", 0)
		return false, err
	}

	amountF, _ := amount.Float64()
	metrics.RecordDeposit(currency.Symbol, "credited", amountF)

	s.notifier.NotifyDeposit(ctx, &model.DepositEvent{
		TransactionID: tx.ID,
		MainWalletID:  addr.MainWalletID,
		CurrencyID:    currency.ID,
		Symbol:        currency.Symbol,
		Address:       transfer.To,
		Amount:        amount,
		TxHash:        transfer.TxHash,
		BlockNumber:   transfer.BlockNumber,
		DetectedAt:    time.Now().UnixMilli(),
	})

	logger.Info("deposit credited",
		zap.String("symbol", currency.Symbol),
		zap.String("tx_hash", transfer.TxHash),
		zap.String("address", transfer.To),
		zap.String("amount", amount.String()),
		zap.Int64("block_number", transfer.BlockNumber))
	return true, nil
}
