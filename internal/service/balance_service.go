package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/repository"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// BalanceService 余额查询与缓存维护
// 余额永远是派生值: base_balance + balance_cached_at 之后的账变之和。
// 定期把账变折叠进 base_balance，让查询时的求和区间保持短小
type BalanceService struct {
	walletRepo  repository.MainWalletRepository
	addressRepo repository.WalletAddressRepository
	changeRepo  repository.WalletChangeRepository
	txManager   TxManager

	syncBatchSize int
}

// NewBalanceService 创建余额服务
func NewBalanceService(
	walletRepo repository.MainWalletRepository,
	addressRepo repository.WalletAddressRepository,
	changeRepo repository.WalletChangeRepository,
	txManager TxManager,
	syncBatchSize int,
) *BalanceService {
	if syncBatchSize == 0 {
		syncBatchSize = 200
	}
	return &BalanceService{
		walletRepo:    walletRepo,
		addressRepo:   addressRepo,
		changeRepo:    changeRepo,
		txManager:     txManager,
		syncBatchSize: syncBatchSize,
	}
}

// DisplayBalance 查询钱包展示余额 (负数钳位为 0)
func (s *BalanceService) DisplayBalance(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	sum, err := s.changeRepo.SumAfter(ctx, walletID, wallet.BalanceCachedAt)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.DisplayBalance(sum), nil
}

// Run 折叠所有标记待同步地址的余额缓存
func (s *BalanceService) Run(ctx context.Context) (*RunStats, error) {
	addrs, err := s.addressRepo.ListNeedSync(ctx, s.syncBatchSize)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{}
	for _, addr := range addrs {
		stats.Processed++
		if err := s.syncWallet(ctx, addr.MainWalletID, addr.ID); err != nil {
			stats.Failed++
			logger.Warn("balance sync failed for wallet",
				zap.Int64("main_wallet_id", addr.MainWalletID),
				zap.Error(err))
			continue
		}
		stats.Succeeded++
	}
	return stats, nil
}

// syncWallet 把截止时间点之前的账变折叠进 base_balance
// 截止点取当前时刻: 折叠之后到达的账变仍落在新的求和区间内，不会丢失
func (s *BalanceService) syncWallet(ctx context.Context, walletID, addressID int64) error {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return err
	}

	cutoff := time.Now().UnixMilli()
	sum, err := s.changeRepo.SumBetween(ctx, walletID, wallet.BalanceCachedAt, cutoff)
	if err != nil {
		return err
	}
	newBase := wallet.BaseBalance.Add(sum)

	return s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.walletRepo.Rebase(txCtx, walletID, newBase, cutoff); err != nil {
			return err
		}
		return s.addressRepo.SetNeedSyncBalance(txCtx, addressID, false)
	})
}
