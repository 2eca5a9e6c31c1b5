package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

var (
	ErrMasterWalletNotFound  = errors.New("master wallet not found")
	ErrCheckpointNotAdvanced = errors.New("scan checkpoint not advanced")
	ErrCheckpointMovedBack   = errors.New("scan checkpoint cannot move backwards")
)

// MasterWalletRepository 主钱包仓储接口
type MasterWalletRepository interface {
	GetByCurrencyID(ctx context.Context, currencyID int64) (*model.MasterWallet, error)
	ListAll(ctx context.Context) ([]*model.MasterWallet, error)
	// AdvanceCheckpoint 推进扫描游标，仅允许前进
	AdvanceCheckpoint(ctx context.Context, currencyID int64, newCurrentBlock int64) error
}

// masterWalletRepository 主钱包仓储实现
type masterWalletRepository struct {
	*Repository
}

// NewMasterWalletRepository 创建主钱包仓储
func NewMasterWalletRepository(db *gorm.DB) MasterWalletRepository {
	return &masterWalletRepository{
		Repository: NewRepository(db),
	}
}

func (r *masterWalletRepository) GetByCurrencyID(ctx context.Context, currencyID int64) (*model.MasterWallet, error) {
	var wallet model.MasterWallet
	err := r.DB(ctx).Where("currency_id = ?", currencyID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMasterWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *masterWalletRepository) ListAll(ctx context.Context) ([]*model.MasterWallet, error) {
	var wallets []*model.MasterWallet
	err := r.DB(ctx).Order("id ASC").Find(&wallets).Error
	return wallets, err
}

// AdvanceCheckpoint 读取-校验-写回，游标只能单调前进
func (r *masterWalletRepository) AdvanceCheckpoint(ctx context.Context, currencyID int64, newCurrentBlock int64) error {
	return r.Transaction(ctx, func(txCtx context.Context) error {
		var wallet model.MasterWallet
		opts := &QueryOptions{ForUpdate: true}
		err := opts.ApplyLock(r.DB(txCtx)).
			Where("currency_id = ?", currencyID).
			First(&wallet).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMasterWalletNotFound
		}
		if err != nil {
			return err
		}

		if newCurrentBlock < wallet.ScanData.CurrentBlock {
			return ErrCheckpointMovedBack
		}
		if newCurrentBlock == wallet.ScanData.CurrentBlock {
			return nil
		}

		wallet.ScanData.CurrentBlock = newCurrentBlock
		wallet.UpdatedAt = time.Now().UnixMilli()
		return r.DB(txCtx).Model(&model.MasterWallet{}).
			Where("currency_id = ?", currencyID).
			Updates(map[string]interface{}{
				"scan_data":  wallet.ScanData,
				"updated_at": wallet.UpdatedAt,
			}).Error
	})
}
