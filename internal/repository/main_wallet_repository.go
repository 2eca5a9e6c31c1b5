package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

var (
	ErrMainWalletNotFound  = errors.New("main wallet not found")
	ErrDuplicateMainWallet = errors.New("main wallet already exists for user and currency")
)

// MainWalletRepository 用户钱包仓储接口
type MainWalletRepository interface {
	Create(ctx context.Context, wallet *model.MainWallet) error
	GetByID(ctx context.Context, id int64) (*model.MainWallet, error)
	GetByUserAndCurrency(ctx context.Context, userID, currencyID int64) (*model.MainWallet, error)
	ListByCurrency(ctx context.Context, currencyID int64) ([]*model.MainWallet, error)
	// Rebase 将账变折叠进 base_balance，重置缓存时间点
	Rebase(ctx context.Context, walletID int64, newBase decimal.Decimal, cachedAt int64) error
}

// mainWalletRepository 用户钱包仓储实现
type mainWalletRepository struct {
	*Repository
}

// NewMainWalletRepository 创建用户钱包仓储
func NewMainWalletRepository(db *gorm.DB) MainWalletRepository {
	return &mainWalletRepository{
		Repository: NewRepository(db),
	}
}

func (r *mainWalletRepository) Create(ctx context.Context, wallet *model.MainWallet) error {
	now := time.Now().UnixMilli()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now

	err := r.DB(ctx).Create(wallet).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrDuplicateMainWallet
	}
	return err
}

func (r *mainWalletRepository) GetByID(ctx context.Context, id int64) (*model.MainWallet, error) {
	var wallet model.MainWallet
	err := r.DB(ctx).Where("id = ?", id).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMainWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *mainWalletRepository) GetByUserAndCurrency(ctx context.Context, userID, currencyID int64) (*model.MainWallet, error) {
	var wallet model.MainWallet
	err := r.DB(ctx).
		Where("user_id = ? AND currency_id = ?", userID, currencyID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMainWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *mainWalletRepository) ListByCurrency(ctx context.Context, currencyID int64) ([]*model.MainWallet, error) {
	var wallets []*model.MainWallet
	err := r.DB(ctx).
		Where("currency_id = ?", currencyID).
		Order("id ASC").
		Find(&wallets).Error
	return wallets, err
}

func (r *mainWalletRepository) Rebase(ctx context.Context, walletID int64, newBase decimal.Decimal, cachedAt int64) error {
	result := r.DB(ctx).Model(&model.MainWallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"base_balance":      newBase,
			"balance_cached_at": cachedAt,
			"updated_at":        time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMainWalletNotFound
	}
	return nil
}
