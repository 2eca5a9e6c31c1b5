package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

var (
	ErrWalletAddressNotFound  = errors.New("wallet address not found")
	ErrDuplicateWalletAddress = errors.New("wallet address already exists")
)

// WalletAddressRepository 充值地址仓储接口
type WalletAddressRepository interface {
	Create(ctx context.Context, addr *model.MainWalletAddress) error
	GetByWalletID(ctx context.Context, walletID int64) (*model.MainWalletAddress, error)
	GetByAddress(ctx context.Context, address string) (*model.MainWalletAddress, error)
	// ListByCurrency 返回币种下所有充值地址 (按钱包关联)
	ListByCurrency(ctx context.Context, currencyID int64) ([]*model.MainWalletAddress, error)
	ListNeedSync(ctx context.Context, limit int) ([]*model.MainWalletAddress, error)
	SetNeedSyncBalance(ctx context.Context, addressID int64, need bool) error
}

// walletAddressRepository 充值地址仓储实现
type walletAddressRepository struct {
	*Repository
}

// NewWalletAddressRepository 创建充值地址仓储
func NewWalletAddressRepository(db *gorm.DB) WalletAddressRepository {
	return &walletAddressRepository{
		Repository: NewRepository(db),
	}
}

func (r *walletAddressRepository) Create(ctx context.Context, addr *model.MainWalletAddress) error {
	now := time.Now().UnixMilli()
	addr.CreatedAt = now
	addr.UpdatedAt = now

	err := r.DB(ctx).Create(addr).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrDuplicateWalletAddress
	}
	return err
}

func (r *walletAddressRepository) GetByWalletID(ctx context.Context, walletID int64) (*model.MainWalletAddress, error) {
	var addr model.MainWalletAddress
	err := r.DB(ctx).Where("main_wallet_id = ?", walletID).First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *walletAddressRepository) GetByAddress(ctx context.Context, address string) (*model.MainWalletAddress, error) {
	var addr model.MainWalletAddress
	err := r.DB(ctx).Where("address = ?", address).First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *walletAddressRepository) ListByCurrency(ctx context.Context, currencyID int64) ([]*model.MainWalletAddress, error) {
	var addrs []*model.MainWalletAddress
	err := r.DB(ctx).
		Joins("JOIN main_wallets ON main_wallets.id = main_wallet_addresses.main_wallet_id").
		Where("main_wallets.currency_id = ?", currencyID).
		Order("main_wallet_addresses.id ASC").
		Find(&addrs).Error
	return addrs, err
}

func (r *walletAddressRepository) ListNeedSync(ctx context.Context, limit int) ([]*model.MainWalletAddress, error) {
	var addrs []*model.MainWalletAddress
	err := r.DB(ctx).
		Where("need_sync_balance = ?", true).
		Order("id ASC").
		Limit(limit).
		Find(&addrs).Error
	return addrs, err
}

func (r *walletAddressRepository) SetNeedSyncBalance(ctx context.Context, addressID int64, need bool) error {
	result := r.DB(ctx).Model(&model.MainWalletAddress{}).
		Where("id = ?", addressID).
		Updates(map[string]interface{}{
			"need_sync_balance": need,
			"updated_at":        time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletAddressNotFound
	}
	return nil
}
