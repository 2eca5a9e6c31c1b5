package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

var (
	ErrWalletTxNotFound     = errors.New("wallet transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate wallet transaction")
	ErrTxAlreadyFinalized   = errors.New("wallet transaction already finalized")
)

// WalletTransactionRepository 充提交易仓储接口
type WalletTransactionRepository interface {
	Create(ctx context.Context, tx *model.MainWalletTransaction) error
	GetByID(ctx context.Context, id int64) (*model.MainWalletTransaction, error)
	// ExistsDeposit 幂等检查: 同一 (currency, tx_hash) 的充值是否已入账
	ExistsDeposit(ctx context.Context, currencyID int64, txHash string) (bool, error)
	// ListDisbursablePending 按创建时间升序返回可执行的待处理提现
	ListDisbursablePending(ctx context.Context, currencyID int64, limit int) ([]*model.MainWalletTransaction, error)
	// SetSubmittedHash 广播后立即回填交易哈希，状态保持 PENDING
	SetSubmittedHash(ctx context.Context, id int64, txHash string) error
	// MarkSucceeded 终态转换，仅当当前状态为 PENDING 时生效
	MarkSucceeded(ctx context.Context, id int64, txHash string) error
	// MarkFailed 终态转换，仅当当前状态为 PENDING 时生效
	MarkFailed(ctx context.Context, id int64, reason string) error
	CountByWallet(ctx context.Context, walletID int64) (int64, error)
	ListByWallet(ctx context.Context, walletID int64, page *Pagination) ([]*model.MainWalletTransaction, error)
}

// walletTransactionRepository 充提交易仓储实现
type walletTransactionRepository struct {
	*Repository
}

// NewWalletTransactionRepository 创建充提交易仓储
func NewWalletTransactionRepository(db *gorm.DB) WalletTransactionRepository {
	return &walletTransactionRepository{
		Repository: NewRepository(db),
	}
}

func (r *walletTransactionRepository) Create(ctx context.Context, tx *model.MainWalletTransaction) error {
	now := time.Now().UnixMilli()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	err := r.DB(ctx).Create(tx).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrDuplicateTransaction
	}
	return err
}

func (r *walletTransactionRepository) GetByID(ctx context.Context, id int64) (*model.MainWalletTransaction, error) {
	var tx model.MainWalletTransaction
	err := r.DB(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletTxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *walletTransactionRepository) ExistsDeposit(ctx context.Context, currencyID int64, txHash string) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&model.MainWalletTransaction{}).
		Where("currency_id = ? AND tx_hash = ? AND tx_type = ?",
			currencyID, txHash, model.WalletTxTypeDeposit).
		Count(&count).Error
	return count > 0, err
}

func (r *walletTransactionRepository) ListDisbursablePending(ctx context.Context, currencyID int64, limit int) ([]*model.MainWalletTransaction, error) {
	var txs []*model.MainWalletTransaction
	err := r.DB(ctx).
		Where("currency_id = ? AND tx_type = ? AND status = ?",
			currencyID, model.WalletTxTypeWithdraw, model.WalletTxStatusPending).
		Where("approved_status IN ?", []model.ApprovedStatus{
			model.ApprovedStatusNone, model.ApprovedStatusApproved,
		}).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *walletTransactionRepository) SetSubmittedHash(ctx context.Context, id int64, txHash string) error {
	result := r.DB(ctx).Model(&model.MainWalletTransaction{}).
		Where("id = ? AND status = ?", id, model.WalletTxStatusPending).
		Updates(map[string]interface{}{
			"tx_hash":    txHash,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTxAlreadyFinalized
	}
	return nil
}

func (r *walletTransactionRepository) MarkSucceeded(ctx context.Context, id int64, txHash string) error {
	result := r.DB(ctx).Model(&model.MainWalletTransaction{}).
		Where("id = ? AND status = ?", id, model.WalletTxStatusPending).
		Updates(map[string]interface{}{
			"status":     model.WalletTxStatusSucceed,
			"tx_hash":    txHash,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTxAlreadyFinalized
	}
	return nil
}

func (r *walletTransactionRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	result := r.DB(ctx).Model(&model.MainWalletTransaction{}).
		Where("id = ? AND status = ?", id, model.WalletTxStatusPending).
		Updates(map[string]interface{}{
			"status":        model.WalletTxStatusFailed,
			"error_message": reason,
			"updated_at":    time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTxAlreadyFinalized
	}
	return nil
}

func (r *walletTransactionRepository) CountByWallet(ctx context.Context, walletID int64) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.MainWalletTransaction{}).
		Where("main_wallet_id = ?", walletID).
		Count(&count).Error
	return count, err
}

func (r *walletTransactionRepository) ListByWallet(ctx context.Context, walletID int64, page *Pagination) ([]*model.MainWalletTransaction, error) {
	var txs []*model.MainWalletTransaction

	query := r.DB(ctx).Model(&model.MainWalletTransaction{}).
		Where("main_wallet_id = ?", walletID)

	if err := query.Count(&page.Total).Error; err != nil {
		return nil, err
	}

	err := query.
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&txs).Error
	return txs, err
}
