package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

// TransactionMasterRepository 归集流水仓储接口
type TransactionMasterRepository interface {
	Create(ctx context.Context, tx *model.TransactionMaster) error
	ListByCurrency(ctx context.Context, currencyID int64, page *Pagination) ([]*model.TransactionMaster, error)
	CountByCurrency(ctx context.Context, currencyID int64, txType model.MasterTxType) (int64, error)
}

// transactionMasterRepository 归集流水仓储实现
type transactionMasterRepository struct {
	*Repository
}

// NewTransactionMasterRepository 创建归集流水仓储
func NewTransactionMasterRepository(db *gorm.DB) TransactionMasterRepository {
	return &transactionMasterRepository{
		Repository: NewRepository(db),
	}
}

func (r *transactionMasterRepository) Create(ctx context.Context, tx *model.TransactionMaster) error {
	tx.CreatedAt = time.Now().UnixMilli()
	return r.DB(ctx).Create(tx).Error
}

func (r *transactionMasterRepository) ListByCurrency(ctx context.Context, currencyID int64, page *Pagination) ([]*model.TransactionMaster, error) {
	var txs []*model.TransactionMaster

	query := r.DB(ctx).Model(&model.TransactionMaster{}).
		Where("currency_id = ?", currencyID)

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

func (r *transactionMasterRepository) CountByCurrency(ctx context.Context, currencyID int64, txType model.MasterTxType) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.TransactionMaster{}).
		Where("currency_id = ? AND tx_type = ?", currencyID, txType).
		Count(&count).Error
	return count, err
}
