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
	ErrDuplicateChange = errors.New("duplicate wallet change")
)

// WalletChangeRepository 账变流水仓储接口
// 流水仅追加: 没有 Update/Delete 操作
type WalletChangeRepository interface {
	Create(ctx context.Context, change *model.MainWalletChange) error
	// SumAfter 汇总某时间点之后的账变 (余额派生公式的动态部分)
	SumAfter(ctx context.Context, walletID int64, afterMs int64) (decimal.Decimal, error)
	// SumBetween 汇总 (afterMs, untilMs] 区间内的账变，重置余额缓存时使用
	SumBetween(ctx context.Context, walletID int64, afterMs, untilMs int64) (decimal.Decimal, error)
	SumAll(ctx context.Context, walletID int64) (decimal.Decimal, error)
	ExistsByEvent(ctx context.Context, eventType model.ChangeEventType, eventID string) (bool, error)
	ListByWallet(ctx context.Context, walletID int64, page *Pagination) ([]*model.MainWalletChange, error)
}

// walletChangeRepository 账变流水仓储实现
type walletChangeRepository struct {
	*Repository
}

// NewWalletChangeRepository 创建账变流水仓储
func NewWalletChangeRepository(db *gorm.DB) WalletChangeRepository {
	return &walletChangeRepository{
		Repository: NewRepository(db),
	}
}

func (r *walletChangeRepository) Create(ctx context.Context, change *model.MainWalletChange) error {
	change.CreatedAt = time.Now().UnixMilli()

	err := r.DB(ctx).Create(change).Error
	if err != nil && isDuplicateKeyError(err) {
		return ErrDuplicateChange
	}
	return err
}

func (r *walletChangeRepository) SumAfter(ctx context.Context, walletID int64, afterMs int64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	row := r.DB(ctx).Model(&model.MainWalletChange{}).
		Select("SUM(amount)").
		Where("main_wallet_id = ? AND created_at > ?", walletID, afterMs).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *walletChangeRepository) SumBetween(ctx context.Context, walletID int64, afterMs, untilMs int64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	row := r.DB(ctx).Model(&model.MainWalletChange{}).
		Select("SUM(amount)").
		Where("main_wallet_id = ? AND created_at > ? AND created_at <= ?", walletID, afterMs, untilMs).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *walletChangeRepository) SumAll(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	return r.SumAfter(ctx, walletID, -1)
}

func (r *walletChangeRepository) ExistsByEvent(ctx context.Context, eventType model.ChangeEventType, eventID string) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&model.MainWalletChange{}).
		Where("event_type = ? AND event_id = ?", eventType, eventID).
		Count(&count).Error
	return count > 0, err
}

func (r *walletChangeRepository) ListByWallet(ctx context.Context, walletID int64, page *Pagination) ([]*model.MainWalletChange, error) {
	var changes []*model.MainWalletChange

	query := r.DB(ctx).Model(&model.MainWalletChange{}).
		Where("main_wallet_id = ?", walletID)

	if err := query.Count(&page.Total).Error; err != nil {
		return nil, err
	}

	err := query.
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&changes).Error
	return changes, err
}
