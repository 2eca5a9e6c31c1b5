package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

var (
	ErrCurrencyNotFound = errors.New("currency not found")
)

// CurrencyRepository 币种仓储接口
type CurrencyRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Currency, error)
	GetBySymbol(ctx context.Context, symbol string) (*model.Currency, error)
	ListEnabled(ctx context.Context) ([]*model.Currency, error)
	Update(ctx context.Context, currency *model.Currency) error
}

// currencyRepository 币种仓储实现
type currencyRepository struct {
	*Repository
}

// NewCurrencyRepository 创建币种仓储
func NewCurrencyRepository(db *gorm.DB) CurrencyRepository {
	return &currencyRepository{
		Repository: NewRepository(db),
	}
}

func (r *currencyRepository) GetByID(ctx context.Context, id int64) (*model.Currency, error) {
	var currency model.Currency
	err := r.DB(ctx).Where("id = ?", id).First(&currency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCurrencyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &currency, nil
}

func (r *currencyRepository) GetBySymbol(ctx context.Context, symbol string) (*model.Currency, error) {
	var currency model.Currency
	err := r.DB(ctx).Where("symbol = ?", symbol).First(&currency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCurrencyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &currency, nil
}

func (r *currencyRepository) ListEnabled(ctx context.Context) ([]*model.Currency, error) {
	var currencies []*model.Currency
	err := r.DB(ctx).
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&currencies).Error
	return currencies, err
}

func (r *currencyRepository) Update(ctx context.Context, currency *model.Currency) error {
	currency.UpdatedAt = time.Now().UnixMilli()
	return r.DB(ctx).Save(currency).Error
}
