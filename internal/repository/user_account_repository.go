package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/heliox-exchange/heliox-custody/internal/model"
)

var (
	ErrUserAccountNotFound = errors.New("user account not found")
)

// UserAccountRepository 用户账户仓储接口
type UserAccountRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*model.UserAccount, error)
}

// userAccountRepository 用户账户仓储实现
type userAccountRepository struct {
	*Repository
}

// NewUserAccountRepository 创建用户账户仓储
func NewUserAccountRepository(db *gorm.DB) UserAccountRepository {
	return &userAccountRepository{
		Repository: NewRepository(db),
	}
}

func (r *userAccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.UserAccount, error) {
	var account model.UserAccount
	err := r.DB(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}
