package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// AccountService 用户钱包与充值地址的开户
type AccountService struct {
	currencyRepo repository.CurrencyRepository
	walletRepo   repository.MainWalletRepository
	addressRepo  repository.WalletAddressRepository
	txManager    TxManager
	keystore     KeyStore
}

// NewAccountService 创建开户服务
func NewAccountService(
	currencyRepo repository.CurrencyRepository,
	walletRepo repository.MainWalletRepository,
	addressRepo repository.WalletAddressRepository,
	txManager TxManager,
	keystore KeyStore,
) *AccountService {
	return &AccountService{
		currencyRepo: currencyRepo,
		walletRepo:   walletRepo,
		addressRepo:  addressRepo,
		txManager:    txManager,
		keystore:     keystore,
	}
}

// GetOrCreateWallet 获取或创建用户在某币种下的钱包与充值地址
// 并发调用安全: 唯一约束冲突时读取已创建的钱包返回
func (s *AccountService) GetOrCreateWallet(ctx context.Context, userID, currencyID int64) (*model.MainWallet, *model.MainWalletAddress, error) {
	wallet, err := s.walletRepo.GetByUserAndCurrency(ctx, userID, currencyID)
	if err == nil {
		addr, err := s.addressRepo.GetByWalletID(ctx, wallet.ID)
		if err != nil {
			return nil, nil, err
		}
		return wallet, addr, nil
	}
	if !errors.Is(err, repository.ErrMainWalletNotFound) {
		return nil, nil, err
	}

	if _, err := s.currencyRepo.GetByID(ctx, currencyID); err != nil {
		return nil, nil, err
	}

	address, encryptedKey, err := s.keystore.GenerateAddress()
	if err != nil {
		return nil, nil, err
	}

	wallet = &model.MainWallet{
		UserID:     userID,
		CurrencyID: currencyID,
	}
	addr := &model.MainWalletAddress{
		Address:      address,
		EncryptedKey: encryptedKey,
	}

	err = s.txManager.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.walletRepo.Create(txCtx, wallet); err != nil {
			return err
		}
		addr.MainWalletID = wallet.ID
		return s.addressRepo.Create(txCtx, addr)
	})
	if errors.Is(err, repository.ErrDuplicateMainWallet) {
		// 并发创建竞争失败，读已落库的那份
		wallet, err = s.walletRepo.GetByUserAndCurrency(ctx, userID, currencyID)
		if err != nil {
			return nil, nil, err
		}
		addr, err = s.addressRepo.GetByWalletID(ctx, wallet.ID)
		if err != nil {
			return nil, nil, err
		}
		return wallet, addr, nil
	}
	if err != nil {
		return nil, nil, err
	}

	logger.Info("wallet created with deposit address",
		zap.Int64("user_id", userID),
		zap.Int64("currency_id", currencyID),
		zap.Int64("main_wallet_id", wallet.ID),
		zap.String("address", address))
	return wallet, addr, nil
}
