// Package service 实现资金划转核心: 充值扫描、归集、提现出账与余额维护
package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/heliox-exchange/heliox-custody/internal/chain"
	"github.com/heliox-exchange/heliox-custody/internal/model"
)

var (
	ErrChainNotConfigured = errors.New("chain service not configured")
)

// ChainClient 链访问能力，按服务注入以便替换与测试
type ChainClient interface {
	ChainID() int64
	BlockNumber(ctx context.Context) (int64, error)
	NativeTransfers(ctx context.Context, blockNumber int64) ([]*chain.Transfer, error)
	TokenTransfers(ctx context.Context, contract common.Address, fromBlock, toBlock int64) ([]*chain.Transfer, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, contract, account common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Send(ctx context.Context, req *chain.SendRequest) (string, error)
	WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error)
}

// NonceSource 出账钱包的 nonce 分配
type NonceSource interface {
	AcquireNonce(ctx context.Context, wallet common.Address) (uint64, error)
	SyncFromChain(ctx context.Context, wallet common.Address) error
}

// ChainRegistry 按链服务名提供客户端与 nonce 管理器
type ChainRegistry interface {
	Client(service model.CryptoService) (ChainClient, error)
	Nonces(service model.CryptoService) (NonceSource, error)
}

// KeyStore 钱包私钥的生成与解密
type KeyStore interface {
	GenerateAddress() (address string, encryptedKey string, err error)
	Decrypt(encryptedKey string) (*ecdsa.PrivateKey, error)
}

// TxManager 数据库事务执行器
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunStats 单次任务运行统计
// 每次调度运行必须向运营侧汇报成功/失败/跳过数量
type RunStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Merge 合并子任务统计
func (s *RunStats) Merge(other *RunStats) {
	if other == nil {
		return
	}
	s.Processed += other.Processed
	s.Succeeded += other.Succeeded
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}
