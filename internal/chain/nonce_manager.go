package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNonceLockFailed = errors.New("failed to acquire nonce lock")
)

// PendingNonceReader 读取链上 pending nonce
type PendingNonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager 热钱包 Nonce 管理器
// 同一地址可能被多个出账流程并发使用 (提现、归集补gas)，
// 通过 Redis 锁串行化 nonce 分配，避免 nonce 冲突
type NonceManager struct {
	reader      PendingNonceReader
	redis       *redis.Client
	chainID     int64
	lockTimeout time.Duration
	staleAfter  time.Duration
}

// NonceManagerConfig 配置
type NonceManagerConfig struct {
	ChainID     int64
	LockTimeout time.Duration
	// StaleAfter 缓存的 nonce 超过该时长未使用则从链上重新同步
	StaleAfter time.Duration
}

// NewNonceManager 创建 Nonce 管理器
func NewNonceManager(reader PendingNonceReader, rdb *redis.Client, cfg *NonceManagerConfig) *NonceManager {
	lockTimeout := cfg.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = 30 * time.Second
	}
	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = 5 * time.Minute
	}

	return &NonceManager{
		reader:      reader,
		redis:       rdb,
		chainID:     cfg.ChainID,
		lockTimeout: lockTimeout,
		staleAfter:  staleAfter,
	}
}

func (m *NonceManager) nonceKey(wallet common.Address) string {
	return fmt.Sprintf("heliox:custody:nonce:%d:%s", m.chainID, NormalizeAddress(wallet.Hex()))
}

func (m *NonceManager) lockKey(wallet common.Address) string {
	return fmt.Sprintf("heliox:custody:nonce:lock:%d:%s", m.chainID, NormalizeAddress(wallet.Hex()))
}

// AcquireNonce 获取并占用下一个 nonce
func (m *NonceManager) AcquireNonce(ctx context.Context, wallet common.Address) (uint64, error) {
	ok, err := m.redis.SetNX(ctx, m.lockKey(wallet), "1", m.lockTimeout).Result()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNonceLockFailed
	}
	defer m.redis.Del(ctx, m.lockKey(wallet))

	nonce, err := m.currentNonce(ctx, wallet)
	if err != nil {
		return 0, err
	}

	// 缓存带 TTL: 过期后自动回落到链上同步
	err = m.redis.Set(ctx, m.nonceKey(wallet), nonce+1, m.staleAfter).Err()
	if err != nil {
		return 0, err
	}
	return nonce, nil
}

// SyncFromChain 丢弃缓存，强制下次从链上读取
// 出现 nonce too low/too high 错误后调用
func (m *NonceManager) SyncFromChain(ctx context.Context, wallet common.Address) error {
	return m.redis.Del(ctx, m.nonceKey(wallet)).Err()
}

// currentNonce 返回当前可用 nonce，缓存缺失时从链上读取
func (m *NonceManager) currentNonce(ctx context.Context, wallet common.Address) (uint64, error) {
	val, err := m.redis.Get(ctx, m.nonceKey(wallet)).Uint64()
	if errors.Is(err, redis.Nil) {
		return m.reader.PendingNonceAt(ctx, wallet)
	}
	if err != nil {
		return 0, err
	}

	// 缓存可能落后于链 (其他进程直接发过交易)，取较大者
	chainNonce, err := m.reader.PendingNonceAt(ctx, wallet)
	if err != nil {
		return val, nil
	}
	if chainNonce > val {
		return chainNonce, nil
	}
	return val, nil
}
