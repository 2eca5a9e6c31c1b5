package chain

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNonceReader 固定返回链上 nonce
type fakeNonceReader struct {
	nonce uint64
	err   error
}

func (f *fakeNonceReader) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return f.nonce, f.err
}

func setupNonceManager(t *testing.T, reader PendingNonceReader) (*NonceManager, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewNonceManager(reader, rdb, &NonceManagerConfig{ChainID: 1}), mr
}

// TestNonceManager_AcquireNonce 测试 nonce 分配递增
func TestNonceManager_AcquireNonce(t *testing.T) {
	reader := &fakeNonceReader{nonce: 5}
	m, _ := setupNonceManager(t, reader)
	ctx := context.Background()
	wallet := common.HexToAddress("0xaaaa000000000000000000000000000000000001")

	// 首次从链上取
	nonce, err := m.AcquireNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), nonce)

	// 后续从缓存递增
	nonce, err = m.AcquireNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), nonce)

	nonce, err = m.AcquireNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)
}

// TestNonceManager_ChainAhead 测试链上 nonce 超前时以链为准
func TestNonceManager_ChainAhead(t *testing.T) {
	reader := &fakeNonceReader{nonce: 5}
	m, _ := setupNonceManager(t, reader)
	ctx := context.Background()
	wallet := common.HexToAddress("0xaaaa000000000000000000000000000000000002")

	nonce, err := m.AcquireNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), nonce)

	// 其他进程直接发过交易，链上 nonce 已到 10
	reader.nonce = 10
	nonce, err = m.AcquireNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), nonce)
}

// TestNonceManager_SyncFromChain 测试强制同步
func TestNonceManager_SyncFromChain(t *testing.T) {
	reader := &fakeNonceReader{nonce: 5}
	m, _ := setupNonceManager(t, reader)
	ctx := context.Background()
	wallet := common.HexToAddress("0xaaaa000000000000000000000000000000000003")

	_, err := m.AcquireNonce(ctx, wallet)
	require.NoError(t, err)

	require.NoError(t, m.SyncFromChain(ctx, wallet))

	reader.nonce = 3
	nonce, err := m.AcquireNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)
}

// TestNonceManager_LockHeld 测试锁被占用时快速失败
func TestNonceManager_LockHeld(t *testing.T) {
	reader := &fakeNonceReader{nonce: 5}
	m, mr := setupNonceManager(t, reader)
	ctx := context.Background()
	wallet := common.HexToAddress("0xaaaa000000000000000000000000000000000004")

	require.NoError(t, mr.Set(m.lockKey(wallet), "1"))

	_, err := m.AcquireNonce(ctx, wallet)
	assert.ErrorIs(t, err, ErrNonceLockFailed)
}
