package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

var (
	ErrNoEndpoints    = errors.New("no RPC endpoint available")
	ErrTxNotFound     = errors.New("transaction not found")
	ErrTxReverted     = errors.New("transaction reverted on chain")
	ErrConfirmTimeout = errors.New("transaction confirmation timed out")
	ErrNoPrivateKey   = errors.New("private key is required")
)

// EndpointSelector 为每次 RPC 调用挑选一个端点
type EndpointSelector interface {
	Pick() (string, error)
}

// randomSelector 随机选择端点，把负载分摊到所有节点上
type randomSelector struct {
	urls []string
}

// NewRandomSelector 创建随机端点选择器
func NewRandomSelector(urls []string) (EndpointSelector, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	return &randomSelector{urls: urls}, nil
}

func (s *randomSelector) Pick() (string, error) {
	return s.urls[rand.IntN(len(s.urls))], nil
}

// Transfer 链上转账记录 (原生币或代币)
type Transfer struct {
	TxHash      string
	From        string
	To          string
	AmountWei   *big.Int
	BlockNumber int64
	Contract    string // 原生转账时为空
}

// SendRequest 发送交易请求
type SendRequest struct {
	PrivateKey *ecdsa.PrivateKey
	To         common.Address
	AmountWei  *big.Int
	GasPrice   *big.Int
	GasLimit   uint64
	// Nonce 为 nil 时使用链上 pending nonce
	Nonce *uint64
	// Contract 非 nil 时发送 ERC20 transfer，否则为原生转账
	Contract *common.Address
}

// Client 单链 RPC 客户端
// 每次调用通过 EndpointSelector 选择端点，失败时换节点重试
type Client struct {
	chainID       int64
	selector      EndpointSelector
	maxRetries    int
	retryInterval time.Duration
	pollInterval  time.Duration

	mu    sync.Mutex
	conns map[string]*ethclient.Client
}

// ClientConfig 客户端配置
type ClientConfig struct {
	ChainID       int64
	RPCURLs       []string
	MaxRetries    int
	RetryInterval time.Duration
	PollInterval  time.Duration
}

// NewClient 创建链客户端
func NewClient(cfg *ClientConfig) (*Client, error) {
	selector, err := NewRandomSelector(cfg.RPCURLs)
	if err != nil {
		return nil, err
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryInterval := cfg.RetryInterval
	if retryInterval == 0 {
		retryInterval = time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 3 * time.Second
	}

	return &Client{
		chainID:       cfg.ChainID,
		selector:      selector,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		pollInterval:  pollInterval,
		conns:         make(map[string]*ethclient.Client),
	}, nil
}

// ChainID 返回链 ID
func (c *Client) ChainID() int64 {
	return c.chainID
}

// conn 获取或建立到指定端点的连接
func (c *Client) conn(ctx context.Context, url string) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.conns[url]; ok {
		return client, nil
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	c.conns[url] = client
	return client, nil
}

// dropConn 丢弃失败端点的连接，下次调用时重新拨号
func (c *Client) dropConn(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.conns[url]; ok {
		client.Close()
		delete(c.conns, url)
	}
}

// withRetry 带重试的操作，每次重试重新选择端点
func (c *Client) withRetry(ctx context.Context, fn func(*ethclient.Client) error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		url, err := c.selector.Pick()
		if err != nil {
			return err
		}

		client, err := c.conn(ctx, url)
		if err != nil {
			lastErr = err
			time.Sleep(c.retryInterval)
			continue
		}

		err = fn(client)
		if err == nil {
			return nil
		}
		lastErr = err

		// 业务性错误不换节点重试
		if errors.Is(err, ErrTxNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		c.dropConn(url)
		if i < c.maxRetries-1 {
			logger.Warn("rpc call failed, retrying on another endpoint",
				zap.Int64("chain_id", c.chainID),
				zap.String("endpoint", url),
				zap.Error(err))
			time.Sleep(c.retryInterval)
		}
	}
	return lastErr
}

// BlockNumber 获取最新区块号
func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	var blockNum uint64
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		blockNum, err = client.BlockNumber(ctx)
		return err
	})
	return int64(blockNum), err
}

// NativeTransfers 返回指定区块内所有原生币转账
func (c *Client) NativeTransfers(ctx context.Context, blockNumber int64) ([]*Transfer, error) {
	var block *types.Block
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		block, err = client.BlockByNumber(ctx, big.NewInt(blockNumber))
		return err
	})
	if err != nil {
		return nil, err
	}

	signer := types.LatestSignerForChainID(big.NewInt(c.chainID))
	var transfers []*Transfer
	for _, tx := range block.Transactions() {
		// 跳过合约创建和零值交易
		if tx.To() == nil || tx.Value().Sign() <= 0 {
			continue
		}
		from, err := types.Sender(signer, tx)
		if err != nil {
			continue
		}
		transfers = append(transfers, &Transfer{
			TxHash:      tx.Hash().Hex(),
			From:        NormalizeAddress(from.Hex()),
			To:          NormalizeAddress(tx.To().Hex()),
			AmountWei:   tx.Value(),
			BlockNumber: blockNumber,
		})
	}
	return transfers, nil
}

// TokenTransfers 返回区块范围内指定合约的所有 Transfer 事件
func (c *Client) TokenTransfers(ctx context.Context, contract common.Address, fromBlock, toBlock int64) ([]*Transfer, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{TransferTopic}},
	}

	var logs []types.Log
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		logs, err = client.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	var transfers []*Transfer
	for i := range logs {
		transfer, ok := ParseTransferLog(&logs[i])
		if !ok {
			continue
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

// BalanceAt 获取原生币余额
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		balance, err = client.BalanceAt(ctx, account, nil)
		return err
	})
	return balance, err
}

// TokenBalance 获取 ERC20 代币余额
func (c *Client) TokenBalance(ctx context.Context, contract, account common.Address) (*big.Int, error) {
	data := PackBalanceOf(account)
	msg := ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}

	var result []byte
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		result, err = client.CallContract(ctx, msg, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(result), nil
}

// SuggestGasPrice 获取建议 Gas 价格
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var gasPrice *big.Int
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		gasPrice, err = client.SuggestGasPrice(ctx)
		return err
	})
	return gasPrice, err
}

// PendingNonceAt 获取待处理 Nonce
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		nonce, err = client.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// Send 构建、签名并发送交易，返回交易哈希
func (c *Client) Send(ctx context.Context, req *SendRequest) (string, error) {
	if req.PrivateKey == nil {
		return "", ErrNoPrivateKey
	}
	from := crypto.PubkeyToAddress(req.PrivateKey.PublicKey)

	nonce := uint64(0)
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		var err error
		nonce, err = c.PendingNonceAt(ctx, from)
		if err != nil {
			return "", err
		}
	}

	var tx *types.Transaction
	if req.Contract != nil {
		tx = types.NewTransaction(nonce, *req.Contract, big.NewInt(0), req.GasLimit,
			req.GasPrice, PackTransfer(req.To, req.AmountWei))
	} else {
		tx = types.NewTransaction(nonce, req.To, req.AmountWei, req.GasLimit,
			req.GasPrice, nil)
	}

	signer := types.NewEIP155Signer(big.NewInt(c.chainID))
	signedTx, err := types.SignTx(tx, signer, req.PrivateKey)
	if err != nil {
		return "", err
	}

	err = c.withRetry(ctx, func(client *ethclient.Client) error {
		return client.SendTransaction(ctx, signedTx)
	})
	if err != nil {
		return "", err
	}
	return signedTx.Hash().Hex(), nil
}

// TransactionReceipt 获取交易回执
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.withRetry(ctx, func(client *ethclient.Client) error {
		var err error
		receipt, err = client.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxNotFound
		}
		return err
	})
	return receipt, err
}

// WaitMined 等待交易上链
// 超时返回 ErrConfirmTimeout，交易回滚返回 ErrTxReverted
// 注意: 超时并不代表交易失败，交易可能在超时后才被打包
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, ErrTxReverted
			}
			return receipt, nil
		}
		if !errors.Is(err, ErrTxNotFound) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		select {
		case <-waitCtx.Done():
			return nil, ErrConfirmTimeout
		case <-ticker.C:
		}
	}
}

// Close 关闭所有连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url, client := range c.conns {
		client.Close()
		delete(c.conns, url)
	}
}

// NormalizeAddress 地址统一为小写十六进制，用于数据库存储与比较
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}
