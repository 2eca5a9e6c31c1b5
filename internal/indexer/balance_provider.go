// Package indexer 对接第三方区块浏览器 API，为归集提供批量余额查询
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrIndexerDisabled   = errors.New("indexer not configured")
	ErrIndexerBadStatus  = errors.New("indexer returned non-ok status")
	ErrIndexerBadPayload = errors.New("indexer returned malformed payload")
)

// balanceMultiBatch 浏览器 API 单次查询的地址数上限
const balanceMultiBatch = 20

// Config 浏览器 API 配置
type Config struct {
	// BaseURLs chain_id -> API 地址 (etherscan 兼容接口)
	BaseURLs map[int64]string `yaml:"base_urls"`
	APIKey   string           `yaml:"api_key"`
	Timeout  time.Duration    `yaml:"timeout"`
}

// BalanceProvider etherscan 兼容的批量余额查询
type BalanceProvider struct {
	baseURLs map[int64]string
	apiKey   string
	client   *http.Client
}

// NewBalanceProvider 创建批量余额查询器
func NewBalanceProvider(cfg *Config) *BalanceProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &BalanceProvider{
		baseURLs: cfg.BaseURLs,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// balanceMultiResponse etherscan balancemulti 接口响应
type balanceMultiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		Account string `json:"account"`
		Balance string `json:"balance"`
	} `json:"result"`
}

// NativeBalances 批量查询原生余额，返回 address -> wei
// 该链未配置浏览器 API 时返回 ErrIndexerDisabled，调用方退回逐地址 RPC
func (p *BalanceProvider) NativeBalances(ctx context.Context, chainID int64, addresses []string) (map[string]*big.Int, error) {
	baseURL, ok := p.baseURLs[chainID]
	if !ok || baseURL == "" {
		return nil, ErrIndexerDisabled
	}

	balances := make(map[string]*big.Int, len(addresses))
	for start := 0; start < len(addresses); start += balanceMultiBatch {
		end := start + balanceMultiBatch
		if end > len(addresses) {
			end = len(addresses)
		}
		if err := p.fetchBatch(ctx, baseURL, addresses[start:end], balances); err != nil {
			return nil, err
		}
	}
	return balances, nil
}

func (p *BalanceProvider) fetchBatch(ctx context.Context, baseURL string, addresses []string, out map[string]*big.Int) error {
	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", "balancemulti")
	query.Set("address", strings.Join(addresses, ","))
	query.Set("tag", "latest")
	if p.apiKey != "" {
		query.Set("apikey", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: http %d", ErrIndexerBadStatus, resp.StatusCode)
	}

	var payload balanceMultiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexerBadPayload, err)
	}
	if payload.Status != "1" {
		return fmt.Errorf("%w: %s", ErrIndexerBadStatus, payload.Message)
	}

	for _, entry := range payload.Result {
		balance, ok := new(big.Int).SetString(entry.Balance, 10)
		if !ok {
			return fmt.Errorf("%w: balance %q", ErrIndexerBadPayload, entry.Balance)
		}
		out[strings.ToLower(entry.Account)] = balance
	}
	return nil
}
