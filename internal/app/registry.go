package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heliox-exchange/heliox-custody/internal/chain"
	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
	"github.com/heliox-exchange/heliox-custody/internal/service"
)

// chainRegistry 按链服务名提供客户端与 nonce 管理器
// 链配置 (chain_id, rpc 端点) 随币种存储在数据库，同一链服务的
// 所有币种共享一个客户端，首次请求时按币种配置建立
type chainRegistry struct {
	currencyRepo repository.CurrencyRepository
	redis        *redis.Client

	mu      sync.Mutex
	clients map[model.CryptoService]*chain.Client
	nonces  map[model.CryptoService]*chain.NonceManager
}

func newChainRegistry(currencyRepo repository.CurrencyRepository, rdb *redis.Client) *chainRegistry {
	return &chainRegistry{
		currencyRepo: currencyRepo,
		redis:        rdb,
		clients:      make(map[model.CryptoService]*chain.Client),
		nonces:       make(map[model.CryptoService]*chain.NonceManager),
	}
}

// Client 返回链客户端
func (r *chainRegistry) Client(svc model.CryptoService) (service.ChainClient, error) {
	client, err := r.client(svc)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Nonces 返回链的 nonce 管理器
func (r *chainRegistry) Nonces(svc model.CryptoService) (service.NonceSource, error) {
	client, err := r.client(svc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if nm, ok := r.nonces[svc]; ok {
		return nm, nil
	}
	nm := chain.NewNonceManager(client, r.redis, &chain.NonceManagerConfig{
		ChainID:     client.ChainID(),
		LockTimeout: 30 * time.Second,
		StaleAfter:  5 * time.Minute,
	})
	r.nonces[svc] = nm
	return nm, nil
}

func (r *chainRegistry) client(svc model.CryptoService) (*chain.Client, error) {
	r.mu.Lock()
	if client, ok := r.clients[svc]; ok {
		r.mu.Unlock()
		return client, nil
	}
	r.mu.Unlock()

	// 从该链服务下任一启用币种读取链配置
	data, err := r.chainData(svc)
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(&chain.ClientConfig{
		ChainID: data.ChainID,
		RPCURLs: data.RPCURLs,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 并发构建时保留先到者
	if existing, ok := r.clients[svc]; ok {
		client.Close()
		return existing, nil
	}
	r.clients[svc] = client
	return client, nil
}

func (r *chainRegistry) chainData(svc model.CryptoService) (*model.CryptoData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	currencies, err := r.currencyRepo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range currencies {
		if c.CryptoService != svc {
			continue
		}
		if err := c.CryptoData.Validate(); err != nil {
			continue
		}
		return &c.CryptoData, nil
	}
	return nil, fmt.Errorf("%w: %s", service.ErrChainNotConfigured, svc)
}

// Close 关闭所有链客户端
func (r *chainRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for svc, client := range r.clients {
		client.Close()
		delete(r.clients, svc)
	}
}
