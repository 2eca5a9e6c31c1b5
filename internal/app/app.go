// Package app 提供 heliox-custody 服务的应用生命周期管理
//
// heliox-custody 是托管钱包后端，负责:
// 1. 充值扫描 (DepositScan): 按币种扫描链上区块，为用户充值入账
// 2. 资金归集 (Sweep): 将充值地址上的资金归集到主钱包
// 3. 提现出账 (Withdrawal): 从主钱包执行用户提现
// 4. 余额同步 (BalanceSync): 维护派生余额的基准值
//
// 所有资金任务由内置调度器驱动，通过 Redis 分布式锁保证
// 多实例部署时同一任务只有一个实例在执行。
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/heliox-exchange/heliox-custody/internal/chain"
	"github.com/heliox-exchange/heliox-custody/internal/config"
	"github.com/heliox-exchange/heliox-custody/internal/handler"
	"github.com/heliox-exchange/heliox-custody/internal/indexer"
	"github.com/heliox-exchange/heliox-custody/internal/jobs"
	"github.com/heliox-exchange/heliox-custody/internal/kafka"
	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/internal/repository"
	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
	"github.com/heliox-exchange/heliox-custody/internal/service"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// App 应用
type App struct {
	cfg *config.Config

	// 基础设施
	db    *gorm.DB
	redis *redis.Client

	// 链访问
	registry *chainRegistry
	keystore *chain.Keystore

	// 仓储
	baseRepo     *repository.Repository
	currencyRepo repository.CurrencyRepository
	masterRepo   repository.MasterWalletRepository
	walletRepo   repository.MainWalletRepository
	addressRepo  repository.WalletAddressRepository
	txRepo       repository.WalletTransactionRepository
	changeRepo   repository.WalletChangeRepository
	userRepo     repository.UserAccountRepository
	masterTxRepo repository.TransactionMasterRepository
	execRepo     *repository.ExecutionRepository

	// 服务
	accountSvc  *service.AccountService
	scannerSvc  *service.DepositScanner
	sweepSvc    *service.SweepService
	withdrawSvc *service.WithdrawalService
	balanceSvc  *service.BalanceService

	// Kafka
	kafkaProducer *kafka.Producer
	notifier      service.Notifier

	// 调度与监控
	scheduler     *scheduler.Scheduler
	metricsServer *http.Server

	// 运行控制
	stopCh chan struct{}
}

// NewApp 创建应用
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	app.initRepositories()

	if err := app.initKafka(); err != nil {
		return nil, fmt.Errorf("failed to init kafka: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		return nil, fmt.Errorf("failed to init scheduler: %w", err)
	}

	return app, nil
}

// AutoMigrate 迁移数据表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Currency{},
		&model.MasterWallet{},
		&model.UserAccount{},
		&model.MainWallet{},
		&model.MainWalletAddress{},
		&model.MainWalletTransaction{},
		&model.MainWalletChange{},
		&model.TransactionMaster{},
		&model.JobExecution{},
	)
}

// initInfrastructure 初始化基础设施
func (a *App) initInfrastructure() error {
	// PostgreSQL
	db, err := gorm.Open(postgres.Open(a.cfg.Postgres.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetime) * time.Second)

	a.db = db
	logger.Info("database connected", zap.String("host", a.cfg.Postgres.Host))

	// 自动迁移
	if err := AutoMigrate(a.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

	// Redis
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	if err := a.redis.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	logger.Info("redis connected", zap.String("addr", a.cfg.Redis.Addr))

	// 私钥加密
	ks, err := chain.NewKeystore(a.cfg.Keystore.MasterKey)
	if err != nil {
		return fmt.Errorf("failed to init keystore: %w", err)
	}
	a.keystore = ks

	return nil
}

// initRepositories 初始化仓储
func (a *App) initRepositories() {
	a.baseRepo = repository.NewRepository(a.db)
	a.currencyRepo = repository.NewCurrencyRepository(a.db)
	a.masterRepo = repository.NewMasterWalletRepository(a.db)
	a.walletRepo = repository.NewMainWalletRepository(a.db)
	a.addressRepo = repository.NewWalletAddressRepository(a.db)
	a.txRepo = repository.NewWalletTransactionRepository(a.db)
	a.changeRepo = repository.NewWalletChangeRepository(a.db)
	a.userRepo = repository.NewUserAccountRepository(a.db)
	a.masterTxRepo = repository.NewTransactionMasterRepository(a.db)
	a.execRepo = repository.NewExecutionRepository(a.db)

	a.registry = newChainRegistry(a.currencyRepo, a.redis)

	logger.Info("repositories initialized")
}

// initKafka 初始化 Kafka 事件出口
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled {
		a.notifier = service.NewLogNotifier()
		logger.Info("kafka disabled, events will be logged only")
		return nil
	}

	producer, err := kafka.NewProducer(&kafka.ProducerConfig{
		Brokers:  a.cfg.Kafka.Brokers,
		ClientID: a.cfg.Kafka.ClientID,
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	a.kafkaProducer = producer
	a.notifier = service.NewNotifier(kafka.NewKafkaEventPublisher(producer))

	logger.Info("kafka initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return nil
}

// initServices 初始化服务
func (a *App) initServices() error {
	a.accountSvc = service.NewAccountService(
		a.currencyRepo,
		a.walletRepo,
		a.addressRepo,
		a.baseRepo,
		a.keystore,
	)

	a.scannerSvc = service.NewDepositScanner(
		a.currencyRepo,
		a.masterRepo,
		a.addressRepo,
		a.txRepo,
		a.changeRepo,
		a.baseRepo,
		a.registry,
		a.notifier,
	)

	gasTopUp, err := decimal.NewFromString(a.cfg.Sweep.GasTopUpAmount)
	if err != nil {
		return fmt.Errorf("invalid sweep.gas_topup_amount: %w", err)
	}

	var balances service.BalanceProvider
	if len(a.cfg.Indexer.BaseURLs) > 0 {
		balances = indexer.NewBalanceProvider(&indexer.Config{
			BaseURLs: a.cfg.Indexer.BaseURLs,
			APIKey:   a.cfg.Indexer.APIKey,
			Timeout:  time.Duration(a.cfg.Indexer.TimeoutSeconds) * time.Second,
		})
	}

	a.sweepSvc = service.NewSweepService(
		a.currencyRepo,
		a.masterRepo,
		a.addressRepo,
		a.txRepo,
		a.masterTxRepo,
		a.registry,
		a.keystore,
		balances,
		&service.SweepConfig{
			MaxConcurrent:  a.cfg.Sweep.MaxConcurrent,
			GasTopUpAmount: gasTopUp,
			InterStepDelay: time.Duration(a.cfg.Sweep.InterStepDelaySeconds) * time.Second,
			ConfirmTimeout: time.Duration(a.cfg.Sweep.ConfirmTimeoutSeconds) * time.Second,
		},
	)

	a.withdrawSvc = service.NewWithdrawalService(
		a.currencyRepo,
		a.walletRepo,
		a.userRepo,
		a.masterRepo,
		a.txRepo,
		a.changeRepo,
		a.baseRepo,
		a.registry,
		a.keystore,
		a.notifier,
		&service.WithdrawConfig{
			BatchSize:      a.cfg.Withdraw.BatchSize,
			ConfirmTimeout: time.Duration(a.cfg.Withdraw.ConfirmTimeoutSeconds) * time.Second,
		},
	)

	a.balanceSvc = service.NewBalanceService(
		a.walletRepo,
		a.addressRepo,
		a.changeRepo,
		a.baseRepo,
		a.cfg.BalanceSync.BatchSize,
	)

	logger.Info("services initialized")
	return nil
}

// initScheduler 初始化调度器并注册资金任务
func (a *App) initScheduler() error {
	a.scheduler = scheduler.NewScheduler(&scheduler.SchedulerConfig{
		MaxConcurrentJobs: a.cfg.Scheduler.MaxConcurrentJobs,
		RedisClient:       a.redis,
	}, a.execRepo)

	registered := []scheduler.Job{
		jobs.NewDepositScanJob(a.scannerSvc),
		jobs.NewSweepJob(a.sweepSvc),
		jobs.NewWithdrawalDisburseJob(a.withdrawSvc),
		jobs.NewBalanceSyncJob(a.balanceSvc),
		jobs.NewExecutionCleanupJob(a.execRepo, nil),
	}

	for _, job := range registered {
		if err := a.scheduler.RegisterJob(job, a.jobConfig(job.Name())); err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
		}
	}

	return nil
}

// jobConfig 合并默认调度配置与配置文件覆盖项
func (a *App) jobConfig(jobName string) scheduler.JobConfig {
	cfg := scheduler.JobConfig{
		Cron:    scheduler.DefaultJobConfigs[jobName].Cron,
		Enabled: true,
	}

	if override, ok := a.cfg.Jobs[jobName]; ok {
		if override.Cron != "" {
			cfg.Cron = override.Cron
		}
		if override.Enabled != nil {
			cfg.Enabled = *override.Enabled
		}
	}
	return cfg
}

// AccountService 暴露开户服务 (供接入层调用)
func (a *App) AccountService() *service.AccountService {
	return a.accountSvc
}

// BalanceService 暴露余额服务 (供接入层调用)
func (a *App) BalanceService() *service.BalanceService {
	return a.balanceSvc
}

// Run 运行应用
func (a *App) Run() error {
	a.scheduler.Start()

	// Prometheus 指标 + 运营接口
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler.NewHandler(a.accountSvc, a.balanceSvc, a.scheduler).Register(mux)
	a.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.MetricsPort),
		Handler: mux,
	}

	go func() {
		logger.Info("metrics server listening", zap.Int("port", a.cfg.Service.MetricsPort))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-a.stopCh:
		logger.Info("shutdown requested")
	}

	return a.shutdown()
}

// shutdown 关闭应用
func (a *App) shutdown() error {
	logger.Info("shutting down...")

	// 停止调度器，等待在途任务结束
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	if a.kafkaProducer != nil {
		a.kafkaProducer.Close()
	}

	if a.registry != nil {
		a.registry.Close()
	}

	if a.redis != nil {
		a.redis.Close()
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// Stop 停止应用
func (a *App) Stop() {
	close(a.stopCh)
}
