// Package metrics 提供 heliox-custody 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "heliox_custody"

// 充值扫描指标
var (
	// DepositsTotal 充值入账总数
	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "充值入账总数",
		},
		[]string{"symbol", "status"}, // status: credited, duplicate, failed
	)

	// DepositAmountTotal 充值金额总计
	DepositAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_amount_total",
			Help:      "充值金额总计",
		},
		[]string{"symbol"},
	)

	// ScanCheckpointGauge 各币种扫描游标
	ScanCheckpointGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_checkpoint_block",
			Help:      "充值扫描游标区块高度",
		},
		[]string{"symbol"},
	)

	// ScanLagGauge 扫描落后链头的区块数
	ScanLagGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_lag_blocks",
			Help:      "扫描游标落后链上最新区块数",
		},
		[]string{"symbol"},
	)
)

// 归集指标
var (
	// SweepsTotal 归集总数
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "地址归集总数",
		},
		[]string{"symbol", "status"}, // status: swept, skipped, failed
	)

	// SweepAmountTotal 归集金额总计
	SweepAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_amount_total",
			Help:      "归集金额总计",
		},
		[]string{"symbol"},
	)

	// GasTopUpsTotal 补 Gas 次数
	GasTopUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gas_topups_total",
			Help:      "归集前补充 Gas 次数",
		},
		[]string{"symbol", "status"}, // status: sent, failed
	)

	// SweepDuration 单地址归集耗时
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "单地址归集耗时(秒)",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"symbol"},
	)
)

// 提现指标
var (
	// WithdrawalsTotal 提现处理总数
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "提现处理总数",
		},
		[]string{"symbol", "status"}, // status: succeed, failed, skipped, deferred
	)

	// WithdrawalAmountTotal 提现金额总计
	WithdrawalAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawal_amount_total",
			Help:      "提现出账金额总计",
		},
		[]string{"symbol"},
	)

	// PendingWithdrawalsGauge 待处理提现数量
	PendingWithdrawalsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_withdrawals_total",
			Help:      "待处理提现数量",
		},
		[]string{"symbol"},
	)

	// MasterBalanceAlertsTotal 主钱包余额不足告警次数
	MasterBalanceAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "master_balance_alerts_total",
			Help:      "主钱包余额不足告警次数",
		},
		[]string{"symbol"},
	)
)

// 链访问指标
var (
	// ChainCallsTotal 链 RPC 调用总数
	ChainCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_calls_total",
			Help:      "链 RPC 调用总数",
		},
		[]string{"chain", "method", "status"},
	)

	// ChainTxTotal 链上交易总数
	ChainTxTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_tx_total",
			Help:      "发出的链上交易总数",
		},
		[]string{"chain", "type", "status"}, // type: sweep/topup/withdraw
	)

	// ChainTxConfirmDuration 链上交易确认耗时
	ChainTxConfirmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_tx_confirm_seconds",
			Help:      "链上交易确认耗时(秒)",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"chain"},
	)

	// GasPriceGauge 当前 Gas 价格
	GasPriceGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gas_price_gwei",
			Help:      "当前 Gas 价格 (Gwei)",
		},
		[]string{"chain"},
	)
)

// 任务调度指标
var (
	// JobRunsTotal 任务执行总数
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "定时任务执行总数",
		},
		[]string{"job", "status"}, // status: success, failed, skipped
	)

	// JobDuration 任务执行耗时
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "定时任务执行耗时(秒)",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
		},
		[]string{"job"},
	)
)

// Kafka 指标
var (
	// KafkaMessagesProduced Kafka 生产消息数
	KafkaMessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "Kafka 生产消息总数",
		},
		[]string{"topic", "status"},
	)
)

// Helper functions

// RecordDeposit 记录充值入账
func RecordDeposit(symbol, status string, amount float64) {
	DepositsTotal.WithLabelValues(symbol, status).Inc()
	if amount > 0 && status == "credited" {
		DepositAmountTotal.WithLabelValues(symbol).Add(amount)
	}
}

// RecordScanCheckpoint 记录扫描进度
func RecordScanCheckpoint(symbol string, checkpoint, chainHead int64) {
	ScanCheckpointGauge.WithLabelValues(symbol).Set(float64(checkpoint))
	if chainHead >= checkpoint {
		ScanLagGauge.WithLabelValues(symbol).Set(float64(chainHead - checkpoint))
	}
}

// RecordSweep 记录归集
func RecordSweep(symbol, status string, amount float64, durationSeconds float64) {
	SweepsTotal.WithLabelValues(symbol, status).Inc()
	if amount > 0 && status == "swept" {
		SweepAmountTotal.WithLabelValues(symbol).Add(amount)
	}
	if durationSeconds > 0 {
		SweepDuration.WithLabelValues(symbol).Observe(durationSeconds)
	}
}

// RecordGasTopUp 记录补 Gas
func RecordGasTopUp(symbol, status string) {
	GasTopUpsTotal.WithLabelValues(symbol, status).Inc()
}

// RecordWithdrawal 记录提现处理
func RecordWithdrawal(symbol, status string, amount float64) {
	WithdrawalsTotal.WithLabelValues(symbol, status).Inc()
	if amount > 0 && status == "succeed" {
		WithdrawalAmountTotal.WithLabelValues(symbol).Add(amount)
	}
}

// RecordMasterBalanceAlert 记录主钱包余额告警
func RecordMasterBalanceAlert(symbol string) {
	MasterBalanceAlertsTotal.WithLabelValues(symbol).Inc()
}

// RecordChainTx 记录链上交易
func RecordChainTx(chain, txType, status string, confirmSeconds float64) {
	ChainTxTotal.WithLabelValues(chain, txType, status).Inc()
	if confirmSeconds > 0 {
		ChainTxConfirmDuration.WithLabelValues(chain).Observe(confirmSeconds)
	}
}

// RecordJobRun 记录任务执行
func RecordJobRun(job, status string, durationSeconds float64) {
	JobRunsTotal.WithLabelValues(job, status).Inc()
	if durationSeconds > 0 {
		JobDuration.WithLabelValues(job).Observe(durationSeconds)
	}
}

// RecordKafkaMessage 记录 Kafka 消息
func RecordKafkaMessage(topic, status string) {
	KafkaMessagesProduced.WithLabelValues(topic, status).Inc()
}

// UpdateGasPrice 更新 Gas 价格
func UpdateGasPrice(chain string, gasPriceGwei float64) {
	GasPriceGauge.WithLabelValues(chain).Set(gasPriceGwei)
}

// UpdatePendingWithdrawals 更新待处理提现数量
func UpdatePendingWithdrawals(symbol string, count int) {
	PendingWithdrawalsGauge.WithLabelValues(symbol).Set(float64(count))
}
